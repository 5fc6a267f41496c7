package escrowdto

// DomainError is the wire form of every API failure.
type DomainError struct {
	Code      string `json:"code"`
	Message   string `json:"message,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "escrow service error"
}

// ErrorResponse is the body returned on any non-2xx status.
type ErrorResponse struct {
	Error DomainError `json:"error"`
}
