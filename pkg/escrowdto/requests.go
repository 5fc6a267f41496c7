package escrowdto

// CreateRoomRequest opens an escrow room. The caller (X-Player-Id) becomes
// player A. TimeLimitSec of zero means the server default.
type CreateRoomRequest struct {
	RoomID       string `json:"room_id"`
	StakeAmount  int64  `json:"stake_amount"`
	TimeLimitSec int64  `json:"time_limit_sec,omitempty"`
}

// MoveRequest submits one move label. The label is opaque to the server;
// Fingerprint optionally pins the resulting position for the audit stream.
type MoveRequest struct {
	Label       string `json:"label"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// DeclareRequest reports a finished match.
type DeclareRequest struct {
	Outcome string `json:"outcome"`
	Reason  string `json:"reason"`
}

// CreditRequest tops up a player account balance.
type CreditRequest struct {
	Amount int64 `json:"amount"`
}
