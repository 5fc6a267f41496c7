package escrow

// Phase represents the lifecycle state of an escrow record.
type Phase string

const (
	PhaseAwaitingOpponent Phase = "AWAITING_OPPONENT"
	PhaseAwaitingDeposits Phase = "AWAITING_DEPOSITS"
	PhaseActive           Phase = "ACTIVE"
	PhaseSettled          Phase = "SETTLED"
	PhaseCancelled        Phase = "CANCELLED"
)

// Terminal reports whether no further transition may be attempted.
func (p Phase) Terminal() bool { return p == PhaseSettled || p == PhaseCancelled }

// Outcome is the final result of a match. The empty value means undetermined.
type Outcome string

const (
	OutcomeUndetermined Outcome = ""
	OutcomeWinnerA      Outcome = "WINNER_A"
	OutcomeWinnerB      Outcome = "WINNER_B"
	OutcomeDraw         Outcome = "DRAW"
)

// EndReason explains how a match reached settlement.
type EndReason string

const (
	ReasonCheckmate   EndReason = "CHECKMATE"
	ReasonResignation EndReason = "RESIGNATION"
	ReasonTimeout     EndReason = "TIMEOUT"
	ReasonAgreement   EndReason = "AGREEMENT"
	ReasonStalemate   EndReason = "STALEMATE"
	ReasonAbandonment EndReason = "ABANDONMENT"
)

const (
	// MaxRoomIDLen bounds the caller-chosen room identifier.
	MaxRoomIDLen = 32
	// MaxMoveLabelLen bounds the opaque move label accepted for audit.
	MaxMoveLabelLen = 10
	// feeDenominator converts basis points into a fraction.
	feeDenominator = 10_000
)

// Params carries the fixed configuration frozen into a record at creation.
type Params struct {
	FeeBps       int64  `json:"fee_bps"`
	FeeCollector string `json:"fee_collector"`
	MinStake     int64  `json:"min_stake"`
	MaxStake     int64  `json:"max_stake"` // 0 = unbounded
}

// Record is the authoritative escrow state for one match, stored as JSON
// under its room key. Timestamps are unix seconds.
type Record struct {
	RoomID         string  `json:"room_id"`
	PlayerA        string  `json:"player_a"`
	PlayerB        string  `json:"player_b,omitempty"`
	StakeAmount    int64   `json:"stake_amount"`
	TotalDeposited int64   `json:"total_deposited"`
	Phase          Phase   `json:"phase"`
	Outcome        Outcome `json:"outcome,omitempty"`
	DepositedA     bool    `json:"deposited_a"`
	DepositedB     bool    `json:"deposited_b"`
	MoveCount      uint32  `json:"move_count"`
	TimeLimit      int64   `json:"time_limit"`
	FeeBps         int64   `json:"fee_bps"`
	FeeCollector   string  `json:"fee_collector"`
	CreatedAt      int64   `json:"created_at"`
	StartedAt      int64   `json:"started_at,omitempty"`
	SettledAt      int64   `json:"settled_at,omitempty"`
	LastActivityAt int64   `json:"last_activity_at,omitempty"`
}

// Transfer is a single credit out of the vault.
type Transfer struct {
	Account string `json:"account"`
	Amount  int64  `json:"amount"`
}

// Settlement is the atomic distribution computed when a record reaches a
// terminal phase. Payouts lists player credits only; Fee and Dust go to the
// fee collector. Cancellation produces a fee-free Settlement whose payouts
// are the refunds.
type Settlement struct {
	Outcome Outcome    `json:"outcome,omitempty"`
	Reason  EndReason  `json:"reason,omitempty"`
	Fee     int64      `json:"fee"`
	Dust    int64      `json:"dust"`
	Payouts []Transfer `json:"payouts"`
}

// Total returns the full amount leaving the vault.
func (s *Settlement) Total() int64 {
	if s == nil {
		return 0
	}
	total := s.Fee + s.Dust
	for _, t := range s.Payouts {
		total += t.Amount
	}
	return total
}

// MoveReceipt is the full move-log tuple. It is emitted to the audit stream
// and never stored in the Record itself; only MoveCount and the activity
// timestamp live in hot state.
type MoveReceipt struct {
	RoomID      string `json:"room_id"`
	Mover       string `json:"mover"`
	Label       string `json:"label"`
	Fingerprint string `json:"fingerprint,omitempty"`
	MoveCount   uint32 `json:"move_count"`
	Timestamp   int64  `json:"timestamp"`
}

// IsParticipant reports whether id is one of the two players.
func (r *Record) IsParticipant(id string) bool {
	if id == "" {
		return false
	}
	return id == r.PlayerA || (r.PlayerB != "" && id == r.PlayerB)
}

// ExpectedMover returns the participant whose turn it is: even move counts
// belong to player A, odd to player B.
func (r *Record) ExpectedMover() string {
	if r.MoveCount%2 == 0 {
		return r.PlayerA
	}
	return r.PlayerB
}

// Opponent returns the other participant, or "" when id is not in the match.
func (r *Record) Opponent(id string) string {
	switch id {
	case r.PlayerA:
		return r.PlayerB
	case r.PlayerB:
		return r.PlayerA
	}
	return ""
}

// Clone returns a copy callers can mutate without touching the original.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}
