package escrowdto

// TransferView is one credit out of the vault.
type TransferView struct {
	Account string `json:"account"`
	Amount  int64  `json:"amount"`
}

// SettlementView reports how a terminal room distributed its vault.
type SettlementView struct {
	Outcome string         `json:"outcome,omitempty"`
	Reason  string         `json:"reason,omitempty"`
	Fee     int64          `json:"fee"`
	Dust    int64          `json:"dust"`
	Payouts []TransferView `json:"payouts"`
}

// RoomView is the API projection of one escrow record.
type RoomView struct {
	RoomID         string `json:"room_id"`
	PlayerA        string `json:"player_a"`
	PlayerB        string `json:"player_b,omitempty"`
	StakeAmount    int64  `json:"stake_amount"`
	TotalDeposited int64  `json:"total_deposited"`
	VaultBalance   int64  `json:"vault_balance"`
	Phase          string `json:"phase"`
	Outcome        string `json:"outcome,omitempty"`
	DepositedA     bool   `json:"deposited_a"`
	DepositedB     bool   `json:"deposited_b"`
	MoveCount      uint32 `json:"move_count"`
	ExpectedMover  string `json:"expected_mover,omitempty"`
	TimeLimitSec   int64  `json:"time_limit_sec"`
	FeeBps         int64  `json:"fee_bps"`
	CreatedAt      int64  `json:"created_at"`
	StartedAt      int64  `json:"started_at,omitempty"`
	SettledAt      int64  `json:"settled_at,omitempty"`
	LastActivityAt int64  `json:"last_activity_at,omitempty"`
}

// MoveReceiptView confirms an accepted move.
type MoveReceiptView struct {
	RoomID      string `json:"room_id"`
	Mover       string `json:"mover"`
	Label       string `json:"label"`
	Fingerprint string `json:"fingerprint,omitempty"`
	MoveCount   uint32 `json:"move_count"`
	Timestamp   int64  `json:"timestamp"`
}

// SettleResponse is returned by result, timeout and cancel operations.
type SettleResponse struct {
	Room       *RoomView       `json:"room"`
	Settlement *SettlementView `json:"settlement,omitempty"`
}

// AccountView is a player balance snapshot.
type AccountView struct {
	Account string   `json:"account"`
	Balance int64    `json:"balance"`
	Rooms   []string `json:"rooms,omitempty"`
}
