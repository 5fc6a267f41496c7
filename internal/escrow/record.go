package escrow

// The state machine below is pure: every operation validates against the
// current record and caller identity, then mutates, with no I/O and no
// internal clock. Callers supply `now` (unix seconds) and are responsible
// for executing each transition as an indivisible unit per room.

// NewRecord validates creation inputs and returns a fresh record in the
// AWAITING_OPPONENT phase. Fee rate, fee collector and stake bounds come
// from fixed configuration and are frozen into the record.
func NewRecord(roomID, creator string, stake, timeLimitSec int64, p Params, now int64) (*Record, error) {
	if len(roomID) > MaxRoomIDLen {
		return nil, ErrRoomIDTooLong
	}
	if stake <= 0 || stake < p.MinStake || (p.MaxStake > 0 && stake > p.MaxStake) {
		return nil, ErrInvalidStakeAmount
	}
	if timeLimitSec <= 0 {
		return nil, ErrInvalidTimeLimit
	}
	return &Record{
		RoomID:       roomID,
		PlayerA:      creator,
		StakeAmount:  stake,
		Phase:        PhaseAwaitingOpponent,
		TimeLimit:    timeLimitSec,
		FeeBps:       p.FeeBps,
		FeeCollector: p.FeeCollector,
		CreatedAt:    now,
	}, nil
}

// Join registers the second participant and advances to AWAITING_DEPOSITS.
func (r *Record) Join(caller string, now int64) error {
	if r.Phase != PhaseAwaitingOpponent {
		return ErrGameNotWaitingForPlayers
	}
	if caller == r.PlayerA {
		return ErrCannotPlayAgainstSelf
	}
	r.PlayerB = caller
	r.Phase = PhaseAwaitingDeposits
	return nil
}

// Deposit marks the caller's stake as received. The caller's funds must be
// moved into the vault in the same atomic unit as this transition. When the
// second stake lands the match starts: the returned flag is true and the
// record flips to ACTIVE.
func (r *Record) Deposit(caller string, now int64) (started bool, err error) {
	if r.Phase != PhaseAwaitingDeposits {
		return false, ErrInvalidPhaseForDeposit
	}
	if !r.IsParticipant(caller) {
		return false, ErrUnauthorizedParticipant
	}
	if (caller == r.PlayerA && r.DepositedA) || (caller == r.PlayerB && r.DepositedB) {
		return false, ErrAlreadyDeposited
	}
	if caller == r.PlayerA {
		r.DepositedA = true
	} else {
		r.DepositedB = true
	}
	r.TotalDeposited += r.StakeAmount
	if r.DepositedA && r.DepositedB {
		r.Phase = PhaseActive
		r.StartedAt = now
		r.LastActivityAt = now
		return true, nil
	}
	return false, nil
}

// RecordMove advances the move counter for the participant whose turn it is.
// The move label and position fingerprint are opaque: legality lives in the
// external rules engine, the record only keeps turn order and timing. The
// full tuple is returned for the audit stream.
func (r *Record) RecordMove(caller, label, fingerprint string, now int64) (*MoveReceipt, error) {
	if r.Phase != PhaseActive {
		return nil, ErrGameNotActive
	}
	if !r.IsParticipant(caller) {
		return nil, ErrUnauthorizedParticipant
	}
	if len(label) > MaxMoveLabelLen {
		return nil, ErrMoveLabelTooLong
	}
	if caller != r.ExpectedMover() {
		return nil, ErrNotYourTurn
	}
	if now-r.LastActivityAt > r.TimeLimit {
		return nil, ErrMoveTimeExceeded
	}
	r.MoveCount++
	r.LastActivityAt = now
	return &MoveReceipt{
		RoomID:      r.RoomID,
		Mover:       caller,
		Label:       label,
		Fingerprint: fingerprint,
		MoveCount:   r.MoveCount,
		Timestamp:   now,
	}, nil
}

// DeclareResult settles an active match with an explicitly declared outcome.
// The declarer must be a participant and the (outcome, reason, declarer)
// triple must be consistent: a win is declarable only by the loser resigning
// or by the winner claiming timeout; a draw only by agreement or stalemate.
func (r *Record) DeclareResult(caller string, outcome Outcome, reason EndReason, now int64) (*Settlement, error) {
	if r.Phase != PhaseActive {
		return nil, ErrGameNotActive
	}
	if !r.IsParticipant(caller) {
		return nil, ErrUnauthorizedParticipant
	}
	switch outcome {
	case OutcomeWinnerA:
		if !(reason == ReasonResignation && caller == r.PlayerB ||
			reason == ReasonTimeout && caller == r.PlayerA) {
			return nil, ErrInvalidOutcome
		}
	case OutcomeWinnerB:
		if !(reason == ReasonResignation && caller == r.PlayerA ||
			reason == ReasonTimeout && caller == r.PlayerB) {
			return nil, ErrInvalidOutcome
		}
	case OutcomeDraw:
		if reason != ReasonAgreement && reason != ReasonStalemate {
			return nil, ErrInvalidDrawDeclaration
		}
	default:
		return nil, ErrInvalidOutcome
	}
	return r.close(outcome, reason, now), nil
}

// ForceTimeout settles an active match after the inactivity window has
// elapsed. Anyone may call it; the winner is computed from move-count
// parity, never taken from the caller: the participant whose turn it was
// forfeits.
func (r *Record) ForceTimeout(now int64) (*Settlement, error) {
	if r.Phase != PhaseActive {
		return nil, ErrGameNotActive
	}
	if now-r.LastActivityAt <= r.TimeLimit {
		return nil, ErrTimeNotExceeded
	}
	outcome := OutcomeWinnerB
	if r.ExpectedMover() == r.PlayerB {
		outcome = OutcomeWinnerA
	}
	return r.close(outcome, ReasonTimeout, now), nil
}

// Cancel aborts a match that never started, refunding exactly what each
// participant deposited. Valid only before ACTIVE.
func (r *Record) Cancel(caller string, now int64) (*Settlement, error) {
	if r.Phase != PhaseAwaitingOpponent && r.Phase != PhaseAwaitingDeposits {
		return nil, ErrCannotCancelStartedGame
	}
	if !r.IsParticipant(caller) {
		return nil, ErrUnauthorizedParticipant
	}
	refund := &Settlement{}
	if r.DepositedA {
		refund.Payouts = append(refund.Payouts, Transfer{Account: r.PlayerA, Amount: r.StakeAmount})
	}
	if r.DepositedB {
		refund.Payouts = append(refund.Payouts, Transfer{Account: r.PlayerB, Amount: r.StakeAmount})
	}
	r.Phase = PhaseCancelled
	r.SettledAt = now
	return refund, nil
}

// close computes the distribution and flips the record to SETTLED. The
// caller must apply the settlement transfers in the same atomic unit.
func (r *Record) close(outcome Outcome, reason EndReason, now int64) *Settlement {
	settlement := r.distribute(outcome)
	settlement.Reason = reason
	r.Outcome = outcome
	r.Phase = PhaseSettled
	r.SettledAt = now
	return settlement
}
