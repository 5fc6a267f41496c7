package escrow

// distribute computes the terminal payout for the given outcome. One routine
// serves both declared results and forced timeouts.
//
// fee = floor(total * fee_bps / 10_000) goes to the fee collector, the
// remainder to the winner, or half each on a draw. A draw over an odd
// remainder leaves one unit; it is credited to the fee collector as Dust so
// the vault always drains to exactly zero.
func (r *Record) distribute(outcome Outcome) *Settlement {
	total := r.TotalDeposited
	fee := feeFor(total, r.FeeBps)
	remainder := total - fee

	s := &Settlement{Outcome: outcome, Fee: fee}
	switch outcome {
	case OutcomeWinnerA:
		if remainder > 0 {
			s.Payouts = append(s.Payouts, Transfer{Account: r.PlayerA, Amount: remainder})
		}
	case OutcomeWinnerB:
		if remainder > 0 {
			s.Payouts = append(s.Payouts, Transfer{Account: r.PlayerB, Amount: remainder})
		}
	case OutcomeDraw:
		half := remainder / 2
		if half > 0 {
			s.Payouts = append(s.Payouts,
				Transfer{Account: r.PlayerA, Amount: half},
				Transfer{Account: r.PlayerB, Amount: half},
			)
		}
		s.Dust = remainder - 2*half
	}
	return s
}

// feeFor floors total*bps/10_000 without overflowing int64 on large stakes:
// the quotient part multiplies exactly, only the sub-denominator remainder
// needs the scaled division.
func feeFor(total, bps int64) int64 {
	if total <= 0 || bps <= 0 {
		return 0
	}
	q, rem := total/feeDenominator, total%feeDenominator
	return q*bps + rem*bps/feeDenominator
}
