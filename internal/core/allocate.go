package core

import (
	"github.com/shopspring/decimal"
)

type (
	// Pull is one fund's configured (or snapshotted) share of incoming income.
	Pull struct {
		FundID     int64
		Percentage decimal.Decimal
	}

	// Allocation is the computed slice of an income deposit for one fund,
	// together with the percentage actually used. The percentage is stored on
	// the resulting posting so later edits replay the original split instead
	// of whatever the funds are configured to pull today.
	Allocation struct {
		FundID     int64
		Amount     decimal.Decimal
		Percentage decimal.Decimal
	}
)

// AllocateIncome splits total across funds according to their pull
// percentages. Every fund with a positive pull receives total*pct/100 at full
// precision; the savings fund receives the literal remainder, which
// guarantees the returned amounts sum to total exactly regardless of how the
// individual divisions came out.
//
// The function is deterministic for a given pulls ordering. It fails when
// total is not positive or the pulls sum to more than 100.
func AllocateIncome(total decimal.Decimal, pulls []Pull, savingsFundID int64) ([]Allocation, error) {
	if total.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	pullSum := decimal.Zero
	for _, p := range pulls {
		if p.Percentage.Sign() < 0 || p.Percentage.GreaterThan(Hundred) {
			return nil, ErrInvalidPull
		}
		pullSum = pullSum.Add(p.Percentage)
	}
	if pullSum.GreaterThan(Hundred) {
		return nil, ErrPullSumExceeded
	}

	var out []Allocation
	allocated := decimal.Zero
	for _, p := range pulls {
		if p.Percentage.Sign() == 0 {
			continue
		}
		amount := total.Mul(p.Percentage).Div(Hundred)
		out = append(out, Allocation{FundID: p.FundID, Amount: amount, Percentage: p.Percentage})
		allocated = allocated.Add(amount)
	}

	// Savings takes whatever is left, not total*(100-pullSum)/100.
	rest := total.Sub(allocated)
	if !rest.IsZero() {
		out = append(out, Allocation{
			FundID:     savingsFundID,
			Amount:     rest,
			Percentage: Hundred.Sub(pullSum),
		})
	}

	return out, nil
}
