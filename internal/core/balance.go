package core

import (
	"github.com/shopspring/decimal"
)

type (
	// Balance is a pair of sums over the same posting set, differing only in
	// whether pending postings are included.
	Balance struct {
		Cleared     decimal.Decimal
		WithPending decimal.Decimal
	}

	WalletBalance struct {
		Wallet Wallet
		Raw    Balance
	}

	// FundBalance carries both the ledger-true raw balance and the
	// display-adjusted balance after overspend absorption. Raw is what the
	// reconciliation invariant is checked on; Displayed is what fund
	// listings show.
	FundBalance struct {
		Fund      Fund
		Raw       Balance
		Displayed Balance
	}
)

// Add folds one posting amount into the balance.
func (b Balance) Add(amount decimal.Decimal, pending bool) Balance {
	b.WithPending = b.WithPending.Add(amount)
	if !pending {
		b.Cleared = b.Cleared.Add(amount)
	}
	return b
}

// AddBoth adds the same amount to both views (opening amounts).
func (b Balance) AddBoth(amount decimal.Decimal) Balance {
	b.Cleared = b.Cleared.Add(amount)
	b.WithPending = b.WithPending.Add(amount)
	return b
}

// IsZero reports whether both views are numerically zero.
func (b Balance) IsZero() bool {
	return b.Cleared.IsZero() && b.WithPending.IsZero()
}

// AbsorbOverspend fills in the Displayed balances: every non-savings fund is
// clamped at zero and the summed deficits are charged to the savings fund,
// computed separately for the cleared and with-pending views. Savings itself
// may go negative. Raw balances are left untouched so callers can still
// surface "overspent by X" next to a displayed zero.
func AbsorbOverspend(funds []FundBalance) []FundBalance {
	deficitCleared := decimal.Zero
	deficitPending := decimal.Zero
	savings := -1

	for i := range funds {
		if funds[i].Fund.IsSavings {
			savings = i
			continue
		}
		raw := funds[i].Raw
		disp := Balance{Cleared: raw.Cleared, WithPending: raw.WithPending}
		if raw.Cleared.Sign() < 0 {
			deficitCleared = deficitCleared.Sub(raw.Cleared)
			disp.Cleared = decimal.Zero
		}
		if raw.WithPending.Sign() < 0 {
			deficitPending = deficitPending.Sub(raw.WithPending)
			disp.WithPending = decimal.Zero
		}
		funds[i].Displayed = disp
	}

	if savings >= 0 {
		funds[savings].Displayed = Balance{
			Cleared:     funds[savings].Raw.Cleared.Sub(deficitCleared),
			WithPending: funds[savings].Raw.WithPending.Sub(deficitPending),
		}
	}

	return funds
}
