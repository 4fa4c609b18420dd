package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func fb(id int64, savings bool, cleared, withPending string) FundBalance {
	return FundBalance{
		Fund: Fund{ID: id, IsSavings: savings},
		Raw:  Balance{Cleared: dec(cleared), WithPending: dec(withPending)},
	}
}

func TestAbsorbOverspendClampsAndCharges(t *testing.T) {
	// Groceries overspent by 50, savings at 200: listing shows 0 and 150.
	funds := AbsorbOverspend([]FundBalance{
		fb(1, false, "-50", "-50"),
		fb(9, true, "200", "200"),
	})

	if !funds[0].Displayed.Cleared.IsZero() || !funds[0].Displayed.WithPending.IsZero() {
		t.Errorf("overspent fund displayed %+v, want zero", funds[0].Displayed)
	}
	if !funds[0].Raw.Cleared.Equal(dec("-50")) {
		t.Errorf("raw balance must stay untouched, got %s", funds[0].Raw.Cleared)
	}
	if !funds[1].Displayed.Cleared.Equal(dec("150")) {
		t.Errorf("savings displayed %s, want 150", funds[1].Displayed.Cleared)
	}
}

func TestAbsorbOverspendViewsIndependent(t *testing.T) {
	// Cleared fine, with-pending overdrawn: only that view is absorbed.
	funds := AbsorbOverspend([]FundBalance{
		fb(1, false, "10", "-30"),
		fb(9, true, "100", "100"),
	})

	if !funds[0].Displayed.Cleared.Equal(dec("10")) {
		t.Errorf("cleared displayed %s, want 10", funds[0].Displayed.Cleared)
	}
	if !funds[0].Displayed.WithPending.IsZero() {
		t.Errorf("with-pending displayed %s, want 0", funds[0].Displayed.WithPending)
	}
	if !funds[1].Displayed.Cleared.Equal(dec("100")) {
		t.Errorf("savings cleared displayed %s, want 100", funds[1].Displayed.Cleared)
	}
	if !funds[1].Displayed.WithPending.Equal(dec("70")) {
		t.Errorf("savings with-pending displayed %s, want 70", funds[1].Displayed.WithPending)
	}
}

func TestAbsorbOverspendMultipleDeficits(t *testing.T) {
	funds := AbsorbOverspend([]FundBalance{
		fb(1, false, "-10", "-10"),
		fb(2, false, "-15.25", "-15.25"),
		fb(3, false, "40", "40"),
		fb(9, true, "5", "5"),
	})

	// Savings may go negative: 5 - 25.25 = -20.25.
	if !funds[3].Displayed.Cleared.Equal(dec("-20.25")) {
		t.Errorf("savings displayed %s, want -20.25", funds[3].Displayed.Cleared)
	}
	if !funds[2].Displayed.Cleared.Equal(dec("40")) {
		t.Errorf("positive fund must be passed through, got %s", funds[2].Displayed.Cleared)
	}
}

func TestAbsorbOverspendNoSavings(t *testing.T) {
	// Without a savings fund the deficits are only clamped.
	funds := AbsorbOverspend([]FundBalance{fb(1, false, "-5", "-5")})
	if !funds[0].Displayed.Cleared.IsZero() {
		t.Errorf("displayed %s, want 0", funds[0].Displayed.Cleared)
	}
}

func TestBalanceAdd(t *testing.T) {
	b := Balance{}
	b = b.Add(dec("10"), false)
	b = b.Add(dec("-4"), true)
	if !b.Cleared.Equal(dec("10")) {
		t.Errorf("cleared %s, want 10", b.Cleared)
	}
	if !b.WithPending.Equal(dec("6")) {
		t.Errorf("with-pending %s, want 6", b.WithPending)
	}

	b = b.AddBoth(dec("1"))
	if !b.Cleared.Equal(dec("11")) || !b.WithPending.Equal(dec("7")) {
		t.Errorf("after AddBoth got %s/%s", b.Cleared, b.WithPending)
	}

	if !(Balance{Cleared: decimal.Zero, WithPending: decimal.Zero}).IsZero() {
		t.Errorf("zero balance must report IsZero")
	}
	if b.IsZero() {
		t.Errorf("nonzero balance must not report IsZero")
	}
}
