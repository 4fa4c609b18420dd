package core

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestAllocateIncomeSplit(t *testing.T) {
	pulls := []Pull{
		{FundID: 1, Percentage: dec("30")},
		{FundID: 2, Percentage: dec("20")},
	}

	allocs, err := AllocateIncome(dec("1000"), pulls, 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(allocs) != 3 {
		t.Fatalf("expected 3 allocations, got %d", len(allocs))
	}

	want := map[int64]string{1: "300", 2: "200", 9: "500"}
	wantPct := map[int64]string{1: "30", 2: "20", 9: "50"}
	for _, a := range allocs {
		if !a.Amount.Equal(dec(want[a.FundID])) {
			t.Errorf("fund %d: amount %s, want %s", a.FundID, a.Amount, want[a.FundID])
		}
		if !a.Percentage.Equal(dec(wantPct[a.FundID])) {
			t.Errorf("fund %d: percentage %s, want %s", a.FundID, a.Percentage, wantPct[a.FundID])
		}
	}
}

func TestAllocateIncomeSumsExactly(t *testing.T) {
	// Percentages chosen so the individual divisions cannot be exact.
	cases := []struct {
		total string
		pulls []Pull
	}{
		{"100", []Pull{{1, dec("33.33")}, {2, dec("33.33")}, {3, dec("33.33")}}},
		{"0.01", []Pull{{1, dec("50")}, {2, dec("49.999")}}},
		{"999.99", []Pull{{1, dec("1")}, {2, dec("98.5")}}},
		{"7", []Pull{{1, dec("14.2857")}}},
	}

	for i, tc := range cases {
		allocs, err := AllocateIncome(dec(tc.total), tc.pulls, 99)
		if err != nil {
			t.Fatalf("case %d: unexpected error: %v", i, err)
		}
		sum := decimal.Zero
		for _, a := range allocs {
			sum = sum.Add(a.Amount)
		}
		if !sum.Equal(dec(tc.total)) {
			t.Errorf("case %d: allocations sum to %s, want %s", i, sum, tc.total)
		}
	}
}

func TestAllocateIncomeSkipsZeroPulls(t *testing.T) {
	pulls := []Pull{
		{FundID: 1, Percentage: decimal.Zero},
		{FundID: 2, Percentage: dec("25")},
	}
	allocs, err := AllocateIncome(dec("200"), pulls, 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, a := range allocs {
		if a.FundID == 1 {
			t.Errorf("fund with zero pull must not receive an allocation")
		}
	}
	if len(allocs) != 2 {
		t.Fatalf("expected 2 allocations, got %d", len(allocs))
	}
}

func TestAllocateIncomeFullPullSum(t *testing.T) {
	// pulls sum to exactly 100: savings receives nothing.
	pulls := []Pull{{1, dec("60")}, {2, dec("40")}}
	allocs, err := AllocateIncome(dec("500"), pulls, 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, a := range allocs {
		if a.FundID == 9 {
			t.Errorf("savings should not receive a zero-amount allocation, got %s", a.Amount)
		}
	}
}

func TestAllocateIncomeNoPulls(t *testing.T) {
	allocs, err := AllocateIncome(dec("150"), nil, 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(allocs) != 1 || allocs[0].FundID != 9 {
		t.Fatalf("expected everything routed to savings, got %+v", allocs)
	}
	if !allocs[0].Amount.Equal(dec("150")) || !allocs[0].Percentage.Equal(dec("100")) {
		t.Fatalf("savings allocation %s at %s%%, want 150 at 100%%", allocs[0].Amount, allocs[0].Percentage)
	}
}

func TestAllocateIncomeErrors(t *testing.T) {
	cases := []struct {
		name  string
		total string
		pulls []Pull
		want  error
	}{
		{"zero total", "0", nil, ErrInvalidAmount},
		{"negative total", "-10", nil, ErrInvalidAmount},
		{"pull sum over 100", "100", []Pull{{1, dec("60")}, {2, dec("41")}}, ErrPullSumExceeded},
		{"negative pull", "100", []Pull{{1, dec("-5")}}, ErrInvalidPull},
		{"pull over 100", "100", []Pull{{1, dec("101")}}, ErrInvalidPull},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := AllocateIncome(dec(tc.total), tc.pulls, 9)
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestAllocateIncomeDeterministic(t *testing.T) {
	pulls := []Pull{{1, dec("12.5")}, {2, dec("37.5")}, {3, dec("10")}}
	first, err := AllocateIncome(dec("123.45"), pulls, 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := AllocateIncome(dec("123.45"), pulls, 9)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(again) != len(first) {
			t.Fatalf("allocation count changed between runs")
		}
		for j := range again {
			if again[j].FundID != first[j].FundID || !again[j].Amount.Equal(first[j].Amount) {
				t.Fatalf("allocation %d changed between runs", j)
			}
		}
	}
}
