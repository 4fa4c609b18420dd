package core

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestWalletValidate(t *testing.T) {
	if err := (Wallet{Name: "Conto"}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Wallet{Name: "  "}).Validate(); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
	if err := (Wallet{Name: strings.Repeat("x", 101)}).Validate(); err == nil {
		t.Fatalf("expected error for long name")
	}
}

func TestFundValidate(t *testing.T) {
	good := Fund{Name: "Spesa", PullPercentage: dec("30")}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Fund{
		{Name: "", PullPercentage: dec("10")},
		{Name: "a", PullPercentage: dec("-1")},
		{Name: "a", PullPercentage: dec("100.5")},
	}
	for i, f := range bads {
		if err := f.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestPostingValidate(t *testing.T) {
	w, f := int64(1), int64(2)
	cases := []struct {
		name string
		p    Posting
		ok   bool
	}{
		{"line with both refs", Posting{IsPosting: true, Amount: dec("-5"), WalletID: &w, FundID: &f}, true},
		{"fund-only line", Posting{IsPosting: true, Amount: dec("5"), FundID: &f}, true},
		{"zero amount line", Posting{IsPosting: true, Amount: decimal.Zero, WalletID: &w, FundID: &f}, false},
		{"line without refs", Posting{IsPosting: true, Amount: dec("5")}, false},
		{"banner", Posting{IsPosting: false, Amount: decimal.Zero}, true},
		{"banner with amount", Posting{IsPosting: false, Amount: dec("1")}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.p.Validate()
			if tc.ok && err != nil {
				t.Fatalf("expected ok, got %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestEventLines(t *testing.T) {
	single := Event{Root: Posting{IsPosting: true, Amount: dec("-3")}}
	if got := single.Lines(); len(got) != 1 || !got[0].Amount.Equal(dec("-3")) {
		t.Fatalf("single-line event must expose its root as the only line")
	}

	parent := int64(1)
	grouped := Event{
		Root: Posting{ID: 1, IsPosting: false, OccurredAt: time.Now()},
		Children: []Posting{
			{ParentID: &parent, IsPosting: true, Amount: dec("-200")},
			{ParentID: &parent, IsPosting: true, Amount: dec("200")},
		},
	}
	if got := grouped.Lines(); len(got) != 2 {
		t.Fatalf("grouped event must expose its children, got %d lines", len(got))
	}
}

func TestEventIsIncome(t *testing.T) {
	parent := int64(1)
	income := Event{
		Root:     Posting{ID: 1},
		Children: []Posting{{ParentID: &parent, IsPosting: true, Kind: KindAllocation, Amount: dec("10")}},
	}
	if !income.IsIncome() {
		t.Fatalf("event with allocation lines must report income")
	}

	expense := Event{Root: Posting{IsPosting: true, Kind: KindLine, Amount: dec("-10")}}
	if expense.IsIncome() {
		t.Fatalf("expense event must not report income")
	}
}

func TestStatusVisible(t *testing.T) {
	if !StatusActive.Visible() {
		t.Fatalf("active rows must be visible")
	}
	if StatusVoid.Visible() || StatusDeleted.Visible() {
		t.Fatalf("void and deleted rows must be invisible")
	}
}
