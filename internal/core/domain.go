package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// Lifecycle states of a posting row. Rows are never physically removed:
	// an edit voids the superseded rows, a delete marks the whole event
	// deleted. Only active rows are visible to balance queries.
	StatusActive  Status = "active"
	StatusVoid    Status = "void"
	StatusDeleted Status = "deleted"
)

const (
	KindLine       Kind = "line"       // user-authored expense/transfer line
	KindAllocation Kind = "allocation" // generated by income allocation
	KindDeficit    Kind = "deficit"    // overdraft correction or repayment leg
)

type (
	Status string
	Kind   string

	User struct {
		ID        int64
		CreatedAt time.Time
	}

	// Wallet is a physical money location (bank account, cash, ...).
	Wallet struct {
		ID            int64
		UserID        int64
		Name          string
		OpeningAmount decimal.Decimal
		DeletedAt     *time.Time
	}

	// Fund is a purpose bucket. Exactly one fund per user carries IsSavings:
	// it absorbs overspend and the income-allocation remainder, and it
	// cannot be deleted.
	Fund struct {
		ID             int64
		UserID         int64
		Name           string
		OpeningAmount  decimal.Decimal
		PullPercentage decimal.Decimal // 0-100, share of income auto-routed here
		IsSavings      bool
		DeletedAt      *time.Time
	}

	// Posting is the ledger's atomic row. A row without a parent is an event
	// root: either a money-moving line itself (IsPosting) or a pure grouping
	// banner whose children carry the amounts.
	Posting struct {
		ID          int64
		UserID      int64
		ParentID    *int64
		IsPosting   bool
		Kind        Kind
		OccurredAt  time.Time
		Description string
		Amount      decimal.Decimal
		WalletID    *int64
		FundID      *int64
		IncomePull  *decimal.Decimal // allocation percentage snapshot, income postings only
		Pending     bool
		Status      Status
	}

	// Event is what a user perceives as one transaction: a root posting plus
	// its children (none for the single-line shape).
	Event struct {
		Root     Posting
		Children []Posting
	}
)

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyName        = errors.New("empty name")
	ErrMissingReference = errors.New("line must reference a wallet and a fund")
	ErrNoLines          = errors.New("event has no lines")
	ErrInvalidPull      = errors.New("pull percentage must be between 0 and 100")
	ErrPullSumExceeded  = errors.New("pull percentages sum to more than 100")
	ErrHasBalance       = errors.New("balance must be zero before deletion")
	ErrProtectedFund    = errors.New("savings fund is protected")
)

// Visible reports whether the row participates in balances and listings.
func (s Status) Visible() bool { return s == StatusActive }

// Lines returns the money-moving postings of the event: the root itself for
// the single-line shape, the children otherwise.
func (e Event) Lines() []Posting {
	if e.Root.IsPosting {
		return []Posting{e.Root}
	}
	return e.Children
}

// IsIncome reports whether the event was produced by income allocation.
func (e Event) IsIncome() bool {
	for _, p := range e.Lines() {
		if p.Kind == KindAllocation {
			return true
		}
	}
	return false
}

func (w Wallet) Validate() error {
	if strings.TrimSpace(w.Name) == "" {
		return ErrEmptyName
	}
	if len(w.Name) > 100 {
		return errors.New("name too long (max 100 characters)")
	}
	return nil
}

func (f Fund) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return ErrEmptyName
	}
	if len(f.Name) > 100 {
		return errors.New("name too long (max 100 characters)")
	}
	if f.PullPercentage.Sign() < 0 || f.PullPercentage.GreaterThan(Hundred) {
		return ErrInvalidPull
	}
	return nil
}

// Validate checks the shape invariants of a single posting row.
func (p Posting) Validate() error {
	if p.IsPosting && p.Amount.IsZero() {
		return ErrInvalidAmount
	}
	if !p.IsPosting && !p.Amount.IsZero() {
		return errors.New("banner row must carry amount 0")
	}
	if p.IsPosting && p.WalletID == nil && p.FundID == nil {
		return ErrMissingReference
	}
	if len(p.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	return nil
}
