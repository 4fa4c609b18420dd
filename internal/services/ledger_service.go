// Package services orchestrates ledger mutations and balance queries over
// the storage layer. LedgerService is the only writer of posting rows: it
// owns the event shapes, the income allocation flow and the overdraft
// correction policy.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"buste/internal/core"
	"buste/internal/storage"
)

// Publisher sends ledger change notifications after a committed mutation.
// Failures are logged and never fail the originating request.
type Publisher interface {
	PublishLedgerChange(ctx context.Context, userID, eventID int64, action string) error
}

type LedgerService struct {
	repo      *storage.Repository
	publisher Publisher
}

func NewLedgerService(repo *storage.Repository, publisher Publisher) *LedgerService {
	return &LedgerService{repo: repo, publisher: publisher}
}

type (
	// Line is one user-authored posting line. Expense and transfer lines
	// must reference both a wallet and a fund; only the engine's own
	// allocation and correction postings may be single-sided.
	Line struct {
		Amount   decimal.Decimal
		WalletID int64
		FundID   int64
	}

	ExpenseInput struct {
		OccurredAt  time.Time
		Description string
		Pending     bool
		Lines       []Line
	}

	IncomeInput struct {
		OccurredAt  time.Time
		Description string
		Pending     bool
		WalletID    int64
		Total       decimal.Decimal
	}

	// EventPatch describes an edit. Nil fields keep the current value. When
	// Lines or Income is set the event is rebuilt (old postings voided, new
	// ones inserted); otherwise the edit is metadata-only and applied in
	// place.
	EventPatch struct {
		OccurredAt  *time.Time
		Description *string
		Pending     *bool
		Lines       []Line
		Income      *IncomeEdit
	}

	// IncomeEdit changes an income event. Reallocate snapshots fresh pull
	// percentages from the current fund configuration; otherwise the stored
	// incomePull snapshots are replayed so the historical split survives
	// later configuration changes.
	IncomeEdit struct {
		WalletID   int64
		Total      decimal.Decimal
		Reallocate bool
	}
)

// CreateExpense records a single- or multi-line non-income event. When a
// line would drive a non-savings fund below zero as of the occurrence date,
// a zero-net deficit correction pair against the savings fund is appended to
// the same event.
func (s *LedgerService) CreateExpense(ctx context.Context, userID int64, in ExpenseInput) (int64, error) {
	if len(in.Lines) == 0 {
		return 0, core.ErrNoLines
	}
	if in.OccurredAt.IsZero() {
		in.OccurredAt = time.Now()
	}

	savings, err := s.repo.SavingsFund(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("savings fund: %w", err)
	}

	lines, netByFund, fundOrder, err := s.buildLines(ctx, userID, in)
	if err != nil {
		return 0, err
	}

	corrections, err := s.deficitCorrections(ctx, userID, savings, netByFund, fundOrder, in.OccurredAt, in.Pending, nil)
	if err != nil {
		return 0, err
	}

	root, children := eventShape(userID, in.OccurredAt, in.Description, in.Pending, append(lines, corrections...))
	eventID, err := s.repo.InsertEvent(ctx, root, children)
	if err != nil {
		return 0, err
	}

	s.publishChange(ctx, userID, eventID, "created")
	return eventID, nil
}

// CreateIncome records a deposit into a wallet, split across funds by their
// pull percentages. Each allocation posting snapshots the percentage used.
// Allocations landing on a fund with outstanding overdraft debt first
// reverse the earlier deficit/savings pair.
func (s *LedgerService) CreateIncome(ctx context.Context, userID int64, in IncomeInput) (int64, error) {
	if in.Total.Sign() <= 0 {
		return 0, core.ErrInvalidAmount
	}
	if in.OccurredAt.IsZero() {
		in.OccurredAt = time.Now()
	}
	if _, err := s.repo.GetWallet(ctx, userID, in.WalletID); err != nil {
		return 0, err
	}

	funds, err := s.repo.ListFunds(ctx, userID)
	if err != nil {
		return 0, err
	}
	savings, pulls, err := splitPulls(funds)
	if err != nil {
		return 0, err
	}

	allocs, err := core.AllocateIncome(in.Total, pulls, savings.ID)
	if err != nil {
		return 0, err
	}

	children, err := s.incomePostings(ctx, userID, savings, allocs, in.WalletID, in.OccurredAt, in.Pending, nil)
	if err != nil {
		return 0, err
	}

	// Income events always use the grouped shape.
	root := core.Posting{
		UserID:      userID,
		IsPosting:   false,
		Kind:        core.KindLine,
		OccurredAt:  in.OccurredAt,
		Description: in.Description,
		Pending:     in.Pending,
	}
	eventID, err := s.repo.InsertEvent(ctx, root, children)
	if err != nil {
		return 0, err
	}

	s.publishChange(ctx, userID, eventID, "created")
	return eventID, nil
}

// EditEvent applies a patch. Date, description and pending-flag changes are
// in-place updates; changing lines or income parameters voids the current
// postings and inserts a replacement set under the same event id.
func (s *LedgerService) EditEvent(ctx context.Context, userID, eventID int64, patch EventPatch) error {
	ev, err := s.repo.GetEvent(ctx, userID, eventID)
	if err != nil {
		return err
	}

	occurredAt := ev.Root.OccurredAt
	if patch.OccurredAt != nil {
		occurredAt = *patch.OccurredAt
	}
	description := ev.Root.Description
	if patch.Description != nil {
		description = *patch.Description
	}
	pending := ev.Root.Pending
	if patch.Pending != nil {
		pending = *patch.Pending
	}

	switch {
	case patch.Lines == nil && patch.Income == nil:
		if err := s.repo.UpdateEventMeta(ctx, userID, eventID, occurredAt, description, pending); err != nil {
			return err
		}

	case patch.Income != nil:
		children, err := s.rebuildIncome(ctx, userID, ev, *patch.Income, occurredAt, pending)
		if err != nil {
			return err
		}
		if err := s.repo.RebuildEvent(ctx, userID, eventID, occurredAt, description, pending, children); err != nil {
			return err
		}

	default:
		if len(patch.Lines) == 0 {
			return core.ErrNoLines
		}
		savings, err := s.repo.SavingsFund(ctx, userID)
		if err != nil {
			return fmt.Errorf("savings fund: %w", err)
		}
		in := ExpenseInput{OccurredAt: occurredAt, Description: description, Pending: pending, Lines: patch.Lines}
		lines, netByFund, fundOrder, err := s.buildLines(ctx, userID, in)
		if err != nil {
			return err
		}
		corrections, err := s.deficitCorrections(ctx, userID, savings, netByFund, fundOrder, occurredAt, pending, &eventID)
		if err != nil {
			return err
		}
		if err := s.repo.RebuildEvent(ctx, userID, eventID, occurredAt, description, pending, append(lines, corrections...)); err != nil {
			return err
		}
	}

	s.publishChange(ctx, userID, eventID, "updated")
	return nil
}

// DeleteEvent marks the event and all its children deleted. Rows survive
// for audit and drop out of every balance.
func (s *LedgerService) DeleteEvent(ctx context.Context, userID, eventID int64) error {
	if err := s.repo.MarkEventDeleted(ctx, userID, eventID); err != nil {
		return err
	}
	s.publishChange(ctx, userID, eventID, "deleted")
	return nil
}

// ClearAllPending marks every pending posting of the user cleared.
func (s *LedgerService) ClearAllPending(ctx context.Context, userID int64) (int64, error) {
	n, err := s.repo.ClearAllPending(ctx, userID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.publishChange(ctx, userID, 0, "pending_cleared")
	}
	return n, nil
}

// GetEvent exposes the event-with-children projection.
func (s *LedgerService) GetEvent(ctx context.Context, userID, eventID int64) (core.Event, error) {
	return s.repo.GetEvent(ctx, userID, eventID)
}

// ListEvents returns the newest events first.
func (s *LedgerService) ListEvents(ctx context.Context, userID int64, limit, offset int) ([]core.Event, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListEvents(ctx, userID, limit, offset)
}

// buildLines validates the user-authored lines and returns the posting rows
// plus the net amount change per fund (a fund referenced by several lines is
// netted, so a same-fund transfer triggers no correction).
func (s *LedgerService) buildLines(ctx context.Context, userID int64, in ExpenseInput) ([]core.Posting, map[int64]decimal.Decimal, []int64, error) {
	lines := make([]core.Posting, 0, len(in.Lines))
	netByFund := make(map[int64]decimal.Decimal)
	var fundOrder []int64

	for _, l := range in.Lines {
		if l.Amount.IsZero() {
			return nil, nil, nil, core.ErrInvalidAmount
		}
		if l.WalletID == 0 || l.FundID == 0 {
			return nil, nil, nil, core.ErrMissingReference
		}
		if _, err := s.repo.GetWallet(ctx, userID, l.WalletID); err != nil {
			return nil, nil, nil, err
		}
		if _, err := s.repo.GetFund(ctx, userID, l.FundID); err != nil {
			return nil, nil, nil, err
		}

		walletID, fundID := l.WalletID, l.FundID
		lines = append(lines, core.Posting{
			UserID:     userID,
			IsPosting:  true,
			Kind:       core.KindLine,
			OccurredAt: in.OccurredAt,
			Amount:     l.Amount,
			WalletID:   &walletID,
			FundID:     &fundID,
			Pending:    in.Pending,
		})

		if _, seen := netByFund[fundID]; !seen {
			fundOrder = append(fundOrder, fundID)
		}
		netByFund[fundID] = netByFund[fundID].Add(l.Amount)
	}
	return lines, netByFund, fundOrder, nil
}

// deficitCorrections computes the zero-net correction pairs for funds driven
// below zero by the pending mutation. Each pair pulls the overspent fund
// back to exactly zero and charges the savings fund, dated the same instant.
func (s *LedgerService) deficitCorrections(ctx context.Context, userID int64, savings core.Fund, netByFund map[int64]decimal.Decimal, fundOrder []int64, at time.Time, pending bool, excludeEvent *int64) ([]core.Posting, error) {
	var out []core.Posting
	for _, fundID := range fundOrder {
		if fundID == savings.ID {
			continue
		}
		net := netByFund[fundID]
		if net.Sign() >= 0 {
			continue
		}

		bal, err := s.repo.FundRawBalance(ctx, userID, fundID, &at, excludeEvent)
		if err != nil {
			return nil, err
		}
		after := bal.WithPending.Add(net)
		if after.Sign() >= 0 {
			continue
		}
		deficit := after.Neg()

		overspent, savingsID := fundID, savings.ID
		out = append(out,
			core.Posting{
				UserID: userID, IsPosting: true, Kind: core.KindDeficit,
				OccurredAt: at, Amount: deficit, FundID: &overspent, Pending: pending,
			},
			core.Posting{
				UserID: userID, IsPosting: true, Kind: core.KindDeficit,
				OccurredAt: at, Amount: deficit.Neg(), FundID: &savingsID, Pending: pending,
			},
		)

		slog.InfoContext(ctx, "Overspend absorbed into savings",
			"user_id", userID, "fund_id", fundID, "deficit", deficit.String())
	}
	return out, nil
}

// incomePostings builds the allocation postings plus the repayment pairs for
// funds carrying outstanding overdraft debt.
func (s *LedgerService) incomePostings(ctx context.Context, userID int64, savings core.Fund, allocs []core.Allocation, walletID int64, at time.Time, pending bool, excludeEvent *int64) ([]core.Posting, error) {
	var out []core.Posting
	for _, a := range allocs {
		fundID, pull := a.FundID, a.Percentage
		wallet := walletID
		out = append(out, core.Posting{
			UserID:     userID,
			IsPosting:  true,
			Kind:       core.KindAllocation,
			OccurredAt: at,
			Amount:     a.Amount,
			WalletID:   &wallet,
			FundID:     &fundID,
			IncomePull: &pull,
			Pending:    pending,
		})
	}

	for _, a := range allocs {
		if a.FundID == savings.ID {
			continue
		}
		debt, err := s.repo.FundDeficit(ctx, userID, a.FundID, excludeEvent)
		if err != nil {
			return nil, err
		}
		outstanding := debt.WithPending
		if outstanding.Sign() <= 0 {
			continue
		}
		repay := decimal.Min(a.Amount, outstanding)
		if repay.Sign() <= 0 {
			continue
		}

		fundID, savingsID := a.FundID, savings.ID
		out = append(out,
			core.Posting{
				UserID: userID, IsPosting: true, Kind: core.KindDeficit,
				OccurredAt: at, Amount: repay.Neg(), FundID: &fundID, Pending: pending,
			},
			core.Posting{
				UserID: userID, IsPosting: true, Kind: core.KindDeficit,
				OccurredAt: at, Amount: repay, FundID: &savingsID, Pending: pending,
			},
		)

		slog.InfoContext(ctx, "Overdraft debt repaid from income",
			"user_id", userID, "fund_id", a.FundID, "repaid", repay.String())
	}
	return out, nil
}

// rebuildIncome recomputes an income event's postings. Unless the caller
// asked to reallocate, the pulls come from the stored incomePull snapshots
// so the original split is replayed, not today's fund configuration.
func (s *LedgerService) rebuildIncome(ctx context.Context, userID int64, ev core.Event, edit IncomeEdit, at time.Time, pending bool) ([]core.Posting, error) {
	if edit.Total.Sign() <= 0 {
		return nil, core.ErrInvalidAmount
	}
	if _, err := s.repo.GetWallet(ctx, userID, edit.WalletID); err != nil {
		return nil, err
	}

	funds, err := s.repo.ListFunds(ctx, userID)
	if err != nil {
		return nil, err
	}
	savings, livePulls, err := splitPulls(funds)
	if err != nil {
		return nil, err
	}

	pulls := livePulls
	if !edit.Reallocate {
		pulls = nil
		for _, p := range ev.Lines() {
			if p.Kind != core.KindAllocation || p.FundID == nil || p.IncomePull == nil {
				continue
			}
			if *p.FundID == savings.ID {
				continue
			}
			// A fund deleted since the original income falls out of the
			// snapshot; the remainder shifts to savings.
			if _, err := s.repo.GetFund(ctx, userID, *p.FundID); err != nil {
				continue
			}
			pulls = append(pulls, core.Pull{FundID: *p.FundID, Percentage: *p.IncomePull})
		}
	}

	allocs, err := core.AllocateIncome(edit.Total, pulls, savings.ID)
	if err != nil {
		return nil, err
	}

	eventID := ev.Root.ID
	return s.incomePostings(ctx, userID, savings, allocs, edit.WalletID, at, pending, &eventID)
}

// eventShape picks the storage shape: a posting-only root for the common
// single-line case, a banner root with children otherwise.
func eventShape(userID int64, at time.Time, description string, pending bool, postings []core.Posting) (core.Posting, []core.Posting) {
	if len(postings) == 1 {
		root := postings[0]
		root.Description = description
		return root, nil
	}
	root := core.Posting{
		UserID:      userID,
		IsPosting:   false,
		Kind:        core.KindLine,
		OccurredAt:  at,
		Description: description,
		Pending:     pending,
	}
	return root, postings
}

// splitPulls separates the savings fund from the non-savings pulls.
func splitPulls(funds []core.Fund) (core.Fund, []core.Pull, error) {
	var savings core.Fund
	var pulls []core.Pull
	found := false
	for _, f := range funds {
		if f.IsSavings {
			savings = f
			found = true
			continue
		}
		pulls = append(pulls, core.Pull{FundID: f.ID, Percentage: f.PullPercentage})
	}
	if !found {
		return core.Fund{}, nil, fmt.Errorf("savings fund: %w", core.ErrNotFound)
	}
	return savings, pulls, nil
}

func (s *LedgerService) publishChange(ctx context.Context, userID, eventID int64, action string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishLedgerChange(ctx, userID, eventID, action); err != nil {
		// The mutation is already committed; notification loss is tolerated.
		slog.ErrorContext(ctx, "Failed to publish ledger change",
			"user_id", userID, "event_id", eventID, "action", action, "error", err)
	}
}
