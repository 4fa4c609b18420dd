// Package worker runs the reconciliation auditor: an out-of-band process
// that re-checks the wallet-total equals fund-total invariant after every
// ledger change and on a periodic sweep.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"buste/internal/amqp"
	"buste/internal/services"
	"buste/internal/storage"
)

type AuditWorker struct {
	repo     *storage.Repository
	balances *services.BalanceService
}

func NewAuditWorker(repo *storage.Repository, balances *services.BalanceService) *AuditWorker {
	return &AuditWorker{repo: repo, balances: balances}
}

// HandleChange audits the user named by a ledger change message. A handler
// error requeues the message, so only infrastructure failures are returned;
// a genuine imbalance is logged and the message acknowledged.
func (w *AuditWorker) HandleChange(ctx context.Context, msg *amqp.LedgerChangeMessage) error {
	slog.InfoContext(ctx, "Auditing ledger change",
		"user_id", msg.UserID,
		"event_id", msg.EventID,
		"action", msg.Action)
	return w.auditUser(ctx, msg.UserID)
}

// RunPeriodic sweeps every user at the given interval until the context is
// cancelled. It catches imbalances whose change notification was lost.
func (w *AuditWorker) RunPeriodic(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.AuditAll(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic audit sweep failed", "error", err)
			}
		}
	}
}

// AuditAll reconciles every registered user once.
func (w *AuditWorker) AuditAll(ctx context.Context) error {
	userIDs, err := w.repo.ListUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	for _, userID := range userIDs {
		if err := w.auditUser(ctx, userID); err != nil {
			return err
		}
	}
	slog.InfoContext(ctx, "Audit sweep completed", "users", len(userIDs))
	return nil
}

func (w *AuditWorker) auditUser(ctx context.Context, userID int64) error {
	rep, err := w.balances.Reconcile(ctx, userID)
	if err != nil {
		return fmt.Errorf("reconcile user %d: %w", userID, err)
	}
	if !rep.Balanced {
		slog.ErrorContext(ctx, "Ledger out of balance",
			"user_id", userID,
			"wallet_cleared", rep.WalletTotal.Cleared.String(),
			"wallet_with_pending", rep.WalletTotal.WithPending.String(),
			"fund_cleared", rep.FundTotal.Cleared.String(),
			"fund_with_pending", rep.FundTotal.WithPending.String())
	}
	return nil
}
