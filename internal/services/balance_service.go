package services

import (
	"context"
	"time"

	"buste/internal/core"
	"buste/internal/storage"
)

// BalanceService answers read-side questions. All sums are recomputed from
// the posting rows on every call; nothing is cached here.
type BalanceService struct {
	repo *storage.Repository
}

func NewBalanceService(repo *storage.Repository) *BalanceService {
	return &BalanceService{repo: repo}
}

// Summary is the combined position of one user: every wallet, every fund
// after overspend absorption, and the grand total over wallets.
type Summary struct {
	Wallets []core.WalletBalance
	Funds   []core.FundBalance
	Total   core.Balance
}

// ReconcileReport compares the two sides of the ledger. Balanced is false
// when the wallet total and the fund raw total diverge in either view,
// which indicates a bug in the posting author.
type ReconcileReport struct {
	WalletTotal core.Balance
	FundTotal   core.Balance
	Balanced    bool
}

// WalletBalances lists the live wallets with their balances, optionally as
// of a past date.
func (s *BalanceService) WalletBalances(ctx context.Context, userID int64, asOf *time.Time) ([]core.WalletBalance, error) {
	return s.repo.ListWalletBalances(ctx, userID, asOf)
}

// FundBalances lists the live funds with raw and displayed balances.
// Displayed clamps overspent funds at zero and charges savings.
func (s *BalanceService) FundBalances(ctx context.Context, userID int64, asOf *time.Time) ([]core.FundBalance, error) {
	funds, err := s.repo.ListFundBalances(ctx, userID, asOf)
	if err != nil {
		return nil, err
	}
	return core.AbsorbOverspend(funds), nil
}

// WalletBalance returns one wallet's balance. Wallets have no display
// transform, so raw is the whole answer.
func (s *BalanceService) WalletBalance(ctx context.Context, userID, walletID int64, asOf *time.Time) (core.WalletBalance, error) {
	w, err := s.repo.GetWallet(ctx, userID, walletID)
	if err != nil {
		return core.WalletBalance{}, err
	}
	raw, err := s.repo.WalletRawBalance(ctx, userID, walletID, asOf)
	if err != nil {
		return core.WalletBalance{}, err
	}
	return core.WalletBalance{Wallet: w, Raw: raw}, nil
}

// FundBalance returns one fund's raw and displayed balance. The display
// transform depends on every other fund, so the full listing is computed
// and the requested fund picked out.
func (s *BalanceService) FundBalance(ctx context.Context, userID, fundID int64, asOf *time.Time) (core.FundBalance, error) {
	funds, err := s.FundBalances(ctx, userID, asOf)
	if err != nil {
		return core.FundBalance{}, err
	}
	for _, f := range funds {
		if f.Fund.ID == fundID {
			return f, nil
		}
	}
	return core.FundBalance{}, core.ErrNotFound
}

// Summary computes the full position. The grand total is the sum of wallet
// balances; by the reconciliation invariant it equals the fund raw total.
func (s *BalanceService) Summary(ctx context.Context, userID int64, asOf *time.Time) (Summary, error) {
	wallets, err := s.WalletBalances(ctx, userID, asOf)
	if err != nil {
		return Summary{}, err
	}
	funds, err := s.FundBalances(ctx, userID, asOf)
	if err != nil {
		return Summary{}, err
	}

	var total core.Balance
	for _, w := range wallets {
		total.Cleared = total.Cleared.Add(w.Raw.Cleared)
		total.WithPending = total.WithPending.Add(w.Raw.WithPending)
	}
	return Summary{Wallets: wallets, Funds: funds, Total: total}, nil
}

// Reconcile checks that all money is accounted for on both sides of the
// ledger, including soft-deleted wallets and funds.
func (s *BalanceService) Reconcile(ctx context.Context, userID int64) (ReconcileReport, error) {
	walletTotal, fundTotal, err := s.repo.LedgerTotals(ctx, userID)
	if err != nil {
		return ReconcileReport{}, err
	}
	balanced := walletTotal.Cleared.Equal(fundTotal.Cleared) &&
		walletTotal.WithPending.Equal(fundTotal.WithPending)
	return ReconcileReport{WalletTotal: walletTotal, FundTotal: fundTotal, Balanced: balanced}, nil
}
