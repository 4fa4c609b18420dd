package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"buste/internal/core"
	"buste/internal/storage"
)

// DefaultSavingsFundName is the name of the fund created on bootstrap. The
// savings fund absorbs unallocated income and overspend and cannot be
// deleted.
const DefaultSavingsFundName = "Savings"

// AccountService manages wallets and funds and bootstraps new users.
type AccountService struct {
	repo *storage.Repository
}

func NewAccountService(repo *storage.Repository) *AccountService {
	return &AccountService{repo: repo}
}

// Bootstrap registers the user and guarantees the savings fund exists. Safe
// to call on every request.
func (s *AccountService) Bootstrap(ctx context.Context, userID int64) error {
	if err := s.repo.EnsureUser(ctx, userID); err != nil {
		return err
	}
	_, err := s.repo.SavingsFund(ctx, userID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return err
	}

	f := core.Fund{
		UserID:         userID,
		Name:           DefaultSavingsFundName,
		OpeningAmount:  decimal.Zero,
		PullPercentage: decimal.Zero,
		IsSavings:      true,
	}
	if _, err := s.repo.CreateFund(ctx, f); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Bootstrapped new user", "user_id", userID)
	return nil
}

func (s *AccountService) CreateWallet(ctx context.Context, userID int64, name string, opening decimal.Decimal) (core.Wallet, error) {
	w := core.Wallet{UserID: userID, Name: strings.TrimSpace(name), OpeningAmount: opening}
	if err := w.Validate(); err != nil {
		return core.Wallet{}, err
	}
	return s.repo.CreateWallet(ctx, w)
}

func (s *AccountService) GetWallet(ctx context.Context, userID, walletID int64) (core.Wallet, error) {
	return s.repo.GetWallet(ctx, userID, walletID)
}

func (s *AccountService) ListWallets(ctx context.Context, userID int64) ([]core.Wallet, error) {
	return s.repo.ListWallets(ctx, userID)
}

// UpdateWallet applies the non-nil fields. Changing the opening amount
// shifts every historical balance of the wallet.
func (s *AccountService) UpdateWallet(ctx context.Context, userID, walletID int64, name *string, opening *decimal.Decimal) (core.Wallet, error) {
	w, err := s.repo.GetWallet(ctx, userID, walletID)
	if err != nil {
		return core.Wallet{}, err
	}
	if name != nil {
		w.Name = strings.TrimSpace(*name)
	}
	if opening != nil {
		w.OpeningAmount = *opening
	}
	if err := w.Validate(); err != nil {
		return core.Wallet{}, err
	}
	if err := s.repo.UpdateWallet(ctx, w); err != nil {
		return core.Wallet{}, err
	}
	return w, nil
}

// DeleteWallet soft-deletes the wallet. It fails with ErrHasBalance while
// the with-pending balance is nonzero.
func (s *AccountService) DeleteWallet(ctx context.Context, userID, walletID int64) error {
	return s.repo.DeleteWalletIfZero(ctx, userID, walletID)
}

// CreateFund creates a regular envelope. The savings fund is created once
// by Bootstrap and never through this path.
func (s *AccountService) CreateFund(ctx context.Context, userID int64, name string, opening, pull decimal.Decimal) (core.Fund, error) {
	f := core.Fund{
		UserID:         userID,
		Name:           strings.TrimSpace(name),
		OpeningAmount:  opening,
		PullPercentage: pull,
	}
	if err := f.Validate(); err != nil {
		return core.Fund{}, err
	}
	if err := s.checkPullRoom(ctx, userID, 0, pull); err != nil {
		return core.Fund{}, err
	}
	return s.repo.CreateFund(ctx, f)
}

func (s *AccountService) GetFund(ctx context.Context, userID, fundID int64) (core.Fund, error) {
	return s.repo.GetFund(ctx, userID, fundID)
}

func (s *AccountService) ListFunds(ctx context.Context, userID int64) ([]core.Fund, error) {
	return s.repo.ListFunds(ctx, userID)
}

// UpdateFund applies the non-nil fields. The savings fund's pull percentage
// is implied by the other funds and cannot be set directly.
func (s *AccountService) UpdateFund(ctx context.Context, userID, fundID int64, name *string, opening, pull *decimal.Decimal) (core.Fund, error) {
	f, err := s.repo.GetFund(ctx, userID, fundID)
	if err != nil {
		return core.Fund{}, err
	}
	if name != nil {
		f.Name = strings.TrimSpace(*name)
	}
	if opening != nil {
		f.OpeningAmount = *opening
	}
	if pull != nil {
		if f.IsSavings {
			return core.Fund{}, core.ErrProtectedFund
		}
		if err := s.checkPullRoom(ctx, userID, fundID, *pull); err != nil {
			return core.Fund{}, err
		}
		f.PullPercentage = *pull
	}
	if err := f.Validate(); err != nil {
		return core.Fund{}, err
	}
	if err := s.repo.UpdateFund(ctx, f); err != nil {
		return core.Fund{}, err
	}
	return f, nil
}

// DeleteFund soft-deletes a fund. The savings fund is protected and any
// fund with a nonzero with-pending balance is refused.
func (s *AccountService) DeleteFund(ctx context.Context, userID, fundID int64) error {
	return s.repo.DeleteFundIfZero(ctx, userID, fundID)
}

// checkPullRoom rejects a pull percentage that would push the sum over 100.
// The fund being updated is excluded so raising its own percentage works.
func (s *AccountService) checkPullRoom(ctx context.Context, userID, fundID int64, pull decimal.Decimal) error {
	if pull.Sign() < 0 || pull.GreaterThan(core.Hundred) {
		return core.ErrInvalidPull
	}
	funds, err := s.repo.ListFunds(ctx, userID)
	if err != nil {
		return err
	}
	sum := pull
	for _, f := range funds {
		if f.IsSavings || f.ID == fundID {
			continue
		}
		sum = sum.Add(f.PullPercentage)
	}
	if sum.GreaterThan(core.Hundred) {
		return core.ErrPullSumExceeded
	}
	return nil
}
