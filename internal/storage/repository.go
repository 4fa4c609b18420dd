// Package storage persists the ledger in SQLite: users, wallets, funds and
// postings. It enforces ownership scoping and soft-delete visibility; every
// multi-row write for one event runs inside a single transaction.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"buste/internal/core"

	_ "modernc.org/sqlite"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx so row helpers can run
// inside or outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *Repository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Transaction rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func scanDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse stored amount %q: %w", s, err)
	}
	return d, nil
}

// EnsureUser creates the user row on first contact. Identity resolution is
// external; the id arrives already authenticated.
func (r *Repository) EnsureUser(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id) VALUES (?) ON CONFLICT(id) DO NOTHING`, userID)
	if err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	return nil
}

// ListUserIDs returns every registered user id in ascending order.
func (r *Repository) ListUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ---- wallets ----

func (r *Repository) CreateWallet(ctx context.Context, w core.Wallet) (core.Wallet, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO wallets (user_id, name, opening_amount) VALUES (?, ?, ?)`,
		w.UserID, w.Name, w.OpeningAmount.String())
	if err != nil {
		return core.Wallet{}, fmt.Errorf("create wallet: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Wallet{}, fmt.Errorf("wallet insert id: %w", err)
	}
	w.ID = id

	slog.InfoContext(ctx, "Wallet created", "id", id, "user_id", w.UserID, "name", w.Name)
	return w, nil
}

func scanWallet(row interface{ Scan(...any) error }) (core.Wallet, error) {
	var (
		w         core.Wallet
		opening   string
		deletedAt sql.NullTime
	)
	if err := row.Scan(&w.ID, &w.UserID, &w.Name, &opening, &deletedAt); err != nil {
		return core.Wallet{}, err
	}
	amount, err := scanDecimal(opening)
	if err != nil {
		return core.Wallet{}, err
	}
	w.OpeningAmount = amount
	if deletedAt.Valid {
		t := deletedAt.Time
		w.DeletedAt = &t
	}
	return w, nil
}

const walletColumns = `id, user_id, name, opening_amount, deleted_at`

func (r *Repository) getWallet(ctx context.Context, q querier, userID, id int64) (core.Wallet, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE id = ? AND user_id = ? AND deleted_at IS NULL`,
		id, userID)
	w, err := scanWallet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Wallet{}, core.ErrNotFound
	}
	if err != nil {
		return core.Wallet{}, fmt.Errorf("get wallet: %w", err)
	}
	return w, nil
}

// GetWallet returns the wallet only when it belongs to userID and is not
// soft-deleted. A foreign id surfaces as not found, never as forbidden.
func (r *Repository) GetWallet(ctx context.Context, userID, id int64) (core.Wallet, error) {
	return r.getWallet(ctx, r.db, userID, id)
}

func (r *Repository) ListWallets(ctx context.Context, userID int64) ([]core.Wallet, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE user_id = ? AND deleted_at IS NULL ORDER BY id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	var wallets []core.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

func (r *Repository) UpdateWallet(ctx context.Context, w core.Wallet) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE wallets SET name = ?, opening_amount = ? WHERE id = ? AND user_id = ? AND deleted_at IS NULL`,
		w.Name, w.OpeningAmount.String(), w.ID, w.UserID)
	if err != nil {
		return fmt.Errorf("update wallet: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update wallet rows: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// DeleteWalletIfZero soft-deletes the wallet, but only when its with-pending
// balance is exactly zero. The check and the delete run in the same
// transaction so a concurrent posting cannot slip in between.
func (r *Repository) DeleteWalletIfZero(ctx context.Context, userID, id int64) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		w, err := r.getWallet(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		sum, err := sumAmounts(ctx, tx,
			`SELECT amount, pending FROM postings
			 WHERE user_id = ? AND wallet_id = ? AND is_posting = 1 AND status = 'active'`,
			userID, id)
		if err != nil {
			return err
		}
		if !sum.AddBoth(w.OpeningAmount).WithPending.IsZero() {
			return core.ErrHasBalance
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE wallets SET deleted_at = ? WHERE id = ? AND user_id = ?`,
			time.Now().UTC(), id, userID)
		if err != nil {
			return fmt.Errorf("soft delete wallet: %w", err)
		}
		slog.InfoContext(ctx, "Wallet soft-deleted", "id", id, "user_id", userID)
		return nil
	})
}

// ---- funds ----

func (r *Repository) CreateFund(ctx context.Context, f core.Fund) (core.Fund, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO funds (user_id, name, opening_amount, pull_percentage, is_savings)
		 VALUES (?, ?, ?, ?, ?)`,
		f.UserID, f.Name, f.OpeningAmount.String(), f.PullPercentage.String(), f.IsSavings)
	if err != nil {
		return core.Fund{}, fmt.Errorf("create fund: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Fund{}, fmt.Errorf("fund insert id: %w", err)
	}
	f.ID = id

	slog.InfoContext(ctx, "Fund created",
		"id", id, "user_id", f.UserID, "name", f.Name, "is_savings", f.IsSavings)
	return f, nil
}

func scanFund(row interface{ Scan(...any) error }) (core.Fund, error) {
	var (
		f         core.Fund
		opening   string
		pull      string
		deletedAt sql.NullTime
	)
	if err := row.Scan(&f.ID, &f.UserID, &f.Name, &opening, &pull, &f.IsSavings, &deletedAt); err != nil {
		return core.Fund{}, err
	}
	amount, err := scanDecimal(opening)
	if err != nil {
		return core.Fund{}, err
	}
	f.OpeningAmount = amount
	pct, err := scanDecimal(pull)
	if err != nil {
		return core.Fund{}, err
	}
	f.PullPercentage = pct
	if deletedAt.Valid {
		t := deletedAt.Time
		f.DeletedAt = &t
	}
	return f, nil
}

const fundColumns = `id, user_id, name, opening_amount, pull_percentage, is_savings, deleted_at`

func (r *Repository) getFund(ctx context.Context, q querier, userID, id int64) (core.Fund, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+fundColumns+` FROM funds WHERE id = ? AND user_id = ? AND deleted_at IS NULL`,
		id, userID)
	f, err := scanFund(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Fund{}, core.ErrNotFound
	}
	if err != nil {
		return core.Fund{}, fmt.Errorf("get fund: %w", err)
	}
	return f, nil
}

func (r *Repository) GetFund(ctx context.Context, userID, id int64) (core.Fund, error) {
	return r.getFund(ctx, r.db, userID, id)
}

func (r *Repository) ListFunds(ctx context.Context, userID int64) ([]core.Fund, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+fundColumns+` FROM funds WHERE user_id = ? AND deleted_at IS NULL ORDER BY is_savings, id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list funds: %w", err)
	}
	defer rows.Close()

	var funds []core.Fund
	for rows.Next() {
		f, err := scanFund(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fund: %w", err)
		}
		funds = append(funds, f)
	}
	return funds, rows.Err()
}

// SavingsFund returns the user's single savings fund.
func (r *Repository) SavingsFund(ctx context.Context, userID int64) (core.Fund, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+fundColumns+` FROM funds WHERE user_id = ? AND is_savings = 1 AND deleted_at IS NULL`,
		userID)
	f, err := scanFund(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Fund{}, core.ErrNotFound
	}
	if err != nil {
		return core.Fund{}, fmt.Errorf("get savings fund: %w", err)
	}
	return f, nil
}

func (r *Repository) UpdateFund(ctx context.Context, f core.Fund) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE funds SET name = ?, opening_amount = ?, pull_percentage = ?
		 WHERE id = ? AND user_id = ? AND deleted_at IS NULL`,
		f.Name, f.OpeningAmount.String(), f.PullPercentage.String(), f.ID, f.UserID)
	if err != nil {
		return fmt.Errorf("update fund: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update fund rows: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// DeleteFundIfZero soft-deletes a non-savings fund with a zero with-pending
// balance, checked in the same transaction as the delete.
func (r *Repository) DeleteFundIfZero(ctx context.Context, userID, id int64) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		f, err := r.getFund(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		if f.IsSavings {
			return core.ErrProtectedFund
		}
		sum, err := sumAmounts(ctx, tx,
			`SELECT amount, pending FROM postings
			 WHERE user_id = ? AND fund_id = ? AND is_posting = 1 AND status = 'active'`,
			userID, id)
		if err != nil {
			return err
		}
		if !sum.AddBoth(f.OpeningAmount).WithPending.IsZero() {
			return core.ErrHasBalance
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE funds SET deleted_at = ? WHERE id = ? AND user_id = ?`,
			time.Now().UTC(), id, userID)
		if err != nil {
			return fmt.Errorf("soft delete fund: %w", err)
		}
		slog.InfoContext(ctx, "Fund soft-deleted", "id", id, "user_id", userID)
		return nil
	})
}

// sumAmounts runs a (amount, pending) query and folds the rows into a
// Balance. Summation happens here with decimal arithmetic rather than in SQL
// so no precision is lost.
func sumAmounts(ctx context.Context, q querier, query string, args ...any) (core.Balance, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return core.Balance{}, fmt.Errorf("sum postings: %w", err)
	}
	defer rows.Close()

	b := core.Balance{}
	for rows.Next() {
		var (
			amount  string
			pending bool
		)
		if err := rows.Scan(&amount, &pending); err != nil {
			return core.Balance{}, fmt.Errorf("scan posting amount: %w", err)
		}
		d, err := scanDecimal(amount)
		if err != nil {
			return core.Balance{}, err
		}
		b = b.Add(d, pending)
	}
	return b, rows.Err()
}
