package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"buste/internal/core"
)

const postingColumns = `id, user_id, parent_id, is_posting, kind, occurred_at, description,
	amount, wallet_id, fund_id, income_pull, pending, status`

func scanPosting(row interface{ Scan(...any) error }) (core.Posting, error) {
	var (
		p          core.Posting
		parentID   sql.NullInt64
		amount     string
		walletID   sql.NullInt64
		fundID     sql.NullInt64
		incomePull sql.NullString
	)
	err := row.Scan(&p.ID, &p.UserID, &parentID, &p.IsPosting, &p.Kind, &p.OccurredAt,
		&p.Description, &amount, &walletID, &fundID, &incomePull, &p.Pending, &p.Status)
	if err != nil {
		return core.Posting{}, err
	}

	d, err := scanDecimal(amount)
	if err != nil {
		return core.Posting{}, err
	}
	p.Amount = d

	if parentID.Valid {
		v := parentID.Int64
		p.ParentID = &v
	}
	if walletID.Valid {
		v := walletID.Int64
		p.WalletID = &v
	}
	if fundID.Valid {
		v := fundID.Int64
		p.FundID = &v
	}
	if incomePull.Valid {
		pull, err := scanDecimal(incomePull.String)
		if err != nil {
			return core.Posting{}, err
		}
		p.IncomePull = &pull
	}
	return p, nil
}

func insertPosting(ctx context.Context, q querier, p core.Posting) (int64, error) {
	var (
		walletID   any
		fundID     any
		parentID   any
		incomePull any
	)
	if p.WalletID != nil {
		walletID = *p.WalletID
	}
	if p.FundID != nil {
		fundID = *p.FundID
	}
	if p.ParentID != nil {
		parentID = *p.ParentID
	}
	if p.IncomePull != nil {
		incomePull = p.IncomePull.String()
	}

	res, err := q.ExecContext(ctx,
		`INSERT INTO postings (user_id, parent_id, is_posting, kind, occurred_at, description,
		                       amount, wallet_id, fund_id, income_pull, pending, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.UserID, parentID, p.IsPosting, p.Kind, p.OccurredAt.UTC(), p.Description,
		p.Amount.String(), walletID, fundID, incomePull, p.Pending, core.StatusActive)
	if err != nil {
		return 0, fmt.Errorf("insert posting: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("posting insert id: %w", err)
	}
	return id, nil
}

// InsertEvent writes an event atomically: the root row plus its children, if
// any. A mid-write failure leaves no partial event behind.
func (r *Repository) InsertEvent(ctx context.Context, root core.Posting, children []core.Posting) (int64, error) {
	var eventID int64
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		id, err := insertPosting(ctx, tx, root)
		if err != nil {
			return err
		}
		eventID = id
		for _, c := range children {
			c.ParentID = &eventID
			if _, err := insertPosting(ctx, tx, c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	slog.InfoContext(ctx, "Event created",
		"event_id", eventID, "user_id", root.UserID, "children", len(children))
	return eventID, nil
}

// GetEvent returns the active event with its active children. Void and
// deleted rows never come back.
func (r *Repository) GetEvent(ctx context.Context, userID, eventID int64) (core.Event, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+postingColumns+` FROM postings
		 WHERE id = ? AND user_id = ? AND parent_id IS NULL AND status = 'active'`,
		eventID, userID)
	root, err := scanPosting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Event{}, core.ErrNotFound
	}
	if err != nil {
		return core.Event{}, fmt.Errorf("get event: %w", err)
	}

	children, err := r.eventChildren(ctx, userID, eventID)
	if err != nil {
		return core.Event{}, err
	}
	return core.Event{Root: root, Children: children}, nil
}

func (r *Repository) eventChildren(ctx context.Context, userID, eventID int64) ([]core.Posting, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+postingColumns+` FROM postings
		 WHERE parent_id = ? AND user_id = ? AND status = 'active' ORDER BY id`,
		eventID, userID)
	if err != nil {
		return nil, fmt.Errorf("get event children: %w", err)
	}
	defer rows.Close()

	var children []core.Posting
	for rows.Next() {
		p, err := scanPosting(rows)
		if err != nil {
			return nil, fmt.Errorf("scan posting: %w", err)
		}
		children = append(children, p)
	}
	return children, rows.Err()
}

// ListEvents returns event-with-children projections, newest first.
func (r *Repository) ListEvents(ctx context.Context, userID int64, limit, offset int) ([]core.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+postingColumns+` FROM postings
		 WHERE user_id = ? AND parent_id IS NULL AND status = 'active'
		 ORDER BY occurred_at DESC, id DESC LIMIT ? OFFSET ?`,
		userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []core.Event
	var ids []any
	for rows.Next() {
		root, err := scanPosting(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event root: %w", err)
		}
		events = append(events, core.Event{Root: root})
		ids = append(ids, root.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := append([]any{userID}, ids...)
	crows, err := r.db.QueryContext(ctx,
		`SELECT `+postingColumns+` FROM postings
		 WHERE user_id = ? AND parent_id IN (`+placeholders+`) AND status = 'active' ORDER BY id`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("list event children: %w", err)
	}
	defer crows.Close()

	byParent := make(map[int64]int, len(events))
	for i, e := range events {
		byParent[e.Root.ID] = i
	}
	for crows.Next() {
		p, err := scanPosting(crows)
		if err != nil {
			return nil, fmt.Errorf("scan posting: %w", err)
		}
		if i, ok := byParent[*p.ParentID]; ok {
			events[i].Children = append(events[i].Children, p)
		}
	}
	return events, crows.Err()
}

// UpdateEventMeta applies a metadata-only edit in place: date, description
// and pending flag on the root, date and pending propagated to the children.
func (r *Repository) UpdateEventMeta(ctx context.Context, userID, eventID int64, occurredAt time.Time, description string, pending bool) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE postings SET occurred_at = ?, description = ?, pending = ?
			 WHERE id = ? AND user_id = ? AND parent_id IS NULL AND status = 'active'`,
			occurredAt.UTC(), description, pending, eventID, userID)
		if err != nil {
			return fmt.Errorf("update event meta: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update event meta rows: %w", err)
		}
		if n == 0 {
			return core.ErrNotFound
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE postings SET occurred_at = ?, pending = ?
			 WHERE parent_id = ? AND user_id = ? AND status = 'active'`,
			occurredAt.UTC(), pending, eventID, userID)
		if err != nil {
			return fmt.Errorf("update children meta: %w", err)
		}
		return nil
	})
}

// RebuildEvent voids the event's current postings, demotes the root to a
// grouping banner with the new metadata, and inserts the replacement
// postings, all in one transaction. Superseded rows stay in the table for
// audit, a posting-only root's own line included.
func (r *Repository) RebuildEvent(ctx context.Context, userID, eventID int64, occurredAt time.Time, description string, pending bool, children []core.Posting) error {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		// A posting-only root carries the event's single line itself. Copy
		// that line into a void child before the demotion below wipes the
		// root's monetary fields, so the superseded amount stays on record.
		_, err := tx.ExecContext(ctx,
			`INSERT INTO postings (user_id, parent_id, is_posting, kind, occurred_at, description,
			                       amount, wallet_id, fund_id, income_pull, pending, status)
			 SELECT user_id, id, is_posting, kind, occurred_at, description,
			        amount, wallet_id, fund_id, income_pull, pending, ?
			 FROM postings
			 WHERE id = ? AND user_id = ? AND parent_id IS NULL AND status = 'active' AND is_posting = 1`,
			core.StatusVoid, eventID, userID)
		if err != nil {
			return fmt.Errorf("void rebuilt root line: %w", err)
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE postings
			 SET occurred_at = ?, description = ?, pending = ?,
			     is_posting = 0, amount = '0', wallet_id = NULL, fund_id = NULL, income_pull = NULL
			 WHERE id = ? AND user_id = ? AND parent_id IS NULL AND status = 'active'`,
			occurredAt.UTC(), description, pending, eventID, userID)
		if err != nil {
			return fmt.Errorf("rebuild event root: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rebuild event rows: %w", err)
		}
		if n == 0 {
			return core.ErrNotFound
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE postings SET status = ? WHERE parent_id = ? AND user_id = ? AND status = 'active'`,
			core.StatusVoid, eventID, userID)
		if err != nil {
			return fmt.Errorf("void event children: %w", err)
		}

		for _, c := range children {
			c.ParentID = &eventID
			if _, err := insertPosting(ctx, tx, c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Event rebuilt",
		"event_id", eventID, "user_id", userID, "children", len(children))
	return nil
}

// MarkEventDeleted soft-deletes the event and all its children. Rows are
// kept for audit; balance queries exclude them automatically.
func (r *Repository) MarkEventDeleted(ctx context.Context, userID, eventID int64) error {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE postings SET status = ?
			 WHERE id = ? AND user_id = ? AND parent_id IS NULL AND status = 'active'`,
			core.StatusDeleted, eventID, userID)
		if err != nil {
			return fmt.Errorf("delete event: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete event rows: %w", err)
		}
		if n == 0 {
			return core.ErrNotFound
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE postings SET status = ? WHERE parent_id = ? AND user_id = ? AND status = 'active'`,
			core.StatusDeleted, eventID, userID)
		if err != nil {
			return fmt.Errorf("delete event children: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Event deleted", "event_id", eventID, "user_id", userID)
	return nil
}

// ClearAllPending marks every pending posting of the user cleared and
// returns how many rows changed.
func (r *Repository) ClearAllPending(ctx context.Context, userID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE postings SET pending = 0 WHERE user_id = ? AND pending = 1 AND status = 'active'`,
		userID)
	if err != nil {
		return 0, fmt.Errorf("clear pending: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear pending rows: %w", err)
	}

	slog.InfoContext(ctx, "Pending postings cleared", "user_id", userID, "count", n)
	return n, nil
}

// ---- aggregates ----

// asOfClause appends an occurred_at cutoff when asOf is set.
func asOfClause(asOf *time.Time, args []any) (string, []any) {
	if asOf == nil {
		return "", args
	}
	return " AND occurred_at <= ?", append(args, asOf.UTC())
}

// excludeEventClause removes one event's rows (root and children) from an
// aggregate, used when recomputing balances during an edit of that event.
func excludeEventClause(eventID *int64, args []any) (string, []any) {
	if eventID == nil {
		return "", args
	}
	return " AND id != ? AND (parent_id IS NULL OR parent_id != ?)", append(args, *eventID, *eventID)
}

// WalletRawBalance sums active postings attributed to the wallet, plus its
// opening amount, in both the cleared and with-pending views.
func (r *Repository) WalletRawBalance(ctx context.Context, userID, walletID int64, asOf *time.Time) (core.Balance, error) {
	w, err := r.GetWallet(ctx, userID, walletID)
	if err != nil {
		return core.Balance{}, err
	}

	query := `SELECT amount, pending FROM postings
	          WHERE user_id = ? AND wallet_id = ? AND is_posting = 1 AND status = 'active'`
	args := []any{userID, walletID}
	clause, args := asOfClause(asOf, args)

	sum, err := sumAmounts(ctx, r.db, query+clause, args...)
	if err != nil {
		return core.Balance{}, err
	}
	return sum.AddBoth(w.OpeningAmount), nil
}

// FundRawBalance is the fund-side counterpart of WalletRawBalance.
// excludeEvent removes one event's postings from the sum.
func (r *Repository) FundRawBalance(ctx context.Context, userID, fundID int64, asOf *time.Time, excludeEvent *int64) (core.Balance, error) {
	f, err := r.GetFund(ctx, userID, fundID)
	if err != nil {
		return core.Balance{}, err
	}

	query := `SELECT amount, pending FROM postings
	          WHERE user_id = ? AND fund_id = ? AND is_posting = 1 AND status = 'active'`
	args := []any{userID, fundID}
	clause, args := asOfClause(asOf, args)
	query += clause
	clause, args = excludeEventClause(excludeEvent, args)

	sum, err := sumAmounts(ctx, r.db, query+clause, args...)
	if err != nil {
		return core.Balance{}, err
	}
	return sum.AddBoth(f.OpeningAmount), nil
}

// FundDeficit returns the fund's outstanding overdraft debt: the net sum of
// its deficit-kind postings. Corrections push it up, repayments bring it back
// toward zero.
func (r *Repository) FundDeficit(ctx context.Context, userID, fundID int64, excludeEvent *int64) (core.Balance, error) {
	query := `SELECT amount, pending FROM postings
	          WHERE user_id = ? AND fund_id = ? AND kind = 'deficit' AND is_posting = 1 AND status = 'active'`
	args := []any{userID, fundID}
	clause, args := excludeEventClause(excludeEvent, args)

	return sumAmounts(ctx, r.db, query+clause, args...)
}

// ListWalletBalances returns raw balances for every live wallet of the user.
func (r *Repository) ListWalletBalances(ctx context.Context, userID int64, asOf *time.Time) ([]core.WalletBalance, error) {
	wallets, err := r.ListWallets(ctx, userID)
	if err != nil {
		return nil, err
	}

	sums, err := r.groupedSums(ctx, userID, "wallet_id", asOf)
	if err != nil {
		return nil, err
	}

	out := make([]core.WalletBalance, len(wallets))
	for i, w := range wallets {
		out[i] = core.WalletBalance{Wallet: w, Raw: sums[w.ID].AddBoth(w.OpeningAmount)}
	}
	return out, nil
}

// ListFundBalances returns raw balances for every live fund of the user. The
// display transform is the caller's business.
func (r *Repository) ListFundBalances(ctx context.Context, userID int64, asOf *time.Time) ([]core.FundBalance, error) {
	funds, err := r.ListFunds(ctx, userID)
	if err != nil {
		return nil, err
	}

	sums, err := r.groupedSums(ctx, userID, "fund_id", asOf)
	if err != nil {
		return nil, err
	}

	out := make([]core.FundBalance, len(funds))
	for i, f := range funds {
		out[i] = core.FundBalance{Fund: f, Raw: sums[f.ID].AddBoth(f.OpeningAmount)}
	}
	return out, nil
}

func (r *Repository) groupedSums(ctx context.Context, userID int64, column string, asOf *time.Time) (map[int64]core.Balance, error) {
	query := `SELECT ` + column + `, amount, pending FROM postings
	          WHERE user_id = ? AND ` + column + ` IS NOT NULL AND is_posting = 1 AND status = 'active'`
	args := []any{userID}
	clause, args := asOfClause(asOf, args)

	rows, err := r.db.QueryContext(ctx, query+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("grouped sums: %w", err)
	}
	defer rows.Close()

	sums := make(map[int64]core.Balance)
	for rows.Next() {
		var (
			id      int64
			amount  string
			pending bool
		)
		if err := rows.Scan(&id, &amount, &pending); err != nil {
			return nil, fmt.Errorf("scan grouped sum: %w", err)
		}
		d, err := scanDecimal(amount)
		if err != nil {
			return nil, err
		}
		sums[id] = sums[id].Add(d, pending)
	}
	return sums, rows.Err()
}

// LedgerTotals computes the user's whole-ledger totals from the wallet view
// and the fund view. On a consistent ledger the two are equal; soft-deleted
// wallets and funds are included since their net contribution is zero by the
// delete invariant.
func (r *Repository) LedgerTotals(ctx context.Context, userID int64) (walletTotal, fundTotal core.Balance, err error) {
	walletTotal, err = r.sideTotal(ctx, userID, "wallets", "wallet_id")
	if err != nil {
		return core.Balance{}, core.Balance{}, err
	}
	fundTotal, err = r.sideTotal(ctx, userID, "funds", "fund_id")
	if err != nil {
		return core.Balance{}, core.Balance{}, err
	}
	return walletTotal, fundTotal, nil
}

func (r *Repository) sideTotal(ctx context.Context, userID int64, table, column string) (core.Balance, error) {
	total, err := sumAmounts(ctx, r.db,
		`SELECT amount, pending FROM postings
		 WHERE user_id = ? AND `+column+` IS NOT NULL AND is_posting = 1 AND status = 'active'`,
		userID)
	if err != nil {
		return core.Balance{}, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT opening_amount FROM `+table+` WHERE user_id = ?`, userID)
	if err != nil {
		return core.Balance{}, fmt.Errorf("sum %s openings: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var opening string
		if err := rows.Scan(&opening); err != nil {
			return core.Balance{}, fmt.Errorf("scan opening: %w", err)
		}
		d, err := scanDecimal(opening)
		if err != nil {
			return core.Balance{}, err
		}
		total = total.AddBoth(d)
	}
	return total, rows.Err()
}
