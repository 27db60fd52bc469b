package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fintrack/internal/core"
)

const transactionSelect = `SELECT t.id, t.user_id, t.type, t.amount_cents, t.category_id, COALESCE(c.name, ''),
	t.date, t.note, t.recurring_generated, COALESCE(t.recurring_rule_id, 0), t.created_at
	FROM transactions t
	LEFT JOIN categories c ON c.id = t.category_id AND c.user_id = t.user_id`

func scanTransaction(row interface{ Scan(...any) error }) (core.Transaction, error) {
	var tx core.Transaction
	var typ string
	var date, created int64
	var generated int
	err := row.Scan(&tx.ID, &tx.UserID, &typ, &tx.Amount.Cents, &tx.CategoryID, &tx.CategoryName,
		&date, &tx.Note, &generated, &tx.RecurringRuleID, &created)
	if err != nil {
		return core.Transaction{}, err
	}
	tx.Type = core.TransactionType(typ)
	tx.Date = fromMillis(date)
	tx.CreatedAt = fromMillis(created)
	tx.RecurringGenerated = generated != 0
	return tx, nil
}

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	var ruleID any
	if tx.RecurringRuleID != 0 {
		ruleID = tx.RecurringRuleID
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (user_id, type, amount_cents, category_id, date, note,
		 recurring_generated, recurring_rule_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.UserID, string(tx.Type), tx.Amount.Cents, tx.CategoryID, toMillis(tx.Date), tx.Note,
		boolToInt(tx.RecurringGenerated), ruleID, toMillis(time.Now()))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction id: %w", err)
	}
	return r.GetTransaction(ctx, tx.UserID, id)
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, userID, id int64) (core.Transaction, error) {
	tx, err := scanTransaction(r.db.QueryRowContext(ctx,
		transactionSelect+` WHERE t.id = ? AND t.user_id = ?`, id, userID))
	if err != nil {
		return core.Transaction{}, notFound(err)
	}
	return tx, nil
}

func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET type = ?, amount_cents = ?, category_id = ?, date = ?, note = ?
		 WHERE id = ? AND user_id = ?`,
		string(tx.Type), tx.Amount.Cents, tx.CategoryID, toMillis(tx.Date), tx.Note, tx.ID, tx.UserID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Transaction{}, core.ErrNotFound
	}
	return r.GetTransaction(ctx, tx.UserID, tx.ID)
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, userID, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, f core.TransactionFilter) ([]core.Transaction, int, error) {
	f = f.Normalize()
	where := []string{"t.user_id = ?"}
	args := []any{f.UserID}
	if f.Type != "" {
		where = append(where, "t.type = ?")
		args = append(args, string(f.Type))
	}
	if f.CategoryID != 0 {
		where = append(where, "t.category_id = ?")
		args = append(args, f.CategoryID)
	}
	if !f.From.IsZero() {
		where = append(where, "t.date >= ?")
		args = append(args, toMillis(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "t.date <= ?")
		args = append(args, toMillis(f.To))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		where = append(where, `LOWER(t.note) LIKE '%' || LOWER(?) || '%' ESCAPE '\'`)
		args = append(args, escapeLike(s))
	}
	clause := " WHERE " + strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions t`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	txs, err := r.queryTransactions(ctx,
		transactionSelect+clause+` ORDER BY t.date DESC, t.id DESC LIMIT ? OFFSET ?`,
		append(args, f.Limit, f.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}

func (r *SQLiteRepository) TransactionsBetween(ctx context.Context, userID int64, from, to time.Time) ([]core.Transaction, error) {
	return r.queryTransactions(ctx,
		transactionSelect+` WHERE t.user_id = ? AND t.date >= ? AND t.date < ? ORDER BY t.date DESC, t.id DESC`,
		userID, toMillis(from), toMillis(to))
}

func (r *SQLiteRepository) RecentTransactions(ctx context.Context, userID int64, limit int) ([]core.Transaction, error) {
	return r.queryTransactions(ctx,
		transactionSelect+` WHERE t.user_id = ? ORDER BY t.date DESC, t.id DESC LIMIT ?`, userID, limit)
}

func (r *SQLiteRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	out := []core.Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}
