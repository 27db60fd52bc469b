package storage

import (
	"context"
	"fmt"
	"time"

	"fintrack/internal/core"
)

const ruleColumns = `id, user_id, type, amount_cents, category_id, frequency, interval_count,
	next_run_at, is_active, note, created_at`

func scanRule(row interface{ Scan(...any) error }) (core.RecurringRule, error) {
	var r core.RecurringRule
	var typ, freq string
	var next, created int64
	var active int
	err := row.Scan(&r.ID, &r.UserID, &typ, &r.Amount.Cents, &r.CategoryID, &freq, &r.Interval,
		&next, &active, &r.Note, &created)
	if err != nil {
		return core.RecurringRule{}, err
	}
	r.Type = core.TransactionType(typ)
	r.Frequency = core.Frequency(freq)
	r.NextRunAt = fromMillis(next)
	r.IsActive = active != 0
	r.CreatedAt = fromMillis(created)
	return r, nil
}

func (r *SQLiteRepository) CreateRule(ctx context.Context, rule core.RecurringRule) (core.RecurringRule, error) {
	rule.CreatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO recurring_rules (user_id, type, amount_cents, category_id, frequency, interval_count,
		 next_run_at, is_active, note, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.UserID, string(rule.Type), rule.Amount.Cents, rule.CategoryID, string(rule.Frequency), rule.Interval,
		toMillis(rule.NextRunAt), boolToInt(rule.IsActive), rule.Note, toMillis(rule.CreatedAt))
	if err != nil {
		return core.RecurringRule{}, fmt.Errorf("insert recurring rule: %w", err)
	}
	if rule.ID, err = res.LastInsertId(); err != nil {
		return core.RecurringRule{}, fmt.Errorf("recurring rule id: %w", err)
	}
	rule.NextRunAt = fromMillis(toMillis(rule.NextRunAt))
	rule.CreatedAt = fromMillis(toMillis(rule.CreatedAt))
	return rule, nil
}

func (r *SQLiteRepository) GetRule(ctx context.Context, userID, id int64) (core.RecurringRule, error) {
	rule, err := scanRule(r.db.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM recurring_rules WHERE id = ? AND user_id = ?`, id, userID))
	if err != nil {
		return core.RecurringRule{}, notFound(err)
	}
	return rule, nil
}

func (r *SQLiteRepository) ListRules(ctx context.Context, userID int64) ([]core.RecurringRule, error) {
	return r.queryRules(ctx,
		`SELECT `+ruleColumns+` FROM recurring_rules WHERE user_id = ? ORDER BY id DESC`, userID)
}

// ToggleRule writes only is_active so it cannot clobber a concurrent
// schedule update.
func (r *SQLiteRepository) ToggleRule(ctx context.Context, userID, id int64) (core.RecurringRule, error) {
	rule, err := scanRule(r.db.QueryRowContext(ctx,
		`UPDATE recurring_rules SET is_active = 1 - is_active WHERE id = ? AND user_id = ?
		 RETURNING `+ruleColumns, id, userID))
	if err != nil {
		return core.RecurringRule{}, notFound(err)
	}
	return rule, nil
}

func (r *SQLiteRepository) DeleteRule(ctx context.Context, userID, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM recurring_rules WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete recurring rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) FindDueRules(ctx context.Context, now time.Time) ([]core.RecurringRule, error) {
	return r.queryRules(ctx,
		`SELECT `+ruleColumns+` FROM recurring_rules WHERE is_active = 1 AND next_run_at <= ? ORDER BY id`,
		toMillis(now))
}

// SaveRuleSchedule writes only next_run_at.
func (r *SQLiteRepository) SaveRuleSchedule(ctx context.Context, rule core.RecurringRule) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE recurring_rules SET next_run_at = ? WHERE id = ?`, toMillis(rule.NextRunAt), rule.ID)
	if err != nil {
		return fmt.Errorf("save rule schedule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) queryRules(ctx context.Context, query string, args ...any) ([]core.RecurringRule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recurring rules: %w", err)
	}
	defer rows.Close()

	out := []core.RecurringRule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recurring rule: %w", err)
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}
