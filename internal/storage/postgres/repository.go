// Package postgres implements the storage ports on PostgreSQL through a
// pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fintrack/internal/core"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type Repository struct {
	pool *pgxpool.Pool
}

// New connects to databaseURL, migrates the schema and returns a ready repository.
func New(ctx context.Context, databaseURL string) (*Repository, error) {
	if err := RunMigrations(databaseURL); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	slog.InfoContext(ctx, "Postgres repository opened", "max_conns", pool.Config().MaxConns)
	return &Repository{pool: pool}, nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ErrNotFound
	}
	return err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// Users

const userColumns = `id, name, email, password_hash, created_at`

func scanUser(row pgx.Row) (core.User, error) {
	var u core.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		return core.User{}, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

func (r *Repository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	created, err := scanUser(r.pool.QueryRow(ctx,
		`INSERT INTO users (name, email, password_hash) VALUES ($1, $2, $3) RETURNING `+userColumns,
		u.Name, u.Email, u.PasswordHash))
	if err != nil {
		if isUniqueViolation(err) {
			return core.User{}, core.ErrConflict
		}
		return core.User{}, fmt.Errorf("insert user: %w", err)
	}
	return created, nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(strings.TrimSpace(email))))
	if err != nil {
		return core.User{}, notFound(err)
	}
	return u, nil
}

func (r *Repository) GetUserByID(ctx context.Context, id int64) (core.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return core.User{}, notFound(err)
	}
	return u, nil
}

// Categories

const categoryColumns = `id, user_id, name, type, is_default`

func scanCategory(row pgx.Row) (core.Category, error) {
	var c core.Category
	var typ string
	if err := row.Scan(&c.ID, &c.UserID, &c.Name, &typ, &c.IsDefault); err != nil {
		return core.Category{}, err
	}
	c.Type = core.TransactionType(typ)
	return c, nil
}

func (r *Repository) ListCategories(ctx context.Context, userID int64) ([]core.Category, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE user_id = $1 ORDER BY type, name`, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	out := []core.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) GetCategory(ctx context.Context, userID, id int64) (core.Category, error) {
	c, err := scanCategory(r.pool.QueryRow(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		return core.Category{}, notFound(err)
	}
	return c, nil
}

func (r *Repository) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO categories (user_id, name, type, is_default) VALUES ($1, $2, $3, $4) RETURNING id`,
		c.UserID, c.Name, string(c.Type), c.IsDefault).Scan(&c.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return core.Category{}, core.ErrConflict
		}
		return core.Category{}, fmt.Errorf("insert category: %w", err)
	}
	return c, nil
}

func (r *Repository) EnsureCategory(ctx context.Context, c core.Category) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO categories (user_id, name, type, is_default) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, name, type) DO NOTHING`,
		c.UserID, c.Name, string(c.Type), c.IsDefault)
	if err != nil {
		return false, fmt.Errorf("ensure category: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) DeleteCategory(ctx context.Context, userID, id int64) error {
	c, err := r.GetCategory(ctx, userID, id)
	if err != nil {
		return err
	}
	if c.IsDefault {
		return core.ErrDefaultCategory
	}
	if _, err := r.pool.Exec(ctx,
		`DELETE FROM categories WHERE id = $1 AND user_id = $2 AND NOT is_default`, id, userID); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return nil
}

// Budgets

func (r *Repository) UpsertBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO budgets (user_id, category_id, month, year, limit_cents) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id, category_id, month, year) DO UPDATE SET limit_cents = EXCLUDED.limit_cents
		 RETURNING id`,
		b.UserID, b.CategoryID, b.Month, b.Year, b.Limit.Cents).Scan(&b.ID)
	if err != nil {
		return core.Budget{}, fmt.Errorf("upsert budget: %w", err)
	}
	return b, nil
}

func (r *Repository) ListBudgets(ctx context.Context, userID int64, month, year int) ([]core.Budget, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, category_id, month, year, limit_cents FROM budgets
		 WHERE user_id = $1 AND month = $2 AND year = $3 ORDER BY id`, userID, month, year)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	out := []core.Budget{}
	for rows.Next() {
		var b core.Budget
		if err := rows.Scan(&b.ID, &b.UserID, &b.CategoryID, &b.Month, &b.Year, &b.Limit.Cents); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Transactions

const transactionSelect = `SELECT t.id, t.user_id, t.type, t.amount_cents, t.category_id, COALESCE(c.name, ''),
	t.date, t.note, t.recurring_generated, COALESCE(t.recurring_rule_id, 0), t.created_at
	FROM transactions t
	LEFT JOIN categories c ON c.id = t.category_id AND c.user_id = t.user_id`

func scanTransaction(row pgx.Row) (core.Transaction, error) {
	var tx core.Transaction
	var typ string
	err := row.Scan(&tx.ID, &tx.UserID, &typ, &tx.Amount.Cents, &tx.CategoryID, &tx.CategoryName,
		&tx.Date, &tx.Note, &tx.RecurringGenerated, &tx.RecurringRuleID, &tx.CreatedAt)
	if err != nil {
		return core.Transaction{}, err
	}
	tx.Type = core.TransactionType(typ)
	tx.Date = tx.Date.UTC()
	tx.CreatedAt = tx.CreatedAt.UTC()
	return tx, nil
}

func (r *Repository) CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	var ruleID *int64
	if tx.RecurringRuleID != 0 {
		ruleID = &tx.RecurringRuleID
	}
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO transactions (user_id, type, amount_cents, category_id, date, note,
		 recurring_generated, recurring_rule_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		tx.UserID, string(tx.Type), tx.Amount.Cents, tx.CategoryID, tx.Date.UTC(), tx.Note,
		tx.RecurringGenerated, ruleID).Scan(&id)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return r.GetTransaction(ctx, tx.UserID, id)
}

func (r *Repository) GetTransaction(ctx context.Context, userID, id int64) (core.Transaction, error) {
	tx, err := scanTransaction(r.pool.QueryRow(ctx,
		transactionSelect+` WHERE t.id = $1 AND t.user_id = $2`, id, userID))
	if err != nil {
		return core.Transaction{}, notFound(err)
	}
	return tx, nil
}

func (r *Repository) UpdateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE transactions SET type = $1, amount_cents = $2, category_id = $3, date = $4, note = $5
		 WHERE id = $6 AND user_id = $7`,
		string(tx.Type), tx.Amount.Cents, tx.CategoryID, tx.Date.UTC(), tx.Note, tx.ID, tx.UserID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.Transaction{}, core.ErrNotFound
	}
	return r.GetTransaction(ctx, tx.UserID, tx.ID)
}

func (r *Repository) DeleteTransaction(ctx context.Context, userID, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM transactions WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *Repository) ListTransactions(ctx context.Context, f core.TransactionFilter) ([]core.Transaction, int, error) {
	f = f.Normalize()
	args := []any{f.UserID}
	where := []string{"t.user_id = $1"}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Type != "" {
		add("t.type = $%d", string(f.Type))
	}
	if f.CategoryID != 0 {
		add("t.category_id = $%d", f.CategoryID)
	}
	if !f.From.IsZero() {
		add("t.date >= $%d", f.From.UTC())
	}
	if !f.To.IsZero() {
		add("t.date <= $%d", f.To.UTC())
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		add("t.note ILIKE '%%' || $%d || '%%'", escapeLike(s))
	}
	clause := " WHERE " + strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transactions t`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	n := len(args)
	txs, err := r.queryTransactions(ctx,
		transactionSelect+clause+fmt.Sprintf(` ORDER BY t.date DESC, t.id DESC LIMIT $%d OFFSET $%d`, n+1, n+2),
		append(args, f.Limit, f.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}

func (r *Repository) TransactionsBetween(ctx context.Context, userID int64, from, to time.Time) ([]core.Transaction, error) {
	return r.queryTransactions(ctx,
		transactionSelect+` WHERE t.user_id = $1 AND t.date >= $2 AND t.date < $3 ORDER BY t.date DESC, t.id DESC`,
		userID, from.UTC(), to.UTC())
}

func (r *Repository) RecentTransactions(ctx context.Context, userID int64, limit int) ([]core.Transaction, error) {
	return r.queryTransactions(ctx,
		transactionSelect+` WHERE t.user_id = $1 ORDER BY t.date DESC, t.id DESC LIMIT $2`, userID, limit)
}

func (r *Repository) queryTransactions(ctx context.Context, query string, args ...any) ([]core.Transaction, error) {
	rows, err := r.pool.Query(ctx, query, args...)
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

// Recurring rules

const ruleColumns = `id, user_id, type, amount_cents, category_id, frequency, interval_count,
	next_run_at, is_active, note, created_at`

func scanRule(row pgx.Row) (core.RecurringRule, error) {
	var rule core.RecurringRule
	var typ, freq string
	err := row.Scan(&rule.ID, &rule.UserID, &typ, &rule.Amount.Cents, &rule.CategoryID, &freq, &rule.Interval,
		&rule.NextRunAt, &rule.IsActive, &rule.Note, &rule.CreatedAt)
	if err != nil {
		return core.RecurringRule{}, err
	}
	rule.Type = core.TransactionType(typ)
	rule.Frequency = core.Frequency(freq)
	rule.NextRunAt = rule.NextRunAt.UTC()
	rule.CreatedAt = rule.CreatedAt.UTC()
	return rule, nil
}

func (r *Repository) CreateRule(ctx context.Context, rule core.RecurringRule) (core.RecurringRule, error) {
	created, err := scanRule(r.pool.QueryRow(ctx,
		`INSERT INTO recurring_rules (user_id, type, amount_cents, category_id, frequency, interval_count,
		 next_run_at, is_active, note)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING `+ruleColumns,
		rule.UserID, string(rule.Type), rule.Amount.Cents, rule.CategoryID, string(rule.Frequency), rule.Interval,
		rule.NextRunAt.UTC(), rule.IsActive, rule.Note))
	if err != nil {
		return core.RecurringRule{}, fmt.Errorf("insert recurring rule: %w", err)
	}
	return created, nil
}

func (r *Repository) GetRule(ctx context.Context, userID, id int64) (core.RecurringRule, error) {
	rule, err := scanRule(r.pool.QueryRow(ctx,
		`SELECT `+ruleColumns+` FROM recurring_rules WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		return core.RecurringRule{}, notFound(err)
	}
	return rule, nil
}

func (r *Repository) ListRules(ctx context.Context, userID int64) ([]core.RecurringRule, error) {
	return r.queryRules(ctx,
		`SELECT `+ruleColumns+` FROM recurring_rules WHERE user_id = $1 ORDER BY id DESC`, userID)
}

func (r *Repository) ToggleRule(ctx context.Context, userID, id int64) (core.RecurringRule, error) {
	rule, err := scanRule(r.pool.QueryRow(ctx,
		`UPDATE recurring_rules SET is_active = NOT is_active WHERE id = $1 AND user_id = $2
		 RETURNING `+ruleColumns, id, userID))
	if err != nil {
		return core.RecurringRule{}, notFound(err)
	}
	return rule, nil
}

func (r *Repository) DeleteRule(ctx context.Context, userID, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM recurring_rules WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete recurring rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *Repository) FindDueRules(ctx context.Context, now time.Time) ([]core.RecurringRule, error) {
	return r.queryRules(ctx,
		`SELECT `+ruleColumns+` FROM recurring_rules WHERE is_active AND next_run_at <= $1 ORDER BY id`,
		now.UTC())
}

func (r *Repository) SaveRuleSchedule(ctx context.Context, rule core.RecurringRule) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE recurring_rules SET next_run_at = $1 WHERE id = $2`, rule.NextRunAt.UTC(), rule.ID)
	if err != nil {
		return fmt.Errorf("save rule schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *Repository) queryRules(ctx context.Context, query string, args ...any) ([]core.RecurringRule, error) {
	rows, err := r.pool.Query(ctx, query, args...)
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
