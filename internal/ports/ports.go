package ports

import (
	"context"
	"time"

	"fintrack/internal/core"
)

// Ports for outbound adapters. Every read and write is scoped to the owning
// user; lookups of another user's record return core.ErrNotFound.
type (
	// RuleStore is what the recurring scheduler needs from storage.
	RuleStore interface {
		// FindDueRules returns active rules whose next run is at or before now.
		FindDueRules(ctx context.Context, now time.Time) ([]core.RecurringRule, error)
		// SaveRuleSchedule persists rule.NextRunAt and nothing else.
		SaveRuleSchedule(ctx context.Context, rule core.RecurringRule) error
	}

	// TransactionSink accepts transactions materialized by the scheduler.
	TransactionSink interface {
		InsertTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error)
	}

	RuleRepository interface {
		RuleStore
		CreateRule(ctx context.Context, rule core.RecurringRule) (core.RecurringRule, error)
		GetRule(ctx context.Context, userID, id int64) (core.RecurringRule, error)
		ListRules(ctx context.Context, userID int64) ([]core.RecurringRule, error)
		// ToggleRule flips is_active in place and returns the updated rule.
		ToggleRule(ctx context.Context, userID, id int64) (core.RecurringRule, error)
		DeleteRule(ctx context.Context, userID, id int64) error
	}

	TransactionRepository interface {
		CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error)
		GetTransaction(ctx context.Context, userID, id int64) (core.Transaction, error)
		UpdateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error)
		DeleteTransaction(ctx context.Context, userID, id int64) error
		// ListTransactions returns one page, newest first, and the total match count.
		ListTransactions(ctx context.Context, f core.TransactionFilter) ([]core.Transaction, int, error)
		// TransactionsBetween returns the user's transactions with from <= date < to.
		TransactionsBetween(ctx context.Context, userID int64, from, to time.Time) ([]core.Transaction, error)
		RecentTransactions(ctx context.Context, userID int64, limit int) ([]core.Transaction, error)
	}

	CategoryRepository interface {
		ListCategories(ctx context.Context, userID int64) ([]core.Category, error)
		GetCategory(ctx context.Context, userID, id int64) (core.Category, error)
		// CreateCategory fails with core.ErrConflict on a duplicate (user, name, type).
		CreateCategory(ctx context.Context, c core.Category) (core.Category, error)
		// EnsureCategory creates c unless (user, name, type) already exists.
		EnsureCategory(ctx context.Context, c core.Category) (created bool, err error)
		DeleteCategory(ctx context.Context, userID, id int64) error
	}

	BudgetRepository interface {
		// UpsertBudget writes the limit for (user, category, month, year).
		UpsertBudget(ctx context.Context, b core.Budget) (core.Budget, error)
		ListBudgets(ctx context.Context, userID int64, month, year int) ([]core.Budget, error)
	}

	UserRepository interface {
		// CreateUser fails with core.ErrConflict when the email is taken.
		CreateUser(ctx context.Context, u core.User) (core.User, error)
		GetUserByEmail(ctx context.Context, email string) (core.User, error)
		GetUserByID(ctx context.Context, id int64) (core.User, error)
	}

	// Repository is the full storage surface a backend provides.
	Repository interface {
		RuleRepository
		TransactionRepository
		CategoryRepository
		BudgetRepository
		UserRepository
		Ping(ctx context.Context) error
		Close() error
	}
)
