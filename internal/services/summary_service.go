package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/cache"
	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/ports"
)

const (
	RecentLimit   = 8
	MaxTrendDays  = 366
	summaryPrefix = "summary:"
)

// Dashboard is the month overview shown on the landing page.
type Dashboard struct {
	core.MonthSummary
	Budgets []core.BudgetStatus
	Recent  []core.Transaction
}

// SummaryService computes dashboard aggregates. Month summaries are cached
// per user; any transaction or budget change for that user drops them all,
// since the recent list is not bound to a month.
type SummaryService struct {
	txs        ports.TransactionRepository
	budgets    ports.BudgetRepository
	categories ports.CategoryRepository
	cache      cache.Cache[Dashboard]

	// generations counts invalidations per user. A summary computed under an
	// older generation is returned but never cached.
	mu          sync.Mutex
	generations map[int64]uint64
}

// NewSummaryService wires the service. c may be nil to disable caching.
func NewSummaryService(txs ports.TransactionRepository, budgets ports.BudgetRepository, categories ports.CategoryRepository, c cache.Cache[Dashboard]) *SummaryService {
	return &SummaryService{
		txs:         txs,
		budgets:     budgets,
		categories:  categories,
		cache:       c,
		generations: map[int64]uint64{},
	}
}

func (s *SummaryService) generation(userID int64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[userID]
}

// storeIfCurrent caches d unless userID was invalidated since gen was read.
func (s *SummaryService) storeIfCurrent(userID int64, gen uint64, key string, d Dashboard) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generations[userID] != gen {
		return false
	}
	s.cache.Set(key, d)
	return true
}

func userPrefix(userID int64) string {
	return fmt.Sprintf("%s%d:", summaryPrefix, userID)
}

func summaryKey(userID int64, year, month int) string {
	return fmt.Sprintf("%s%04d-%02d", userPrefix(userID), year, month)
}

func (s *SummaryService) MonthSummary(ctx context.Context, userID int64, year, month int) (Dashboard, error) {
	start, end, err := core.MonthRange(year, month)
	if err != nil {
		return Dashboard{}, err
	}

	key := summaryKey(userID, year, month)
	gen := s.generation(userID)
	if s.cache != nil {
		if d, ok := s.cache.Get(key); ok {
			return d, nil
		}
	}

	txs, err := s.txs.TransactionsBetween(ctx, userID, start, end)
	if err != nil {
		return Dashboard{}, fmt.Errorf("load month transactions: %w", err)
	}
	budgets, err := s.budgets.ListBudgets(ctx, userID, month, year)
	if err != nil {
		return Dashboard{}, fmt.Errorf("load budgets: %w", err)
	}
	cats, err := s.categories.ListCategories(ctx, userID)
	if err != nil {
		return Dashboard{}, fmt.Errorf("load categories: %w", err)
	}
	names := make(map[int64]string, len(cats))
	for _, c := range cats {
		names[c.ID] = c.Name
	}
	recent, err := s.txs.RecentTransactions(ctx, userID, RecentLimit)
	if err != nil {
		return Dashboard{}, fmt.Errorf("load recent transactions: %w", err)
	}

	d := Dashboard{
		MonthSummary: core.Summarize(year, month, txs),
		Budgets:      core.BudgetStatuses(budgets, names, txs),
		Recent:       recent,
	}
	if s.cache != nil && !s.storeIfCurrent(userID, gen, key, d) {
		slog.DebugContext(ctx, "Skipped caching summary invalidated during computation",
			applog.FieldUserID, userID,
			applog.FieldYear, year,
			applog.FieldMonth, month)
	}
	return d, nil
}

// Trend returns daily income and expense totals for [from, to].
func (s *SummaryService) Trend(ctx context.Context, userID int64, from, to time.Time) ([]core.TrendPoint, error) {
	if from.IsZero() || to.IsZero() {
		return nil, &core.ValidationError{Field: "from", Err: core.ErrInvalidDate}
	}
	if to.Before(from) {
		return nil, &core.ValidationError{Field: "to", Err: fmt.Errorf("%w: before from", core.ErrInvalidDate)}
	}
	if to.Sub(from) > MaxTrendDays*24*time.Hour {
		return nil, &core.ValidationError{Field: "to", Err: fmt.Errorf("%w: range longer than %d days", core.ErrInvalidDate, MaxTrendDays)}
	}

	f, t := from.UTC(), to.UTC()
	startDay := time.Date(f.Year(), f.Month(), f.Day(), 0, 0, 0, 0, time.UTC)
	endDay := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	txs, err := s.txs.TransactionsBetween(ctx, userID, startDay, endDay)
	if err != nil {
		return nil, fmt.Errorf("load trend transactions: %w", err)
	}
	return core.Trend(from, to, txs), nil
}

// InvalidateUser drops every cached summary of userID.
func (s *SummaryService) InvalidateUser(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generations[userID]++
	if s.cache != nil {
		s.cache.DeletePrefix(userPrefix(userID))
	}
}

// HandleTransactionEvent invalidates the summaries touched by a change made
// in another process.
func (s *SummaryService) HandleTransactionEvent(ctx context.Context, evt *amqp.TransactionEvent) error {
	s.InvalidateUser(evt.UserID)
	slog.DebugContext(ctx, "Invalidated summaries from event",
		"event_id", evt.EventID,
		"kind", evt.Kind,
		"user_id", evt.UserID)
	return nil
}
