package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/storage/memory"
)

func newSummaryFixture(t *testing.T) (*memory.Store, *SummaryService, *TransactionService, core.Category, core.Category) {
	t.Helper()
	store := memory.New()
	food := seedCategory(t, store, 1, "Food", core.Expense)
	salary := seedCategory(t, store, 1, "Salary", core.Income)
	summaries := NewSummaryService(store, store, store, cache.NewLRUCache[Dashboard](100, time.Hour))
	txs := NewTransactionService(store, store, nil, summaries)
	return store, summaries, txs, food, salary
}

func TestSummaryService_MonthSummary(t *testing.T) {
	ctx := context.Background()
	store, summaries, txs, food, salary := newSummaryFixture(t)

	add := func(typ string, cents int64, cat core.Category, d time.Time) {
		t.Helper()
		if _, err := txs.Create(ctx, 1, TransactionInput{Type: typ, Amount: core.Money{Cents: cents}, CategoryID: cat.ID, Date: d}); err != nil {
			t.Fatal(err)
		}
	}
	add("income", 500000, salary, date(2024, 3, 1))
	add("expense", 12000, food, date(2024, 3, 3))
	add("expense", 8000, food, date(2024, 3, 31))
	add("expense", 99999, food, date(2024, 4, 1)) // next month
	if _, err := store.UpsertBudget(ctx, core.Budget{UserID: 1, CategoryID: food.ID, Month: 3, Year: 2024, Limit: core.Money{Cents: 15000}}); err != nil {
		t.Fatal(err)
	}

	d, err := summaries.MonthSummary(ctx, 1, 2024, 3)
	if err != nil {
		t.Fatal(err)
	}
	if d.Income.Cents != 500000 || d.Expense.Cents != 20000 || d.Balance.Cents != 480000 {
		t.Errorf("totals = %v / %v / %v", d.Income, d.Expense, d.Balance)
	}
	if len(d.ByCategory) != 1 || d.ByCategory[0].Name != "Food" || d.ByCategory[0].Amount.Cents != 20000 {
		t.Errorf("ByCategory = %+v", d.ByCategory)
	}
	if len(d.Budgets) != 1 || d.Budgets[0].Spent.Cents != 20000 || d.Budgets[0].CategoryName != "Food" {
		t.Errorf("Budgets = %+v", d.Budgets)
	}
	// Recent spans months, newest first.
	if len(d.Recent) != 4 || !d.Recent[0].Date.Equal(date(2024, 4, 1)) {
		t.Errorf("Recent = %+v", d.Recent)
	}

	if _, err := summaries.MonthSummary(ctx, 1, 2024, 13); !errors.Is(err, core.ErrInvalidMonth) {
		t.Errorf("MonthSummary(month 13) error = %v", err)
	}
}

func TestSummaryService_CacheInvalidatedOnWrite(t *testing.T) {
	ctx := context.Background()
	store, summaries, txs, food, _ := newSummaryFixture(t)

	first, err := summaries.MonthSummary(ctx, 1, 2024, 3)
	if err != nil {
		t.Fatal(err)
	}
	if first.Expense.Cents != 0 {
		t.Fatalf("empty month expense = %v", first.Expense)
	}

	// A write that bypasses the service is invisible until invalidated.
	if _, err := store.CreateTransaction(ctx, core.Transaction{UserID: 1, Type: core.Expense, Amount: core.Money{Cents: 10}, CategoryID: food.ID, Date: date(2024, 3, 9)}); err != nil {
		t.Fatal(err)
	}
	if cached, _ := summaries.MonthSummary(ctx, 1, 2024, 3); cached.Expense.Cents != 0 {
		t.Errorf("expected cached summary, got expense %v", cached.Expense)
	}

	// A write in another month still invalidates: recent covers all months.
	if _, err := txs.Create(ctx, 1, TransactionInput{Type: "expense", Amount: core.Money{Cents: 5}, CategoryID: food.ID, Date: date(2024, 7, 1)}); err != nil {
		t.Fatal(err)
	}
	fresh, err := summaries.MonthSummary(ctx, 1, 2024, 3)
	if err != nil {
		t.Fatal(err)
	}
	if fresh.Expense.Cents != 10 || len(fresh.Recent) != 2 {
		t.Errorf("after invalidation: expense %v, recent %d", fresh.Expense, len(fresh.Recent))
	}
}

// writeDuringRead commits a transaction through the service the first time
// the summary reads the month, racing the cache fill.
type writeDuringRead struct {
	*memory.Store
	write func()
	once  bool
}

func (r *writeDuringRead) TransactionsBetween(ctx context.Context, userID int64, from, to time.Time) ([]core.Transaction, error) {
	txs, err := r.Store.TransactionsBetween(ctx, userID, from, to)
	if !r.once {
		r.once = true
		r.write()
	}
	return txs, err
}

func TestSummaryService_WriteDuringComputeIsNotCachedStale(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	food := seedCategory(t, store, 1, "Food", core.Expense)
	repo := &writeDuringRead{Store: store}
	summaries := NewSummaryService(repo, store, store, cache.NewLRUCache[Dashboard](100, time.Hour))
	txs := NewTransactionService(store, store, nil, summaries)
	repo.write = func() {
		if _, err := txs.Create(ctx, 1, TransactionInput{Type: "expense", Amount: core.Money{Cents: 1000}, CategoryID: food.ID, Date: date(2024, 3, 5)}); err != nil {
			t.Fatal(err)
		}
	}

	// The first result predates the write; it must not stick in the cache.
	if _, err := summaries.MonthSummary(ctx, 1, 2024, 3); err != nil {
		t.Fatal(err)
	}
	d, err := summaries.MonthSummary(ctx, 1, 2024, 3)
	if err != nil {
		t.Fatal(err)
	}
	if d.Expense.Cents != 1000 {
		t.Errorf("expense = %d, want 1000", d.Expense.Cents)
	}

	// Without interleaved writes the result is cached again.
	if _, err := store.CreateTransaction(ctx, core.Transaction{UserID: 1, Type: core.Expense, Amount: core.Money{Cents: 1}, CategoryID: food.ID, Date: date(2024, 3, 6)}); err != nil {
		t.Fatal(err)
	}
	if cached, _ := summaries.MonthSummary(ctx, 1, 2024, 3); cached.Expense.Cents != 1000 {
		t.Errorf("expected cached expense 1000, got %d", cached.Expense.Cents)
	}
}

func TestSummaryService_HandleTransactionEvent(t *testing.T) {
	ctx := context.Background()
	store, summaries, _, food, _ := newSummaryFixture(t)

	if _, err := summaries.MonthSummary(ctx, 1, 2024, 3); err != nil {
		t.Fatal(err)
	}
	// Simulates the worker process writing a generated transaction.
	tx, _ := store.CreateTransaction(ctx, core.Transaction{UserID: 1, Type: core.Expense, Amount: core.Money{Cents: 77}, CategoryID: food.ID, Date: date(2024, 3, 15), RecurringGenerated: true})

	if err := summaries.HandleTransactionEvent(ctx, amqp.NewTransactionEvent(amqp.TransactionCreated, tx)); err != nil {
		t.Fatal(err)
	}
	d, _ := summaries.MonthSummary(ctx, 1, 2024, 3)
	if d.Expense.Cents != 77 {
		t.Errorf("expense after event = %v, want 0.77", d.Expense)
	}
}

func TestSummaryService_Trend(t *testing.T) {
	ctx := context.Background()
	_, summaries, txs, food, salary := newSummaryFixture(t)

	for _, in := range []TransactionInput{
		{Type: "expense", Amount: core.Money{Cents: 100}, CategoryID: food.ID, Date: date(2024, 3, 1).Add(10 * time.Hour)},
		{Type: "expense", Amount: core.Money{Cents: 50}, CategoryID: food.ID, Date: date(2024, 3, 1).Add(23 * time.Hour)},
		{Type: "income", Amount: core.Money{Cents: 900}, CategoryID: salary.ID, Date: date(2024, 3, 3)},
		{Type: "income", Amount: core.Money{Cents: 1}, CategoryID: salary.ID, Date: date(2024, 3, 4)},
	} {
		if _, err := txs.Create(ctx, 1, in); err != nil {
			t.Fatal(err)
		}
	}

	points, err := summaries.Trend(ctx, 1, date(2024, 3, 1), date(2024, 3, 3))
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 3 {
		t.Fatalf("points = %d, want 3", len(points))
	}
	if points[0].Expense.Cents != 150 || points[1].Expense.Cents != 0 || points[2].Income.Cents != 900 {
		t.Errorf("points = %+v", points)
	}

	tests := []struct {
		name     string
		from, to time.Time
	}{
		{"reversed", date(2024, 3, 3), date(2024, 3, 1)},
		{"missing from", time.Time{}, date(2024, 3, 1)},
		{"too long", date(2020, 1, 1), date(2024, 1, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := summaries.Trend(ctx, 1, tt.from, tt.to); !core.IsValidation(err) {
				t.Errorf("Trend() error = %v, want validation error", err)
			}
		})
	}
}
