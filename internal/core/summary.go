package core

import (
	"sort"
	"time"
)

const UncategorizedName = "Uncategorized"

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount Money
}

// MonthSummary is the income/expense picture of a single year+month.
type MonthSummary struct {
	Year       int
	Month      int // 1-12
	Income     Money
	Expense    Money
	Balance    Money
	ByCategory []CategoryAmount // expenses only, largest first
}

// BudgetStatus pairs a budget with what has been spent against it.
type BudgetStatus struct {
	Budget       Budget
	CategoryName string
	Spent        Money
}

// TrendPoint holds the totals of one calendar day.
type TrendPoint struct {
	Date    time.Time
	Income  Money
	Expense Money
}

// Summarize aggregates txs falling inside the given month. Transactions outside
// [start-of-month, start-of-next-month) are ignored, so callers may pass a
// wider set. Expenses without a category name (the category was deleted) are
// grouped under UncategorizedName, keeping ByCategory in sum with Expense.
func Summarize(year, month int, txs []Transaction) MonthSummary {
	s := MonthSummary{Year: year, Month: month, ByCategory: []CategoryAmount{}}
	start, end, err := MonthRange(year, month)
	if err != nil {
		return s
	}

	byCategory := make(map[string]int64)
	for _, tx := range txs {
		d := tx.Date.UTC()
		if d.Before(start) || !d.Before(end) {
			continue
		}
		switch tx.Type {
		case Income:
			s.Income = s.Income.Add(tx.Amount)
		case Expense:
			s.Expense = s.Expense.Add(tx.Amount)
			name := tx.CategoryName
			if name == "" {
				name = UncategorizedName
			}
			byCategory[name] += tx.Amount.Cents
		}
	}
	s.Balance = s.Income.Sub(s.Expense)

	for name, cents := range byCategory {
		s.ByCategory = append(s.ByCategory, CategoryAmount{Name: name, Amount: Money{Cents: cents}})
	}
	// Ties fall back to name so output is stable across map iteration.
	sort.Slice(s.ByCategory, func(i, j int) bool {
		a, b := s.ByCategory[i], s.ByCategory[j]
		if a.Amount.Cents != b.Amount.Cents {
			return a.Amount.Cents > b.Amount.Cents
		}
		return a.Name < b.Name
	})
	return s
}

// BudgetStatuses computes spending per budget from the month's expenses.
func BudgetStatuses(budgets []Budget, categories map[int64]string, txs []Transaction) []BudgetStatus {
	spent := make(map[int64]int64)
	for _, tx := range txs {
		if tx.Type == Expense {
			spent[tx.CategoryID] += tx.Amount.Cents
		}
	}
	out := make([]BudgetStatus, 0, len(budgets))
	for _, b := range budgets {
		out = append(out, BudgetStatus{
			Budget:       b,
			CategoryName: categories[b.CategoryID],
			Spent:        Money{Cents: spent[b.CategoryID]},
		})
	}
	return out
}

// Trend returns one point per day in [from, to], both truncated to UTC days.
// Days without transactions are included with zero totals.
func Trend(from, to time.Time, txs []Transaction) []TrendPoint {
	from = truncateDay(from)
	to = truncateDay(to)
	if to.Before(from) {
		return []TrendPoint{}
	}

	idx := make(map[time.Time]int)
	points := []TrendPoint{}
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		idx[d] = len(points)
		points = append(points, TrendPoint{Date: d})
	}
	for _, tx := range txs {
		i, ok := idx[truncateDay(tx.Date)]
		if !ok {
			continue
		}
		switch tx.Type {
		case Income:
			points[i].Income = points[i].Income.Add(tx.Amount)
		case Expense:
			points[i].Expense = points[i].Expense.Add(tx.Amount)
		}
	}
	return points
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
