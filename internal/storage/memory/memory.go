// Package memory is a process-local Repository used by the memory backend
// and by tests. Data is lost on restart.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"fintrack/internal/core"
)

type Store struct {
	mu sync.Mutex

	nextID       int64
	users        map[int64]core.User
	categories   map[int64]core.Category
	transactions map[int64]core.Transaction
	rules        map[int64]core.RecurringRule
	budgets      map[int64]core.Budget

	now func() time.Time
}

func New() *Store {
	return &Store{
		users:        map[int64]core.User{},
		categories:   map[int64]core.Category{},
		transactions: map[int64]core.Transaction{},
		rules:        map[int64]core.RecurringRule{},
		budgets:      map[int64]core.Budget{},
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// Users

func (s *Store) CreateUser(_ context.Context, u core.User) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(strings.TrimSpace(u.Email))
	for _, existing := range s.users {
		if existing.Email == email {
			return core.User{}, core.ErrConflict
		}
	}
	u.ID = s.id()
	u.Email = email
	u.CreatedAt = s.now()
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return core.User{}, core.ErrNotFound
}

func (s *Store) GetUserByID(_ context.Context, id int64) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, core.ErrNotFound
	}
	return u, nil
}

// Categories

func (s *Store) ListCategories(_ context.Context, userID int64) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []core.Category{}
	for _, c := range s.categories {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Store) GetCategory(_ context.Context, userID, id int64) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[id]
	if !ok || c.UserID != userID {
		return core.Category{}, core.ErrNotFound
	}
	return c, nil
}

func (s *Store) CreateCategory(_ context.Context, c core.Category) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findCategory(c) {
		return core.Category{}, core.ErrConflict
	}
	c.ID = s.id()
	s.categories[c.ID] = c
	return c, nil
}

func (s *Store) EnsureCategory(_ context.Context, c core.Category) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findCategory(c) {
		return false, nil
	}
	c.ID = s.id()
	s.categories[c.ID] = c
	return true, nil
}

func (s *Store) findCategory(c core.Category) bool {
	for _, existing := range s.categories {
		if existing.UserID == c.UserID && existing.Type == c.Type && existing.Name == c.Name {
			return true
		}
	}
	return false
}

func (s *Store) DeleteCategory(_ context.Context, userID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[id]
	if !ok || c.UserID != userID {
		return core.ErrNotFound
	}
	if c.IsDefault {
		return core.ErrDefaultCategory
	}
	delete(s.categories, id)
	return nil
}

// Transactions

func (s *Store) CreateTransaction(_ context.Context, tx core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx.ID = s.id()
	tx.Date = tx.Date.UTC()
	tx.CreatedAt = s.now()
	tx.CategoryName = ""
	s.transactions[tx.ID] = tx
	return s.withCategory(tx), nil
}

func (s *Store) GetTransaction(_ context.Context, userID, id int64) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[id]
	if !ok || tx.UserID != userID {
		return core.Transaction{}, core.ErrNotFound
	}
	return s.withCategory(tx), nil
}

func (s *Store) UpdateTransaction(_ context.Context, tx core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.transactions[tx.ID]
	if !ok || existing.UserID != tx.UserID {
		return core.Transaction{}, core.ErrNotFound
	}
	existing.Type = tx.Type
	existing.Amount = tx.Amount
	existing.CategoryID = tx.CategoryID
	existing.Date = tx.Date.UTC()
	existing.Note = tx.Note
	s.transactions[tx.ID] = existing
	return s.withCategory(existing), nil
}

func (s *Store) DeleteTransaction(_ context.Context, userID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[id]
	if !ok || tx.UserID != userID {
		return core.ErrNotFound
	}
	delete(s.transactions, id)
	return nil
}

func (s *Store) ListTransactions(_ context.Context, f core.TransactionFilter) ([]core.Transaction, int, error) {
	f = f.Normalize()
	s.mu.Lock()
	defer s.mu.Unlock()

	search := strings.ToLower(strings.TrimSpace(f.Search))
	var matched []core.Transaction
	for _, tx := range s.transactions {
		switch {
		case tx.UserID != f.UserID:
		case f.Type != "" && tx.Type != f.Type:
		case f.CategoryID != 0 && tx.CategoryID != f.CategoryID:
		case !f.From.IsZero() && tx.Date.Before(f.From):
		case !f.To.IsZero() && tx.Date.After(f.To):
		case search != "" && !strings.Contains(strings.ToLower(tx.Note), search):
		default:
			matched = append(matched, s.withCategory(tx))
		}
	}
	sortNewestFirst(matched)

	total := len(matched)
	start := f.Offset()
	if start > total {
		start = total
	}
	end := start + f.Limit
	if end > total {
		end = total
	}
	return append([]core.Transaction{}, matched[start:end]...), total, nil
}

func (s *Store) TransactionsBetween(_ context.Context, userID int64, from, to time.Time) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []core.Transaction{}
	for _, tx := range s.transactions {
		if tx.UserID == userID && !tx.Date.Before(from) && tx.Date.Before(to) {
			out = append(out, s.withCategory(tx))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *Store) RecentTransactions(_ context.Context, userID int64, limit int) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []core.Transaction{}
	for _, tx := range s.transactions {
		if tx.UserID == userID {
			out = append(out, s.withCategory(tx))
		}
	}
	sortNewestFirst(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) withCategory(tx core.Transaction) core.Transaction {
	if c, ok := s.categories[tx.CategoryID]; ok && c.UserID == tx.UserID {
		tx.CategoryName = c.Name
	}
	return tx
}

func sortNewestFirst(txs []core.Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		if !txs[i].Date.Equal(txs[j].Date) {
			return txs[i].Date.After(txs[j].Date)
		}
		return txs[i].ID > txs[j].ID
	})
}

// Recurring rules

func (s *Store) CreateRule(_ context.Context, r core.RecurringRule) (core.RecurringRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.id()
	r.NextRunAt = r.NextRunAt.UTC()
	r.CreatedAt = s.now()
	s.rules[r.ID] = r
	return r, nil
}

func (s *Store) GetRule(_ context.Context, userID, id int64) (core.RecurringRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[id]
	if !ok || r.UserID != userID {
		return core.RecurringRule{}, core.ErrNotFound
	}
	return r, nil
}

func (s *Store) ListRules(_ context.Context, userID int64) ([]core.RecurringRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []core.RecurringRule{}
	for _, r := range s.rules {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *Store) ToggleRule(_ context.Context, userID, id int64) (core.RecurringRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[id]
	if !ok || r.UserID != userID {
		return core.RecurringRule{}, core.ErrNotFound
	}
	r.IsActive = !r.IsActive
	s.rules[id] = r
	return r, nil
}

func (s *Store) DeleteRule(_ context.Context, userID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[id]
	if !ok || r.UserID != userID {
		return core.ErrNotFound
	}
	delete(s.rules, id)
	return nil
}

func (s *Store) FindDueRules(_ context.Context, now time.Time) ([]core.RecurringRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []core.RecurringRule{}
	for _, r := range s.rules {
		if r.Due(now) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveRuleSchedule only touches NextRunAt so a concurrent toggle survives.
func (s *Store) SaveRuleSchedule(_ context.Context, rule core.RecurringRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[rule.ID]
	if !ok {
		return core.ErrNotFound
	}
	r.NextRunAt = rule.NextRunAt.UTC()
	s.rules[rule.ID] = r
	return nil
}

// Budgets

func (s *Store) UpsertBudget(_ context.Context, b core.Budget) (core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.budgets {
		if existing.UserID == b.UserID && existing.CategoryID == b.CategoryID &&
			existing.Month == b.Month && existing.Year == b.Year {
			existing.Limit = b.Limit
			s.budgets[id] = existing
			return existing, nil
		}
	}
	b.ID = s.id()
	s.budgets[b.ID] = b
	return b, nil
}

func (s *Store) ListBudgets(_ context.Context, userID int64, month, year int) ([]core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []core.Budget{}
	for _, b := range s.budgets {
		if b.UserID == userID && b.Month == month && b.Year == year {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
