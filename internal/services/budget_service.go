package services

import (
	"context"
	"errors"
	"fmt"

	"fintrack/internal/core"
	"fintrack/internal/ports"
)

type BudgetService struct {
	budgets     ports.BudgetRepository
	categories  ports.CategoryRepository
	invalidator SummaryInvalidator
}

func NewBudgetService(budgets ports.BudgetRepository, categories ports.CategoryRepository, invalidator SummaryInvalidator) *BudgetService {
	return &BudgetService{budgets: budgets, categories: categories, invalidator: invalidator}
}

// Set creates or replaces the limit for (user, category, month, year).
func (s *BudgetService) Set(ctx context.Context, b core.Budget) (core.Budget, error) {
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	if _, err := s.categories.GetCategory(ctx, b.UserID, b.CategoryID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.Budget{}, &core.ValidationError{Field: "categoryId", Err: core.ErrMissingCategory}
		}
		return core.Budget{}, fmt.Errorf("load category: %w", err)
	}
	saved, err := s.budgets.UpsertBudget(ctx, b)
	if err != nil {
		return core.Budget{}, err
	}
	if s.invalidator != nil {
		s.invalidator.InvalidateUser(b.UserID)
	}
	return saved, nil
}

func (s *BudgetService) List(ctx context.Context, userID int64, month, year int) ([]core.Budget, error) {
	if month < 1 || month > 12 {
		return nil, &core.ValidationError{Field: "month", Err: core.ErrInvalidMonth}
	}
	return s.budgets.ListBudgets(ctx, userID, month, year)
}
