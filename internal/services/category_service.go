package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/ports"
)

type CategoryService struct {
	repo        ports.CategoryRepository
	invalidator SummaryInvalidator
}

// NewCategoryService wires the service. invalidator may be nil.
func NewCategoryService(repo ports.CategoryRepository, invalidator SummaryInvalidator) *CategoryService {
	return &CategoryService{repo: repo, invalidator: invalidator}
}

func (s *CategoryService) List(ctx context.Context, userID int64) ([]core.Category, error) {
	return s.repo.ListCategories(ctx, userID)
}

func (s *CategoryService) Create(ctx context.Context, userID int64, name, typ string) (core.Category, error) {
	t, err := core.ParseTransactionType(typ)
	if err != nil {
		return core.Category{}, err
	}
	c := core.Category{UserID: userID, Name: strings.TrimSpace(name), Type: t}
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	return s.repo.CreateCategory(ctx, c)
}

// Delete removes a custom category. Cached summaries name categories, so
// they are dropped for the owner.
func (s *CategoryService) Delete(ctx context.Context, userID, id int64) error {
	if err := s.repo.DeleteCategory(ctx, userID, id); err != nil {
		return err
	}
	if s.invalidator != nil {
		s.invalidator.InvalidateUser(userID)
	}
	return nil
}

// SeedDefaults creates the default categories the user does not have yet.
// Running it again is a no-op.
func (s *CategoryService) SeedDefaults(ctx context.Context, userID int64) error {
	created := 0
	for _, c := range core.DefaultCategories {
		c.UserID = userID
		ok, err := s.repo.EnsureCategory(ctx, c)
		if err != nil {
			return fmt.Errorf("seed category %q: %w", c.Name, err)
		}
		if ok {
			created++
		}
	}
	slog.InfoContext(ctx, "Seeded default categories", "user_id", userID, "created", created)
	return nil
}
