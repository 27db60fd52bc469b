package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fintrack/internal/core"
	"fintrack/internal/ports"
)

// RuleView is a rule together with its iCalendar rendering.
type RuleView struct {
	core.RecurringRule
	RRule string
}

// RuleService manages recurring rules on behalf of their owner. It never
// moves NextRunAt after creation; that belongs to the scheduler.
type RuleService struct {
	rules      ports.RuleRepository
	categories ports.CategoryRepository
}

func NewRuleService(rules ports.RuleRepository, categories ports.CategoryRepository) *RuleService {
	return &RuleService{rules: rules, categories: categories}
}

func (s *RuleService) Create(ctx context.Context, userID int64, in core.RecurringRuleInput) (core.RecurringRule, error) {
	rule, err := core.NewRecurringRule(userID, in)
	if err != nil {
		return core.RecurringRule{}, err
	}
	if _, err := s.categories.GetCategory(ctx, userID, rule.CategoryID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.RecurringRule{}, &core.ValidationError{Field: "categoryId", Err: core.ErrMissingCategory}
		}
		return core.RecurringRule{}, fmt.Errorf("load category: %w", err)
	}
	created, err := s.rules.CreateRule(ctx, rule)
	if err != nil {
		return core.RecurringRule{}, fmt.Errorf("save recurring rule: %w", err)
	}
	slog.InfoContext(ctx, "Recurring rule created",
		"rule_id", created.ID,
		"user_id", userID,
		"frequency", created.Frequency,
		"interval", created.Interval,
		"next_run_at", created.NextRunAt)
	return created, nil
}

func (s *RuleService) List(ctx context.Context, userID int64) ([]core.RecurringRule, error) {
	return s.rules.ListRules(ctx, userID)
}

// Toggle pauses an active rule or resumes a paused one. A resumed rule
// whose next run is in the past fires once on the next tick.
func (s *RuleService) Toggle(ctx context.Context, userID, id int64) (core.RecurringRule, error) {
	rule, err := s.rules.ToggleRule(ctx, userID, id)
	if err != nil {
		return core.RecurringRule{}, err
	}
	slog.InfoContext(ctx, "Recurring rule toggled", "rule_id", id, "user_id", userID, "active", rule.IsActive)
	return rule, nil
}

func (s *RuleService) Delete(ctx context.Context, userID, id int64) error {
	return s.rules.DeleteRule(ctx, userID, id)
}

// Export renders every rule of the user as an RRULE.
func (s *RuleService) Export(ctx context.Context, userID int64) ([]RuleView, error) {
	rules, err := s.rules.ListRules(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]RuleView, 0, len(rules))
	for _, r := range rules {
		rr, err := r.RRule()
		if err != nil {
			return nil, fmt.Errorf("render rule %d: %w", r.ID, err)
		}
		out = append(out, RuleView{RecurringRule: r, RRule: rr})
	}
	return out, nil
}
