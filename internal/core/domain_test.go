package core

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewRecurringRule(t *testing.T) {
	start := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	valid := RecurringRuleInput{
		Type:       "expense",
		Amount:     Money{Cents: 50000},
		CategoryID: 3,
		Frequency:  "monthly",
		StartDate:  start,
	}

	tests := []struct {
		name    string
		mutate  func(in *RecurringRuleInput)
		wantErr error
		field   string
	}{
		{name: "valid with defaults", mutate: func(in *RecurringRuleInput) {}},
		{name: "maximum interval accepted", mutate: func(in *RecurringRuleInput) { in.Interval = MaxInterval }},
		{name: "uppercase enums accepted", mutate: func(in *RecurringRuleInput) { in.Type = "INCOME"; in.Frequency = "Weekly" }},
		{name: "unknown type", mutate: func(in *RecurringRuleInput) { in.Type = "transfer" }, wantErr: ErrInvalidType, field: "type"},
		{name: "unknown frequency", mutate: func(in *RecurringRuleInput) { in.Frequency = "yearly" }, wantErr: ErrInvalidFrequency, field: "frequency"},
		{name: "zero amount", mutate: func(in *RecurringRuleInput) { in.Amount = Money{} }, wantErr: ErrInvalidAmount, field: "amount"},
		{name: "negative amount", mutate: func(in *RecurringRuleInput) { in.Amount = Money{Cents: -1} }, wantErr: ErrInvalidAmount, field: "amount"},
		{name: "missing category", mutate: func(in *RecurringRuleInput) { in.CategoryID = 0 }, wantErr: ErrMissingCategory, field: "categoryId"},
		{name: "negative interval", mutate: func(in *RecurringRuleInput) { in.Interval = -2 }, wantErr: ErrInvalidInterval, field: "interval"},
		{name: "interval above maximum", mutate: func(in *RecurringRuleInput) { in.Interval = MaxInterval + 1 }, wantErr: ErrInvalidInterval, field: "interval"},
		{name: "overflowing interval", mutate: func(in *RecurringRuleInput) { in.Interval = 1 << 61 }, wantErr: ErrInvalidInterval, field: "interval"},
		{name: "missing start date", mutate: func(in *RecurringRuleInput) { in.StartDate = time.Time{} }, wantErr: ErrInvalidDate, field: "startDate"},
		{name: "note too long", mutate: func(in *RecurringRuleInput) { in.Note = strings.Repeat("x", 501) }, wantErr: ErrNoteTooLong, field: "note"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			rule, err := NewRecurringRule(7, in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("NewRecurringRule() error = %v, want %v", err, tt.wantErr)
				}
				var ve *ValidationError
				if !errors.As(err, &ve) || ve.Field != tt.field {
					t.Fatalf("NewRecurringRule() error = %#v, want ValidationError on %q", err, tt.field)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewRecurringRule() unexpected error: %v", err)
			}
			if !rule.IsActive {
				t.Error("new rule should be active")
			}
			if in.Interval == 0 && rule.Interval != 1 {
				t.Errorf("Interval = %d, want default 1", rule.Interval)
			}
			if !rule.NextRunAt.Equal(start) {
				t.Errorf("NextRunAt = %v, want start date %v", rule.NextRunAt, start)
			}
			if rule.UserID != 7 {
				t.Errorf("UserID = %d, want 7", rule.UserID)
			}
		})
	}
}

func TestRecurringRule_Due(t *testing.T) {
	now := time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		rule RecurringRule
		want bool
	}{
		{"past and active", RecurringRule{IsActive: true, NextRunAt: now.Add(-time.Hour)}, true},
		{"exactly now", RecurringRule{IsActive: true, NextRunAt: now}, true},
		{"future", RecurringRule{IsActive: true, NextRunAt: now.Add(time.Second)}, false},
		{"inactive", RecurringRule{IsActive: false, NextRunAt: now.AddDate(-1, 0, 0)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rule.Due(now); got != tt.want {
				t.Errorf("Due() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecurringRule_Materialize(t *testing.T) {
	rule := RecurringRule{
		ID:         11,
		UserID:     2,
		Type:       Expense,
		Amount:     Money{Cents: 50000},
		CategoryID: 4,
		Frequency:  Monthly,
		Interval:   1,
		NextRunAt:  time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		IsActive:   true,
		Note:       "rent",
	}

	tx := rule.Materialize()

	if !tx.Date.Equal(rule.NextRunAt) {
		t.Errorf("Date = %v, want %v", tx.Date, rule.NextRunAt)
	}
	if tx.Amount != rule.Amount || tx.Type != rule.Type || tx.CategoryID != rule.CategoryID || tx.UserID != rule.UserID {
		t.Errorf("Materialize() did not copy rule fields: %+v", tx)
	}
	if tx.Note != "rent" {
		t.Errorf("Note = %q, want verbatim copy", tx.Note)
	}
	if !tx.RecurringGenerated || tx.RecurringRuleID != 11 {
		t.Errorf("generated flag/back-reference not set: %+v", tx)
	}
	if err := tx.Validate(); err != nil {
		t.Errorf("materialized transaction should validate: %v", err)
	}
}

func TestBudget_Validate(t *testing.T) {
	tests := []struct {
		name    string
		budget  Budget
		wantErr error
	}{
		{"valid", Budget{CategoryID: 1, Month: 3, Year: 2024, Limit: Money{Cents: 10000}}, nil},
		{"zero limit allowed", Budget{CategoryID: 1, Month: 3, Year: 2024}, nil},
		{"month 13", Budget{CategoryID: 1, Month: 13, Year: 2024}, ErrInvalidMonth},
		{"no category", Budget{Month: 3, Year: 2024}, ErrMissingCategory},
		{"negative limit", Budget{CategoryID: 1, Month: 3, Year: 2024, Limit: Money{Cents: -5}}, ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.budget.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestMonthRange(t *testing.T) {
	start, end, err := MonthRange(2024, 12)
	if err != nil {
		t.Fatalf("MonthRange() error = %v", err)
	}
	if want := time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC); !start.Equal(want) {
		t.Errorf("start = %v, want %v", start, want)
	}
	if want := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC); !end.Equal(want) {
		t.Errorf("end = %v, want %v", end, want)
	}
	if _, _, err := MonthRange(2024, 0); !errors.Is(err, ErrInvalidMonth) {
		t.Errorf("MonthRange(2024, 0) error = %v, want ErrInvalidMonth", err)
	}
}

func TestRecurringRule_RRule(t *testing.T) {
	rule := RecurringRule{
		Frequency: Weekly,
		Interval:  2,
		NextRunAt: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
	}
	got, err := rule.RRule()
	if err != nil {
		t.Fatalf("RRule() error = %v", err)
	}
	for _, want := range []string{"DTSTART:20240115T000000Z", "FREQ=WEEKLY", "INTERVAL=2"} {
		if !strings.Contains(got, want) {
			t.Errorf("RRule() = %q, missing %q", got, want)
		}
	}

	rule.Frequency = "hourly"
	if _, err := rule.RRule(); !errors.Is(err, ErrInvalidFrequency) {
		t.Errorf("RRule() with bad frequency error = %v", err)
	}
}
