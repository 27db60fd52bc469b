package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

const maxNoteLength = 500

// MaxInterval bounds a rule interval so that advancing stays within the
// range time.AddDate can represent.
const MaxInterval = 1000

type (
	TransactionType string

	// Frequency is the unit a recurring rule advances by.
	Frequency string

	User struct {
		ID           int64
		Name         string
		Email        string
		PasswordHash []byte
		CreatedAt    time.Time
	}

	Category struct {
		ID        int64
		UserID    int64
		Name      string
		Type      TransactionType
		IsDefault bool
	}

	Transaction struct {
		ID           int64
		UserID       int64
		Type         TransactionType
		Amount       Money
		CategoryID   int64
		CategoryName string // resolved on read, never persisted
		Date         time.Time
		Note         string

		// Set on transactions materialized by the recurring scheduler.
		RecurringGenerated bool
		RecurringRuleID    int64

		CreatedAt time.Time
	}

	RecurringRule struct {
		ID         int64
		UserID     int64
		Type       TransactionType
		Amount     Money
		CategoryID int64
		Frequency  Frequency
		Interval   int
		NextRunAt  time.Time // only the scheduler moves this forward
		IsActive   bool
		Note       string
		CreatedAt  time.Time
	}

	// RecurringRuleInput carries the user supplied fields for a new rule.
	RecurringRuleInput struct {
		Type       string
		Amount     Money
		CategoryID int64
		Frequency  string
		Interval   int
		StartDate  time.Time
		Note       string
	}

	Budget struct {
		ID         int64
		UserID     int64
		CategoryID int64
		Month      int // 1-12
		Year       int
		Limit      Money
	}
)

func ParseTransactionType(s string) (TransactionType, error) {
	switch t := TransactionType(strings.ToLower(strings.TrimSpace(s))); t {
	case Income, Expense:
		return t, nil
	default:
		return "", &ValidationError{Field: "type", Err: ErrInvalidType}
	}
}

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(strings.ToLower(strings.TrimSpace(s))); f {
	case Daily, Weekly, Monthly:
		return f, nil
	default:
		return "", &ValidationError{Field: "frequency", Err: ErrInvalidFrequency}
	}
}

func (f Frequency) Valid() bool {
	return f == Daily || f == Weekly || f == Monthly
}

// NewRecurringRule validates the input and returns an active rule owned by
// userID whose first run is the requested start date.
func NewRecurringRule(userID int64, in RecurringRuleInput) (RecurringRule, error) {
	typ, err := ParseTransactionType(in.Type)
	if err != nil {
		return RecurringRule{}, err
	}
	freq, err := ParseFrequency(in.Frequency)
	if err != nil {
		return RecurringRule{}, err
	}
	interval := in.Interval
	if interval == 0 {
		interval = 1
	}

	rule := RecurringRule{
		UserID:     userID,
		Type:       typ,
		Amount:     in.Amount,
		CategoryID: in.CategoryID,
		Frequency:  freq,
		Interval:   interval,
		NextRunAt:  in.StartDate.UTC(),
		IsActive:   true,
		Note:       strings.TrimSpace(in.Note),
	}
	if err := rule.Validate(); err != nil {
		return RecurringRule{}, err
	}
	return rule, nil
}

func (r RecurringRule) Validate() error {
	if !r.Type.Valid() {
		return &ValidationError{Field: "type", Err: ErrInvalidType}
	}
	if err := r.Amount.Validate(); err != nil {
		return &ValidationError{Field: "amount", Err: err}
	}
	if r.CategoryID <= 0 {
		return &ValidationError{Field: "categoryId", Err: ErrMissingCategory}
	}
	if !r.Frequency.Valid() {
		return &ValidationError{Field: "frequency", Err: ErrInvalidFrequency}
	}
	if r.Interval < 1 || r.Interval > MaxInterval {
		return &ValidationError{Field: "interval", Err: ErrInvalidInterval}
	}
	if r.NextRunAt.IsZero() {
		return &ValidationError{Field: "startDate", Err: ErrInvalidDate}
	}
	if len(r.Note) > maxNoteLength {
		return &ValidationError{Field: "note", Err: ErrNoteTooLong}
	}
	return nil
}

// Due reports whether the rule should fire at now.
func (r RecurringRule) Due(now time.Time) bool {
	return r.IsActive && !r.NextRunAt.After(now)
}

// Materialize builds the transaction a firing of r produces. The transaction
// is dated at the scheduled run, not at the time the tick observed it.
func (r RecurringRule) Materialize() Transaction {
	return Transaction{
		UserID:             r.UserID,
		Type:               r.Type,
		Amount:             r.Amount,
		CategoryID:         r.CategoryID,
		Date:               r.NextRunAt,
		Note:               r.Note,
		RecurringGenerated: true,
		RecurringRuleID:    r.ID,
	}
}

func (t Transaction) Validate() error {
	if !t.Type.Valid() {
		return &ValidationError{Field: "type", Err: ErrInvalidType}
	}
	if err := t.Amount.Validate(); err != nil {
		return &ValidationError{Field: "amount", Err: err}
	}
	if t.CategoryID <= 0 {
		return &ValidationError{Field: "categoryId", Err: ErrMissingCategory}
	}
	if t.Date.IsZero() {
		return &ValidationError{Field: "date", Err: ErrInvalidDate}
	}
	if len(t.Note) > maxNoteLength {
		return &ValidationError{Field: "note", Err: ErrNoteTooLong}
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return &ValidationError{Field: "name", Err: ErrEmptyName}
	}
	if len(c.Name) > 100 {
		return &ValidationError{Field: "name", Err: errors.New("name too long (max 100 characters)")}
	}
	if !c.Type.Valid() {
		return &ValidationError{Field: "type", Err: ErrInvalidType}
	}
	return nil
}

func (b Budget) Validate() error {
	if b.CategoryID <= 0 {
		return &ValidationError{Field: "categoryId", Err: ErrMissingCategory}
	}
	if b.Month < 1 || b.Month > 12 {
		return &ValidationError{Field: "month", Err: ErrInvalidMonth}
	}
	if b.Year < 1970 || b.Year > 9999 {
		return &ValidationError{Field: "year", Err: ErrInvalidYear}
	}
	if b.Limit.Cents < 0 {
		return &ValidationError{Field: "limit", Err: ErrInvalidAmount}
	}
	return nil
}

// MonthRange returns the half-open UTC interval [start, end) covering the
// given month.
func MonthRange(year, month int) (time.Time, time.Time, error) {
	if month < 1 || month > 12 {
		return time.Time{}, time.Time{}, &ValidationError{Field: "month", Err: ErrInvalidMonth}
	}
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0), nil
}

// DefaultCategories are seeded for every new user.
var DefaultCategories = []Category{
	{Name: "Salary", Type: Income, IsDefault: true},
	{Name: "Freelance", Type: Income, IsDefault: true},
	{Name: "Food", Type: Expense, IsDefault: true},
	{Name: "Rent", Type: Expense, IsDefault: true},
	{Name: "Transport", Type: Expense, IsDefault: true},
	{Name: "Shopping", Type: Expense, IsDefault: true},
	{Name: "Health", Type: Expense, IsDefault: true},
	{Name: "Entertainment", Type: Expense, IsDefault: true},
}

func (t TransactionType) String() string { return string(t) }

func (f Frequency) String() string { return string(f) }

// GoString keeps %#v output readable in test failures.
func (r RecurringRule) GoString() string {
	return fmt.Sprintf("RecurringRule{ID:%d User:%d %s %s every %d %s next:%s active:%t}",
		r.ID, r.UserID, r.Type, r.Amount, r.Interval, r.Frequency, r.NextRunAt.Format(time.RFC3339), r.IsActive)
}
