package http

import (
	"time"

	"fintrack/internal/core"
	"fintrack/internal/services"
)

const dateLayout = "2006-01-02"

type userResponse struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type authResponse struct {
	Message     string        `json:"message,omitempty"`
	AccessToken string        `json:"accessToken"`
	ExpiresAt   time.Time     `json:"expiresAt"`
	User        *userResponse `json:"user,omitempty"`
}

type categoryResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	IsDefault bool   `json:"isDefault"`
}

type transactionResponse struct {
	ID                   int64      `json:"id"`
	Type                 string     `json:"type"`
	Amount               core.Money `json:"amount"`
	CategoryID           int64      `json:"categoryId"`
	CategoryName         string     `json:"categoryName,omitempty"`
	Date                 string     `json:"date"`
	Note                 string     `json:"note"`
	IsRecurringGenerated bool       `json:"isRecurringGenerated"`
	RecurringRuleID      int64      `json:"recurringRuleId,omitempty"`
}

type transactionPageResponse struct {
	Items []transactionResponse `json:"items"`
	Total int                   `json:"total"`
	Page  int                   `json:"page"`
	Limit int                   `json:"limit"`
}

type budgetResponse struct {
	ID         int64      `json:"id"`
	CategoryID int64      `json:"categoryId"`
	Month      int        `json:"month"`
	Year       int        `json:"year"`
	Limit      core.Money `json:"limit"`
}

type budgetStatusResponse struct {
	budgetResponse
	CategoryName string     `json:"categoryName"`
	Spent        core.Money `json:"spent"`
	Remaining    core.Money `json:"remaining"`
}

type categoryAmountResponse struct {
	Name  string     `json:"name"`
	Total core.Money `json:"total"`
}

type summaryResponse struct {
	Year            int                      `json:"year"`
	Month           int                      `json:"month"`
	Income          core.Money               `json:"income"`
	Expense         core.Money               `json:"expense"`
	Balance         core.Money               `json:"balance"`
	CategoryExpense []categoryAmountResponse `json:"categoryExpense"`
	Budgets         []budgetStatusResponse   `json:"budgets"`
	Recent          []transactionResponse    `json:"recent"`
}

type trendPointResponse struct {
	Date    string     `json:"date"`
	Income  core.Money `json:"income"`
	Expense core.Money `json:"expense"`
}

type ruleResponse struct {
	ID         int64      `json:"id"`
	Type       string     `json:"type"`
	Amount     core.Money `json:"amount"`
	CategoryID int64      `json:"categoryId"`
	Frequency  string     `json:"frequency"`
	Interval   int        `json:"interval"`
	NextRunAt  time.Time  `json:"nextRunAt"`
	IsActive   bool       `json:"isActive"`
	Note       string     `json:"note"`
	RRule      string     `json:"rrule,omitempty"`
}

func toUser(u core.User) *userResponse {
	return &userResponse{ID: u.ID, Name: u.Name, Email: u.Email}
}

func toCategory(c core.Category) categoryResponse {
	return categoryResponse{ID: c.ID, Name: c.Name, Type: c.Type.String(), IsDefault: c.IsDefault}
}

func toTransaction(t core.Transaction) transactionResponse {
	return transactionResponse{
		ID:                   t.ID,
		Type:                 t.Type.String(),
		Amount:               t.Amount,
		CategoryID:           t.CategoryID,
		CategoryName:         t.CategoryName,
		Date:                 t.Date.UTC().Format(dateLayout),
		Note:                 t.Note,
		IsRecurringGenerated: t.RecurringGenerated,
		RecurringRuleID:      t.RecurringRuleID,
	}
}

func toTransactions(ts []core.Transaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(ts))
	for _, t := range ts {
		out = append(out, toTransaction(t))
	}
	return out
}

func toBudget(b core.Budget) budgetResponse {
	return budgetResponse{ID: b.ID, CategoryID: b.CategoryID, Month: b.Month, Year: b.Year, Limit: b.Limit}
}

func toSummary(d services.Dashboard) summaryResponse {
	out := summaryResponse{
		Year:            d.Year,
		Month:           d.Month,
		Income:          d.Income,
		Expense:         d.Expense,
		Balance:         d.Balance,
		CategoryExpense: make([]categoryAmountResponse, 0, len(d.ByCategory)),
		Budgets:         make([]budgetStatusResponse, 0, len(d.Budgets)),
		Recent:          toTransactions(d.Recent),
	}
	for _, c := range d.ByCategory {
		out.CategoryExpense = append(out.CategoryExpense, categoryAmountResponse{Name: c.Name, Total: c.Amount})
	}
	for _, b := range d.Budgets {
		out.Budgets = append(out.Budgets, budgetStatusResponse{
			budgetResponse: toBudget(b.Budget),
			CategoryName:   b.CategoryName,
			Spent:          b.Spent,
			Remaining:      b.Budget.Limit.Sub(b.Spent),
		})
	}
	return out
}

func toRule(r core.RecurringRule) ruleResponse {
	return ruleResponse{
		ID:         r.ID,
		Type:       r.Type.String(),
		Amount:     r.Amount,
		CategoryID: r.CategoryID,
		Frequency:  r.Frequency.String(),
		Interval:   r.Interval,
		NextRunAt:  r.NextRunAt.UTC(),
		IsActive:   r.IsActive,
		Note:       r.Note,
	}
}
