package http

import (
	"net/http"

	"fintrack/internal/core"
	"fintrack/internal/services"
)

type createCategoryRequest struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type transactionRequest struct {
	Type       string     `json:"type"`
	Amount     core.Money `json:"amount"`
	CategoryID int64      `json:"categoryId"`
	Date       jsonDate   `json:"date"`
	Note       string     `json:"note"`
}

func (t transactionRequest) input() services.TransactionInput {
	return services.TransactionInput{
		Type:       t.Type,
		Amount:     t.Amount,
		CategoryID: t.CategoryID,
		Date:       t.Date.Time,
		Note:       sanitizeInput(t.Note),
	}
}

type budgetRequest struct {
	CategoryID int64      `json:"categoryId"`
	Month      int        `json:"month"`
	Year       int        `json:"year"`
	Limit      core.Money `json:"limit"`
}

type ruleRequest struct {
	Type       string     `json:"type"`
	Amount     core.Money `json:"amount"`
	CategoryID int64      `json:"categoryId"`
	Frequency  string     `json:"frequency"`
	Interval   int        `json:"interval"`
	StartDate  jsonDate   `json:"startDate"`
	Note       string     `json:"note"`
}

// Categories

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	userID, ok := mustUser(w, r)
	if !ok {
		return
	}
	cats, err := s.categories.List(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]categoryResponse, 0, len(cats))
	for _, c := range cats {
		out = append(out, toCategory(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	userID, ok := mustUser(w, r)
	if !ok {
		return
	}
	var req createCategoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	cat, err := s.categories.Create(r.Context(), userID, sanitizeInput(req.Name), req.Type)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCategory(cat))
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	userID, ok := mustUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.categories.Delete(r.Context(), userID, id); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Deleted")
}

// Transactions

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := mustUser(w, r)
	if !ok {
		return
	}
	filter, err := parseTransactionFilter(r.URL.Query(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := s.transactions.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transactionPageResponse{
		Items: toTransactions(page.Items),
		Total: page.Total,
		Page:  page.Page,
		Limit: page.Limit,
	})
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := mustUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	tx, err := s.transactions.Get(r.Context(), userID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransaction(tx))
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := mustUser(w, r)
	if !ok {
		return
	}
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	tx, err := s.transactions.Create(r.Context(), userID, req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransaction(tx))
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := mustUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	tx, err := s.transactions.Update(r.Context(), userID, id, req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransaction(tx))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := mustUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.transactions.Delete(r.Context(), userID, id); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Deleted")
}

// Budgets

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	userID, ok := mustUser(w, r)
	if !ok {
		return
	}
	p, err := ParseMonthParams(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	budgets, err := s.budgets.List(r.Context(), userID, p.Month, p.Year)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]budgetResponse, 0, len(budgets))
	for _, b := range budgets {
		out = append(out, toBudget(b))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpsertBudget(w http.ResponseWriter, r *http.Request) {
	userID, ok := mustUser(w, r)
	if !ok {
		return
	}
	var req budgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	b, err := s.budgets.Set(r.Context(), core.Budget{
		UserID:     userID,
		CategoryID: req.CategoryID,
		Month:      req.Month,
		Year:       req.Year,
		Limit:      req.Limit,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBudget(b))
}

// Dashboard

func (s *Server) handleMonthSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := mustUser(w, r)
	if !ok {
		return
	}
	p, err := ParseMonthParams(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := s.summaries.MonthSummary(r.Context(), userID, p.Year, p.Month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummary(d))
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	userID, ok := mustUser(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	from, err := parseDate(q.Get("from"))
	if err != nil {
		writeError(w, r, &core.ValidationError{Field: "from", Err: core.ErrInvalidDate})
		return
	}
	to, err := parseDate(q.Get("to"))
	if err != nil {
		writeError(w, r, &core.ValidationError{Field: "to", Err: core.ErrInvalidDate})
		return
	}
	points, err := s.summaries.Trend(r.Context(), userID, from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]trendPointResponse, 0, len(points))
	for _, p := range points {
		out = append(out, trendPointResponse{Date: p.Date.UTC().Format(dateLayout), Income: p.Income, Expense: p.Expense})
	}
	writeJSON(w, http.StatusOK, out)
}

// Recurring rules

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	userID, ok := mustUser(w, r)
	if !ok {
		return
	}
	rules, err := s.rules.List(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]ruleResponse, 0, len(rules))
	for _, rule := range rules {
		out = append(out, toRule(rule))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	userID, ok := mustUser(w, r)
	if !ok {
		return
	}
	var req ruleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	rule, err := s.rules.Create(r.Context(), userID, core.RecurringRuleInput{
		Type:       req.Type,
		Amount:     req.Amount,
		CategoryID: req.CategoryID,
		Frequency:  req.Frequency,
		Interval:   req.Interval,
		StartDate:  req.StartDate.Time,
		Note:       sanitizeInput(req.Note),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRule(rule))
}

func (s *Server) handleToggleRule(w http.ResponseWriter, r *http.Request) {
	userID, ok := mustUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	rule, err := s.rules.Toggle(r.Context(), userID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRule(rule))
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	userID, ok := mustUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.rules.Delete(r.Context(), userID, id); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Deleted")
}

func (s *Server) handleExportRules(w http.ResponseWriter, r *http.Request) {
	userID, ok := mustUser(w, r)
	if !ok {
		return
	}
	views, err := s.rules.Export(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]ruleResponse, 0, len(views))
	for _, v := range views {
		resp := toRule(v.RecurringRule)
		resp.RRule = v.RRule
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, out)
}
