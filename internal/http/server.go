// Package http exposes the JSON API used by the single-page frontend.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	applog "fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/services"
)

// Services bundles what the handlers call into.
type Services struct {
	Auth         *services.AuthService
	Categories   *services.CategoryService
	Transactions *services.TransactionService
	Budgets      *services.BudgetService
	Summaries    *services.SummaryService
	Rules        *services.RuleService
}

type Options struct {
	// ClientURLs are the browser origins allowed by CORS.
	ClientURLs         []string
	RateLimitPerMinute int
	// SecureCookies marks the refresh cookie Secure and SameSite=None.
	SecureCookies bool
	// Ready reports whether dependencies are reachable; nil means always ready.
	Ready  func(ctx context.Context) error
	Logger *slog.Logger
	Now    func() time.Time
}

type Server struct {
	http.Server

	auth         *services.AuthService
	categories   *services.CategoryService
	transactions *services.TransactionService
	budgets      *services.BudgetService
	summaries    *services.SummaryService
	rules        *services.RuleService

	ready         func(ctx context.Context) error
	secureCookies bool
	now           func() time.Time

	rateLimiter  *ratelimit.Limiter
	tracer       *trace.Middleware
	shutdownOnce sync.Once
}

func NewServer(addr string, svc Services, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	ips := security.NewClientIPResolver()
	s := &Server{
		auth:          svc.Auth,
		categories:    svc.Categories,
		transactions:  svc.Transactions,
		budgets:       svc.Budgets,
		summaries:     svc.Summaries,
		rules:         svc.Rules,
		ready:         opts.Ready,
		secureCookies: opts.SecureCookies,
		now:           now,
		rateLimiter:   ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		tracer:        trace.NewMiddleware(ips.ClientIP, logger.With(applog.FieldComponent, applog.ComponentHTTP)),
	}

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(ips, opts.ClientURLs),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes(ips *security.ClientIPResolver, origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(s.tracer.Middleware)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(security.NewCORS(origins...).Middleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.rateLimiter.Middleware(ips.ClientIP, func(w http.ResponseWriter, r *http.Request) {
			writeMessage(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
		}))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", s.handleRegister)
			r.Post("/login", s.handleLogin)
			r.Post("/refresh", s.handleRefresh)
			r.Post("/logout", s.handleLogout)
		})

		r.With(s.requireAuth).Group(func(r chi.Router) {
			r.Get("/categories", s.handleListCategories)
			r.Post("/categories", s.handleCreateCategory)
			r.Delete("/categories/{id}", s.handleDeleteCategory)

			r.Get("/transactions", s.handleListTransactions)
			r.Post("/transactions", s.handleCreateTransaction)
			r.Get("/transactions/{id}", s.handleGetTransaction)
			r.Put("/transactions/{id}", s.handleUpdateTransaction)
			r.Delete("/transactions/{id}", s.handleDeleteTransaction)

			r.Get("/budgets", s.handleListBudgets)
			r.Post("/budgets", s.handleUpsertBudget)

			r.Get("/dashboard/month-summary", s.handleMonthSummary)
			r.Get("/dashboard/trend", s.handleTrend)

			r.Get("/recurring", s.handleListRules)
			r.Post("/recurring", s.handleCreateRule)
			r.Get("/recurring/export", s.handleExportRules)
			r.Patch("/recurring/{id}/toggle", s.handleToggleRule)
			r.Delete("/recurring/{id}", s.handleDeleteRule)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			applog.FromContext(ctx).WarnContext(ctx, "Readiness check failed", applog.FieldError, err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Metrics returns the request counters.
func (s *Server) Metrics() trace.Metrics {
	return s.tracer.GetMetrics()
}

// Shutdown stops the rate limiter sweep and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
