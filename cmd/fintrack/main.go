package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"fintrack/internal/backend"
	"fintrack/internal/cache"
	"fintrack/internal/cli"
	apphttp "fintrack/internal/http"
	applog "fintrack/internal/log"
	"fintrack/internal/services"
)

const (
	summaryCacheSize   = 1000
	cacheSweepInterval = time.Minute
	shutdownTimeout    = 15 * time.Second
)

func main() {
	cli.LoadEnvFile()

	bootstrap := cli.SetupLogger("info", applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(bootstrap)
	logger := cli.SetupLogger(cfg.LogLevel, applog.ComponentApp)
	if err := cfg.ValidateAuth(); err != nil {
		cli.Fatal(logger, "Auth configuration invalid", err)
	}

	logger.Info("Starting fintrack", "port", cfg.Port, "backend", cfg.DataBackend)

	ctx, cancel := cli.GracefulShutdown(logger)
	defer cancel()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		cli.Fatal(logger, "Invalid backend configuration", err)
	}
	res, err := backend.NewFactory(logger.With(applog.FieldComponent, applog.ComponentBackend)).CreateBackend(ctx, backendCfg)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize backend", err, "type", backendCfg.Type)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", "error", err)
		}
	}()
	repo := res.Repository

	summaryCache := cache.NewLRUCache[services.Dashboard](summaryCacheSize, cfg.SummaryCacheTTL)
	caches := cache.NewManager(logger.With(applog.FieldComponent, applog.ComponentCache))
	caches.Register("summaries", summaryCache)

	summaries := services.NewSummaryService(repo, repo, repo, summaryCache)
	categories := services.NewCategoryService(repo, summaries)
	auth := services.NewAuthService(repo, categories, services.AuthConfig{
		AccessSecret:  []byte(cfg.AccessTokenSecret),
		RefreshSecret: []byte(cfg.RefreshTokenSecret),
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
		BcryptCost:    bcrypt.DefaultCost,
	})

	server := apphttp.NewServer(net.JoinHostPort("", cfg.Port), apphttp.Services{
		Auth:         auth,
		Categories:   categories,
		Transactions: services.NewTransactionService(repo, repo, res.Publisher(), summaries),
		Budgets:      services.NewBudgetService(repo, repo, summaries),
		Summaries:    summaries,
		Rules:        services.NewRuleService(repo, repo),
	}, apphttp.Options{
		ClientURLs:         splitList(cfg.ClientURL),
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		SecureCookies:      strings.HasPrefix(cfg.ClientURL, "https://"),
		Ready:              repo.Ping,
		Logger:             logger.With(applog.FieldComponent, applog.ComponentHTTP),
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		caches.Run(gctx, cacheSweepInterval)
		return nil
	})

	// Transactions written by the recurring worker arrive as events; each
	// one invalidates the owner's cached summaries.
	if res.Events != nil {
		g.Go(func() error {
			err := res.Events.ConsumeTransactionEvents(gctx, summaries.HandleTransactionEvent)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Event consumption stopped", "error", err)
			}
			return nil
		})
	} else {
		logger.Info("AMQP disabled, summaries rely on TTL for worker-created transactions")
	}

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		logger.Info("Shutting down HTTP server")
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server exited with error", "error", err)
	}
	logger.Info("Shutdown complete", "requests_served", server.Metrics().TotalRequests)
}

// splitList parses a comma-separated env value.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
