package main

import (
	"time"

	"fintrack/internal/backend"
	"fintrack/internal/cli"
	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	bootstrap := cli.SetupLogger("info", applog.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(bootstrap)
	logger := cli.SetupLogger(cfg.LogLevel, applog.ComponentWorker)

	logger.Info("Starting recurring-worker",
		"backend", cfg.DataBackend,
		"schedule", cfg.RecurringSchedule,
		"call_timeout", cfg.RecurringCallTimeout)

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
	if res.Events == nil {
		logger.Info("AMQP disabled, API summaries will refresh on TTL only")
	}

	// Generated transactions go through the same service as API writes, so
	// they are validated and announced the same way.
	sink := services.NewTransactionService(res.Repository, res.Repository, res.Publisher(), nil)
	processor := services.NewRecurringProcessor(res.Repository, sink, core.SystemClock{}, cfg.RecurringCallTimeout)

	w, err := worker.NewRecurringWorker(processor, worker.Config{
		Schedule:    cfg.RecurringSchedule,
		Location:    time.UTC,
		RunOnStart:  cfg.RecurringRunOnStart,
		StopTimeout: 30 * time.Second,
	}, logger.With(applog.FieldComponent, applog.ComponentRecurring))
	if err != nil {
		cli.Fatal(logger, "Invalid recurring schedule", err, "schedule", cfg.RecurringSchedule)
	}

	if err := w.Run(ctx); err != nil {
		logger.Error("Recurring worker stopped with error", "error", err)
	}
	logger.Info("Recurring-worker shutdown complete", "ticks", w.Runs())
}
