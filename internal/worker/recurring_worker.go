package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	applog "fintrack/internal/log"
	"fintrack/internal/services"

	"github.com/robfig/cron/v3"
)

const DefaultSchedule = "* * * * *"

// Ticker runs one scheduling pass.
type Ticker interface {
	TickNow(ctx context.Context) services.TickReport
}

type Config struct {
	// Schedule is a cron spec; 5 or 6 fields (seconds optional) or a descriptor
	// such as "@every 30s".
	Schedule   string
	Location   *time.Location
	RunOnStart bool
	// StopTimeout bounds how long Run waits for an in-flight tick on shutdown.
	StopTimeout time.Duration
}

// RecurringWorker triggers the recurring processor on a cron schedule.
// A trigger that fires while the previous tick is still running is skipped.
type RecurringWorker struct {
	ticker Ticker
	cfg    Config
	logger *slog.Logger
	parser cron.Parser

	mu   sync.Mutex
	last *services.TickReport
	runs int
}

func NewRecurringWorker(ticker Ticker, cfg Config, logger *slog.Logger) (*RecurringWorker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.Schedule) == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 30 * time.Second
	}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("invalid recurring schedule %q: %w", cfg.Schedule, err)
	}
	return &RecurringWorker{
		ticker: ticker,
		cfg:    cfg,
		logger: logger.With("component", "recurring_worker"),
		parser: parser,
	}, nil
}

// Run blocks until ctx is done, then waits for an in-flight tick.
func (w *RecurringWorker) Run(ctx context.Context) error {
	clog := cronLogger{l: w.logger}
	c := cron.New(
		cron.WithParser(w.parser),
		cron.WithLocation(w.cfg.Location),
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)

	if _, err := c.AddFunc(w.cfg.Schedule, func() { w.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("register recurring job: %w", err)
	}

	if w.cfg.RunOnStart {
		w.RunOnce(ctx)
	}

	c.Start()
	w.logger.InfoContext(ctx, "Recurring worker started",
		"schedule", w.cfg.Schedule,
		"location", w.cfg.Location.String())

	<-ctx.Done()

	select {
	case <-c.Stop().Done():
		w.logger.Info("Recurring worker stopped")
	case <-time.After(w.cfg.StopTimeout):
		w.logger.Warn("Recurring worker stop timed out", "timeout", w.cfg.StopTimeout)
	}
	return nil
}

// RunOnce performs a single tick and records its report.
func (w *RecurringWorker) RunOnce(ctx context.Context) services.TickReport {
	start := time.Now()
	report := w.ticker.TickNow(ctx)

	w.mu.Lock()
	w.last = &report
	w.runs++
	w.mu.Unlock()

	switch {
	case report.Skipped:
		w.logger.WarnContext(ctx, "Recurring tick skipped")
	case report.Err != nil:
		w.logger.ErrorContext(ctx, "Recurring tick failed", "error", report.Err)
	default:
		for _, o := range report.Failed() {
			fields := applog.NewFields().WithRule(o.RuleID).WithUser(o.UserID).WithError(o.Err)
			fields["status"] = o.Status
			w.logger.ErrorContext(ctx, "Recurring rule failed", fields.ToSlice()...)
		}
		w.logger.InfoContext(ctx, "Recurring tick finished",
			"fired", len(report.Fired()),
			"failed", len(report.Failed()),
			"duration", time.Since(start))
	}
	return report
}

// LastReport returns the report of the most recent tick, if any.
func (w *RecurringWorker) LastReport() (services.TickReport, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.last == nil {
		return services.TickReport{}, false
	}
	return *w.last, true
}

// Runs returns how many ticks have been attempted.
func (w *RecurringWorker) Runs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runs
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
