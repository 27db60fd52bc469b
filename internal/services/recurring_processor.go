package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/ports"
)

const DefaultCallTimeout = 10 * time.Second

type OutcomeStatus string

const (
	OutcomeFired OutcomeStatus = "fired"
	// OutcomeSinkFailure: the transaction was rejected; the rule stays due.
	OutcomeSinkFailure OutcomeStatus = "sink_failed"
	// OutcomePersistFailure: the transaction was emitted but the new schedule
	// was not saved, so the next tick fires the same occurrence again.
	OutcomePersistFailure OutcomeStatus = "persist_failed"
	// OutcomeInvalidRule: no next run can be computed; nothing was emitted.
	OutcomeInvalidRule OutcomeStatus = "invalid_rule"
)

// RuleOutcome is what happened to one due rule during a tick.
type RuleOutcome struct {
	RuleID        int64
	UserID        int64
	Status        OutcomeStatus
	ScheduledAt   time.Time // the occurrence that was due
	NextRunAt     time.Time // zero unless a next run was computed
	TransactionID int64     // zero unless the sink accepted the transaction
	Err           error
}

// TickReport summarizes one tick.
type TickReport struct {
	Now      time.Time
	Skipped  bool  // another tick was still running
	Err      error // the due-rule query failed; no rule was attempted
	Outcomes []RuleOutcome
}

// Fired returns the ids of rules that produced a transaction, including
// those whose new schedule could not be saved.
func (r TickReport) Fired() []int64 {
	ids := []int64{}
	for _, o := range r.Outcomes {
		if o.Status == OutcomeFired || o.Status == OutcomePersistFailure {
			ids = append(ids, o.RuleID)
		}
	}
	return ids
}

// Failed returns the outcomes that need operator attention.
func (r TickReport) Failed() []RuleOutcome {
	var out []RuleOutcome
	for _, o := range r.Outcomes {
		if o.Status != OutcomeFired {
			out = append(out, o)
		}
	}
	return out
}

// RecurringProcessor materializes due recurring rules into transactions.
// Ticks are serialized: a tick that starts while another is running returns
// immediately with Skipped set.
type RecurringProcessor struct {
	store       ports.RuleStore
	sink        ports.TransactionSink
	clock       core.Clock
	callTimeout time.Duration

	running sync.Mutex
}

// NewRecurringProcessor creates a processor. A callTimeout of zero selects
// DefaultCallTimeout; a nil clock selects the system clock.
func NewRecurringProcessor(store ports.RuleStore, sink ports.TransactionSink, clock core.Clock, callTimeout time.Duration) *RecurringProcessor {
	if clock == nil {
		clock = core.SystemClock{}
	}
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	return &RecurringProcessor{
		store:       store,
		sink:        sink,
		clock:       clock,
		callTimeout: callTimeout,
	}
}

// TickNow runs a tick at the processor clock's current time.
func (p *RecurringProcessor) TickNow(ctx context.Context) TickReport {
	return p.Tick(ctx, p.clock.Now())
}

// Tick fires every rule that is active and due at now, at most once each,
// one rule at a time. Cancelling ctx does not interrupt a started tick; each
// store and sink call is bounded by the processor's call timeout instead.
func (p *RecurringProcessor) Tick(ctx context.Context, now time.Time) TickReport {
	report := TickReport{Now: now}
	if !p.running.TryLock() {
		slog.WarnContext(ctx, "Recurring tick skipped, previous tick still running",
			"now", now.Format(time.RFC3339))
		report.Skipped = true
		return report
	}
	defer p.running.Unlock()

	ctx = context.WithoutCancel(ctx)

	var rules []core.RecurringRule
	err := p.call(ctx, func(ctx context.Context) error {
		var err error
		rules, err = p.store.FindDueRules(ctx, now)
		return err
	})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to load due recurring rules", "error", err)
		report.Err = fmt.Errorf("find due rules: %w", err)
		return report
	}

	slog.InfoContext(ctx, "Processing recurring rules",
		"due", len(rules),
		"now", now.Format(time.RFC3339))

	for _, rule := range rules {
		// The store already filtered, but a stale or buggy store must not
		// make us fire a paused or future rule.
		if !rule.Due(now) {
			continue
		}
		report.Outcomes = append(report.Outcomes, p.processRule(ctx, rule))
	}

	slog.InfoContext(ctx, "Recurring tick complete",
		"fired", len(report.Fired()),
		"failed", len(report.Failed()),
		"checked", len(rules))

	return report
}

func (p *RecurringProcessor) processRule(ctx context.Context, rule core.RecurringRule) RuleOutcome {
	out := RuleOutcome{
		RuleID:      rule.ID,
		UserID:      rule.UserID,
		ScheduledAt: rule.NextRunAt,
	}

	next, err := Advance(rule.NextRunAt, rule.Frequency, rule.Interval)
	if err != nil {
		slog.ErrorContext(ctx, "Recurring rule has no valid schedule",
			applog.FieldRuleID, rule.ID,
			applog.FieldFrequency, rule.Frequency,
			"error", err)
		out.Status = OutcomeInvalidRule
		out.Err = err
		return out
	}

	var created core.Transaction
	err = p.call(ctx, func(ctx context.Context) error {
		var err error
		created, err = p.sink.InsertTransaction(ctx, rule.Materialize())
		return err
	})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to create transaction from recurring rule",
			applog.FieldRuleID, rule.ID,
			applog.FieldUserID, rule.UserID,
			"scheduled_at", rule.NextRunAt.Format(time.RFC3339),
			"error", err)
		out.Status = OutcomeSinkFailure
		out.Err = err
		return out
	}
	out.TransactionID = created.ID
	out.NextRunAt = next

	rule.NextRunAt = next
	err = p.call(ctx, func(ctx context.Context) error {
		return p.store.SaveRuleSchedule(ctx, rule)
	})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to save next run of recurring rule, occurrence will repeat",
			applog.FieldRuleID, rule.ID,
			applog.FieldTxID, created.ID,
			"next_run_at", next.Format(time.RFC3339),
			"error", err)
		out.Status = OutcomePersistFailure
		out.Err = err
		return out
	}

	out.Status = OutcomeFired
	slog.InfoContext(ctx, "Created transaction from recurring rule",
		applog.FieldRuleID, rule.ID,
		applog.FieldUserID, rule.UserID,
		applog.FieldTxID, created.ID,
		"amount_cents", rule.Amount.Cents,
		applog.FieldFrequency, rule.Frequency,
		"next_run_at", next.Format(time.RFC3339))
	return out
}

// call runs fn under the call timeout and turns a panic into an error.
func (p *RecurringProcessor) call(ctx context.Context, fn func(context.Context) error) (err error) {
	ctx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}
