package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"fintrack/internal/core"
)

type fakeRuleStore struct {
	mu        sync.Mutex
	rules     map[int64]core.RecurringRule
	findErr   error
	saveErr   map[int64]error
	ignoreDue bool // return every rule, due or not
	saves     int
}

func newFakeRuleStore(rules ...core.RecurringRule) *fakeRuleStore {
	s := &fakeRuleStore{rules: map[int64]core.RecurringRule{}, saveErr: map[int64]error{}}
	for _, r := range rules {
		s.rules[r.ID] = r
	}
	return s
}

func (s *fakeRuleStore) FindDueRules(ctx context.Context, now time.Time) ([]core.RecurringRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	var out []core.RecurringRule
	for _, r := range s.rules {
		if s.ignoreDue || r.Due(now) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeRuleStore) SaveRuleSchedule(ctx context.Context, rule core.RecurringRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if err := s.saveErr[rule.ID]; err != nil {
		return err
	}
	stored := s.rules[rule.ID]
	stored.NextRunAt = rule.NextRunAt
	s.rules[rule.ID] = stored
	return nil
}

func (s *fakeRuleStore) get(id int64) core.RecurringRule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rules[id]
}

type fakeSink struct {
	mu      sync.Mutex
	txs     []core.Transaction
	failFor map[int64]error // by rule id
	block   chan struct{}   // when set, inserts wait on it
	entered chan struct{}
	panics  bool
}

func newFakeSink() *fakeSink {
	return &fakeSink{failFor: map[int64]error{}}
}

func (s *fakeSink) InsertTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.block != nil {
		<-s.block
	}
	if s.panics {
		panic("sink exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failFor[tx.RecurringRuleID]; err != nil {
		return core.Transaction{}, err
	}
	tx.ID = int64(len(s.txs) + 1)
	s.txs = append(s.txs, tx)
	return tx, nil
}

func (s *fakeSink) all() []core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Transaction(nil), s.txs...)
}

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func monthlyRent() core.RecurringRule {
	return core.RecurringRule{
		ID:         1,
		UserID:     42,
		Type:       core.Expense,
		Amount:     core.Money{Cents: 50000},
		CategoryID: 7,
		Frequency:  core.Monthly,
		Interval:   1,
		NextRunAt:  date(2024, 1, 15),
		IsActive:   true,
		Note:       "rent",
	}
}

func TestRecurringProcessor_MonthlyEndToEnd(t *testing.T) {
	store := newFakeRuleStore(monthlyRent())
	sink := newFakeSink()
	p := NewRecurringProcessor(store, sink, nil, 0)

	report := p.Tick(context.Background(), date(2024, 1, 20))

	if got := report.Fired(); len(got) != 1 || got[0] != 1 {
		t.Fatalf("Fired() = %v, want [1]", got)
	}
	txs := sink.all()
	if len(txs) != 1 {
		t.Fatalf("sink received %d transactions, want 1", len(txs))
	}
	tx := txs[0]
	if !tx.Date.Equal(date(2024, 1, 15)) {
		t.Errorf("transaction date = %v, want 2024-01-15", tx.Date)
	}
	if tx.Amount.Cents != 50000 || tx.Type != core.Expense || tx.UserID != 42 || tx.CategoryID != 7 || tx.Note != "rent" {
		t.Errorf("transaction fields not copied from rule: %+v", tx)
	}
	if !tx.RecurringGenerated || tx.RecurringRuleID != 1 {
		t.Errorf("transaction not flagged as generated: %+v", tx)
	}
	if next := store.get(1).NextRunAt; !next.Equal(date(2024, 2, 15)) {
		t.Errorf("NextRunAt = %v, want 2024-02-15", next)
	}
	if o := report.Outcomes[0]; o.Status != OutcomeFired || o.TransactionID != 1 || !o.NextRunAt.Equal(date(2024, 2, 15)) {
		t.Errorf("outcome = %+v", o)
	}

	// Same instant again: nothing left to do.
	report = p.Tick(context.Background(), date(2024, 1, 20))
	if len(report.Outcomes) != 0 || len(sink.all()) != 1 {
		t.Errorf("second tick fired again: %+v", report)
	}
}

func TestRecurringProcessor_NotDue(t *testing.T) {
	now := date(2024, 1, 20)
	future := monthlyRent()
	future.ID = 1
	future.NextRunAt = now.Add(time.Second)
	paused := monthlyRent()
	paused.ID = 2
	paused.IsActive = false
	paused.NextRunAt = date(2023, 6, 1)

	tests := []struct {
		name      string
		ignoreDue bool
	}{
		{name: "store filters"},
		{name: "store returns everything", ignoreDue: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeRuleStore(future, paused)
			store.ignoreDue = tt.ignoreDue
			sink := newFakeSink()
			p := NewRecurringProcessor(store, sink, nil, 0)

			report := p.Tick(context.Background(), now)

			if len(report.Fired()) != 0 || len(sink.all()) != 0 {
				t.Errorf("fired rules that were not due: %+v", report)
			}
			if store.saves != 0 {
				t.Errorf("saved %d schedules, want 0", store.saves)
			}
		})
	}
}

func TestRecurringProcessor_OneFirePerTick(t *testing.T) {
	rule := core.RecurringRule{
		ID: 5, UserID: 1, Type: core.Expense, Amount: core.Money{Cents: 300}, CategoryID: 2,
		Frequency: core.Daily, Interval: 1, NextRunAt: date(2024, 1, 10), IsActive: true,
	}
	store := newFakeRuleStore(rule)
	sink := newFakeSink()
	p := NewRecurringProcessor(store, sink, nil, 0)
	now := date(2024, 1, 15)

	report := p.Tick(context.Background(), now)

	if len(sink.all()) != 1 {
		t.Fatalf("got %d transactions, want exactly 1 despite 5 elapsed days", len(sink.all()))
	}
	if next := store.get(5).NextRunAt; !next.Equal(date(2024, 1, 11)) {
		t.Errorf("NextRunAt = %v, want 2024-01-11 (no back-fill)", next)
	}
	if len(report.Outcomes) != 1 {
		t.Errorf("outcomes = %d, want 1", len(report.Outcomes))
	}

	// The rule is still due, so each following tick catches up by one.
	p.Tick(context.Background(), now)
	if got := len(sink.all()); got != 2 {
		t.Errorf("after second tick got %d transactions, want 2", got)
	}
	if next := store.get(5).NextRunAt; !next.Equal(date(2024, 1, 12)) {
		t.Errorf("NextRunAt = %v, want 2024-01-12", next)
	}
}

func TestRecurringProcessor_SinkFailureLeavesRuleDue(t *testing.T) {
	store := newFakeRuleStore(monthlyRent())
	sink := newFakeSink()
	sink.failFor[1] = errors.New("db down")
	p := NewRecurringProcessor(store, sink, nil, 0)
	now := date(2024, 1, 20)

	report := p.Tick(context.Background(), now)

	if len(report.Fired()) != 0 {
		t.Errorf("Fired() = %v, want none", report.Fired())
	}
	if o := report.Outcomes[0]; o.Status != OutcomeSinkFailure || o.Err == nil || o.TransactionID != 0 {
		t.Errorf("outcome = %+v, want sink failure", o)
	}
	if next := store.get(1).NextRunAt; !next.Equal(date(2024, 1, 15)) {
		t.Errorf("NextRunAt = %v, want unchanged 2024-01-15", next)
	}
	if store.saves != 0 {
		t.Errorf("saves = %d, want 0", store.saves)
	}

	delete(sink.failFor, 1)
	report = p.Tick(context.Background(), now)
	if got := report.Fired(); len(got) != 1 {
		t.Errorf("retry Fired() = %v, want [1]", got)
	}
	if tx := sink.all()[0]; !tx.Date.Equal(date(2024, 1, 15)) {
		t.Errorf("retried transaction date = %v, want original occurrence", tx.Date)
	}
}

func TestRecurringProcessor_PartialFailure(t *testing.T) {
	a := monthlyRent()
	b := monthlyRent()
	b.ID = 2
	b.NextRunAt = date(2024, 1, 18)
	store := newFakeRuleStore(a, b)
	sink := newFakeSink()
	sink.failFor[1] = errors.New("constraint violation")
	p := NewRecurringProcessor(store, sink, nil, 0)

	report := p.Tick(context.Background(), date(2024, 1, 20))

	if len(report.Outcomes) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(report.Outcomes))
	}
	byID := map[int64]RuleOutcome{}
	for _, o := range report.Outcomes {
		byID[o.RuleID] = o
	}
	if byID[1].Status != OutcomeSinkFailure {
		t.Errorf("rule 1 status = %s, want %s", byID[1].Status, OutcomeSinkFailure)
	}
	if byID[2].Status != OutcomeFired {
		t.Errorf("rule 2 status = %s, want %s", byID[2].Status, OutcomeFired)
	}
	if next := store.get(1).NextRunAt; !next.Equal(date(2024, 1, 15)) {
		t.Errorf("failed rule advanced to %v", next)
	}
	if next := store.get(2).NextRunAt; !next.Equal(date(2024, 2, 18)) {
		t.Errorf("succeeding rule NextRunAt = %v, want 2024-02-18", next)
	}
	if failed := report.Failed(); len(failed) != 1 || failed[0].RuleID != 1 {
		t.Errorf("Failed() = %+v", failed)
	}
}

func TestRecurringProcessor_PersistFailureIsAtLeastOnce(t *testing.T) {
	store := newFakeRuleStore(monthlyRent())
	store.saveErr[1] = errors.New("write timeout")
	sink := newFakeSink()
	p := NewRecurringProcessor(store, sink, nil, 0)
	now := date(2024, 1, 20)

	report := p.Tick(context.Background(), now)

	o := report.Outcomes[0]
	if o.Status != OutcomePersistFailure || o.Err == nil {
		t.Fatalf("outcome = %+v, want persist failure", o)
	}
	if o.TransactionID == 0 {
		t.Error("persist failure should still report the emitted transaction")
	}
	if got := report.Fired(); len(got) != 1 {
		t.Errorf("Fired() = %v, emitted rule should count as fired", got)
	}

	p.Tick(context.Background(), now)
	if got := len(sink.all()); got != 2 {
		t.Errorf("transactions = %d, want duplicate after persist failure", got)
	}
}

func TestRecurringProcessor_InvalidFrequencyEmitsNothing(t *testing.T) {
	rule := monthlyRent()
	rule.Frequency = "fortnightly"
	store := newFakeRuleStore(rule)
	sink := newFakeSink()
	p := NewRecurringProcessor(store, sink, nil, 0)

	report := p.Tick(context.Background(), date(2024, 1, 20))

	if report.Outcomes[0].Status != OutcomeInvalidRule {
		t.Errorf("status = %s, want %s", report.Outcomes[0].Status, OutcomeInvalidRule)
	}
	if len(sink.all()) != 0 {
		t.Error("invalid rule should not emit a transaction")
	}
}

func TestRecurringProcessor_OverflowingIntervalEmitsNothing(t *testing.T) {
	rule := monthlyRent()
	rule.Frequency = core.Weekly
	rule.Interval = 1 << 61
	store := newFakeRuleStore(rule)
	sink := newFakeSink()
	p := NewRecurringProcessor(store, sink, nil, 0)

	for i := 0; i < 3; i++ {
		report := p.Tick(context.Background(), date(2024, 1, 20))
		if report.Outcomes[0].Status != OutcomeInvalidRule {
			t.Fatalf("tick %d status = %s, want %s", i, report.Outcomes[0].Status, OutcomeInvalidRule)
		}
	}
	if n := len(sink.all()); n != 0 {
		t.Errorf("emitted %d transactions, want 0", n)
	}
	if got := store.get(rule.ID).NextRunAt; !got.Equal(rule.NextRunAt) {
		t.Errorf("NextRunAt = %v, want unchanged %v", got, rule.NextRunAt)
	}
}

func TestRecurringProcessor_FindFailure(t *testing.T) {
	store := newFakeRuleStore(monthlyRent())
	store.findErr = errors.New("connection refused")
	p := NewRecurringProcessor(store, newFakeSink(), nil, 0)

	report := p.Tick(context.Background(), date(2024, 1, 20))

	if report.Err == nil {
		t.Error("expected report error when due rules cannot be loaded")
	}
	if len(report.Outcomes) != 0 {
		t.Errorf("outcomes = %+v, want none", report.Outcomes)
	}
}

func TestRecurringProcessor_SinkPanicIsContained(t *testing.T) {
	store := newFakeRuleStore(monthlyRent())
	sink := newFakeSink()
	sink.panics = true
	p := NewRecurringProcessor(store, sink, nil, 0)

	report := p.Tick(context.Background(), date(2024, 1, 20))

	if o := report.Outcomes[0]; o.Status != OutcomeSinkFailure || o.Err == nil {
		t.Errorf("outcome = %+v, want contained sink failure", o)
	}
}

func TestRecurringProcessor_CancelledContextStillRuns(t *testing.T) {
	store := newFakeRuleStore(monthlyRent())
	sink := newFakeSink()
	p := NewRecurringProcessor(store, sink, nil, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := p.Tick(ctx, date(2024, 1, 20))

	if len(report.Fired()) != 1 {
		t.Errorf("Fired() = %v, a started tick must not be cancelled", report.Fired())
	}
}

func TestRecurringProcessor_OverlappingTickSkipped(t *testing.T) {
	store := newFakeRuleStore(monthlyRent())
	sink := newFakeSink()
	sink.block = make(chan struct{})
	sink.entered = make(chan struct{}, 1)
	p := NewRecurringProcessor(store, sink, nil, 0)
	now := date(2024, 1, 20)

	done := make(chan TickReport)
	go func() { done <- p.Tick(context.Background(), now) }()
	<-sink.entered

	second := p.Tick(context.Background(), now)
	if !second.Skipped {
		t.Error("overlapping tick should be skipped")
	}
	if len(second.Outcomes) != 0 {
		t.Errorf("skipped tick produced outcomes: %+v", second.Outcomes)
	}

	close(sink.block)
	first := <-done
	if len(first.Fired()) != 1 {
		t.Errorf("first tick Fired() = %v, want [1]", first.Fired())
	}
	if got := len(sink.all()); got != 1 {
		t.Errorf("transactions = %d, want 1", got)
	}
}

func TestRecurringProcessor_TickNowUsesClock(t *testing.T) {
	clock := core.NewFixedClock(date(2024, 1, 14))
	store := newFakeRuleStore(monthlyRent())
	sink := newFakeSink()
	p := NewRecurringProcessor(store, sink, clock, time.Second)

	if got := p.TickNow(context.Background()).Fired(); len(got) != 0 {
		t.Fatalf("fired before start date: %v", got)
	}
	clock.Set(date(2024, 1, 15))
	if got := p.TickNow(context.Background()).Fired(); len(got) != 1 {
		t.Errorf("rule due exactly now should fire, got %v", got)
	}
}
