package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/ports"
)

// EventPublisher announces transaction changes to other processes.
type EventPublisher interface {
	PublishTransactionEvent(ctx context.Context, evt *amqp.TransactionEvent) error
}

// SummaryInvalidator drops cached aggregates for a user.
type SummaryInvalidator interface {
	InvalidateUser(userID int64)
}

// TransactionInput carries user supplied fields for creating or updating a
// transaction.
type TransactionInput struct {
	Type       string
	Amount     core.Money
	CategoryID int64
	Date       time.Time
	Note       string
}

// TransactionService owns writes to the transaction ledger. It is also the
// sink the recurring scheduler emits into.
type TransactionService struct {
	txs         ports.TransactionRepository
	categories  ports.CategoryRepository
	publisher   EventPublisher
	invalidator SummaryInvalidator
}

// NewTransactionService wires the service. publisher and invalidator may be nil.
func NewTransactionService(txs ports.TransactionRepository, categories ports.CategoryRepository, publisher EventPublisher, invalidator SummaryInvalidator) *TransactionService {
	return &TransactionService{
		txs:         txs,
		categories:  categories,
		publisher:   publisher,
		invalidator: invalidator,
	}
}

var _ ports.TransactionSink = (*TransactionService)(nil)

func (s *TransactionService) build(ctx context.Context, userID int64, in TransactionInput) (core.Transaction, error) {
	typ, err := core.ParseTransactionType(in.Type)
	if err != nil {
		return core.Transaction{}, err
	}
	tx := core.Transaction{
		UserID:     userID,
		Type:       typ,
		Amount:     in.Amount,
		CategoryID: in.CategoryID,
		Date:       in.Date.UTC(),
		Note:       strings.TrimSpace(in.Note),
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if _, err := s.categories.GetCategory(ctx, userID, tx.CategoryID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.Transaction{}, &core.ValidationError{Field: "categoryId", Err: core.ErrMissingCategory}
		}
		return core.Transaction{}, fmt.Errorf("load category: %w", err)
	}
	return tx, nil
}

// Create records a user entered transaction.
func (s *TransactionService) Create(ctx context.Context, userID int64, in TransactionInput) (core.Transaction, error) {
	tx, err := s.build(ctx, userID, in)
	if err != nil {
		return core.Transaction{}, err
	}
	created, err := s.txs.CreateTransaction(ctx, tx)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}
	s.changed(ctx, amqp.TransactionCreated, created)
	return created, nil
}

// InsertTransaction accepts a transaction materialized by the recurring
// scheduler. The category is not re-checked so a deleted category cannot
// wedge the rule.
func (s *TransactionService) InsertTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	created, err := s.txs.CreateTransaction(ctx, tx)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save generated transaction: %w", err)
	}
	s.changed(ctx, amqp.TransactionCreated, created)
	return created, nil
}

func (s *TransactionService) Get(ctx context.Context, userID, id int64) (core.Transaction, error) {
	return s.txs.GetTransaction(ctx, userID, id)
}

func (s *TransactionService) Update(ctx context.Context, userID, id int64, in TransactionInput) (core.Transaction, error) {
	before, err := s.txs.GetTransaction(ctx, userID, id)
	if err != nil {
		return core.Transaction{}, err
	}
	tx, err := s.build(ctx, userID, in)
	if err != nil {
		return core.Transaction{}, err
	}
	tx.ID = id
	updated, err := s.txs.UpdateTransaction(ctx, tx)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	updated.RecurringGenerated = before.RecurringGenerated
	s.changed(ctx, amqp.TransactionUpdated, updated)
	return updated, nil
}

func (s *TransactionService) Delete(ctx context.Context, userID, id int64) error {
	tx, err := s.txs.GetTransaction(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.txs.DeleteTransaction(ctx, userID, id); err != nil {
		return err
	}
	s.changed(ctx, amqp.TransactionDeleted, tx)
	return nil
}

// List returns one page of the user's transactions, newest first.
func (s *TransactionService) List(ctx context.Context, f core.TransactionFilter) (core.TransactionPage, error) {
	f = f.Normalize()
	items, total, err := s.txs.ListTransactions(ctx, f)
	if err != nil {
		return core.TransactionPage{}, fmt.Errorf("list transactions: %w", err)
	}
	return core.TransactionPage{Items: items, Total: total, Page: f.Page, Limit: f.Limit}, nil
}

// changed invalidates local caches and publishes the change. Neither step
// fails the write, which has already been committed.
func (s *TransactionService) changed(ctx context.Context, kind amqp.EventKind, tx core.Transaction) {
	if s.invalidator != nil {
		s.invalidator.InvalidateUser(tx.UserID)
	}
	if s.publisher == nil {
		return
	}
	evt := amqp.NewTransactionEvent(kind, tx)
	if err := s.publisher.PublishTransactionEvent(ctx, evt); err != nil {
		slog.ErrorContext(ctx, "Failed to publish transaction event",
			"event_id", evt.EventID,
			"kind", kind,
			"transaction_id", tx.ID,
			"user_id", tx.UserID,
			"error", err)
	}
}
