package postgres

import (
	"context"
	"errors"
	"fmt"

	"crypto-payment-gateway/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// EventRepo implements ports.EventRepository, the durable idempotency
// layer for payment events.
type EventRepo struct {
	pool Pool
}

// NewEventRepo creates a new EventRepo.
func NewEventRepo(pool Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

// Create inserts a processed-event record within a database transaction.
// The primary key on idempotency_key turns a concurrent duplicate into
// domain.ErrDuplicateEvent: exactly one delivery of an event ever commits.
func (r *EventRepo) Create(ctx context.Context, tx pgx.Tx, e *domain.ProcessedEvent) error {
	query := `INSERT INTO processed_events (idempotency_key, tx_hash, address, chain, amount, outcome, invoice_id, invoice_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := tx.Exec(ctx, query,
		e.IdempotencyKey, e.TxHash, e.Address, e.Chain, e.Amount,
		e.Outcome, e.InvoiceID, e.InvoiceStatus, e.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("record event %s: %w", e.IdempotencyKey, domain.ErrDuplicateEvent)
		}
		return fmt.Errorf("insert processed event: %w", err)
	}
	return nil
}

// Get fetches a processed-event record by idempotency key.
func (r *EventRepo) Get(ctx context.Context, key string) (*domain.ProcessedEvent, error) {
	query := `SELECT idempotency_key, tx_hash, address, chain, amount, outcome, invoice_id, invoice_status, created_at
		FROM processed_events WHERE idempotency_key = $1`

	e := &domain.ProcessedEvent{}
	err := r.pool.QueryRow(ctx, query, key).Scan(
		&e.IdempotencyKey, &e.TxHash, &e.Address, &e.Chain, &e.Amount,
		&e.Outcome, &e.InvoiceID, &e.InvoiceStatus, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get processed event: %w", err)
	}
	return e, nil
}
