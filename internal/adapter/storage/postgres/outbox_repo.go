package postgres

import (
	"context"
	"fmt"
	"time"

	"crypto-payment-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const outboxColumns = `id, event_type, payload, status, attempts, next_attempt_at, lease_owner, lease_until, last_error, created_at, updated_at`

// OutboxRepo implements ports.OutboxRepository.
type OutboxRepo struct {
	pool Pool
}

// NewOutboxRepo creates a new OutboxRepo.
func NewOutboxRepo(pool Pool) *OutboxRepo {
	return &OutboxRepo{pool: pool}
}

// Create records an outbox event inside the transaction that produced
// the fact it describes.
func (r *OutboxRepo) Create(ctx context.Context, tx pgx.Tx, e *domain.OutboxEvent) error {
	query := `INSERT INTO outbox_events (` + outboxColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := tx.Exec(ctx, query,
		e.ID, e.EventType, e.Payload, e.Status, e.Attempts,
		e.NextAttemptAt, e.LeaseOwner, e.LeaseUntil, e.LastError,
		e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

// ClaimBatch leases up to limit due events to owner. Selection and lease
// write are one statement: SKIP LOCKED keeps concurrent dispatchers off
// each other's rows, and an expired lease makes the row claimable again
// after a crashed owner.
func (r *OutboxRepo) ClaimBatch(ctx context.Context, owner string, limit int, leaseUntil time.Time) ([]domain.OutboxEvent, error) {
	query := `WITH due AS (
			SELECT id FROM outbox_events
			WHERE status = 'PENDING'
			  AND next_attempt_at <= NOW()
			  AND (lease_until IS NULL OR lease_until < NOW())
			ORDER BY next_attempt_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE outbox_events o SET lease_owner = $2, lease_until = $3, updated_at = NOW()
		FROM due WHERE o.id = due.id
		RETURNING o.id, o.event_type, o.payload, o.status, o.attempts, o.next_attempt_at, o.lease_owner, o.lease_until, o.last_error, o.created_at, o.updated_at`

	rows, err := r.pool.Query(ctx, query, limit, owner, leaseUntil)
	if err != nil {
		return nil, fmt.Errorf("claim outbox batch: %w", err)
	}
	defer rows.Close()

	var events []domain.OutboxEvent
	for rows.Next() {
		e := domain.OutboxEvent{}
		err := rows.Scan(
			&e.ID, &e.EventType, &e.Payload, &e.Status, &e.Attempts,
			&e.NextAttemptAt, &e.LeaseOwner, &e.LeaseUntil, &e.LastError,
			&e.CreatedAt, &e.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan claimed outbox event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claimed outbox events: %w", err)
	}
	return events, nil
}

// MarkDelivered finishes an event and releases its lease.
func (r *OutboxRepo) MarkDelivered(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE outbox_events
		SET status = 'DELIVERED', lease_owner = NULL, lease_until = NULL, last_error = NULL, updated_at = NOW()
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("mark outbox event delivered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("outbox event not found: %s", id)
	}
	return nil
}

// ScheduleRetry releases the lease, bumps the attempt counter and
// reschedules the event.
func (r *OutboxRepo) ScheduleRetry(ctx context.Context, id uuid.UUID, nextAttemptAt time.Time, lastError string) error {
	query := `UPDATE outbox_events
		SET attempts = attempts + 1, next_attempt_at = $1, last_error = $2,
			lease_owner = NULL, lease_until = NULL, updated_at = NOW()
		WHERE id = $3`

	tag, err := r.pool.Exec(ctx, query, nextAttemptAt, lastError, id)
	if err != nil {
		return fmt.Errorf("schedule outbox retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("outbox event not found: %s", id)
	}
	return nil
}

// MarkFailed dead-letters an event after its final attempt.
func (r *OutboxRepo) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	query := `UPDATE outbox_events
		SET status = 'FAILED', attempts = attempts + 1, last_error = $1,
			lease_owner = NULL, lease_until = NULL, updated_at = NOW()
		WHERE id = $2`

	tag, err := r.pool.Exec(ctx, query, lastError, id)
	if err != nil {
		return fmt.Errorf("mark outbox event failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("outbox event not found: %s", id)
	}
	return nil
}
