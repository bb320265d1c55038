package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OutboxStatus represents the delivery state of an outbox event.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "PENDING"
	OutboxStatusDelivered OutboxStatus = "DELIVERED"
	OutboxStatusFailed    OutboxStatus = "FAILED"
)

// Outbox event types.
const (
	EventTypeInvoiceStatusChanged = "invoice.status_changed"
	EventTypeBalanceUpdated       = "balance.updated"
)

// OutboxEvent is a fact recorded in the same transaction as the state
// change that produced it. The dispatcher claims pending rows under a
// lease and delivers them at-least-once.
type OutboxEvent struct {
	ID            uuid.UUID       `json:"id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	Status        OutboxStatus    `json:"status"`
	Attempts      int             `json:"attempts"`
	NextAttemptAt time.Time       `json:"next_attempt_at"`
	LeaseOwner    *string         `json:"lease_owner,omitempty"`
	LeaseUntil    *time.Time      `json:"lease_until,omitempty"`
	LastError     *string         `json:"last_error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// InvoiceStatusChangedPayload is the wire body of an
// invoice.status_changed event.
type InvoiceStatusChangedPayload struct {
	InvoiceID      uuid.UUID       `json:"invoice_id"`
	MerchantID     uuid.UUID       `json:"merchant_id"`
	Chain          string          `json:"chain"`
	Currency       string          `json:"currency"`
	RequiredAmount decimal.Decimal `json:"required_amount"`
	AmountPaid     decimal.Decimal `json:"amount_paid"`
	OldStatus      InvoiceStatus   `json:"old_status"`
	NewStatus      InvoiceStatus   `json:"new_status"`
	TxHash         string          `json:"tx_hash,omitempty"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

// BalanceUpdatedPayload is the wire body of a balance.updated event.
type BalanceUpdatedPayload struct {
	MerchantID uuid.UUID       `json:"merchant_id"`
	Currency   string          `json:"currency"`
	Delta      decimal.Decimal `json:"delta"`
	Balance    decimal.Decimal `json:"balance"`
	TxHash     string          `json:"tx_hash,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// NewOutboxEvent wraps a payload for durable recording. The id doubles
// as the consumer-side deduplication key.
func NewOutboxEvent(eventType string, payload any, now time.Time) (*OutboxEvent, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		Payload:       body,
		Status:        OutboxStatusPending,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}
