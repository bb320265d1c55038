package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrDuplicateEvent is returned when recording a processed event whose
// idempotency key already exists. Concurrent deliveries of the same event
// race on the primary key; exactly one wins.
var ErrDuplicateEvent = errors.New("payment event already recorded")

// PaymentEvent is an inbound notification from the chain monitoring
// collaborator: funds observed at a destination address. LogIndex is set
// for token transfers, where one transaction can carry several transfer
// logs to the same address.
type PaymentEvent struct {
	Chain           string          `json:"chain"`
	Address         string          `json:"address"`
	Amount          decimal.Decimal `json:"amount"`
	TxHash          string          `json:"tx_hash"`
	Confirmations   uint32          `json:"confirmations"`
	ContractAddress *string         `json:"contract_address,omitempty"`
	LogIndex        *uint32         `json:"log_index,omitempty"`
	BlockHeight     *uint64         `json:"block_height,omitempty"`
}

// IdempotencyKey derives the natural identity of the event. The hash is
// lowercased (hex on every supported chain); the address is taken as-is,
// so callers must normalize it first.
func (e *PaymentEvent) IdempotencyKey() string {
	key := fmt.Sprintf("%s:%s:%s", e.Chain, strings.ToLower(e.TxHash), e.Address)
	if e.LogIndex != nil {
		key = fmt.Sprintf("%s:%d", key, *e.LogIndex)
	}
	return key
}

// EventOutcome classifies what processing a payment event did.
type EventOutcome string

const (
	// EventOutcomeApplied means funds were credited.
	EventOutcomeApplied EventOutcome = "APPLIED"
	// EventOutcomeUnmatched means no known address matched; recorded, not fatal.
	EventOutcomeUnmatched EventOutcome = "UNMATCHED"
	// EventOutcomeSeen means confirmations were below threshold; nothing
	// recorded, the confirmed redelivery will apply.
	EventOutcomeSeen EventOutcome = "SEEN"
)

// ProcessedEvent is the durable idempotency record, written in the same
// transaction as the effects it describes.
type ProcessedEvent struct {
	IdempotencyKey string          `json:"idempotency_key"`
	TxHash         string          `json:"tx_hash"`
	Address        string          `json:"address"`
	Chain          string          `json:"chain"`
	Amount         decimal.Decimal `json:"amount"`
	Outcome        EventOutcome    `json:"outcome"`
	InvoiceID      *uuid.UUID      `json:"invoice_id,omitempty"`
	InvoiceStatus  *InvoiceStatus  `json:"invoice_status,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// EventReceipt is what the processor reports back to the caller.
// Duplicate marks an idempotent replay of an already-recorded event.
type EventReceipt struct {
	Outcome       EventOutcome   `json:"outcome"`
	Duplicate     bool           `json:"duplicate"`
	InvoiceID     *uuid.UUID     `json:"invoice_id,omitempty"`
	InvoiceStatus *InvoiceStatus `json:"invoice_status,omitempty"`
}
