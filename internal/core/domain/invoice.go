package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceStatus represents the settlement state of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "PENDING"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusUnderpaid InvoiceStatus = "UNDERPAID"
	InvoiceStatusOverpaid  InvoiceStatus = "OVERPAID"
	InvoiceStatusExpired   InvoiceStatus = "EXPIRED"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
)

// Invoice is a payment request bound to a derived address. AmountPaid
// only ever grows; settlement transitions are decided by the settlement
// package, never written ad hoc.
type Invoice struct {
	ID             uuid.UUID       `json:"id"`
	MerchantID     uuid.UUID       `json:"merchant_id"`
	AddressID      uuid.UUID       `json:"address_id"`
	Chain          string          `json:"chain"`
	Currency       string          `json:"currency"`
	RequiredAmount decimal.Decimal `json:"required_amount"`
	AmountPaid     decimal.Decimal `json:"amount_paid"`
	Status         InvoiceStatus   `json:"status"`
	ExpiresAt      time.Time       `json:"expires_at"`
	PaidAt         *time.Time      `json:"paid_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// IsCancellable returns true if an external cancel request may move the
// invoice to CANCELLED.
func (i *Invoice) IsCancellable() bool {
	return i.Status == InvoiceStatusPending ||
		i.Status == InvoiceStatusUnderpaid ||
		i.Status == InvoiceStatusOverpaid
}

// IsSettled returns true once the invoice reached the paid window.
func (i *Invoice) IsSettled() bool {
	return i.Status == InvoiceStatusPaid
}
