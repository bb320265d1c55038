package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrAlreadyBound is returned when binding an invoice to an address that
// already carries one. An address serves at most one invoice, ever.
var ErrAlreadyBound = errors.New("address already bound to an invoice")

// DerivedAddress is a deposit address issued from a wallet's xpub at a
// specific derivation index. Chain and merchant are denormalized so the
// payment processor can resolve an inbound event without joins.
type DerivedAddress struct {
	ID              uuid.UUID       `json:"id"`
	WalletID        uuid.UUID       `json:"wallet_id"`
	MerchantID      uuid.UUID       `json:"merchant_id"`
	Chain           string          `json:"chain"`
	Address         string          `json:"address"`
	DerivationIndex int64           `json:"derivation_index"`
	InvoiceID       *uuid.UUID      `json:"invoice_id,omitempty"`
	TotalReceived   decimal.Decimal `json:"total_received"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// IsBound returns true if the address is attached to an invoice.
func (a *DerivedAddress) IsBound() bool {
	return a.InvoiceID != nil
}
