package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MerchantBalance is the per-currency ledger line for a merchant.
// Balance never goes negative here: this core only credits.
type MerchantBalance struct {
	MerchantID    uuid.UUID       `json:"merchant_id"`
	Currency      string          `json:"currency"`
	Balance       decimal.Decimal `json:"balance"`
	TotalReceived decimal.Decimal `json:"total_received"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
