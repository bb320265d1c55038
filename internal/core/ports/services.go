package ports

import (
	"context"
	"time"

	"crypto-payment-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SignatureService handles HMAC-SHA256 signing and verification.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
	BuildCanonicalString(method, path string, timestamp int64, nonce string, body string) string
}

// EventCache is the Redis-layer idempotency check (fast path). The
// durable layer is EventRepository; this one is best-effort.
type EventCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached receipt JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// NonceStore manages nonce uniqueness for replay attack prevention.
type NonceStore interface {
	// CheckAndSet atomically checks if nonce exists, sets it if not.
	// Returns true if nonce is new (valid), false if already used.
	CheckAndSet(ctx context.Context, scope string, nonce string, ttl time.Duration) (bool, error)
}

// --- Service Ports (Business Logic) ---

// WalletService registers and resolves xpub wallets.
type WalletService interface {
	RegisterWallet(ctx context.Context, req RegisterWalletRequest) (*domain.Wallet, error)
	GetWallet(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
}

// RegisterWalletRequest holds validated input for wallet registration.
type RegisterWalletRequest struct {
	Chain          string
	Xpub           string
	DerivationPath string
	Purpose        domain.WalletPurpose
}

// AddressService issues deposit addresses from registered wallets.
type AddressService interface {
	IssueAddress(ctx context.Context, walletID, merchantID uuid.UUID) (*domain.DerivedAddress, error)
}

// InvoiceService owns the invoice lifecycle around the settlement
// machine.
type InvoiceService interface {
	RegisterInvoice(ctx context.Context, req RegisterInvoiceRequest) (*domain.Invoice, error)
	GetInvoice(ctx context.Context, id uuid.UUID) (*domain.Invoice, error)
	CancelInvoice(ctx context.Context, id uuid.UUID) (*domain.Invoice, error)
	// ExpireOverdue sweeps one batch of overdue PENDING invoices and
	// returns how many it expired. Safe to run concurrently.
	ExpireOverdue(ctx context.Context, limit int) (int, error)
}

// RegisterInvoiceRequest holds validated input for invoice registration.
type RegisterInvoiceRequest struct {
	MerchantID uuid.UUID
	AddressID  uuid.UUID
	Amount     decimal.Decimal
	Currency   string
	ExpiresAt  time.Time
}

// PaymentService applies inbound payment notifications.
type PaymentService interface {
	HandlePaymentEvent(ctx context.Context, event *domain.PaymentEvent) (*domain.EventReceipt, error)
}

// BalanceService exposes the merchant ledger for reporting reads.
type BalanceService interface {
	GetMerchantBalances(ctx context.Context, merchantID uuid.UUID) ([]domain.MerchantBalance, error)
}
