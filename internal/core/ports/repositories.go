package ports

import (
	"context"
	"time"

	"crypto-payment-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// WalletRepository defines persistence operations for xpub wallets.
type WalletRepository interface {
	Create(ctx context.Context, wallet *domain.Wallet) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	// AllocateNextIndex atomically grants the wallet's next derivation
	// index in a single auto-committed statement guarded by the ACTIVE
	// status. The grant survives any downstream failure: an allocated
	// index is spent forever. ok is false when the wallet is missing or
	// not ACTIVE.
	AllocateNextIndex(ctx context.Context, walletID uuid.UUID) (index int64, ok bool, err error)
}

// AddressRepository defines persistence operations for derived addresses.
// Methods accepting pgx.Tx run inside transaction blocks for pessimistic
// locking.
type AddressRepository interface {
	Create(ctx context.Context, address *domain.DerivedAddress) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.DerivedAddress, error)
	GetByChainAddress(ctx context.Context, chain, address string) (*domain.DerivedAddress, error)
	GetByChainAddressForUpdate(ctx context.Context, tx pgx.Tx, chain, address string) (*domain.DerivedAddress, error)
	BindInvoice(ctx context.Context, tx pgx.Tx, addressID, invoiceID uuid.UUID) error
	Credit(ctx context.Context, tx pgx.Tx, addressID uuid.UUID, delta decimal.Decimal) error
}

// InvoiceRepository defines persistence operations for invoices.
type InvoiceRepository interface {
	Create(ctx context.Context, tx pgx.Tx, invoice *domain.Invoice) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Invoice, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Invoice, error)
	// UpdateSettlement persists a settlement decision under the row lock
	// taken by GetByIDForUpdate.
	UpdateSettlement(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.InvoiceStatus, amountPaid decimal.Decimal, paidAt *time.Time) error
	// LockExpiryCandidates selects PENDING invoices past the cutoff with
	// FOR UPDATE SKIP LOCKED so concurrent sweepers never collide.
	LockExpiryCandidates(ctx context.Context, tx pgx.Tx, cutoff time.Time, limit int) ([]domain.Invoice, error)
}

// BalanceRepository defines persistence for the merchant ledger.
type BalanceRepository interface {
	// ApplyDelta runs the atomic upsert-increment and returns the row it
	// produced. Deltas are validated positive before this layer.
	ApplyDelta(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID, currency string, delta decimal.Decimal) (*domain.MerchantBalance, error)
	ListByMerchant(ctx context.Context, merchantID uuid.UUID) ([]domain.MerchantBalance, error)
}

// EventRepository defines persistence for processed payment events
// (durable idempotency layer).
type EventRepository interface {
	Create(ctx context.Context, tx pgx.Tx, event *domain.ProcessedEvent) error
	Get(ctx context.Context, key string) (*domain.ProcessedEvent, error)
}

// OutboxRepository defines persistence for outbox events. Create runs in
// the producing transaction; the claim/ack methods belong to the
// dispatcher loop.
type OutboxRepository interface {
	Create(ctx context.Context, tx pgx.Tx, event *domain.OutboxEvent) error
	// ClaimBatch leases up to limit due PENDING events to owner in one
	// statement (FOR UPDATE SKIP LOCKED inside a CTE). Expired leases are
	// reclaimable.
	ClaimBatch(ctx context.Context, owner string, limit int, leaseUntil time.Time) ([]domain.OutboxEvent, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) error
	ScheduleRetry(ctx context.Context, id uuid.UUID, nextAttemptAt time.Time, lastError string) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
