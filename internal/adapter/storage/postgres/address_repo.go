package postgres

import (
	"context"
	"errors"
	"fmt"

	"crypto-payment-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const addressColumns = `id, wallet_id, merchant_id, chain, address, derivation_index, invoice_id, total_received, created_at, updated_at`

// AddressRepo implements ports.AddressRepository.
type AddressRepo struct {
	pool Pool
}

// NewAddressRepo creates a new AddressRepo.
func NewAddressRepo(pool Pool) *AddressRepo {
	return &AddressRepo{pool: pool}
}

// Create inserts a newly derived address. The UNIQUE constraints on
// (wallet_id, derivation_index) and (chain, address) are the last line
// of defense against index reuse.
func (r *AddressRepo) Create(ctx context.Context, a *domain.DerivedAddress) error {
	query := `INSERT INTO derived_addresses (` + addressColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.pool.Exec(ctx, query,
		a.ID, a.WalletID, a.MerchantID, a.Chain, a.Address,
		a.DerivationIndex, a.InvoiceID, a.TotalReceived, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert derived address: %w", err)
	}
	return nil
}

// GetByID fetches a derived address by its UUID.
func (r *AddressRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.DerivedAddress, error) {
	query := `SELECT ` + addressColumns + ` FROM derived_addresses WHERE id = $1`
	return r.scanAddress(r.pool.QueryRow(ctx, query, id))
}

// GetByChainAddress resolves an address by its (chain, address) identity
// without locking.
func (r *AddressRepo) GetByChainAddress(ctx context.Context, chain, address string) (*domain.DerivedAddress, error) {
	query := `SELECT ` + addressColumns + ` FROM derived_addresses WHERE chain = $1 AND address = $2`
	return r.scanAddress(r.pool.QueryRow(ctx, query, chain, address))
}

// GetByChainAddressForUpdate resolves an address with a pessimistic lock.
// This MUST be called within a transaction.
func (r *AddressRepo) GetByChainAddressForUpdate(ctx context.Context, tx pgx.Tx, chain, address string) (*domain.DerivedAddress, error) {
	query := `SELECT ` + addressColumns + ` FROM derived_addresses WHERE chain = $1 AND address = $2 FOR UPDATE`
	return r.scanAddress(tx.QueryRow(ctx, query, chain, address))
}

// BindInvoice attaches an invoice to an unbound address within a
// transaction. Zero rows affected means the address is missing or
// already bound.
func (r *AddressRepo) BindInvoice(ctx context.Context, tx pgx.Tx, addressID, invoiceID uuid.UUID) error {
	query := `UPDATE derived_addresses SET invoice_id = $1, updated_at = NOW()
		WHERE id = $2 AND invoice_id IS NULL`

	tag, err := tx.Exec(ctx, query, invoiceID, addressID)
	if err != nil {
		return fmt.Errorf("bind invoice to address: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bind invoice to address %s: %w", addressID, domain.ErrAlreadyBound)
	}
	return nil
}

// Credit increments the address's running received total within a
// transaction.
func (r *AddressRepo) Credit(ctx context.Context, tx pgx.Tx, addressID uuid.UUID, delta decimal.Decimal) error {
	query := `UPDATE derived_addresses SET total_received = total_received + $1, updated_at = NOW()
		WHERE id = $2`

	tag, err := tx.Exec(ctx, query, delta, addressID)
	if err != nil {
		return fmt.Errorf("credit address: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("address not found: %s", addressID)
	}
	return nil
}

// scanAddress is a helper to scan a single row into a DerivedAddress.
func (r *AddressRepo) scanAddress(row pgx.Row) (*domain.DerivedAddress, error) {
	a := &domain.DerivedAddress{}
	err := row.Scan(
		&a.ID, &a.WalletID, &a.MerchantID, &a.Chain, &a.Address,
		&a.DerivationIndex, &a.InvoiceID, &a.TotalReceived, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan derived address: %w", err)
	}
	return a, nil
}
