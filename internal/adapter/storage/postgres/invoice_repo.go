package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crypto-payment-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const invoiceColumns = `id, merchant_id, address_id, chain, currency, required_amount, amount_paid, status, expires_at, paid_at, created_at, updated_at`

// InvoiceRepo implements ports.InvoiceRepository.
type InvoiceRepo struct {
	pool Pool
}

// NewInvoiceRepo creates a new InvoiceRepo.
func NewInvoiceRepo(pool Pool) *InvoiceRepo {
	return &InvoiceRepo{pool: pool}
}

// Create inserts a new invoice within a database transaction, so the
// invoice row and its address binding commit together.
func (r *InvoiceRepo) Create(ctx context.Context, tx pgx.Tx, inv *domain.Invoice) error {
	query := `INSERT INTO invoices (` + invoiceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := tx.Exec(ctx, query,
		inv.ID, inv.MerchantID, inv.AddressID, inv.Chain, inv.Currency,
		inv.RequiredAmount, inv.AmountPaid, inv.Status,
		inv.ExpiresAt, inv.PaidAt, inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}
	return nil
}

// GetByID fetches an invoice by its UUID.
func (r *InvoiceRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	return r.scanInvoice(r.pool.QueryRow(ctx, query, id))
}

// GetByIDForUpdate fetches an invoice with a pessimistic lock. All
// settlement math for one invoice serializes on this lock. This MUST be
// called within a transaction.
func (r *InvoiceRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1 FOR UPDATE`
	return r.scanInvoice(tx.QueryRow(ctx, query, id))
}

// UpdateSettlement persists a settlement decision under the row lock
// taken by GetByIDForUpdate. paid_at is only ever set once.
func (r *InvoiceRepo) UpdateSettlement(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.InvoiceStatus, amountPaid decimal.Decimal, paidAt *time.Time) error {
	query := `UPDATE invoices SET status = $1, amount_paid = $2, paid_at = COALESCE(paid_at, $3), updated_at = NOW()
		WHERE id = $4`

	tag, err := tx.Exec(ctx, query, status, amountPaid, paidAt, id)
	if err != nil {
		return fmt.Errorf("update invoice settlement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("invoice not found: %s", id)
	}
	return nil
}

// LockExpiryCandidates selects overdue PENDING invoices with
// FOR UPDATE SKIP LOCKED, so concurrent sweepers partition the work
// instead of blocking on each other. This MUST be called within a
// transaction; the locks hold until it ends.
func (r *InvoiceRepo) LockExpiryCandidates(ctx context.Context, tx pgx.Tx, cutoff time.Time, limit int) ([]domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices
		WHERE status = 'PENDING' AND expires_at <= $1
		ORDER BY expires_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED`

	rows, err := tx.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("lock expiry candidates: %w", err)
	}
	defer rows.Close()

	var invoices []domain.Invoice
	for rows.Next() {
		inv := domain.Invoice{}
		err := rows.Scan(
			&inv.ID, &inv.MerchantID, &inv.AddressID, &inv.Chain, &inv.Currency,
			&inv.RequiredAmount, &inv.AmountPaid, &inv.Status,
			&inv.ExpiresAt, &inv.PaidAt, &inv.CreatedAt, &inv.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan expiry candidate: %w", err)
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expiry candidates: %w", err)
	}
	return invoices, nil
}

// scanInvoice is a helper to scan a single row into an Invoice.
func (r *InvoiceRepo) scanInvoice(row pgx.Row) (*domain.Invoice, error) {
	inv := &domain.Invoice{}
	err := row.Scan(
		&inv.ID, &inv.MerchantID, &inv.AddressID, &inv.Chain, &inv.Currency,
		&inv.RequiredAmount, &inv.AmountPaid, &inv.Status,
		&inv.ExpiresAt, &inv.PaidAt, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan invoice: %w", err)
	}
	return inv, nil
}
