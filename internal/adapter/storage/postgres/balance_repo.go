package postgres

import (
	"context"
	"fmt"

	"crypto-payment-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// BalanceRepo implements ports.BalanceRepository.
type BalanceRepo struct {
	pool Pool
}

// NewBalanceRepo creates a new BalanceRepo.
func NewBalanceRepo(pool Pool) *BalanceRepo {
	return &BalanceRepo{pool: pool}
}

// ApplyDelta credits the merchant's per-currency ledger line in a single
// upsert-increment. The arithmetic happens in the statement, never from
// a value read into application memory, so concurrent credits cannot
// lose updates.
func (r *BalanceRepo) ApplyDelta(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID, currency string, delta decimal.Decimal) (*domain.MerchantBalance, error) {
	query := `INSERT INTO merchant_balances (merchant_id, currency, balance, total_received, updated_at)
		VALUES ($1, $2, $3, $3, NOW())
		ON CONFLICT (merchant_id, currency) DO UPDATE SET
			balance = merchant_balances.balance + EXCLUDED.balance,
			total_received = merchant_balances.total_received + EXCLUDED.total_received,
			updated_at = NOW()
		RETURNING merchant_id, currency, balance, total_received, updated_at`

	b := &domain.MerchantBalance{}
	err := tx.QueryRow(ctx, query, merchantID, currency, delta).Scan(
		&b.MerchantID, &b.Currency, &b.Balance, &b.TotalReceived, &b.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("apply balance delta: %w", err)
	}
	return b, nil
}

// ListByMerchant fetches all currency lines for a merchant.
func (r *BalanceRepo) ListByMerchant(ctx context.Context, merchantID uuid.UUID) ([]domain.MerchantBalance, error) {
	query := `SELECT merchant_id, currency, balance, total_received, updated_at
		FROM merchant_balances WHERE merchant_id = $1 ORDER BY currency`

	rows, err := r.pool.Query(ctx, query, merchantID)
	if err != nil {
		return nil, fmt.Errorf("list merchant balances: %w", err)
	}
	defer rows.Close()

	var balances []domain.MerchantBalance
	for rows.Next() {
		b := domain.MerchantBalance{}
		if err := rows.Scan(&b.MerchantID, &b.Currency, &b.Balance, &b.TotalReceived, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan merchant balance: %w", err)
		}
		balances = append(balances, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate merchant balances: %w", err)
	}
	return balances, nil
}
