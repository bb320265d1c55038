package postgres

import (
	"context"
	"errors"
	"fmt"

	"crypto-payment-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// Create inserts a new wallet into the database.
func (r *WalletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	query := `INSERT INTO wallets (id, chain, currency, xpub, derivation_path, next_index, status, purpose, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.pool.Exec(ctx, query,
		w.ID, w.Chain, w.Currency, w.Xpub, w.DerivationPath,
		w.NextIndex, w.Status, w.Purpose, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// GetByID fetches a wallet by its UUID.
func (r *WalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT id, chain, currency, xpub, derivation_path, next_index, status, purpose, created_at, updated_at
		FROM wallets WHERE id = $1`

	w := &domain.Wallet{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&w.ID, &w.Chain, &w.Currency, &w.Xpub, &w.DerivationPath,
		&w.NextIndex, &w.Status, &w.Purpose, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get wallet by id: %w", err)
	}
	return w, nil
}

// AllocateNextIndex grants the wallet's next derivation index. The
// increment, the ACTIVE guard and the read of the granted value are one
// statement, so concurrent callers each get a distinct index with no
// gaps and no read-modify-write window. The statement auto-commits:
// whatever happens to the caller afterwards, the index stays spent.
func (r *WalletRepo) AllocateNextIndex(ctx context.Context, walletID uuid.UUID) (int64, bool, error) {
	query := `UPDATE wallets SET next_index = next_index + 1, updated_at = NOW()
		WHERE id = $1 AND status = 'ACTIVE'
		RETURNING next_index - 1`

	var index int64
	err := r.pool.QueryRow(ctx, query, walletID).Scan(&index)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Missing and inactive wallets are indistinguishable here on purpose.
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("allocate derivation index: %w", err)
	}
	return index, true, nil
}
