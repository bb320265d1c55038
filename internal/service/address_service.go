package service

import (
	"context"
	"fmt"
	"time"

	"crypto-payment-gateway/internal/chain"
	"crypto-payment-gateway/internal/core/domain"
	"crypto-payment-gateway/internal/core/ports"
	"crypto-payment-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// AddressServiceImpl implements ports.AddressService: allocate an index,
// derive the address, persist the mapping.
type AddressServiceImpl struct {
	walletRepo ports.WalletRepository
	addrRepo   ports.AddressRepository
	log        zerolog.Logger
}

// NewAddressService creates a new AddressServiceImpl.
func NewAddressService(
	walletRepo ports.WalletRepository,
	addrRepo ports.AddressRepository,
	log zerolog.Logger,
) *AddressServiceImpl {
	return &AddressServiceImpl{
		walletRepo: walletRepo,
		addrRepo:   addrRepo,
		log:        log,
	}
}

// IssueAddress mints the next deposit address from the wallet's xpub.
// The index grant is a single atomic statement outside any surrounding
// transaction: once granted it is consumed even if derivation or the
// insert below fails, so an index can never back a second address.
func (s *AddressServiceImpl) IssueAddress(ctx context.Context, walletID, merchantID uuid.UUID) (*domain.DerivedAddress, error) {
	wallet, err := s.walletRepo.GetByID(ctx, walletID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}

	spec, err := chain.Lookup(wallet.Chain)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("wallet %s has unresolvable chain %q: %w", wallet.ID, wallet.Chain, err))
	}
	if !wallet.AcceptsDeposits() || !wallet.IsActive() {
		return nil, apperror.ErrWalletUnavailable()
	}

	index, ok, err := s.walletRepo.AllocateNextIndex(ctx, walletID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("allocate index: %w", err))
	}
	if !ok {
		// Deactivated between the read above and the grant.
		return nil, apperror.ErrWalletUnavailable()
	}

	if index >= 1<<31 {
		return nil, apperror.ErrIndexOverflow(index)
	}

	addr, err := chain.DeriveAddress(wallet.Xpub, uint32(index), spec)
	if err != nil {
		return nil, apperror.ErrDerivationFailed(fmt.Errorf("wallet %s index %d: %w", wallet.ID, index, err))
	}

	now := time.Now().UTC()
	derived := &domain.DerivedAddress{
		ID:              uuid.New(),
		WalletID:        wallet.ID,
		MerchantID:      merchantID,
		Chain:           spec.Chain,
		Address:         addr,
		DerivationIndex: index,
		TotalReceived:   decimal.Zero,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.addrRepo.Create(ctx, derived); err != nil {
		// The index stays spent; retrying issuance draws a fresh one.
		return nil, apperror.InternalError(fmt.Errorf("persist derived address: %w", err))
	}

	s.log.Info().
		Str("address_id", derived.ID.String()).
		Str("wallet_id", wallet.ID.String()).
		Str("merchant_id", merchantID.String()).
		Str("chain", spec.Chain).
		Int64("index", index).
		Str("address", addr).
		Msg("deposit address issued")

	return derived, nil
}
