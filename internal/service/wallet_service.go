package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crypto-payment-gateway/internal/chain"
	"crypto-payment-gateway/internal/core/domain"
	"crypto-payment-gateway/internal/core/ports"
	"crypto-payment-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// WalletServiceImpl implements ports.WalletService.
type WalletServiceImpl struct {
	walletRepo ports.WalletRepository
	log        zerolog.Logger
}

// NewWalletService creates a new WalletServiceImpl.
func NewWalletService(walletRepo ports.WalletRepository, log zerolog.Logger) *WalletServiceImpl {
	return &WalletServiceImpl{
		walletRepo: walletRepo,
		log:        log,
	}
}

// RegisterWallet validates the chain and key material, then persists the
// wallet with its index cursor at zero.
func (s *WalletServiceImpl) RegisterWallet(ctx context.Context, req ports.RegisterWalletRequest) (*domain.Wallet, error) {
	spec, err := chain.Lookup(req.Chain)
	if err != nil {
		return nil, apperror.ErrUnsupportedChain(req.Chain)
	}

	if err := chain.ValidateExtendedKey(req.Xpub, spec); err != nil {
		switch {
		case errors.Is(err, chain.ErrPrivateKeyMaterial):
			return nil, apperror.ErrInvalidKeyMaterial("extended key contains private material")
		case errors.Is(err, chain.ErrKeyVersionMismatch):
			return nil, apperror.ErrInvalidKeyMaterial(fmt.Sprintf("extended key version does not match chain %s", spec.Chain))
		default:
			return nil, apperror.ErrInvalidKeyMaterial("extended key does not parse")
		}
	}

	purpose := req.Purpose
	if purpose == "" {
		purpose = domain.WalletPurposeDeposit
	}
	if purpose != domain.WalletPurposeDeposit && purpose != domain.WalletPurposeBoth {
		return nil, apperror.Validation(fmt.Sprintf("unknown wallet purpose: %s", purpose))
	}

	now := time.Now().UTC()
	wallet := &domain.Wallet{
		ID:             uuid.New(),
		Chain:          spec.Chain,
		Currency:       spec.Currency,
		Xpub:           req.Xpub,
		DerivationPath: req.DerivationPath,
		NextIndex:      0,
		Status:         domain.WalletStatusActive,
		Purpose:        purpose,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.walletRepo.Create(ctx, wallet); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create wallet: %w", err))
	}

	s.log.Info().
		Str("wallet_id", wallet.ID.String()).
		Str("chain", wallet.Chain).
		Str("currency", wallet.Currency).
		Msg("wallet registered")

	return wallet, nil
}

// GetWallet fetches a wallet by ID.
func (s *WalletServiceImpl) GetWallet(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	wallet, err := s.walletRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}
	return wallet, nil
}
