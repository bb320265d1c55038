package service

import (
	"context"
	"fmt"

	"crypto-payment-gateway/internal/core/domain"
	"crypto-payment-gateway/internal/core/ports"
	"crypto-payment-gateway/pkg/apperror"

	"github.com/google/uuid"
)

// BalanceServiceImpl implements ports.BalanceService.
type BalanceServiceImpl struct {
	balanceRepo ports.BalanceRepository
}

// NewBalanceService creates a new BalanceServiceImpl.
func NewBalanceService(balanceRepo ports.BalanceRepository) *BalanceServiceImpl {
	return &BalanceServiceImpl{balanceRepo: balanceRepo}
}

// GetMerchantBalances lists per-currency balances for a merchant. A
// merchant with no credited funds yet gets an empty list.
func (s *BalanceServiceImpl) GetMerchantBalances(ctx context.Context, merchantID uuid.UUID) ([]domain.MerchantBalance, error) {
	balances, err := s.balanceRepo.ListByMerchant(ctx, merchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list balances: %w", err))
	}
	return balances, nil
}
