package service

import (
	"context"
	"errors"
	"testing"

	"crypto-payment-gateway/internal/core/domain"
	"crypto-payment-gateway/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestBalanceService_GetMerchantBalances(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	balanceRepo := mocks.NewMockBalanceRepository(ctrl)
	svc := NewBalanceService(balanceRepo)

	ctx := context.Background()
	merchantID := uuid.New()
	balanceRepo.EXPECT().ListByMerchant(ctx, merchantID).Return([]domain.MerchantBalance{
		{MerchantID: merchantID, Currency: "BTC", Balance: decimal.RequireFromString("0.5")},
		{MerchantID: merchantID, Currency: "ETH", Balance: decimal.RequireFromString("12.25")},
	}, nil)

	balances, err := svc.GetMerchantBalances(ctx, merchantID)
	require.NoError(t, err)
	require.Len(t, balances, 2)
	assert.Equal(t, "BTC", balances[0].Currency)
	assert.Equal(t, "ETH", balances[1].Currency)
}

func TestBalanceService_GetMerchantBalances_Empty(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	balanceRepo := mocks.NewMockBalanceRepository(ctrl)
	svc := NewBalanceService(balanceRepo)

	ctx := context.Background()
	merchantID := uuid.New()
	balanceRepo.EXPECT().ListByMerchant(ctx, merchantID).Return(nil, nil)

	balances, err := svc.GetMerchantBalances(ctx, merchantID)
	require.NoError(t, err)
	assert.Empty(t, balances)
}

func TestBalanceService_GetMerchantBalances_RepoError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	balanceRepo := mocks.NewMockBalanceRepository(ctrl)
	svc := NewBalanceService(balanceRepo)

	ctx := context.Background()
	balanceRepo.EXPECT().ListByMerchant(ctx, gomock.Any()).Return(nil, errors.New("connection refused"))

	balances, err := svc.GetMerchantBalances(ctx, uuid.New())
	assert.Nil(t, balances)
	assertAppError(t, err, "SYS_001")
}
