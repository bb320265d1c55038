package service

import (
	"context"
	"fmt"
	"time"

	"crypto-payment-gateway/internal/core/domain"
	"crypto-payment-gateway/internal/core/ports"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// queueInvoiceStatusChanged stages an invoice.status_changed outbox event
// in the producing transaction, so the notification commits or rolls back
// with the state change it describes.
func queueInvoiceStatusChanged(
	ctx context.Context,
	tx pgx.Tx,
	outboxRepo ports.OutboxRepository,
	inv *domain.Invoice,
	oldStatus, newStatus domain.InvoiceStatus,
	amountPaid decimal.Decimal,
	txHash string,
	now time.Time,
) error {
	payload := domain.InvoiceStatusChangedPayload{
		InvoiceID:      inv.ID,
		MerchantID:     inv.MerchantID,
		Chain:          inv.Chain,
		Currency:       inv.Currency,
		RequiredAmount: inv.RequiredAmount,
		AmountPaid:     amountPaid,
		OldStatus:      oldStatus,
		NewStatus:      newStatus,
		TxHash:         txHash,
		OccurredAt:     now,
	}

	event, err := domain.NewOutboxEvent(domain.EventTypeInvoiceStatusChanged, payload, now)
	if err != nil {
		return fmt.Errorf("build invoice outbox event: %w", err)
	}
	if err := outboxRepo.Create(ctx, tx, event); err != nil {
		return fmt.Errorf("queue invoice outbox event: %w", err)
	}
	return nil
}

// queueBalanceUpdated stages a balance.updated outbox event in the
// producing transaction.
func queueBalanceUpdated(
	ctx context.Context,
	tx pgx.Tx,
	outboxRepo ports.OutboxRepository,
	balance *domain.MerchantBalance,
	delta decimal.Decimal,
	txHash string,
	now time.Time,
) error {
	payload := domain.BalanceUpdatedPayload{
		MerchantID: balance.MerchantID,
		Currency:   balance.Currency,
		Delta:      delta,
		Balance:    balance.Balance,
		TxHash:     txHash,
		OccurredAt: now,
	}

	event, err := domain.NewOutboxEvent(domain.EventTypeBalanceUpdated, payload, now)
	if err != nil {
		return fmt.Errorf("build balance outbox event: %w", err)
	}
	if err := outboxRepo.Create(ctx, tx, event); err != nil {
		return fmt.Errorf("queue balance outbox event: %w", err)
	}
	return nil
}
