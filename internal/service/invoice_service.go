package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crypto-payment-gateway/internal/core/domain"
	"crypto-payment-gateway/internal/core/ports"
	"crypto-payment-gateway/internal/settlement"
	"crypto-payment-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// InvoiceServiceImpl implements ports.InvoiceService.
type InvoiceServiceImpl struct {
	invoiceRepo ports.InvoiceRepository
	addrRepo    ports.AddressRepository
	outboxRepo  ports.OutboxRepository
	transactor  ports.DBTransactor
	policies    SettlementPolicies
	log         zerolog.Logger
}

// NewInvoiceService creates a new InvoiceServiceImpl.
func NewInvoiceService(
	invoiceRepo ports.InvoiceRepository,
	addrRepo ports.AddressRepository,
	outboxRepo ports.OutboxRepository,
	transactor ports.DBTransactor,
	policies SettlementPolicies,
	log zerolog.Logger,
) *InvoiceServiceImpl {
	return &InvoiceServiceImpl{
		invoiceRepo: invoiceRepo,
		addrRepo:    addrRepo,
		outboxRepo:  outboxRepo,
		transactor:  transactor,
		policies:    policies,
		log:         log,
	}
}

// RegisterInvoice opens a PENDING invoice on a previously issued address
// and binds the address to it. Create and bind commit together.
func (s *InvoiceServiceImpl) RegisterInvoice(ctx context.Context, req ports.RegisterInvoiceRequest) (*domain.Invoice, error) {
	if !req.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}

	now := time.Now().UTC()
	if !req.ExpiresAt.After(now) {
		return nil, apperror.ErrInvalidExpiry()
	}

	address, err := s.addrRepo.GetByID(ctx, req.AddressID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get address: %w", err))
	}
	if address == nil {
		return nil, apperror.ErrNotFound("address")
	}
	if address.MerchantID != req.MerchantID {
		return nil, apperror.ErrAddressOwnership()
	}
	if address.IsBound() {
		return nil, apperror.ErrAddressAlreadyBound()
	}

	invoice := &domain.Invoice{
		ID:             uuid.New(),
		MerchantID:     req.MerchantID,
		AddressID:      address.ID,
		Chain:          address.Chain,
		Currency:       req.Currency,
		RequiredAmount: req.Amount,
		AmountPaid:     decimal.Zero,
		Status:         domain.InvoiceStatusPending,
		ExpiresAt:      req.ExpiresAt.UTC(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.invoiceRepo.Create(ctx, dbTx, invoice); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create invoice: %w", err))
	}

	// The bind is guarded by invoice_id IS NULL, so a concurrent
	// registration racing on the same address loses here.
	if err := s.addrRepo.BindInvoice(ctx, dbTx, address.ID, invoice.ID); err != nil {
		if errors.Is(err, domain.ErrAlreadyBound) {
			return nil, apperror.ErrAddressAlreadyBound()
		}
		return nil, apperror.InternalError(fmt.Errorf("bind address: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("invoice_id", invoice.ID.String()).
		Str("merchant_id", invoice.MerchantID.String()).
		Str("address_id", address.ID.String()).
		Str("chain", invoice.Chain).
		Str("required_amount", invoice.RequiredAmount.String()).
		Time("expires_at", invoice.ExpiresAt).
		Msg("invoice registered")

	return invoice, nil
}

// GetInvoice fetches an invoice by ID.
func (s *InvoiceServiceImpl) GetInvoice(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	invoice, err := s.invoiceRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get invoice: %w", err))
	}
	if invoice == nil {
		return nil, apperror.ErrNotFound("invoice")
	}
	return invoice, nil
}

// CancelInvoice moves an invoice to CANCELLED under its row lock.
func (s *InvoiceServiceImpl) CancelInvoice(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	invoice, err := s.invoiceRepo.GetByIDForUpdate(ctx, dbTx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock invoice: %w", err))
	}
	if invoice == nil {
		return nil, apperror.ErrNotFound("invoice")
	}

	decision, err := settlement.Cancel(invoice)
	if err != nil {
		return nil, apperror.ErrNotCancellable(string(invoice.Status))
	}

	if err := s.invoiceRepo.UpdateSettlement(ctx, dbTx, invoice.ID, decision.NewStatus, decision.NewAmountPaid, decision.PaidAt); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("persist cancellation: %w", err))
	}

	now := time.Now().UTC()
	if err := queueInvoiceStatusChanged(ctx, dbTx, s.outboxRepo, invoice, invoice.Status, decision.NewStatus, decision.NewAmountPaid, "", now); err != nil {
		return nil, apperror.InternalError(err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("invoice_id", invoice.ID.String()).
		Str("old_status", string(invoice.Status)).
		Msg("invoice cancelled")

	invoice.Status = decision.NewStatus
	invoice.UpdatedAt = now
	return invoice, nil
}

// ExpireOverdue sweeps one batch of overdue PENDING invoices to EXPIRED
// and reports how many moved. SKIP LOCKED row selection makes concurrent
// sweeps partition the work instead of colliding.
func (s *InvoiceServiceImpl) ExpireOverdue(ctx context.Context, limit int) (int, error) {
	now := time.Now().UTC()

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return 0, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	candidates, err := s.invoiceRepo.LockExpiryCandidates(ctx, dbTx, now, limit)
	if err != nil {
		return 0, apperror.InternalError(fmt.Errorf("lock expiry candidates: %w", err))
	}

	expired := 0
	for i := range candidates {
		inv := &candidates[i]
		policy := s.policies.PolicyFor(inv.Chain)

		decision, err := settlement.ExpireIfOverdue(inv, policy, now)
		if err != nil {
			// Holding a material partial payment, or raced into another
			// status. Leave it for the notification processor.
			s.log.Debug().
				Str("invoice_id", inv.ID.String()).
				Str("status", string(inv.Status)).
				Err(err).
				Msg("skipping expiry candidate")
			continue
		}
		if !decision.StatusChanged {
			continue
		}

		if err := s.invoiceRepo.UpdateSettlement(ctx, dbTx, inv.ID, decision.NewStatus, decision.NewAmountPaid, decision.PaidAt); err != nil {
			return 0, apperror.InternalError(fmt.Errorf("persist expiry of %s: %w", inv.ID, err))
		}
		if err := queueInvoiceStatusChanged(ctx, dbTx, s.outboxRepo, inv, inv.Status, decision.NewStatus, decision.NewAmountPaid, "", now); err != nil {
			return 0, apperror.InternalError(err)
		}
		expired++
	}

	if err := dbTx.Commit(ctx); err != nil {
		return 0, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	if expired > 0 {
		s.log.Info().Int("count", expired).Msg("expired overdue invoices")
	}
	return expired, nil
}
