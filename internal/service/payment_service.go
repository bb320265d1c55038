package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"crypto-payment-gateway/internal/chain"
	"crypto-payment-gateway/internal/core/domain"
	"crypto-payment-gateway/internal/core/ports"
	"crypto-payment-gateway/internal/settlement"
	"crypto-payment-gateway/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const receiptCacheTTL = 24 * time.Hour

// PaymentServiceImpl implements ports.PaymentService: it applies inbound
// payment notifications to addresses, invoices and merchant balances.
type PaymentServiceImpl struct {
	addrRepo    ports.AddressRepository
	invoiceRepo ports.InvoiceRepository
	balanceRepo ports.BalanceRepository
	eventRepo   ports.EventRepository
	outboxRepo  ports.OutboxRepository
	eventCache  ports.EventCache
	transactor  ports.DBTransactor
	policies    SettlementPolicies
	log         zerolog.Logger
}

// NewPaymentService creates a new PaymentServiceImpl.
func NewPaymentService(
	addrRepo ports.AddressRepository,
	invoiceRepo ports.InvoiceRepository,
	balanceRepo ports.BalanceRepository,
	eventRepo ports.EventRepository,
	outboxRepo ports.OutboxRepository,
	eventCache ports.EventCache,
	transactor ports.DBTransactor,
	policies SettlementPolicies,
	log zerolog.Logger,
) *PaymentServiceImpl {
	return &PaymentServiceImpl{
		addrRepo:    addrRepo,
		invoiceRepo: invoiceRepo,
		balanceRepo: balanceRepo,
		eventRepo:   eventRepo,
		outboxRepo:  outboxRepo,
		eventCache:  eventCache,
		transactor:  transactor,
		policies:    policies,
		log:         log,
	}
}

// HandlePaymentEvent processes one payment notification exactly once.
// Redelivery of a recorded event returns the recorded outcome with the
// duplicate flag set; all money movement for an event commits atomically
// with its idempotency record.
func (s *PaymentServiceImpl) HandlePaymentEvent(ctx context.Context, event *domain.PaymentEvent) (*domain.EventReceipt, error) {
	if !event.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}

	spec, err := chain.Lookup(event.Chain)
	if err != nil {
		return nil, apperror.ErrUnsupportedChain(event.Chain)
	}

	// Below the chain's confirmation floor: acknowledge without recording,
	// so the confirmed redelivery still applies.
	if minConf := s.policies.ConfirmationsFor(spec.Chain); event.Confirmations < minConf {
		s.log.Debug().
			Str("chain", spec.Chain).
			Str("tx_hash", event.TxHash).
			Uint32("confirmations", event.Confirmations).
			Uint32("required", minConf).
			Msg("payment event below confirmation floor")
		return &domain.EventReceipt{Outcome: domain.EventOutcomeSeen}, nil
	}

	// Canonicalize the destination so lookups and the idempotency key
	// agree regardless of how the monitor cased the address.
	normalizedAddr, err := chain.NormalizeAddress(spec, event.Address)
	if err != nil {
		return nil, apperror.Validation(fmt.Sprintf("malformed destination address for chain %s", spec.Chain))
	}

	ev := *event
	ev.Chain = spec.Chain
	ev.Address = normalizedAddr
	idempKey := ev.IdempotencyKey()

	// Layer 1: Redis receipt cache
	cached, err := s.eventCache.Get(ctx, idempKey)
	if err != nil {
		s.log.Warn().Err(err).Str("key", idempKey).Msg("redis receipt check failed, falling through to DB")
	}
	if cached != nil {
		return s.unmarshalCachedReceipt(cached)
	}

	// Layer 2: durable processed_events record
	seen, err := s.eventRepo.Get(ctx, idempKey)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("db idempotency check: %w", err))
	}
	if seen != nil {
		return receiptFromRecord(seen), nil
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()

	// Lock the destination address row. All events for one address
	// serialize here; invoice work below stays ordered as a consequence.
	address, err := s.addrRepo.GetByChainAddressForUpdate(ctx, dbTx, spec.Chain, normalizedAddr)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock address: %w", err))
	}

	record := &domain.ProcessedEvent{
		IdempotencyKey: idempKey,
		TxHash:         ev.TxHash,
		Address:        normalizedAddr,
		Chain:          spec.Chain,
		Amount:         ev.Amount,
		CreatedAt:      now,
	}

	if address == nil {
		// Unmatched deposit: logged and recorded, never fatal. Funds on an
		// address this gateway did not issue are not ours to account for.
		record.Outcome = domain.EventOutcomeUnmatched
		s.log.Warn().
			Str("chain", spec.Chain).
			Str("tx_hash", ev.TxHash).
			Str("address", normalizedAddr).
			Str("amount", ev.Amount.String()).
			Msg("payment event matched no issued address")
		return s.finish(ctx, dbTx, record)
	}

	if err := s.addrRepo.Credit(ctx, dbTx, address.ID, ev.Amount); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("credit address: %w", err))
	}

	record.Outcome = domain.EventOutcomeApplied
	creditCurrency := spec.Currency

	if address.InvoiceID != nil {
		invoice, err := s.invoiceRepo.GetByIDForUpdate(ctx, dbTx, *address.InvoiceID)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("lock invoice: %w", err))
		}
		if invoice == nil {
			return nil, apperror.InternalError(fmt.Errorf("address %s bound to missing invoice %s", address.ID, *address.InvoiceID))
		}

		policy := s.policies.PolicyFor(spec.Chain)
		decision, err := settlement.Apply(invoice, ev.Amount, policy, now)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("settle invoice %s: %w", invoice.ID, err))
		}

		if err := s.invoiceRepo.UpdateSettlement(ctx, dbTx, invoice.ID, decision.NewStatus, decision.NewAmountPaid, decision.PaidAt); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("persist settlement: %w", err))
		}

		if decision.StatusChanged {
			if err := queueInvoiceStatusChanged(ctx, dbTx, s.outboxRepo, invoice, invoice.Status, decision.NewStatus, decision.NewAmountPaid, ev.TxHash, now); err != nil {
				return nil, apperror.InternalError(err)
			}
		}

		creditCurrency = invoice.Currency
		record.InvoiceID = &invoice.ID
		status := decision.NewStatus
		record.InvoiceStatus = &status
	}

	balance, err := s.balanceRepo.ApplyDelta(ctx, dbTx, address.MerchantID, creditCurrency, ev.Amount)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("apply balance delta: %w", err))
	}

	if err := queueBalanceUpdated(ctx, dbTx, s.outboxRepo, balance, ev.Amount, ev.TxHash, now); err != nil {
		return nil, apperror.InternalError(err)
	}

	return s.finish(ctx, dbTx, record)
}

// finish writes the idempotency record, commits, and caches the receipt.
// A duplicate-key failure means a concurrent delivery of the same event
// already committed; its recorded outcome wins and everything staged in
// this transaction rolls back.
func (s *PaymentServiceImpl) finish(ctx context.Context, dbTx pgx.Tx, record *domain.ProcessedEvent) (*domain.EventReceipt, error) {
	if err := s.eventRepo.Create(ctx, dbTx, record); err != nil {
		if errors.Is(err, domain.ErrDuplicateEvent) {
			dbTx.Rollback(ctx) //nolint:errcheck
			recorded, gerr := s.eventRepo.Get(ctx, record.IdempotencyKey)
			if gerr != nil {
				return nil, apperror.InternalError(fmt.Errorf("read winning record: %w", gerr))
			}
			if recorded == nil {
				return nil, apperror.InternalError(fmt.Errorf("duplicate key for %s but record not readable", record.IdempotencyKey))
			}
			return receiptFromRecord(recorded), nil
		}
		return nil, apperror.InternalError(fmt.Errorf("record processed event: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	receipt := &domain.EventReceipt{
		Outcome:       record.Outcome,
		InvoiceID:     record.InvoiceID,
		InvoiceStatus: record.InvoiceStatus,
	}

	// Post-process: cache the receipt in Redis (best-effort)
	if respJSON, err := json.Marshal(receipt); err == nil {
		if err := s.eventCache.Set(ctx, record.IdempotencyKey, respJSON, receiptCacheTTL); err != nil {
			s.log.Warn().Err(err).Str("key", record.IdempotencyKey).Msg("failed to cache receipt in redis")
		}
	}

	s.log.Info().
		Str("key", record.IdempotencyKey).
		Str("outcome", string(record.Outcome)).
		Str("amount", record.Amount.String()).
		Msg("payment event processed")

	return receipt, nil
}

// unmarshalCachedReceipt deserializes a cached receipt and flags it as a
// duplicate delivery.
func (s *PaymentServiceImpl) unmarshalCachedReceipt(data []byte) (*domain.EventReceipt, error) {
	receipt := &domain.EventReceipt{}
	if err := json.Unmarshal(data, receipt); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unmarshal cached receipt: %w", err))
	}
	receipt.Duplicate = true
	return receipt, nil
}

// receiptFromRecord converts a durable processed-event record into a
// duplicate receipt.
func receiptFromRecord(rec *domain.ProcessedEvent) *domain.EventReceipt {
	return &domain.EventReceipt{
		Outcome:       rec.Outcome,
		Duplicate:     true,
		InvoiceID:     rec.InvoiceID,
		InvoiceStatus: rec.InvoiceStatus,
	}
}
