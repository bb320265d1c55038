package service

import (
	"context"
	"time"

	"crypto-payment-gateway/internal/core/ports"

	"github.com/rs/zerolog"
)

// ExpirySweeper periodically moves overdue PENDING invoices to EXPIRED.
// Each pass drains full batches until one comes back short, so a burst
// of expiries clears in a single tick.
type ExpirySweeper struct {
	invoices  ports.InvoiceService
	interval  time.Duration
	batchSize int
	log       zerolog.Logger
}

// NewExpirySweeper creates a new ExpirySweeper.
func NewExpirySweeper(invoices ports.InvoiceService, interval time.Duration, batchSize int, log zerolog.Logger) *ExpirySweeper {
	return &ExpirySweeper{
		invoices:  invoices,
		interval:  interval,
		batchSize: batchSize,
		log:       log,
	}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (s *ExpirySweeper) Run(ctx context.Context) {
	s.log.Info().Dur("interval", s.interval).Msg("expiry sweeper started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("expiry sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs expiry batches until the backlog is drained.
func (s *ExpirySweeper) Sweep(ctx context.Context) {
	for {
		n, err := s.invoices.ExpireOverdue(ctx, s.batchSize)
		if err != nil {
			if ctx.Err() == nil {
				s.log.Error().Err(err).Msg("expiry sweep failed")
			}
			return
		}
		if n < s.batchSize {
			return
		}
	}
}
