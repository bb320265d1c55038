package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"crypto-payment-gateway/internal/core/domain"
	"crypto-payment-gateway/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// webhookRetryBackoff is the delay ladder indexed by attempts already
// made. Past the last rung the final delay repeats until the attempt
// cap ends the event.
var webhookRetryBackoff = []time.Duration{
	15 * time.Second,
	60 * time.Second,
	2 * time.Minute,
	5 * time.Minute,
	10 * time.Minute,
	30 * time.Minute,
}

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// WebhookDispatcherConfig carries the delivery knobs from configuration.
type WebhookDispatcherConfig struct {
	SinkURL       string
	Secret        string
	PollInterval  time.Duration
	BatchSize     int
	MaxAttempts   int
	LeaseDuration time.Duration
}

// WebhookEnvelope is the JSON body posted to the merchant-facing sink.
// The HMAC of the body travels in X-Webhook-Signature.
type WebhookEnvelope struct {
	ID        uuid.UUID       `json:"id"`
	EventType string          `json:"event_type"`
	Attempt   int             `json:"attempt"`
	Data      json.RawMessage `json:"data"`
	SentAt    time.Time       `json:"sent_at"`
}

// WebhookDispatcher drains the outbox table and posts events to the
// configured sink. Events are claimed under a lease so several gateway
// instances can run the loop concurrently; a crashed instance's claims
// become reclaimable when the lease lapses. Delivery is at-least-once
// and consumers deduplicate on the envelope id.
type WebhookDispatcher struct {
	outboxRepo ports.OutboxRepository
	sigSvc     ports.SignatureService
	httpClient HTTPClient
	cfg        WebhookDispatcherConfig
	owner      string
	log        zerolog.Logger
}

// NewWebhookDispatcher creates a new WebhookDispatcher.
func NewWebhookDispatcher(
	outboxRepo ports.OutboxRepository,
	sigSvc ports.SignatureService,
	httpClient HTTPClient,
	cfg WebhookDispatcherConfig,
	log zerolog.Logger,
) *WebhookDispatcher {
	host, _ := os.Hostname()
	return &WebhookDispatcher{
		outboxRepo: outboxRepo,
		sigSvc:     sigSvc,
		httpClient: httpClient,
		cfg:        cfg,
		owner:      fmt.Sprintf("%s-%s", host, uuid.NewString()[:8]),
		log:        log,
	}
}

// Run polls the outbox until the context is cancelled.
func (d *WebhookDispatcher) Run(ctx context.Context) {
	d.log.Info().
		Str("owner", d.owner).
		Dur("poll_interval", d.cfg.PollInterval).
		Msg("webhook dispatcher started")

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.log.Info().Str("owner", d.owner).Msg("webhook dispatcher stopped")
			return
		case <-ticker.C:
			if _, err := d.DispatchDue(ctx); err != nil && ctx.Err() == nil {
				d.log.Error().Err(err).Msg("outbox dispatch pass failed")
			}
		}
	}
}

// DispatchDue claims one batch of due events and attempts delivery,
// returning how many were delivered.
func (d *WebhookDispatcher) DispatchDue(ctx context.Context) (int, error) {
	leaseUntil := time.Now().UTC().Add(d.cfg.LeaseDuration)
	events, err := d.outboxRepo.ClaimBatch(ctx, d.owner, d.cfg.BatchSize, leaseUntil)
	if err != nil {
		return 0, fmt.Errorf("claim outbox batch: %w", err)
	}

	delivered := 0
	for i := range events {
		if err := ctx.Err(); err != nil {
			// Shutdown mid-batch: unclaimed work returns when leases lapse.
			return delivered, err
		}
		if d.deliver(ctx, &events[i]) {
			delivered++
		}
	}
	return delivered, nil
}

// deliver posts one event to the sink and settles its outbox row.
func (d *WebhookDispatcher) deliver(ctx context.Context, event *domain.OutboxEvent) bool {
	envelope := WebhookEnvelope{
		ID:        event.ID,
		EventType: event.EventType,
		Attempt:   event.Attempts + 1,
		Data:      event.Payload,
		SentAt:    time.Now().UTC(),
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		// Payload was marshalled once already; this cannot recover on retry.
		d.abandon(ctx, event, fmt.Sprintf("marshal envelope: %v", err))
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.SinkURL, bytes.NewReader(body))
	if err != nil {
		d.abandon(ctx, event, fmt.Sprintf("build request: %v", err))
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Id", event.ID.String())
	req.Header.Set("X-Webhook-Event", event.EventType)
	req.Header.Set("X-Webhook-Signature", d.sigSvc.Sign(d.cfg.Secret, string(body)))

	resp, err := d.httpClient.Do(req)
	if err != nil {
		d.settleFailure(ctx, event, err.Error())
		return false
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		d.settleFailure(ctx, event, fmt.Sprintf("sink returned %d", resp.StatusCode))
		return false
	}

	if err := d.outboxRepo.MarkDelivered(ctx, event.ID); err != nil {
		// The row stays leased and redelivers after the lease; the
		// consumer's dedup on envelope id absorbs it.
		d.log.Error().Err(err).Str("event_id", event.ID.String()).Msg("webhook delivered but ack failed")
		return false
	}

	d.log.Info().
		Str("event_id", event.ID.String()).
		Str("event_type", event.EventType).
		Int("attempt", event.Attempts+1).
		Msg("webhook delivered")
	return true
}

// settleFailure schedules a retry or gives the event up once the
// attempt cap is reached.
func (d *WebhookDispatcher) settleFailure(ctx context.Context, event *domain.OutboxEvent, reason string) {
	attempts := event.Attempts + 1
	if attempts >= d.cfg.MaxAttempts {
		d.abandon(ctx, event, reason)
		return
	}

	step := attempts - 1
	if step >= len(webhookRetryBackoff) {
		step = len(webhookRetryBackoff) - 1
	}
	nextAttempt := time.Now().UTC().Add(webhookRetryBackoff[step])

	if err := d.outboxRepo.ScheduleRetry(ctx, event.ID, nextAttempt, reason); err != nil {
		d.log.Error().Err(err).Str("event_id", event.ID.String()).Msg("failed to schedule webhook retry")
		return
	}
	d.log.Warn().
		Str("event_id", event.ID.String()).
		Int("attempt", attempts).
		Time("next_attempt_at", nextAttempt).
		Str("reason", reason).
		Msg("webhook delivery failed, retry scheduled")
}

func (d *WebhookDispatcher) abandon(ctx context.Context, event *domain.OutboxEvent, reason string) {
	if err := d.outboxRepo.MarkFailed(ctx, event.ID, reason); err != nil {
		d.log.Error().Err(err).Str("event_id", event.ID.String()).Msg("failed to mark webhook event failed")
		return
	}
	d.log.Error().
		Str("event_id", event.ID.String()).
		Str("event_type", event.EventType).
		Int("attempts", event.Attempts+1).
		Str("reason", reason).
		Msg("webhook delivery abandoned")
}
