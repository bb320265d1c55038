package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"crypto-payment-gateway/internal/core/domain"
	"crypto-payment-gateway/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// mockHTTPClient implements HTTPClient for testing.
type mockHTTPClient struct {
	doFunc func(req *http.Request) (*http.Response, error)
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return m.doFunc(req)
}

func httpResponse(status int) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader("")),
	}
}

type dispatcherTestDeps struct {
	dispatcher *WebhookDispatcher
	outboxRepo *mocks.MockOutboxRepository
	sigSvc     *mocks.MockSignatureService
	httpClient *mockHTTPClient
	ctrl       *gomock.Controller
}

func setupDispatcher(t *testing.T, doFunc func(req *http.Request) (*http.Response, error)) *dispatcherTestDeps {
	ctrl := gomock.NewController(t)
	d := &dispatcherTestDeps{
		outboxRepo: mocks.NewMockOutboxRepository(ctrl),
		sigSvc:     mocks.NewMockSignatureService(ctrl),
		httpClient: &mockHTTPClient{doFunc: doFunc},
		ctrl:       ctrl,
	}
	d.dispatcher = NewWebhookDispatcher(d.outboxRepo, d.sigSvc, d.httpClient, WebhookDispatcherConfig{
		SinkURL:       "https://sink.example.com/webhooks",
		Secret:        "sink-secret",
		PollInterval:  time.Second,
		BatchSize:     10,
		MaxAttempts:   6,
		LeaseDuration: 30 * time.Second,
	}, zerolog.Nop())
	return d
}

func pendingOutboxEvent(attempts int) domain.OutboxEvent {
	return domain.OutboxEvent{
		ID:        uuid.New(),
		EventType: domain.EventTypeInvoiceStatusChanged,
		Payload:   json.RawMessage(`{"invoice_id":"x","new_status":"PAID"}`),
		Status:    domain.OutboxStatusPending,
		Attempts:  attempts,
	}
}

// ==================== DispatchDue Tests ====================

func TestWebhookDispatcher_DispatchDue_Delivers(t *testing.T) {
	var captured *http.Request
	var capturedBody []byte
	d := setupDispatcher(t, func(req *http.Request) (*http.Response, error) {
		captured = req
		capturedBody, _ = io.ReadAll(req.Body)
		return httpResponse(200), nil
	})
	defer d.ctrl.Finish()

	ctx := context.Background()
	event := pendingOutboxEvent(0)

	d.outboxRepo.EXPECT().
		ClaimBatch(ctx, gomock.Any(), 10, gomock.Any()).
		Return([]domain.OutboxEvent{event}, nil)
	d.sigSvc.EXPECT().Sign("sink-secret", gomock.Any()).Return("body-signature")
	d.outboxRepo.EXPECT().MarkDelivered(ctx, event.ID).Return(nil)

	delivered, err := d.dispatcher.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)

	require.NotNil(t, captured)
	assert.Equal(t, http.MethodPost, captured.Method)
	assert.Equal(t, "application/json", captured.Header.Get("Content-Type"))
	assert.Equal(t, "body-signature", captured.Header.Get("X-Webhook-Signature"))
	assert.Equal(t, event.ID.String(), captured.Header.Get("X-Webhook-Id"))
	assert.Equal(t, domain.EventTypeInvoiceStatusChanged, captured.Header.Get("X-Webhook-Event"))

	var envelope WebhookEnvelope
	require.NoError(t, json.Unmarshal(capturedBody, &envelope))
	assert.Equal(t, event.ID, envelope.ID)
	assert.Equal(t, 1, envelope.Attempt)
	assert.JSONEq(t, string(event.Payload), string(envelope.Data))
}

func TestWebhookDispatcher_DispatchDue_SchedulesRetryOn5xx(t *testing.T) {
	d := setupDispatcher(t, func(_ *http.Request) (*http.Response, error) {
		return httpResponse(503), nil
	})
	defer d.ctrl.Finish()

	ctx := context.Background()
	event := pendingOutboxEvent(0)

	d.outboxRepo.EXPECT().
		ClaimBatch(ctx, gomock.Any(), 10, gomock.Any()).
		Return([]domain.OutboxEvent{event}, nil)
	d.sigSvc.EXPECT().Sign(gomock.Any(), gomock.Any()).Return("sig")
	d.outboxRepo.EXPECT().
		ScheduleRetry(ctx, event.ID, gomock.Any(), "sink returned 503").
		DoAndReturn(func(_ context.Context, _ uuid.UUID, nextAttempt time.Time, _ string) error {
			// First rung of the ladder.
			assert.WithinDuration(t, time.Now().UTC().Add(15*time.Second), nextAttempt, 5*time.Second)
			return nil
		})

	delivered, err := d.dispatcher.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, delivered)
}

func TestWebhookDispatcher_DispatchDue_SchedulesRetryOnNetworkError(t *testing.T) {
	d := setupDispatcher(t, func(_ *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	defer d.ctrl.Finish()

	ctx := context.Background()
	event := pendingOutboxEvent(2)

	d.outboxRepo.EXPECT().
		ClaimBatch(ctx, gomock.Any(), 10, gomock.Any()).
		Return([]domain.OutboxEvent{event}, nil)
	d.sigSvc.EXPECT().Sign(gomock.Any(), gomock.Any()).Return("sig")
	d.outboxRepo.EXPECT().
		ScheduleRetry(ctx, event.ID, gomock.Any(), "connection refused").
		DoAndReturn(func(_ context.Context, _ uuid.UUID, nextAttempt time.Time, _ string) error {
			// Third attempt: the 2m rung.
			assert.WithinDuration(t, time.Now().UTC().Add(2*time.Minute), nextAttempt, 5*time.Second)
			return nil
		})

	delivered, err := d.dispatcher.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, delivered)
}

func TestWebhookDispatcher_DispatchDue_AbandonsAtAttemptCap(t *testing.T) {
	d := setupDispatcher(t, func(_ *http.Request) (*http.Response, error) {
		return httpResponse(500), nil
	})
	defer d.ctrl.Finish()

	ctx := context.Background()
	event := pendingOutboxEvent(5) // cap is 6: this attempt is the last

	d.outboxRepo.EXPECT().
		ClaimBatch(ctx, gomock.Any(), 10, gomock.Any()).
		Return([]domain.OutboxEvent{event}, nil)
	d.sigSvc.EXPECT().Sign(gomock.Any(), gomock.Any()).Return("sig")
	d.outboxRepo.EXPECT().MarkFailed(ctx, event.ID, "sink returned 500").Return(nil)

	delivered, err := d.dispatcher.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, delivered)
}

func TestWebhookDispatcher_DispatchDue_NothingDue(t *testing.T) {
	d := setupDispatcher(t, func(_ *http.Request) (*http.Response, error) {
		t.Fatal("no delivery expected")
		return nil, nil
	})
	defer d.ctrl.Finish()

	ctx := context.Background()
	d.outboxRepo.EXPECT().ClaimBatch(ctx, gomock.Any(), 10, gomock.Any()).Return(nil, nil)

	delivered, err := d.dispatcher.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, delivered)
}

func TestWebhookDispatcher_DispatchDue_MixedBatch(t *testing.T) {
	calls := 0
	d := setupDispatcher(t, func(_ *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return httpResponse(200), nil
		}
		return httpResponse(502), nil
	})
	defer d.ctrl.Finish()

	ctx := context.Background()
	ok := pendingOutboxEvent(0)
	failing := pendingOutboxEvent(0)

	d.outboxRepo.EXPECT().
		ClaimBatch(ctx, gomock.Any(), 10, gomock.Any()).
		Return([]domain.OutboxEvent{ok, failing}, nil)
	d.sigSvc.EXPECT().Sign(gomock.Any(), gomock.Any()).Return("sig").Times(2)
	d.outboxRepo.EXPECT().MarkDelivered(ctx, ok.ID).Return(nil)
	d.outboxRepo.EXPECT().ScheduleRetry(ctx, failing.ID, gomock.Any(), "sink returned 502").Return(nil)

	delivered, err := d.dispatcher.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
}
