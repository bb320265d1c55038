package integration

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	httpHandler "crypto-payment-gateway/internal/adapter/http/handler"
	redisStorage "crypto-payment-gateway/internal/adapter/storage/redis"
	"crypto-payment-gateway/internal/core/domain"
	"crypto-payment-gateway/internal/core/ports"
	"crypto-payment-gateway/internal/service"
	"crypto-payment-gateway/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testApp builds the full application stack over in-memory repos and
// miniredis. Requests exercise the real HTTP layer, middleware, handlers,
// services and Redis stores end-to-end; only PostgreSQL is substituted.

const (
	// BIP32 test vector 1 master public key.
	testXpub = "xpub661MyMwAqRbcFtXgS5sYJABqqG9YLmC4Q1Rdap9gSE8NqtwybGhePY2gZ29ESFjqJoCu1Rupje8YtGqsefD265TMg7usUDFdp6W1EGMcet8"

	testMonitorSecret = "integration-monitor-secret"
)

type testApp struct {
	server     *httptest.Server
	redis      *miniredis.Miniredis
	wallets    *inMemoryWalletRepo
	invoices   *inMemoryInvoiceRepo
	events     *inMemoryEventRepo
	outbox     *inMemoryOutboxRepo
	invoiceSvc ports.InvoiceService
}

func newTestApp(t *testing.T) *testApp {
	return buildTestApp(t, false)
}

// newTestAppReopen enables the late-payment reopen knob for EXPIRED
// invoices.
func newTestAppReopen(t *testing.T) *testApp {
	return buildTestApp(t, true)
}

func buildTestApp(t *testing.T, reopenExpired bool) *testApp {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})

	// Redis stores
	eventCache := redisStorage.NewEventCache(rdb)
	nonceStore := redisStorage.NewNonceStore(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// In-memory repos
	walletRepo := newInMemoryWalletRepo()
	addressRepo := newInMemoryAddressRepo()
	invoiceRepo := newInMemoryInvoiceRepo()
	balanceRepo := newInMemoryBalanceRepo()
	eventRepo := newInMemoryEventRepo()
	outboxRepo := newInMemoryOutboxRepo()
	transactor := newInMemoryTransactor()

	policies := service.SettlementPolicies{
		DefaultTolerance:     decimal.NewFromFloat(0.01),
		DefaultConfirmations: 6,
		ReopenExpired:        reopenExpired,
		Chains: map[string]service.ChainPolicy{
			"bitcoin":  {RequiredConfirmations: 2},
			"ethereum": {RequiredConfirmations: 12},
		},
	}

	// Business services
	log := logger.New("debug", false)
	sigSvc := service.NewHMACSignatureService()
	walletSvc := service.NewWalletService(walletRepo, log)
	addressSvc := service.NewAddressService(walletRepo, addressRepo, log)
	invoiceSvc := service.NewInvoiceService(invoiceRepo, addressRepo, outboxRepo, transactor, policies, log)
	paymentSvc := service.NewPaymentService(addressRepo, invoiceRepo, balanceRepo, eventRepo, outboxRepo, eventCache, transactor, policies, log)
	balanceSvc := service.NewBalanceService(balanceRepo)

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		WalletSvc:      walletSvc,
		AddressSvc:     addressSvc,
		InvoiceSvc:     invoiceSvc,
		PaymentSvc:     paymentSvc,
		BalanceSvc:     balanceSvc,
		SigSvc:         sigSvc,
		NonceStore:     nonceStore,
		MonitorSecret:  testMonitorSecret,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{redisStorage.NewHealthCheck(rdb)},
		Logger:         log,
	})

	server := httptest.NewServer(router)

	return &testApp{
		server:     server,
		redis:      mr,
		wallets:    walletRepo,
		invoices:   invoiceRepo,
		events:     eventRepo,
		outbox:     outboxRepo,
		invoiceSvc: invoiceSvc,
	}
}

func (a *testApp) close() {
	a.server.Close()
	a.redis.Close()
}

// postJSON posts a body to an unauthenticated endpoint and decodes the
// response envelope.
func (a *testApp) postJSON(t *testing.T, path string, payload any) (int, map[string]interface{}) {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	resp, err := http.Post(a.server.URL+path, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var envelope map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return resp.StatusCode, envelope
}

func (a *testApp) getJSON(t *testing.T, path string) (int, map[string]interface{}) {
	t.Helper()
	resp, err := http.Get(a.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	var envelope map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return resp.StatusCode, envelope
}

func envData(t *testing.T, envelope map[string]interface{}) map[string]interface{} {
	t.Helper()
	d, ok := envelope["data"].(map[string]interface{})
	require.True(t, ok, "expected data envelope, got %v", envelope)
	return d
}

// --- Fixture helpers ---

// invoiceFixture is the merchant onboarding path walked end-to-end:
// wallet registered, deposit address issued, invoice opened on it.
type invoiceFixture struct {
	merchantID  string
	walletID    string
	addressID   string
	invoiceID   string
	depositAddr string
}

func registerWallet(t *testing.T, app *testApp, chain string) string {
	t.Helper()
	status, envelope := app.postJSON(t, "/api/v1/wallets", map[string]string{
		"chain":           chain,
		"xpub":            testXpub,
		"derivation_path": "m/44'/60'/0'/0",
	})
	require.Equal(t, http.StatusCreated, status, "register wallet: %v", envelope)
	return envData(t, envelope)["id"].(string)
}

func issueAddress(t *testing.T, app *testApp, walletID, merchantID string) (addressID, depositAddr string) {
	t.Helper()
	status, envelope := app.postJSON(t, "/api/v1/addresses", map[string]string{
		"wallet_id":   walletID,
		"merchant_id": merchantID,
	})
	require.Equal(t, http.StatusCreated, status, "issue address: %v", envelope)
	data := envData(t, envelope)
	return data["id"].(string), data["address"].(string)
}

func createInvoice(t *testing.T, app *testApp, merchantID, addressID, amount string) string {
	t.Helper()
	status, envelope := app.postJSON(t, "/api/v1/invoices", map[string]string{
		"merchant_id": merchantID,
		"address_id":  addressID,
		"amount":      amount,
		"currency":    "ETH",
		"expires_at":  time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, status, "create invoice: %v", envelope)
	return envData(t, envelope)["id"].(string)
}

func setupInvoice(t *testing.T, app *testApp, amount string) invoiceFixture {
	t.Helper()
	fx := invoiceFixture{merchantID: uuid.NewString()}
	fx.walletID = registerWallet(t, app, "ethereum")
	fx.addressID, fx.depositAddr = issueAddress(t, app, fx.walletID, fx.merchantID)
	fx.invoiceID = createInvoice(t, app, fx.merchantID, fx.addressID, amount)
	return fx
}

func getInvoice(t *testing.T, app *testApp, invoiceID string) map[string]interface{} {
	t.Helper()
	status, envelope := app.getJSON(t, "/api/v1/invoices/"+invoiceID)
	require.Equal(t, http.StatusOK, status, "get invoice: %v", envelope)
	return envData(t, envelope)
}

func getBalances(t *testing.T, app *testApp, merchantID string) []interface{} {
	t.Helper()
	status, envelope := app.getJSON(t, "/api/v1/merchants/"+merchantID+"/balances")
	require.Equal(t, http.StatusOK, status, "list balances: %v", envelope)
	lines, ok := envelope["data"].([]interface{})
	require.True(t, ok, "expected balance list, got %v", envelope)
	return lines
}

// deliverEvent signs and posts a chain monitor notification the way the
// monitor would, and returns the receipt.
func deliverEvent(t *testing.T, app *testApp, address, amount, txHash string, confirmations uint32) map[string]interface{} {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"chain":         "ethereum",
		"address":       address,
		"amount":        amount,
		"tx_hash":       txHash,
		"confirmations": confirmations,
	})
	require.NoError(t, err)

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	nonce := "nonce-" + uuid.NewString()

	canonical := fmt.Sprintf("POST|/api/v1/events|%s|%s|%s", timestamp, nonce, string(body))
	mac := hmac.New(sha256.New, []byte(testMonitorSecret))
	mac.Write([]byte(canonical))
	signature := hex.EncodeToString(mac.Sum(nil))

	req, err := http.NewRequest(http.MethodPost, app.server.URL+"/api/v1/events", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", signature)
	req.Header.Set("X-Timestamp", timestamp)
	req.Header.Set("X-Nonce", nonce)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var envelope map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.Equal(t, http.StatusOK, resp.StatusCode, "deliver event: %v", envelope)
	return envData(t, envelope)
}

// --- Integration Tests ---

func TestIntegration_HealthCheck(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	resp, err := http.Get(app.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}

func TestIntegration_IssueAddresses_SequentialIndexes(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	walletID := registerWallet(t, app, "ethereum")
	merchantID := uuid.NewString()

	seen := make(map[string]struct{})
	for i := 0; i < 3; i++ {
		status, envelope := app.postJSON(t, "/api/v1/addresses", map[string]string{
			"wallet_id":   walletID,
			"merchant_id": merchantID,
		})
		require.Equal(t, http.StatusCreated, status)
		data := envData(t, envelope)
		assert.Equal(t, float64(i), data["derivation_index"])

		addr := data["address"].(string)
		assert.Regexp(t, "^0x[0-9a-fA-F]{40}$", addr)
		_, dup := seen[addr]
		assert.False(t, dup, "address %s issued twice", addr)
		seen[addr] = struct{}{}
	}

	status, envelope := app.getJSON(t, "/api/v1/wallets/"+walletID)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(3), envData(t, envelope)["next_index"])
}

func TestIntegration_ExactPaymentSettlesInvoice(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	fx := setupInvoice(t, app, "1.5")

	receipt := deliverEvent(t, app, fx.depositAddr, "1.5", "0x11aa01", 12)
	assert.Equal(t, "APPLIED", receipt["outcome"])
	assert.Equal(t, false, receipt["duplicate"])
	assert.Equal(t, fx.invoiceID, receipt["invoice_id"])
	assert.Equal(t, "PAID", receipt["invoice_status"])

	inv := getInvoice(t, app, fx.invoiceID)
	assert.Equal(t, "PAID", inv["status"])
	assert.Equal(t, "1.5", inv["amount_paid"])
	assert.NotEmpty(t, inv["paid_at"])

	lines := getBalances(t, app, fx.merchantID)
	require.Len(t, lines, 1)
	line := lines[0].(map[string]interface{})
	assert.Equal(t, "ETH", line["currency"])
	assert.Equal(t, "1.5", line["balance"])
	assert.Equal(t, "1.5", line["total_received"])

	statusEvents := app.outbox.byType(domain.EventTypeInvoiceStatusChanged)
	require.Len(t, statusEvents, 1)
	var sp domain.InvoiceStatusChangedPayload
	require.NoError(t, json.Unmarshal(statusEvents[0].Payload, &sp))
	assert.Equal(t, domain.InvoiceStatusPending, sp.OldStatus)
	assert.Equal(t, domain.InvoiceStatusPaid, sp.NewStatus)
	assert.Equal(t, fx.invoiceID, sp.InvoiceID.String())

	balanceEvents := app.outbox.byType(domain.EventTypeBalanceUpdated)
	require.Len(t, balanceEvents, 1)
	var bp domain.BalanceUpdatedPayload
	require.NoError(t, json.Unmarshal(balanceEvents[0].Payload, &bp))
	assert.True(t, bp.Delta.Equal(decimal.RequireFromString("1.5")), "delta %s", bp.Delta)
	assert.Equal(t, fx.merchantID, bp.MerchantID.String())
}

func TestIntegration_SplitPaymentsCrossTolerance(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	fx := setupInvoice(t, app, "2")

	receipt := deliverEvent(t, app, fx.depositAddr, "0.5", "0x22bb01", 12)
	assert.Equal(t, "APPLIED", receipt["outcome"])
	assert.Equal(t, "UNDERPAID", receipt["invoice_status"])

	receipt = deliverEvent(t, app, fx.depositAddr, "1.5", "0x22bb02", 12)
	assert.Equal(t, "APPLIED", receipt["outcome"])
	assert.Equal(t, "PAID", receipt["invoice_status"])

	inv := getInvoice(t, app, fx.invoiceID)
	assert.Equal(t, "PAID", inv["status"])
	assert.Equal(t, "2", inv["amount_paid"])

	// One transition per threshold crossing.
	statusEvents := app.outbox.byType(domain.EventTypeInvoiceStatusChanged)
	require.Len(t, statusEvents, 2)
	transitions := make(map[domain.InvoiceStatus]bool)
	for _, e := range statusEvents {
		var sp domain.InvoiceStatusChangedPayload
		require.NoError(t, json.Unmarshal(e.Payload, &sp))
		transitions[sp.NewStatus] = true
	}
	assert.True(t, transitions[domain.InvoiceStatusUnderpaid])
	assert.True(t, transitions[domain.InvoiceStatusPaid])
}

func TestIntegration_OverpaymentOutsideTolerance(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	fx := setupInvoice(t, app, "1")

	receipt := deliverEvent(t, app, fx.depositAddr, "1.2", "0x33cc01", 12)
	assert.Equal(t, "APPLIED", receipt["outcome"])
	assert.Equal(t, "OVERPAID", receipt["invoice_status"])

	inv := getInvoice(t, app, fx.invoiceID)
	assert.Equal(t, "OVERPAID", inv["status"])
	assert.Equal(t, "1.2", inv["amount_paid"])
	_, hasPaidAt := inv["paid_at"]
	assert.False(t, hasPaidAt, "overpaid invoices never hit the paid window")

	lines := getBalances(t, app, fx.merchantID)
	require.Len(t, lines, 1)
	assert.Equal(t, "1.2", lines[0].(map[string]interface{})["balance"])
}

func TestIntegration_ToleranceAbsorbsFeeDust(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	fx := setupInvoice(t, app, "1")

	// 0.995 is inside the 1% band around 1.
	receipt := deliverEvent(t, app, fx.depositAddr, "0.995", "0x44dd01", 12)
	assert.Equal(t, "APPLIED", receipt["outcome"])
	assert.Equal(t, "PAID", receipt["invoice_status"])

	inv := getInvoice(t, app, fx.invoiceID)
	assert.Equal(t, "PAID", inv["status"])
	assert.Equal(t, "0.995", inv["amount_paid"])
}

func TestIntegration_UnmatchedAddressRecorded(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	strayAddr := "0x00112233445566778899aabbccddeeff00112233"

	receipt := deliverEvent(t, app, strayAddr, "3", "0x55ee01", 12)
	assert.Equal(t, "UNMATCHED", receipt["outcome"])
	assert.Equal(t, false, receipt["duplicate"])
	_, hasInvoice := receipt["invoice_id"]
	assert.False(t, hasInvoice)

	// Recorded, so a redelivery is a duplicate rather than a rescan.
	receipt = deliverEvent(t, app, strayAddr, "3", "0x55ee01", 12)
	assert.Equal(t, "UNMATCHED", receipt["outcome"])
	assert.Equal(t, true, receipt["duplicate"])

	assert.Equal(t, 1, app.events.count())
	assert.Empty(t, app.outbox.byType(domain.EventTypeBalanceUpdated), "unmatched funds are nobody's balance")
}

func TestIntegration_DuplicateDeliveryDoesNotDoubleCredit(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	fx := setupInvoice(t, app, "1")

	receipt := deliverEvent(t, app, fx.depositAddr, "1", "0x66ff01", 12)
	assert.Equal(t, "APPLIED", receipt["outcome"])
	assert.Equal(t, false, receipt["duplicate"])

	receipt = deliverEvent(t, app, fx.depositAddr, "1", "0x66ff01", 12)
	assert.Equal(t, "APPLIED", receipt["outcome"])
	assert.Equal(t, true, receipt["duplicate"])
	assert.Equal(t, "PAID", receipt["invoice_status"])

	inv := getInvoice(t, app, fx.invoiceID)
	assert.Equal(t, "1", inv["amount_paid"])

	lines := getBalances(t, app, fx.merchantID)
	require.Len(t, lines, 1)
	assert.Equal(t, "1", lines[0].(map[string]interface{})["balance"])

	assert.Equal(t, 1, app.events.count())
	assert.Len(t, app.outbox.byType(domain.EventTypeBalanceUpdated), 1)
}

func TestIntegration_BelowConfirmationFloorNotRecorded(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	fx := setupInvoice(t, app, "1")

	receipt := deliverEvent(t, app, fx.depositAddr, "1", "0x77aa01", 3)
	assert.Equal(t, "SEEN", receipt["outcome"])
	assert.Equal(t, false, receipt["duplicate"])

	inv := getInvoice(t, app, fx.invoiceID)
	assert.Equal(t, "PENDING", inv["status"])
	assert.Equal(t, "0", inv["amount_paid"])
	assert.Equal(t, 0, app.events.count(), "floor sightings leave no record")

	// The confirmed redelivery is a fresh event, not a duplicate.
	receipt = deliverEvent(t, app, fx.depositAddr, "1", "0x77aa01", 12)
	assert.Equal(t, "APPLIED", receipt["outcome"])
	assert.Equal(t, false, receipt["duplicate"])
	assert.Equal(t, "PAID", receipt["invoice_status"])
}

func TestIntegration_LateMoneyAfterPaid(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	fx := setupInvoice(t, app, "1")

	deliverEvent(t, app, fx.depositAddr, "1", "0x88bb01", 12)
	paidAt := getInvoice(t, app, fx.invoiceID)["paid_at"]

	receipt := deliverEvent(t, app, fx.depositAddr, "0.4", "0x88bb02", 12)
	assert.Equal(t, "APPLIED", receipt["outcome"])
	assert.Equal(t, "PAID", receipt["invoice_status"])

	inv := getInvoice(t, app, fx.invoiceID)
	assert.Equal(t, "PAID", inv["status"], "PAID is terminal")
	assert.Equal(t, "1.4", inv["amount_paid"], "late money still accrues")
	assert.Equal(t, paidAt, inv["paid_at"], "paid_at is write-once")

	lines := getBalances(t, app, fx.merchantID)
	require.Len(t, lines, 1)
	assert.Equal(t, "1.4", lines[0].(map[string]interface{})["balance"])

	// No second transition: the status never moved.
	assert.Len(t, app.outbox.byType(domain.EventTypeInvoiceStatusChanged), 1)
}

func TestIntegration_CancelledInvoiceStillCollects(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	fx := setupInvoice(t, app, "1")

	status, envelope := app.postJSON(t, "/api/v1/invoices/"+fx.invoiceID+"/cancel", struct{}{})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "CANCELLED", envData(t, envelope)["status"])

	status, envelope = app.postJSON(t, "/api/v1/invoices/"+fx.invoiceID+"/cancel", struct{}{})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "INV_002", envelope["error_code"])

	// Money sent to a cancelled invoice is still the merchant's money.
	receipt := deliverEvent(t, app, fx.depositAddr, "1", "0x99cc01", 12)
	assert.Equal(t, "APPLIED", receipt["outcome"])
	assert.Equal(t, "CANCELLED", receipt["invoice_status"])

	inv := getInvoice(t, app, fx.invoiceID)
	assert.Equal(t, "CANCELLED", inv["status"])
	assert.Equal(t, "1", inv["amount_paid"])

	lines := getBalances(t, app, fx.merchantID)
	require.Len(t, lines, 1)
	assert.Equal(t, "1", lines[0].(map[string]interface{})["balance"])
}

func TestIntegration_ExpirySweepMovesOverdueInvoices(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	fx := setupInvoice(t, app, "1")
	app.invoices.backdate(uuid.MustParse(fx.invoiceID), time.Now().Add(-time.Minute).UTC())

	n, err := app.invoiceSvc.ExpireOverdue(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	inv := getInvoice(t, app, fx.invoiceID)
	assert.Equal(t, "EXPIRED", inv["status"])

	// Second sweep finds nothing.
	n, err = app.invoiceSvc.ExpireOverdue(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// The reopen knob is off: a late payment credits the merchant but the
	// invoice stays EXPIRED.
	receipt := deliverEvent(t, app, fx.depositAddr, "1", "0xaaee01", 12)
	assert.Equal(t, "APPLIED", receipt["outcome"])
	assert.Equal(t, "EXPIRED", receipt["invoice_status"])

	inv = getInvoice(t, app, fx.invoiceID)
	assert.Equal(t, "EXPIRED", inv["status"])
	assert.Equal(t, "1", inv["amount_paid"])

	lines := getBalances(t, app, fx.merchantID)
	require.Len(t, lines, 1)
	assert.Equal(t, "1", lines[0].(map[string]interface{})["balance"])
}

func TestIntegration_ReopenExpiredWithinWindow(t *testing.T) {
	app := newTestAppReopen(t)
	defer app.close()

	fx := setupInvoice(t, app, "1")
	app.invoices.backdate(uuid.MustParse(fx.invoiceID), time.Now().Add(-time.Minute).UTC())

	n, err := app.invoiceSvc.ExpireOverdue(context.Background(), 50)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	receipt := deliverEvent(t, app, fx.depositAddr, "1", "0xbbff01", 12)
	assert.Equal(t, "APPLIED", receipt["outcome"])
	assert.Equal(t, "PAID", receipt["invoice_status"])

	inv := getInvoice(t, app, fx.invoiceID)
	assert.Equal(t, "PAID", inv["status"])
	assert.NotEmpty(t, inv["paid_at"])
}

func TestIntegration_EventAuth_MissingHeaders(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	resp, err := http.Post(app.server.URL+"/api/v1/events", "application/json", bytes.NewReader([]byte("{}")))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestIntegration_EventAuth_BadSignature(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	body := `{"chain":"ethereum","address":"0x00112233445566778899aabbccddeeff00112233","amount":"1","tx_hash":"0xccdd01","confirmations":12}`
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	nonce := "nonce-" + uuid.NewString()

	canonical := fmt.Sprintf("POST|/api/v1/events|%s|%s|%s", timestamp, nonce, body)
	mac := hmac.New(sha256.New, []byte("not-the-monitor-secret"))
	mac.Write([]byte(canonical))
	signature := hex.EncodeToString(mac.Sum(nil))

	req, _ := http.NewRequest(http.MethodPost, app.server.URL+"/api/v1/events", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", signature)
	req.Header.Set("X-Timestamp", timestamp)
	req.Header.Set("X-Nonce", nonce)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestIntegration_InactiveWalletRefusesIssuance(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	walletID := registerWallet(t, app, "ethereum")
	merchantID := uuid.NewString()
	issueAddress(t, app, walletID, merchantID)

	app.wallets.setStatus(uuid.MustParse(walletID), domain.WalletStatusInactive)

	status, envelope := app.postJSON(t, "/api/v1/addresses", map[string]string{
		"wallet_id":   walletID,
		"merchant_id": merchantID,
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "WALLET_001", envelope["error_code"])
}

func TestIntegration_SecondInvoiceOnAddressRejected(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	fx := setupInvoice(t, app, "1")

	status, envelope := app.postJSON(t, "/api/v1/invoices", map[string]string{
		"merchant_id": fx.merchantID,
		"address_id":  fx.addressID,
		"amount":      "2",
		"currency":    "ETH",
		"expires_at":  time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "ADDR_001", envelope["error_code"])
}
