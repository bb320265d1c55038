package settlement

import (
	"testing"
	"time"

	"crypto-payment-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func onePercent() Policy {
	return Policy{Tolerance: decimal.RequireFromString("0.01")}
}

func testInvoice(status domain.InvoiceStatus, required, paid string) *domain.Invoice {
	return &domain.Invoice{
		ID:             uuid.New(),
		Status:         status,
		RequiredAmount: decimal.RequireFromString(required),
		AmountPaid:     decimal.RequireFromString(paid),
	}
}

func apply(t *testing.T, inv *domain.Invoice, delta string, policy Policy) Decision {
	t.Helper()
	decision, err := Apply(inv, decimal.RequireFromString(delta), policy, testNow)
	require.NoError(t, err)
	return decision
}

func TestApply_ExactPaymentSettles(t *testing.T) {
	inv := testInvoice(domain.InvoiceStatusPending, "100.00", "0")

	decision := apply(t, inv, "100.00", onePercent())

	assert.Equal(t, domain.InvoiceStatusPaid, decision.NewStatus)
	assert.True(t, decision.StatusChanged)
	assert.True(t, decision.NewAmountPaid.Equal(decimal.RequireFromString("100.00")))
	require.NotNil(t, decision.PaidAt)
	assert.Equal(t, testNow, *decision.PaidAt)
}

func TestApply_PartialThenCompletion(t *testing.T) {
	inv := testInvoice(domain.InvoiceStatusPending, "100.00", "0")

	first := apply(t, inv, "40.00", onePercent())
	assert.Equal(t, domain.InvoiceStatusUnderpaid, first.NewStatus)
	assert.True(t, first.StatusChanged)
	assert.Nil(t, first.PaidAt)

	inv.Status = first.NewStatus
	inv.AmountPaid = first.NewAmountPaid

	// Cumulative 101.00 sits exactly on the +1% bound: PAID, not OVERPAID.
	second := apply(t, inv, "61.00", onePercent())
	assert.Equal(t, domain.InvoiceStatusPaid, second.NewStatus)
	assert.True(t, second.StatusChanged)
	assert.True(t, second.NewAmountPaid.Equal(decimal.RequireFromString("101.00")))
	require.NotNil(t, second.PaidAt)
}

func TestApply_Overpayment(t *testing.T) {
	inv := testInvoice(domain.InvoiceStatusPending, "100.00", "0")

	decision := apply(t, inv, "150.00", onePercent())

	assert.Equal(t, domain.InvoiceStatusOverpaid, decision.NewStatus)
	assert.True(t, decision.StatusChanged)
	assert.True(t, decision.NewAmountPaid.Equal(decimal.RequireFromString("150.00")))
	assert.Nil(t, decision.PaidAt)
}

func TestApply_ToleranceBands(t *testing.T) {
	tests := []struct {
		name  string
		delta string
		want  domain.InvoiceStatus
	}{
		{"at lower bound", "99.00", domain.InvoiceStatusPaid},
		{"just below lower bound", "98.99", domain.InvoiceStatusUnderpaid},
		{"at upper bound", "101.00", domain.InvoiceStatusPaid},
		{"just above upper bound", "101.000000000000000001", domain.InvoiceStatusOverpaid},
		{"dust", "0.000000000000000001", domain.InvoiceStatusUnderpaid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := testInvoice(domain.InvoiceStatusPending, "100.00", "0")
			decision := apply(t, inv, tt.delta, onePercent())
			assert.Equal(t, tt.want, decision.NewStatus)
		})
	}
}

func TestApply_PaidIsTerminal(t *testing.T) {
	paidAt := testNow.Add(-time.Hour)
	inv := testInvoice(domain.InvoiceStatusPaid, "100.00", "100.00")
	inv.PaidAt = &paidAt

	decision := apply(t, inv, "5.00", onePercent())

	assert.Equal(t, domain.InvoiceStatusPaid, decision.NewStatus)
	assert.False(t, decision.StatusChanged)
	assert.Nil(t, decision.PaidAt)
	// Late money is still credited.
	assert.True(t, decision.NewAmountPaid.Equal(decimal.RequireFromString("105.00")))
}

func TestApply_OverpaidStaysOverpaid(t *testing.T) {
	inv := testInvoice(domain.InvoiceStatusOverpaid, "100.00", "150.00")

	decision := apply(t, inv, "10.00", onePercent())

	assert.Equal(t, domain.InvoiceStatusOverpaid, decision.NewStatus)
	assert.False(t, decision.StatusChanged)
	assert.True(t, decision.NewAmountPaid.Equal(decimal.RequireFromString("160.00")))
}

func TestApply_UnderpaidCanOvershoot(t *testing.T) {
	inv := testInvoice(domain.InvoiceStatusUnderpaid, "100.00", "40.00")

	decision := apply(t, inv, "200.00", onePercent())

	assert.Equal(t, domain.InvoiceStatusOverpaid, decision.NewStatus)
	assert.True(t, decision.StatusChanged)
}

func TestApply_CancelledStillCredits(t *testing.T) {
	inv := testInvoice(domain.InvoiceStatusCancelled, "100.00", "0")

	decision := apply(t, inv, "50.00", onePercent())

	assert.Equal(t, domain.InvoiceStatusCancelled, decision.NewStatus)
	assert.False(t, decision.StatusChanged)
	assert.True(t, decision.NewAmountPaid.Equal(decimal.RequireFromString("50.00")))
}

func TestApply_ExpiredStaysExpiredByDefault(t *testing.T) {
	inv := testInvoice(domain.InvoiceStatusExpired, "100.00", "0")

	decision := apply(t, inv, "100.00", onePercent())

	assert.Equal(t, domain.InvoiceStatusExpired, decision.NewStatus)
	assert.False(t, decision.StatusChanged)
	assert.True(t, decision.NewAmountPaid.Equal(decimal.RequireFromString("100.00")))
}

func TestApply_ExpiredReopensWithFlag(t *testing.T) {
	policy := Policy{Tolerance: decimal.RequireFromString("0.01"), ReopenExpired: true}

	t.Run("full late payment reopens to paid", func(t *testing.T) {
		inv := testInvoice(domain.InvoiceStatusExpired, "100.00", "0")
		decision := apply(t, inv, "100.00", policy)
		assert.Equal(t, domain.InvoiceStatusPaid, decision.NewStatus)
		assert.True(t, decision.StatusChanged)
		require.NotNil(t, decision.PaidAt)
	})

	t.Run("partial late payment stays expired", func(t *testing.T) {
		inv := testInvoice(domain.InvoiceStatusExpired, "100.00", "0")
		decision := apply(t, inv, "50.00", policy)
		assert.Equal(t, domain.InvoiceStatusExpired, decision.NewStatus)
		assert.False(t, decision.StatusChanged)
	})

	t.Run("overshooting late payment stays expired", func(t *testing.T) {
		inv := testInvoice(domain.InvoiceStatusExpired, "100.00", "0")
		decision := apply(t, inv, "150.00", policy)
		assert.Equal(t, domain.InvoiceStatusExpired, decision.NewStatus)
		assert.False(t, decision.StatusChanged)
	})
}

func TestApply_RejectsNonPositiveDelta(t *testing.T) {
	inv := testInvoice(domain.InvoiceStatusPending, "100.00", "0")

	_, err := Apply(inv, decimal.Zero, onePercent(), testNow)
	assert.ErrorIs(t, err, ErrNonPositiveAmount)

	_, err = Apply(inv, decimal.RequireFromString("-5"), onePercent(), testNow)
	assert.ErrorIs(t, err, ErrNonPositiveAmount)
}

func TestApply_AmountPaidNeverDecreases(t *testing.T) {
	inv := testInvoice(domain.InvoiceStatusPending, "100.00", "0")
	previous := inv.AmountPaid

	for _, delta := range []string{"10", "0.01", "200", "1", "42.42"} {
		decision := apply(t, inv, delta, onePercent())
		assert.True(t, decision.NewAmountPaid.GreaterThan(previous),
			"amount paid must grow on every applied event")
		previous = decision.NewAmountPaid
		inv.Status = decision.NewStatus
		inv.AmountPaid = decision.NewAmountPaid
	}
}

func TestExpireIfOverdue_FromPending(t *testing.T) {
	inv := testInvoice(domain.InvoiceStatusPending, "100.00", "0")
	inv.ExpiresAt = testNow.Add(-time.Minute)

	decision, err := ExpireIfOverdue(inv, onePercent(), testNow)
	require.NoError(t, err)

	assert.Equal(t, domain.InvoiceStatusExpired, decision.NewStatus)
	assert.True(t, decision.StatusChanged)
}

func TestExpireIfOverdue_TokenAmountStillExpires(t *testing.T) {
	// 0.50 against a 1.00 tolerance floor counts as dust.
	inv := testInvoice(domain.InvoiceStatusPending, "100.00", "0.50")
	inv.ExpiresAt = testNow.Add(-time.Minute)

	decision, err := ExpireIfOverdue(inv, onePercent(), testNow)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusExpired, decision.NewStatus)
}

func TestExpireIfOverdue_RejectsMaterialPartialPayment(t *testing.T) {
	inv := testInvoice(domain.InvoiceStatusPending, "100.00", "5.00")
	inv.ExpiresAt = testNow.Add(-time.Minute)

	_, err := ExpireIfOverdue(inv, onePercent(), testNow)
	assert.ErrorIs(t, err, ErrNotExpirable)
}

func TestExpireIfOverdue_RejectsBeforeDeadline(t *testing.T) {
	inv := testInvoice(domain.InvoiceStatusPending, "100.00", "0")
	inv.ExpiresAt = testNow.Add(time.Hour)

	_, err := ExpireIfOverdue(inv, onePercent(), testNow)
	assert.ErrorIs(t, err, ErrNotDue)
}

func TestExpireIfOverdue_AlreadyExpiredIsNoop(t *testing.T) {
	inv := testInvoice(domain.InvoiceStatusExpired, "100.00", "0")
	inv.ExpiresAt = testNow.Add(-time.Hour)

	decision, err := ExpireIfOverdue(inv, onePercent(), testNow)
	require.NoError(t, err)

	assert.Equal(t, domain.InvoiceStatusExpired, decision.NewStatus)
	assert.False(t, decision.StatusChanged)
}

func TestExpireIfOverdue_RejectsOtherStatuses(t *testing.T) {
	for _, status := range []domain.InvoiceStatus{
		domain.InvoiceStatusPaid,
		domain.InvoiceStatusUnderpaid,
		domain.InvoiceStatusOverpaid,
		domain.InvoiceStatusCancelled,
	} {
		t.Run(string(status), func(t *testing.T) {
			inv := testInvoice(status, "100.00", "40.00")
			inv.ExpiresAt = testNow.Add(-time.Hour)

			_, err := ExpireIfOverdue(inv, onePercent(), testNow)
			assert.ErrorIs(t, err, ErrNotExpirable)
		})
	}
}

func TestCancel(t *testing.T) {
	tests := []struct {
		status  domain.InvoiceStatus
		wantErr bool
	}{
		{domain.InvoiceStatusPending, false},
		{domain.InvoiceStatusUnderpaid, false},
		{domain.InvoiceStatusOverpaid, false},
		{domain.InvoiceStatusPaid, true},
		{domain.InvoiceStatusExpired, true},
		{domain.InvoiceStatusCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			inv := testInvoice(tt.status, "100.00", "10.00")

			decision, err := Cancel(inv)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNotCancellable)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, domain.InvoiceStatusCancelled, decision.NewStatus)
			assert.True(t, decision.StatusChanged)
			assert.True(t, decision.NewAmountPaid.Equal(inv.AmountPaid))
		})
	}
}
