// Package settlement implements the invoice settlement state machine.
// Every function here is pure: the caller loads the invoice under a row
// lock, asks for a decision, and persists it in the same transaction.
package settlement

import (
	"errors"
	"time"

	"crypto-payment-gateway/internal/core/domain"

	"github.com/shopspring/decimal"
)

var (
	// ErrNonPositiveAmount rejects zero or negative payment deltas.
	ErrNonPositiveAmount = errors.New("payment delta must be positive")
	// ErrNotCancellable rejects cancellation from PAID, EXPIRED or CANCELLED.
	ErrNotCancellable = errors.New("invoice is not cancellable in its current status")
	// ErrNotExpirable rejects expiry from any status other than PENDING, or
	// from PENDING holding more than a token amount.
	ErrNotExpirable = errors.New("invoice is not expirable in its current status")
	// ErrNotDue rejects expiry before the invoice deadline has passed.
	ErrNotDue = errors.New("invoice deadline has not passed")
)

// Policy carries the per-chain settlement knobs.
type Policy struct {
	// Tolerance is the fraction of the required amount absorbed as
	// network-fee/dust discrepancy, e.g. 0.01 for 1%.
	Tolerance decimal.Decimal
	// ReopenExpired lets a late payment that lands inside the paid window
	// move an EXPIRED invoice to PAID.
	ReopenExpired bool
}

// Decision is the outcome of one settlement step. The caller persists
// NewStatus and NewAmountPaid; nothing is mutated here.
type Decision struct {
	NewStatus     domain.InvoiceStatus
	NewAmountPaid decimal.Decimal
	StatusChanged bool
	PaidAt        *time.Time
}

// Apply credits a confirmed payment delta against the invoice and decides
// the resulting status. Amount-paid grows on every call regardless of
// status: late money is still real money. Status moves only where the
// machine allows it, and never backward from PAID.
func Apply(inv *domain.Invoice, delta decimal.Decimal, policy Policy, now time.Time) (Decision, error) {
	if !delta.IsPositive() {
		return Decision{}, ErrNonPositiveAmount
	}

	newPaid := inv.AmountPaid.Add(delta)
	decision := Decision{
		NewStatus:     inv.Status,
		NewAmountPaid: newPaid,
	}

	switch inv.Status {
	case domain.InvoiceStatusPaid, domain.InvoiceStatusCancelled:
		return decision, nil

	case domain.InvoiceStatusExpired:
		if !policy.ReopenExpired {
			return decision, nil
		}
		if band(newPaid, inv.RequiredAmount, policy.Tolerance) == domain.InvoiceStatusPaid {
			decision.NewStatus = domain.InvoiceStatusPaid
			decision.StatusChanged = true
			decision.PaidAt = &now
		}
		return decision, nil

	case domain.InvoiceStatusOverpaid:
		return decision, nil

	case domain.InvoiceStatusPending, domain.InvoiceStatusUnderpaid:
		next := band(newPaid, inv.RequiredAmount, policy.Tolerance)
		decision.NewStatus = next
		decision.StatusChanged = next != inv.Status
		if next == domain.InvoiceStatusPaid && inv.Status != domain.InvoiceStatusPaid {
			decision.PaidAt = &now
		}
		return decision, nil

	default:
		return decision, nil
	}
}

// band classifies a cumulative paid amount against the required amount.
// Above required × (1 + tolerance) is OVERPAID; at or above
// required × (1 − tolerance) is PAID; any other positive amount is
// UNDERPAID.
func band(paid, required, tolerance decimal.Decimal) domain.InvoiceStatus {
	one := decimal.NewFromInt(1)
	lower := required.Mul(one.Sub(tolerance))
	upper := required.Mul(one.Add(tolerance))

	switch {
	case paid.GreaterThan(upper):
		return domain.InvoiceStatusOverpaid
	case paid.GreaterThanOrEqual(lower):
		return domain.InvoiceStatusPaid
	case paid.IsPositive():
		return domain.InvoiceStatusUnderpaid
	default:
		return domain.InvoiceStatusPending
	}
}

// ExpireIfOverdue moves a PENDING invoice past its deadline to EXPIRED.
// An invoice that already collected more than a token amount (above the
// tolerance floor) is UNDERPAID territory and must not expire. Re-expiring
// an EXPIRED invoice is a no-op so concurrent sweepers stay safe.
func ExpireIfOverdue(inv *domain.Invoice, policy Policy, now time.Time) (Decision, error) {
	decision := Decision{
		NewStatus:     inv.Status,
		NewAmountPaid: inv.AmountPaid,
	}

	if inv.Status == domain.InvoiceStatusExpired {
		return decision, nil
	}
	if inv.Status != domain.InvoiceStatusPending {
		return Decision{}, ErrNotExpirable
	}
	if now.Before(inv.ExpiresAt) {
		return Decision{}, ErrNotDue
	}
	if inv.AmountPaid.GreaterThan(inv.RequiredAmount.Mul(policy.Tolerance)) {
		return Decision{}, ErrNotExpirable
	}

	decision.NewStatus = domain.InvoiceStatusExpired
	decision.StatusChanged = true
	return decision, nil
}

// Cancel moves the invoice to CANCELLED on an explicit external request.
// Rejected once the invoice is PAID, EXPIRED or already CANCELLED.
func Cancel(inv *domain.Invoice) (Decision, error) {
	if !inv.IsCancellable() {
		return Decision{}, ErrNotCancellable
	}
	return Decision{
		NewStatus:     domain.InvoiceStatusCancelled,
		NewAmountPaid: inv.AmountPaid,
		StatusChanged: true,
	}, nil
}
