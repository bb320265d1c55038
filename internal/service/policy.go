package service

import (
	"crypto-payment-gateway/internal/settlement"

	"github.com/shopspring/decimal"
)

// ChainPolicy overrides the settlement knobs for one chain. Zero values
// fall back to the defaults.
type ChainPolicy struct {
	Tolerance             decimal.Decimal
	RequiredConfirmations uint32
}

// SettlementPolicies resolves per-chain classification knobs for inbound
// payments. Built once at wiring time from configuration.
type SettlementPolicies struct {
	DefaultTolerance     decimal.Decimal
	DefaultConfirmations uint32
	ReopenExpired        bool
	Chains               map[string]ChainPolicy
}

// PolicyFor returns the settlement policy to apply for a chain.
func (p SettlementPolicies) PolicyFor(chain string) settlement.Policy {
	tolerance := p.DefaultTolerance
	if cp, ok := p.Chains[chain]; ok && cp.Tolerance.IsPositive() {
		tolerance = cp.Tolerance
	}
	return settlement.Policy{
		Tolerance:     tolerance,
		ReopenExpired: p.ReopenExpired,
	}
}

// ConfirmationsFor returns the confirmation floor for a chain.
func (p SettlementPolicies) ConfirmationsFor(chain string) uint32 {
	if cp, ok := p.Chains[chain]; ok && cp.RequiredConfirmations > 0 {
		return cp.RequiredConfirmations
	}
	return p.DefaultConfirmations
}
