package domain

import (
	"time"

	"github.com/google/uuid"
)

// WalletStatus represents the operational state of an xpub wallet.
type WalletStatus string

const (
	WalletStatusActive   WalletStatus = "ACTIVE"
	WalletStatusInactive WalletStatus = "INACTIVE"
)

// WalletPurpose declares what a wallet's keys are used for.
type WalletPurpose string

const (
	WalletPurposeDeposit WalletPurpose = "DEPOSIT"
	WalletPurposeBoth    WalletPurpose = "BOTH"
)

// Wallet is a watch-only extended public key registered for a chain.
// The gateway never holds private material; it only derives receive
// addresses from the xpub.
type Wallet struct {
	ID             uuid.UUID     `json:"id"`
	Chain          string        `json:"chain"`
	Currency       string        `json:"currency"`
	Xpub           string        `json:"-"` // key material stays out of responses
	DerivationPath string        `json:"derivation_path"`
	NextIndex      int64         `json:"next_index"`
	Status         WalletStatus  `json:"status"`
	Purpose        WalletPurpose `json:"purpose"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// IsActive returns true if the wallet may allocate new addresses.
func (w *Wallet) IsActive() bool {
	return w.Status == WalletStatusActive
}

// AcceptsDeposits returns true if the wallet purpose allows issuing
// deposit addresses.
func (w *Wallet) AcceptsDeposits() bool {
	return w.Purpose == WalletPurposeDeposit || w.Purpose == WalletPurposeBoth
}
