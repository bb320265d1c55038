package dto

import (
	"time"

	"crypto-payment-gateway/internal/core/domain"
)

// RegisterWalletRequest is the request body for wallet registration.
type RegisterWalletRequest struct {
	Chain          string `json:"chain" binding:"required,safe_id,max=32"`
	Xpub           string `json:"xpub" binding:"required,max=256"`
	DerivationPath string `json:"derivation_path" binding:"omitempty,max=64"`
	Purpose        string `json:"purpose" binding:"omitempty,oneof=DEPOSIT BOTH"`
}

// WalletResponse is the response body for wallet reads. The xpub never
// leaves the gateway.
type WalletResponse struct {
	ID             string `json:"id"`
	Chain          string `json:"chain"`
	Currency       string `json:"currency"`
	DerivationPath string `json:"derivation_path,omitempty"`
	NextIndex      int64  `json:"next_index"`
	Status         string `json:"status"`
	Purpose        string `json:"purpose"`
	CreatedAt      string `json:"created_at"`
}

// IssueAddressRequest is the request body for deposit address issuance.
type IssueAddressRequest struct {
	WalletID   string `json:"wallet_id" binding:"required,uuid"`
	MerchantID string `json:"merchant_id" binding:"required,uuid"`
}

// AddressResponse is the response body for issued addresses.
type AddressResponse struct {
	ID              string  `json:"id"`
	WalletID        string  `json:"wallet_id"`
	MerchantID      string  `json:"merchant_id"`
	Chain           string  `json:"chain"`
	Address         string  `json:"address"`
	DerivationIndex int64   `json:"derivation_index"`
	InvoiceID       *string `json:"invoice_id,omitempty"`
	TotalReceived   string  `json:"total_received"`
	CreatedAt       string  `json:"created_at"`
}

// CreateInvoiceRequest is the request body for invoice registration.
// Amount is a decimal string; integer cents lose precision on 18-decimal
// chains.
type CreateInvoiceRequest struct {
	MerchantID string `json:"merchant_id" binding:"required,uuid"`
	AddressID  string `json:"address_id" binding:"required,uuid"`
	Amount     string `json:"amount" binding:"required,max=64,positive_decimal"`
	Currency   string `json:"currency" binding:"required,min=2,max=10"`
	ExpiresAt  string `json:"expires_at" binding:"required"`
}

// InvoiceResponse is the response body for invoice reads.
type InvoiceResponse struct {
	ID             string  `json:"id"`
	MerchantID     string  `json:"merchant_id"`
	AddressID      string  `json:"address_id"`
	Chain          string  `json:"chain"`
	Currency       string  `json:"currency"`
	RequiredAmount string  `json:"required_amount"`
	AmountPaid     string  `json:"amount_paid"`
	Status         string  `json:"status"`
	ExpiresAt      string  `json:"expires_at"`
	PaidAt         *string `json:"paid_at,omitempty"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

// PaymentEventRequest is the notification body from the chain monitor.
// Confirmations may legitimately be zero for a mempool sighting.
type PaymentEventRequest struct {
	Chain           string  `json:"chain" binding:"required,safe_id,max=32"`
	Address         string  `json:"address" binding:"required,max=128"`
	Amount          string  `json:"amount" binding:"required,max=64,positive_decimal"`
	TxHash          string  `json:"tx_hash" binding:"required,max=128"`
	Confirmations   uint32  `json:"confirmations"`
	ContractAddress *string `json:"contract_address,omitempty" binding:"omitempty,max=128"`
	LogIndex        *uint32 `json:"log_index,omitempty"`
	BlockHeight     *uint64 `json:"block_height,omitempty"`
}

// EventReceiptResponse reports what processing a notification did.
type EventReceiptResponse struct {
	Outcome       string  `json:"outcome"`
	Duplicate     bool    `json:"duplicate"`
	InvoiceID     *string `json:"invoice_id,omitempty"`
	InvoiceStatus *string `json:"invoice_status,omitempty"`
}

// BalanceResponse is one ledger line of a merchant balance listing.
type BalanceResponse struct {
	Currency      string `json:"currency"`
	Balance       string `json:"balance"`
	TotalReceived string `json:"total_received"`
	UpdatedAt     string `json:"updated_at"`
}

// FromWallet maps a domain wallet to its response shape.
func FromWallet(w *domain.Wallet) WalletResponse {
	return WalletResponse{
		ID:             w.ID.String(),
		Chain:          w.Chain,
		Currency:       w.Currency,
		DerivationPath: w.DerivationPath,
		NextIndex:      w.NextIndex,
		Status:         string(w.Status),
		Purpose:        string(w.Purpose),
		CreatedAt:      w.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// FromAddress maps a derived address to its response shape.
func FromAddress(a *domain.DerivedAddress) AddressResponse {
	resp := AddressResponse{
		ID:              a.ID.String(),
		WalletID:        a.WalletID.String(),
		MerchantID:      a.MerchantID.String(),
		Chain:           a.Chain,
		Address:         a.Address,
		DerivationIndex: a.DerivationIndex,
		TotalReceived:   a.TotalReceived.String(),
		CreatedAt:       a.CreatedAt.UTC().Format(time.RFC3339),
	}
	if a.InvoiceID != nil {
		s := a.InvoiceID.String()
		resp.InvoiceID = &s
	}
	return resp
}

// FromInvoice maps a domain invoice to its response shape.
func FromInvoice(i *domain.Invoice) InvoiceResponse {
	resp := InvoiceResponse{
		ID:             i.ID.String(),
		MerchantID:     i.MerchantID.String(),
		AddressID:      i.AddressID.String(),
		Chain:          i.Chain,
		Currency:       i.Currency,
		RequiredAmount: i.RequiredAmount.String(),
		AmountPaid:     i.AmountPaid.String(),
		Status:         string(i.Status),
		ExpiresAt:      i.ExpiresAt.UTC().Format(time.RFC3339),
		CreatedAt:      i.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      i.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if i.PaidAt != nil {
		s := i.PaidAt.UTC().Format(time.RFC3339)
		resp.PaidAt = &s
	}
	return resp
}

// FromReceipt maps an event receipt to its response shape.
func FromReceipt(r *domain.EventReceipt) EventReceiptResponse {
	resp := EventReceiptResponse{
		Outcome:   string(r.Outcome),
		Duplicate: r.Duplicate,
	}
	if r.InvoiceID != nil {
		s := r.InvoiceID.String()
		resp.InvoiceID = &s
	}
	if r.InvoiceStatus != nil {
		s := string(*r.InvoiceStatus)
		resp.InvoiceStatus = &s
	}
	return resp
}

// FromBalances maps ledger lines to their response shape.
func FromBalances(balances []domain.MerchantBalance) []BalanceResponse {
	out := make([]BalanceResponse, 0, len(balances))
	for i := range balances {
		b := &balances[i]
		out = append(out, BalanceResponse{
			Currency:      b.Currency,
			Balance:       b.Balance.String(),
			TotalReceived: b.TotalReceived.String(),
			UpdatedAt:     b.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	return out
}
