package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Source Authentication (SEC) ----

func ErrInvalidSignature() *AppError {
	return New("SEC_001", "Invalid signature", http.StatusUnauthorized)
}

func ErrTimestampExpired() *AppError {
	return New("SEC_002", "Request timestamp expired", http.StatusForbidden)
}

func ErrNonceUsed() *AppError {
	return New("SEC_003", "Nonce has already been used", http.StatusForbidden)
}

// ---- Chain & Key Material (CHAIN) ----

func ErrUnsupportedChain(chain string) *AppError {
	return New("CHAIN_001", fmt.Sprintf("Unsupported chain or derivation scheme: %s", chain), http.StatusUnprocessableEntity)
}

func ErrInvalidKeyMaterial(reason string) *AppError {
	return New("CHAIN_002", fmt.Sprintf("Invalid extended public key: %s", reason), http.StatusUnprocessableEntity)
}

func ErrIndexOverflow(index int64) *AppError {
	return New("CHAIN_003", fmt.Sprintf("Derivation index %d exceeds the non-hardened range", index), http.StatusUnprocessableEntity)
}

func ErrDerivationFailed(err error) *AppError {
	return Wrap("CHAIN_004", "Address derivation failed", http.StatusInternalServerError, err)
}

// ---- Wallets & Addresses (WALLET / ADDR) ----

func ErrWalletUnavailable() *AppError {
	return New("WALLET_001", "Wallet unavailable", http.StatusConflict)
}

func ErrAddressAlreadyBound() *AppError {
	return New("ADDR_001", "Address is already bound to an invoice", http.StatusConflict)
}

func ErrAddressOwnership() *AppError {
	return New("ADDR_002", "Address does not belong to the merchant", http.StatusForbidden)
}

// ---- Invoices (INV) ----

func ErrInvalidAmount() *AppError {
	return New("INV_001", "Invalid amount", http.StatusBadRequest)
}

func ErrNotCancellable(status string) *AppError {
	return New("INV_002", fmt.Sprintf("Invoice in status %s cannot be cancelled", status), http.StatusConflict)
}

func ErrNotExpirable(status string) *AppError {
	return New("INV_003", fmt.Sprintf("Invoice in status %s cannot be expired", status), http.StatusConflict)
}

func ErrInvalidExpiry() *AppError {
	return New("INV_004", "Invoice expiry must be in the future", http.StatusBadRequest)
}

// ---- Resources (RES) ----

func ErrNotFound(entity string) *AppError {
	return New("RES_001", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

func ErrLockTimeout(err error) *AppError {
	return Wrap("SYS_002", "Lock acquisition timeout", http.StatusServiceUnavailable, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a VAL_001 request validation error.
func Validation(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}
