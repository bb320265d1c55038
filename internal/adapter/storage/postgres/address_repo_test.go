package postgres

import (
	"context"
	"testing"
	"time"

	"crypto-payment-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAddress() *domain.DerivedAddress {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.DerivedAddress{
		ID:              uuid.New(),
		WalletID:        uuid.New(),
		MerchantID:      uuid.New(),
		Chain:           "ethereum",
		Address:         "0x9858EfFD232B4033E47d90003D41EC34EcaEda94",
		DerivationIndex: 7,
		InvoiceID:       nil,
		TotalReceived:   decimal.Zero,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func addressTestColumns() []string {
	return []string{"id", "wallet_id", "merchant_id", "chain", "address", "derivation_index", "invoice_id", "total_received", "created_at", "updated_at"}
}

func addressRow(a *domain.DerivedAddress) *pgxmock.Rows {
	return pgxmock.NewRows(addressTestColumns()).AddRow(
		a.ID, a.WalletID, a.MerchantID, a.Chain, a.Address,
		a.DerivationIndex, a.InvoiceID, a.TotalReceived, a.CreatedAt, a.UpdatedAt,
	)
}

func TestAddressRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAddressRepo(mock)
	a := newTestAddress()

	mock.ExpectExec("INSERT INTO derived_addresses").
		WithArgs(a.ID, a.WalletID, a.MerchantID, a.Chain, a.Address,
			a.DerivationIndex, a.InvoiceID, a.TotalReceived, a.CreatedAt, a.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.Create(context.Background(), a)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddressRepo_GetByChainAddress(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAddressRepo(mock)
	a := newTestAddress()

	mock.ExpectQuery("SELECT .+ FROM derived_addresses WHERE chain = .+ AND address").
		WithArgs(a.Chain, a.Address).
		WillReturnRows(addressRow(a))

	result, err := repo.GetByChainAddress(context.Background(), a.Chain, a.Address)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, a.ID, result.ID)
	assert.Equal(t, a.Address, result.Address)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddressRepo_GetByChainAddress_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAddressRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM derived_addresses WHERE chain = .+ AND address").
		WithArgs("ethereum", "0x0000000000000000000000000000000000000001").
		WillReturnRows(pgxmock.NewRows(addressTestColumns()))

	result, err := repo.GetByChainAddress(context.Background(), "ethereum", "0x0000000000000000000000000000000000000001")
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddressRepo_GetByChainAddressForUpdate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAddressRepo(mock)
	a := newTestAddress()

	mock.ExpectBegin()
	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	mock.ExpectQuery("SELECT .+ FROM derived_addresses WHERE chain = .+ AND address = .+ FOR UPDATE").
		WithArgs(a.Chain, a.Address).
		WillReturnRows(addressRow(a))

	result, err := repo.GetByChainAddressForUpdate(context.Background(), tx, a.Chain, a.Address)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, a.ID, result.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddressRepo_BindInvoice(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAddressRepo(mock)
	addressID := uuid.New()
	invoiceID := uuid.New()

	mock.ExpectBegin()
	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	mock.ExpectExec("UPDATE derived_addresses SET invoice_id").
		WithArgs(invoiceID, addressID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = repo.BindInvoice(context.Background(), tx, addressID, invoiceID)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddressRepo_BindInvoice_AlreadyBound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAddressRepo(mock)
	addressID := uuid.New()
	invoiceID := uuid.New()

	mock.ExpectBegin()
	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	mock.ExpectExec("UPDATE derived_addresses SET invoice_id").
		WithArgs(invoiceID, addressID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = repo.BindInvoice(context.Background(), tx, addressID, invoiceID)
	assert.ErrorIs(t, err, domain.ErrAlreadyBound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddressRepo_Credit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAddressRepo(mock)
	addressID := uuid.New()
	delta := decimal.RequireFromString("0.25")

	mock.ExpectBegin()
	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	mock.ExpectExec("UPDATE derived_addresses SET total_received = total_received").
		WithArgs(delta, addressID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = repo.Credit(context.Background(), tx, addressID, delta)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
