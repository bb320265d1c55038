package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"crypto-payment-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// The repos below mirror the observable behavior of the postgres
// adapters: misses return (nil, nil), unique violations surface the same
// sentinel errors, and getters hand out copies like row scans do. The
// transactor is a no-op, so a rollback does not undo writes; rollback
// semantics are covered by the repo and service unit tests.

// --- In-Memory Wallet Repo ---

type inMemoryWalletRepo struct {
	mu      sync.RWMutex
	wallets map[uuid.UUID]*domain.Wallet
}

func newInMemoryWalletRepo() *inMemoryWalletRepo {
	return &inMemoryWalletRepo{wallets: make(map[uuid.UUID]*domain.Wallet)}
}

func (r *inMemoryWalletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *w
	r.wallets[w.ID] = &cp
	return nil
}

func (r *inMemoryWalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wallets[id]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (r *inMemoryWalletRepo) AllocateNextIndex(ctx context.Context, walletID uuid.UUID) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[walletID]
	if !ok || w.Status != domain.WalletStatusActive {
		return 0, false, nil
	}
	index := w.NextIndex
	w.NextIndex++
	w.UpdatedAt = time.Now().UTC()
	return index, true, nil
}

// setStatus flips a wallet's status directly, standing in for the
// operator action the API does not expose.
func (r *inMemoryWalletRepo) setStatus(id uuid.UUID, status domain.WalletStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.wallets[id]; ok {
		w.Status = status
	}
}

// --- In-Memory Address Repo ---

type inMemoryAddressRepo struct {
	mu        sync.RWMutex
	addresses map[uuid.UUID]*domain.DerivedAddress
}

func newInMemoryAddressRepo() *inMemoryAddressRepo {
	return &inMemoryAddressRepo{addresses: make(map[uuid.UUID]*domain.DerivedAddress)}
}

func (r *inMemoryAddressRepo) Create(ctx context.Context, a *domain.DerivedAddress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.addresses {
		if existing.WalletID == a.WalletID && existing.DerivationIndex == a.DerivationIndex {
			return fmt.Errorf("duplicate derivation index %d for wallet %s", a.DerivationIndex, a.WalletID)
		}
		if existing.Chain == a.Chain && existing.Address == a.Address {
			return fmt.Errorf("duplicate address %s on chain %s", a.Address, a.Chain)
		}
	}
	cp := *a
	r.addresses[a.ID] = &cp
	return nil
}

func (r *inMemoryAddressRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.DerivedAddress, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.addresses[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *inMemoryAddressRepo) GetByChainAddress(ctx context.Context, chain, address string) (*domain.DerivedAddress, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.addresses {
		if a.Chain == chain && a.Address == address {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryAddressRepo) GetByChainAddressForUpdate(ctx context.Context, tx pgx.Tx, chain, address string) (*domain.DerivedAddress, error) {
	return r.GetByChainAddress(ctx, chain, address)
}

func (r *inMemoryAddressRepo) BindInvoice(ctx context.Context, tx pgx.Tx, addressID, invoiceID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.addresses[addressID]
	if !ok {
		return fmt.Errorf("address not found: %s", addressID)
	}
	if a.InvoiceID != nil {
		return fmt.Errorf("bind invoice to address %s: %w", addressID, domain.ErrAlreadyBound)
	}
	id := invoiceID
	a.InvoiceID = &id
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *inMemoryAddressRepo) Credit(ctx context.Context, tx pgx.Tx, addressID uuid.UUID, delta decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.addresses[addressID]
	if !ok {
		return fmt.Errorf("address not found: %s", addressID)
	}
	a.TotalReceived = a.TotalReceived.Add(delta)
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// --- In-Memory Invoice Repo ---

type inMemoryInvoiceRepo struct {
	mu       sync.RWMutex
	invoices map[uuid.UUID]*domain.Invoice
}

func newInMemoryInvoiceRepo() *inMemoryInvoiceRepo {
	return &inMemoryInvoiceRepo{invoices: make(map[uuid.UUID]*domain.Invoice)}
}

func (r *inMemoryInvoiceRepo) Create(ctx context.Context, tx pgx.Tx, inv *domain.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *inv
	r.invoices[inv.ID] = &cp
	return nil
}

func (r *inMemoryInvoiceRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inv, ok := r.invoices[id]
	if !ok {
		return nil, nil
	}
	cp := *inv
	return &cp, nil
}

func (r *inMemoryInvoiceRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Invoice, error) {
	return r.GetByID(ctx, id)
}

func (r *inMemoryInvoiceRepo) UpdateSettlement(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.InvoiceStatus, amountPaid decimal.Decimal, paidAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok {
		return fmt.Errorf("invoice not found: %s", id)
	}
	inv.Status = status
	inv.AmountPaid = amountPaid
	// paid_at is write-once, like the COALESCE in the SQL statement.
	if inv.PaidAt == nil && paidAt != nil {
		at := *paidAt
		inv.PaidAt = &at
	}
	inv.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *inMemoryInvoiceRepo) LockExpiryCandidates(ctx context.Context, tx pgx.Tx, cutoff time.Time, limit int) ([]domain.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var candidates []domain.Invoice
	for _, inv := range r.invoices {
		if inv.Status == domain.InvoiceStatusPending && !inv.ExpiresAt.After(cutoff) {
			candidates = append(candidates, *inv)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ExpiresAt.Before(candidates[j].ExpiresAt)
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// backdate rewinds an invoice's deadline so expiry tests do not sleep.
func (r *inMemoryInvoiceRepo) backdate(id uuid.UUID, expiresAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inv, ok := r.invoices[id]; ok {
		inv.ExpiresAt = expiresAt
	}
}

// --- In-Memory Balance Repo ---

type inMemoryBalanceRepo struct {
	mu       sync.RWMutex
	balances map[string]*domain.MerchantBalance
}

func newInMemoryBalanceRepo() *inMemoryBalanceRepo {
	return &inMemoryBalanceRepo{balances: make(map[string]*domain.MerchantBalance)}
}

func balanceKey(merchantID uuid.UUID, currency string) string {
	return merchantID.String() + ":" + currency
}

func (r *inMemoryBalanceRepo) ApplyDelta(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID, currency string, delta decimal.Decimal) (*domain.MerchantBalance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := balanceKey(merchantID, currency)
	b, ok := r.balances[key]
	if !ok {
		b = &domain.MerchantBalance{
			MerchantID:    merchantID,
			Currency:      currency,
			Balance:       decimal.Zero,
			TotalReceived: decimal.Zero,
		}
		r.balances[key] = b
	}
	b.Balance = b.Balance.Add(delta)
	b.TotalReceived = b.TotalReceived.Add(delta)
	b.UpdatedAt = time.Now().UTC()
	cp := *b
	return &cp, nil
}

func (r *inMemoryBalanceRepo) ListByMerchant(ctx context.Context, merchantID uuid.UUID) ([]domain.MerchantBalance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var balances []domain.MerchantBalance
	for _, b := range r.balances {
		if b.MerchantID == merchantID {
			balances = append(balances, *b)
		}
	}
	sort.Slice(balances, func(i, j int) bool {
		return balances[i].Currency < balances[j].Currency
	})
	return balances, nil
}

// --- In-Memory Event Repo ---

type inMemoryEventRepo struct {
	mu     sync.RWMutex
	events map[string]*domain.ProcessedEvent
}

func newInMemoryEventRepo() *inMemoryEventRepo {
	return &inMemoryEventRepo{events: make(map[string]*domain.ProcessedEvent)}
}

func (r *inMemoryEventRepo) Create(ctx context.Context, tx pgx.Tx, e *domain.ProcessedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[e.IdempotencyKey]; ok {
		return fmt.Errorf("record event %s: %w", e.IdempotencyKey, domain.ErrDuplicateEvent)
	}
	cp := *e
	r.events[e.IdempotencyKey] = &cp
	return nil
}

func (r *inMemoryEventRepo) Get(ctx context.Context, key string) (*domain.ProcessedEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.events[key]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

// count reports how many distinct events have been durably recorded.
func (r *inMemoryEventRepo) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.events)
}

// --- In-Memory Outbox Repo ---

type inMemoryOutboxRepo struct {
	mu     sync.RWMutex
	events map[uuid.UUID]*domain.OutboxEvent
}

func newInMemoryOutboxRepo() *inMemoryOutboxRepo {
	return &inMemoryOutboxRepo{events: make(map[uuid.UUID]*domain.OutboxEvent)}
}

func (r *inMemoryOutboxRepo) Create(ctx context.Context, tx pgx.Tx, e *domain.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *e
	r.events[e.ID] = &cp
	return nil
}

func (r *inMemoryOutboxRepo) ClaimBatch(ctx context.Context, owner string, limit int, leaseUntil time.Time) ([]domain.OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	var due []*domain.OutboxEvent
	for _, e := range r.events {
		if e.Status != domain.OutboxStatusPending || e.NextAttemptAt.After(now) {
			continue
		}
		if e.LeaseUntil != nil && e.LeaseUntil.After(now) {
			continue
		}
		due = append(due, e)
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].NextAttemptAt.Before(due[j].NextAttemptAt)
	})
	if len(due) > limit {
		due = due[:limit]
	}
	claimed := make([]domain.OutboxEvent, 0, len(due))
	for _, e := range due {
		o, lu := owner, leaseUntil
		e.LeaseOwner = &o
		e.LeaseUntil = &lu
		e.UpdatedAt = now
		claimed = append(claimed, *e)
	}
	return claimed, nil
}

func (r *inMemoryOutboxRepo) MarkDelivered(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return fmt.Errorf("outbox event not found: %s", id)
	}
	e.Status = domain.OutboxStatusDelivered
	e.LeaseOwner, e.LeaseUntil, e.LastError = nil, nil, nil
	e.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *inMemoryOutboxRepo) ScheduleRetry(ctx context.Context, id uuid.UUID, nextAttemptAt time.Time, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return fmt.Errorf("outbox event not found: %s", id)
	}
	e.Attempts++
	e.NextAttemptAt = nextAttemptAt
	le := lastError
	e.LastError = &le
	e.LeaseOwner, e.LeaseUntil = nil, nil
	e.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *inMemoryOutboxRepo) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return fmt.Errorf("outbox event not found: %s", id)
	}
	e.Status = domain.OutboxStatusFailed
	e.Attempts++
	le := lastError
	e.LastError = &le
	e.LeaseOwner, e.LeaseUntil = nil, nil
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// byType snapshots recorded events of one type, oldest first.
func (r *inMemoryOutboxRepo) byType(eventType string) []domain.OutboxEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.OutboxEvent
	for _, e := range r.events {
		if e.EventType == eventType {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// --- In-Memory Transactor (no-op tx) ---

type inMemoryTransactor struct{}

func newInMemoryTransactor() *inMemoryTransactor {
	return &inMemoryTransactor{}
}

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return &noopTx{}, nil
}

// noopTx is a no-op pgx.Tx implementation for in-memory testing.
type noopTx struct{}

func (t *noopTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *noopTx) Commit(ctx context.Context) error          { return nil }
func (t *noopTx) Rollback(ctx context.Context) error        { return nil }
func (t *noopTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *noopTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *noopTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *noopTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *noopTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *noopTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *noopTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *noopTx) Conn() *pgx.Conn { return nil }
