package reconciliation

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentwise/lease-billing-backend/internal/domain/billing"
	domainerrors "github.com/rentwise/lease-billing-backend/internal/domain/errors"
	"github.com/rentwise/lease-billing-backend/internal/domain/values"
	"github.com/rentwise/lease-billing-backend/internal/testutil/fixtures"
)

func date(y int, m time.Month, d int) time.Time {
	return fixtures.Date(y, m, d)
}

func idr(amount string) values.Money {
	return fixtures.IDR(amount)
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// memStore keeps invoices and payments in maps and hands out an in-memory
// InvoiceTx. A single mutex stands in for the per-invoice row lock.
type memStore struct {
	mu       sync.Mutex
	invoices map[uuid.UUID]*billing.Invoice
	payments map[uuid.UUID]*billing.Payment
}

func newMemStore(invoices ...*billing.Invoice) *memStore {
	store := &memStore{
		invoices: make(map[uuid.UUID]*billing.Invoice),
		payments: make(map[uuid.UUID]*billing.Payment),
	}
	for _, inv := range invoices {
		store.invoices[inv.ID] = inv
	}
	return store
}

func (s *memStore) WithInvoice(ctx context.Context, invoiceID uuid.UUID, fn func(ctx context.Context, tx InvoiceTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[invoiceID]
	if !ok {
		return domainerrors.ErrInvoiceNotFound
	}
	return fn(ctx, &memTx{store: s, invoice: inv})
}

func (s *memStore) FindPayment(ctx context.Context, id uuid.UUID) (*billing.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[id]
	if !ok {
		return nil, domainerrors.ErrPaymentNotFound
	}
	return p, nil
}

type memTx struct {
	store   *memStore
	invoice *billing.Invoice
}

func (t *memTx) Invoice() *billing.Invoice { return t.invoice }

func (t *memTx) TotalPaid(ctx context.Context) (values.Money, error) {
	total := values.Zero(t.invoice.TotalAmount.Currency())
	for _, p := range t.store.payments {
		if p.InvoiceID != t.invoice.ID {
			continue
		}
		var err error
		total, err = total.Add(p.Amount)
		if err != nil {
			return values.Money{}, err
		}
	}
	return total, nil
}

func (t *memTx) AddPayment(ctx context.Context, p *billing.Payment) error {
	t.store.payments[p.ID] = p
	return nil
}

func (t *memTx) RemovePayment(ctx context.Context, id uuid.UUID) error {
	p, ok := t.store.payments[id]
	if !ok || p.InvoiceID != t.invoice.ID {
		return domainerrors.ErrPaymentNotFound
	}
	delete(t.store.payments, id)
	return nil
}

func (t *memTx) SetStatus(ctx context.Context, status billing.InvoiceStatus) error {
	t.invoice.Status = status
	return nil
}

func pendingInvoice(total string) *billing.Invoice {
	return fixtures.PendingInvoice(total)
}

func newTestService(store Store, today time.Time) Service {
	return NewService(store, nil, testLogger(), WithClock(func() time.Time {
		return today
	}))
}

func TestRecordPayment_PartialThenFull(t *testing.T) {
	inv := pendingInvoice("1000000")
	store := newMemStore(inv)
	svc := newTestService(store, date(2024, time.March, 5))

	_, err := svc.RecordPayment(context.Background(), inv.ID, idr("400000"),
		date(2024, time.March, 5), billing.MethodBankTransfer, "")
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceStatusPartiallyPaid, inv.Status)

	_, err = svc.RecordPayment(context.Background(), inv.ID, idr("600000"),
		date(2024, time.March, 6), billing.MethodBankTransfer, "")
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceStatusPaid, inv.Status)
}

func TestRecordPayment_ExceedingBalanceRejected(t *testing.T) {
	inv := pendingInvoice("1000000")
	store := newMemStore(inv)
	svc := newTestService(store, date(2024, time.March, 5))

	_, err := svc.RecordPayment(context.Background(), inv.ID, idr("800000"),
		date(2024, time.March, 5), billing.MethodCash, "")
	require.NoError(t, err)

	_, err = svc.RecordPayment(context.Background(), inv.ID, idr("300000"),
		date(2024, time.March, 6), billing.MethodCash, "")
	require.Error(t, err)
	assert.True(t, domainerrors.IsType(err, domainerrors.ErrorTypeValidation))

	// The rejected payment must not land in the ledger.
	assert.Len(t, store.payments, 1)
	assert.Equal(t, billing.InvoiceStatusPartiallyPaid, inv.Status)
}

func TestRecordPayment_NonPositiveAmountRejected(t *testing.T) {
	inv := pendingInvoice("1000000")
	svc := newTestService(newMemStore(inv), date(2024, time.March, 5))

	_, err := svc.RecordPayment(context.Background(), inv.ID, idr("0"),
		date(2024, time.March, 5), billing.MethodCash, "")
	assert.True(t, domainerrors.IsType(err, domainerrors.ErrorTypeValidation))

	_, err = svc.RecordPayment(context.Background(), inv.ID, idr("-100"),
		date(2024, time.March, 5), billing.MethodCash, "")
	assert.True(t, domainerrors.IsType(err, domainerrors.ErrorTypeValidation))
}

func TestRecordPayment_InvoiceNotFound(t *testing.T) {
	svc := newTestService(newMemStore(), date(2024, time.March, 5))

	_, err := svc.RecordPayment(context.Background(), uuid.New(), idr("100000"),
		date(2024, time.March, 5), billing.MethodCard, "")
	assert.True(t, domainerrors.IsNotFound(err))
}

func TestReversePayment_RecomputesStatus(t *testing.T) {
	inv := pendingInvoice("1000000")
	store := newMemStore(inv)
	svc := newTestService(store, date(2024, time.March, 5))

	p1, err := svc.RecordPayment(context.Background(), inv.ID, idr("400000"),
		date(2024, time.March, 5), billing.MethodBankTransfer, "")
	require.NoError(t, err)
	p2, err := svc.RecordPayment(context.Background(), inv.ID, idr("600000"),
		date(2024, time.March, 6), billing.MethodBankTransfer, "")
	require.NoError(t, err)
	require.Equal(t, billing.InvoiceStatusPaid, inv.Status)

	// Reversing one payment drops the invoice back to partially paid.
	require.NoError(t, svc.ReversePayment(context.Background(), p2.ID))
	assert.Equal(t, billing.InvoiceStatusPartiallyPaid, inv.Status)

	// Reversing the rest restores pending (still before the due date).
	require.NoError(t, svc.ReversePayment(context.Background(), p1.ID))
	assert.Equal(t, billing.InvoiceStatusPending, inv.Status)
	assert.Empty(t, store.payments)
}

func TestReversePayment_PastDueFallsBackToOverdue(t *testing.T) {
	inv := pendingInvoice("1000000")
	inv.Status = billing.InvoiceStatusPaid
	store := newMemStore(inv)

	svc := newTestService(store, date(2024, time.March, 20))

	p, err := svc.RecordPayment(context.Background(), inv.ID, idr("1000000"),
		date(2024, time.March, 4), billing.MethodVirtualAccount, "")
	require.NoError(t, err)

	require.NoError(t, svc.ReversePayment(context.Background(), p.ID))
	assert.Equal(t, billing.InvoiceStatusOverdue, inv.Status)
}

func TestReversePayment_NotFound(t *testing.T) {
	svc := newTestService(newMemStore(), date(2024, time.March, 5))
	err := svc.ReversePayment(context.Background(), uuid.New())
	assert.True(t, domainerrors.IsNotFound(err))
}

func TestRecomputeStatus(t *testing.T) {
	tests := []struct {
		name   string
		total  string
		paid   []string
		today  time.Time
		expect billing.InvoiceStatus
	}{
		{"no payments before due", "1000000", nil, date(2024, time.March, 5), billing.InvoiceStatusPending},
		{"no payments on due date", "1000000", nil, date(2024, time.March, 8), billing.InvoiceStatusPending},
		{"no payments past due", "1000000", nil, date(2024, time.March, 9), billing.InvoiceStatusOverdue},
		{"partial past due", "1000000", []string{"400000"}, date(2024, time.March, 9), billing.InvoiceStatusPartiallyPaid},
		{"paid in full", "1000000", []string{"400000", "600000"}, date(2024, time.March, 9), billing.InvoiceStatusPaid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := pendingInvoice(tt.total)
			store := newMemStore(inv)
			svc := newTestService(store, tt.today)

			for _, amount := range tt.paid {
				_, err := svc.RecordPayment(context.Background(), inv.ID, idr(amount),
					date(2024, time.March, 5), billing.MethodBankTransfer, "")
				require.NoError(t, err)
			}

			status, err := svc.RecomputeStatus(context.Background(), inv.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.expect, status)
			assert.Equal(t, tt.expect, inv.Status)
		})
	}
}

func TestRecomputeStatus_Idempotent(t *testing.T) {
	inv := pendingInvoice("1000000")
	svc := newTestService(newMemStore(inv), date(2024, time.March, 5))

	first, err := svc.RecomputeStatus(context.Background(), inv.ID)
	require.NoError(t, err)
	second, err := svc.RecomputeStatus(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
