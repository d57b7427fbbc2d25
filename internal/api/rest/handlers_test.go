package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentwise/lease-billing-backend/internal/domain/billing"
	domainerrors "github.com/rentwise/lease-billing-backend/internal/domain/errors"
	"github.com/rentwise/lease-billing-backend/internal/domain/values"
	"github.com/rentwise/lease-billing-backend/internal/service/invoicing"
	"github.com/rentwise/lease-billing-backend/internal/service/scheduler"
	"github.com/rentwise/lease-billing-backend/internal/testutil/fixtures"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type fakeInvoicing struct {
	invoice *billing.Invoice
	err     error
}

func (f *fakeInvoicing) Generate(ctx context.Context, req invoicing.GenerateRequest) (*billing.Invoice, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.invoice, nil
}

func (f *fakeInvoicing) GenerateForDate(ctx context.Context, contractID uuid.UUID, date time.Time) (*billing.Invoice, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.invoice, nil
}

type fakeReconciliation struct {
	payment *billing.Payment
	status  billing.InvoiceStatus
	err     error

	reversed []uuid.UUID
}

func (f *fakeReconciliation) RecordPayment(ctx context.Context, invoiceID uuid.UUID, amount values.Money, paidAt time.Time, method billing.PaymentMethod, note string) (*billing.Payment, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.payment, nil
}

func (f *fakeReconciliation) ReversePayment(ctx context.Context, paymentID uuid.UUID) error {
	if f.err != nil {
		return f.err
	}
	f.reversed = append(f.reversed, paymentID)
	return nil
}

func (f *fakeReconciliation) RecomputeStatus(ctx context.Context, invoiceID uuid.UUID) (billing.InvoiceStatus, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.status, nil
}

type fakeInvoiceRepo struct {
	invoice *billing.Invoice
	list    []*billing.Invoice
	err     error
}

func (f *fakeInvoiceRepo) CreateWithItems(ctx context.Context, inv *billing.Invoice) error {
	return f.err
}

func (f *fakeInvoiceRepo) FindByID(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.invoice, nil
}

func (f *fakeInvoiceRepo) ListByContract(ctx context.Context, contractID uuid.UUID) ([]*billing.Invoice, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.list, nil
}

func (f *fakeInvoiceRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status billing.InvoiceStatus) error {
	return f.err
}

type fakeLister struct {
	contracts []*billing.Contract
}

func (f *fakeLister) FindActive(ctx context.Context) ([]*billing.Contract, error) {
	return f.contracts, nil
}

func sampleInvoice() *billing.Invoice {
	inv := fixtures.PendingInvoice("1000000")
	inv.Number = "INV-20240301-0042"
	return inv
}

func newTestMux(inv *fakeInvoicing, rec *fakeReconciliation, repo *fakeInvoiceRepo) *http.ServeMux {
	sched := scheduler.NewService(&fakeLister{}, inv, scheduler.Config{Concurrency: 1}, nil, testLogger())
	handler := NewHandler(inv, rec, sched, repo, values.IDR, testLogger(), nil)

	mux := http.NewServeMux()
	handler.Register(mux)
	return mux
}

func doRequest(t *testing.T, mux *http.ServeMux, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorDetail {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error
}

func TestGenerateInvoice_Created(t *testing.T) {
	inv := sampleInvoice()
	mux := newTestMux(&fakeInvoicing{invoice: inv}, &fakeReconciliation{}, &fakeInvoiceRepo{})

	w := doRequest(t, mux, http.MethodPost, "/api/v1/contracts/"+inv.ContractID.String()+"/invoices",
		map[string]string{"period_start": "2024-03-01", "period_end": "2024-03-31"})

	require.Equal(t, http.StatusCreated, w.Code)

	var got billing.Invoice
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, inv.ID, got.ID)
	assert.Equal(t, "INV-20240301-0042", got.Number)
}

func TestGenerateInvoice_OverlapMapsTo409(t *testing.T) {
	mux := newTestMux(&fakeInvoicing{err: domainerrors.ErrPeriodOverlap}, &fakeReconciliation{}, &fakeInvoiceRepo{})

	w := doRequest(t, mux, http.MethodPost, "/api/v1/contracts/"+uuid.NewString()+"/invoices",
		map[string]string{"period_start": "2024-03-01", "period_end": "2024-03-31"})

	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conflict", decodeError(t, w).Type)
}

func TestGenerateInvoice_BadRequest(t *testing.T) {
	mux := newTestMux(&fakeInvoicing{}, &fakeReconciliation{}, &fakeInvoiceRepo{})

	tests := []struct {
		name string
		path string
		body map[string]string
	}{
		{"bad uuid", "/api/v1/contracts/not-a-uuid/invoices",
			map[string]string{"period_start": "2024-03-01", "period_end": "2024-03-31"}},
		{"missing period", "/api/v1/contracts/" + uuid.NewString() + "/invoices",
			map[string]string{"period_start": "2024-03-01"}},
		{"bad date format", "/api/v1/contracts/" + uuid.NewString() + "/invoices",
			map[string]string{"period_start": "01/03/2024", "period_end": "2024-03-31"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, mux, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestGetInvoice_NotFound(t *testing.T) {
	mux := newTestMux(&fakeInvoicing{}, &fakeReconciliation{}, &fakeInvoiceRepo{err: domainerrors.ErrInvoiceNotFound})

	w := doRequest(t, mux, http.MethodGet, "/api/v1/invoices/"+uuid.NewString(), nil)

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decodeError(t, w).Type)
}

func TestListInvoices_EmptyListIsNotNull(t *testing.T) {
	mux := newTestMux(&fakeInvoicing{}, &fakeReconciliation{}, &fakeInvoiceRepo{})

	w := doRequest(t, mux, http.MethodGet, "/api/v1/contracts/"+uuid.NewString()+"/invoices", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"invoices": []}`, w.Body.String())
}

func TestRecordPayment(t *testing.T) {
	inv := sampleInvoice()
	payment := &billing.Payment{
		ID:        uuid.New(),
		InvoiceID: inv.ID,
		Amount:    values.MustNewMoneyFromString("400000", values.IDR),
		Method:    billing.MethodBankTransfer,
	}
	mux := newTestMux(&fakeInvoicing{}, &fakeReconciliation{payment: payment}, &fakeInvoiceRepo{invoice: inv})

	w := doRequest(t, mux, http.MethodPost, "/api/v1/invoices/"+inv.ID.String()+"/payments",
		map[string]string{"amount": "400000", "method": "bank_transfer", "paid_at": "2024-03-05"})

	require.Equal(t, http.StatusCreated, w.Code)

	var got billing.Payment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, payment.ID, got.ID)
}

func TestRecordPayment_Validation(t *testing.T) {
	mux := newTestMux(&fakeInvoicing{}, &fakeReconciliation{}, &fakeInvoiceRepo{})
	path := "/api/v1/invoices/" + uuid.NewString() + "/payments"

	// Unknown method.
	w := doRequest(t, mux, http.MethodPost, path,
		map[string]string{"amount": "400000", "method": "barter"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unparseable amount.
	w = doRequest(t, mux, http.MethodPost, path,
		map[string]string{"amount": "four hundred", "method": "cash"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_AMOUNT", decodeError(t, w).Code)
}

func TestRecordPayment_ExceedsBalance(t *testing.T) {
	mux := newTestMux(&fakeInvoicing{},
		&fakeReconciliation{err: domainerrors.ErrPaymentExceedsDue}, &fakeInvoiceRepo{})

	w := doRequest(t, mux, http.MethodPost, "/api/v1/invoices/"+uuid.NewString()+"/payments",
		map[string]string{"amount": "2000000", "method": "cash"})

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "PAYMENT_EXCEEDS_BALANCE", decodeError(t, w).Code)
}

func TestReversePayment_NoContent(t *testing.T) {
	rec := &fakeReconciliation{}
	mux := newTestMux(&fakeInvoicing{}, rec, &fakeInvoiceRepo{})
	paymentID := uuid.New()

	w := doRequest(t, mux, http.MethodDelete, "/api/v1/payments/"+paymentID.String(), nil)

	require.Equal(t, http.StatusNoContent, w.Code)
	require.Len(t, rec.reversed, 1)
	assert.Equal(t, paymentID, rec.reversed[0])
}

func TestRecomputeStatus(t *testing.T) {
	mux := newTestMux(&fakeInvoicing{},
		&fakeReconciliation{status: billing.InvoiceStatusOverdue}, &fakeInvoiceRepo{})

	w := doRequest(t, mux, http.MethodPost, "/api/v1/invoices/"+uuid.NewString()+"/status:recompute", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status": "overdue"}`, w.Body.String())
}

func TestRunBilling(t *testing.T) {
	mux := newTestMux(&fakeInvoicing{invoice: sampleInvoice()}, &fakeReconciliation{}, &fakeInvoiceRepo{})

	w := doRequest(t, mux, http.MethodPost, "/api/v1/billing/runs",
		map[string]string{"run_date": "2024-03-01"})

	require.Equal(t, http.StatusOK, w.Code)

	var result scheduler.BatchResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), result.RunDate)
}

func TestHealthz(t *testing.T) {
	mux := newTestMux(&fakeInvoicing{}, &fakeReconciliation{}, &fakeInvoiceRepo{})

	w := doRequest(t, mux, http.MethodGet, "/healthz", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status": "ok"}`, w.Body.String())
}
