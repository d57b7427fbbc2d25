package billing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentwise/lease-billing-backend/internal/domain/values"
)

func idr(s string) values.Money {
	return values.MustNewMoneyFromString(s, values.IDR)
}

func TestNewInvoiceItem(t *testing.T) {
	serviceID := uuid.New()

	item, err := NewInvoiceItem("internet", &serviceID, decimal.NewFromInt(1), idr("50000"), 1)
	require.NoError(t, err)
	assert.Equal(t, "internet", item.Description)
	assert.Equal(t, &serviceID, item.ServiceID)
	assert.True(t, item.Amount.Equal(idr("50000")))

	metered, err := NewInvoiceItem("water", nil, decimal.NewFromInt(3), idr("12500.50"), 2)
	require.NoError(t, err)
	assert.Equal(t, "37501.50 IDR", metered.Amount.String())
}

func TestNewInvoiceItemRejectsNonPositiveQuantity(t *testing.T) {
	_, err := NewInvoiceItem("rent", nil, decimal.Zero, idr("1000"), 0)
	assert.Error(t, err)

	_, err = NewInvoiceItem("rent", nil, decimal.NewFromInt(-1), idr("1000"), 0)
	assert.Error(t, err)
}

func TestSumItems(t *testing.T) {
	rent, err := NewInvoiceItem("rent", nil, decimal.NewFromInt(1), idr("1000000"), 0)
	require.NoError(t, err)
	service, err := NewInvoiceItem("cleaning", nil, decimal.NewFromInt(1), idr("50000"), 1)
	require.NoError(t, err)

	total, err := SumItems([]InvoiceItem{rent, service}, values.IDR)
	require.NoError(t, err)
	assert.Equal(t, "1050000.00 IDR", total.String())

	empty, err := SumItems(nil, values.IDR)
	require.NoError(t, err)
	assert.True(t, empty.IsZero())
}

func TestDeriveStatus(t *testing.T) {
	total := idr("1050000")
	due := time.Date(2024, time.March, 7, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		paid  values.Money
		today time.Time
		want  InvoiceStatus
	}{
		{
			name:  "unpaid before due date",
			paid:  values.Zero(values.IDR),
			today: time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
			want:  InvoiceStatusPending,
		},
		{
			name:  "unpaid on due date",
			paid:  values.Zero(values.IDR),
			today: due,
			want:  InvoiceStatusPending,
		},
		{
			name:  "unpaid past due date",
			paid:  values.Zero(values.IDR),
			today: time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC),
			want:  InvoiceStatusOverdue,
		},
		{
			name:  "partial payment",
			paid:  idr("500000"),
			today: time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
			want:  InvoiceStatusPartiallyPaid,
		},
		{
			name:  "partial payment past due stays partially paid",
			paid:  idr("500000"),
			today: time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC),
			want:  InvoiceStatusPartiallyPaid,
		},
		{
			name:  "exact payment",
			paid:  idr("1050000"),
			today: time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
			want:  InvoiceStatusPaid,
		},
		{
			name:  "overpayment still paid",
			paid:  idr("1100000"),
			today: time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
			want:  InvoiceStatusPaid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStatus(total, tt.paid, due, tt.today))
		})
	}
}

func TestNewPayment(t *testing.T) {
	invoiceID := uuid.New()

	p, err := NewPayment(invoiceID, idr("500000"), time.Time{}, MethodBankTransfer, "first installment")
	require.NoError(t, err)
	assert.Equal(t, invoiceID, p.InvoiceID)
	assert.False(t, p.PaidAt.IsZero())

	_, err = NewPayment(invoiceID, values.Zero(values.IDR), time.Time{}, MethodCash, "")
	assert.Error(t, err)

	_, err = NewPayment(invoiceID, idr("-100"), time.Time{}, MethodCash, "")
	assert.Error(t, err)
}

func TestRecurringServiceUnitPrice(t *testing.T) {
	custom := idr("75000")
	svc := RecurringService{Name: "parking", Pricing: PricingFixed, Price: idr("60000")}

	assert.True(t, svc.UnitPrice().Equal(idr("60000")))

	svc.CustomPrice = &custom
	assert.True(t, svc.UnitPrice().Equal(custom))
}
