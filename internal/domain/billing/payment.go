package billing

import (
	"time"

	"github.com/google/uuid"

	domainerrors "github.com/rentwise/lease-billing-backend/internal/domain/errors"
	"github.com/rentwise/lease-billing-backend/internal/domain/values"
)

// Payment is a recorded receipt against an invoice. Payments are append-only;
// a reversal hard-deletes the row through the reconciliation path. The invoice
// carries no paid-amount counter, the sum is always recomputed from this set.
type Payment struct {
	ID        uuid.UUID     `json:"id"`
	InvoiceID uuid.UUID     `json:"invoice_id"`
	Amount    values.Money  `json:"amount"`
	PaidAt    time.Time     `json:"paid_at"`
	Method    PaymentMethod `json:"method"`
	Note      string        `json:"note,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

type PaymentMethod string

const (
	MethodBankTransfer   PaymentMethod = "bank_transfer"
	MethodCash           PaymentMethod = "cash"
	MethodCard           PaymentMethod = "card"
	MethodVirtualAccount PaymentMethod = "virtual_account"
)

// NewPayment validates and builds a payment against an invoice.
func NewPayment(invoiceID uuid.UUID, amount values.Money, paidAt time.Time, method PaymentMethod, note string) (*Payment, error) {
	if !amount.IsPositive() {
		return nil, domainerrors.ErrNonPositiveAmount
	}

	if paidAt.IsZero() {
		paidAt = time.Now().UTC()
	}

	return &Payment{
		ID:        uuid.New(),
		InvoiceID: invoiceID,
		Amount:    amount,
		PaidAt:    paidAt,
		Method:    method,
		Note:      note,
		CreatedAt: time.Now().UTC(),
	}, nil
}
