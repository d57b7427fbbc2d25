package billing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rentwise/lease-billing-backend/internal/domain/values"
)

// Invoice represents one billing period's charge for one contract. It is
// created once by the generator; only the status field is mutated afterwards,
// and only by the reconciler. Line items are immutable after creation.
type Invoice struct {
	ID          uuid.UUID     `json:"id"`
	ContractID  uuid.UUID     `json:"contract_id"`
	Number      string        `json:"number"`
	PeriodStart time.Time     `json:"period_start"`
	PeriodEnd   time.Time     `json:"period_end"`
	IssueDate   time.Time     `json:"issue_date"`
	DueDate     time.Time     `json:"due_date"`
	TotalAmount values.Money  `json:"total_amount"`
	Status      InvoiceStatus `json:"status"`
	Items       []InvoiceItem `json:"items,omitempty"`
	Payments    []Payment     `json:"payments,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

type InvoiceStatus string

const (
	InvoiceStatusPending       InvoiceStatus = "pending"
	InvoiceStatusPartiallyPaid InvoiceStatus = "partially_paid"
	InvoiceStatusPaid          InvoiceStatus = "paid"
	InvoiceStatusOverdue       InvoiceStatus = "overdue"
)

// Period returns the inclusive date range the invoice covers.
func (i *Invoice) Period() Period {
	return Period{Start: i.PeriodStart, End: i.PeriodEnd}
}

// InvoiceItem is a single line on an invoice. Amount is always
// quantity × unit price, computed at construction.
type InvoiceItem struct {
	ID          uuid.UUID       `json:"id"`
	InvoiceID   uuid.UUID       `json:"invoice_id"`
	ServiceID   *uuid.UUID      `json:"service_id,omitempty"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   values.Money    `json:"unit_price"`
	Amount      values.Money    `json:"amount"`
	Position    int             `json:"position"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NewInvoiceItem builds a line item with its amount derived from quantity
// and unit price, rounded to the persisted 2-digit scale.
func NewInvoiceItem(description string, serviceID *uuid.UUID, quantity decimal.Decimal, unitPrice values.Money, position int) (InvoiceItem, error) {
	if quantity.Sign() <= 0 {
		return InvoiceItem{}, fmt.Errorf("item quantity must be positive: %s", quantity)
	}

	return InvoiceItem{
		ID:          uuid.New(),
		ServiceID:   serviceID,
		Description: description,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		Amount:      unitPrice.Mul(quantity).RoundToScale(),
		Position:    position,
	}, nil
}

// SumItems totals item amounts in the given currency.
func SumItems(items []InvoiceItem, currency string) (values.Money, error) {
	total := values.Zero(currency)
	for _, item := range items {
		var err error
		total, err = total.Add(item.Amount)
		if err != nil {
			return values.Money{}, err
		}
	}
	return total, nil
}

// DeriveStatus recomputes an invoice's status purely from the current payment
// sum and due date. There is no stored transition history, so the derivation
// self-heals after out-of-order mutations such as a later-deleted payment.
func DeriveStatus(total, paid values.Money, dueDate, today time.Time) InvoiceStatus {
	switch {
	case !paid.IsPositive():
		if CivilDate(today).After(CivilDate(dueDate)) {
			return InvoiceStatusOverdue
		}
		return InvoiceStatusPending
	case paid.GreaterThanOrEqual(total):
		return InvoiceStatusPaid
	default:
		return InvoiceStatusPartiallyPaid
	}
}
