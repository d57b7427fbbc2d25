// Package fixtures provides canonical domain objects for tests.
package fixtures

import (
	"time"

	"github.com/google/uuid"

	"github.com/rentwise/lease-billing-backend/internal/domain/billing"
	"github.com/rentwise/lease-billing-backend/internal/domain/values"
)

// Date is shorthand for a civil date at UTC midnight.
func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IDR builds an IDR Money value, panicking on a malformed amount.
func IDR(amount string) values.Money {
	return values.MustNewMoneyFromString(amount, values.IDR)
}

// ActiveContract returns a monthly contract running from January 2024 with a
// 1,000,000 IDR rent. Tests mutate the returned value as needed.
func ActiveContract() *billing.Contract {
	return &billing.Contract{
		ID:           uuid.New(),
		Status:       billing.ContractStatusActive,
		StartDate:    Date(2024, time.January, 1),
		BillingCycle: billing.CycleMonthly,
		RentAmount:   IDR("1000000"),
	}
}

// FixedService returns an active fixed-price add-on for the contract.
func FixedService(contractID uuid.UUID, name, price string, position int) billing.RecurringService {
	return billing.RecurringService{
		ID:         uuid.New(),
		ContractID: contractID,
		Name:       name,
		Pricing:    billing.PricingFixed,
		Price:      IDR(price),
		Active:     true,
		Position:   position,
	}
}

// PendingInvoice returns an unpaid March 2024 invoice due on March 8.
func PendingInvoice(total string) *billing.Invoice {
	return &billing.Invoice{
		ID:          uuid.New(),
		ContractID:  uuid.New(),
		Number:      "INV-20240301-0001",
		PeriodStart: Date(2024, time.March, 1),
		PeriodEnd:   Date(2024, time.March, 31),
		IssueDate:   Date(2024, time.March, 1),
		DueDate:     Date(2024, time.March, 8),
		TotalAmount: IDR(total),
		Status:      billing.InvoiceStatusPending,
	}
}
