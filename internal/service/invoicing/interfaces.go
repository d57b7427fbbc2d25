package invoicing

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rentwise/lease-billing-backend/internal/domain/billing"
)

// ContractRepository reads lease data from the contract directory. The one
// write is advancing the next generation date on schedule-driven contracts.
type ContractRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*billing.Contract, error)
	FindActive(ctx context.Context) ([]*billing.Contract, error)
	UpdateNextGenerationDate(ctx context.Context, scheduleID uuid.UUID, next time.Time) error
}

// InvoiceRepository persists invoices. CreateWithItems must perform its
// overlap check and inserts inside one transaction and return a Conflict
// error when any existing invoice for the contract overlaps the period.
type InvoiceRepository interface {
	CreateWithItems(ctx context.Context, inv *billing.Invoice) error
	FindByID(ctx context.Context, id uuid.UUID) (*billing.Invoice, error)
	ListByContract(ctx context.Context, contractID uuid.UUID) ([]*billing.Invoice, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status billing.InvoiceStatus) error
}
