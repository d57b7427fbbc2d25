package invoicing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rentwise/lease-billing-backend/internal/domain/billing"
	domainerrors "github.com/rentwise/lease-billing-backend/internal/domain/errors"
)

// memContractRepo is an in-memory ContractRepository for tests
type memContractRepo struct {
	mu        sync.Mutex
	contracts map[uuid.UUID]*billing.Contract

	findErr error
}

func newMemContractRepo(contracts ...*billing.Contract) *memContractRepo {
	repo := &memContractRepo{contracts: make(map[uuid.UUID]*billing.Contract)}
	for _, c := range contracts {
		repo.contracts[c.ID] = c
	}
	return repo
}

func (r *memContractRepo) FindByID(ctx context.Context, id uuid.UUID) (*billing.Contract, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.findErr != nil {
		return nil, r.findErr
	}

	contract, ok := r.contracts[id]
	if !ok {
		return nil, domainerrors.ErrContractNotFound
	}
	return contract, nil
}

func (r *memContractRepo) FindActive(ctx context.Context) ([]*billing.Contract, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var active []*billing.Contract
	for _, c := range r.contracts {
		if c.IsActive() {
			active = append(active, c)
		}
	}
	return active, nil
}

func (r *memContractRepo) UpdateNextGenerationDate(ctx context.Context, scheduleID uuid.UUID, next time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.contracts {
		if c.Schedule != nil && c.Schedule.ID == scheduleID {
			if c.Schedule.NextGenerationDate.Before(next) {
				c.Schedule.NextGenerationDate = next
			}
			return nil
		}
	}
	return domainerrors.NewNotFoundError("billing schedule")
}

// memInvoiceRepo is an in-memory InvoiceRepository that enforces the
// no-overlap rule the way the real store does.
type memInvoiceRepo struct {
	mu       sync.Mutex
	invoices map[uuid.UUID]*billing.Invoice

	createErr error
}

func newMemInvoiceRepo() *memInvoiceRepo {
	return &memInvoiceRepo{invoices: make(map[uuid.UUID]*billing.Invoice)}
}

func (r *memInvoiceRepo) CreateWithItems(ctx context.Context, inv *billing.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.createErr != nil {
		return r.createErr
	}

	for _, existing := range r.invoices {
		if existing.ContractID == inv.ContractID && existing.Period().Overlaps(inv.Period()) {
			return domainerrors.ErrPeriodOverlap
		}
	}

	copied := *inv
	r.invoices[inv.ID] = &copied
	return nil
}

func (r *memInvoiceRepo) FindByID(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inv, ok := r.invoices[id]
	if !ok {
		return nil, domainerrors.ErrInvoiceNotFound
	}
	return inv, nil
}

func (r *memInvoiceRepo) ListByContract(ctx context.Context, contractID uuid.UUID) ([]*billing.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*billing.Invoice
	for _, inv := range r.invoices {
		if inv.ContractID == contractID {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (r *memInvoiceRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status billing.InvoiceStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inv, ok := r.invoices[id]
	if !ok {
		return domainerrors.ErrInvoiceNotFound
	}
	inv.Status = status
	return nil
}

func (r *memInvoiceRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.invoices)
}
