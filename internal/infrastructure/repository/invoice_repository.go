package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rentwise/lease-billing-backend/internal/domain/billing"
	domainerrors "github.com/rentwise/lease-billing-backend/internal/domain/errors"
	"github.com/rentwise/lease-billing-backend/internal/infrastructure/database"
)

// InvoiceRepository persists invoices and their line items
type InvoiceRepository struct {
	db *database.ConnectionPool
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(db *database.ConnectionPool) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// CreateWithItems persists an invoice and all of its line items in one
// transaction. The overlap check runs inside the same transaction; the
// daterange exclusion constraint on the invoices table remains the
// authoritative guard when two generation attempts race before either row
// exists, so a serialization loss surfaces as a Conflict rather than a
// duplicate invoice.
func (r *InvoiceRepository) CreateWithItems(ctx context.Context, inv *billing.Invoice) error {
	err := r.db.Transaction(ctx, func(tx pgx.Tx) error {
		var existing uuid.UUID
		err := tx.QueryRow(ctx, `
			SELECT id FROM invoices
			WHERE contract_id = $1 AND period_start <= $3 AND period_end >= $2
			LIMIT 1
			FOR UPDATE
		`, inv.ContractID, inv.PeriodStart, inv.PeriodEnd).Scan(&existing)

		if err == nil {
			return domainerrors.ErrPeriodOverlap
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to check for overlapping invoices: %w", err)
		}

		now := time.Now().UTC()
		inv.CreatedAt = now
		inv.UpdatedAt = now

		_, err = tx.Exec(ctx, `
			INSERT INTO invoices (id, contract_id, number, period_start, period_end,
				issue_date, due_date, total_amount, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`,
			inv.ID, inv.ContractID, inv.Number, inv.PeriodStart, inv.PeriodEnd,
			inv.IssueDate, inv.DueDate, inv.TotalAmount, inv.Status, now, now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert invoice: %w", err)
		}

		for i := range inv.Items {
			item := &inv.Items[i]
			item.InvoiceID = inv.ID
			item.CreatedAt = now

			_, err = tx.Exec(ctx, `
				INSERT INTO invoice_items (id, invoice_id, service_id, description,
					quantity, unit_price, amount, position, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			`,
				item.ID, item.InvoiceID, item.ServiceID, item.Description,
				item.Quantity, item.UnitPrice, item.Amount, item.Position, now,
			)
			if err != nil {
				return fmt.Errorf("failed to insert invoice item: %w", err)
			}
		}

		return nil
	})

	if err != nil {
		if IsExclusionViolation(err) || IsDuplicateKeyViolation(err) {
			return domainerrors.ErrPeriodOverlap
		}
		return err
	}

	return nil
}

const invoiceColumns = `
	id, contract_id, number, period_start, period_end,
	issue_date, due_date, total_amount, status, created_at, updated_at`

// FindByID retrieves an invoice with its line items and payments
func (r *InvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`

	inv, err := scanInvoice(r.db.Pool().QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainerrors.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	if err := r.loadItems(ctx, inv); err != nil {
		return nil, err
	}
	if err := r.loadPayments(ctx, inv); err != nil {
		return nil, err
	}

	return inv, nil
}

// ListByContract retrieves all invoices for a contract, newest period first
func (r *InvoiceRepository) ListByContract(ctx context.Context, contractID uuid.UUID) ([]*billing.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE contract_id = $1
		ORDER BY period_start DESC
	`

	rows, err := r.db.Pool().Query(ctx, query, contractID)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	var invoices []*billing.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}

	return invoices, rows.Err()
}

// UpdateStatus sets the invoice status. Only the reconciler calls this.
func (r *InvoiceRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status billing.InvoiceStatus) error {
	query := `
		UPDATE invoices
		SET status = $2, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.db.Pool().Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to update invoice status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainerrors.ErrInvoiceNotFound
	}

	return nil
}

// HasOverlap reports whether any invoice for the contract overlaps the period
func (r *InvoiceRepository) HasOverlap(ctx context.Context, contractID uuid.UUID, period billing.Period) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM invoices
			WHERE contract_id = $1 AND period_start <= $3 AND period_end >= $2
		)
	`

	var exists bool
	err := r.db.Pool().QueryRow(ctx, query, contractID, period.Start, period.End).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check invoice overlap: %w", err)
	}

	return exists, nil
}

func scanInvoice(row pgx.Row) (*billing.Invoice, error) {
	var inv billing.Invoice
	var statusStr string

	err := row.Scan(
		&inv.ID, &inv.ContractID, &inv.Number, &inv.PeriodStart, &inv.PeriodEnd,
		&inv.IssueDate, &inv.DueDate, &inv.TotalAmount, &statusStr,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	inv.Status = billing.InvoiceStatus(statusStr)
	return &inv, nil
}

func (r *InvoiceRepository) loadItems(ctx context.Context, inv *billing.Invoice) error {
	query := `
		SELECT id, invoice_id, service_id, description, quantity, unit_price,
			amount, position, created_at
		FROM invoice_items
		WHERE invoice_id = $1
		ORDER BY position
	`

	rows, err := r.db.Pool().Query(ctx, query, inv.ID)
	if err != nil {
		return fmt.Errorf("failed to query invoice items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item billing.InvoiceItem
		err := rows.Scan(
			&item.ID, &item.InvoiceID, &item.ServiceID, &item.Description,
			&item.Quantity, &item.UnitPrice, &item.Amount, &item.Position, &item.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to scan invoice item: %w", err)
		}
		inv.Items = append(inv.Items, item)
	}

	return rows.Err()
}

func (r *InvoiceRepository) loadPayments(ctx context.Context, inv *billing.Invoice) error {
	query := `
		SELECT id, invoice_id, amount, paid_at, method, note, created_at
		FROM payments
		WHERE invoice_id = $1
		ORDER BY paid_at
	`

	rows, err := r.db.Pool().Query(ctx, query, inv.ID)
	if err != nil {
		return fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p billing.Payment
		var methodStr string

		err := rows.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.PaidAt, &methodStr, &p.Note, &p.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to scan payment: %w", err)
		}

		p.Method = billing.PaymentMethod(methodStr)
		inv.Payments = append(inv.Payments, p)
	}

	return rows.Err()
}
