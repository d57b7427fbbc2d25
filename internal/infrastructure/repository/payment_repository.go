package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rentwise/lease-billing-backend/internal/domain/billing"
	domainerrors "github.com/rentwise/lease-billing-backend/internal/domain/errors"
	"github.com/rentwise/lease-billing-backend/internal/domain/values"
	"github.com/rentwise/lease-billing-backend/internal/infrastructure/database"
	"github.com/rentwise/lease-billing-backend/internal/service/reconciliation"
)

// PaymentRepository persists payments and implements the reconciliation
// store. All payment mutations run inside WithInvoice, which locks the
// invoice row so concurrent mutations against one invoice serialize.
type PaymentRepository struct {
	db       *database.ConnectionPool
	currency string
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *database.ConnectionPool, currency string) *PaymentRepository {
	return &PaymentRepository{db: db, currency: currency}
}

var _ reconciliation.Store = (*PaymentRepository)(nil)

// WithInvoice runs fn while holding a FOR UPDATE lock on the invoice row
func (r *PaymentRepository) WithInvoice(ctx context.Context, invoiceID uuid.UUID, fn func(ctx context.Context, tx reconciliation.InvoiceTx) error) error {
	return r.db.Transaction(ctx, func(tx pgx.Tx) error {
		query := `
			SELECT id, contract_id, number, period_start, period_end,
				issue_date, due_date, total_amount, status, created_at, updated_at
			FROM invoices
			WHERE id = $1
			FOR UPDATE
		`

		var inv billing.Invoice
		var statusStr string
		err := tx.QueryRow(ctx, query, invoiceID).Scan(
			&inv.ID, &inv.ContractID, &inv.Number, &inv.PeriodStart, &inv.PeriodEnd,
			&inv.IssueDate, &inv.DueDate, &inv.TotalAmount, &statusStr,
			&inv.CreatedAt, &inv.UpdatedAt,
		)
		if errors.Is(err, pgx.ErrNoRows) {
			return domainerrors.ErrInvoiceNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock invoice: %w", err)
		}
		inv.Status = billing.InvoiceStatus(statusStr)

		return fn(ctx, &invoiceTx{tx: tx, invoice: &inv, currency: r.currency})
	})
}

// FindPayment retrieves a payment by ID
func (r *PaymentRepository) FindPayment(ctx context.Context, id uuid.UUID) (*billing.Payment, error) {
	query := `
		SELECT id, invoice_id, amount, paid_at, method, note, created_at
		FROM payments
		WHERE id = $1
	`

	var p billing.Payment
	var methodStr string
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&p.ID, &p.InvoiceID, &p.Amount, &p.PaidAt, &methodStr, &p.Note, &p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domainerrors.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	p.Method = billing.PaymentMethod(methodStr)
	return &p, nil
}

// invoiceTx is the per-transaction view handed to the reconciler
type invoiceTx struct {
	tx       pgx.Tx
	invoice  *billing.Invoice
	currency string
}

func (t *invoiceTx) Invoice() *billing.Invoice {
	return t.invoice
}

// TotalPaid sums the payment set in SQL. The invoice carries no cached paid
// amount, so the sum is always authoritative.
func (t *invoiceTx) TotalPaid(ctx context.Context) (values.Money, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM payments WHERE invoice_id = $1`

	var paid values.Money
	if err := t.tx.QueryRow(ctx, query, t.invoice.ID).Scan(&paid); err != nil {
		return values.Money{}, fmt.Errorf("failed to sum payments: %w", err)
	}

	if paid.Currency() == "" {
		return values.Zero(t.currency), nil
	}
	return paid, nil
}

func (t *invoiceTx) AddPayment(ctx context.Context, p *billing.Payment) error {
	query := `
		INSERT INTO payments (id, invoice_id, amount, paid_at, method, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := t.tx.Exec(ctx, query,
		p.ID, p.InvoiceID, p.Amount, p.PaidAt, p.Method, p.Note, p.CreatedAt,
	)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return domainerrors.ErrInvoiceNotFound
		}
		return fmt.Errorf("failed to insert payment: %w", err)
	}

	return nil
}

func (t *invoiceTx) RemovePayment(ctx context.Context, id uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM payments WHERE id = $1 AND invoice_id = $2`, id, t.invoice.ID)
	if err != nil {
		return fmt.Errorf("failed to delete payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainerrors.ErrPaymentNotFound
	}

	return nil
}

func (t *invoiceTx) SetStatus(ctx context.Context, status billing.InvoiceStatus) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE invoices SET status = $2, updated_at = NOW() WHERE id = $1
	`, t.invoice.ID, status)
	if err != nil {
		return fmt.Errorf("failed to update invoice status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainerrors.ErrInvoiceNotFound
	}

	t.invoice.Status = status
	return nil
}
