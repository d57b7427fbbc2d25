// Package reconciliation records and reverses payments against invoices and
// re-derives invoice status from the payment ledger after every mutation.
package reconciliation

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rentwise/lease-billing-backend/internal/domain/billing"
	domainerrors "github.com/rentwise/lease-billing-backend/internal/domain/errors"
	"github.com/rentwise/lease-billing-backend/internal/domain/values"
	"github.com/rentwise/lease-billing-backend/internal/metrics"
)

// Store is the persistence contract for payment reconciliation. WithInvoice
// must hold a row lock on the invoice for the duration of fn so concurrent
// payment mutations against one invoice are serialized.
type Store interface {
	WithInvoice(ctx context.Context, invoiceID uuid.UUID, fn func(ctx context.Context, tx InvoiceTx) error) error
	FindPayment(ctx context.Context, id uuid.UUID) (*billing.Payment, error)
}

// InvoiceTx exposes the locked invoice and its payment set inside one
// transaction.
type InvoiceTx interface {
	Invoice() *billing.Invoice
	TotalPaid(ctx context.Context) (values.Money, error)
	AddPayment(ctx context.Context, p *billing.Payment) error
	RemovePayment(ctx context.Context, id uuid.UUID) error
	SetStatus(ctx context.Context, status billing.InvoiceStatus) error
}

// Service reconciles invoice status with the payment ledger
type Service interface {
	RecordPayment(ctx context.Context, invoiceID uuid.UUID, amount values.Money, paidAt time.Time, method billing.PaymentMethod, note string) (*billing.Payment, error)
	ReversePayment(ctx context.Context, paymentID uuid.UUID) error
	RecomputeStatus(ctx context.Context, invoiceID uuid.UUID) (billing.InvoiceStatus, error)
}

type service struct {
	store   Store
	metrics *metrics.Registry
	logger  *slog.Logger
	clock   func() time.Time
}

// Option configures the service
type Option func(*service)

// WithClock overrides the time source, used by tests to pin "today"
func WithClock(clock func() time.Time) Option {
	return func(s *service) {
		s.clock = clock
	}
}

// NewService creates a new reconciliation service
func NewService(store Store, registry *metrics.Registry, logger *slog.Logger, opts ...Option) Service {
	s := &service{
		store:   store,
		metrics: registry,
		logger:  logger,
		clock:   func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// RecordPayment appends a payment to the invoice's ledger and re-derives the
// invoice status, all inside one transaction holding the invoice row lock.
// A payment exceeding the remaining balance is rejected.
func (s *service) RecordPayment(ctx context.Context, invoiceID uuid.UUID, amount values.Money, paidAt time.Time, method billing.PaymentMethod, note string) (*billing.Payment, error) {
	payment, err := billing.NewPayment(invoiceID, amount, paidAt, method, note)
	if err != nil {
		return nil, err
	}

	err = s.store.WithInvoice(ctx, invoiceID, func(ctx context.Context, tx InvoiceTx) error {
		inv := tx.Invoice()

		paid, err := tx.TotalPaid(ctx)
		if err != nil {
			return err
		}

		remaining, err := inv.TotalAmount.Sub(paid)
		if err != nil {
			return err
		}
		if amount.Compare(remaining) > 0 {
			return domainerrors.ErrPaymentExceedsDue.WithDetails(map[string]interface{}{
				"remaining": remaining.String(),
				"amount":    amount.String(),
			})
		}

		if err := tx.AddPayment(ctx, payment); err != nil {
			return err
		}

		newPaid, err := paid.Add(amount)
		if err != nil {
			return err
		}

		return s.applyStatus(ctx, tx, newPaid)
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.PaymentsRecorded.Inc()
	}
	s.logger.InfoContext(ctx, "payment recorded",
		"invoice_id", invoiceID,
		"payment_id", payment.ID,
		"amount", amount.String())

	return payment, nil
}

// ReversePayment hard-deletes a payment and re-derives the invoice status.
// This is the only sanctioned way to remove a payment; there is no cascade
// from the invoice side.
func (s *service) ReversePayment(ctx context.Context, paymentID uuid.UUID) error {
	payment, err := s.store.FindPayment(ctx, paymentID)
	if err != nil {
		return err
	}

	err = s.store.WithInvoice(ctx, payment.InvoiceID, func(ctx context.Context, tx InvoiceTx) error {
		if err := tx.RemovePayment(ctx, paymentID); err != nil {
			return err
		}

		paid, err := tx.TotalPaid(ctx)
		if err != nil {
			return err
		}

		return s.applyStatus(ctx, tx, paid)
	})
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.PaymentsReversed.Inc()
	}
	s.logger.InfoContext(ctx, "payment reversed",
		"invoice_id", payment.InvoiceID,
		"payment_id", paymentID)

	return nil
}

// RecomputeStatus re-derives the invoice status from the current payment sum.
// Idempotent; exposed for operational recovery.
func (s *service) RecomputeStatus(ctx context.Context, invoiceID uuid.UUID) (billing.InvoiceStatus, error) {
	var status billing.InvoiceStatus

	err := s.store.WithInvoice(ctx, invoiceID, func(ctx context.Context, tx InvoiceTx) error {
		paid, err := tx.TotalPaid(ctx)
		if err != nil {
			return err
		}

		if err := s.applyStatus(ctx, tx, paid); err != nil {
			return err
		}

		status = billing.DeriveStatus(tx.Invoice().TotalAmount, paid, tx.Invoice().DueDate, s.clock())
		return nil
	})
	if err != nil {
		return "", err
	}

	return status, nil
}

func (s *service) applyStatus(ctx context.Context, tx InvoiceTx, paid values.Money) error {
	inv := tx.Invoice()

	status := billing.DeriveStatus(inv.TotalAmount, paid, inv.DueDate, s.clock())
	if status == inv.Status {
		return nil
	}

	return tx.SetStatus(ctx, status)
}
