// Package invoicing generates invoices for lease contracts, one per contract
// per billing period.
package invoicing

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rentwise/lease-billing-backend/internal/domain/billing"
	domainerrors "github.com/rentwise/lease-billing-backend/internal/domain/errors"
	"github.com/rentwise/lease-billing-backend/internal/metrics"
)

// ErrCodeNothingDue marks a generation request for a date on which the
// contract has no billable period. Schedulers treat it as a skip.
const ErrCodeNothingDue = "NOTHING_DUE"

// IsNothingDue reports whether err means "no period due", as opposed to a
// real failure.
func IsNothingDue(err error) bool {
	appErr, ok := err.(*domainerrors.AppError)
	return ok && appErr.Code == ErrCodeNothingDue
}

// GenerateRequest asks for one invoice covering an explicit period.
type GenerateRequest struct {
	ContractID  uuid.UUID
	PeriodStart time.Time
	PeriodEnd   time.Time

	// IssueDate defaults to today when zero.
	IssueDate time.Time

	// DueDate defaults to the issue date plus the contract's (or global)
	// days-until-due when nil.
	DueDate *time.Time
}

// Config carries the billing parameters the generator needs
type Config struct {
	Currency       string
	DefaultDueDays int
}

// Service generates invoices
type Service interface {
	// Generate produces one invoice for an explicit period. Returns
	// Conflict when any existing invoice for the contract overlaps the
	// period; callers must treat that as "already billed".
	Generate(ctx context.Context, req GenerateRequest) (*billing.Invoice, error)

	// GenerateForDate derives the due period for a contract from its
	// cadence (or stored schedule) and generates the invoice, advancing
	// the schedule afterwards.
	GenerateForDate(ctx context.Context, contractID uuid.UUID, date time.Time) (*billing.Invoice, error)
}

type service struct {
	contracts ContractRepository
	invoices  InvoiceRepository
	cfg       Config
	metrics   *metrics.Registry
	logger    *slog.Logger
	clock     func() time.Time
}

// Option configures the service
type Option func(*service)

// WithClock overrides the time source, used by tests to pin "today"
func WithClock(clock func() time.Time) Option {
	return func(s *service) {
		s.clock = clock
	}
}

// NewService creates a new invoice generation service
func NewService(contracts ContractRepository, invoices InvoiceRepository, cfg Config, registry *metrics.Registry, logger *slog.Logger, opts ...Option) Service {
	s := &service{
		contracts: contracts,
		invoices:  invoices,
		cfg:       cfg,
		metrics:   registry,
		logger:    logger,
		clock:     func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *service) Generate(ctx context.Context, req GenerateRequest) (*billing.Invoice, error) {
	contract, err := s.contracts.FindByID(ctx, req.ContractID)
	if err != nil {
		return nil, err
	}

	inv, err := s.generate(ctx, contract, req)
	if err != nil {
		if s.metrics != nil && domainerrors.IsConflict(err) {
			s.metrics.GenerationConflicts.Inc()
		}
		return nil, err
	}

	return inv, nil
}

func (s *service) GenerateForDate(ctx context.Context, contractID uuid.UUID, date time.Time) (*billing.Invoice, error) {
	contract, err := s.contracts.FindByID(ctx, contractID)
	if err != nil {
		return nil, err
	}

	date = billing.CivilDate(date)
	if !contract.InForceOn(date) {
		return nil, domainerrors.NewInvalidStateError(ErrCodeNothingDue,
			fmt.Sprintf("contract is not in force on %s", date.Format("2006-01-02")))
	}

	period, newNext, err := s.duePeriod(contract, date)
	if err != nil {
		return nil, err
	}

	if !contract.Covers(period) {
		return nil, domainerrors.NewInvalidStateError(ErrCodeNothingDue,
			fmt.Sprintf("period %s does not intersect the contract dates", period))
	}

	inv, err := s.generate(ctx, contract, GenerateRequest{
		ContractID:  contract.ID,
		PeriodStart: period.Start,
		PeriodEnd:   period.End,
		IssueDate:   date,
	})

	switch {
	case err == nil:
		// Advance the schedule so the next run bills the following window.
		if contract.Schedule != nil {
			if updateErr := s.contracts.UpdateNextGenerationDate(ctx, contract.Schedule.ID, newNext); updateErr != nil {
				s.logger.ErrorContext(ctx, "failed to advance billing schedule",
					"contract_id", contract.ID,
					"schedule_id", contract.Schedule.ID,
					"error", updateErr)
			}
		}
		return inv, nil
	case domainerrors.IsConflict(err):
		// The period is already billed. Still advance a stalled schedule,
		// otherwise it would collide with the same invoice every day.
		if contract.Schedule != nil {
			if updateErr := s.contracts.UpdateNextGenerationDate(ctx, contract.Schedule.ID, newNext); updateErr != nil {
				s.logger.ErrorContext(ctx, "failed to advance billing schedule",
					"contract_id", contract.ID,
					"schedule_id", contract.Schedule.ID,
					"error", updateErr)
			}
		}
		if s.metrics != nil {
			s.metrics.GenerationConflicts.Inc()
		}
		return nil, err
	default:
		return nil, err
	}
}

// duePeriod resolves the period a contract owes on the given date. Schedule-
// driven contracts bill from their stored next generation date; calendar
// cycles align to the month/quarter/year containing the date.
func (s *service) duePeriod(contract *billing.Contract, date time.Time) (billing.Period, time.Time, error) {
	if contract.Schedule != nil {
		next := billing.CivilDate(contract.Schedule.NextGenerationDate)
		if date.Before(next) {
			return billing.Period{}, time.Time{}, domainerrors.NewInvalidStateError(ErrCodeNothingDue,
				fmt.Sprintf("next generation date is %s", next.Format("2006-01-02")))
		}
		return billing.AdvanceSchedule(contract.Schedule.Frequency, next, contract.Schedule.DayOfMonth)
	}

	period, err := billing.ComputePeriod(contract.BillingCycle, date)
	return period, time.Time{}, err
}

func (s *service) generate(ctx context.Context, contract *billing.Contract, req GenerateRequest) (*billing.Invoice, error) {
	if !contract.IsActive() {
		return nil, domainerrors.ErrContractNotActive
	}

	start := billing.CivilDate(req.PeriodStart)
	end := billing.CivilDate(req.PeriodEnd)
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return nil, domainerrors.NewValidationError("INVALID_PERIOD",
			"period start must not be after period end")
	}

	if contract.RentAmount.IsZero() || contract.RentAmount.IsNegative() {
		return nil, domainerrors.NewValidationError("MISSING_RENT_AMOUNT",
			"contract has no positive rent amount")
	}

	items, err := s.buildItems(contract)
	if err != nil {
		return nil, err
	}

	total, err := billing.SumItems(items, s.cfg.Currency)
	if err != nil {
		return nil, domainerrors.NewInternalError("failed to total invoice items").WithCause(err)
	}

	issueDate := billing.CivilDate(req.IssueDate)
	if req.IssueDate.IsZero() {
		issueDate = billing.CivilDate(s.clock())
	}

	dueDate := issueDate.AddDate(0, 0, s.dueDays(contract))
	if req.DueDate != nil {
		dueDate = billing.CivilDate(*req.DueDate)
	}

	inv := &billing.Invoice{
		ID:          uuid.New(),
		ContractID:  contract.ID,
		Number:      invoiceNumber(issueDate),
		PeriodStart: start,
		PeriodEnd:   end,
		IssueDate:   issueDate,
		DueDate:     dueDate,
		TotalAmount: total.RoundToScale(),
		Status:      billing.InvoiceStatusPending,
		Items:       items,
	}

	if err := s.invoices.CreateWithItems(ctx, inv); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.InvoicesGenerated.Inc()
	}
	s.logger.InfoContext(ctx, "invoice generated",
		"invoice_id", inv.ID,
		"contract_id", contract.ID,
		"number", inv.Number,
		"period", inv.Period().String(),
		"total", inv.TotalAmount.String())

	return inv, nil
}

// buildItems assembles the rent line plus one line per active recurring
// service. Services default to quantity 1; metered quantities arrive through
// a future reading feed, never here.
func (s *service) buildItems(contract *billing.Contract) ([]billing.InvoiceItem, error) {
	one := decimal.NewFromInt(1)

	rent, err := billing.NewInvoiceItem("rent", nil, one, contract.RentAmount, 0)
	if err != nil {
		return nil, domainerrors.NewValidationError("INVALID_RENT_ITEM", err.Error())
	}

	items := []billing.InvoiceItem{rent}
	position := 1
	for i := range contract.Services {
		svc := &contract.Services[i]
		if !svc.Active {
			continue
		}

		serviceID := svc.ID
		item, err := billing.NewInvoiceItem(svc.Name, &serviceID, one, svc.UnitPrice(), position)
		if err != nil {
			return nil, domainerrors.NewValidationError("INVALID_SERVICE_ITEM",
				fmt.Sprintf("service %s: %v", svc.Name, err))
		}

		items = append(items, item)
		position++
	}

	return items, nil
}

func (s *service) dueDays(contract *billing.Contract) int {
	if contract.DueDays != nil {
		return *contract.DueDays
	}
	return s.cfg.DefaultDueDays
}

// invoiceNumber formats INV-YYYYMMDD-XXXX. Uniqueness rests on the invoice
// ID; the number is a human-facing reference.
func invoiceNumber(issueDate time.Time) string {
	return fmt.Sprintf("INV-%s-%04d", issueDate.Format("20060102"), rand.Intn(10000))
}
