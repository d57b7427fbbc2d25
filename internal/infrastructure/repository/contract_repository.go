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

// ContractRepository reads lease data owned by the contract directory. The
// billing engine is read-mostly here; the single write it performs is
// advancing the next generation date on schedule-driven contracts.
type ContractRepository struct {
	db *database.ConnectionPool
}

// NewContractRepository creates a new contract repository
func NewContractRepository(db *database.ConnectionPool) *ContractRepository {
	return &ContractRepository{db: db}
}

const contractColumns = `
	c.id, c.status, c.start_date, c.end_date, c.billing_cycle,
	c.rent_amount, c.due_days, c.created_at, c.updated_at`

// FindByID retrieves a contract with its recurring services and schedule
func (r *ContractRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Contract, error) {
	query := `
		SELECT ` + contractColumns + `
		FROM contracts c
		WHERE c.id = $1
	`

	c, err := r.scanContract(r.db.Pool().QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainerrors.ErrContractNotFound
		}
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}

	if err := r.loadServices(ctx, c); err != nil {
		return nil, err
	}
	if err := r.loadSchedule(ctx, c); err != nil {
		return nil, err
	}

	return c, nil
}

// FindActive retrieves all contracts eligible for recurring billing,
// services and schedules included.
func (r *ContractRepository) FindActive(ctx context.Context) ([]*billing.Contract, error) {
	query := `
		SELECT ` + contractColumns + `
		FROM contracts c
		WHERE c.status = $1
		ORDER BY c.created_at
	`

	rows, err := r.db.Pool().Query(ctx, query, billing.ContractStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to query active contracts: %w", err)
	}
	defer rows.Close()

	var contracts []*billing.Contract
	for rows.Next() {
		c, err := r.scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contract: %w", err)
		}
		contracts = append(contracts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, c := range contracts {
		if err := r.loadServices(ctx, c); err != nil {
			return nil, err
		}
		if err := r.loadSchedule(ctx, c); err != nil {
			return nil, err
		}
	}

	return contracts, nil
}

// UpdateNextGenerationDate advances a billing schedule. The date only moves
// forward; a stale write from a concurrent run is a no-op.
func (r *ContractRepository) UpdateNextGenerationDate(ctx context.Context, scheduleID uuid.UUID, next time.Time) error {
	query := `
		UPDATE billing_schedules
		SET next_generation_date = $2
		WHERE id = $1 AND next_generation_date < $2
	`

	_, err := r.db.Pool().Exec(ctx, query, scheduleID, billing.CivilDate(next))
	if err != nil {
		return fmt.Errorf("failed to update next generation date: %w", err)
	}

	return nil
}

func (r *ContractRepository) scanContract(row pgx.Row) (*billing.Contract, error) {
	var c billing.Contract
	var statusStr, cycleStr string

	err := row.Scan(
		&c.ID, &statusStr, &c.StartDate, &c.EndDate, &cycleStr,
		&c.RentAmount, &c.DueDays, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Status = billing.ContractStatus(statusStr)
	c.BillingCycle = billing.BillingCycle(cycleStr)

	return &c, nil
}

func (r *ContractRepository) loadServices(ctx context.Context, c *billing.Contract) error {
	query := `
		SELECT id, contract_id, name, pricing, price, custom_price, active, position
		FROM recurring_services
		WHERE contract_id = $1
		ORDER BY position
	`

	rows, err := r.db.Pool().Query(ctx, query, c.ID)
	if err != nil {
		return fmt.Errorf("failed to query recurring services: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s billing.RecurringService
		var pricingStr string

		err := rows.Scan(
			&s.ID, &s.ContractID, &s.Name, &pricingStr,
			&s.Price, &s.CustomPrice, &s.Active, &s.Position,
		)
		if err != nil {
			return fmt.Errorf("failed to scan recurring service: %w", err)
		}

		s.Pricing = billing.PricingModel(pricingStr)
		c.Services = append(c.Services, s)
	}

	return rows.Err()
}

func (r *ContractRepository) loadSchedule(ctx context.Context, c *billing.Contract) error {
	query := `
		SELECT id, contract_id, frequency, day_of_month, day_of_week, next_generation_date
		FROM billing_schedules
		WHERE contract_id = $1
	`

	var s billing.BillingSchedule
	var freqStr string
	var dayOfWeek int

	err := r.db.Pool().QueryRow(ctx, query, c.ID).Scan(
		&s.ID, &s.ContractID, &freqStr, &s.DayOfMonth, &dayOfWeek, &s.NextGenerationDate,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		// Calendar-aligned contract, no explicit schedule.
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get billing schedule: %w", err)
	}

	s.Frequency = billing.ScheduleFrequency(freqStr)
	s.DayOfWeek = time.Weekday(dayOfWeek)
	c.Schedule = &s

	return nil
}
