package billing

import (
	"time"

	"github.com/google/uuid"

	"github.com/rentwise/lease-billing-backend/internal/domain/values"
)

// Contract is the read model of a lease as seen by the billing engine. The
// contract directory owns the full record; this engine only consumes the
// attributes that drive invoicing and writes back the next generation date
// for schedule-driven contracts.
type Contract struct {
	ID           uuid.UUID      `json:"id"`
	Status       ContractStatus `json:"status"`
	StartDate    time.Time      `json:"start_date"`
	EndDate      *time.Time     `json:"end_date,omitempty"`
	BillingCycle BillingCycle   `json:"billing_cycle"`
	RentAmount   values.Money   `json:"rent_amount"`

	// DueDays overrides the global days-until-due default when set.
	DueDays *int `json:"due_days,omitempty"`

	Services []RecurringService `json:"services,omitempty"`

	// Schedule is set for contracts billed on a tenant-defined recurrence
	// instead of the calendar-aligned billing cycle.
	Schedule *BillingSchedule `json:"schedule,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ContractStatus string

const (
	ContractStatusDraft      ContractStatus = "draft"
	ContractStatusActive     ContractStatus = "active"
	ContractStatusTerminated ContractStatus = "terminated"
	ContractStatusExpired    ContractStatus = "expired"
)

// IsActive reports whether the contract may be billed at all.
func (c *Contract) IsActive() bool {
	return c.Status == ContractStatusActive
}

// InForceOn reports whether date falls inside the contract's lifetime.
func (c *Contract) InForceOn(date time.Time) bool {
	d := CivilDate(date)
	if d.Before(CivilDate(c.StartDate)) {
		return false
	}
	if c.EndDate != nil && d.After(CivilDate(*c.EndDate)) {
		return false
	}
	return true
}

// Covers reports whether the billing period intersects the contract's
// lifetime. Periods are billed whole, so intersection is enough: a lease
// ending mid-month still owes the full month under its cadence rule.
func (c *Contract) Covers(p Period) bool {
	if p.End.Before(CivilDate(c.StartDate)) {
		return false
	}
	if c.EndDate != nil && p.Start.After(CivilDate(*c.EndDate)) {
		return false
	}
	return true
}

// RecurringService is a contracted add-on billed alongside rent
// (water, internet, parking and the like).
type RecurringService struct {
	ID          uuid.UUID     `json:"id"`
	ContractID  uuid.UUID     `json:"contract_id"`
	Name        string        `json:"name"`
	Pricing     PricingModel  `json:"pricing"`
	Price       values.Money  `json:"price"`
	CustomPrice *values.Money `json:"custom_price,omitempty"`
	Active      bool          `json:"active"`
	Position    int           `json:"position"`
}

type PricingModel string

const (
	PricingFixed   PricingModel = "fixed"
	PricingPerUnit PricingModel = "per_unit"
)

// UnitPrice returns the contract-specific price when one is set, falling
// back to the catalog default.
func (s *RecurringService) UnitPrice() values.Money {
	if s.CustomPrice != nil {
		return *s.CustomPrice
	}
	return s.Price
}

// BillingSchedule drives contracts on a tenant-defined recurrence. Unlike the
// calendar-aligned cycles, the next generation date is stored explicitly and
// advances strictly forward after each successful generation.
type BillingSchedule struct {
	ID                 uuid.UUID         `json:"id"`
	ContractID         uuid.UUID         `json:"contract_id"`
	Frequency          ScheduleFrequency `json:"frequency"`
	DayOfMonth         int               `json:"day_of_month,omitempty"`
	DayOfWeek          time.Weekday      `json:"day_of_week,omitempty"`
	NextGenerationDate time.Time         `json:"next_generation_date"`
}

type ScheduleFrequency string

const (
	FrequencyWeekly    ScheduleFrequency = "weekly"
	FrequencyMonthly   ScheduleFrequency = "monthly"
	FrequencyQuarterly ScheduleFrequency = "quarterly"
	FrequencyYearly    ScheduleFrequency = "yearly"
)
