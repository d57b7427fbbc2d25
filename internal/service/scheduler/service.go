// Package scheduler drives the recurring billing batch: once per day it walks
// every active contract and asks the generator for the invoice due on that
// date. One bad contract never aborts the batch.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rentwise/lease-billing-backend/internal/domain/billing"
	domainerrors "github.com/rentwise/lease-billing-backend/internal/domain/errors"
	"github.com/rentwise/lease-billing-backend/internal/metrics"
	"github.com/rentwise/lease-billing-backend/internal/service/invoicing"
)

// ContractLister enumerates the contracts eligible for the daily batch.
type ContractLister interface {
	FindActive(ctx context.Context) ([]*billing.Contract, error)
}

// Failure records one contract that errored during a batch.
type Failure struct {
	ContractID uuid.UUID `json:"contract_id"`
	Error      string    `json:"error"`
}

// BatchResult summarizes one batch run. Skipped counts contracts with nothing
// due plus periods already billed; Failures carries per-contract errors.
type BatchResult struct {
	RunDate   time.Time     `json:"run_date"`
	Contracts int           `json:"contracts"`
	Generated int           `json:"generated"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Failures  []Failure     `json:"failures,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Config controls the daily batch loop.
type Config struct {
	Enabled     bool
	RunHour     int
	Concurrency int
}

// Service runs the recurring billing batch.
type Service struct {
	contracts ContractLister
	generator invoicing.Service
	cfg       Config
	metrics   *metrics.Registry
	logger    *slog.Logger
	clock     func() time.Time
}

// Option configures the service
type Option func(*Service)

// WithClock overrides the time source, used by tests to pin "today"
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// NewService creates a new batch scheduler
func NewService(contracts ContractLister, generator invoicing.Service, cfg Config, registry *metrics.Registry, logger *slog.Logger, opts ...Option) *Service {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	s := &Service{
		contracts: contracts,
		generator: generator,
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

// RunForDate executes one batch for the given date. Every active contract is
// attempted; errors are collected per contract and never abort the run.
func (s *Service) RunForDate(ctx context.Context, runDate time.Time) (*BatchResult, error) {
	started := s.clock()
	runDate = billing.CivilDate(runDate)

	contracts, err := s.contracts.FindActive(ctx)
	if err != nil {
		return nil, domainerrors.Wrap(err, "failed to list active contracts")
	}

	result := &BatchResult{RunDate: runDate, Contracts: len(contracts)}

	type outcome struct {
		contractID uuid.UUID
		err        error
	}

	jobs := make(chan *billing.Contract)
	outcomes := make(chan outcome)

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for contract := range jobs {
				_, genErr := s.generator.GenerateForDate(ctx, contract.ID, runDate)
				outcomes <- outcome{contractID: contract.ID, err: genErr}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, contract := range contracts {
			select {
			case jobs <- contract:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	for o := range outcomes {
		switch {
		case o.err == nil:
			result.Generated++
		case domainerrors.IsConflict(o.err):
			result.Skipped++
			s.logger.DebugContext(ctx, "period already billed",
				"contract_id", o.contractID, "run_date", runDate.Format("2006-01-02"))
		case invoicing.IsNothingDue(o.err):
			result.Skipped++
		default:
			result.Failed++
			result.Failures = append(result.Failures, Failure{
				ContractID: o.contractID,
				Error:      o.err.Error(),
			})
			if s.metrics != nil {
				s.metrics.GenerationFailures.Inc()
			}
			s.logger.ErrorContext(ctx, "invoice generation failed",
				"contract_id", o.contractID,
				"run_date", runDate.Format("2006-01-02"),
				"error", o.err)
		}
	}

	result.Duration = s.clock().Sub(started)
	if s.metrics != nil {
		s.metrics.BatchRuns.Inc()
		s.metrics.BatchDuration.Observe(result.Duration.Seconds())
	}

	s.logger.InfoContext(ctx, "billing batch finished",
		"run_date", runDate.Format("2006-01-02"),
		"contracts", result.Contracts,
		"generated", result.Generated,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"duration", result.Duration)

	return result, nil
}

// Run executes the daily loop until ctx is cancelled: one batch at startup if
// today's run hour already passed, then one per day at the configured hour.
func (s *Service) Run(ctx context.Context) error {
	if !s.cfg.Enabled {
		s.logger.InfoContext(ctx, "billing scheduler disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	for {
		next := s.nextRun()
		s.logger.InfoContext(ctx, "billing scheduler waiting", "next_run", next)

		timer := time.NewTimer(next.Sub(s.clock()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if _, err := s.RunForDate(ctx, s.clock()); err != nil {
			s.logger.ErrorContext(ctx, "billing batch failed", "error", err)
		}
	}
}

func (s *Service) nextRun() time.Time {
	now := s.clock()
	next := time.Date(now.Year(), now.Month(), now.Day(), s.cfg.RunHour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
