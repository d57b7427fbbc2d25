// billingctl is the operational CLI for the billing engine: trigger batch
// runs, generate single invoices and recompute invoice statuses without
// going through the HTTP surface.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rentwise/lease-billing-backend/internal/domain/values"
	"github.com/rentwise/lease-billing-backend/internal/infrastructure/config"
	"github.com/rentwise/lease-billing-backend/internal/infrastructure/database"
	"github.com/rentwise/lease-billing-backend/internal/infrastructure/repository"
	"github.com/rentwise/lease-billing-backend/internal/infrastructure/telemetry"
	"github.com/rentwise/lease-billing-backend/internal/service/invoicing"
	"github.com/rentwise/lease-billing-backend/internal/service/reconciliation"
	"github.com/rentwise/lease-billing-backend/internal/service/scheduler"
)

const dateLayout = "2006-01-02"

type app struct {
	cfg            *config.Config
	pool           *database.ConnectionPool
	invoicing      invoicing.Service
	reconciliation reconciliation.Service
	scheduler      *scheduler.Service
}

func main() {
	// Local development keeps credentials in a .env file; absence is fine.
	_ = godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "billingctl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "billingctl",
		Short:         "Operational CLI for the lease billing engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	root.AddCommand(
		newRunCommand(&configPath),
		newGenerateCommand(&configPath),
		newRecomputeCommand(&configPath),
	)
	return root
}

func newRunCommand(configPath *string) *cobra.Command {
	var runDate string

	cmd := &cobra.Command{
		Use:   "run-for-date",
		Short: "Run the recurring billing batch for a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			date := time.Now().UTC()
			if runDate != "" {
				var err error
				if date, err = time.Parse(dateLayout, runDate); err != nil {
					return fmt.Errorf("invalid --date: %w", err)
				}
			}

			return withApp(cmd.Context(), *configPath, func(ctx context.Context, a *app) error {
				result, err := a.scheduler.RunForDate(ctx, date)
				if err != nil {
					return err
				}
				return printJSON(result)
			})
		},
	}
	cmd.Flags().StringVar(&runDate, "date", "", "run date (YYYY-MM-DD, default today)")
	return cmd
}

func newGenerateCommand(configPath *string) *cobra.Command {
	var contractID, forDate string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate the invoice due for one contract on a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(contractID)
			if err != nil {
				return fmt.Errorf("invalid --contract: %w", err)
			}

			date := time.Now().UTC()
			if forDate != "" {
				if date, err = time.Parse(dateLayout, forDate); err != nil {
					return fmt.Errorf("invalid --date: %w", err)
				}
			}

			return withApp(cmd.Context(), *configPath, func(ctx context.Context, a *app) error {
				inv, err := a.invoicing.GenerateForDate(ctx, id, date)
				if err != nil {
					return err
				}
				return printJSON(inv)
			})
		},
	}
	cmd.Flags().StringVar(&contractID, "contract", "", "contract UUID (required)")
	cmd.Flags().StringVar(&forDate, "date", "", "generation date (YYYY-MM-DD, default today)")
	_ = cmd.MarkFlagRequired("contract")
	return cmd
}

func newRecomputeCommand(configPath *string) *cobra.Command {
	var invoiceID string

	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Recompute one invoice's status from its payment ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(invoiceID)
			if err != nil {
				return fmt.Errorf("invalid --invoice: %w", err)
			}

			return withApp(cmd.Context(), *configPath, func(ctx context.Context, a *app) error {
				status, err := a.reconciliation.RecomputeStatus(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(map[string]string{"status": string(status)})
			})
		},
	}
	cmd.Flags().StringVar(&invoiceID, "invoice", "", "invoice UUID (required)")
	_ = cmd.MarkFlagRequired("invoice")
	return cmd
}

// withApp wires the full service stack, runs fn, then tears down.
func withApp(ctx context.Context, configPath string, fn func(ctx context.Context, a *app) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := telemetry.SetupLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("setting up logger: %w", err)
	}

	if err := values.SetDefaultCurrency(cfg.Billing.Currency); err != nil {
		return fmt.Errorf("configuring currency: %w", err)
	}

	zapLogger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("setting up database logger: %w", err)
	}
	defer func() { _ = zapLogger.Sync() }()

	pool, err := database.NewConnectionPool(&cfg.Database, zapLogger)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	contractRepo := repository.NewContractRepository(pool)
	invoiceRepo := repository.NewInvoiceRepository(pool)
	paymentRepo := repository.NewPaymentRepository(pool, cfg.Billing.Currency)

	invoicingSvc := invoicing.NewService(contractRepo, invoiceRepo, invoicing.Config{
		Currency:       cfg.Billing.Currency,
		DefaultDueDays: cfg.Billing.DefaultDueDays,
	}, nil, logger)

	a := &app{
		cfg:            cfg,
		pool:           pool,
		invoicing:      invoicingSvc,
		reconciliation: reconciliation.NewService(paymentRepo, nil, logger),
		scheduler: scheduler.NewService(contractRepo, invoicingSvc, scheduler.Config{
			Enabled:     true,
			Concurrency: cfg.Billing.Scheduler.Concurrency,
		}, nil, logger),
	}

	return fn(ctx, a)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
