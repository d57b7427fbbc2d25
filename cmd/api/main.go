// The api binary runs the billing engine: the HTTP surface plus, when
// enabled, the daily recurring billing scheduler.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/rentwise/lease-billing-backend/internal/api/rest"
	"github.com/rentwise/lease-billing-backend/internal/domain/values"
	"github.com/rentwise/lease-billing-backend/internal/infrastructure/config"
	"github.com/rentwise/lease-billing-backend/internal/infrastructure/database"
	"github.com/rentwise/lease-billing-backend/internal/infrastructure/repository"
	"github.com/rentwise/lease-billing-backend/internal/infrastructure/telemetry"
	"github.com/rentwise/lease-billing-backend/internal/metrics"
	"github.com/rentwise/lease-billing-backend/internal/service/invoicing"
	"github.com/rentwise/lease-billing-backend/internal/service/reconciliation"
	"github.com/rentwise/lease-billing-backend/internal/service/scheduler"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := telemetry.SetupLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("setting up logger: %w", err)
	}
	slog.SetDefault(logger)

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

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	registry := metrics.NewRegistry(promRegistry)

	contractRepo := repository.NewContractRepository(pool)
	invoiceRepo := repository.NewInvoiceRepository(pool)
	paymentRepo := repository.NewPaymentRepository(pool, cfg.Billing.Currency)

	invoicingSvc := invoicing.NewService(contractRepo, invoiceRepo, invoicing.Config{
		Currency:       cfg.Billing.Currency,
		DefaultDueDays: cfg.Billing.DefaultDueDays,
	}, registry, logger)

	reconciliationSvc := reconciliation.NewService(paymentRepo, registry, logger)

	schedulerSvc := scheduler.NewService(contractRepo, invoicingSvc, scheduler.Config{
		Enabled:     cfg.Billing.Scheduler.Enabled,
		RunHour:     cfg.Billing.Scheduler.RunHour,
		Concurrency: cfg.Billing.Scheduler.Concurrency,
	}, registry, logger)

	handler := rest.NewHandler(invoicingSvc, reconciliationSvc, schedulerSvc,
		invoiceRepo, cfg.Billing.Currency, logger,
		func(r *http.Request) error {
			return pool.Pool().Ping(r.Context())
		})

	server := rest.NewServer(rest.ServerConfig{
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, handler, registry, promRegistry, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	if cfg.Billing.Scheduler.Enabled {
		go func() {
			if err := schedulerSvc.Run(ctx); err != nil && err != context.Canceled {
				logger.Error("scheduler stopped", "error", err)
			}
		}()
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	return server.Shutdown(context.Background())
}
