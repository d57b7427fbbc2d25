// The migrate binary applies schema migrations from the migrations directory.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/rentwise/lease-billing-backend/internal/infrastructure/config"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config file")
		sourceURL  = flag.String("source", "file://migrations", "migration source URL")
		down       = flag.Bool("down", false, "roll back one migration instead of migrating up")
		steps      = flag.Int("steps", 0, "apply exactly this many migrations (signed)")
	)
	flag.Parse()

	if err := run(*configPath, *sourceURL, *down, *steps); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, sourceURL string, down bool, steps int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	m, err := migrate.New(sourceURL, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("opening migrator: %w", err)
	}
	defer m.Close()

	switch {
	case steps != 0:
		err = m.Steps(steps)
	case down:
		err = m.Steps(-1)
	default:
		err = m.Up()
	}

	if errors.Is(err, migrate.ErrNoChange) {
		fmt.Println("no pending migrations")
		return nil
	}
	if err != nil {
		return err
	}

	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	fmt.Printf("migrated to version %d (dirty=%v)\n", version, dirty)
	return nil
}
