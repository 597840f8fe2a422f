package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	appconfig "github.com/wolfman30/salon-sms-booking/internal/config"
	appmigrations "github.com/wolfman30/salon-sms-booking/migrations"
	"github.com/wolfman30/salon-sms-booking/pkg/logging"
)

// Usage: migrate [up | down | version | force <version>]
func main() {
	if err := appconfig.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if err := run(cfg.DatabaseURL, os.Args[1:], logger); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
}

func run(databaseURL string, args []string, logger *logging.Logger) error {
	command, err := parseCommand(args)
	if err != nil {
		return err
	}
	databaseURL = strings.TrimSpace(databaseURL)
	if databaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("db driver: %w", err)
	}
	srcDriver, err := iofs.New(appmigrations.FS, ".")
	if err != nil {
		return fmt.Errorf("source driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	switch command.name {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate up: %w", err)
		}
	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate down: %w", err)
		}
	case "force":
		if err := m.Force(command.version); err != nil {
			return fmt.Errorf("force version: %w", err)
		}
	case "version":
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		logger.Info("migrations complete", "command", command.name, "version", "none")
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		logger.Info("migrations complete", "command", command.name, "version", version, "dirty", dirty)
	}
	return nil
}

type migrateCommand struct {
	name    string
	version int
}

func parseCommand(args []string) (migrateCommand, error) {
	if len(args) == 0 {
		return migrateCommand{name: "up"}, nil
	}
	switch name := strings.ToLower(args[0]); name {
	case "up", "down", "version":
		return migrateCommand{name: name}, nil
	case "force":
		if len(args) < 2 {
			return migrateCommand{}, errors.New("force requires a version")
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return migrateCommand{}, fmt.Errorf("invalid version: %w", err)
		}
		return migrateCommand{name: name, version: version}, nil
	default:
		return migrateCommand{}, fmt.Errorf("unknown command %q (want up, down, version, or force N)", args[0])
	}
}
