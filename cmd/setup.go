package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"

	"github.com/desertthunder/tracksync/internal/shared"
	"github.com/urfave/cli/v3"
)

// Setup creates the config file when missing, then initializes the database and runs migrations.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	if _, err := os.Stat(r.configPath); err != nil {
		r.logger.Info("config file not found, creating from template", "path", r.configPath)
		if err := shared.CreateConfigFile(r.configPath); err != nil {
			return err
		}
		config, err := shared.LoadConfigWithEnv(r.configPath)
		if err != nil {
			return err
		}
		r.config = config
		r.writePlain("✓ Config written to %s\n", r.configPath)
	}

	if err := r.config.Validate(); err != nil {
		return err
	}

	db, err := r.openForMaintenance()
	if err != nil {
		return err
	}
	defer db.Close()

	r.logger.Info("running database migrations", "path", r.config.Database.Path)
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	r.writePlain("✓ Database ready at %s\n", r.config.Database.Path)
	if !r.config.Credentials.Spotify.HasToken() {
		r.writePlain("Next: set your Spotify client credentials in %s and run 'tracksync auth'\n", r.configPath)
	}
	return nil
}

// DBStatus lists known migrations and whether they are applied.
func (r *Runner) DBStatus(ctx context.Context, cmd *cli.Command) error {
	db, err := r.openForMaintenance()
	if err != nil {
		return err
	}
	defer db.Close()

	states, err := shared.MigrationStatus(db)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(states))
	for _, s := range states {
		applied := "pending"
		if s.Applied {
			applied = "applied"
		}
		rows = append(rows, []string{strconv.Itoa(s.Version), s.Name, applied})
	}
	r.writeTable([]string{"Version", "Name", "State"}, rows)
	return nil
}

// DBMigrate applies pending migrations.
func (r *Runner) DBMigrate(ctx context.Context, cmd *cli.Command) error {
	db, err := r.openForMaintenance()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return r.writePlain("✓ Migrations applied\n")
}

// DBRollback reverts the most recent migration.
func (r *Runner) DBRollback(ctx context.Context, cmd *cli.Command) error {
	db, err := r.openForMaintenance()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := shared.RollbackMigration(db); err != nil {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}
	return r.writePlain("✓ Rolled back the latest migration\n")
}

// openForMaintenance opens the database without migrating it, unlike [Runner.database].
func (r *Runner) openForMaintenance() (*sql.DB, error) {
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)
	return db, nil
}
