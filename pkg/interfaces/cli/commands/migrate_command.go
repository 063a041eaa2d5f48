package commands

import (
	"context"
	"fmt"

	"github.com/vsinha/forgetrace/pkg/infrastructure/config"
	"github.com/vsinha/forgetrace/pkg/infrastructure/logger"
	"github.com/vsinha/forgetrace/pkg/infrastructure/repositories/postgres"
)

// MigrateCommand applies the database schema
type MigrateCommand struct {
	app *config.Config
	log *logger.Logger
}

// NewMigrateCommand creates a migrate command
func NewMigrateCommand(app *config.Config, log *logger.Logger) *MigrateCommand {
	return &MigrateCommand{app: app, log: log}
}

// Execute runs the embedded migrations against DATABASE_URL
func (c *MigrateCommand) Execute(ctx context.Context) error {
	if c.app.StoreDriver != config.DriverPostgres {
		return fmt.Errorf("migrate needs STORE_DRIVER=%s, got %s", config.DriverPostgres, c.app.StoreDriver)
	}
	db, err := postgres.Connect(ctx, c.app)
	if err != nil {
		return err
	}
	defer closeDB(db, c.log)

	if err := postgres.Migrate(ctx, db); err != nil {
		c.log.DatabaseError("migrate", err)
		return fmt.Errorf("run migrations: %w", err)
	}
	c.log.Info("database migrations complete")
	return nil
}
