package commands

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/vsinha/forgetrace/pkg/application/dto"
	"github.com/vsinha/forgetrace/pkg/application/services/engine"
	"github.com/vsinha/forgetrace/pkg/domain/entities"
	"github.com/vsinha/forgetrace/pkg/domain/repositories"
	"github.com/vsinha/forgetrace/pkg/infrastructure/config"
	"github.com/vsinha/forgetrace/pkg/infrastructure/logger"
	"github.com/vsinha/forgetrace/pkg/infrastructure/repositories/csv"
	"github.com/vsinha/forgetrace/pkg/infrastructure/repositories/memory"
	"github.com/vsinha/forgetrace/pkg/infrastructure/repositories/postgres"
	"github.com/vsinha/forgetrace/pkg/infrastructure/repositories/shopfile"
)

// Config holds the command line options shared by every command
type Config struct {
	Tenant        int64
	ShopFile      string
	HeatsFile     string
	ResourcesFile string
	OutputDir     string
	Format        string
	Pieces        int64
	Quantity      string
	Rejects       int64
	Rework        int64
	Verbose       bool
	Help          bool

	// Out receives command output; os.Stdout when nil
	Out io.Writer
}

func (c Config) out() io.Writer {
	if c.Out == nil {
		return os.Stdout
	}
	return c.Out
}

// openStore builds the store cfg selects. The returned func releases it.
func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (repositories.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		db, err := postgres.Connect(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}
		return postgres.NewStore(db, log), func() { closeDB(db, log) }, nil
	default:
		return memory.NewStore(), func() {}, nil
	}
}

func closeDB(db *sql.DB, log *logger.Logger) {
	if err := db.Close(); err != nil {
		log.DatabaseError("close", err)
	}
}

// seedShop registers the resources and receives the heats listed in the
// configured shop file and CSV files, in that order. Missing file names are skipped.
func seedShop(ctx context.Context, e *engine.Engine, tenant entities.TenantID, cfg Config) ([]*entities.Resource, []*entities.Heat, error) {
	var (
		resourceCmds []dto.RegisterResourceCommand
		heatCmds     []dto.ReceiveHeatCommand
	)

	if cfg.ShopFile != "" {
		shop, err := shopfile.Load(cfg.ShopFile)
		if err != nil {
			return nil, nil, fmt.Errorf("error loading shop: %w", err)
		}
		resourceCmds = append(resourceCmds, shop.Resources...)
		heatCmds = append(heatCmds, shop.Heats...)
	}

	loader := csv.NewLoader()
	if cfg.ResourcesFile != "" {
		cmds, err := loader.LoadResources(cfg.ResourcesFile)
		if err != nil {
			return nil, nil, fmt.Errorf("error loading resources: %w", err)
		}
		resourceCmds = append(resourceCmds, cmds...)
	}
	if cfg.HeatsFile != "" {
		cmds, err := loader.LoadHeats(cfg.HeatsFile)
		if err != nil {
			return nil, nil, fmt.Errorf("error loading heats: %w", err)
		}
		heatCmds = append(heatCmds, cmds...)
	}

	resources := make([]*entities.Resource, 0, len(resourceCmds))
	for _, cmd := range resourceCmds {
		resource, err := e.RegisterResource(ctx, tenant, cmd)
		if err != nil {
			return nil, nil, fmt.Errorf("register resource %s: %w", cmd.Name, err)
		}
		resources = append(resources, resource)
	}

	heats := make([]*entities.Heat, 0, len(heatCmds))
	for _, cmd := range heatCmds {
		heat, err := e.ReceiveHeat(ctx, tenant, cmd)
		if err != nil {
			return nil, nil, fmt.Errorf("receive heat %s: %w", cmd.Number, err)
		}
		heats = append(heats, heat)
	}
	return resources, heats, nil
}
