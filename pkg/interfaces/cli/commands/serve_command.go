package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/vsinha/forgetrace/pkg/application/services/engine"
	"github.com/vsinha/forgetrace/pkg/domain/entities"
	"github.com/vsinha/forgetrace/pkg/infrastructure/config"
	"github.com/vsinha/forgetrace/pkg/infrastructure/events"
	"github.com/vsinha/forgetrace/pkg/infrastructure/logger"
	"github.com/vsinha/forgetrace/pkg/interfaces/rest"
)

const shutdownTimeout = 10 * time.Second

// ServeCommand runs the REST API until its context is canceled
type ServeCommand struct {
	config Config
	app    *config.Config
	log    *logger.Logger
}

// NewServeCommand creates a serve command
func NewServeCommand(cfg Config, app *config.Config, log *logger.Logger) *ServeCommand {
	return &ServeCommand{config: cfg, app: app, log: log}
}

// Execute serves HTTP on the configured address
func (c *ServeCommand) Execute(ctx context.Context) error {
	store, release, err := openStore(ctx, c.app, c.log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer release()

	eventStore := events.NewInMemoryEventStoreWithLogger(c.log)
	defer eventStore.Drain()
	if err := events.NewAuditLog(c.log).Subscribe(eventStore); err != nil {
		return fmt.Errorf("subscribe audit log: %w", err)
	}
	e := engine.NewEngine(store, eventStore, c.log, c.app)

	if c.config.ShopFile != "" || c.config.HeatsFile != "" || c.config.ResourcesFile != "" {
		resources, heats, err := seedShop(ctx, e, entities.TenantID(c.config.Tenant), c.config)
		if err != nil {
			return err
		}
		c.log.Info("shop seeded", "tenant_id", c.config.Tenant, "resources", len(resources), "heats", len(heats))
	}

	routerCfg := rest.RouterConfig{CORSOrigins: c.app.GetCORSOrigins()}
	if c.app.GetRateLimitRPS() > 0 {
		routerCfg.Limiter = rest.NewIPRateLimiter(rate.Limit(c.app.GetRateLimitRPS()), c.app.GetRateLimitBurst())
	}
	srv := &http.Server{
		Addr:              c.app.GetHTTPAddr(),
		Handler:           rest.NewRouter(rest.NewHandler(e, rest.NewValidator()), c.log, routerCfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		c.log.Info("server listening", "addr", srv.Addr, "store", c.app.StoreDriver)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		c.log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-srvErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
