// Package engine is the service façade over the lot tracking rules: stage batch
// lifecycle, piece conservation, rework and traceability. Every operation is one
// store transaction, re-run on optimistic-lock conflicts.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vsinha/forgetrace/pkg/application/dto"
	"github.com/vsinha/forgetrace/pkg/application/services/ledger"
	"github.com/vsinha/forgetrace/pkg/application/services/shared"
	"github.com/vsinha/forgetrace/pkg/domain/entities"
	"github.com/vsinha/forgetrace/pkg/domain/repositories"
	"github.com/vsinha/forgetrace/pkg/domain/services"
	"github.com/vsinha/forgetrace/pkg/infrastructure/config"
	"github.com/vsinha/forgetrace/pkg/infrastructure/events"
	"github.com/vsinha/forgetrace/pkg/infrastructure/logger"
)

// Engine runs stage batches against heats and allocations
type Engine struct {
	uow    *shared.UnitOfWork
	ledger *ledger.LedgerService
	walker *services.TraceabilityWalker
	events events.EventStore
	log    *logger.Logger

	now        func() time.Time
	workflowID func() string
}

// NewEngine creates an engine over store. eventStore may be nil; cfg may be nil
// for the default retry limit.
func NewEngine(store repositories.Store, eventStore events.EventStore, log *logger.Logger, cfg config.EngineConfig) *Engine {
	if log == nil {
		log = logger.Discard()
	}
	retries := shared.DefaultMaxConflictRetries
	if cfg != nil {
		retries = cfg.GetMaxConflictRetries()
	}
	uow := shared.NewUnitOfWork(store, log, retries)
	return &Engine{
		uow:        uow,
		ledger:     ledger.NewLedgerService(uow, eventStore, log),
		walker:     services.NewTraceabilityWalker(),
		events:     eventStore,
		log:        log,
		now:        time.Now,
		workflowID: uuid.NewString,
	}
}

// WithClock replaces the wall clock used for default timestamps
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	e.ledger.WithClock(now)
	return e
}

// Ledger exposes the heat ledger the engine books against
func (e *Engine) Ledger() *ledger.LedgerService {
	return e.ledger
}

// ReceiveHeat records a new heat
func (e *Engine) ReceiveHeat(ctx context.Context, tenant entities.TenantID, cmd dto.ReceiveHeatCommand) (*entities.Heat, error) {
	return e.ledger.ReceiveHeat(ctx, tenant, cmd)
}

// ReturnHeat gives material back to a heat as a compensating correction
func (e *Engine) ReturnHeat(ctx context.Context, tenant entities.TenantID, cmd dto.ReturnHeatCommand) (*entities.Heat, error) {
	return e.ledger.ReturnHeat(ctx, tenant, cmd)
}

// GetHeat returns a heat of tenant
func (e *Engine) GetHeat(ctx context.Context, tenant entities.TenantID, id entities.HeatID) (*entities.Heat, error) {
	return e.ledger.GetHeat(ctx, tenant, id)
}

// RegisterResource adds an idle resource
func (e *Engine) RegisterResource(ctx context.Context, tenant entities.TenantID, cmd dto.RegisterResourceCommand) (*entities.Resource, error) {
	resource, err := entities.NewResource(tenant, cmd.Name, cmd.Kind)
	if err != nil {
		return nil, shared.Translate("RegisterResource", err)
	}
	err = e.uow.Run(ctx, "RegisterResource", func(ctx context.Context, tx repositories.Tx) error {
		return tx.Resources().Create(ctx, resource)
	})
	if err != nil {
		return nil, err
	}
	e.log.WithContext(ctx).Info("resource_registered",
		"resource_id", int64(resource.ID),
		"kind", resource.Kind.String(),
		"name", resource.Name,
	)
	return resource, nil
}

// GetResource returns a resource of tenant
func (e *Engine) GetResource(ctx context.Context, tenant entities.TenantID, id entities.ResourceID) (*entities.Resource, error) {
	var resource *entities.Resource
	err := e.uow.Run(ctx, "GetResource", func(ctx context.Context, tx repositories.Tx) error {
		var err error
		resource, err = tx.Resources().Get(ctx, tenant, id)
		return shared.NotFound(err, "resource", int64(id))
	})
	return resource, err
}

// GetStageBatch returns a batch of tenant
func (e *Engine) GetStageBatch(ctx context.Context, tenant entities.TenantID, id entities.BatchID) (*entities.StageBatch, error) {
	var batch *entities.StageBatch
	err := e.uow.Run(ctx, "GetStageBatch", func(ctx context.Context, tx repositories.Tx) error {
		var err error
		batch, err = tx.Batches().Get(ctx, tenant, id)
		return shared.NotFound(err, "stage batch", int64(id))
	})
	return batch, err
}

// GetAllocation returns an allocation of tenant
func (e *Engine) GetAllocation(ctx context.Context, tenant entities.TenantID, id entities.AllocationID) (*entities.ProcessedItemAllocation, error) {
	var allocation *entities.ProcessedItemAllocation
	err := e.uow.Run(ctx, "GetAllocation", func(ctx context.Context, tx repositories.Tx) error {
		var err error
		allocation, err = tx.Allocations().Get(ctx, tenant, id)
		return shared.NotFound(err, "allocation", int64(id))
	})
	return allocation, err
}

func (e *Engine) publish(evts ...events.Event) {
	if e.events == nil {
		return
	}
	for _, event := range evts {
		if err := e.events.AppendEvent(event.StreamID(), event); err != nil {
			e.log.Error("event_append_failed", "event_type", event.Type(), "error", err.Error())
		}
	}
}
