package engine

import (
	"context"
	"fmt"

	"github.com/vsinha/forgetrace/pkg/application/services/shared"
	"github.com/vsinha/forgetrace/pkg/domain/apperr"
	"github.com/vsinha/forgetrace/pkg/domain/entities"
	"github.com/vsinha/forgetrace/pkg/domain/repositories"
	"github.com/vsinha/forgetrace/pkg/domain/services"
	"github.com/vsinha/forgetrace/pkg/infrastructure/events"
)

// ConsumeAllocation draws pieces from an allocation for a downstream consumer
// outside batch creation. The decrement is version-checked, so two racing
// draws can never overdraw it.
func (e *Engine) ConsumeAllocation(
	ctx context.Context,
	tenant entities.TenantID,
	allocationID entities.AllocationID,
	pieces entities.Pieces,
) (*entities.ProcessedItemAllocation, error) {
	var allocation *entities.ProcessedItemAllocation
	err := e.uow.Run(ctx, "ConsumeAllocation", func(ctx context.Context, tx repositories.Tx) error {
		var err error
		allocation, err = tx.Allocations().Get(ctx, tenant, allocationID)
		if err != nil {
			return shared.NotFound(err, "allocation", int64(allocationID))
		}
		if err := allocation.ConsumeAvailable(pieces); err != nil {
			return err
		}
		return tx.Allocations().Update(ctx, allocation)
	})
	if err != nil {
		return nil, err
	}

	e.log.WithContext(ctx).Info("allocation_consumed",
		"allocation_id", int64(allocation.ID),
		"pieces", int64(pieces),
		"available", int64(allocation.AvailablePiecesCount),
	)
	e.publish(events.NewAllocationConsumedEvent(allocation, pieces, false, e.now()))
	return allocation, nil
}

// ListAvailableAllocations returns allocations of stage that still have pieces
// for the next stage, oldest first
func (e *Engine) ListAvailableAllocations(ctx context.Context, tenant entities.TenantID, stage entities.StageKind) ([]*entities.ProcessedItemAllocation, error) {
	if !stage.Valid() {
		return nil, apperr.Validation(fmt.Sprintf("invalid stage kind %d", stage)).WithOp("ListAvailableAllocations")
	}
	var allocations []*entities.ProcessedItemAllocation
	err := e.uow.Run(ctx, "ListAvailableAllocations", func(ctx context.Context, tx repositories.Tx) error {
		var err error
		allocations, err = tx.Allocations().ListAvailable(ctx, tenant, stage)
		return err
	})
	return allocations, err
}

// GetTraceabilityChain walks from an allocation back to the forge run and the
// heats it consumed
func (e *Engine) GetTraceabilityChain(ctx context.Context, tenant entities.TenantID, allocationID entities.AllocationID) (*services.TraceabilityChain, error) {
	var chain *services.TraceabilityChain
	err := e.uow.Run(ctx, "GetTraceabilityChain", func(ctx context.Context, tx repositories.Tx) error {
		var err error
		chain, err = e.walker.Walk(&txChainSource{ctx: ctx, tx: tx, tenant: tenant}, allocationID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return chain, nil
}

// txChainSource resolves chain lookups inside one transaction
type txChainSource struct {
	ctx    context.Context
	tx     repositories.Tx
	tenant entities.TenantID
}

func (s *txChainSource) Allocation(id entities.AllocationID) (*entities.ProcessedItemAllocation, error) {
	allocation, err := s.tx.Allocations().Get(s.ctx, s.tenant, id)
	if err != nil {
		return nil, shared.NotFound(err, "allocation", int64(id))
	}
	return allocation, nil
}

func (s *txChainSource) Batch(id entities.BatchID) (*entities.StageBatch, error) {
	batch, err := s.tx.Batches().Get(s.ctx, s.tenant, id)
	if err != nil {
		return nil, shared.NotFound(err, "stage batch", int64(id))
	}
	return batch, nil
}
