package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/vsinha/forgetrace/pkg/application/dto"
	"github.com/vsinha/forgetrace/pkg/application/services/ledger"
	"github.com/vsinha/forgetrace/pkg/application/services/shared"
	"github.com/vsinha/forgetrace/pkg/domain/apperr"
	"github.com/vsinha/forgetrace/pkg/domain/entities"
	"github.com/vsinha/forgetrace/pkg/domain/repositories"
	"github.com/vsinha/forgetrace/pkg/infrastructure/events"
)

// applyRequest is what fresh and rework batch creation have in common once
// their piece source has been drawn
type applyRequest struct {
	tenant         entities.TenantID
	stage          entities.StageKind
	batchType      entities.BatchType
	number         string
	resourceID     entities.ResourceID
	itemID         entities.ItemID
	pieces         entities.Pieces
	upstream       entities.AllocationID
	workflowID     string
	itemWorkflowID string
	heats          []dto.HeatAllocation
	payload        entities.StagePayload
	appliedAt      time.Time
}

// CreateStageBatch applies a fresh batch to a resource. A forge batch draws on
// heats; every later stage draws its pieces from the upstream allocation of the
// preceding stage.
func (e *Engine) CreateStageBatch(ctx context.Context, tenant entities.TenantID, cmd dto.CreateStageBatchCommand) (*entities.StageBatch, error) {
	const op = "CreateStageBatch"
	if !cmd.Stage.Valid() {
		return nil, apperr.Validation(fmt.Sprintf("invalid stage kind %d", cmd.Stage)).WithOp(op)
	}
	if cmd.Stage.IsFirst() {
		if cmd.UpstreamAllocationID != 0 {
			return nil, apperr.Validation("forge batches draw on heats, not on an upstream allocation").WithOp(op)
		}
		if len(cmd.HeatAllocations) == 0 {
			return nil, apperr.Validation("forge batches need at least one heat allocation").WithOp(op)
		}
	} else if cmd.UpstreamAllocationID == 0 {
		return nil, apperr.Validation(fmt.Sprintf("%s batches need an upstream allocation", cmd.Stage)).WithOp(op)
	}

	var (
		batch     *entities.StageBatch
		upstream  *entities.ProcessedItemAllocation
		movements []ledger.Movement
	)
	err := e.uow.Run(ctx, op, func(ctx context.Context, tx repositories.Tx) error {
		req := applyRequest{
			tenant:         tenant,
			stage:          cmd.Stage,
			batchType:      entities.BatchFresh,
			number:         cmd.Number,
			resourceID:     cmd.ResourceID,
			itemID:         cmd.ItemID,
			pieces:         cmd.Pieces,
			workflowID:     cmd.WorkflowIdentifier,
			itemWorkflowID: cmd.ItemWorkflowID,
			heats:          cmd.HeatAllocations,
			payload:        cmd.Payload,
			appliedAt:      cmd.AppliedAt,
		}

		upstream = nil
		if !cmd.Stage.IsFirst() {
			source, err := tx.Allocations().Get(ctx, tenant, cmd.UpstreamAllocationID)
			if err != nil {
				return shared.NotFound(err, "allocation", int64(cmd.UpstreamAllocationID))
			}
			if want, _ := cmd.Stage.Previous(); source.Stage != want {
				return apperr.InvalidOperation(fmt.Sprintf("%s batches draw from %s allocations, allocation %d is %s",
					cmd.Stage, want, source.ID, source.Stage))
			}
			if cmd.ItemID != 0 && cmd.ItemID != source.ItemID {
				return apperr.Validation(fmt.Sprintf("allocation %d carries item %d, not %d", source.ID, source.ItemID, cmd.ItemID))
			}
			if err := e.checkResource(ctx, tx, tenant, cmd.ResourceID, cmd.Stage); err != nil {
				return err
			}
			if err := source.ConsumeAvailable(cmd.Pieces); err != nil {
				return err
			}
			if err := tx.Allocations().Update(ctx, source); err != nil {
				return err
			}
			upstream = source
			req.inheritFrom(source)
		}

		var err error
		batch, movements, err = e.apply(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.applied(ctx, tenant, batch, movements)
	if upstream != nil {
		e.publish(events.NewAllocationConsumedEvent(upstream, batch.InitialPiecesCount, false, e.now()))
	}
	return batch, nil
}

// OpenReworkBatch takes pieces from an allocation's rework pool into a new
// rework batch at the same stage
func (e *Engine) OpenReworkBatch(ctx context.Context, tenant entities.TenantID, cmd dto.OpenReworkBatchCommand) (*entities.StageBatch, error) {
	const op = "OpenReworkBatch"

	var (
		batch     *entities.StageBatch
		source    *entities.ProcessedItemAllocation
		movements []ledger.Movement
	)
	err := e.uow.Run(ctx, op, func(ctx context.Context, tx repositories.Tx) error {
		var err error
		source, err = tx.Allocations().Get(ctx, tenant, cmd.AllocationID)
		if err != nil {
			return shared.NotFound(err, "allocation", int64(cmd.AllocationID))
		}
		if err := source.ConsumeRework(cmd.Pieces); err != nil {
			return err
		}
		if err := e.checkResource(ctx, tx, tenant, cmd.ResourceID, source.Stage); err != nil {
			return err
		}
		if err := tx.Allocations().Update(ctx, source); err != nil {
			return err
		}

		req := applyRequest{
			tenant:     tenant,
			stage:      source.Stage,
			batchType:  entities.BatchRework,
			number:     cmd.Number,
			resourceID: cmd.ResourceID,
			pieces:     cmd.Pieces,
			heats:      cmd.HeatAllocations,
			payload:    cmd.Payload,
			appliedAt:  cmd.AppliedAt,
		}
		req.inheritFrom(source)

		batch, movements, err = e.apply(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.applied(ctx, tenant, batch, movements)
	e.publish(events.NewAllocationConsumedEvent(source, cmd.Pieces, true, e.now()))
	return batch, nil
}

// StartStageBatch moves an applied batch in progress. The start may not precede
// the end of the resource's previous batch.
func (e *Engine) StartStageBatch(ctx context.Context, tenant entities.TenantID, id entities.BatchID, startAt time.Time) (*entities.StageBatch, error) {
	var batch *entities.StageBatch
	err := e.uow.Run(ctx, "StartStageBatch", func(ctx context.Context, tx repositories.Tx) error {
		var err error
		batch, err = tx.Batches().Get(ctx, tenant, id)
		if err != nil {
			return shared.NotFound(err, "stage batch", int64(id))
		}
		resource, err := tx.Resources().Get(ctx, tenant, batch.ResourceID)
		if err != nil {
			return shared.NotFound(err, "resource", int64(batch.ResourceID))
		}
		if err := batch.Start(startAt, resource.LastReleasedAt); err != nil {
			return err
		}
		return tx.Batches().Update(ctx, batch)
	})
	if err != nil {
		return nil, err
	}

	e.log.WithContext(ctx).BatchTransition(batch.Kind.String(), int64(batch.ID),
		entities.BatchApplied.String(), entities.BatchInProgress.String())
	e.publish(events.NewBatchStartedEvent(batch, e.now()))
	return batch, nil
}

// EndStageBatch completes a batch with the operator's counts and heat
// attribution, produces its allocation and frees the resource
func (e *Engine) EndStageBatch(ctx context.Context, tenant entities.TenantID, cmd dto.EndStageBatchCommand) (*entities.ProcessedItemAllocation, error) {
	var (
		batch      *entities.StageBatch
		allocation *entities.ProcessedItemAllocation
		movements  []ledger.Movement
	)
	err := e.uow.Run(ctx, "EndStageBatch", func(ctx context.Context, tx repositories.Tx) error {
		var err error
		batch, err = tx.Batches().Get(ctx, tenant, cmd.BatchID)
		if err != nil {
			return shared.NotFound(err, "stage batch", int64(cmd.BatchID))
		}
		if err := batch.CheckCanEnd(cmd.EndAt); err != nil {
			return err
		}

		movements, err = e.ledger.Attribute(ctx, tx, batch, cmd.HeatAttribution)
		if err != nil {
			return err
		}

		allocation, err = entities.NewProcessedItemAllocation(batch, cmd.Outcome, cmd.EndAt)
		if err != nil {
			return err
		}
		if err := tx.Allocations().Create(ctx, allocation); err != nil {
			return err
		}

		if err := batch.Complete(cmd.EndAt, allocation.ID); err != nil {
			return err
		}
		if err := tx.Batches().Update(ctx, batch); err != nil {
			return err
		}

		resource, err := tx.Resources().Get(ctx, tenant, batch.ResourceID)
		if err != nil {
			return shared.NotFound(err, "resource", int64(batch.ResourceID))
		}
		if err := resource.Release(batch.ID, cmd.EndAt); err != nil {
			return err
		}
		return tx.Resources().Update(ctx, resource)
	})
	if err != nil {
		return nil, err
	}

	e.ledger.Record(ctx, tenant, movements)
	e.log.WithContext(ctx).BatchTransition(batch.Kind.String(), int64(batch.ID),
		entities.BatchInProgress.String(), entities.BatchCompleted.String())
	now := e.now()
	e.publish(
		events.NewBatchCompletedEvent(batch, allocation, now),
		events.NewAllocationCreatedEvent(allocation, now),
	)
	return allocation, nil
}

// DeleteStageBatch soft-deletes an applied batch that never started. Its heat
// draws go back to the heats, its pieces go back to the allocation it drew on
// and its resource is freed.
func (e *Engine) DeleteStageBatch(ctx context.Context, tenant entities.TenantID, id entities.BatchID) (*entities.StageBatch, error) {
	var (
		batch     *entities.StageBatch
		upstream  *entities.ProcessedItemAllocation
		movements []ledger.Movement
	)
	err := e.uow.Run(ctx, "DeleteStageBatch", func(ctx context.Context, tx repositories.Tx) error {
		var err error
		batch, err = tx.Batches().Get(ctx, tenant, id)
		if err != nil {
			return shared.NotFound(err, "stage batch", int64(id))
		}
		if err := batch.Delete(); err != nil {
			return err
		}

		movements, err = e.ledger.Release(ctx, tx, batch)
		if err != nil {
			return err
		}

		upstream = nil
		if batch.UpstreamAllocationID != 0 {
			source, err := tx.Allocations().Get(ctx, tenant, batch.UpstreamAllocationID)
			if err != nil {
				return shared.NotFound(err, "allocation", int64(batch.UpstreamAllocationID))
			}
			if batch.Type == entities.BatchRework {
				err = source.RestoreRework(batch.InitialPiecesCount)
			} else {
				err = source.RestoreAvailable(batch.InitialPiecesCount)
			}
			if err != nil {
				return err
			}
			if err := tx.Allocations().Update(ctx, source); err != nil {
				return err
			}
			upstream = source
		}

		resource, err := tx.Resources().Get(ctx, tenant, batch.ResourceID)
		if err != nil {
			return shared.NotFound(err, "resource", int64(batch.ResourceID))
		}
		if err := resource.Withdraw(batch.ID); err != nil {
			return err
		}
		if err := tx.Resources().Update(ctx, resource); err != nil {
			return err
		}
		return tx.Batches().Update(ctx, batch)
	})
	if err != nil {
		return nil, err
	}

	e.ledger.Record(ctx, tenant, movements)
	log := e.log.WithContext(ctx)
	log.Info("batch_deleted",
		"batch_id", int64(batch.ID),
		"stage", batch.Kind.String(),
		"restored_pieces", int64(batch.InitialPiecesCount),
	)
	if upstream != nil {
		log.Debug("allocation_restored",
			"allocation_id", int64(upstream.ID),
			"available", int64(upstream.AvailablePiecesCount),
			"rework_pool", int64(upstream.ReworkPool()),
		)
	}
	e.publish(events.NewBatchDeletedEvent(batch, e.now()))
	return batch, nil
}

// ListBatchesFedBy returns every batch drawing on an allocation, rework included
func (e *Engine) ListBatchesFedBy(ctx context.Context, tenant entities.TenantID, allocationID entities.AllocationID) ([]*entities.StageBatch, error) {
	var batches []*entities.StageBatch
	err := e.uow.Run(ctx, "ListBatchesFedBy", func(ctx context.Context, tx repositories.Tx) error {
		if _, err := tx.Allocations().Get(ctx, tenant, allocationID); err != nil {
			return shared.NotFound(err, "allocation", int64(allocationID))
		}
		var err error
		batches, err = tx.Batches().ListByUpstream(ctx, tenant, allocationID)
		return err
	})
	return batches, err
}

// inheritFrom carries the item and workflow identity of the allocation a batch draws on
func (r *applyRequest) inheritFrom(source *entities.ProcessedItemAllocation) {
	r.upstream = source.ID
	r.itemID = source.ItemID
	if r.workflowID == "" {
		r.workflowID = source.WorkflowIdentifier
	}
	if r.itemWorkflowID == "" {
		r.itemWorkflowID = source.ItemWorkflowID
	}
}

func (e *Engine) checkResource(ctx context.Context, tx repositories.Tx, tenant entities.TenantID, id entities.ResourceID, stage entities.StageKind) error {
	resource, err := tx.Resources().Get(ctx, tenant, id)
	if err != nil {
		return shared.NotFound(err, "resource", int64(id))
	}
	return resource.CanRun(stage)
}

// apply builds the batch, draws its heats, stores it and occupies the resource
func (e *Engine) apply(ctx context.Context, tx repositories.Tx, req applyRequest) (*entities.StageBatch, []ledger.Movement, error) {
	resource, err := tx.Resources().Get(ctx, req.tenant, req.resourceID)
	if err != nil {
		return nil, nil, shared.NotFound(err, "resource", int64(req.resourceID))
	}
	if err := resource.CanRun(req.stage); err != nil {
		return nil, nil, err
	}

	batch, err := entities.NewStageBatch(req.tenant, req.stage, req.batchType, req.number,
		req.resourceID, req.itemID, req.pieces, req.payload)
	if err != nil {
		return nil, nil, err
	}
	batch.UpstreamAllocationID = req.upstream
	batch.WorkflowIdentifier = req.workflowID
	batch.ItemWorkflowID = req.itemWorkflowID
	if batch.WorkflowIdentifier == "" {
		batch.WorkflowIdentifier = e.workflowID()
	}
	if batch.ItemWorkflowID == "" {
		batch.ItemWorkflowID = e.workflowID()
	}

	appliedAt := req.appliedAt
	if appliedAt.IsZero() {
		appliedAt = e.now()
	}
	if err := batch.Apply(appliedAt); err != nil {
		return nil, nil, err
	}

	movements, err := e.ledger.Consume(ctx, tx, batch, req.heats)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Batches().Create(ctx, batch); err != nil {
		return nil, nil, err
	}
	for i := range movements {
		movements[i].Batch = batch.ID
	}

	if err := resource.Occupy(batch.ID, batch.Kind); err != nil {
		return nil, nil, err
	}
	if err := tx.Resources().Update(ctx, resource); err != nil {
		return nil, nil, err
	}
	return batch, movements, nil
}

// applied logs and publishes a committed batch creation
func (e *Engine) applied(ctx context.Context, tenant entities.TenantID, batch *entities.StageBatch, movements []ledger.Movement) {
	e.ledger.Record(ctx, tenant, movements)
	e.log.WithContext(ctx).BatchTransition(batch.Kind.String(), int64(batch.ID),
		entities.BatchIdle.String(), entities.BatchApplied.String())
	e.publish(events.NewBatchCreatedEvent(batch, e.now()))
}
