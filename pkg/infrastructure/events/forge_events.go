package events

import (
	"fmt"
	"time"

	"github.com/vsinha/forgetrace/pkg/domain/entities"
)

const (
	HeatReceivedEvent = "heat.received"
	HeatConsumedEvent = "heat.consumed"
	HeatReturnedEvent = "heat.returned"

	BatchCreatedEvent   = "batch.created"
	BatchStartedEvent   = "batch.started"
	BatchCompletedEvent = "batch.completed"
	BatchDeletedEvent   = "batch.deleted"

	AllocationCreatedEvent  = "allocation.created"
	AllocationConsumedEvent = "allocation.consumed"
	ReworkOpenedEvent       = "rework.opened"
)

// HeatStream names the stream that records movements of one heat
func HeatStream(tenant entities.TenantID, id entities.HeatID) string {
	return fmt.Sprintf("tenant/%d/heat/%d", tenant, id)
}

// BatchStream names the stream that records the lifecycle of one batch
func BatchStream(tenant entities.TenantID, id entities.BatchID) string {
	return fmt.Sprintf("tenant/%d/batch/%d", tenant, id)
}

// AllocationStream names the stream that records draws on one allocation
func AllocationStream(tenant entities.TenantID, id entities.AllocationID) string {
	return fmt.Sprintf("tenant/%d/allocation/%d", tenant, id)
}

type HeatReceived struct {
	Heat entities.Heat `json:"heat"`
}

// HeatMovement records a consumption or return against one heat. Amount is a
// weight or a piece count depending on the heat's measurement mode.
type HeatMovement struct {
	HeatID    entities.HeatID  `json:"heat_id"`
	BatchID   entities.BatchID `json:"batch_id,omitempty"`
	Amount    string           `json:"amount"`
	Available string           `json:"available"`
}

type BatchCreated struct {
	BatchID  entities.BatchID      `json:"batch_id"`
	Stage    entities.StageKind    `json:"stage"`
	Type     entities.BatchType    `json:"type"`
	Upstream entities.AllocationID `json:"upstream_allocation_id,omitempty"`
	Pieces   entities.Pieces       `json:"initial_pieces"`
}

type BatchStarted struct {
	BatchID entities.BatchID `json:"batch_id"`
	StartAt time.Time        `json:"start_at"`
}

type BatchDeleted struct {
	BatchID  entities.BatchID      `json:"batch_id"`
	Upstream entities.AllocationID `json:"upstream_allocation_id,omitempty"`
	Pieces   entities.Pieces       `json:"restored_pieces"`
}

type BatchCompleted struct {
	BatchID      entities.BatchID      `json:"batch_id"`
	AllocationID entities.AllocationID `json:"allocation_id"`
	Outcome      entities.PieceOutcome `json:"outcome"`
	EndAt        time.Time             `json:"end_at"`
}

type AllocationConsumed struct {
	AllocationID entities.AllocationID `json:"allocation_id"`
	Pieces       entities.Pieces       `json:"pieces"`
	Remaining    entities.Pieces       `json:"remaining"`
	Rework       bool                  `json:"rework,omitempty"`
}

func NewHeatReceivedEvent(heat *entities.Heat, at time.Time) Event {
	return newRecord(HeatReceivedEvent, heat.Tenant, HeatStream(heat.Tenant, heat.ID), HeatReceived{Heat: *heat.Clone()}, at)
}

func NewHeatConsumedEvent(tenant entities.TenantID, movement HeatMovement, at time.Time) Event {
	return newRecord(HeatConsumedEvent, tenant, HeatStream(tenant, movement.HeatID), movement, at)
}

func NewHeatReturnedEvent(tenant entities.TenantID, movement HeatMovement, at time.Time) Event {
	return newRecord(HeatReturnedEvent, tenant, HeatStream(tenant, movement.HeatID), movement, at)
}

func NewBatchCreatedEvent(batch *entities.StageBatch, at time.Time) Event {
	eventType := BatchCreatedEvent
	if batch.Type == entities.BatchRework {
		eventType = ReworkOpenedEvent
	}
	return newRecord(eventType, batch.Tenant, BatchStream(batch.Tenant, batch.ID), BatchCreated{
		BatchID:  batch.ID,
		Stage:    batch.Kind,
		Type:     batch.Type,
		Upstream: batch.UpstreamAllocationID,
		Pieces:   batch.InitialPiecesCount,
	}, at)
}

func NewBatchStartedEvent(batch *entities.StageBatch, at time.Time) Event {
	return newRecord(BatchStartedEvent, batch.Tenant, BatchStream(batch.Tenant, batch.ID), BatchStarted{
		BatchID: batch.ID,
		StartAt: batch.StartAt,
	}, at)
}

func NewBatchCompletedEvent(batch *entities.StageBatch, allocation *entities.ProcessedItemAllocation, at time.Time) Event {
	return newRecord(BatchCompletedEvent, batch.Tenant, BatchStream(batch.Tenant, batch.ID), BatchCompleted{
		BatchID:      batch.ID,
		AllocationID: allocation.ID,
		Outcome: entities.PieceOutcome{
			Completed: allocation.CompletedPiecesCount,
			Rejected:  allocation.RejectedPiecesCount,
			Rework:    allocation.ReworkPiecesCount,
		},
		EndAt: batch.EndAt,
	}, at)
}

func NewBatchDeletedEvent(batch *entities.StageBatch, at time.Time) Event {
	return newRecord(BatchDeletedEvent, batch.Tenant, BatchStream(batch.Tenant, batch.ID), BatchDeleted{
		BatchID:  batch.ID,
		Upstream: batch.UpstreamAllocationID,
		Pieces:   batch.InitialPiecesCount,
	}, at)
}

func NewAllocationCreatedEvent(allocation *entities.ProcessedItemAllocation, at time.Time) Event {
	return newRecord(AllocationCreatedEvent, allocation.Tenant, AllocationStream(allocation.Tenant, allocation.ID), *allocation.Clone(), at)
}

func NewAllocationConsumedEvent(allocation *entities.ProcessedItemAllocation, pieces entities.Pieces, rework bool, at time.Time) Event {
	remaining := allocation.AvailablePiecesCount
	if rework {
		remaining = allocation.ReworkPiecesCountAvailableForRework
	}
	return newRecord(AllocationConsumedEvent, allocation.Tenant, AllocationStream(allocation.Tenant, allocation.ID), AllocationConsumed{
		AllocationID: allocation.ID,
		Pieces:       pieces,
		Remaining:    remaining,
		Rework:       rework,
	}, at)
}
