package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vsinha/forgetrace/pkg/domain/entities"
)

// HeatAllocation asks for material from one heat. Quantity is used for
// weight-tracked heats and Pieces for piece-tracked ones.
type HeatAllocation struct {
	HeatID   entities.HeatID
	Quantity decimal.Decimal
	Pieces   entities.Pieces
}

// ReceiveHeatCommand records raw material arriving at the plant
type ReceiveHeatCommand struct {
	Number     string
	Mode       entities.MeasurementMode
	Quantity   decimal.Decimal
	Pieces     entities.Pieces
	ReceivedAt time.Time
}

// ReturnHeatCommand gives material back to a heat outside any batch, as the
// compensating half of a reversal
type ReturnHeatCommand struct {
	HeatID   entities.HeatID
	Quantity decimal.Decimal
	Pieces   entities.Pieces
}

// RegisterResourceCommand adds a forge line, furnace, machine set, gauge or dispatch bay
type RegisterResourceCommand struct {
	Name string
	Kind entities.ResourceKind
}

// CreateStageBatchCommand applies work to a resource.
//
// Forge batches draw on heats and declare their target piece count in Pieces.
// Later stages draw Pieces from UpstreamAllocationID, which must belong to the
// immediately preceding stage, and may record heats as well.
type CreateStageBatchCommand struct {
	Stage                entities.StageKind
	ResourceID           entities.ResourceID
	ItemID               entities.ItemID
	Number               string
	HeatAllocations      []HeatAllocation
	UpstreamAllocationID entities.AllocationID
	Pieces               entities.Pieces
	WorkflowIdentifier   string
	ItemWorkflowID       string
	Payload              entities.StagePayload
	AppliedAt            time.Time
}

// EndStageBatchCommand closes a batch with the operator's counts
type EndStageBatchCommand struct {
	BatchID         entities.BatchID
	EndAt           time.Time
	Outcome         entities.PieceOutcome
	HeatAttribution []entities.HeatAttribution
}

// OpenReworkBatchCommand starts a rework batch from an allocation's rework pool
type OpenReworkBatchCommand struct {
	AllocationID    entities.AllocationID
	Pieces          entities.Pieces
	ResourceID      entities.ResourceID
	Number          string
	HeatAllocations []HeatAllocation
	Payload         entities.StagePayload
	AppliedAt       time.Time
}
