package rest

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vsinha/forgetrace/pkg/domain/entities"
	"github.com/vsinha/forgetrace/pkg/domain/services"
)

type heatView struct {
	ID                int64           `json:"id"`
	Number            string          `json:"number"`
	Mode              string          `json:"mode"`
	TotalQuantity     decimal.Decimal `json:"total_quantity"`
	AvailableQuantity decimal.Decimal `json:"available_quantity"`
	TotalPieces       int64           `json:"total_pieces"`
	AvailablePieces   int64           `json:"available_pieces"`
	ReceivedAt        time.Time       `json:"received_at"`
	Version           int64           `json:"version"`
}

func newHeatView(h *entities.Heat) heatView {
	return heatView{
		ID:                int64(h.ID),
		Number:            h.Number,
		Mode:              h.Mode.String(),
		TotalQuantity:     h.TotalQuantity,
		AvailableQuantity: h.AvailableQuantity,
		TotalPieces:       int64(h.TotalPieces),
		AvailablePieces:   int64(h.AvailablePiecesCount),
		ReceivedAt:        h.ReceivedAt,
		Version:           h.Version,
	}
}

type resourceView struct {
	ID             int64      `json:"id"`
	Name           string     `json:"name"`
	Kind           string     `json:"kind"`
	Status         string     `json:"status"`
	CurrentBatchID int64      `json:"current_batch_id,omitempty"`
	LastReleasedAt *time.Time `json:"last_released_at,omitempty"`
}

func newResourceView(r *entities.Resource) resourceView {
	return resourceView{
		ID:             int64(r.ID),
		Name:           r.Name,
		Kind:           r.Kind.String(),
		Status:         r.Status.String(),
		CurrentBatchID: int64(r.CurrentBatchID),
		LastReleasedAt: optionalTime(r.LastReleasedAt),
	}
}

type consumptionView struct {
	HeatID                        int64           `json:"heat_id"`
	Quantity                      decimal.Decimal `json:"quantity"`
	Pieces                        int64           `json:"pieces"`
	QuantityUsedInRejectedPieces  decimal.Decimal `json:"quantity_used_in_rejected_pieces"`
	QuantityUsedInOtherRejections decimal.Decimal `json:"quantity_used_in_other_rejections"`
	PiecesRejected                int64           `json:"pieces_rejected"`
	QuantityReturned              decimal.Decimal `json:"quantity_returned"`
	PiecesReturned                int64           `json:"pieces_returned"`
}

func newConsumptionView(c entities.HeatConsumption) consumptionView {
	return consumptionView{
		HeatID:                        int64(c.HeatID),
		Quantity:                      c.Quantity,
		Pieces:                        int64(c.Pieces),
		QuantityUsedInRejectedPieces:  c.QuantityUsedInRejectedPieces,
		QuantityUsedInOtherRejections: c.QuantityUsedInOtherRejections,
		PiecesRejected:                int64(c.PiecesRejected),
		QuantityReturned:              c.QuantityReturned,
		PiecesReturned:                int64(c.PiecesReturned),
	}
}

type batchView struct {
	ID                   int64                 `json:"id"`
	Stage                string                `json:"stage"`
	Type                 string                `json:"type"`
	Number               string                `json:"number"`
	ResourceID           int64                 `json:"resource_id"`
	ItemID               int64                 `json:"item_id"`
	Status               string                `json:"status"`
	AppliedAt            time.Time             `json:"applied_at"`
	StartAt              *time.Time            `json:"start_at,omitempty"`
	EndAt                *time.Time            `json:"end_at,omitempty"`
	Heats                []consumptionView     `json:"heats"`
	UpstreamAllocationID int64                 `json:"upstream_allocation_id,omitempty"`
	InitialPieces        int64                 `json:"initial_pieces"`
	WorkflowIdentifier   string                `json:"workflow_identifier"`
	ItemWorkflowID       string                `json:"item_workflow_id"`
	Payload              entities.StagePayload `json:"payload"`
	AllocationID         int64                 `json:"allocation_id,omitempty"`
	Version              int64                 `json:"version"`
}

func newBatchView(b *entities.StageBatch) batchView {
	heats := make([]consumptionView, 0, len(b.HeatConsumptions))
	for _, c := range b.HeatConsumptions {
		heats = append(heats, newConsumptionView(c))
	}
	return batchView{
		ID:                   int64(b.ID),
		Stage:                b.Kind.String(),
		Type:                 b.Type.String(),
		Number:               b.Number,
		ResourceID:           int64(b.ResourceID),
		ItemID:               int64(b.ItemID),
		Status:               b.Status.String(),
		AppliedAt:            b.AppliedAt,
		StartAt:              optionalTime(b.StartAt),
		EndAt:                optionalTime(b.EndAt),
		Heats:                heats,
		UpstreamAllocationID: int64(b.UpstreamAllocationID),
		InitialPieces:        int64(b.InitialPiecesCount),
		WorkflowIdentifier:   b.WorkflowIdentifier,
		ItemWorkflowID:       b.ItemWorkflowID,
		Payload:              b.Payload,
		AllocationID:         int64(b.AllocationID),
		Version:              b.Version,
	}
}

type allocationView struct {
	ID                               int64     `json:"id"`
	ItemID                           int64     `json:"item_id"`
	BatchID                          int64     `json:"batch_id"`
	Stage                            string    `json:"stage"`
	BatchType                        string    `json:"batch_type"`
	InitialPiecesCount               int64     `json:"initial_pieces_count"`
	ActualPiecesCount                int64     `json:"actual_pieces_count"`
	CompletedPiecesCount             int64     `json:"completed_pieces_count"`
	AvailablePiecesCount             int64     `json:"available_pieces_count"`
	RejectedPiecesCount              int64     `json:"rejected_pieces_count"`
	ReworkPiecesCount                int64     `json:"rework_pieces_count"`
	ReworkAvailableForRework         int64     `json:"rework_pieces_count_available_for_rework"`
	WorkflowIdentifier               string    `json:"workflow_identifier"`
	ItemWorkflowID                   string    `json:"item_workflow_id"`
	PreviousOperationProcessedItemID int64     `json:"previous_operation_processed_item_id,omitempty"`
	CreatedAt                        time.Time `json:"created_at"`
	Version                          int64     `json:"version"`
}

func newAllocationView(a *entities.ProcessedItemAllocation) allocationView {
	return allocationView{
		ID:                               int64(a.ID),
		ItemID:                           int64(a.ItemID),
		BatchID:                          int64(a.BatchID),
		Stage:                            a.Stage.String(),
		BatchType:                        a.BatchType.String(),
		InitialPiecesCount:               int64(a.InitialPiecesCount),
		ActualPiecesCount:                int64(a.ActualPiecesCount),
		CompletedPiecesCount:             int64(a.CompletedPiecesCount),
		AvailablePiecesCount:             int64(a.AvailablePiecesCount),
		RejectedPiecesCount:              int64(a.RejectedPiecesCount),
		ReworkPiecesCount:                int64(a.ReworkPiecesCount),
		ReworkAvailableForRework:         int64(a.ReworkPiecesCountAvailableForRework),
		WorkflowIdentifier:               a.WorkflowIdentifier,
		ItemWorkflowID:                   a.ItemWorkflowID,
		PreviousOperationProcessedItemID: int64(a.PreviousOperationProcessedItemID),
		CreatedAt:                        a.CreatedAt,
		Version:                          a.Version,
	}
}

type traceLinkView struct {
	Allocation allocationView `json:"allocation"`
	BatchID    int64          `json:"batch_id"`
	ReworkHop  bool           `json:"rework_hop"`
}

type traceHeatView struct {
	BatchID int64  `json:"batch_id"`
	Stage   string `json:"stage"`
	consumptionView
}

type traceView struct {
	WorkflowIdentifier string          `json:"workflow_identifier"`
	ItemWorkflowID     string          `json:"item_workflow_id"`
	Links              []traceLinkView `json:"links"`
	Heats              []traceHeatView `json:"heats"`
}

func newTraceView(chain *services.TraceabilityChain) traceView {
	view := traceView{
		WorkflowIdentifier: chain.WorkflowIdentifier,
		ItemWorkflowID:     chain.ItemWorkflowID,
		Links:              make([]traceLinkView, 0, len(chain.Links)),
		Heats:              make([]traceHeatView, 0, len(chain.Heats)),
	}
	for _, link := range chain.Links {
		view.Links = append(view.Links, traceLinkView{
			Allocation: newAllocationView(link.Allocation),
			BatchID:    int64(link.Batch.ID),
			ReworkHop:  link.ReworkHop,
		})
	}
	for _, use := range chain.Heats {
		view.Heats = append(view.Heats, traceHeatView{
			BatchID:         int64(use.BatchID),
			Stage:           use.Stage.String(),
			consumptionView: newConsumptionView(use.Consumption),
		})
	}
	return view
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
