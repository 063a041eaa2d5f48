package rest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/vsinha/forgetrace/pkg/application/dto"
	"github.com/vsinha/forgetrace/pkg/application/services/engine"
	"github.com/vsinha/forgetrace/pkg/domain/entities"
)

// Handler serves the engine's operations
type Handler struct {
	engine    *engine.Engine
	validator *Validator
}

// NewHandler creates a handler backed by e
func NewHandler(e *engine.Engine, validator *Validator) *Handler {
	return &Handler{engine: e, validator: validator}
}

// RegisterRoutes mounts every route on rg
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	heats := rg.Group("/heats")
	heats.POST("", h.ReceiveHeat)
	heats.GET("/:id", h.GetHeat)
	heats.POST("/:id/returns", h.ReturnHeat)

	resources := rg.Group("/resources")
	resources.POST("", h.RegisterResource)
	resources.GET("/:id", h.GetResource)

	batches := rg.Group("/batches")
	batches.POST("", h.CreateStageBatch)
	batches.GET("/:id", h.GetStageBatch)
	batches.DELETE("/:id", h.DeleteStageBatch)
	batches.POST("/:id/start", h.StartStageBatch)
	batches.POST("/:id/end", h.EndStageBatch)

	allocations := rg.Group("/allocations")
	allocations.GET("", h.ListAvailableAllocations)
	allocations.GET("/:id", h.GetAllocation)
	allocations.POST("/:id/consume", h.ConsumeAllocation)
	allocations.POST("/:id/rework", h.OpenReworkBatch)
	allocations.GET("/:id/trace", h.GetTraceabilityChain)
	allocations.GET("/:id/batches", h.ListBatchesFedBy)
}

type receiveHeatRequest struct {
	Number     string          `json:"number" validate:"required,max=64"`
	Mode       string          `json:"mode" validate:"required,measurement_mode"`
	Quantity   decimal.Decimal `json:"quantity"`
	Pieces     int64           `json:"pieces" validate:"gte=0"`
	ReceivedAt time.Time       `json:"received_at"`
}

type returnHeatRequest struct {
	Quantity decimal.Decimal `json:"quantity"`
	Pieces   int64           `json:"pieces" validate:"gte=0"`
}

type registerResourceRequest struct {
	Name string `json:"name" validate:"required,max=128"`
	Kind string `json:"kind" validate:"required,resource_kind"`
}

type heatAllocationRequest struct {
	HeatID   int64           `json:"heat_id" validate:"required,gt=0"`
	Quantity decimal.Decimal `json:"quantity"`
	Pieces   int64           `json:"pieces" validate:"gte=0"`
}

type createBatchRequest struct {
	Stage                string                  `json:"stage" validate:"required,stage"`
	ResourceID           int64                   `json:"resource_id" validate:"required,gt=0"`
	ItemID               int64                   `json:"item_id" validate:"gte=0"`
	Number               string                  `json:"number" validate:"max=64"`
	Heats                []heatAllocationRequest `json:"heats" validate:"dive"`
	UpstreamAllocationID int64                   `json:"upstream_allocation_id" validate:"gte=0"`
	Pieces               int64                   `json:"pieces" validate:"required,gt=0"`
	WorkflowIdentifier   string                  `json:"workflow_identifier" validate:"max=64"`
	ItemWorkflowID       string                  `json:"item_workflow_id" validate:"max=64"`
	Payload              json.RawMessage         `json:"payload"`
	AppliedAt            time.Time               `json:"applied_at"`
}

type startBatchRequest struct {
	StartAt time.Time `json:"start_at" validate:"required"`
}

type heatAttributionRequest struct {
	HeatID                        int64           `json:"heat_id" validate:"required,gt=0"`
	QuantityUsedInRejectedPieces  decimal.Decimal `json:"quantity_used_in_rejected_pieces"`
	QuantityUsedInOtherRejections decimal.Decimal `json:"quantity_used_in_other_rejections"`
	PiecesRejected                int64           `json:"pieces_rejected" validate:"gte=0"`
	QuantityReturned              decimal.Decimal `json:"quantity_returned"`
	PiecesReturned                int64           `json:"pieces_returned" validate:"gte=0"`
}

type endBatchRequest struct {
	EndAt       time.Time                `json:"end_at" validate:"required"`
	Completed   int64                    `json:"completed" validate:"gte=0"`
	Rejected    int64                    `json:"rejected" validate:"gte=0"`
	Rework      int64                    `json:"rework" validate:"gte=0"`
	Attribution []heatAttributionRequest `json:"heat_attribution" validate:"dive"`
}

type consumeRequest struct {
	Pieces int64 `json:"pieces" validate:"required,gt=0"`
}

type reworkRequest struct {
	Pieces     int64                   `json:"pieces" validate:"required,gt=0"`
	ResourceID int64                   `json:"resource_id" validate:"required,gt=0"`
	Number     string                  `json:"number" validate:"max=64"`
	Heats      []heatAllocationRequest `json:"heats" validate:"dive"`
	Payload    json.RawMessage         `json:"payload"`
	AppliedAt  time.Time               `json:"applied_at"`
}

// bind decodes and validates the JSON body into req, answering 400 on failure
func (h *Handler) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		badRequest(c, err)
		return false
	}
	if err := h.validator.Struct(req); err != nil {
		badRequest(c, err)
		return false
	}
	return true
}

func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, fmt.Errorf("invalid id %q", c.Param("id")))
		return 0, false
	}
	return id, true
}

func toHeatAllocations(reqs []heatAllocationRequest) []dto.HeatAllocation {
	out := make([]dto.HeatAllocation, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, dto.HeatAllocation{
			HeatID:   entities.HeatID(r.HeatID),
			Quantity: r.Quantity,
			Pieces:   entities.Pieces(r.Pieces),
		})
	}
	return out
}

// ReceiveHeat handles POST /heats
func (h *Handler) ReceiveHeat(c *gin.Context) {
	var req receiveHeatRequest
	if !h.bind(c, &req) {
		return
	}
	mode, _ := entities.ParseMeasurementMode(req.Mode)

	heat, err := h.engine.ReceiveHeat(c.Request.Context(), tenantOf(c), dto.ReceiveHeatCommand{
		Number:     req.Number,
		Mode:       mode,
		Quantity:   req.Quantity,
		Pieces:     entities.Pieces(req.Pieces),
		ReceivedAt: req.ReceivedAt,
	})
	if HandleError(c, err) {
		return
	}
	c.JSON(http.StatusCreated, newHeatView(heat))
}

// GetHeat handles GET /heats/:id
func (h *Handler) GetHeat(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	heat, err := h.engine.GetHeat(c.Request.Context(), tenantOf(c), entities.HeatID(id))
	if HandleError(c, err) {
		return
	}
	c.JSON(http.StatusOK, newHeatView(heat))
}

// ReturnHeat handles POST /heats/:id/returns
func (h *Handler) ReturnHeat(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req returnHeatRequest
	if !h.bind(c, &req) {
		return
	}
	heat, err := h.engine.ReturnHeat(c.Request.Context(), tenantOf(c), dto.ReturnHeatCommand{
		HeatID:   entities.HeatID(id),
		Quantity: req.Quantity,
		Pieces:   entities.Pieces(req.Pieces),
	})
	if HandleError(c, err) {
		return
	}
	c.JSON(http.StatusOK, newHeatView(heat))
}

// RegisterResource handles POST /resources
func (h *Handler) RegisterResource(c *gin.Context) {
	var req registerResourceRequest
	if !h.bind(c, &req) {
		return
	}
	kind, _ := entities.ParseResourceKind(req.Kind)

	resource, err := h.engine.RegisterResource(c.Request.Context(), tenantOf(c), dto.RegisterResourceCommand{
		Name: req.Name,
		Kind: kind,
	})
	if HandleError(c, err) {
		return
	}
	c.JSON(http.StatusCreated, newResourceView(resource))
}

// GetResource handles GET /resources/:id
func (h *Handler) GetResource(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	resource, err := h.engine.GetResource(c.Request.Context(), tenantOf(c), entities.ResourceID(id))
	if HandleError(c, err) {
		return
	}
	c.JSON(http.StatusOK, newResourceView(resource))
}

// CreateStageBatch handles POST /batches
func (h *Handler) CreateStageBatch(c *gin.Context) {
	var req createBatchRequest
	if !h.bind(c, &req) {
		return
	}
	stage, _ := entities.ParseStageKind(req.Stage)
	payload, err := entities.DecodePayload(stage, req.Payload)
	if err != nil {
		badRequest(c, err)
		return
	}

	batch, err := h.engine.CreateStageBatch(c.Request.Context(), tenantOf(c), dto.CreateStageBatchCommand{
		Stage:                stage,
		ResourceID:           entities.ResourceID(req.ResourceID),
		ItemID:               entities.ItemID(req.ItemID),
		Number:               req.Number,
		HeatAllocations:      toHeatAllocations(req.Heats),
		UpstreamAllocationID: entities.AllocationID(req.UpstreamAllocationID),
		Pieces:               entities.Pieces(req.Pieces),
		WorkflowIdentifier:   req.WorkflowIdentifier,
		ItemWorkflowID:       req.ItemWorkflowID,
		Payload:              payload,
		AppliedAt:            req.AppliedAt,
	})
	if HandleError(c, err) {
		return
	}
	c.JSON(http.StatusCreated, newBatchView(batch))
}

// GetStageBatch handles GET /batches/:id
func (h *Handler) GetStageBatch(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	batch, err := h.engine.GetStageBatch(c.Request.Context(), tenantOf(c), entities.BatchID(id))
	if HandleError(c, err) {
		return
	}
	c.JSON(http.StatusOK, newBatchView(batch))
}

// DeleteStageBatch handles DELETE /batches/:id for batches that never started
func (h *Handler) DeleteStageBatch(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	batch, err := h.engine.DeleteStageBatch(c.Request.Context(), tenantOf(c), entities.BatchID(id))
	if HandleError(c, err) {
		return
	}
	c.JSON(http.StatusOK, newBatchView(batch))
}

// StartStageBatch handles POST /batches/:id/start
func (h *Handler) StartStageBatch(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req startBatchRequest
	if !h.bind(c, &req) {
		return
	}
	batch, err := h.engine.StartStageBatch(c.Request.Context(), tenantOf(c), entities.BatchID(id), req.StartAt)
	if HandleError(c, err) {
		return
	}
	c.JSON(http.StatusOK, newBatchView(batch))
}

// EndStageBatch handles POST /batches/:id/end and answers with the allocation
// the batch produced
func (h *Handler) EndStageBatch(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req endBatchRequest
	if !h.bind(c, &req) {
		return
	}

	attribution := make([]entities.HeatAttribution, 0, len(req.Attribution))
	for _, a := range req.Attribution {
		attribution = append(attribution, entities.HeatAttribution{
			HeatID:                        entities.HeatID(a.HeatID),
			QuantityUsedInRejectedPieces:  a.QuantityUsedInRejectedPieces,
			QuantityUsedInOtherRejections: a.QuantityUsedInOtherRejections,
			PiecesRejected:                entities.Pieces(a.PiecesRejected),
			QuantityReturned:              a.QuantityReturned,
			PiecesReturned:                entities.Pieces(a.PiecesReturned),
		})
	}

	allocation, err := h.engine.EndStageBatch(c.Request.Context(), tenantOf(c), dto.EndStageBatchCommand{
		BatchID: entities.BatchID(id),
		EndAt:   req.EndAt,
		Outcome: entities.PieceOutcome{
			Completed: entities.Pieces(req.Completed),
			Rejected:  entities.Pieces(req.Rejected),
			Rework:    entities.Pieces(req.Rework),
		},
		HeatAttribution: attribution,
	})
	if HandleError(c, err) {
		return
	}
	c.JSON(http.StatusCreated, newAllocationView(allocation))
}

// ListAvailableAllocations handles GET /allocations?stage=
func (h *Handler) ListAvailableAllocations(c *gin.Context) {
	raw := c.Query("stage")
	if err := h.validator.Var(raw, "required,stage"); err != nil {
		badRequest(c, fmt.Errorf("invalid stage %q", raw))
		return
	}
	stage, _ := entities.ParseStageKind(raw)

	allocations, err := h.engine.ListAvailableAllocations(c.Request.Context(), tenantOf(c), stage)
	if HandleError(c, err) {
		return
	}
	views := make([]allocationView, 0, len(allocations))
	for _, a := range allocations {
		views = append(views, newAllocationView(a))
	}
	c.JSON(http.StatusOK, gin.H{"allocations": views})
}

// GetAllocation handles GET /allocations/:id
func (h *Handler) GetAllocation(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	allocation, err := h.engine.GetAllocation(c.Request.Context(), tenantOf(c), entities.AllocationID(id))
	if HandleError(c, err) {
		return
	}
	c.JSON(http.StatusOK, newAllocationView(allocation))
}

// ConsumeAllocation handles POST /allocations/:id/consume
func (h *Handler) ConsumeAllocation(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req consumeRequest
	if !h.bind(c, &req) {
		return
	}
	allocation, err := h.engine.ConsumeAllocation(c.Request.Context(), tenantOf(c), entities.AllocationID(id), entities.Pieces(req.Pieces))
	if HandleError(c, err) {
		return
	}
	c.JSON(http.StatusOK, newAllocationView(allocation))
}

// OpenReworkBatch handles POST /allocations/:id/rework
func (h *Handler) OpenReworkBatch(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req reworkRequest
	if !h.bind(c, &req) {
		return
	}

	ctx := c.Request.Context()
	tenant := tenantOf(c)
	source, err := h.engine.GetAllocation(ctx, tenant, entities.AllocationID(id))
	if HandleError(c, err) {
		return
	}
	payload, err := entities.DecodePayload(source.Stage, req.Payload)
	if err != nil {
		badRequest(c, err)
		return
	}

	batch, err := h.engine.OpenReworkBatch(ctx, tenant, dto.OpenReworkBatchCommand{
		AllocationID:    source.ID,
		Pieces:          entities.Pieces(req.Pieces),
		ResourceID:      entities.ResourceID(req.ResourceID),
		Number:          req.Number,
		HeatAllocations: toHeatAllocations(req.Heats),
		Payload:         payload,
		AppliedAt:       req.AppliedAt,
	})
	if HandleError(c, err) {
		return
	}
	c.JSON(http.StatusCreated, newBatchView(batch))
}

// GetTraceabilityChain handles GET /allocations/:id/trace
func (h *Handler) GetTraceabilityChain(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	chain, err := h.engine.GetTraceabilityChain(c.Request.Context(), tenantOf(c), entities.AllocationID(id))
	if HandleError(c, err) {
		return
	}
	c.JSON(http.StatusOK, newTraceView(chain))
}

// ListBatchesFedBy handles GET /allocations/:id/batches
func (h *Handler) ListBatchesFedBy(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	batches, err := h.engine.ListBatchesFedBy(c.Request.Context(), tenantOf(c), entities.AllocationID(id))
	if HandleError(c, err) {
		return
	}
	views := make([]batchView, 0, len(batches))
	for _, b := range batches {
		views = append(views, newBatchView(b))
	}
	c.JSON(http.StatusOK, gin.H{"batches": views})
}
