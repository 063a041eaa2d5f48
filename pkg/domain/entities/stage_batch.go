package entities

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vsinha/forgetrace/pkg/domain/apperr"
)

// HeatConsumption records how much of one heat a batch used and how that
// material was split between good output, rejects and other losses
type HeatConsumption struct {
	HeatID                        HeatID
	Quantity                      decimal.Decimal
	Pieces                        Pieces
	QuantityUsedInRejectedPieces  decimal.Decimal
	QuantityUsedInOtherRejections decimal.Decimal
	PiecesRejected                Pieces
	QuantityReturned              decimal.Decimal
	PiecesReturned                Pieces
}

// NetQuantity is the weight the batch kept after returns and other rejections
func (c HeatConsumption) NetQuantity() decimal.Decimal {
	return RoundWeight(c.Quantity.Add(c.QuantityUsedInOtherRejections).Sub(c.QuantityReturned))
}

// UsableQuantity is the weight attributable to good pieces
func (c HeatConsumption) UsableQuantity() decimal.Decimal {
	return RoundWeight(c.Quantity.Sub(c.QuantityReturned).Sub(c.QuantityUsedInRejectedPieces))
}

// HeatAttribution is the operator's end-of-batch report for one heat
type HeatAttribution struct {
	HeatID                        HeatID
	QuantityUsedInRejectedPieces  decimal.Decimal
	QuantityUsedInOtherRejections decimal.Decimal
	PiecesRejected                Pieces
	QuantityReturned              decimal.Decimal
	PiecesReturned                Pieces
}

// StageBatch is one run of a stage on a resource. Kind selects the stage and
// Payload carries its stage-specific fields.
type StageBatch struct {
	ID                   BatchID
	Tenant               TenantID
	Kind                 StageKind
	Type                 BatchType
	Number               string
	ResourceID           ResourceID
	ItemID               ItemID
	Status               BatchStatus
	AppliedAt            time.Time
	StartAt              time.Time
	EndAt                time.Time
	HeatConsumptions     []HeatConsumption
	UpstreamAllocationID AllocationID
	InitialPiecesCount   Pieces
	WorkflowIdentifier   string
	ItemWorkflowID       string
	Payload              StagePayload
	AllocationID         AllocationID
	Version              int64
	Deleted              bool
}

// NewStageBatch creates a validated StageBatch in the Idle state
func NewStageBatch(
	tenant TenantID,
	kind StageKind,
	batchType BatchType,
	number string,
	resource ResourceID,
	item ItemID,
	initialPieces Pieces,
	payload StagePayload,
) (*StageBatch, error) {
	if !kind.Valid() {
		return nil, apperr.Validation(fmt.Sprintf("invalid stage kind %d", kind))
	}
	if batchType == BatchRework && !kind.AllowsRework() {
		return nil, apperr.InvalidOperation(fmt.Sprintf("%s does not accept rework batches", kind))
	}
	if resource == 0 {
		return nil, apperr.Validation("resource cannot be empty")
	}
	if item == 0 {
		return nil, apperr.Validation("item cannot be empty")
	}
	if initialPieces <= 0 {
		return nil, apperr.Validation(fmt.Sprintf("initial pieces must be positive, got %d", initialPieces))
	}
	if payload == nil {
		payload = EmptyPayload(kind)
	}
	if payload.Stage() != kind {
		return nil, apperr.Validation(fmt.Sprintf("%s payload does not match %s batch", payload.Stage(), kind))
	}

	return &StageBatch{
		Tenant:             tenant,
		Kind:               kind,
		Type:               batchType,
		Number:             number,
		ResourceID:         resource,
		ItemID:             item,
		Status:             BatchIdle,
		InitialPiecesCount: initialPieces,
		Payload:            payload,
	}, nil
}

func (b *StageBatch) transition(next BatchStatus) error {
	if !b.Status.CanTransitionTo(next) {
		return apperr.InvalidTransition(fmt.Sprintf("batch %d cannot move from %s to %s", b.ID, b.Status, next))
	}
	b.Status = next
	return nil
}

// Apply marks the batch as assigned to its resource
func (b *StageBatch) Apply(appliedAt time.Time) error {
	if err := b.transition(BatchApplied); err != nil {
		return err
	}
	b.AppliedAt = appliedAt
	return nil
}

// Start moves an applied batch in progress. notBefore is the end of the
// resource's prior batch.
func (b *StageBatch) Start(startAt, notBefore time.Time) error {
	if startAt.IsZero() {
		return apperr.Validation(fmt.Sprintf("batch %d start time cannot be empty", b.ID))
	}
	if !notBefore.IsZero() && startAt.Before(notBefore) {
		return apperr.InvalidTransition(fmt.Sprintf("batch %d cannot start at %s before the resource was released at %s",
			b.ID, startAt.Format(time.RFC3339), notBefore.Format(time.RFC3339)))
	}
	if err := b.transition(BatchInProgress); err != nil {
		return err
	}
	b.StartAt = startAt
	return nil
}

// CheckCanEnd reports whether the batch may end at endAt
func (b *StageBatch) CheckCanEnd(endAt time.Time) error {
	if b.Status != BatchInProgress {
		return apperr.InvalidTransition(fmt.Sprintf("batch %d cannot end from %s", b.ID, b.Status))
	}
	if !endAt.After(b.StartAt) {
		return apperr.InvalidTransition(fmt.Sprintf("batch %d end %s must be after start %s",
			b.ID, endAt.Format(time.RFC3339), b.StartAt.Format(time.RFC3339)))
	}
	return nil
}

// Complete ends an in-progress batch and links it to the allocation it produced
func (b *StageBatch) Complete(endAt time.Time, allocation AllocationID) error {
	if err := b.CheckCanEnd(endAt); err != nil {
		return err
	}
	if err := b.transition(BatchCompleted); err != nil {
		return err
	}
	b.EndAt = endAt
	b.AllocationID = allocation
	return nil
}

// Delete soft-deletes an applied batch that never started
func (b *StageBatch) Delete() error {
	if b.Deleted {
		return apperr.InvalidTransition(fmt.Sprintf("batch %d is already deleted", b.ID))
	}
	if b.Status != BatchApplied {
		return apperr.InvalidTransition(fmt.Sprintf("batch %d can only be deleted before it starts, is %s", b.ID, b.Status))
	}
	b.Deleted = true
	return nil
}

// ConsumeHeat takes material from heat for this batch and records it.
// Exactly one of quantity (weight heats) or pieces (piece heats) is used.
func (b *StageBatch) ConsumeHeat(heat *Heat, quantity decimal.Decimal, pieces Pieces) error {
	if b.Status == BatchCompleted {
		return apperr.InvalidTransition(fmt.Sprintf("batch %d is completed and cannot consume heat", b.ID))
	}
	if heat.Tenant != b.Tenant {
		return apperr.NotFound("heat", int64(heat.ID))
	}

	var err error
	switch heat.Mode {
	case ByWeight:
		if pieces != 0 {
			return apperr.InvalidOperation(fmt.Sprintf("heat %d is tracked by weight, not pieces", heat.ID))
		}
		err = heat.ConsumeQuantity(quantity)
	default:
		if !quantity.IsZero() {
			return apperr.InvalidOperation(fmt.Sprintf("heat %d is tracked by pieces, not weight", heat.ID))
		}
		err = heat.ConsumePieces(pieces)
	}
	if err != nil {
		return err
	}

	for i := range b.HeatConsumptions {
		if b.HeatConsumptions[i].HeatID == heat.ID {
			b.HeatConsumptions[i].Quantity = RoundWeight(b.HeatConsumptions[i].Quantity.Add(quantity))
			b.HeatConsumptions[i].Pieces += pieces
			return nil
		}
	}
	b.HeatConsumptions = append(b.HeatConsumptions, HeatConsumption{
		HeatID:   heat.ID,
		Quantity: RoundWeight(quantity),
		Pieces:   pieces,
	})
	return nil
}

// Consumption returns the consumption record for a heat
func (b *StageBatch) Consumption(heat HeatID) (*HeatConsumption, bool) {
	for i := range b.HeatConsumptions {
		if b.HeatConsumptions[i].HeatID == heat {
			return &b.HeatConsumptions[i], true
		}
	}
	return nil, false
}

// AttributeHeat books an end-of-batch attribution against heat. Rejected
// material is carved out of what was already consumed; other rejections are
// consumed on top; returned material goes back to the heat.
func (b *StageBatch) AttributeHeat(heat *Heat, a HeatAttribution) error {
	if b.Status != BatchInProgress {
		return apperr.InvalidTransition(fmt.Sprintf("batch %d must be in progress to attribute heat, is %s", b.ID, b.Status))
	}
	c, ok := b.Consumption(a.HeatID)
	if !ok || heat.ID != a.HeatID {
		return apperr.Validation(fmt.Sprintf("batch %d did not consume heat %d", b.ID, a.HeatID))
	}

	switch heat.Mode {
	case ByWeight:
		if a.PiecesRejected != 0 || a.PiecesReturned != 0 {
			return apperr.InvalidOperation(fmt.Sprintf("heat %d is tracked by weight, not pieces", heat.ID))
		}
		rejected := RoundWeight(a.QuantityUsedInRejectedPieces)
		other := RoundWeight(a.QuantityUsedInOtherRejections)
		returned := RoundWeight(a.QuantityReturned)
		if rejected.IsNegative() || other.IsNegative() || returned.IsNegative() {
			return apperr.Validation(fmt.Sprintf("attribution for heat %d cannot be negative", heat.ID))
		}
		if rejected.Add(returned).GreaterThan(c.Quantity) {
			return apperr.Newf(apperr.KindConservationViolation, "batch %d attributes %s of heat %d but consumed %s",
				b.ID, rejected.Add(returned).StringFixed(WeightPrecision), heat.ID, c.Quantity.StringFixed(WeightPrecision)).
				WithDetails(apperr.Shortfall{
					Entity:    "heat_consumption",
					ID:        int64(heat.ID),
					Requested: rejected.Add(returned).StringFixed(WeightPrecision),
					Available: c.Quantity.StringFixed(WeightPrecision),
				})
		}
		if other.IsPositive() {
			if err := heat.ConsumeQuantity(other); err != nil {
				return err
			}
		}
		if returned.IsPositive() {
			if err := heat.ReturnQuantity(returned); err != nil {
				return err
			}
		}
		c.QuantityUsedInRejectedPieces = rejected
		c.QuantityUsedInOtherRejections = other
		c.QuantityReturned = returned
	default:
		if !a.QuantityUsedInRejectedPieces.IsZero() || !a.QuantityUsedInOtherRejections.IsZero() || !a.QuantityReturned.IsZero() {
			return apperr.InvalidOperation(fmt.Sprintf("heat %d is tracked by pieces, not weight", heat.ID))
		}
		if a.PiecesRejected < 0 || a.PiecesReturned < 0 {
			return apperr.Validation(fmt.Sprintf("attribution for heat %d cannot be negative", heat.ID))
		}
		if a.PiecesRejected > c.Pieces || a.PiecesReturned > c.Pieces-a.PiecesRejected {
			return apperr.ConservationViolation(int64(b.ID), int64(sumPieces(a.PiecesRejected, a.PiecesReturned)), int64(c.Pieces))
		}
		if a.PiecesReturned > 0 {
			if err := heat.ReturnPieces(a.PiecesReturned); err != nil {
				return err
			}
		}
		c.PiecesRejected = a.PiecesRejected
		c.PiecesReturned = a.PiecesReturned
	}
	return nil
}

// Clone returns a deep copy safe to mutate independently
func (b *StageBatch) Clone() *StageBatch {
	c := *b
	c.HeatConsumptions = append([]HeatConsumption(nil), b.HeatConsumptions...)
	if p, ok := b.Payload.(InspectionPayload); ok && p.GaugeReadings != nil {
		readings := make(map[string]string, len(p.GaugeReadings))
		for k, v := range p.GaugeReadings {
			readings[k] = v
		}
		p.GaugeReadings = readings
		c.Payload = p
	}
	return &c
}
