package entities

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vsinha/forgetrace/pkg/domain/apperr"
)

var shiftStart = time.Date(2025, 3, 10, 6, 0, 0, 0, time.UTC)

func newForgeBatch(t *testing.T, initial Pieces) *StageBatch {
	t.Helper()
	batch, err := NewStageBatch(1, StageForge, BatchFresh, "F-001", 10, 100, initial, nil)
	if err != nil {
		t.Fatalf("Failed to create batch: %v", err)
	}
	batch.ID = 1
	return batch
}

func TestStageBatch_Validation(t *testing.T) {
	testCases := []struct {
		name      string
		kind      StageKind
		batchType BatchType
		resource  ResourceID
		item      ItemID
		initial   Pieces
		payload   StagePayload
		kindErr   apperr.Kind
	}{
		{"invalid stage", StageKind(9), BatchFresh, 1, 1, 10, nil, apperr.KindValidation},
		{"missing resource", StageForge, BatchFresh, 0, 1, 10, nil, apperr.KindValidation},
		{"missing item", StageForge, BatchFresh, 1, 0, 10, nil, apperr.KindValidation},
		{"zero pieces", StageForge, BatchFresh, 1, 1, 0, nil, apperr.KindValidation},
		{"mismatched payload", StageForge, BatchFresh, 1, 1, 10, MachiningPayload{}, apperr.KindValidation},
		{"rework at dispatch", StageDispatch, BatchRework, 1, 1, 10, nil, apperr.KindInvalidOperation},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewStageBatch(1, tc.kind, tc.batchType, "B", tc.resource, tc.item, tc.initial, tc.payload)
			if !apperr.Is(err, tc.kindErr) {
				t.Errorf("Expected %s error, got %v", tc.kindErr, err)
			}
		})
	}

	batch, err := NewStageBatch(1, StageHeatTreatment, BatchFresh, "HT-1", 1, 1, 10, nil)
	if err != nil {
		t.Fatalf("Expected batch creation to succeed: %v", err)
	}
	if _, ok := batch.Payload.(HeatTreatmentPayload); !ok {
		t.Errorf("Expected default HeatTreatmentPayload, got %T", batch.Payload)
	}
	if batch.Status != BatchIdle {
		t.Errorf("Expected Idle status, got %s", batch.Status)
	}
}

func TestStageBatch_Lifecycle(t *testing.T) {
	batch := newForgeBatch(t, 58)

	if err := batch.Start(shiftStart, time.Time{}); !apperr.Is(err, apperr.KindInvalidTransition) {
		t.Fatalf("Expected starting an idle batch to fail, got %v", err)
	}
	if err := batch.Apply(shiftStart); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if err := batch.Complete(shiftStart.Add(time.Hour), 1); !apperr.Is(err, apperr.KindInvalidTransition) {
		t.Fatalf("Expected ending a batch that never started to fail, got %v", err)
	}
	if err := batch.Start(time.Time{}, time.Time{}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("Expected empty start time to fail, got %v", err)
	}
	if err := batch.Start(shiftStart, shiftStart.Add(time.Minute)); !apperr.Is(err, apperr.KindInvalidTransition) {
		t.Fatalf("Expected start before resource release to fail, got %v", err)
	}
	if err := batch.Start(shiftStart.Add(time.Minute), shiftStart); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := batch.Complete(shiftStart.Add(time.Minute), 1); !apperr.Is(err, apperr.KindInvalidTransition) {
		t.Fatalf("Expected end equal to start to fail, got %v", err)
	}
	if !batch.EndAt.IsZero() {
		t.Errorf("Expected EndAt to stay empty after failed completion")
	}

	endAt := shiftStart.Add(4 * time.Hour)
	if err := batch.Complete(endAt, 7); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if batch.Status != BatchCompleted || !batch.EndAt.Equal(endAt) || batch.AllocationID != 7 {
		t.Errorf("Unexpected completed batch state: %+v", batch)
	}
	if err := batch.Complete(endAt.Add(time.Hour), 8); !apperr.Is(err, apperr.KindInvalidTransition) {
		t.Errorf("Expected completed batch to be terminal, got %v", err)
	}
}

func TestStageBatch_ConsumeHeat(t *testing.T) {
	batch := newForgeBatch(t, 58)
	_ = batch.Apply(shiftStart)

	heat, _ := NewWeightHeat(1, "H-001", decimal.NewFromInt(100), shiftStart)
	heat.ID = 5

	if err := batch.ConsumeHeat(heat, decimal.NewFromInt(35), 0); err != nil {
		t.Fatalf("ConsumeHeat failed: %v", err)
	}
	if err := batch.ConsumeHeat(heat, decimal.NewFromInt(25), 0); err != nil {
		t.Fatalf("ConsumeHeat failed: %v", err)
	}
	if len(batch.HeatConsumptions) != 1 {
		t.Fatalf("Expected consumptions of one heat to merge, got %d records", len(batch.HeatConsumptions))
	}
	if !batch.HeatConsumptions[0].Quantity.Equal(decimal.NewFromInt(60)) {
		t.Errorf("Expected 60 consumed, got %s", batch.HeatConsumptions[0].Quantity)
	}
	if !heat.AvailableQuantity.Equal(decimal.NewFromInt(40)) {
		t.Errorf("Expected heat available 40, got %s", heat.AvailableQuantity)
	}

	if err := batch.ConsumeHeat(heat, decimal.Zero, 3); !apperr.Is(err, apperr.KindInvalidOperation) {
		t.Errorf("Expected pieces on weight heat to fail, got %v", err)
	}

	foreign, _ := NewWeightHeat(2, "H-X", decimal.NewFromInt(10), shiftStart)
	foreign.ID = 6
	if err := batch.ConsumeHeat(foreign, decimal.NewFromInt(1), 0); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("Expected cross-tenant heat to be invisible, got %v", err)
	}

	_ = batch.Start(shiftStart.Add(time.Minute), time.Time{})
	_ = batch.Complete(shiftStart.Add(time.Hour), 1)
	if err := batch.ConsumeHeat(heat, decimal.NewFromInt(1), 0); !apperr.Is(err, apperr.KindInvalidTransition) {
		t.Errorf("Expected completed batch to refuse heat, got %v", err)
	}
}

func TestStageBatch_AttributeHeat(t *testing.T) {
	batch := newForgeBatch(t, 58)
	_ = batch.Apply(shiftStart)
	heat, _ := NewWeightHeat(1, "H-001", decimal.NewFromInt(100), shiftStart)
	heat.ID = 5
	_ = batch.ConsumeHeat(heat, decimal.NewFromInt(60), 0)
	_ = batch.Start(shiftStart.Add(time.Minute), time.Time{})

	over := HeatAttribution{HeatID: 5, QuantityUsedInRejectedPieces: decimal.NewFromInt(50), QuantityReturned: decimal.NewFromInt(11)}
	if err := batch.AttributeHeat(heat, over); !apperr.Is(err, apperr.KindConservationViolation) {
		t.Fatalf("Expected over-attribution to fail, got %v", err)
	}

	attribution := HeatAttribution{
		HeatID:                        5,
		QuantityUsedInRejectedPieces:  decimal.RequireFromString("5.5"),
		QuantityUsedInOtherRejections: decimal.RequireFromString("2.25"),
		QuantityReturned:              decimal.NewFromInt(4),
	}
	if err := batch.AttributeHeat(heat, attribution); err != nil {
		t.Fatalf("AttributeHeat failed: %v", err)
	}

	// 100 - 60 - 2.25 + 4
	if !heat.AvailableQuantity.Equal(decimal.RequireFromString("41.75")) {
		t.Errorf("Expected heat available 41.75, got %s", heat.AvailableQuantity)
	}
	c := batch.HeatConsumptions[0]
	if !c.NetQuantity().Equal(decimal.RequireFromString("58.25")) {
		t.Errorf("Expected net quantity 58.25, got %s", c.NetQuantity())
	}
	if !c.UsableQuantity().Equal(decimal.RequireFromString("50.5")) {
		t.Errorf("Expected usable quantity 50.5, got %s", c.UsableQuantity())
	}

	if err := batch.AttributeHeat(heat, HeatAttribution{HeatID: 99}); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("Expected attribution to an unconsumed heat to fail, got %v", err)
	}
}

func TestStageBatch_AttributePieceHeatAtInt64Extremes(t *testing.T) {
	testCases := []struct {
		name     string
		rejected Pieces
		returned Pieces
		kind     apperr.Kind
	}{
		{"returned at max", 1, math.MaxInt64, apperr.KindConservationViolation},
		{"rejected at max", math.MaxInt64, 1, apperr.KindConservationViolation},
		{"both at max", math.MaxInt64, math.MaxInt64, apperr.KindConservationViolation},
		{"one over consumed", 30, 31, apperr.KindConservationViolation},
		{"negative returned", 0, -1, apperr.KindValidation},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			batch := newForgeBatch(t, 58)
			_ = batch.Apply(shiftStart)
			heat, _ := NewPieceHeat(1, "H-002", 100, shiftStart)
			heat.ID = 6
			if err := batch.ConsumeHeat(heat, decimal.Zero, 60); err != nil {
				t.Fatalf("ConsumeHeat failed: %v", err)
			}
			_ = batch.Start(shiftStart.Add(time.Minute), time.Time{})

			err := batch.AttributeHeat(heat, HeatAttribution{HeatID: 6, PiecesRejected: tc.rejected, PiecesReturned: tc.returned})
			if !apperr.Is(err, tc.kind) {
				t.Fatalf("Expected %s, got %v", tc.kind, err)
			}
			if heat.AvailablePiecesCount != 40 {
				t.Errorf("Expected heat untouched at 40 available, got %d", heat.AvailablePiecesCount)
			}
		})
	}

	batch := newForgeBatch(t, 58)
	_ = batch.Apply(shiftStart)
	heat, _ := NewPieceHeat(1, "H-002", 100, shiftStart)
	heat.ID = 6
	_ = batch.ConsumeHeat(heat, decimal.Zero, 60)
	_ = batch.Start(shiftStart.Add(time.Minute), time.Time{})
	if err := batch.AttributeHeat(heat, HeatAttribution{HeatID: 6, PiecesRejected: 20, PiecesReturned: 40}); err != nil {
		t.Fatalf("Expected attribution equal to consumed to pass: %v", err)
	}
	if heat.AvailablePiecesCount != 80 {
		t.Errorf("Expected heat available 80, got %d", heat.AvailablePiecesCount)
	}
}

func TestStageBatch_Delete(t *testing.T) {
	idle := newForgeBatch(t, 10)
	if err := idle.Delete(); !apperr.Is(err, apperr.KindInvalidTransition) {
		t.Errorf("Expected idle batch delete to fail, got %v", err)
	}

	started := newForgeBatch(t, 10)
	_ = started.Apply(shiftStart)
	_ = started.Start(shiftStart.Add(time.Minute), time.Time{})
	if err := started.Delete(); !apperr.Is(err, apperr.KindInvalidTransition) {
		t.Errorf("Expected in-progress batch delete to fail, got %v", err)
	}
	if started.Deleted {
		t.Error("Expected in-progress batch to stay live")
	}

	applied := newForgeBatch(t, 10)
	_ = applied.Apply(shiftStart)
	if err := applied.Delete(); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !applied.Deleted || applied.Status != BatchApplied {
		t.Errorf("Expected deleted applied batch, got %s deleted=%t", applied.Status, applied.Deleted)
	}
	if err := applied.Delete(); !apperr.Is(err, apperr.KindInvalidTransition) {
		t.Errorf("Expected second delete to fail, got %v", err)
	}
}

func TestStageBatch_CloneIsIndependent(t *testing.T) {
	batch, _ := NewStageBatch(1, StageInspection, BatchFresh, "I-1", 1, 1, 10,
		InspectionPayload{Inspector: "R. Iyer", GaugeReadings: map[string]string{"od": "42.01"}})
	batch.HeatConsumptions = []HeatConsumption{{HeatID: 1}}

	clone := batch.Clone()
	clone.HeatConsumptions[0].HeatID = 2
	clone.Payload.(InspectionPayload).GaugeReadings["od"] = "41.00"

	if batch.HeatConsumptions[0].HeatID != 1 {
		t.Error("Expected clone consumptions to be independent")
	}
	if batch.Payload.(InspectionPayload).GaugeReadings["od"] != "42.01" {
		t.Error("Expected clone gauge readings to be independent")
	}
}
