package entities

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vsinha/forgetrace/pkg/domain/apperr"
)

// WeightPrecision is the number of decimal places kept for heat weights (kg).
const WeightPrecision int32 = 2

// RoundWeight rounds a weight to WeightPrecision.
func RoundWeight(d decimal.Decimal) decimal.Decimal {
	return d.Round(WeightPrecision)
}

// MeasurementMode says whether a heat is tracked by weight or by piece count
type MeasurementMode int

const (
	ByWeight MeasurementMode = iota
	ByPieces
)

// String method for MeasurementMode enum
func (m MeasurementMode) String() string {
	switch m {
	case ByWeight:
		return "ByWeight"
	case ByPieces:
		return "ByPieces"
	default:
		return "Unknown"
	}
}

// ParseMeasurementMode parses the String form of a MeasurementMode
func ParseMeasurementMode(s string) (MeasurementMode, error) {
	switch s {
	case "ByWeight", "weight", "WEIGHT":
		return ByWeight, nil
	case "ByPieces", "pieces", "PIECES":
		return ByPieces, nil
	default:
		return ByWeight, fmt.Errorf("unknown measurement mode %q", s)
	}
}

// Heat is a traceable lot of raw metal. The mode is fixed at receipt; only the
// matching pair of total/available fields is meaningful.
type Heat struct {
	ID                   HeatID
	Tenant               TenantID
	Number               string
	Mode                 MeasurementMode
	TotalQuantity        decimal.Decimal
	AvailableQuantity    decimal.Decimal
	TotalPieces          Pieces
	AvailablePiecesCount Pieces
	ReceivedAt           time.Time
	Version              int64
	Deleted              bool
}

// NewWeightHeat creates a validated weight-tracked Heat with everything available
func NewWeightHeat(tenant TenantID, number string, total decimal.Decimal, receivedAt time.Time) (*Heat, error) {
	if number == "" {
		return nil, apperr.Validation("heat number cannot be empty")
	}
	total = RoundWeight(total)
	if !total.IsPositive() {
		return nil, apperr.Validation(fmt.Sprintf("heat quantity must be positive, got %s", total))
	}
	return &Heat{
		Tenant:            tenant,
		Number:            number,
		Mode:              ByWeight,
		TotalQuantity:     total,
		AvailableQuantity: total,
		ReceivedAt:        receivedAt,
	}, nil
}

// NewPieceHeat creates a validated piece-tracked Heat with everything available
func NewPieceHeat(tenant TenantID, number string, total Pieces, receivedAt time.Time) (*Heat, error) {
	if number == "" {
		return nil, apperr.Validation("heat number cannot be empty")
	}
	if total <= 0 {
		return nil, apperr.Validation(fmt.Sprintf("heat pieces must be positive, got %d", total))
	}
	return &Heat{
		Tenant:               tenant,
		Number:               number,
		Mode:                 ByPieces,
		TotalPieces:          total,
		AvailablePiecesCount: total,
		ReceivedAt:           receivedAt,
	}, nil
}

// ConsumeQuantity removes weight from a weight-tracked heat
func (h *Heat) ConsumeQuantity(quantity decimal.Decimal) error {
	if h.Mode != ByWeight {
		return apperr.InvalidOperation(fmt.Sprintf("heat %d is tracked by pieces, not weight", h.ID))
	}
	quantity = RoundWeight(quantity)
	if !quantity.IsPositive() {
		return apperr.Validation(fmt.Sprintf("consumed quantity must be positive, got %s", quantity))
	}
	remaining := RoundWeight(h.AvailableQuantity.Sub(quantity))
	if remaining.IsNegative() {
		return apperr.InsufficientInventory(int64(h.ID), quantity.StringFixed(WeightPrecision), h.AvailableQuantity.StringFixed(WeightPrecision))
	}
	h.AvailableQuantity = remaining
	return nil
}

// ReturnQuantity gives weight back to a weight-tracked heat, capped at the total
func (h *Heat) ReturnQuantity(quantity decimal.Decimal) error {
	if h.Mode != ByWeight {
		return apperr.InvalidOperation(fmt.Sprintf("heat %d is tracked by pieces, not weight", h.ID))
	}
	quantity = RoundWeight(quantity)
	if !quantity.IsPositive() {
		return apperr.Validation(fmt.Sprintf("returned quantity must be positive, got %s", quantity))
	}
	h.AvailableQuantity = decimal.Min(RoundWeight(h.AvailableQuantity.Add(quantity)), h.TotalQuantity)
	return nil
}

// ConsumePieces removes pieces from a piece-tracked heat
func (h *Heat) ConsumePieces(pieces Pieces) error {
	if h.Mode != ByPieces {
		return apperr.InvalidOperation(fmt.Sprintf("heat %d is tracked by weight, not pieces", h.ID))
	}
	if pieces <= 0 {
		return apperr.Validation(fmt.Sprintf("consumed pieces must be positive, got %d", pieces))
	}
	if pieces > h.AvailablePiecesCount {
		return apperr.InsufficientInventory(int64(h.ID), fmt.Sprintf("%d", pieces), fmt.Sprintf("%d", h.AvailablePiecesCount))
	}
	h.AvailablePiecesCount -= pieces
	return nil
}

// ReturnPieces gives pieces back to a piece-tracked heat, capped at the total
func (h *Heat) ReturnPieces(pieces Pieces) error {
	if h.Mode != ByPieces {
		return apperr.InvalidOperation(fmt.Sprintf("heat %d is tracked by weight, not pieces", h.ID))
	}
	if pieces <= 0 {
		return apperr.Validation(fmt.Sprintf("returned pieces must be positive, got %d", pieces))
	}
	if pieces >= h.TotalPieces-h.AvailablePiecesCount {
		h.AvailablePiecesCount = h.TotalPieces
		return nil
	}
	h.AvailablePiecesCount += pieces
	return nil
}

// Clone returns a copy safe to mutate independently
func (h *Heat) Clone() *Heat {
	c := *h
	return &c
}
