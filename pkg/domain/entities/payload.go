package entities

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// StagePayload holds the stage-specific fields of a StageBatch
type StagePayload interface {
	Stage() StageKind
}

// ForgePayload describes a forging run
type ForgePayload struct {
	ForgingTemperatureC int    `json:"forging_temperature_c,omitempty"`
	Equipment           string `json:"equipment,omitempty"` // hammer or press used
	DiesetNumber        string `json:"dieset_number,omitempty"`
}

// HeatTreatmentPayload describes a furnace charge
type HeatTreatmentPayload struct {
	FurnaceTemperatureC int             `json:"furnace_temperature_c,omitempty"`
	SoakMinutes         int             `json:"soak_minutes,omitempty"`
	QuenchMedium        string          `json:"quench_medium,omitempty"`
	ChargeWeight        decimal.Decimal `json:"charge_weight"`
}

// MachiningPayload describes a machining run
type MachiningPayload struct {
	Operation  string `json:"operation,omitempty"`
	CNCProgram string `json:"cnc_program,omitempty"`
}

// InspectionPayload describes an inspection run
type InspectionPayload struct {
	Inspector     string            `json:"inspector,omitempty"`
	GaugeReadings map[string]string `json:"gauge_readings,omitempty"`
}

// DispatchPayload describes a dispatch
type DispatchPayload struct {
	InvoiceNumber     string `json:"invoice_number,omitempty"`
	PackagingType     string `json:"packaging_type,omitempty"`
	PackagingQuantity int    `json:"packaging_quantity,omitempty"`
}

func (ForgePayload) Stage() StageKind         { return StageForge }
func (HeatTreatmentPayload) Stage() StageKind { return StageHeatTreatment }
func (MachiningPayload) Stage() StageKind     { return StageMachining }
func (InspectionPayload) Stage() StageKind    { return StageInspection }
func (DispatchPayload) Stage() StageKind      { return StageDispatch }

// EmptyPayload returns the zero payload for a stage
func EmptyPayload(stage StageKind) StagePayload {
	switch stage {
	case StageForge:
		return ForgePayload{}
	case StageHeatTreatment:
		return HeatTreatmentPayload{}
	case StageMachining:
		return MachiningPayload{}
	case StageInspection:
		return InspectionPayload{}
	default:
		return DispatchPayload{}
	}
}

// DecodePayload decodes a JSON payload into the concrete type for stage.
// An empty document yields the stage's zero payload.
func DecodePayload(stage StageKind, data []byte) (StagePayload, error) {
	if len(data) == 0 || string(data) == "null" {
		return EmptyPayload(stage), nil
	}
	var (
		payload StagePayload
		err     error
	)
	switch stage {
	case StageForge:
		var p ForgePayload
		err = json.Unmarshal(data, &p)
		payload = p
	case StageHeatTreatment:
		var p HeatTreatmentPayload
		err = json.Unmarshal(data, &p)
		payload = p
	case StageMachining:
		var p MachiningPayload
		err = json.Unmarshal(data, &p)
		payload = p
	case StageInspection:
		var p InspectionPayload
		err = json.Unmarshal(data, &p)
		payload = p
	case StageDispatch:
		var p DispatchPayload
		err = json.Unmarshal(data, &p)
		payload = p
	default:
		return nil, fmt.Errorf("unknown stage %d", stage)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", stage, err)
	}
	return payload, nil
}
