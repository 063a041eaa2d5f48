package entities

import "fmt"

// StageKind represents one sequential manufacturing operation
type StageKind int

const (
	StageForge StageKind = iota
	StageHeatTreatment
	StageMachining
	StageInspection
	StageDispatch
)

// Stages lists every stage in production order
var Stages = []StageKind{StageForge, StageHeatTreatment, StageMachining, StageInspection, StageDispatch}

// String method for StageKind enum
func (s StageKind) String() string {
	switch s {
	case StageForge:
		return "Forge"
	case StageHeatTreatment:
		return "HeatTreatment"
	case StageMachining:
		return "Machining"
	case StageInspection:
		return "Inspection"
	case StageDispatch:
		return "Dispatch"
	default:
		return "Unknown"
	}
}

// ParseStageKind parses the String form of a StageKind
func ParseStageKind(s string) (StageKind, error) {
	for _, stage := range Stages {
		if stage.String() == s {
			return stage, nil
		}
	}
	return StageForge, fmt.Errorf("unknown stage %q", s)
}

// Valid reports whether s is one of the known stages
func (s StageKind) Valid() bool {
	return s >= StageForge && s <= StageDispatch
}

// IsFirst reports whether the stage consumes heats directly with no upstream allocation
func (s StageKind) IsFirst() bool {
	return s == StageForge
}

// Previous returns the stage immediately before s. ok is false for Forge.
func (s StageKind) Previous() (StageKind, bool) {
	if s <= StageForge || s > StageDispatch {
		return s, false
	}
	return s - 1, true
}

// Next returns the stage immediately after s. ok is false for Dispatch.
func (s StageKind) Next() (StageKind, bool) {
	if s < StageForge || s >= StageDispatch {
		return s, false
	}
	return s + 1, true
}

// AllowsRework reports whether rework batches may be opened at this stage.
// Dispatched pieces have left the factory.
func (s StageKind) AllowsRework() bool {
	return s.Valid() && s != StageDispatch
}

// ResourceKind returns the kind of resource that runs batches of this stage
func (s StageKind) ResourceKind() ResourceKind {
	switch s {
	case StageForge:
		return ForgeLine
	case StageHeatTreatment:
		return Furnace
	case StageMachining:
		return MachineSet
	case StageInspection:
		return Gauge
	default:
		return DispatchBay
	}
}

// BatchStatus is the state of a stage batch
type BatchStatus int

const (
	BatchIdle BatchStatus = iota
	BatchApplied
	BatchInProgress
	BatchCompleted
)

// String method for BatchStatus enum
func (s BatchStatus) String() string {
	switch s {
	case BatchIdle:
		return "Idle"
	case BatchApplied:
		return "Applied"
	case BatchInProgress:
		return "InProgress"
	case BatchCompleted:
		return "Completed"
	default:
		return "Unknown"
	}
}

// CanTransitionTo reports whether next directly follows s
func (s BatchStatus) CanTransitionTo(next BatchStatus) bool {
	switch s {
	case BatchIdle:
		return next == BatchApplied
	case BatchApplied:
		return next == BatchInProgress
	case BatchInProgress:
		return next == BatchCompleted
	default:
		return false
	}
}

// BatchType distinguishes a fresh run from a rework run at the same stage
type BatchType int

const (
	BatchFresh BatchType = iota
	BatchRework
)

// String method for BatchType enum
func (t BatchType) String() string {
	switch t {
	case BatchFresh:
		return "Fresh"
	case BatchRework:
		return "Rework"
	default:
		return "Unknown"
	}
}

// PieceDisposition classifies pieces split out of a stage's good output
type PieceDisposition int

const (
	DispositionRejected PieceDisposition = iota
	DispositionRework
)

// String method for PieceDisposition enum
func (d PieceDisposition) String() string {
	switch d {
	case DispositionRejected:
		return "Rejected"
	case DispositionRework:
		return "Rework"
	default:
		return "Unknown"
	}
}

// Terminal reports whether pieces with this disposition leave production for good
func (d PieceDisposition) Terminal() bool {
	return d == DispositionRejected
}
