package services

import (
	"errors"
	"fmt"

	"github.com/vsinha/forgetrace/pkg/domain/apperr"
	"github.com/vsinha/forgetrace/pkg/domain/entities"
)

// ErrBrokenChain marks a traceability chain that cycles, dangles or skips a stage
var ErrBrokenChain = errors.New("broken traceability chain")

// ChainSource resolves the allocations and batches a chain walk visits.
// Lookups are tenant-scoped by the implementation.
type ChainSource interface {
	Allocation(id entities.AllocationID) (*entities.ProcessedItemAllocation, error)
	Batch(id entities.BatchID) (*entities.StageBatch, error)
}

// ChainLink is one stop on the way from the raw heats to a stage
type ChainLink struct {
	Allocation *entities.ProcessedItemAllocation
	Batch      *entities.StageBatch
	// ReworkHop is true when this link re-entered its stage from the rework pool
	ReworkHop bool
}

// HeatUse ties a heat consumption to the batch and stage that made it
type HeatUse struct {
	BatchID     entities.BatchID
	Stage       entities.StageKind
	Consumption entities.HeatConsumption
}

// TraceabilityChain lists every allocation from the forge run to the requested
// one, oldest first, plus every heat those batches drew on
type TraceabilityChain struct {
	Links              []ChainLink
	Heats              []HeatUse
	WorkflowIdentifier string
	ItemWorkflowID     string
}

// Current returns the allocation the walk started from
func (c *TraceabilityChain) Current() *entities.ProcessedItemAllocation {
	if len(c.Links) == 0 {
		return nil
	}
	return c.Links[len(c.Links)-1].Allocation
}

// Stages returns the stage of each link in chain order
func (c *TraceabilityChain) Stages() []entities.StageKind {
	stages := make([]entities.StageKind, len(c.Links))
	for i, link := range c.Links {
		stages[i] = link.Allocation.Stage
	}
	return stages
}

// TraceabilityWalker follows PreviousOperationProcessedItemID pointers back to
// the forge and checks every hop on the way
type TraceabilityWalker struct{}

// NewTraceabilityWalker creates a new traceability walker
func NewTraceabilityWalker() *TraceabilityWalker {
	return &TraceabilityWalker{}
}

// Walk builds the chain ending at from. A missing start is NotFound; any broken
// link past the start wraps ErrBrokenChain.
func (w *TraceabilityWalker) Walk(source ChainSource, from entities.AllocationID) (*TraceabilityChain, error) {
	current, err := source.Allocation(from)
	if err != nil {
		return nil, err
	}

	visited := map[entities.AllocationID]bool{}
	reversed := make([]ChainLink, 0, len(entities.Stages))

	for {
		if visited[current.ID] {
			return nil, w.broken(from, "cycle through allocation %d", current.ID)
		}
		visited[current.ID] = true

		batch, err := source.Batch(current.BatchID)
		if err != nil {
			return nil, w.broken(from, "allocation %d produced by missing batch %d: %v", current.ID, current.BatchID, err)
		}
		reversed = append(reversed, ChainLink{
			Allocation: current,
			Batch:      batch,
			ReworkHop:  current.BatchType == entities.BatchRework,
		})

		prevID := current.PreviousOperationProcessedItemID
		if prevID == 0 {
			if !current.Stage.IsFirst() || current.BatchType == entities.BatchRework {
				return nil, w.broken(from, "%s allocation %d has no upstream allocation", current.Stage, current.ID)
			}
			break
		}

		previous, err := source.Allocation(prevID)
		if err != nil {
			return nil, w.broken(from, "allocation %d points at missing allocation %d: %v", current.ID, prevID, err)
		}
		if err := w.checkHop(current, previous); err != nil {
			return nil, w.broken(from, "%v", err)
		}
		current = previous
	}

	chain := &TraceabilityChain{Links: make([]ChainLink, len(reversed))}
	for i, link := range reversed {
		chain.Links[len(reversed)-1-i] = link
	}
	for _, link := range chain.Links {
		for _, consumption := range link.Batch.HeatConsumptions {
			chain.Heats = append(chain.Heats, HeatUse{
				BatchID:     link.Batch.ID,
				Stage:       link.Batch.Kind,
				Consumption: consumption,
			})
		}
	}
	last := chain.Current()
	chain.WorkflowIdentifier = last.WorkflowIdentifier
	chain.ItemWorkflowID = last.ItemWorkflowID
	return chain, nil
}

// checkHop verifies the stage relationship between an allocation and its predecessor
func (w *TraceabilityWalker) checkHop(current, previous *entities.ProcessedItemAllocation) error {
	if current.ItemID != previous.ItemID {
		return fmt.Errorf("allocation %d is item %d but its upstream %d is item %d",
			current.ID, current.ItemID, previous.ID, previous.ItemID)
	}
	if current.BatchType == entities.BatchRework {
		if previous.Stage != current.Stage {
			return fmt.Errorf("rework allocation %d at %s points at %s allocation %d",
				current.ID, current.Stage, previous.Stage, previous.ID)
		}
		return nil
	}
	want, ok := current.Stage.Previous()
	if !ok || previous.Stage != want {
		return fmt.Errorf("%s allocation %d points at %s allocation %d",
			current.Stage, current.ID, previous.Stage, previous.ID)
	}
	return nil
}

func (w *TraceabilityWalker) broken(from entities.AllocationID, format string, args ...interface{}) error {
	err := fmt.Errorf("%w: %s", ErrBrokenChain, fmt.Sprintf(format, args...))
	return apperr.Internal(fmt.Sprintf("traceability chain for allocation %d is broken", from), err)
}
