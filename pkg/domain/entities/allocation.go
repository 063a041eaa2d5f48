package entities

import (
	"fmt"
	"math"
	"time"

	"github.com/vsinha/forgetrace/pkg/domain/apperr"
)

// PieceOutcome is what an operator reports when a batch ends
type PieceOutcome struct {
	Completed Pieces
	Rejected  Pieces
	Rework    Pieces
}

// Total returns every piece the batch physically produced. Counts are
// expected non-negative; the sum saturates instead of wrapping.
func (o PieceOutcome) Total() Pieces {
	return sumPieces(o.Completed, o.Rejected, o.Rework)
}

// sumPieces adds non-negative counts, saturating at math.MaxInt64
func sumPieces(counts ...Pieces) Pieces {
	var total Pieces
	for _, n := range counts {
		if n > math.MaxInt64-total {
			return math.MaxInt64
		}
		total += n
	}
	return total
}

// Validate checks the outcome against a batch ceiling
func (o PieceOutcome) Validate(batch BatchID, ceiling Pieces) error {
	if o.Completed < 0 || o.Rejected < 0 || o.Rework < 0 {
		return apperr.Validation(fmt.Sprintf("batch %d reported negative piece counts", batch))
	}
	if o.Total() > ceiling {
		return apperr.ConservationViolation(int64(batch), int64(o.Total()), int64(ceiling))
	}
	return nil
}

// ProcessedItemAllocation is the piece ledger entry a completed batch
// produces. AvailablePiecesCount gates the next stage; the rework pool gates
// rework batches at the same stage.
type ProcessedItemAllocation struct {
	ID                                  AllocationID
	Tenant                              TenantID
	ItemID                              ItemID
	BatchID                             BatchID
	Stage                               StageKind
	BatchType                           BatchType
	InitialPiecesCount                  Pieces
	ActualPiecesCount                   Pieces
	CompletedPiecesCount                Pieces
	AvailablePiecesCount                Pieces
	RejectedPiecesCount                 Pieces
	ReworkPiecesCount                   Pieces
	ReworkPiecesCountAvailableForRework Pieces
	WorkflowIdentifier                  string
	ItemWorkflowID                      string
	PreviousOperationProcessedItemID    AllocationID
	CreatedAt                           time.Time
	Version                             int64
	Deleted                             bool
}

// NewProcessedItemAllocation applies the conservation rules to a batch outcome.
// Only completed pieces become available downstream; rework pieces seed the
// rework pool; the chain pointer is the batch's upstream allocation.
func NewProcessedItemAllocation(batch *StageBatch, outcome PieceOutcome, createdAt time.Time) (*ProcessedItemAllocation, error) {
	if err := outcome.Validate(batch.ID, batch.InitialPiecesCount); err != nil {
		return nil, err
	}
	return &ProcessedItemAllocation{
		Tenant:                              batch.Tenant,
		ItemID:                              batch.ItemID,
		BatchID:                             batch.ID,
		Stage:                               batch.Kind,
		BatchType:                           batch.Type,
		InitialPiecesCount:                  batch.InitialPiecesCount,
		ActualPiecesCount:                   outcome.Total(),
		CompletedPiecesCount:                outcome.Completed,
		AvailablePiecesCount:                outcome.Completed,
		RejectedPiecesCount:                 outcome.Rejected,
		ReworkPiecesCount:                   outcome.Rework,
		ReworkPiecesCountAvailableForRework: outcome.Rework,
		WorkflowIdentifier:                  batch.WorkflowIdentifier,
		ItemWorkflowID:                      batch.ItemWorkflowID,
		PreviousOperationProcessedItemID:    batch.UpstreamAllocationID,
		CreatedAt:                           createdAt,
	}, nil
}

// ConsumeAvailable takes pieces for a downstream batch
func (a *ProcessedItemAllocation) ConsumeAvailable(pieces Pieces) error {
	if pieces <= 0 {
		return apperr.Validation(fmt.Sprintf("requested pieces must be positive, got %d", pieces))
	}
	if pieces > a.AvailablePiecesCount {
		return apperr.InsufficientAvailability("allocation", int64(a.ID), int64(pieces), int64(a.AvailablePiecesCount))
	}
	a.AvailablePiecesCount -= pieces
	return nil
}

// ReworkPool returns the rework pieces still eligible for a rework batch
func (a *ProcessedItemAllocation) ReworkPool() Pieces {
	return a.ReworkPiecesCountAvailableForRework
}

// ConsumeRework takes pieces from the rework pool
func (a *ProcessedItemAllocation) ConsumeRework(pieces Pieces) error {
	if pieces <= 0 {
		return apperr.Validation(fmt.Sprintf("requested rework pieces must be positive, got %d", pieces))
	}
	if !a.Stage.AllowsRework() {
		return apperr.InvalidOperation(fmt.Sprintf("%s does not accept rework batches", a.Stage))
	}
	if pieces > a.ReworkPiecesCountAvailableForRework {
		return apperr.InsufficientAvailability("rework_pool", int64(a.ID), int64(pieces), int64(a.ReworkPiecesCountAvailableForRework))
	}
	a.ReworkPiecesCountAvailableForRework -= pieces
	return nil
}

// RestoreAvailable gives back pieces a deleted downstream batch had drawn.
// Available never rises above the completed count.
func (a *ProcessedItemAllocation) RestoreAvailable(pieces Pieces) error {
	if pieces <= 0 {
		return apperr.Validation(fmt.Sprintf("restored pieces must be positive, got %d", pieces))
	}
	if pieces > a.CompletedPiecesCount-a.AvailablePiecesCount {
		return apperr.ConservationViolation(int64(a.BatchID), int64(sumPieces(a.AvailablePiecesCount, pieces)), int64(a.CompletedPiecesCount))
	}
	a.AvailablePiecesCount += pieces
	return nil
}

// RestoreRework gives back pieces a deleted rework batch had taken from the pool
func (a *ProcessedItemAllocation) RestoreRework(pieces Pieces) error {
	if pieces <= 0 {
		return apperr.Validation(fmt.Sprintf("restored rework pieces must be positive, got %d", pieces))
	}
	if pieces > a.ReworkPiecesCount-a.ReworkPiecesCountAvailableForRework {
		return apperr.ConservationViolation(int64(a.BatchID), int64(sumPieces(a.ReworkPiecesCountAvailableForRework, pieces)), int64(a.ReworkPiecesCount))
	}
	a.ReworkPiecesCountAvailableForRework += pieces
	return nil
}

// PiecesWithDisposition returns the count split out under a disposition
func (a *ProcessedItemAllocation) PiecesWithDisposition(d PieceDisposition) Pieces {
	if d == DispositionRework {
		return a.ReworkPiecesCount
	}
	return a.RejectedPiecesCount
}

// CheckConservation verifies the allocation's internal invariants
func (a *ProcessedItemAllocation) CheckConservation() error {
	if a.CompletedPiecesCount < 0 || a.RejectedPiecesCount < 0 || a.ReworkPiecesCount < 0 {
		return fmt.Errorf("allocation %d: negative piece counts", a.ID)
	}
	if a.ActualPiecesCount != sumPieces(a.CompletedPiecesCount, a.RejectedPiecesCount, a.ReworkPiecesCount) {
		return fmt.Errorf("allocation %d: actual %d != completed %d + rejected %d + rework %d",
			a.ID, a.ActualPiecesCount, a.CompletedPiecesCount, a.RejectedPiecesCount, a.ReworkPiecesCount)
	}
	if a.ActualPiecesCount > a.InitialPiecesCount {
		return fmt.Errorf("allocation %d: actual %d exceeds initial %d", a.ID, a.ActualPiecesCount, a.InitialPiecesCount)
	}
	if a.AvailablePiecesCount < 0 || a.AvailablePiecesCount > a.CompletedPiecesCount {
		return fmt.Errorf("allocation %d: available %d outside [0, %d]", a.ID, a.AvailablePiecesCount, a.CompletedPiecesCount)
	}
	if a.ReworkPiecesCountAvailableForRework < 0 || a.ReworkPiecesCountAvailableForRework > a.ReworkPiecesCount {
		return fmt.Errorf("allocation %d: rework pool %d outside [0, %d]", a.ID, a.ReworkPiecesCountAvailableForRework, a.ReworkPiecesCount)
	}
	return nil
}

// Clone returns a copy safe to mutate independently
func (a *ProcessedItemAllocation) Clone() *ProcessedItemAllocation {
	c := *a
	return &c
}
