package repositories

import (
	"context"

	"github.com/vsinha/forgetrace/pkg/domain/entities"
)

// AllocationRepository provides access to processed item allocations
type AllocationRepository interface {
	Get(ctx context.Context, tenant entities.TenantID, id entities.AllocationID) (*entities.ProcessedItemAllocation, error)
	Create(ctx context.Context, allocation *entities.ProcessedItemAllocation) error
	// Update persists allocation if its Version still matches the stored one and bumps Version.
	Update(ctx context.Context, allocation *entities.ProcessedItemAllocation) error
	// ListAvailable returns allocations of a stage with pieces left for the next stage.
	ListAvailable(ctx context.Context, tenant entities.TenantID, stage entities.StageKind) ([]*entities.ProcessedItemAllocation, error)
}
