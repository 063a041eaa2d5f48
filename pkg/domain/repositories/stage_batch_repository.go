package repositories

import (
	"context"

	"github.com/vsinha/forgetrace/pkg/domain/entities"
)

// StageBatchRepository provides access to stage batches of every kind
type StageBatchRepository interface {
	Get(ctx context.Context, tenant entities.TenantID, id entities.BatchID) (*entities.StageBatch, error)
	Create(ctx context.Context, batch *entities.StageBatch) error
	// Update persists batch if its Version still matches the stored one and bumps Version.
	Update(ctx context.Context, batch *entities.StageBatch) error
	// ListByUpstream returns batches fed by an allocation, rework batches included.
	ListByUpstream(ctx context.Context, tenant entities.TenantID, upstream entities.AllocationID) ([]*entities.StageBatch, error)
}
