package repositories

import (
	"context"

	"github.com/vsinha/forgetrace/pkg/domain/entities"
)

// ResourceRepository provides access to forge lines, furnaces, machine sets, gauges and dispatch bays
type ResourceRepository interface {
	Get(ctx context.Context, tenant entities.TenantID, id entities.ResourceID) (*entities.Resource, error)
	Create(ctx context.Context, resource *entities.Resource) error
	// Update persists resource if its Version still matches the stored one and bumps Version.
	Update(ctx context.Context, resource *entities.Resource) error
}
