package repositories

import (
	"context"

	"github.com/vsinha/forgetrace/pkg/domain/entities"
)

// HeatRepository provides access to raw-material heats
type HeatRepository interface {
	Get(ctx context.Context, tenant entities.TenantID, id entities.HeatID) (*entities.Heat, error)
	Create(ctx context.Context, heat *entities.Heat) error
	// Update persists heat if its Version still matches the stored one and bumps Version.
	Update(ctx context.Context, heat *entities.Heat) error
}
