package postgres

import (
	"context"
	"database/sql"

	"github.com/vsinha/forgetrace/pkg/domain/entities"
	"github.com/vsinha/forgetrace/pkg/domain/repositories"
)

// HeatRepository stores heats in the heats table
type HeatRepository struct {
	q *sql.Tx
}

// Verify interface compliance
var _ repositories.HeatRepository = (*HeatRepository)(nil)

const heatColumns = `id, tenant_id, number, mode, total_quantity, available_quantity,
       total_pieces, available_pieces, received_at, version`

// Get returns a heat visible to tenant
func (r *HeatRepository) Get(ctx context.Context, tenant entities.TenantID, id entities.HeatID) (*entities.Heat, error) {
	const query = `
SELECT ` + heatColumns + `
FROM heats
WHERE id = $1 AND tenant_id = $2 AND NOT deleted`
	heat, err := scanHeat(r.q.QueryRowContext(ctx, query, int64(id), int64(tenant)))
	if err != nil {
		return nil, notFound(err)
	}
	return heat, nil
}

// Create inserts heat and assigns its id
func (r *HeatRepository) Create(ctx context.Context, heat *entities.Heat) error {
	const query = `
INSERT INTO heats (tenant_id, number, mode, total_quantity, available_quantity,
                   total_pieces, available_pieces, received_at, version)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1)
RETURNING id`
	var id int64
	err := r.q.QueryRowContext(ctx, query,
		int64(heat.Tenant),
		heat.Number,
		int64(heat.Mode),
		heat.TotalQuantity,
		heat.AvailableQuantity,
		int64(heat.TotalPieces),
		int64(heat.AvailablePiecesCount),
		heat.ReceivedAt,
	).Scan(&id)
	if err != nil {
		return err
	}
	heat.ID = entities.HeatID(id)
	heat.Version = 1
	return nil
}

// Update writes heat's balances if nobody changed the row since it was read
func (r *HeatRepository) Update(ctx context.Context, heat *entities.Heat) error {
	const query = `
UPDATE heats
SET total_quantity = $1, available_quantity = $2, total_pieces = $3, available_pieces = $4,
    version = version + 1
WHERE id = $5 AND tenant_id = $6 AND version = $7`
	err := checkVersioned(r.q.ExecContext(ctx, query,
		heat.TotalQuantity,
		heat.AvailableQuantity,
		int64(heat.TotalPieces),
		int64(heat.AvailablePiecesCount),
		int64(heat.ID),
		int64(heat.Tenant),
		heat.Version,
	))
	if err != nil {
		return err
	}
	heat.Version++
	return nil
}

func scanHeat(row scanner) (*entities.Heat, error) {
	var (
		heat                     entities.Heat
		id, tenant, mode         int64
		totalPieces, availPieces int64
	)
	err := row.Scan(
		&id,
		&tenant,
		&heat.Number,
		&mode,
		&heat.TotalQuantity,
		&heat.AvailableQuantity,
		&totalPieces,
		&availPieces,
		&heat.ReceivedAt,
		&heat.Version,
	)
	if err != nil {
		return nil, err
	}
	heat.ID = entities.HeatID(id)
	heat.Tenant = entities.TenantID(tenant)
	heat.Mode = entities.MeasurementMode(mode)
	heat.TotalPieces = entities.Pieces(totalPieces)
	heat.AvailablePiecesCount = entities.Pieces(availPieces)
	return &heat, nil
}
