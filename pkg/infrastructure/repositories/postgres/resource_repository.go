package postgres

import (
	"context"
	"database/sql"

	"github.com/vsinha/forgetrace/pkg/domain/entities"
	"github.com/vsinha/forgetrace/pkg/domain/repositories"
)

// ResourceRepository stores resources in the resources table
type ResourceRepository struct {
	q *sql.Tx
}

// Verify interface compliance
var _ repositories.ResourceRepository = (*ResourceRepository)(nil)

// Get returns a resource visible to tenant
func (r *ResourceRepository) Get(ctx context.Context, tenant entities.TenantID, id entities.ResourceID) (*entities.Resource, error) {
	const query = `
SELECT id, tenant_id, name, kind, status, current_batch_id, last_released_at, version
FROM resources
WHERE id = $1 AND tenant_id = $2 AND NOT deleted`
	var (
		resource                               entities.Resource
		rid, rtenant, kind, status, currentBID int64
		released                               sql.NullTime
	)
	err := r.q.QueryRowContext(ctx, query, int64(id), int64(tenant)).Scan(
		&rid, &rtenant, &resource.Name, &kind, &status, &currentBID, &released, &resource.Version,
	)
	if err != nil {
		return nil, notFound(err)
	}
	resource.ID = entities.ResourceID(rid)
	resource.Tenant = entities.TenantID(rtenant)
	resource.Kind = entities.ResourceKind(kind)
	resource.Status = entities.ResourceStatus(status)
	resource.CurrentBatchID = entities.BatchID(currentBID)
	resource.LastReleasedAt = fromNullTime(released)
	return &resource, nil
}

// Create inserts resource and assigns its id
func (r *ResourceRepository) Create(ctx context.Context, resource *entities.Resource) error {
	const query = `
INSERT INTO resources (tenant_id, name, kind, status, current_batch_id, last_released_at, version)
VALUES ($1, $2, $3, $4, $5, $6, 1)
RETURNING id`
	var id int64
	err := r.q.QueryRowContext(ctx, query,
		int64(resource.Tenant),
		resource.Name,
		int64(resource.Kind),
		int64(resource.Status),
		int64(resource.CurrentBatchID),
		nullTime(resource.LastReleasedAt),
	).Scan(&id)
	if err != nil {
		return err
	}
	resource.ID = entities.ResourceID(id)
	resource.Version = 1
	return nil
}

// Update writes the resource's occupancy if the row is unchanged since it was read
func (r *ResourceRepository) Update(ctx context.Context, resource *entities.Resource) error {
	const query = `
UPDATE resources
SET status = $1, current_batch_id = $2, last_released_at = $3, version = version + 1
WHERE id = $4 AND tenant_id = $5 AND version = $6`
	err := checkVersioned(r.q.ExecContext(ctx, query,
		int64(resource.Status),
		int64(resource.CurrentBatchID),
		nullTime(resource.LastReleasedAt),
		int64(resource.ID),
		int64(resource.Tenant),
		resource.Version,
	))
	if err != nil {
		return err
	}
	resource.Version++
	return nil
}
