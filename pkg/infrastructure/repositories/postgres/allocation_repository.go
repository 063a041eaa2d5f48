package postgres

import (
	"context"
	"database/sql"

	"github.com/vsinha/forgetrace/pkg/domain/entities"
	"github.com/vsinha/forgetrace/pkg/domain/repositories"
)

// AllocationRepository stores processed item allocations
type AllocationRepository struct {
	q *sql.Tx
}

// Verify interface compliance
var _ repositories.AllocationRepository = (*AllocationRepository)(nil)

const allocationColumns = `id, tenant_id, item_id, batch_id, stage, batch_type,
       initial_pieces_count, actual_pieces_count, completed_pieces_count, available_pieces_count,
       rejected_pieces_count, rework_pieces_count, rework_pieces_count_available_for_rework,
       workflow_identifier, item_workflow_id, previous_operation_processed_item_id, created_at, version`

// Get returns an allocation visible to tenant
func (r *AllocationRepository) Get(ctx context.Context, tenant entities.TenantID, id entities.AllocationID) (*entities.ProcessedItemAllocation, error) {
	const query = `
SELECT ` + allocationColumns + `
FROM processed_item_allocations
WHERE id = $1 AND tenant_id = $2 AND NOT deleted`
	allocation, err := scanAllocation(r.q.QueryRowContext(ctx, query, int64(id), int64(tenant)))
	if err != nil {
		return nil, notFound(err)
	}
	return allocation, nil
}

// Create inserts allocation and assigns its id
func (r *AllocationRepository) Create(ctx context.Context, a *entities.ProcessedItemAllocation) error {
	const query = `
INSERT INTO processed_item_allocations (
	tenant_id, item_id, batch_id, stage, batch_type,
	initial_pieces_count, actual_pieces_count, completed_pieces_count, available_pieces_count,
	rejected_pieces_count, rework_pieces_count, rework_pieces_count_available_for_rework,
	workflow_identifier, item_workflow_id, previous_operation_processed_item_id, created_at, version
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, 1)
RETURNING id`
	var id int64
	err := r.q.QueryRowContext(ctx, query,
		int64(a.Tenant),
		int64(a.ItemID),
		int64(a.BatchID),
		int64(a.Stage),
		int64(a.BatchType),
		int64(a.InitialPiecesCount),
		int64(a.ActualPiecesCount),
		int64(a.CompletedPiecesCount),
		int64(a.AvailablePiecesCount),
		int64(a.RejectedPiecesCount),
		int64(a.ReworkPiecesCount),
		int64(a.ReworkPiecesCountAvailableForRework),
		a.WorkflowIdentifier,
		a.ItemWorkflowID,
		int64(a.PreviousOperationProcessedItemID),
		a.CreatedAt,
	).Scan(&id)
	if err != nil {
		return err
	}
	a.ID = entities.AllocationID(id)
	a.Version = 1
	return nil
}

// Update writes the mutable counters if the row is unchanged since it was read
func (r *AllocationRepository) Update(ctx context.Context, a *entities.ProcessedItemAllocation) error {
	const query = `
UPDATE processed_item_allocations
SET available_pieces_count = $1, rework_pieces_count_available_for_rework = $2, version = version + 1
WHERE id = $3 AND tenant_id = $4 AND version = $5`
	err := checkVersioned(r.q.ExecContext(ctx, query,
		int64(a.AvailablePiecesCount),
		int64(a.ReworkPiecesCountAvailableForRework),
		int64(a.ID),
		int64(a.Tenant),
		a.Version,
	))
	if err != nil {
		return err
	}
	a.Version++
	return nil
}

// ListAvailable returns allocations of stage with pieces left, oldest first
func (r *AllocationRepository) ListAvailable(ctx context.Context, tenant entities.TenantID, stage entities.StageKind) ([]*entities.ProcessedItemAllocation, error) {
	const query = `
SELECT ` + allocationColumns + `
FROM processed_item_allocations
WHERE tenant_id = $1 AND stage = $2 AND available_pieces_count > 0 AND NOT deleted
ORDER BY id`
	rows, err := r.q.QueryContext(ctx, query, int64(tenant), int64(stage))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var allocations []*entities.ProcessedItemAllocation
	for rows.Next() {
		allocation, err := scanAllocation(rows)
		if err != nil {
			return nil, err
		}
		allocations = append(allocations, allocation)
	}
	return allocations, rows.Err()
}

func scanAllocation(row scanner) (*entities.ProcessedItemAllocation, error) {
	var (
		a                                     entities.ProcessedItemAllocation
		id, tenant, item, batch               int64
		stage, batchType                      int64
		initial, actual, completed, available int64
		rejected, rework, reworkPool          int64
		previous                              int64
	)
	err := row.Scan(
		&id,
		&tenant,
		&item,
		&batch,
		&stage,
		&batchType,
		&initial,
		&actual,
		&completed,
		&available,
		&rejected,
		&rework,
		&reworkPool,
		&a.WorkflowIdentifier,
		&a.ItemWorkflowID,
		&previous,
		&a.CreatedAt,
		&a.Version,
	)
	if err != nil {
		return nil, err
	}
	a.ID = entities.AllocationID(id)
	a.Tenant = entities.TenantID(tenant)
	a.ItemID = entities.ItemID(item)
	a.BatchID = entities.BatchID(batch)
	a.Stage = entities.StageKind(stage)
	a.BatchType = entities.BatchType(batchType)
	a.InitialPiecesCount = entities.Pieces(initial)
	a.ActualPiecesCount = entities.Pieces(actual)
	a.CompletedPiecesCount = entities.Pieces(completed)
	a.AvailablePiecesCount = entities.Pieces(available)
	a.RejectedPiecesCount = entities.Pieces(rejected)
	a.ReworkPiecesCount = entities.Pieces(rework)
	a.ReworkPiecesCountAvailableForRework = entities.Pieces(reworkPool)
	a.PreviousOperationProcessedItemID = entities.AllocationID(previous)
	return &a, nil
}
