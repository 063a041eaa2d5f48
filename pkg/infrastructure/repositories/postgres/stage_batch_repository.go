package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/vsinha/forgetrace/pkg/domain/entities"
	"github.com/vsinha/forgetrace/pkg/domain/repositories"
)

// StageBatchRepository stores batches in stage_batches and their heat lines
// in heat_consumptions
type StageBatchRepository struct {
	q *sql.Tx
}

// Verify interface compliance
var _ repositories.StageBatchRepository = (*StageBatchRepository)(nil)

const batchColumns = `id, tenant_id, stage, batch_type, number, resource_id, item_id, status,
       applied_at, start_at, end_at, upstream_allocation_id, initial_pieces,
       workflow_identifier, item_workflow_id, payload, allocation_id, version`

// Get returns a batch visible to tenant with its heat consumptions
func (r *StageBatchRepository) Get(ctx context.Context, tenant entities.TenantID, id entities.BatchID) (*entities.StageBatch, error) {
	const query = `
SELECT ` + batchColumns + `
FROM stage_batches
WHERE id = $1 AND tenant_id = $2 AND NOT deleted`
	batch, err := scanBatch(r.q.QueryRowContext(ctx, query, int64(id), int64(tenant)))
	if err != nil {
		return nil, notFound(err)
	}
	if err := r.loadConsumptions(ctx, batch); err != nil {
		return nil, err
	}
	return batch, nil
}

// Create inserts batch and its heat consumptions
func (r *StageBatchRepository) Create(ctx context.Context, batch *entities.StageBatch) error {
	const query = `
INSERT INTO stage_batches (tenant_id, stage, batch_type, number, resource_id, item_id, status,
                           applied_at, start_at, end_at, upstream_allocation_id, initial_pieces,
                           workflow_identifier, item_workflow_id, payload, allocation_id, version)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, 1)
RETURNING id`
	payload, err := encodePayload(batch)
	if err != nil {
		return err
	}
	var id int64
	err = r.q.QueryRowContext(ctx, query,
		int64(batch.Tenant),
		int64(batch.Kind),
		int64(batch.Type),
		batch.Number,
		int64(batch.ResourceID),
		int64(batch.ItemID),
		int64(batch.Status),
		nullTime(batch.AppliedAt),
		nullTime(batch.StartAt),
		nullTime(batch.EndAt),
		int64(batch.UpstreamAllocationID),
		int64(batch.InitialPiecesCount),
		batch.WorkflowIdentifier,
		batch.ItemWorkflowID,
		payload,
		int64(batch.AllocationID),
	).Scan(&id)
	if err != nil {
		return err
	}
	batch.ID = entities.BatchID(id)
	batch.Version = 1
	return r.insertConsumptions(ctx, batch)
}

// Update writes batch if the row is unchanged since it was read. Heat lines are
// rewritten because end-of-batch attribution amends them in place.
func (r *StageBatchRepository) Update(ctx context.Context, batch *entities.StageBatch) error {
	const query = `
UPDATE stage_batches
SET status = $1, applied_at = $2, start_at = $3, end_at = $4, payload = $5, allocation_id = $6,
    deleted = $7, version = version + 1
WHERE id = $8 AND tenant_id = $9 AND version = $10`
	payload, err := encodePayload(batch)
	if err != nil {
		return err
	}
	err = checkVersioned(r.q.ExecContext(ctx, query,
		int64(batch.Status),
		nullTime(batch.AppliedAt),
		nullTime(batch.StartAt),
		nullTime(batch.EndAt),
		payload,
		int64(batch.AllocationID),
		batch.Deleted,
		int64(batch.ID),
		int64(batch.Tenant),
		batch.Version,
	))
	if err != nil {
		return err
	}
	batch.Version++

	if _, err := r.q.ExecContext(ctx, `DELETE FROM heat_consumptions WHERE batch_id = $1`, int64(batch.ID)); err != nil {
		return err
	}
	return r.insertConsumptions(ctx, batch)
}

// ListByUpstream returns the batches fed by an allocation, oldest first
func (r *StageBatchRepository) ListByUpstream(ctx context.Context, tenant entities.TenantID, upstream entities.AllocationID) ([]*entities.StageBatch, error) {
	const query = `
SELECT ` + batchColumns + `
FROM stage_batches
WHERE tenant_id = $1 AND upstream_allocation_id = $2 AND NOT deleted
ORDER BY id`
	rows, err := r.q.QueryContext(ctx, query, int64(tenant), int64(upstream))
	if err != nil {
		return nil, err
	}

	var batches []*entities.StageBatch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		batches = append(batches, batch)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// The connection is free again once rows is closed
	for _, batch := range batches {
		if err := r.loadConsumptions(ctx, batch); err != nil {
			return nil, err
		}
	}
	return batches, nil
}

func (r *StageBatchRepository) loadConsumptions(ctx context.Context, batch *entities.StageBatch) error {
	const query = `
SELECT heat_id, quantity, pieces, quantity_used_in_rejected_pieces, quantity_used_in_other_rejections,
       pieces_rejected, quantity_returned, pieces_returned
FROM heat_consumptions
WHERE batch_id = $1
ORDER BY position`
	rows, err := r.q.QueryContext(ctx, query, int64(batch.ID))
	if err != nil {
		return err
	}
	defer rows.Close()

	batch.HeatConsumptions = nil
	for rows.Next() {
		var (
			c                                  entities.HeatConsumption
			heatID, pieces, rejected, returned int64
		)
		err := rows.Scan(
			&heatID,
			&c.Quantity,
			&pieces,
			&c.QuantityUsedInRejectedPieces,
			&c.QuantityUsedInOtherRejections,
			&rejected,
			&c.QuantityReturned,
			&returned,
		)
		if err != nil {
			return err
		}
		c.HeatID = entities.HeatID(heatID)
		c.Pieces = entities.Pieces(pieces)
		c.PiecesRejected = entities.Pieces(rejected)
		c.PiecesReturned = entities.Pieces(returned)
		batch.HeatConsumptions = append(batch.HeatConsumptions, c)
	}
	return rows.Err()
}

func (r *StageBatchRepository) insertConsumptions(ctx context.Context, batch *entities.StageBatch) error {
	const query = `
INSERT INTO heat_consumptions (batch_id, position, heat_id, quantity, pieces,
                               quantity_used_in_rejected_pieces, quantity_used_in_other_rejections,
                               pieces_rejected, quantity_returned, pieces_returned)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	for i, c := range batch.HeatConsumptions {
		_, err := r.q.ExecContext(ctx, query,
			int64(batch.ID),
			i,
			int64(c.HeatID),
			c.Quantity,
			int64(c.Pieces),
			c.QuantityUsedInRejectedPieces,
			c.QuantityUsedInOtherRejections,
			int64(c.PiecesRejected),
			c.QuantityReturned,
			int64(c.PiecesReturned),
		)
		if err != nil {
			return fmt.Errorf("insert heat consumption %d of batch %d: %w", i, batch.ID, err)
		}
	}
	return nil
}

func encodePayload(batch *entities.StageBatch) (string, error) {
	if batch.Payload == nil {
		return "{}", nil
	}
	data, err := json.Marshal(batch.Payload)
	if err != nil {
		return "", fmt.Errorf("encode %s payload: %w", batch.Kind, err)
	}
	return string(data), nil
}

func scanBatch(row scanner) (*entities.StageBatch, error) {
	var (
		batch                         entities.StageBatch
		id, tenant, stage, batchType  int64
		resource, item, status        int64
		upstream, initial, allocation int64
		appliedAt, startAt, endAt     sql.NullTime
		payload                       []byte
	)
	err := row.Scan(
		&id,
		&tenant,
		&stage,
		&batchType,
		&batch.Number,
		&resource,
		&item,
		&status,
		&appliedAt,
		&startAt,
		&endAt,
		&upstream,
		&initial,
		&batch.WorkflowIdentifier,
		&batch.ItemWorkflowID,
		&payload,
		&allocation,
		&batch.Version,
	)
	if err != nil {
		return nil, err
	}
	batch.ID = entities.BatchID(id)
	batch.Tenant = entities.TenantID(tenant)
	batch.Kind = entities.StageKind(stage)
	batch.Type = entities.BatchType(batchType)
	batch.ResourceID = entities.ResourceID(resource)
	batch.ItemID = entities.ItemID(item)
	batch.Status = entities.BatchStatus(status)
	batch.AppliedAt = fromNullTime(appliedAt)
	batch.StartAt = fromNullTime(startAt)
	batch.EndAt = fromNullTime(endAt)
	batch.UpstreamAllocationID = entities.AllocationID(upstream)
	batch.InitialPiecesCount = entities.Pieces(initial)
	batch.AllocationID = entities.AllocationID(allocation)

	batch.Payload, err = entities.DecodePayload(batch.Kind, payload)
	if err != nil {
		return nil, err
	}
	return &batch, nil
}
