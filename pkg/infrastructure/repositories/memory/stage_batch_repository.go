package memory

import (
	"context"
	"sort"

	"github.com/vsinha/forgetrace/pkg/domain/entities"
	"github.com/vsinha/forgetrace/pkg/domain/repositories"
)

// StageBatchRepository provides in-memory stage batch storage within one transaction
type StageBatchRepository struct {
	tx *tx
}

// Verify interface compliance
var _ repositories.StageBatchRepository = (*StageBatchRepository)(nil)

// Get returns a copy of a batch visible to tenant
func (r *StageBatchRepository) Get(_ context.Context, tenant entities.TenantID, id entities.BatchID) (*entities.StageBatch, error) {
	batch, ok := r.tx.batches[id]
	if !ok {
		s := r.tx.store
		s.mu.Lock()
		batch, ok = s.batches[id]
		s.mu.Unlock()
	}
	if !ok || batch.Tenant != tenant || batch.Deleted {
		return nil, repositories.ErrNotFound
	}
	return batch.Clone(), nil
}

// Create assigns an id and stages the batch for commit
func (r *StageBatchRepository) Create(_ context.Context, batch *entities.StageBatch) error {
	s := r.tx.store
	s.mu.Lock()
	s.nextBatchID++
	batch.ID = s.nextBatchID
	s.mu.Unlock()

	batch.Version = 1
	r.tx.batches[batch.ID] = batch.Clone()
	return nil
}

// Update stages a versioned write of batch
func (r *StageBatchRepository) Update(_ context.Context, batch *entities.StageBatch) error {
	if staged, ok := r.tx.batches[batch.ID]; ok {
		if staged.Version != batch.Version {
			return repositories.ErrConcurrentModification
		}
	} else {
		s := r.tx.store
		id := batch.ID
		current := func() (int64, bool) {
			stored, ok := s.batches[id]
			if !ok {
				return 0, false
			}
			return stored.Version, true
		}
		s.mu.Lock()
		version, ok := current()
		s.mu.Unlock()
		if !ok {
			return repositories.ErrNotFound
		}
		if version != batch.Version {
			return repositories.ErrConcurrentModification
		}
		r.tx.expect(batch.Version, current)
	}

	batch.Version++
	r.tx.batches[batch.ID] = batch.Clone()
	return nil
}

// ListByUpstream returns batches fed by an allocation, ordered by id
func (r *StageBatchRepository) ListByUpstream(_ context.Context, tenant entities.TenantID, upstream entities.AllocationID) ([]*entities.StageBatch, error) {
	visible := make(map[entities.BatchID]*entities.StageBatch)

	s := r.tx.store
	s.mu.Lock()
	for id, batch := range s.batches {
		visible[id] = batch
	}
	s.mu.Unlock()
	for id, batch := range r.tx.batches {
		visible[id] = batch
	}

	var batches []*entities.StageBatch
	for _, batch := range visible {
		if batch.Tenant == tenant && !batch.Deleted && batch.UpstreamAllocationID == upstream {
			batches = append(batches, batch.Clone())
		}
	}
	sort.Slice(batches, func(i, j int) bool {
		return batches[i].ID < batches[j].ID
	})
	return batches, nil
}
