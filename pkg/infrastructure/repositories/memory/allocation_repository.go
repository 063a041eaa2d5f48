package memory

import (
	"context"
	"sort"

	"github.com/vsinha/forgetrace/pkg/domain/entities"
	"github.com/vsinha/forgetrace/pkg/domain/repositories"
)

// AllocationRepository provides in-memory allocation storage within one transaction
type AllocationRepository struct {
	tx *tx
}

// Verify interface compliance
var _ repositories.AllocationRepository = (*AllocationRepository)(nil)

// Get returns a copy of an allocation visible to tenant
func (r *AllocationRepository) Get(_ context.Context, tenant entities.TenantID, id entities.AllocationID) (*entities.ProcessedItemAllocation, error) {
	allocation, ok := r.tx.allocations[id]
	if !ok {
		s := r.tx.store
		s.mu.Lock()
		allocation, ok = s.allocations[id]
		s.mu.Unlock()
	}
	if !ok || allocation.Tenant != tenant || allocation.Deleted {
		return nil, repositories.ErrNotFound
	}
	return allocation.Clone(), nil
}

// Create assigns an id and stages the allocation for commit
func (r *AllocationRepository) Create(_ context.Context, allocation *entities.ProcessedItemAllocation) error {
	s := r.tx.store
	s.mu.Lock()
	s.nextAllocationID++
	allocation.ID = s.nextAllocationID
	s.mu.Unlock()

	allocation.Version = 1
	r.tx.allocations[allocation.ID] = allocation.Clone()
	return nil
}

// Update stages a versioned write of allocation
func (r *AllocationRepository) Update(_ context.Context, allocation *entities.ProcessedItemAllocation) error {
	if staged, ok := r.tx.allocations[allocation.ID]; ok {
		if staged.Version != allocation.Version {
			return repositories.ErrConcurrentModification
		}
	} else {
		s := r.tx.store
		id := allocation.ID
		current := func() (int64, bool) {
			stored, ok := s.allocations[id]
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
		if version != allocation.Version {
			return repositories.ErrConcurrentModification
		}
		r.tx.expect(allocation.Version, current)
	}

	allocation.Version++
	r.tx.allocations[allocation.ID] = allocation.Clone()
	return nil
}

// ListAvailable returns allocations of a stage with pieces left, ordered by id
func (r *AllocationRepository) ListAvailable(_ context.Context, tenant entities.TenantID, stage entities.StageKind) ([]*entities.ProcessedItemAllocation, error) {
	visible := make(map[entities.AllocationID]*entities.ProcessedItemAllocation)

	s := r.tx.store
	s.mu.Lock()
	for id, allocation := range s.allocations {
		visible[id] = allocation
	}
	s.mu.Unlock()
	for id, allocation := range r.tx.allocations {
		visible[id] = allocation
	}

	var allocations []*entities.ProcessedItemAllocation
	for _, allocation := range visible {
		if allocation.Tenant == tenant && !allocation.Deleted && allocation.Stage == stage && allocation.AvailablePiecesCount > 0 {
			allocations = append(allocations, allocation.Clone())
		}
	}
	sort.Slice(allocations, func(i, j int) bool {
		return allocations[i].ID < allocations[j].ID
	})
	return allocations, nil
}
