package memory

import (
	"context"

	"github.com/vsinha/forgetrace/pkg/domain/entities"
	"github.com/vsinha/forgetrace/pkg/domain/repositories"
)

// HeatRepository provides in-memory heat storage within one transaction
type HeatRepository struct {
	tx *tx
}

// Verify interface compliance
var _ repositories.HeatRepository = (*HeatRepository)(nil)

// Get returns a copy of a heat visible to tenant
func (r *HeatRepository) Get(_ context.Context, tenant entities.TenantID, id entities.HeatID) (*entities.Heat, error) {
	heat, ok := r.tx.heats[id]
	if !ok {
		s := r.tx.store
		s.mu.Lock()
		heat, ok = s.heats[id]
		s.mu.Unlock()
	}
	if !ok || heat.Tenant != tenant || heat.Deleted {
		return nil, repositories.ErrNotFound
	}
	return heat.Clone(), nil
}

// Create assigns an id and stages the heat for commit
func (r *HeatRepository) Create(_ context.Context, heat *entities.Heat) error {
	s := r.tx.store
	s.mu.Lock()
	s.nextHeatID++
	heat.ID = s.nextHeatID
	s.mu.Unlock()

	heat.Version = 1
	r.tx.heats[heat.ID] = heat.Clone()
	return nil
}

// Update stages a versioned write of heat
func (r *HeatRepository) Update(_ context.Context, heat *entities.Heat) error {
	if staged, ok := r.tx.heats[heat.ID]; ok {
		if staged.Version != heat.Version {
			return repositories.ErrConcurrentModification
		}
	} else {
		s := r.tx.store
		id := heat.ID
		current := func() (int64, bool) {
			stored, ok := s.heats[id]
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
		if version != heat.Version {
			return repositories.ErrConcurrentModification
		}
		r.tx.expect(heat.Version, current)
	}

	heat.Version++
	r.tx.heats[heat.ID] = heat.Clone()
	return nil
}
