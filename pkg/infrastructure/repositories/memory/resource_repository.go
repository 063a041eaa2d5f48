package memory

import (
	"context"

	"github.com/vsinha/forgetrace/pkg/domain/entities"
	"github.com/vsinha/forgetrace/pkg/domain/repositories"
)

// ResourceRepository provides in-memory resource storage within one transaction
type ResourceRepository struct {
	tx *tx
}

// Verify interface compliance
var _ repositories.ResourceRepository = (*ResourceRepository)(nil)

// Get returns a copy of a resource visible to tenant
func (r *ResourceRepository) Get(_ context.Context, tenant entities.TenantID, id entities.ResourceID) (*entities.Resource, error) {
	resource, ok := r.tx.resources[id]
	if !ok {
		s := r.tx.store
		s.mu.Lock()
		resource, ok = s.resources[id]
		s.mu.Unlock()
	}
	if !ok || resource.Tenant != tenant || resource.Deleted {
		return nil, repositories.ErrNotFound
	}
	return resource.Clone(), nil
}

// Create assigns an id and stages the resource for commit
func (r *ResourceRepository) Create(_ context.Context, resource *entities.Resource) error {
	s := r.tx.store
	s.mu.Lock()
	s.nextResourceID++
	resource.ID = s.nextResourceID
	s.mu.Unlock()

	resource.Version = 1
	r.tx.resources[resource.ID] = resource.Clone()
	return nil
}

// Update stages a versioned write of resource
func (r *ResourceRepository) Update(_ context.Context, resource *entities.Resource) error {
	if staged, ok := r.tx.resources[resource.ID]; ok {
		if staged.Version != resource.Version {
			return repositories.ErrConcurrentModification
		}
	} else {
		s := r.tx.store
		id := resource.ID
		current := func() (int64, bool) {
			stored, ok := s.resources[id]
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
		if version != resource.Version {
			return repositories.ErrConcurrentModification
		}
		r.tx.expect(resource.Version, current)
	}

	resource.Version++
	r.tx.resources[resource.ID] = resource.Clone()
	return nil
}
