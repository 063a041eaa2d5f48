package repositories

import (
	"context"
	"errors"
)

// ErrConcurrentModification is returned when a versioned update loses a race:
// the stored version no longer matches the version the caller read.
var ErrConcurrentModification = errors.New("concurrent modification")

// ErrNotFound is returned when an entity does not exist, is soft-deleted or
// belongs to another tenant.
var ErrNotFound = errors.New("not found")

// Tx scopes repository access to one unit of work. Writes become visible to
// other transactions only when the surrounding WithinTx returns nil.
type Tx interface {
	Heats() HeatRepository
	Batches() StageBatchRepository
	Allocations() AllocationRepository
	Resources() ResourceRepository
}

// Store runs units of work. fn's error rolls the transaction back; a version
// conflict detected at commit surfaces as ErrConcurrentModification.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
