package memory

import (
	"context"
	"sync"

	"github.com/vsinha/forgetrace/pkg/domain/entities"
	"github.com/vsinha/forgetrace/pkg/domain/repositories"
)

// Store is an in-memory, optimistically locked store. Each WithinTx call works
// on private copies; commit re-checks every version it read and applies all
// writes or none.
type Store struct {
	mu          sync.Mutex
	heats       map[entities.HeatID]*entities.Heat
	batches     map[entities.BatchID]*entities.StageBatch
	allocations map[entities.AllocationID]*entities.ProcessedItemAllocation
	resources   map[entities.ResourceID]*entities.Resource

	nextHeatID       entities.HeatID
	nextBatchID      entities.BatchID
	nextAllocationID entities.AllocationID
	nextResourceID   entities.ResourceID

	// beforeCommit runs after fn and before the commit lock is taken. Tests use it
	// to interleave transactions.
	beforeCommit func()
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{
		heats:       make(map[entities.HeatID]*entities.Heat),
		batches:     make(map[entities.BatchID]*entities.StageBatch),
		allocations: make(map[entities.AllocationID]*entities.ProcessedItemAllocation),
		resources:   make(map[entities.ResourceID]*entities.Resource),
	}
}

// Verify interface compliance
var _ repositories.Store = (*Store)(nil)

// WithinTx runs fn in a unit of work and commits its writes
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repositories.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := newTx(s)
	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.beforeCommit != nil {
		s.beforeCommit()
	}
	return t.commit()
}

// versionCheck remembers the version a transaction based a write on
type versionCheck struct {
	current  func() (int64, bool)
	expected int64
}

type tx struct {
	store *Store

	heats       map[entities.HeatID]*entities.Heat
	batches     map[entities.BatchID]*entities.StageBatch
	allocations map[entities.AllocationID]*entities.ProcessedItemAllocation
	resources   map[entities.ResourceID]*entities.Resource

	checks []versionCheck
}

func newTx(s *Store) *tx {
	return &tx{
		store:       s,
		heats:       make(map[entities.HeatID]*entities.Heat),
		batches:     make(map[entities.BatchID]*entities.StageBatch),
		allocations: make(map[entities.AllocationID]*entities.ProcessedItemAllocation),
		resources:   make(map[entities.ResourceID]*entities.Resource),
	}
}

func (t *tx) Heats() repositories.HeatRepository             { return &HeatRepository{tx: t} }
func (t *tx) Batches() repositories.StageBatchRepository     { return &StageBatchRepository{tx: t} }
func (t *tx) Allocations() repositories.AllocationRepository { return &AllocationRepository{tx: t} }
func (t *tx) Resources() repositories.ResourceRepository     { return &ResourceRepository{tx: t} }

// expect registers an optimistic check that fails the commit when the stored
// version moved away from expected
func (t *tx) expect(expected int64, current func() (int64, bool)) {
	t.checks = append(t.checks, versionCheck{current: current, expected: expected})
}

func (t *tx) commit() error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, check := range t.checks {
		version, ok := check.current()
		if !ok || version != check.expected {
			return repositories.ErrConcurrentModification
		}
	}

	for id, heat := range t.heats {
		s.heats[id] = heat
	}
	for id, batch := range t.batches {
		s.batches[id] = batch
	}
	for id, allocation := range t.allocations {
		s.allocations[id] = allocation
	}
	for id, resource := range t.resources {
		s.resources[id] = resource
	}
	return nil
}
