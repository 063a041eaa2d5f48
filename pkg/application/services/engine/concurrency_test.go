package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vsinha/forgetrace/pkg/application/dto"
	"github.com/vsinha/forgetrace/pkg/domain/apperr"
	"github.com/vsinha/forgetrace/pkg/domain/entities"
	"github.com/vsinha/forgetrace/pkg/domain/repositories"
	"github.com/vsinha/forgetrace/pkg/infrastructure/logger"
	testhelpers "github.com/vsinha/forgetrace/pkg/infrastructure/testing"
)

// rendezvousStore holds the first n transactions after their work and before
// their commit until all n have read, forcing them to race on stale state
type rendezvousStore struct {
	repositories.Store
	n       int32
	entered int32
	ready   sync.WaitGroup
}

func newRendezvousStore(inner repositories.Store, n int) *rendezvousStore {
	s := &rendezvousStore{Store: inner, n: int32(n)}
	s.ready.Add(n)
	return s
}

func (s *rendezvousStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repositories.Tx) error) error {
	if atomic.AddInt32(&s.entered, 1) > s.n {
		return s.Store.WithinTx(ctx, fn)
	}
	return s.Store.WithinTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		err := fn(ctx, tx)
		s.ready.Done()
		s.ready.Wait()
		return err
	})
}

type retryLimit int

func (r retryLimit) GetMaxConflictRetries() int { return int(r) }

// outcomes runs fn on two goroutines and returns their errors
func outcomes(t *testing.T, fn func(i int) error) []error {
	t.Helper()
	errs := make([]error, 2)
	var g errgroup.Group
	for i := 0; i < 2; i++ {
		i := i
		g.Go(func() error {
			errs[i] = fn(i)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

func createSixtyKg(e *Engine, f *testhelpers.ShopFixture, line int) error {
	_, err := e.CreateStageBatch(context.Background(), tenant, dto.CreateStageBatchCommand{
		Stage:           entities.StageForge,
		ResourceID:      f.ForgeLines[line],
		ItemID:          11,
		Pieces:          58,
		HeatAllocations: []dto.HeatAllocation{{HeatID: f.WeightHeat, Quantity: kg("60")}},
	})
	return err
}

func TestEngine_ScenarioE_ConcurrentCreatesCannotOverdrawHeat(t *testing.T) {
	store, f := testhelpers.NewForgeShop(tenant)
	e := NewEngine(newRendezvousStore(store, 2), nil, logger.Discard(), nil)

	errs := outcomes(t, func(i int) error { return createSixtyKg(e, f, i) })

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case apperr.Is(err, apperr.KindInsufficientInventory), apperr.Is(err, apperr.KindConcurrentModification):
		default:
			t.Errorf("Unexpected error kind %s: %v", apperr.GetKind(err), err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("Expected exactly one create to succeed, got %d (%v)", succeeded, errs)
	}

	heat, _ := e.GetHeat(context.Background(), tenant, f.WeightHeat)
	if !heat.AvailableQuantity.Equal(kg("40")) {
		t.Errorf("Expected 40.00 kg left, got %s", heat.AvailableQuantity)
	}
}

func TestEngine_ScenarioE_RetryRechecksFreshQuantity(t *testing.T) {
	store, f := testhelpers.NewForgeShop(tenant)
	e := NewEngine(newRendezvousStore(store, 2), nil, logger.Discard(), retryLimit(3))

	errs := outcomes(t, func(i int) error { return createSixtyKg(e, f, i) })

	var insufficient int
	for _, err := range errs {
		if apperr.Is(err, apperr.KindInsufficientInventory) {
			insufficient++
		}
	}
	if insufficient != 1 {
		t.Errorf("Expected the retried loser to see the fresh 40 kg and fail as insufficient, got %v", errs)
	}
}

func TestEngine_ScenarioE_NoRetrySurfacesConflict(t *testing.T) {
	store, f := testhelpers.NewForgeShop(tenant)
	e := NewEngine(newRendezvousStore(store, 2), nil, logger.Discard(), retryLimit(0))

	errs := outcomes(t, func(i int) error { return createSixtyKg(e, f, i) })

	var conflicts, succeeded int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case apperr.Is(err, apperr.KindConcurrentModification):
			conflicts++
		}
	}
	if succeeded != 1 || conflicts != 1 {
		t.Errorf("Expected one success and one conflict, got %v", errs)
	}

	line, _ := e.GetResource(context.Background(), tenant, f.ForgeLines[0])
	other, _ := e.GetResource(context.Background(), tenant, f.ForgeLines[1])
	if (line.Status == entities.ResourceBusy) == (other.Status == entities.ResourceBusy) {
		t.Errorf("Expected exactly one forge line busy, got %s and %s", line.Status, other.Status)
	}
}

func TestEngine_ConcurrentDrawsCannotOverdrawAllocation(t *testing.T) {
	store, f := testhelpers.NewForgeShop(tenant)
	plain := NewEngine(store, nil, logger.Discard(), nil)
	forged := scenarioA(t, plain, f)

	e := NewEngine(newRendezvousStore(store, 2), nil, logger.Discard(), nil).
		WithClock(func() time.Time { return at(5) })
	errs := outcomes(t, func(int) error {
		_, err := e.ConsumeAllocation(context.Background(), tenant, forged.ID, 30)
		return err
	})

	failures := 0
	for _, err := range errs {
		if err != nil {
			if !apperr.Is(err, apperr.KindInsufficientAvailability) {
				t.Errorf("Expected InsufficientAvailability, got %v", err)
			}
			failures++
		}
	}
	if failures != 1 {
		t.Fatalf("Expected exactly one draw to fail, got %v", errs)
	}

	allocation, _ := plain.GetAllocation(context.Background(), tenant, forged.ID)
	if allocation.AvailablePiecesCount != 20 {
		t.Errorf("Expected 20 pieces left, got %d", allocation.AvailablePiecesCount)
	}
}
