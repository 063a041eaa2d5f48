package testing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vsinha/forgetrace/pkg/domain/entities"
	"github.com/vsinha/forgetrace/pkg/domain/repositories"
	"github.com/vsinha/forgetrace/pkg/infrastructure/repositories/memory"
)

// ShopReceivedAt is when the fixture heats arrived
var ShopReceivedAt = time.Date(2025, 1, 6, 6, 0, 0, 0, time.UTC)

// ShopFixture names everything BuildForgeShopTestData seeded
type ShopFixture struct {
	Tenant entities.TenantID

	// WeightHeat holds 100 kg; PieceHeat holds 200 billets
	WeightHeat entities.HeatID
	PieceHeat  entities.HeatID

	// ForgeLines has two lines so concurrent forge batches do not collide on a resource
	ForgeLines  []entities.ResourceID
	Furnace     entities.ResourceID
	MachineSet  entities.ResourceID
	Gauge       entities.ResourceID
	DispatchBay entities.ResourceID
}

// ResourceFor returns the first fixture resource that serves stage
func (f *ShopFixture) ResourceFor(stage entities.StageKind) entities.ResourceID {
	switch stage {
	case entities.StageForge:
		return f.ForgeLines[0]
	case entities.StageHeatTreatment:
		return f.Furnace
	case entities.StageMachining:
		return f.MachineSet
	case entities.StageInspection:
		return f.Gauge
	default:
		return f.DispatchBay
	}
}

func mustCreateHeat(ctx context.Context, tx repositories.Tx, heat *entities.Heat, err error) entities.HeatID {
	if err != nil {
		panic(err)
	}
	if err := tx.Heats().Create(ctx, heat); err != nil {
		panic(err)
	}
	return heat.ID
}

func mustCreateResource(ctx context.Context, tx repositories.Tx, tenant entities.TenantID, name string, kind entities.ResourceKind) entities.ResourceID {
	resource, err := entities.NewResource(tenant, name, kind)
	if err != nil {
		panic(err)
	}
	if err := tx.Resources().Create(ctx, resource); err != nil {
		panic(err)
	}
	return resource.ID
}

// BuildForgeShopTestData seeds a store with two heats and a resource for every stage
func BuildForgeShopTestData(store *memory.Store, tenant entities.TenantID) *ShopFixture {
	f := &ShopFixture{Tenant: tenant}

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx repositories.Tx) error {
		weightHeat, err := entities.NewWeightHeat(tenant, "H-4140-001", decimal.NewFromInt(100), ShopReceivedAt)
		f.WeightHeat = mustCreateHeat(ctx, tx, weightHeat, err)
		pieceHeat, err := entities.NewPieceHeat(tenant, "B-1045-001", 200, ShopReceivedAt)
		f.PieceHeat = mustCreateHeat(ctx, tx, pieceHeat, err)

		f.ForgeLines = []entities.ResourceID{
			mustCreateResource(ctx, tx, tenant, "Hammer Line 1", entities.ForgeLine),
			mustCreateResource(ctx, tx, tenant, "Press Line 2", entities.ForgeLine),
		}
		f.Furnace = mustCreateResource(ctx, tx, tenant, "Furnace 1", entities.Furnace)
		f.MachineSet = mustCreateResource(ctx, tx, tenant, "VMC Cell 1", entities.MachineSet)
		f.Gauge = mustCreateResource(ctx, tx, tenant, "CMM 1", entities.Gauge)
		f.DispatchBay = mustCreateResource(ctx, tx, tenant, "Bay A", entities.DispatchBay)
		return nil
	})
	if err != nil {
		panic(err)
	}
	return f
}

// NewForgeShop returns a fresh memory store seeded by BuildForgeShopTestData
func NewForgeShop(tenant entities.TenantID) (*memory.Store, *ShopFixture) {
	store := memory.NewStore()
	return store, BuildForgeShopTestData(store, tenant)
}
