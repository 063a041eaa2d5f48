// Package ledger moves raw material in and out of heats. Consumption and
// returns made on behalf of a stage batch run inside the caller's transaction;
// receipts and compensating returns run in their own.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vsinha/forgetrace/pkg/application/dto"
	"github.com/vsinha/forgetrace/pkg/application/services/shared"
	"github.com/vsinha/forgetrace/pkg/domain/apperr"
	"github.com/vsinha/forgetrace/pkg/domain/entities"
	"github.com/vsinha/forgetrace/pkg/domain/repositories"
	"github.com/vsinha/forgetrace/pkg/infrastructure/events"
	"github.com/vsinha/forgetrace/pkg/infrastructure/logger"
)

// Movement directions
const (
	MovementConsume = "consume"
	MovementReturn  = "return"
)

// Movement is one committed change to a heat's available amount
type Movement struct {
	Direction string
	Heat      entities.HeatID
	Batch     entities.BatchID
	Amount    string
	Available string
}

// LedgerService owns heat receipts, consumption and returns
type LedgerService struct {
	uow    *shared.UnitOfWork
	events events.EventStore
	log    *logger.Logger
	now    func() time.Time
}

// NewLedgerService creates a ledger over uow. eventStore may be nil.
func NewLedgerService(uow *shared.UnitOfWork, eventStore events.EventStore, log *logger.Logger) *LedgerService {
	if log == nil {
		log = logger.Discard()
	}
	return &LedgerService{uow: uow, events: eventStore, log: log, now: time.Now}
}

// WithClock replaces the wall clock, for deterministic timestamps
func (s *LedgerService) WithClock(now func() time.Time) *LedgerService {
	s.now = now
	return s
}

// ReceiveHeat records a new heat with everything available
func (s *LedgerService) ReceiveHeat(ctx context.Context, tenant entities.TenantID, cmd dto.ReceiveHeatCommand) (*entities.Heat, error) {
	receivedAt := cmd.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = s.now()
	}

	var (
		heat *entities.Heat
		err  error
	)
	switch cmd.Mode {
	case entities.ByWeight:
		if cmd.Pieces != 0 {
			return nil, apperr.InvalidOperation("a weight-tracked heat cannot be received in pieces").WithOp("ReceiveHeat")
		}
		heat, err = entities.NewWeightHeat(tenant, cmd.Number, cmd.Quantity, receivedAt)
	case entities.ByPieces:
		if !cmd.Quantity.IsZero() {
			return nil, apperr.InvalidOperation("a piece-tracked heat cannot be received by weight").WithOp("ReceiveHeat")
		}
		heat, err = entities.NewPieceHeat(tenant, cmd.Number, cmd.Pieces, receivedAt)
	default:
		return nil, apperr.Validation(fmt.Sprintf("unknown measurement mode %d", cmd.Mode)).WithOp("ReceiveHeat")
	}
	if err != nil {
		return nil, shared.Translate("ReceiveHeat", err)
	}

	var created *entities.Heat
	err = s.uow.Run(ctx, "ReceiveHeat", func(ctx context.Context, tx repositories.Tx) error {
		created = heat.Clone()
		return tx.Heats().Create(ctx, created)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithContext(ctx).Info("heat_received",
		"heat_id", int64(created.ID),
		"number", created.Number,
		"mode", created.Mode.String(),
		"total", amount(created, created.TotalQuantity, created.TotalPieces),
	)
	s.append(events.NewHeatReceivedEvent(created, s.now()))
	return created, nil
}

// ReturnHeat gives material back to a heat outside any batch. The return is
// capped at the heat's total.
func (s *LedgerService) ReturnHeat(ctx context.Context, tenant entities.TenantID, cmd dto.ReturnHeatCommand) (*entities.Heat, error) {
	var (
		returned *entities.Heat
		movement Movement
	)
	err := s.uow.Run(ctx, "ReturnHeat", func(ctx context.Context, tx repositories.Tx) error {
		heat, err := tx.Heats().Get(ctx, tenant, cmd.HeatID)
		if err != nil {
			return shared.NotFound(err, "heat", int64(cmd.HeatID))
		}
		switch heat.Mode {
		case entities.ByWeight:
			if cmd.Pieces != 0 {
				return apperr.InvalidOperation(fmt.Sprintf("heat %d is tracked by weight, not pieces", heat.ID))
			}
			err = heat.ReturnQuantity(cmd.Quantity)
		default:
			if !cmd.Quantity.IsZero() {
				return apperr.InvalidOperation(fmt.Sprintf("heat %d is tracked by pieces, not weight", heat.ID))
			}
			err = heat.ReturnPieces(cmd.Pieces)
		}
		if err != nil {
			return err
		}
		if err := tx.Heats().Update(ctx, heat); err != nil {
			return err
		}
		returned = heat
		movement = newMovement(MovementReturn, heat, 0, cmd.Quantity, cmd.Pieces)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Record(ctx, tenant, []Movement{movement})
	return returned, nil
}

// GetHeat returns a heat of tenant
func (s *LedgerService) GetHeat(ctx context.Context, tenant entities.TenantID, id entities.HeatID) (*entities.Heat, error) {
	var heat *entities.Heat
	err := s.uow.Run(ctx, "GetHeat", func(ctx context.Context, tx repositories.Tx) error {
		var err error
		heat, err = tx.Heats().Get(ctx, tenant, id)
		return shared.NotFound(err, "heat", int64(id))
	})
	return heat, err
}

// Consume draws every allocation for batch inside tx. Requests against the same
// heat accumulate into one consumption record.
func (s *LedgerService) Consume(
	ctx context.Context,
	tx repositories.Tx,
	batch *entities.StageBatch,
	allocations []dto.HeatAllocation,
) ([]Movement, error) {
	movements := make([]Movement, 0, len(allocations))
	for _, a := range allocations {
		heat, err := tx.Heats().Get(ctx, batch.Tenant, a.HeatID)
		if err != nil {
			return nil, shared.NotFound(err, "heat", int64(a.HeatID))
		}
		if err := batch.ConsumeHeat(heat, a.Quantity, a.Pieces); err != nil {
			return nil, err
		}
		if err := tx.Heats().Update(ctx, heat); err != nil {
			return nil, err
		}
		movements = append(movements, newMovement(MovementConsume, heat, batch.ID, a.Quantity, a.Pieces))
	}
	return movements, nil
}

// Attribute books the end-of-batch split of each consumed heat inside tx.
// Other rejections are drawn from the heat on top of the original consumption
// and returned material goes back to it.
func (s *LedgerService) Attribute(
	ctx context.Context,
	tx repositories.Tx,
	batch *entities.StageBatch,
	attributions []entities.HeatAttribution,
) ([]Movement, error) {
	seen := make(map[entities.HeatID]bool, len(attributions))
	var movements []Movement
	for _, a := range attributions {
		if seen[a.HeatID] {
			return nil, apperr.Validation(fmt.Sprintf("heat %d attributed twice for batch %d", a.HeatID, batch.ID))
		}
		seen[a.HeatID] = true

		heat, err := tx.Heats().Get(ctx, batch.Tenant, a.HeatID)
		if err != nil {
			return nil, shared.NotFound(err, "heat", int64(a.HeatID))
		}
		if err := batch.AttributeHeat(heat, a); err != nil {
			return nil, err
		}

		other := entities.RoundWeight(a.QuantityUsedInOtherRejections)
		returned := entities.RoundWeight(a.QuantityReturned)
		if !other.IsPositive() && !returned.IsPositive() && a.PiecesReturned == 0 {
			continue
		}
		if err := tx.Heats().Update(ctx, heat); err != nil {
			return nil, err
		}
		if other.IsPositive() {
			movements = append(movements, newMovement(MovementConsume, heat, batch.ID, other, 0))
		}
		if returned.IsPositive() || a.PiecesReturned > 0 {
			movements = append(movements, newMovement(MovementReturn, heat, batch.ID, returned, a.PiecesReturned))
		}
	}
	return movements, nil
}

// Release returns everything batch drew from its heats inside tx. It serves
// batches deleted before they started, so no attribution has been booked yet.
func (s *LedgerService) Release(ctx context.Context, tx repositories.Tx, batch *entities.StageBatch) ([]Movement, error) {
	movements := make([]Movement, 0, len(batch.HeatConsumptions))
	for _, c := range batch.HeatConsumptions {
		heat, err := tx.Heats().Get(ctx, batch.Tenant, c.HeatID)
		if err != nil {
			return nil, shared.NotFound(err, "heat", int64(c.HeatID))
		}
		switch heat.Mode {
		case entities.ByWeight:
			if !c.Quantity.IsPositive() {
				continue
			}
			err = heat.ReturnQuantity(c.Quantity)
		default:
			if c.Pieces <= 0 {
				continue
			}
			err = heat.ReturnPieces(c.Pieces)
		}
		if err != nil {
			return nil, err
		}
		if err := tx.Heats().Update(ctx, heat); err != nil {
			return nil, err
		}
		movements = append(movements, newMovement(MovementReturn, heat, batch.ID, c.Quantity, c.Pieces))
	}
	return movements, nil
}

// Record logs committed movements and appends them to the heat streams.
// Call it only after the transaction that made them has committed.
func (s *LedgerService) Record(ctx context.Context, tenant entities.TenantID, movements []Movement) {
	log := s.log.WithContext(ctx)
	at := s.now()
	for _, m := range movements {
		log.LedgerMovement(m.Direction, int64(m.Heat), m.Amount, m.Available)
		data := events.HeatMovement{HeatID: m.Heat, BatchID: m.Batch, Amount: m.Amount, Available: m.Available}
		if m.Direction == MovementReturn {
			s.append(events.NewHeatReturnedEvent(tenant, data, at))
		} else {
			s.append(events.NewHeatConsumedEvent(tenant, data, at))
		}
	}
}

func (s *LedgerService) append(event events.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.AppendEvent(event.StreamID(), event); err != nil {
		s.log.Error("event_append_failed", "event_type", event.Type(), "error", err.Error())
	}
}

func newMovement(direction string, heat *entities.Heat, batch entities.BatchID, quantity decimal.Decimal, pieces entities.Pieces) Movement {
	return Movement{
		Direction: direction,
		Heat:      heat.ID,
		Batch:     batch,
		Amount:    amount(heat, quantity, pieces),
		Available: amount(heat, heat.AvailableQuantity, heat.AvailablePiecesCount),
	}
}

// amount formats a weight or piece count in the heat's own unit
func amount(heat *entities.Heat, quantity decimal.Decimal, pieces entities.Pieces) string {
	if heat.Mode == entities.ByWeight {
		return entities.RoundWeight(quantity).StringFixed(entities.WeightPrecision)
	}
	return fmt.Sprintf("%d", pieces)
}
