package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vsinha/forgetrace/pkg/application/dto"
	"github.com/vsinha/forgetrace/pkg/application/services/engine"
	"github.com/vsinha/forgetrace/pkg/domain/entities"
	"github.com/vsinha/forgetrace/pkg/infrastructure/events"
	"github.com/vsinha/forgetrace/pkg/infrastructure/logger"
	"github.com/vsinha/forgetrace/pkg/infrastructure/repositories/memory"
	"github.com/vsinha/forgetrace/pkg/interfaces/cli/output"
)

// SimulateCommand pushes one lot through every stage on an in-memory shop
// and prints the traceability chain of what reached dispatch
type SimulateCommand struct {
	config Config
	log    *logger.Logger
}

// NewSimulateCommand creates a simulate command
func NewSimulateCommand(cfg Config, log *logger.Logger) *SimulateCommand {
	return &SimulateCommand{config: cfg, log: log}
}

// simulation tracks the shop clock and the resource picked for each stage
type simulation struct {
	engine    *engine.Engine
	tenant    entities.TenantID
	resources map[entities.ResourceKind]entities.ResourceID
	clock     time.Time
}

// tick advances the shop clock by an hour
func (s *simulation) tick() time.Time {
	s.clock = s.clock.Add(time.Hour)
	return s.clock
}

// Execute runs the simulation
func (c *SimulateCommand) Execute(ctx context.Context) error {
	if c.config.Help {
		c.showHelp()
		return nil
	}
	if err := c.validateInputs(); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	started := time.Now()

	eventStore := events.NewInMemoryEventStoreWithLogger(c.log)
	defer eventStore.Drain()
	if c.config.Verbose {
		if err := events.NewAuditLog(c.log).Subscribe(eventStore); err != nil {
			return fmt.Errorf("subscribe audit log: %w", err)
		}
	}
	sim := &simulation{
		engine:    engine.NewEngine(memory.NewStore(), eventStore, c.log, nil),
		tenant:    entities.TenantID(c.config.Tenant),
		resources: make(map[entities.ResourceKind]entities.ResourceID),
		clock:     time.Now().UTC().Truncate(time.Hour),
	}

	heat, err := c.setUpShop(ctx, sim)
	if err != nil {
		return err
	}

	last, err := c.runLot(ctx, sim, heat)
	if err != nil {
		return err
	}

	chain, err := sim.engine.GetTraceabilityChain(ctx, sim.tenant, last.ID)
	if err != nil {
		return fmt.Errorf("trace allocation %d: %w", last.ID, err)
	}
	return output.Generate(c.config.out(), chain, output.Config{
		Format:    c.config.Format,
		OutputDir: c.config.OutputDir,
		Verbose:   c.config.Verbose,
		Elapsed:   time.Since(started),
	})
}

func (c *SimulateCommand) validateInputs() error {
	if c.config.Tenant <= 0 {
		return fmt.Errorf("tenant must be positive, got %d", c.config.Tenant)
	}
	if c.config.Pieces <= 0 {
		return fmt.Errorf("pieces must be positive, got %d", c.config.Pieces)
	}
	if c.config.Rejects < 0 || c.config.Rework < 0 {
		return fmt.Errorf("rejects and rework cannot be negative")
	}
	if c.config.Rejects+c.config.Rework > c.config.Pieces {
		return fmt.Errorf("rejects (%d) and rework (%d) exceed the lot of %d pieces",
			c.config.Rejects, c.config.Rework, c.config.Pieces)
	}
	if _, err := decimal.NewFromString(c.config.Quantity); err != nil {
		return fmt.Errorf("invalid quantity %q", c.config.Quantity)
	}
	switch c.config.Format {
	case "text", "json", "svg":
	default:
		return fmt.Errorf("unsupported output format: %s", c.config.Format)
	}
	return nil
}

// setUpShop registers resources and heats from CSV, falling back to one
// resource per stage and a single weight-tracked heat. It returns the heat
// the lot is forged from.
func (c *SimulateCommand) setUpShop(ctx context.Context, sim *simulation) (*entities.Heat, error) {
	resources, heats, err := seedShop(ctx, sim.engine, sim.tenant, c.config)
	if err != nil {
		return nil, err
	}

	for _, r := range resources {
		if _, ok := sim.resources[r.Kind]; !ok {
			sim.resources[r.Kind] = r.ID
		}
	}
	for _, stage := range entities.Stages {
		kind := stage.ResourceKind()
		if _, ok := sim.resources[kind]; ok {
			continue
		}
		r, err := sim.engine.RegisterResource(ctx, sim.tenant, dto.RegisterResourceCommand{Name: kind.String() + " 1", Kind: kind})
		if err != nil {
			return nil, err
		}
		sim.resources[kind] = r.ID
	}

	if len(heats) > 0 {
		return heats[0], nil
	}
	return sim.engine.ReceiveHeat(ctx, sim.tenant, dto.ReceiveHeatCommand{
		Number:     "H-SIM-001",
		Mode:       entities.ByWeight,
		Quantity:   decimal.NewFromInt(100),
		ReceivedAt: sim.clock,
	})
}

// runLot forges the lot and moves it through every later stage. Inspection
// rejects and reworks as configured; reinspected pieces ship in a second
// dispatch, which is the allocation returned when there is one.
func (c *SimulateCommand) runLot(ctx context.Context, sim *simulation, heat *entities.Heat) (*entities.ProcessedItemAllocation, error) {
	pieces := entities.Pieces(c.config.Pieces)
	draw := dto.HeatAllocation{HeatID: heat.ID}
	if heat.Mode == entities.ByWeight {
		draw.Quantity = decimal.RequireFromString(c.config.Quantity)
	} else {
		draw.Pieces = pieces
	}

	var (
		upstream *entities.ProcessedItemAllocation
		rework   *entities.ProcessedItemAllocation
	)
	for _, stage := range entities.Stages {
		cmd := dto.CreateStageBatchCommand{
			Stage:      stage,
			ResourceID: sim.resources[stage.ResourceKind()],
			ItemID:     1,
			Number:     fmt.Sprintf("%s-001", stage),
			Pieces:     pieces,
			Payload:    entities.EmptyPayload(stage),
			AppliedAt:  sim.tick(),
		}
		if stage.IsFirst() {
			cmd.HeatAllocations = []dto.HeatAllocation{draw}
		} else {
			cmd.UpstreamAllocationID = upstream.ID
			cmd.Pieces = upstream.AvailablePiecesCount
		}

		outcome := entities.PieceOutcome{Completed: cmd.Pieces}
		if stage == entities.StageInspection {
			outcome.Rejected = entities.Pieces(c.config.Rejects)
			outcome.Rework = entities.Pieces(c.config.Rework)
			outcome.Completed = cmd.Pieces - outcome.Rejected - outcome.Rework
		}

		allocation, err := c.runBatch(ctx, sim, cmd, outcome)
		if err != nil {
			return nil, err
		}
		upstream = allocation

		if stage == entities.StageInspection && outcome.Rework > 0 {
			rework, err = c.reinspect(ctx, sim, allocation, outcome.Rework)
			if err != nil {
				return nil, err
			}
		}
	}

	if rework == nil {
		return upstream, nil
	}
	return c.runBatch(ctx, sim, dto.CreateStageBatchCommand{
		Stage:                entities.StageDispatch,
		ResourceID:           sim.resources[entities.DispatchBay],
		ItemID:               1,
		Number:               "Dispatch-002",
		UpstreamAllocationID: rework.ID,
		Pieces:               rework.AvailablePiecesCount,
		Payload:              entities.DispatchPayload{},
		AppliedAt:            sim.tick(),
	}, entities.PieceOutcome{Completed: rework.AvailablePiecesCount})
}

func (c *SimulateCommand) runBatch(ctx context.Context, sim *simulation, cmd dto.CreateStageBatchCommand, outcome entities.PieceOutcome) (*entities.ProcessedItemAllocation, error) {
	batch, err := sim.engine.CreateStageBatch(ctx, sim.tenant, cmd)
	if err != nil {
		return nil, fmt.Errorf("create %s batch: %w", cmd.Stage, err)
	}
	return c.finish(ctx, sim, batch, outcome)
}

// reinspect runs the rework pool of an inspection allocation through the gauge again
func (c *SimulateCommand) reinspect(ctx context.Context, sim *simulation, source *entities.ProcessedItemAllocation, pieces entities.Pieces) (*entities.ProcessedItemAllocation, error) {
	batch, err := sim.engine.OpenReworkBatch(ctx, sim.tenant, dto.OpenReworkBatchCommand{
		AllocationID: source.ID,
		Pieces:       pieces,
		ResourceID:   sim.resources[entities.Gauge],
		Number:       "Inspection-RW-001",
		Payload:      entities.InspectionPayload{Inspector: "rework"},
		AppliedAt:    sim.tick(),
	})
	if err != nil {
		return nil, fmt.Errorf("open rework batch: %w", err)
	}
	return c.finish(ctx, sim, batch, entities.PieceOutcome{Completed: pieces})
}

func (c *SimulateCommand) finish(ctx context.Context, sim *simulation, batch *entities.StageBatch, outcome entities.PieceOutcome) (*entities.ProcessedItemAllocation, error) {
	if _, err := sim.engine.StartStageBatch(ctx, sim.tenant, batch.ID, sim.tick()); err != nil {
		return nil, fmt.Errorf("start %s batch %d: %w", batch.Kind, batch.ID, err)
	}
	allocation, err := sim.engine.EndStageBatch(ctx, sim.tenant, dto.EndStageBatchCommand{
		BatchID: batch.ID,
		EndAt:   sim.tick(),
		Outcome: outcome,
	})
	if err != nil {
		return nil, fmt.Errorf("end %s batch %d: %w", batch.Kind, batch.ID, err)
	}
	if c.config.Verbose {
		fmt.Fprintf(c.config.out(), "%-14s batch %-3d completed %-5d rejected %-5d rework %d\n",
			batch.Kind, batch.ID, outcome.Completed, outcome.Rejected, outcome.Rework)
	}
	return allocation, nil
}

// showHelp displays the help message
func (c *SimulateCommand) showHelp() {
	fmt.Fprintln(c.config.out(), `Usage: forgetrace simulate [flags]

Forges one lot, runs it through heat treatment, machining, inspection and
dispatch on an in-memory shop and prints its traceability chain.

Flags:
  -shop FILE        shop layout YAML (resources and heats)
  -heats FILE       heats CSV (number,mode,quantity,pieces,received_at)
  -resources FILE   resources CSV (name,kind)
  -pieces N         pieces forged (default 100)
  -quantity KG      weight drawn from a weight-tracked heat (default 60)
  -rejects N        pieces rejected at inspection (default 2)
  -rework N         pieces sent back for reinspection (default 3)
  -format FORMAT    text, json or svg (default text)
  -output DIR       write the report to DIR instead of stdout
  -verbose          print every batch as it completes`)
}
