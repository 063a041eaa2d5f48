package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vsinha/forgetrace/pkg/domain/entities"
	"github.com/vsinha/forgetrace/pkg/domain/services"
)

// Config holds configuration for output generation
type Config struct {
	Format    string
	OutputDir string
	Verbose   bool
	Elapsed   time.Duration
}

// Generate writes chain to w, or to a file under OutputDir when one is set
func Generate(w io.Writer, chain *services.TraceabilityChain, config Config) error {
	var ext string
	switch config.Format {
	case "text":
		ext = "txt"
	case "json":
		ext = "json"
	case "svg":
		ext = "svg"
	default:
		return fmt.Errorf("unsupported output format: %s", config.Format)
	}

	if config.OutputDir != "" {
		if err := os.MkdirAll(config.OutputDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		filename := filepath.Join(config.OutputDir, "trace."+ext)
		file, err := os.Create(filename)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", filename, err)
		}
		defer file.Close()
		if config.Verbose {
			fmt.Fprintf(w, "Results saved to: %s\n", filename)
		}
		w = file
	}

	switch config.Format {
	case "json":
		return generateJSONOutput(w, chain)
	case "svg":
		_, err := io.WriteString(w, NewGanttChart(chain).GenerateSVG(chain))
		return err
	default:
		return generateTextOutput(w, chain, config)
	}
}

// generateTextOutput creates human-readable text output
func generateTextOutput(w io.Writer, chain *services.TraceabilityChain, config Config) error {
	fmt.Fprintf(w, "Traceability Chain\n")
	fmt.Fprintf(w, "==================\n\n")
	fmt.Fprintf(w, "Workflow:      %s\n", chain.WorkflowIdentifier)
	fmt.Fprintf(w, "Item workflow: %s\n", chain.ItemWorkflowID)
	if config.Elapsed > 0 {
		fmt.Fprintf(w, "Elapsed:       %v\n", config.Elapsed)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "%-14s %-7s %-7s %-10s %-10s %-10s %-8s\n",
		"Stage", "Batch", "Type", "Completed", "Available", "Rejected", "Rework")
	fmt.Fprintf(w, "%-14s %-7s %-7s %-10s %-10s %-10s %-8s\n",
		"--------------", "-------", "-------", "----------", "----------", "----------", "--------")
	for _, link := range chain.Links {
		a := link.Allocation
		fmt.Fprintf(w, "%-14s %-7d %-7s %-10d %-10d %-10d %-8d\n",
			a.Stage, a.BatchID, a.BatchType, a.CompletedPiecesCount, a.AvailablePiecesCount,
			a.RejectedPiecesCount, a.ReworkPiecesCount)
	}
	fmt.Fprintln(w)

	if len(chain.Heats) > 0 {
		fmt.Fprintf(w, "Heats:\n")
		fmt.Fprintf(w, "%-8s %-14s %-7s %-12s %-8s\n", "Heat", "Stage", "Batch", "Net Weight", "Pieces")
		fmt.Fprintf(w, "%-8s %-14s %-7s %-12s %-8s\n", "--------", "--------------", "-------", "------------", "--------")
		for _, use := range chain.Heats {
			c := use.Consumption
			fmt.Fprintf(w, "%-8d %-14s %-7d %-12s %-8d\n",
				c.HeatID, use.Stage, use.BatchID, c.NetQuantity().StringFixed(2), c.Pieces-c.PiecesReturned)
		}
		fmt.Fprintln(w)
	}
	return nil
}

type linkReport struct {
	Stage        string                `json:"stage"`
	BatchID      entities.BatchID      `json:"batch_id"`
	BatchType    string                `json:"batch_type"`
	AllocationID entities.AllocationID `json:"allocation_id"`
	Completed    entities.Pieces       `json:"completed"`
	Available    entities.Pieces       `json:"available"`
	Rejected     entities.Pieces       `json:"rejected"`
	Rework       entities.Pieces       `json:"rework"`
	ReworkHop    bool                  `json:"rework_hop"`
}

type heatReport struct {
	HeatID  entities.HeatID  `json:"heat_id"`
	Stage   string           `json:"stage"`
	BatchID entities.BatchID `json:"batch_id"`
	Net     decimal.Decimal  `json:"net_quantity"`
	Pieces  entities.Pieces  `json:"pieces"`
}

type traceReport struct {
	WorkflowIdentifier string       `json:"workflow_identifier"`
	ItemWorkflowID     string       `json:"item_workflow_id"`
	Links              []linkReport `json:"links"`
	Heats              []heatReport `json:"heats"`
}

// generateJSONOutput creates JSON output
func generateJSONOutput(w io.Writer, chain *services.TraceabilityChain) error {
	report := traceReport{
		WorkflowIdentifier: chain.WorkflowIdentifier,
		ItemWorkflowID:     chain.ItemWorkflowID,
		Links:              make([]linkReport, 0, len(chain.Links)),
		Heats:              make([]heatReport, 0, len(chain.Heats)),
	}
	for _, link := range chain.Links {
		a := link.Allocation
		report.Links = append(report.Links, linkReport{
			Stage:        a.Stage.String(),
			BatchID:      a.BatchID,
			BatchType:    a.BatchType.String(),
			AllocationID: a.ID,
			Completed:    a.CompletedPiecesCount,
			Available:    a.AvailablePiecesCount,
			Rejected:     a.RejectedPiecesCount,
			Rework:       a.ReworkPiecesCount,
			ReworkHop:    link.ReworkHop,
		})
	}
	for _, use := range chain.Heats {
		c := use.Consumption
		report.Heats = append(report.Heats, heatReport{
			HeatID:  c.HeatID,
			Stage:   use.Stage.String(),
			BatchID: use.BatchID,
			Net:     c.NetQuantity(),
			Pieces:  c.Pieces - c.PiecesReturned,
		})
	}

	jsonData, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(jsonData))
	return err
}
