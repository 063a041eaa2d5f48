package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vsinha/forgetrace/pkg/infrastructure/logger"
)

func simulateConfig(out *bytes.Buffer) Config {
	return Config{
		Tenant:   1,
		Format:   "text",
		Pieces:   100,
		Quantity: "60",
		Rejects:  2,
		Rework:   3,
		Out:      out,
	}
}

func TestSimulateCommand_TextReport(t *testing.T) {
	var out bytes.Buffer
	cfg := simulateConfig(&out)
	cfg.Verbose = true

	if err := NewSimulateCommand(cfg, logger.Discard()).Execute(context.Background()); err != nil {
		t.Fatalf("Simulation failed: %v", err)
	}

	report := out.String()
	for _, want := range []string{"Traceability Chain", "Forge", "Inspection", "Dispatch"} {
		if !strings.Contains(report, want) {
			t.Errorf("Expected report to contain %q, got:\n%s", want, report)
		}
	}
}

func TestSimulateCommand_JSONTracesReworkedPieces(t *testing.T) {
	var out bytes.Buffer
	cfg := simulateConfig(&out)
	cfg.Format = "json"

	if err := NewSimulateCommand(cfg, logger.Discard()).Execute(context.Background()); err != nil {
		t.Fatalf("Simulation failed: %v", err)
	}

	var report struct {
		Links []struct {
			Stage     string `json:"stage"`
			BatchType string `json:"batch_type"`
			Completed int64  `json:"completed"`
		} `json:"links"`
		Heats []struct {
			HeatID int64 `json:"heat_id"`
		} `json:"heats"`
	}
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("Expected JSON report, got %q: %v", out.String(), err)
	}
	if len(report.Links) == 0 {
		t.Fatal("Expected chain links, got none")
	}

	first, last := report.Links[0], report.Links[len(report.Links)-1]
	if first.Stage != "Forge" {
		t.Errorf("Expected chain to start at Forge, got %s", first.Stage)
	}
	if last.Stage != "Dispatch" || last.Completed != 3 {
		t.Errorf("Expected dispatch of the 3 reworked pieces, got %s with %d", last.Stage, last.Completed)
	}

	reworked := false
	for _, link := range report.Links {
		if link.BatchType == "Rework" {
			reworked = true
		}
	}
	if !reworked {
		t.Error("Expected a rework link in the chain")
	}
	if len(report.Heats) != 1 {
		t.Errorf("Expected 1 heat in the chain, got %d", len(report.Heats))
	}
}

func TestSimulateCommand_WithoutReworkTracesMainLot(t *testing.T) {
	var out bytes.Buffer
	cfg := simulateConfig(&out)
	cfg.Format = "json"
	cfg.Rework = 0

	if err := NewSimulateCommand(cfg, logger.Discard()).Execute(context.Background()); err != nil {
		t.Fatalf("Simulation failed: %v", err)
	}

	var report struct {
		Links []struct {
			Completed int64 `json:"completed"`
		} `json:"links"`
	}
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("Expected JSON report: %v", err)
	}
	if len(report.Links) != 5 {
		t.Fatalf("Expected one link per stage, got %d", len(report.Links))
	}
	if got := report.Links[4].Completed; got != 98 {
		t.Errorf("Expected 98 pieces dispatched, got %d", got)
	}
}

func TestSimulateCommand_SeedsFromCSV(t *testing.T) {
	dir := t.TempDir()
	heats := filepath.Join(dir, "heats.csv")
	resources := filepath.Join(dir, "resources.csv")
	if err := os.WriteFile(heats, []byte("number,mode,quantity,pieces,received_at\nH-CSV-1,pieces,,500,2025-01-01\n"), 0o644); err != nil {
		t.Fatalf("Failed to write heats: %v", err)
	}
	if err := os.WriteFile(resources, []byte("name,kind\nPress 4,ForgeLine\n"), 0o644); err != nil {
		t.Fatalf("Failed to write resources: %v", err)
	}

	var out bytes.Buffer
	cfg := simulateConfig(&out)
	cfg.HeatsFile = heats
	cfg.ResourcesFile = resources
	cfg.OutputDir = dir
	cfg.Format = "svg"

	if err := NewSimulateCommand(cfg, logger.Discard()).Execute(context.Background()); err != nil {
		t.Fatalf("Simulation failed: %v", err)
	}
	svg, err := os.ReadFile(filepath.Join(dir, "trace.svg"))
	if err != nil {
		t.Fatalf("Expected trace.svg: %v", err)
	}
	if !bytes.Contains(svg, []byte("<svg")) {
		t.Error("Expected an SVG document")
	}
}

func TestSimulateCommand_Validation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"no tenant", func(c *Config) { c.Tenant = 0 }},
		{"no pieces", func(c *Config) { c.Pieces = 0 }},
		{"negative rejects", func(c *Config) { c.Rejects = -1 }},
		{"losses exceed lot", func(c *Config) { c.Rejects = 60; c.Rework = 50 }},
		{"bad quantity", func(c *Config) { c.Quantity = "lots" }},
		{"bad format", func(c *Config) { c.Format = "csv" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			cfg := simulateConfig(&out)
			tt.modify(&cfg)
			err := NewSimulateCommand(cfg, logger.Discard()).Execute(context.Background())
			if err == nil || !strings.Contains(err.Error(), "validation error") {
				t.Errorf("Expected validation error, got %v", err)
			}
		})
	}
}

func TestSimulateCommand_Help(t *testing.T) {
	var out bytes.Buffer
	cfg := simulateConfig(&out)
	cfg.Help = true

	if err := NewSimulateCommand(cfg, logger.Discard()).Execute(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "Usage: forgetrace simulate") {
		t.Errorf("Expected usage text, got %q", out.String())
	}
}

func TestSimulateCommand_SeedsFromShopFile(t *testing.T) {
	shop := filepath.Join(t.TempDir(), "shop.yaml")
	doc := "resources:\n  - name: Press 9\n    kind: ForgeLine\nheats:\n  - number: H-YAML-1\n    mode: weight\n    quantity: \"80\"\n"
	if err := os.WriteFile(shop, []byte(doc), 0o644); err != nil {
		t.Fatalf("Failed to write shop file: %v", err)
	}

	var out bytes.Buffer
	cfg := simulateConfig(&out)
	cfg.ShopFile = shop
	cfg.Format = "json"
	cfg.Rework = 0

	if err := NewSimulateCommand(cfg, logger.Discard()).Execute(context.Background()); err != nil {
		t.Fatalf("Simulation failed: %v", err)
	}

	var report struct {
		Heats []struct {
			Net string `json:"net_quantity"`
		} `json:"heats"`
	}
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("Expected JSON report: %v", err)
	}
	if len(report.Heats) != 1 || report.Heats[0].Net != "60" {
		t.Errorf("Expected 60 kg drawn from the shop heat, got %+v", report.Heats)
	}
}
