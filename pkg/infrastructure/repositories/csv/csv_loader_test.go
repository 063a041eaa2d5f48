package csv

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vsinha/forgetrace/pkg/domain/entities"
)

func TestLoader_ReadHeats(t *testing.T) {
	input := `number,mode,quantity,pieces,received_at
H-4140-001,ByWeight,100.5,,2025-01-06
B-1045-001,pieces,,200,2025-01-06T06:00:00Z
`
	heats, err := NewLoader().ReadHeats(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadHeats failed: %v", err)
	}
	if len(heats) != 2 {
		t.Fatalf("Expected 2 heats, got %d", len(heats))
	}

	if heats[0].Mode != entities.ByWeight || !heats[0].Quantity.Equal(decimal.RequireFromString("100.5")) {
		t.Errorf("Expected 100.5 kg by weight, got %s %s", heats[0].Mode, heats[0].Quantity)
	}
	if heats[1].Mode != entities.ByPieces || heats[1].Pieces != 200 {
		t.Errorf("Expected 200 pieces, got %s %d", heats[1].Mode, heats[1].Pieces)
	}
	expected := time.Date(2025, 1, 6, 6, 0, 0, 0, time.UTC)
	if !heats[1].ReceivedAt.Equal(expected) {
		t.Errorf("Expected received at %s, got %s", expected, heats[1].ReceivedAt)
	}
}

func TestLoader_ReadHeatsRejectsBadRows(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		want  string
	}{
		{"wrong header", "number,mode,weight,pieces,received_at\nH-1,ByWeight,1,,\n", "header mismatch"},
		{"header only", "number,mode,quantity,pieces,received_at\n", "at least one data row"},
		{"unknown mode", "number,mode,quantity,pieces,received_at\nH-1,ByVolume,1,,\n", "row 2"},
		{"bad quantity", "number,mode,quantity,pieces,received_at\nH-1,ByWeight,lots,,\n", "invalid quantity"},
		{"bad date", "number,mode,quantity,pieces,received_at\nH-1,ByWeight,1,,06/01/2025\n", "invalid received_at"},
		{"short row", "number,mode,quantity,pieces,received_at\nH-1,ByWeight\n", "failed to read"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewLoader().ReadHeats(strings.NewReader(tc.input))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoader_LoadResources(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resources.csv")
	content := "name,kind\nHammer 1,ForgeLine\nFurnace A,Furnace\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}

	resources, err := NewLoader().LoadResources(path)
	if err != nil {
		t.Fatalf("LoadResources failed: %v", err)
	}
	if len(resources) != 2 {
		t.Fatalf("Expected 2 resources, got %d", len(resources))
	}
	if resources[1].Name != "Furnace A" || resources[1].Kind != entities.Furnace {
		t.Errorf("Expected Furnace A, got %s %s", resources[1].Name, resources[1].Kind)
	}

	if _, err := NewLoader().LoadResources(filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Errorf("Expected a missing file to fail")
	}
}
