package csv

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vsinha/forgetrace/pkg/application/dto"
	"github.com/vsinha/forgetrace/pkg/domain/entities"
)

// Loader reads shop master data (heats and resources) from CSV files
type Loader struct{}

// NewLoader creates a new CSV loader
func NewLoader() *Loader {
	return &Loader{}
}

var (
	heatHeader     = []string{"number", "mode", "quantity", "pieces", "received_at"}
	resourceHeader = []string{"name", "kind"}
)

// LoadHeats loads heat receipts from a CSV file
func (l *Loader) LoadHeats(filename string) ([]dto.ReceiveHeatCommand, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open heats file %s: %w", filename, err)
	}
	defer file.Close()
	return l.ReadHeats(file)
}

// ReadHeats parses heat receipts from r
func (l *Loader) ReadHeats(r io.Reader) ([]dto.ReceiveHeatCommand, error) {
	records, err := readRecords(r, "heats", heatHeader)
	if err != nil {
		return nil, err
	}

	var heats []dto.ReceiveHeatCommand
	for i, record := range records {
		heat, err := parseHeat(record)
		if err != nil {
			return nil, fmt.Errorf("heats CSV row %d: %w", i+2, err)
		}
		heats = append(heats, heat)
	}
	return heats, nil
}

// LoadResources loads forge lines, furnaces and the rest from a CSV file
func (l *Loader) LoadResources(filename string) ([]dto.RegisterResourceCommand, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open resources file %s: %w", filename, err)
	}
	defer file.Close()
	return l.ReadResources(file)
}

// ReadResources parses resources from r
func (l *Loader) ReadResources(r io.Reader) ([]dto.RegisterResourceCommand, error) {
	records, err := readRecords(r, "resources", resourceHeader)
	if err != nil {
		return nil, err
	}

	var resources []dto.RegisterResourceCommand
	for i, record := range records {
		kind, err := entities.ParseResourceKind(strings.TrimSpace(record[1]))
		if err != nil {
			return nil, fmt.Errorf("resources CSV row %d: %w", i+2, err)
		}
		name := strings.TrimSpace(record[0])
		if name == "" {
			return nil, fmt.Errorf("resources CSV row %d: name is required", i+2)
		}
		resources = append(resources, dto.RegisterResourceCommand{Name: name, Kind: kind})
	}
	return resources, nil
}

// readRecords reads every row, checks the header and returns the data rows
func readRecords(r io.Reader, name string, expectedHeader []string) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(expectedHeader)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s CSV: %w", name, err)
	}

	if len(records) < 2 {
		return nil, fmt.Errorf("%s CSV must have header and at least one data row", name)
	}

	header := records[0]
	if !validateHeader(header, expectedHeader) {
		return nil, fmt.Errorf("%s CSV header mismatch. Expected: %v, Got: %v", name, expectedHeader, header)
	}
	return records[1:], nil
}

func parseHeat(record []string) (dto.ReceiveHeatCommand, error) {
	number := strings.TrimSpace(record[0])
	if number == "" {
		return dto.ReceiveHeatCommand{}, fmt.Errorf("number is required")
	}

	mode, err := entities.ParseMeasurementMode(strings.TrimSpace(record[1]))
	if err != nil {
		return dto.ReceiveHeatCommand{}, err
	}

	cmd := dto.ReceiveHeatCommand{Number: number, Mode: mode}

	if raw := strings.TrimSpace(record[2]); raw != "" {
		cmd.Quantity, err = decimal.NewFromString(raw)
		if err != nil {
			return dto.ReceiveHeatCommand{}, fmt.Errorf("invalid quantity: %s", raw)
		}
	}
	if raw := strings.TrimSpace(record[3]); raw != "" {
		pieces, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return dto.ReceiveHeatCommand{}, fmt.Errorf("invalid pieces: %s", raw)
		}
		cmd.Pieces = entities.Pieces(pieces)
	}
	if raw := strings.TrimSpace(record[4]); raw != "" {
		cmd.ReceivedAt, err = parseTime(raw)
		if err != nil {
			return dto.ReceiveHeatCommand{}, fmt.Errorf("invalid received_at format: %s (expected YYYY-MM-DD or RFC 3339)", raw)
		}
	}
	return cmd, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func validateHeader(actual, expected []string) bool {
	if len(actual) != len(expected) {
		return false
	}
	for i, col := range expected {
		if strings.TrimSpace(strings.ToLower(actual[i])) != col {
			return false
		}
	}
	return true
}
