// Package shopfile loads a shop layout (resources and opening heat stock)
// from a single YAML or JSON document.
package shopfile

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vsinha/forgetrace/pkg/application/dto"
	"github.com/vsinha/forgetrace/pkg/domain/entities"
)

// Shop is the decoded shop layout, ready to hand to the engine
type Shop struct {
	Resources []dto.RegisterResourceCommand
	Heats     []dto.ReceiveHeatCommand
}

type document struct {
	Resources []resourceEntry `yaml:"resources"`
	Heats     []heatEntry     `yaml:"heats"`
}

type resourceEntry struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`
}

// heatEntry keeps quantity as text so weights never pass through float64
type heatEntry struct {
	Number     string `yaml:"number"`
	Mode       string `yaml:"mode"`
	Quantity   string `yaml:"quantity"`
	Pieces     int64  `yaml:"pieces"`
	ReceivedAt string `yaml:"received_at"`
}

// Parse decodes a shop layout from YAML or JSON bytes
func Parse(data []byte) (*Shop, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("shopfile: document is empty")
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("shopfile: decode: %w", err)
	}

	shop := &Shop{}
	for i, r := range doc.Resources {
		cmd, err := r.command()
		if err != nil {
			return nil, fmt.Errorf("shopfile: resource %d: %w", i+1, err)
		}
		shop.Resources = append(shop.Resources, cmd)
	}
	for i, h := range doc.Heats {
		cmd, err := h.command()
		if err != nil {
			return nil, fmt.Errorf("shopfile: heat %d: %w", i+1, err)
		}
		shop.Heats = append(shop.Heats, cmd)
	}
	return shop, nil
}

// Read decodes a shop layout from r
func Read(r io.Reader) (*Shop, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("shopfile: read: %w", err)
	}
	return Parse(content)
}

// Load decodes the shop layout stored at path
func Load(path string) (*Shop, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("shopfile: read %s: %w", path, err)
	}
	shop, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return shop, nil
}

func (r resourceEntry) command() (dto.RegisterResourceCommand, error) {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return dto.RegisterResourceCommand{}, fmt.Errorf("name is required")
	}
	kind, err := entities.ParseResourceKind(strings.TrimSpace(r.Kind))
	if err != nil {
		return dto.RegisterResourceCommand{}, err
	}
	return dto.RegisterResourceCommand{Name: name, Kind: kind}, nil
}

func (h heatEntry) command() (dto.ReceiveHeatCommand, error) {
	number := strings.TrimSpace(h.Number)
	if number == "" {
		return dto.ReceiveHeatCommand{}, fmt.Errorf("number is required")
	}
	mode, err := entities.ParseMeasurementMode(strings.TrimSpace(h.Mode))
	if err != nil {
		return dto.ReceiveHeatCommand{}, err
	}

	cmd := dto.ReceiveHeatCommand{Number: number, Mode: mode, Pieces: entities.Pieces(h.Pieces)}
	if raw := strings.TrimSpace(h.Quantity); raw != "" {
		cmd.Quantity, err = decimal.NewFromString(raw)
		if err != nil {
			return dto.ReceiveHeatCommand{}, fmt.Errorf("invalid quantity: %s", raw)
		}
	}
	if raw := strings.TrimSpace(h.ReceivedAt); raw != "" {
		cmd.ReceivedAt, err = parseTime(raw)
		if err != nil {
			return dto.ReceiveHeatCommand{}, fmt.Errorf("invalid received_at: %s", raw)
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
