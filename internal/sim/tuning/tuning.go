package tuning

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"gopkg.in/yaml.v3"

	"gridplace.ai/internal/sim/grid"
)

type Tuning struct {
	GridID string `yaml:"grid_id"`

	CellSize         float64    `yaml:"cell_size"`
	HalfExtent       [3]float64 `yaml:"half_extent"`
	FootprintEpsilon float64    `yaml:"footprint_epsilon"`

	// Upper bound on a single asset load; 0 disables the timeout.
	LoadTimeoutMs int `yaml:"load_timeout_ms"`

	SnapshotEverySeconds int `yaml:"snapshot_every_seconds"`
	SnapshotKeep         int `yaml:"snapshot_keep"`
}

func Defaults() Tuning {
	return Tuning{
		GridID:               "grid_1",
		CellSize:             1,
		HalfExtent:           [3]float64{64, 32, 64},
		FootprintEpsilon:     grid.DefaultEpsilon,
		LoadTimeoutMs:        5000,
		SnapshotEverySeconds: 60,
		SnapshotKeep:         10,
	}
}

// Load reads a tuning file on top of Defaults(). Keys missing from the file
// keep their default values.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) GridConfig() grid.Config {
	return grid.Config{
		CellSize:   t.CellSize,
		HalfExtent: mgl64.Vec3(t.HalfExtent),
		Epsilon:    t.FootprintEpsilon,
	}
}

func (t Tuning) LoadTimeout() time.Duration {
	if t.LoadTimeoutMs <= 0 {
		return 0
	}
	return time.Duration(t.LoadTimeoutMs) * time.Millisecond
}

func (t Tuning) SnapshotEvery() time.Duration {
	if t.SnapshotEverySeconds <= 0 {
		return 0
	}
	return time.Duration(t.SnapshotEverySeconds) * time.Second
}

// Validate reports grid geometry problems as grid.ConfigError so callers can
// treat them uniformly with grid.New.
func (t Tuning) Validate() error {
	if strings.TrimSpace(t.GridID) == "" {
		return fmt.Errorf("grid_id must not be empty")
	}
	if err := t.GridConfig().Validate(); err != nil {
		return err
	}
	if t.LoadTimeoutMs < 0 {
		return fmt.Errorf("load_timeout_ms must be >= 0")
	}
	if t.SnapshotEverySeconds < 0 {
		return fmt.Errorf("snapshot_every_seconds must be >= 0")
	}
	if t.SnapshotKeep < 0 {
		return fmt.Errorf("snapshot_keep must be >= 0")
	}
	return nil
}
