package tuning

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gridplace.ai/internal/sim/grid"
)

func writeTuning(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestDefaults_Valid(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	p := writeTuning(t, "cell_size: 0.5\nhalf_extent: [10, 10, 10]\n")
	tune, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tune.CellSize != 0.5 || tune.HalfExtent != [3]float64{10, 10, 10} {
		t.Fatalf("tuning=%+v", tune)
	}
	if tune.FootprintEpsilon != grid.DefaultEpsilon || tune.GridID != "grid_1" {
		t.Fatalf("defaults lost: %+v", tune)
	}
	if tune.LoadTimeout() != 5*time.Second {
		t.Fatalf("load timeout=%v", tune.LoadTimeout())
	}
	cfg := tune.GridConfig()
	if cfg.CellSize != 0.5 || cfg.HalfExtent[2] != 10 {
		t.Fatalf("grid config=%+v", cfg)
	}
}

func TestLoad_BadGeometryIsConfigurationError(t *testing.T) {
	for _, body := range []string{
		"cell_size: 0\n",
		"cell_size: -2\n",
		"half_extent: [10, 0, 10]\n",
	} {
		_, err := Load(writeTuning(t, body))
		if err == nil {
			t.Fatalf("%q: expected error", body)
		}
		if !errors.Is(err, grid.ErrConfiguration) {
			t.Fatalf("%q: expected grid.ErrConfiguration, got %v", body, err)
		}
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
	if _, err := Load(writeTuning(t, "cell_size: [1\n")); err == nil {
		t.Fatalf("expected yaml error")
	}
	if _, err := Load(writeTuning(t, "load_timeout_ms: -1\n")); err == nil {
		t.Fatalf("expected load_timeout_ms error")
	}
	if _, err := Load(writeTuning(t, "grid_id: \"  \"\n")); err == nil {
		t.Fatalf("expected grid_id error")
	}
}

func TestLoad_RepoConfig(t *testing.T) {
	tune, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("repo tuning.yaml: %v", err)
	}
	if _, err := grid.New(tune.GridConfig()); err != nil {
		t.Fatalf("repo tuning does not build a grid: %v", err)
	}
}
