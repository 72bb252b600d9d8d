package main

import (
	"context"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"gridplace.ai/internal/sim/assets"
	"gridplace.ai/internal/sim/catalogs"
	"gridplace.ai/internal/sim/grid"
	"gridplace.ai/internal/sim/placement"
)

func TestWriteMetrics_PlaceAttempts(t *testing.T) {
	items := &catalogs.ItemCatalog{
		Palette: []string{"HUT"},
		Defs: map[string]catalogs.ItemDef{
			"HUT": {ID: "HUT", Bounds: [2][3]float64{{-0.4, 0, -0.4}, {0.4, 1, 0.4}}},
		},
	}
	g, err := grid.New(grid.Config{CellSize: 1, HalfExtent: mgl64.Vec3{10, 10, 10}})
	if err != nil {
		t.Fatalf("grid: %v", err)
	}
	provider := assets.NewCatalogProvider(items)
	attempts := &attemptCounters{}
	o := placement.New(g, provider, placement.WithStateHook(attempts.observe))
	ctx := context.Background()

	_, _ = o.Place(ctx, "HUT", mgl64.Vec3{})
	_, _ = o.Place(ctx, "HUT", mgl64.Vec3{})
	_, _ = o.Place(ctx, "TOWER", mgl64.Vec3{2, 0, 2})

	var b strings.Builder
	writeMetrics(&b, "grid_t", o, provider, nil, attempts)
	out := b.String()

	for _, want := range []string{
		`gridplace_placements{grid="grid_t"} 1`,
		`gridplace_place_attempts_total{grid="grid_t",state="REQUESTED"} 3`,
		`gridplace_place_attempts_total{grid="grid_t",state="LOADING"} 3`,
		`gridplace_place_attempts_total{grid="grid_t",state="VALIDATING"} 2`,
		`gridplace_place_attempts_total{grid="grid_t",state="COMMITTED"} 1`,
		`gridplace_place_attempts_total{grid="grid_t",state="ROLLED_BACK"} 1`,
		`gridplace_place_attempts_total{grid="grid_t",state="FAILED"} 1`,
		`gridplace_index_dropped_total{grid="grid_t",kind="audit"} 0`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("metrics missing %q:\n%s", want, out)
		}
	}
}
