package assets

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"gridplace.ai/internal/sim/catalogs"
	"gridplace.ai/internal/sim/grid"
	"gridplace.ai/internal/sim/placement"
)

func testCatalog() *catalogs.ItemCatalog {
	return &catalogs.ItemCatalog{
		Palette: []string{"HUT", "SLOW", "WALL"},
		Defs: map[string]catalogs.ItemDef{
			"HUT":  {ID: "HUT", Bounds: [2][3]float64{{-0.4, 0, -0.4}, {0.4, 1, 0.4}}},
			"WALL": {ID: "WALL", Bounds: [2][3]float64{{-1.4, 0, -0.4}, {0.4, 1, 0.4}}},
			"SLOW": {ID: "SLOW", Bounds: [2][3]float64{{-0.4, 0, -0.4}, {0.4, 1, 0.4}}, LoadDelayMs: 60000},
		},
	}
}

func recv(t *testing.T, ch <-chan placement.LoadResult) placement.LoadResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatalf("load never resolved")
		return placement.LoadResult{}
	}
}

func TestCatalogProvider_LoadInstantiateRelease(t *testing.T) {
	p := NewCatalogProvider(testCatalog())
	res := recv(t, p.LoadAsync(context.Background(), "WALL"))
	if res.Err != nil {
		t.Fatalf("load: %v", res.Err)
	}
	if p.Outstanding() != 1 {
		t.Fatalf("outstanding = %d", p.Outstanding())
	}

	inst, err := res.Prototype.Instantiate(mgl64.Vec3{1.5, 0, 0.5})
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	want := grid.Box{Min: mgl64.Vec3{0.1, 0, 0.1}, Max: mgl64.Vec3{1.9, 1, 0.9}}
	if got := inst.Bounds(); !got.Min.ApproxEqual(want.Min) || !got.Max.ApproxEqual(want.Max) {
		t.Fatalf("bounds = %+v, want %+v", got, want)
	}

	ai := inst.(*Instance)
	ai.MoveTo(mgl64.Vec3{3.5, 0, 0.5})
	if got := inst.Bounds().Min; !got.ApproxEqual(mgl64.Vec3{2.1, 0, 0.1}) {
		t.Fatalf("bounds after move = %v", got)
	}
	if err := inst.Destroy(); err != nil || !ai.Destroyed() {
		t.Fatalf("destroy: %v", err)
	}
	if err := inst.Destroy(); err != nil {
		t.Fatalf("second destroy: %v", err)
	}

	if err := p.Release(res.Handle); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := p.Release(res.Handle); err != nil {
		t.Fatalf("second release: %v", err)
	}
	if p.Outstanding() != 0 {
		t.Fatalf("outstanding after release = %d", p.Outstanding())
	}
	if err := p.Release("bogus"); err == nil {
		t.Fatalf("foreign handle accepted")
	}
	if err := p.Release(Handle{seq: 99}); err == nil {
		t.Fatalf("unissued handle accepted")
	}
}

func TestCatalogProvider_UnknownAndCancelled(t *testing.T) {
	p := NewCatalogProvider(testCatalog())
	res := recv(t, p.LoadAsync(context.Background(), "CASTLE"))
	if !errors.Is(res.Err, ErrUnknownItem) || res.Prototype != nil {
		t.Fatalf("unknown item: %+v", res)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ch := p.LoadAsync(ctx, "SLOW")
	cancel()
	res = recv(t, ch)
	if !errors.Is(res.Err, context.Canceled) {
		t.Fatalf("cancelled load: %+v", res)
	}
	if p.Outstanding() != 0 {
		t.Fatalf("cancelled load acquired a handle")
	}
}

func TestCatalogProvider_WithOrchestrator(t *testing.T) {
	g, err := grid.New(grid.Config{CellSize: 1, HalfExtent: mgl64.Vec3{10, 10, 10}})
	if err != nil {
		t.Fatalf("grid: %v", err)
	}
	p := NewCatalogProvider(testCatalog())
	o := placement.New(g, p)
	ctx := context.Background()

	if _, err := o.Place(ctx, "HUT", mgl64.Vec3{0, 0, 0}); err != nil {
		t.Fatalf("place HUT: %v", err)
	}
	if _, err := o.Place(ctx, "WALL", mgl64.Vec3{1, 0, 0}); !errors.Is(err, placement.ErrSpaceOccupied) {
		t.Fatalf("WALL over HUT: %v", err)
	}
	if p.Outstanding() != 1 {
		t.Fatalf("rollback leaked a handle: outstanding=%d", p.Outstanding())
	}
	if _, ok := o.Remove(mgl64.Vec3{0.2, 0, 0.2}); !ok {
		t.Fatalf("remove HUT failed")
	}
	wall, err := o.Place(ctx, "WALL", mgl64.Vec3{1, 0, 0})
	if err != nil {
		t.Fatalf("place WALL: %v", err)
	}
	if len(wall.Cells) != 2 {
		t.Fatalf("WALL cells = %v", wall.Cells)
	}

	snap := o.ExportSnapshot("grid_t", 1)
	g2, _ := grid.New(g.Config())
	p2 := NewCatalogProvider(testCatalog())
	o2 := placement.New(g2, p2)
	if err := o2.Restore(ctx, snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	got, ok := o2.PlacementAt(mgl64.Vec3{0.5, 0.5, 0.5})
	if !ok || got.ID != wall.ID || got.Item != "WALL" || len(got.Cells) != 2 {
		t.Fatalf("restored placement = %+v %v", got, ok)
	}
	if p2.Outstanding() != 1 {
		t.Fatalf("restored outstanding = %d", p2.Outstanding())
	}
}
