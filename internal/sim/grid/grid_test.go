package grid

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/go-cmp/cmp"
)

func newTestGrid(t *testing.T) *Grid {
	t.Helper()
	g, err := New(Config{CellSize: 1, HalfExtent: mgl64.Vec3{10, 10, 10}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func box(minX, minY, minZ, maxX, maxY, maxZ float64) Box {
	return Box{Min: mgl64.Vec3{minX, minY, minZ}, Max: mgl64.Vec3{maxX, maxY, maxZ}}
}

func TestNew_RejectsBadConfig(t *testing.T) {
	cases := []struct {
		name  string
		cfg   Config
		field string
	}{
		{"zero cell size", Config{CellSize: 0, HalfExtent: mgl64.Vec3{10, 10, 10}}, "cell_size"},
		{"negative cell size", Config{CellSize: -1, HalfExtent: mgl64.Vec3{10, 10, 10}}, "cell_size"},
		{"zero half extent", Config{CellSize: 1, HalfExtent: mgl64.Vec3{10, 0, 10}}, "half_extent.y"},
		{"negative half extent", Config{CellSize: 1, HalfExtent: mgl64.Vec3{-1, 10, 10}}, "half_extent.x"},
		{"half extent below one cell", Config{CellSize: 2, HalfExtent: mgl64.Vec3{10, 10, 1}}, "half_extent.z"},
		{"epsilon too large", Config{CellSize: 1, HalfExtent: mgl64.Vec3{10, 10, 10}, Epsilon: 0.5}, "epsilon"},
		{"negative epsilon", Config{CellSize: 1, HalfExtent: mgl64.Vec3{10, 10, 10}, Epsilon: -0.1}, "epsilon"},
		{"NaN epsilon", Config{CellSize: 1, HalfExtent: mgl64.Vec3{10, 10, 10}, Epsilon: math.NaN()}, "epsilon"},
	}
	for _, tc := range cases {
		_, err := New(tc.cfg)
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if !errors.Is(err, ErrConfiguration) {
			t.Fatalf("%s: expected ErrConfiguration, got %v", tc.name, err)
		}
		var ce *ConfigError
		if !errors.As(err, &ce) || ce.Field != tc.field {
			t.Fatalf("%s: field=%v want %s", tc.name, ce, tc.field)
		}
	}
}

func TestNew_DefaultEpsilon(t *testing.T) {
	g := newTestGrid(t)
	if g.Config().Epsilon != DefaultEpsilon {
		t.Fatalf("epsilon=%v want %v", g.Config().Epsilon, DefaultEpsilon)
	}
}

func TestIsEmpty_HalfExtentBounds(t *testing.T) {
	g := newTestGrid(t)
	cases := []struct {
		cells []Cell
		want  bool
	}{
		{[]Cell{{0, 0, 0}}, true},
		{[]Cell{{9, 9, 9}}, true},
		{[]Cell{{-10, -10, -10}}, true},
		{[]Cell{{10, 0, 0}}, false},
		{[]Cell{{0, 0, -11}}, false},
		{[]Cell{{9, 0, 0}, {10, 0, 0}}, false},
		{nil, false},
	}
	for _, tc := range cases {
		if got := g.IsEmpty(tc.cells); got != tc.want {
			t.Fatalf("IsEmpty(%v)=%v want %v", tc.cells, got, tc.want)
		}
	}
}

func TestIsEmpty_RejectsOutOfBoundsEvenWhenUnoccupied(t *testing.T) {
	g := newTestGrid(t)
	fp := g.ComputeFootprint(box(8.1, 0, 0.1, 10.9, 1, 0.9))
	if len(fp) != 3 {
		t.Fatalf("footprint=%v want 3 cells", fp)
	}
	if g.IsEmpty(fp) {
		t.Fatalf("footprint reaching x=10 must not be placeable")
	}
	if g.Len() != 0 {
		t.Fatalf("grid should still be empty")
	}
}

func TestRegister_PivotCarriesFullSet(t *testing.T) {
	g := newTestGrid(t)
	pivot := Cell{1, 0, 0}
	cells := []Cell{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}}
	g.Register(pivot, cells, "p1")

	if g.Len() != 3 {
		t.Fatalf("len=%d want 3", g.Len())
	}
	for _, c := range cells {
		rec := g.cells[c]
		if rec == nil || rec.ID != "p1" {
			t.Fatalf("cell %v: record=%+v", c, rec)
		}
		if c == pivot {
			if !rec.IsPivot() || len(rec.Cells) != 3 {
				t.Fatalf("pivot record should carry all cells: %+v", rec)
			}
			continue
		}
		if rec.Cells != nil || rec.Pivot != pivot {
			t.Fatalf("non-pivot record should be elided with back-reference: %+v", rec)
		}
	}
}

func TestRegister_AddsMissingPivot(t *testing.T) {
	g := newTestGrid(t)
	g.Register(Cell{0, 0, 0}, []Cell{{1, 0, 0}}, "p1")
	rec, ok := g.LookupCell(Cell{1, 0, 0})
	if !ok {
		t.Fatalf("expected record")
	}
	if diff := cmp.Diff([]Cell{{1, 0, 0}, {0, 0, 0}}, rec.Cells); diff != "" {
		t.Fatalf("cells mismatch (-want +got):\n%s", diff)
	}
}

func TestLookup_ResolvesThroughPivot(t *testing.T) {
	g := newTestGrid(t)
	cells := []Cell{{0, 0, 0}, {1, 0, 0}}
	g.Register(Cell{1, 0, 0}, cells, "p1")

	rec, ok := g.Lookup(mgl64.Vec3{0.2, 0.5, 0.7})
	if !ok {
		t.Fatalf("expected lookup hit")
	}
	want := Record{ID: "p1", Pivot: Cell{1, 0, 0}, Cells: cells}
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}

	rec.Cells[0] = Cell{99, 99, 99}
	again, _ := g.LookupCell(Cell{1, 0, 0})
	if again.Cells[0] != (Cell{0, 0, 0}) {
		t.Fatalf("Lookup must return a copy")
	}
}

func TestTryRemove_ViaNonPivotFreesAllCells(t *testing.T) {
	g := newTestGrid(t)
	cells := []Cell{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {1, 1, 0}}
	g.Register(Cell{0, 0, 0}, cells, "p1")

	id, ok := g.TryRemove(mgl64.Vec3{1.5, 1.2, 0.5})
	if !ok || id != "p1" {
		t.Fatalf("TryRemove=(%q,%v) want (p1,true)", id, ok)
	}
	if g.Len() != 0 {
		t.Fatalf("len=%d want 0", g.Len())
	}
	if !g.IsEmpty(cells) {
		t.Fatalf("all cells should be free after removal")
	}
}

func TestTryRemove_EmptyCellIsNoop(t *testing.T) {
	g := newTestGrid(t)
	g.Register(Cell{3, 0, 3}, []Cell{{3, 0, 3}}, "p1")
	for i := 0; i < 2; i++ {
		if id, ok := g.TryRemove(mgl64.Vec3{0.5, 0, 0.5}); ok || id != "" {
			t.Fatalf("TryRemove on empty cell = (%q,%v)", id, ok)
		}
	}
	if g.Len() != 1 {
		t.Fatalf("unrelated placement must survive")
	}
	if _, ok := g.TryRemove(mgl64.Vec3{3.5, 0, 3.5}); !ok {
		t.Fatalf("expected removal")
	}
	if _, ok := g.TryRemove(mgl64.Vec3{3.5, 0, 3.5}); ok {
		t.Fatalf("second removal should be a no-op")
	}
}

func TestTryRemove_LeavesNeighbours(t *testing.T) {
	g := newTestGrid(t)
	g.Register(Cell{0, 0, 0}, []Cell{{0, 0, 0}, {1, 0, 0}}, "a")
	g.Register(Cell{2, 0, 0}, []Cell{{2, 0, 0}, {3, 0, 0}}, "b")
	if id, _ := g.TryRemoveCell(Cell{1, 0, 0}); id != "a" {
		t.Fatalf("removed %q want a", id)
	}
	if g.IsCellEmpty(mgl64.Vec3{2.5, 0, 0.5}) || g.IsCellEmpty(mgl64.Vec3{3.5, 0, 0.5}) {
		t.Fatalf("placement b must be untouched")
	}
}

func TestIsCellEmpty_IgnoresBounds(t *testing.T) {
	g := newTestGrid(t)
	if !g.IsCellEmpty(mgl64.Vec3{500, 0, 0}) {
		t.Fatalf("out-of-bounds cell is still unoccupied")
	}
	g.Register(Cell{0, 0, 0}, []Cell{{0, 0, 0}}, "p")
	if g.IsCellEmpty(mgl64.Vec3{0.99, 0.99, 0.01}) {
		t.Fatalf("cell should be occupied")
	}
}

func TestDebug_IsSortedCopy(t *testing.T) {
	g := newTestGrid(t)
	g.Register(Cell{1, 0, 0}, []Cell{{0, 0, 0}, {1, 0, 0}}, "p1")
	v := g.Debug()
	want := []DebugCell{
		{Cell: [3]int{0, 0, 0}, ID: "p1"},
		{Cell: [3]int{1, 0, 0}, ID: "p1", Pivot: true},
	}
	if diff := cmp.Diff(want, v.Cells); diff != "" {
		t.Fatalf("debug cells (-want +got):\n%s", diff)
	}
	if v.MinCell != [3]int{-10, -10, -10} || v.MaxCell != [3]int{9, 9, 9} {
		t.Fatalf("cell range=%v..%v", v.MinCell, v.MaxCell)
	}
	v.Cells[0].ID = "mutated"
	if g.cells[Cell{0, 0, 0}].ID != "p1" {
		t.Fatalf("debug view must not alias grid state")
	}
}
