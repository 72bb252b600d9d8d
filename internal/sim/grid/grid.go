package grid

import (
	"github.com/go-gl/mathgl/mgl64"
)

// Record is what the grid stores per occupied cell. Only the record at Pivot
// carries the full cell list; every other cell of the same placement holds an
// elided record (Cells == nil) that points back at the pivot.
type Record struct {
	ID    string
	Pivot Cell
	Cells []Cell
}

func (r *Record) IsPivot() bool { return r.Cells != nil }

// Grid maps cells to placement records.
//
// Grid does no locking. Callers that place concurrently must serialize the
// IsEmpty/Register pair per overlapping region; placement.Orchestrator does.
type Grid struct {
	cfg    Config
	lo, hi Cell

	cells map[Cell]*Record
}

func New(cfg Config) (*Grid, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	lo, hi := cfg.cellRange()
	return &Grid{
		cfg:   cfg,
		lo:    lo,
		hi:    hi,
		cells: map[Cell]*Record{},
	}, nil
}

func (g *Grid) Config() Config    { return g.cfg }
func (g *Grid) CellSize() float64 { return g.cfg.CellSize }

// Len returns the number of occupied cells.
func (g *Grid) Len() int { return len(g.cells) }

func (g *Grid) WorldToCell(pos mgl64.Vec3) Cell { return WorldToCell(pos, g.cfg.CellSize) }
func (g *Grid) CellToWorld(c Cell) mgl64.Vec3   { return CellToWorld(c, g.cfg.CellSize) }

// CellRange returns the inclusive range of legal cells.
func (g *Grid) CellRange() (lo, hi Cell) { return g.lo, g.hi }

func (g *Grid) InBounds(c Cell) bool {
	return c.X >= g.lo.X && c.X <= g.hi.X &&
		c.Y >= g.lo.Y && c.Y <= g.hi.Y &&
		c.Z >= g.lo.Z && c.Z <= g.hi.Z
}

// RangeInBounds reports whether every cell of the inclusive range lo..hi is
// inside the half-extent.
func (g *Grid) RangeInBounds(lo, hi Cell) bool {
	return g.InBounds(lo) && g.InBounds(hi)
}

// IsEmpty reports whether cells can legally be placed: none is occupied and all
// of them lie inside the half-extent. An empty footprint is never placeable.
func (g *Grid) IsEmpty(cells []Cell) bool {
	if len(cells) == 0 {
		return false
	}
	for _, c := range cells {
		if !g.InBounds(c) {
			return false
		}
		if _, ok := g.cells[c]; ok {
			return false
		}
	}
	return true
}

// IsCellEmpty is a pure occupancy check; it ignores the half-extent.
func (g *Grid) IsCellEmpty(pos mgl64.Vec3) bool {
	_, ok := g.cells[g.WorldToCell(pos)]
	return !ok
}

// Register stores a placement. It overwrites whatever was at those cells;
// validate with IsEmpty first.
func (g *Grid) Register(pivot Cell, cells []Cell, id string) {
	full := make([]Cell, 0, len(cells)+1)
	hasPivot := false
	for _, c := range cells {
		if c == pivot {
			hasPivot = true
		}
		full = append(full, c)
	}
	if !hasPivot {
		full = append(full, pivot)
	}
	for _, c := range full {
		if c == pivot {
			continue
		}
		g.cells[c] = &Record{ID: id, Pivot: pivot}
	}
	g.cells[pivot] = &Record{ID: id, Pivot: pivot, Cells: full}
}

// resolve follows an elided record back to its pivot record.
func (g *Grid) resolve(c Cell) (*Record, bool) {
	rec, ok := g.cells[c]
	if !ok {
		return nil, false
	}
	if rec.IsPivot() {
		return rec, true
	}
	pivot, ok := g.cells[rec.Pivot]
	if !ok || pivot.ID != rec.ID || !pivot.IsPivot() {
		// Orphaned elided record; only reachable after an unchecked overwrite.
		return rec, true
	}
	return pivot, true
}

// Lookup returns the pivot record of the placement covering pos.
func (g *Grid) Lookup(pos mgl64.Vec3) (Record, bool) {
	return g.LookupCell(g.WorldToCell(pos))
}

func (g *Grid) LookupCell(c Cell) (Record, bool) {
	rec, ok := g.resolve(c)
	if !ok {
		return Record{}, false
	}
	out := *rec
	out.Cells = append([]Cell(nil), rec.Cells...)
	return out, true
}

// TryRemove deletes the placement covering pos and returns its id.
func (g *Grid) TryRemove(pos mgl64.Vec3) (string, bool) {
	return g.TryRemoveCell(g.WorldToCell(pos))
}

func (g *Grid) TryRemoveCell(c Cell) (string, bool) {
	rec, ok := g.resolve(c)
	if !ok {
		return "", false
	}
	id := rec.ID
	cells := rec.Cells
	if cells == nil {
		cells = []Cell{c}
	}
	for _, oc := range cells {
		if cur, ok := g.cells[oc]; ok && cur.ID == id {
			delete(g.cells, oc)
		}
	}
	// The looked-up cell always goes, even if the pivot had lost track of it.
	if cur, ok := g.cells[c]; ok && cur.ID == id {
		delete(g.cells, c)
	}
	return id, true
}
