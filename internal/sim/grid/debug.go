package grid

import "sort"

type DebugCell struct {
	Cell  [3]int `json:"cell"`
	ID    string `json:"id"`
	Pivot bool   `json:"pivot,omitempty"`
}

// DebugView is a copy of the grid state for tooling. Mutating it has no effect
// on the grid.
type DebugView struct {
	CellSize   float64     `json:"cell_size"`
	HalfExtent [3]float64  `json:"half_extent"`
	MinCell    [3]int      `json:"min_cell"`
	MaxCell    [3]int      `json:"max_cell"`
	Cells      []DebugCell `json:"cells"`
}

func (g *Grid) Debug() DebugView {
	v := DebugView{
		CellSize:   g.cfg.CellSize,
		HalfExtent: [3]float64(g.cfg.HalfExtent),
		MinCell:    g.lo.Array(),
		MaxCell:    g.hi.Array(),
		Cells:      make([]DebugCell, 0, len(g.cells)),
	}
	for c, rec := range g.cells {
		v.Cells = append(v.Cells, DebugCell{Cell: c.Array(), ID: rec.ID, Pivot: rec.IsPivot()})
	}
	sort.Slice(v.Cells, func(i, j int) bool {
		a, b := v.Cells[i].Cell, v.Cells[j].Cell
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		if a[1] != b[1] {
			return a[1] < b[1]
		}
		return a[2] < b[2]
	})
	return v
}
