package grid

import "github.com/go-gl/mathgl/mgl64"

// FootprintRange returns the inclusive cell range covered by b after pulling
// both corners inward by the configured epsilon. An axis thinner than twice the
// epsilon collapses onto the cell holding its min corner.
func (g *Grid) FootprintRange(b Box) (lo, hi Cell) {
	e := g.cfg.Epsilon
	lo = g.WorldToCell(b.Min.Add(mgl64.Vec3{e, e, e}))
	hi = g.WorldToCell(b.Max.Sub(mgl64.Vec3{e, e, e}))
	if hi.X < lo.X {
		hi.X = lo.X
	}
	if hi.Y < lo.Y {
		hi.Y = lo.Y
	}
	if hi.Z < lo.Z {
		hi.Z = lo.Z
	}
	return lo, hi
}

// ComputeFootprint enumerates every cell b occupies, x-major.
func (g *Grid) ComputeFootprint(b Box) []Cell {
	lo, hi := g.FootprintRange(b)
	return EnumerateRange(lo, hi)
}

func EnumerateRange(lo, hi Cell) []Cell {
	if hi.X < lo.X || hi.Y < lo.Y || hi.Z < lo.Z {
		return nil
	}
	n := (hi.X - lo.X + 1) * (hi.Y - lo.Y + 1) * (hi.Z - lo.Z + 1)
	out := make([]Cell, 0, n)
	for x := lo.X; x <= hi.X; x++ {
		for y := lo.Y; y <= hi.Y; y++ {
			for z := lo.Z; z <= hi.Z; z++ {
				out = append(out, Cell{X: x, Y: y, Z: z})
			}
		}
	}
	return out
}

// RangeSize is the number of cells EnumerateRange would return.
func RangeSize(lo, hi Cell) int {
	if hi.X < lo.X || hi.Y < lo.Y || hi.Z < lo.Z {
		return 0
	}
	return (hi.X - lo.X + 1) * (hi.Y - lo.Y + 1) * (hi.Z - lo.Z + 1)
}
