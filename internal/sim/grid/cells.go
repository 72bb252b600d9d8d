package grid

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Cell addresses one unit of the occupancy grid.
type Cell struct {
	X, Y, Z int
}

func (c Cell) Add(o Cell) Cell { return Cell{X: c.X + o.X, Y: c.Y + o.Y, Z: c.Z + o.Z} }

func (c Cell) Array() [3]int { return [3]int{c.X, c.Y, c.Z} }

func CellFromArray(a [3]int) Cell { return Cell{X: a[0], Y: a[1], Z: a[2]} }

// Float division of an exact multiple (e.g. 3*0.1/0.1) can land just below the
// integer; snap those back up before flooring.
const snapTolerance = 1e-9

func floorCell(v, cellSize float64) int {
	return int(math.Floor(v/cellSize + snapTolerance))
}

// WorldToCell floor-divides each axis by cellSize.
func WorldToCell(pos mgl64.Vec3, cellSize float64) Cell {
	return Cell{
		X: floorCell(pos[0], cellSize),
		Y: floorCell(pos[1], cellSize),
		Z: floorCell(pos[2], cellSize),
	}
}

// CellToWorld returns the anchor of c: horizontally centered, vertically at the
// bottom face. Placed structures rest on this point.
func CellToWorld(c Cell, cellSize float64) mgl64.Vec3 {
	return mgl64.Vec3{
		(float64(c.X) + 0.5) * cellSize,
		float64(c.Y) * cellSize,
		(float64(c.Z) + 0.5) * cellSize,
	}
}

// CellCenter is the geometric center of c. Debug and bounds math only.
func CellCenter(c Cell, cellSize float64) mgl64.Vec3 {
	return CellToWorld(c, cellSize).Add(mgl64.Vec3{0, cellSize / 2, 0})
}

func CellBox(c Cell, cellSize float64) Box {
	lo := mgl64.Vec3{float64(c.X) * cellSize, float64(c.Y) * cellSize, float64(c.Z) * cellSize}
	return Box{Min: lo, Max: lo.Add(mgl64.Vec3{cellSize, cellSize, cellSize})}
}
