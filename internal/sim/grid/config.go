package grid

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// DefaultEpsilon is how far a footprint's corners are pulled inward before they
// are mapped to cells, so a face lying exactly on a cell boundary does not
// claim the neighbouring cell.
const DefaultEpsilon = 0.01

// ErrConfiguration is matched by every *ConfigError.
var ErrConfiguration = errors.New("grid configuration")

type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("grid config: %s %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfiguration }

type Config struct {
	CellSize float64
	// HalfExtent is the maximum distance from the origin, per axis, that any
	// occupied cell may reach (world units).
	HalfExtent mgl64.Vec3
	// Epsilon defaults to DefaultEpsilon when zero.
	Epsilon float64
}

func (c *Config) applyDefaults() {
	if c.Epsilon == 0 {
		c.Epsilon = DefaultEpsilon
	}
}

func (c Config) Validate() error {
	c.applyDefaults()
	if !(c.CellSize > 0) || math.IsInf(c.CellSize, 0) {
		return &ConfigError{Field: "cell_size", Reason: fmt.Sprintf("must be > 0, got %v", c.CellSize)}
	}
	axes := [3]string{"x", "y", "z"}
	for i := 0; i < 3; i++ {
		h := c.HalfExtent[i]
		if !(h > 0) || math.IsInf(h, 0) {
			return &ConfigError{Field: "half_extent." + axes[i], Reason: fmt.Sprintf("must be > 0, got %v", h)}
		}
		if h < c.CellSize {
			return &ConfigError{Field: "half_extent." + axes[i], Reason: fmt.Sprintf("%v is smaller than one cell (%v)", h, c.CellSize)}
		}
	}
	if !(c.Epsilon >= 0 && c.Epsilon < c.CellSize/2) {
		return &ConfigError{Field: "epsilon", Reason: fmt.Sprintf("must be in [0, cell_size/2), got %v", c.Epsilon)}
	}
	return nil
}

// cellRange converts the world half-extent into the inclusive range of cells
// whose world box lies inside [-h, h].
func (c Config) cellRange() (lo, hi Cell) {
	r := func(h float64) (int, int) {
		return int(math.Ceil(-h/c.CellSize - snapTolerance)), int(math.Floor(h/c.CellSize+snapTolerance)) - 1
	}
	lo.X, hi.X = r(c.HalfExtent[0])
	lo.Y, hi.Y = r(c.HalfExtent[1])
	lo.Z, hi.Z = r(c.HalfExtent[2])
	return lo, hi
}
