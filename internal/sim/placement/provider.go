package placement

import (
	"context"

	"github.com/go-gl/mathgl/mgl64"

	"gridplace.ai/internal/sim/grid"
)

// ItemRef identifies a catalog entry. The orchestrator stores and returns it
// verbatim.
type ItemRef string

// Handle is whatever the provider needs to release a loaded asset.
type Handle any

type LoadResult struct {
	Prototype Prototype
	Handle    Handle
	Err       error
}

// Provider resolves item references to instantiable prototypes.
//
// LoadAsync must deliver exactly one LoadResult on the returned channel (or
// close it). A result with a non-nil Err carries no usable prototype and needs
// no Release. Release must tolerate being called once per successful load.
type Provider interface {
	LoadAsync(ctx context.Context, ref ItemRef) <-chan LoadResult
	Release(h Handle) error
}

type Prototype interface {
	Instantiate(pos mgl64.Vec3) (Instance, error)
}

// Instance is a realized structure. Bounds reports its world-space bounding
// box as of its current Position.
type Instance interface {
	Position() mgl64.Vec3
	Bounds() grid.Box
	Destroy() error
}
