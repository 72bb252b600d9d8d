package placement

import (
	"errors"

	"gridplace.ai/internal/protocol"
	"gridplace.ai/internal/sim/grid"
)

var (
	// ErrLoadFailed: the asset could not be resolved or instantiated. Nothing
	// was mutated; the caller may retry.
	ErrLoadFailed = errors.New("load failed")
	// ErrSpaceOccupied: the footprint overlaps another placement or leaves the
	// grid bounds. The instance and its handle were cleaned up.
	ErrSpaceOccupied = errors.New("space occupied")
	// ErrDuplicateID is only produced by Restore.
	ErrDuplicateID = errors.New("duplicate placement id")
)

// Code maps a Place/Restore error to a protocol error code.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrLoadFailed):
		return protocol.ErrLoadFailed
	case errors.Is(err, ErrSpaceOccupied):
		return protocol.ErrSpaceOccupied
	case errors.Is(err, ErrDuplicateID):
		return protocol.ErrConflict
	case errors.Is(err, grid.ErrConfiguration):
		return protocol.ErrBadRequest
	default:
		return protocol.ErrInternal
	}
}
