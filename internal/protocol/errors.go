package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Server capacity.
	ErrGridBusy = "E_GRID_BUSY"

	// Placement layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrLoadFailed    = "E_LOAD_FAILED"
	ErrSpaceOccupied = "E_SPACE_OCCUPIED"
	ErrNotFound      = "E_NOT_FOUND"
	ErrConflict      = "E_CONFLICT"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrGridBusy:        {},
	ErrBadRequest:      {},
	ErrLoadFailed:      {},
	ErrSpaceOccupied:   {},
	ErrNotFound:        {},
	ErrConflict:        {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
