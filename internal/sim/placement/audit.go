package placement

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"gridplace.ai/internal/sim/grid"
)

const (
	ActionPlace  = "PLACE"
	ActionRemove = "REMOVE"
	// ActionRestore marks a placement re-committed from a snapshot. Readers
	// that already know the id treat it as a no-op.
	ActionRestore = "RESTORE"
)

// AuditLogger receives one entry per finished placement attempt and per
// removal. Implemented in internal/persistence/*.
type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

type AuditEntry struct {
	Time        time.Time  `json:"time"`
	Action      string     `json:"action"`
	State       string     `json:"state"`
	PlacementID string     `json:"placement_id,omitempty"`
	Item        string     `json:"item"`
	Pos         [3]float64 `json:"pos"`
	Pivot       [3]int     `json:"pivot"`
	Cells       [][3]int   `json:"cells,omitempty"`
	Reason      string     `json:"reason,omitempty"`
}

func cellArrays(cells []grid.Cell) [][3]int {
	if len(cells) == 0 {
		return nil
	}
	out := make([][3]int, len(cells))
	for i, c := range cells {
		out[i] = c.Array()
	}
	return out
}

// stampLocked returns the next audit time. Times strictly increase so that
// entry order matches commit order even under a coarse or stepped clock.
func (o *Orchestrator) stampLocked() time.Time {
	t := o.now().UTC()
	if !t.After(o.lastAudit) {
		t = o.lastAudit.Add(time.Nanosecond)
	}
	o.lastAudit = t
	return t
}

func (o *Orchestrator) writeAudit(action string, st State, id string, ref ItemRef, pos mgl64.Vec3, pivot grid.Cell, cells []grid.Cell, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.writeAuditLocked(action, st, id, ref, pos, pivot, cells, reason)
}

// writeAuditLocked must run under o.mu for entries that change the grid, so
// the log order is the order the grid saw.
func (o *Orchestrator) writeAuditLocked(action string, st State, id string, ref ItemRef, pos mgl64.Vec3, pivot grid.Cell, cells []grid.Cell, reason string) {
	ts := o.stampLocked()
	if o.audit == nil {
		return
	}
	err := o.audit.WriteAudit(AuditEntry{
		Time:        ts,
		Action:      action,
		State:       st.String(),
		PlacementID: id,
		Item:        string(ref),
		Pos:         [3]float64(pos),
		Pivot:       pivot.Array(),
		Cells:       cellArrays(cells),
		Reason:      reason,
	})
	if err != nil {
		o.log.Printf("audit %s %s: %v", action, id, err)
	}
}
