package placement

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"gridplace.ai/internal/persistence/snapshot"
	"gridplace.ai/internal/sim/grid"
)

// ExportSnapshot captures every committed placement. seq orders snapshots
// on disk.
func (o *Orchestrator) ExportSnapshot(gridID string, seq uint64) snapshot.SnapshotV1 {
	cfg := o.grid.Config()

	o.mu.Lock()
	ps := o.placementsLocked()
	var until int64
	if !o.lastAudit.IsZero() {
		until = o.lastAudit.UnixNano()
	}
	savedAt := o.now().UnixMilli()
	o.mu.Unlock()

	out := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version:    snapshot.Version,
			GridID:     gridID,
			Seq:        seq,
			SavedAt:    savedAt,
			AuditUntil: until,
		},
		CellSize:   cfg.CellSize,
		HalfExtent: [3]float64(cfg.HalfExtent),
		Epsilon:    cfg.Epsilon,
		Placements: make([]snapshot.PlacementV1, 0, len(ps)),
	}
	for _, p := range ps {
		out.Placements = append(out.Placements, snapshot.PlacementV1{
			ID:     p.ID,
			Item:   string(p.Item),
			Anchor: [3]float64(p.Anchor),
			Pivot:  p.Pivot.Array(),
			Cells:  cellArrays(p.Cells),
		})
	}
	return out
}

// Restore re-places every record of snap with its saved id. The orchestrator
// must be empty and its grid geometry, epsilon included, must match the
// snapshot's. Restored records are audited as ActionRestore. Records that fail
// to re-place are skipped and reported together; the rest stay committed.
func (o *Orchestrator) Restore(ctx context.Context, snap snapshot.SnapshotV1) error {
	cfg := o.grid.Config()
	if snap.CellSize != cfg.CellSize {
		return &grid.ConfigError{Field: "cell_size", Reason: fmt.Sprintf("snapshot has %v, grid has %v", snap.CellSize, cfg.CellSize)}
	}
	if mgl64.Vec3(snap.HalfExtent) != cfg.HalfExtent {
		return &grid.ConfigError{Field: "half_extent", Reason: fmt.Sprintf("snapshot has %v, grid has %v", snap.HalfExtent, [3]float64(cfg.HalfExtent))}
	}
	eps := snap.Epsilon
	if eps == 0 {
		eps = grid.DefaultEpsilon
	}
	if eps != cfg.Epsilon {
		return &grid.ConfigError{Field: "epsilon", Reason: fmt.Sprintf("snapshot has %v, grid has %v", snap.Epsilon, cfg.Epsilon)}
	}

	o.mu.Lock()
	n := len(o.entries)
	if n == 0 && snap.Header.AuditUntil != 0 {
		// Entries logged from here on must sort after everything the
		// snapshot already covers, even if the wall clock went backwards.
		if until := time.Unix(0, snap.Header.AuditUntil).UTC(); until.After(o.lastAudit) {
			o.lastAudit = until
		}
	}
	o.mu.Unlock()
	if n != 0 {
		return fmt.Errorf("restore into non-empty orchestrator (%d placements)", n)
	}

	recs := append([]snapshot.PlacementV1(nil), snap.Placements...)
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })

	var errs []error
	for _, r := range recs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if r.ID == "" {
			errs = append(errs, fmt.Errorf("record for %s at %v has no id", r.Item, r.Pivot))
			continue
		}
		p, err := o.place(ctx, ActionRestore, ItemRef(r.Item), mgl64.Vec3(r.Anchor), r.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", r.ID, err))
			continue
		}
		if p.Pivot.Array() != r.Pivot || len(p.Cells) != len(r.Cells) {
			o.log.Printf("restore %s: footprint changed (%d cells, was %d)", r.ID, len(p.Cells), len(r.Cells))
		}
	}
	return errors.Join(errs...)
}
