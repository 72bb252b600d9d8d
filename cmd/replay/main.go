package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	persistlog "gridplace.ai/internal/persistence/log"
	"gridplace.ai/internal/persistence/snapshot"
	"gridplace.ai/internal/sim/grid"
	"gridplace.ai/internal/sim/placement"
	"gridplace.ai/internal/sim/tuning"
)

// replay rebuilds grid occupancy from a snapshot plus the audit log, without
// loading any assets, and optionally checks the result against a later
// snapshot.
func main() {
	var (
		snapPath   = flag.String("snapshot", "", "starting .snap.zst (optional; empty grid from -tuning otherwise)")
		auditDir   = flag.String("audit", "", "audit dir containing audit-*.jsonl.zst")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "tuning used when -snapshot is empty")
		expectPath = flag.String("expect", "", "snapshot the replayed grid must match (optional)")
	)
	flag.Parse()

	if *auditDir == "" {
		fmt.Fprintln(os.Stderr, "missing -audit")
		os.Exit(2)
	}

	var r *replayer
	var err error
	if *snapPath != "" {
		snap, err := snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		fmt.Printf("snapshot v%d grid=%s seq=%d placements=%d\n", snap.Header.Version, snap.Header.GridID, snap.Header.Seq, len(snap.Placements))
		r, err = fromSnapshot(snap)
		if err != nil {
			fmt.Fprintln(os.Stderr, "load snapshot:", err)
			os.Exit(1)
		}
	} else {
		tune, err := tuning.Load(*tuningPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
		r, err = newReplayer(tune.GridConfig(), time.Time{})
		if err != nil {
			fmt.Fprintln(os.Stderr, "grid:", err)
			os.Exit(1)
		}
	}

	files, err := persistlog.ListFiles(*auditDir, "audit")
	if err != nil {
		fmt.Fprintln(os.Stderr, "list audit:", err)
		os.Exit(1)
	}
	for _, path := range files {
		if err := persistlog.ReadAuditFile(path, r.apply); err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
	}
	fmt.Printf("replay ok: files=%d applied=%d skipped=%d placements=%d cells=%d\n",
		len(files), r.applied, r.skipped, len(r.pivots), r.g.Len())

	if *expectPath != "" {
		want, err := snapshot.ReadSnapshot(*expectPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read expect:", err)
			os.Exit(1)
		}
		if err := r.matches(want); err != nil {
			fmt.Fprintf(os.Stderr, "mismatch against %s: %v\n", filepath.Base(*expectPath), err)
			os.Exit(1)
		}
		fmt.Printf("matches %s\n", filepath.Base(*expectPath))
	}
}

type replayer struct {
	g      *grid.Grid
	since  time.Time
	pivots map[string]grid.Cell

	applied, skipped int
}

func newReplayer(cfg grid.Config, since time.Time) (*replayer, error) {
	g, err := grid.New(cfg)
	if err != nil {
		return nil, err
	}
	return &replayer{g: g, since: since, pivots: map[string]grid.Cell{}}, nil
}

func fromSnapshot(snap snapshot.SnapshotV1) (*replayer, error) {
	cfg := grid.Config{CellSize: snap.CellSize, HalfExtent: mgl64.Vec3(snap.HalfExtent), Epsilon: snap.Epsilon}
	since := time.UnixMilli(snap.Header.SavedAt)
	if snap.Header.AuditUntil != 0 {
		since = time.Unix(0, snap.Header.AuditUntil)
	}
	r, err := newReplayer(cfg, since)
	if err != nil {
		return nil, err
	}
	for _, p := range snap.Placements {
		if err := r.register(p.ID, p.Pivot, p.Cells); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *replayer) register(id string, pivot [3]int, cells [][3]int) error {
	if _, dup := r.pivots[id]; dup {
		return fmt.Errorf("placement %s committed twice", id)
	}
	cs := make([]grid.Cell, len(cells))
	for i, c := range cells {
		cs[i] = grid.CellFromArray(c)
	}
	pc := grid.CellFromArray(pivot)
	if !r.g.IsEmpty(append(cs, pc)) {
		return fmt.Errorf("placement %s overlaps existing cells at pivot %v", id, pivot)
	}
	r.g.Register(pc, cs, id)
	r.pivots[id] = pc
	return nil
}

// apply replays one committed entry. Entries at or before the snapshot time
// are already reflected in the snapshot. A RESTORE of a known placement is a
// no-op.
func (r *replayer) apply(e placement.AuditEntry) error {
	if e.State != placement.StateCommitted.String() || (!r.since.IsZero() && !e.Time.After(r.since)) {
		r.skipped++
		return nil
	}
	switch e.Action {
	case placement.ActionPlace:
		if err := r.register(e.PlacementID, e.Pivot, e.Cells); err != nil {
			return err
		}
	case placement.ActionRestore:
		if _, ok := r.pivots[e.PlacementID]; ok {
			r.skipped++
			return nil
		}
		if err := r.register(e.PlacementID, e.Pivot, e.Cells); err != nil {
			return err
		}
	case placement.ActionRemove:
		pivot, ok := r.pivots[e.PlacementID]
		if !ok {
			return fmt.Errorf("remove of unknown placement %s", e.PlacementID)
		}
		if id, ok := r.g.TryRemoveCell(pivot); !ok || id != e.PlacementID {
			return fmt.Errorf("remove %s: grid held %q", e.PlacementID, id)
		}
		delete(r.pivots, e.PlacementID)
	default:
		r.skipped++
		return nil
	}
	r.applied++
	return nil
}

func (r *replayer) matches(want snapshot.SnapshotV1) error {
	if len(want.Placements) != len(r.pivots) {
		return fmt.Errorf("placements: replayed=%d snapshot=%d", len(r.pivots), len(want.Placements))
	}
	for _, p := range want.Placements {
		rec, ok := r.g.LookupCell(grid.CellFromArray(p.Pivot))
		if !ok || rec.ID != p.ID {
			return fmt.Errorf("placement %s missing at pivot %v", p.ID, p.Pivot)
		}
		got := make([][3]int, len(rec.Cells))
		for i, c := range rec.Cells {
			got[i] = c.Array()
		}
		if !sameCells(got, p.Cells) {
			return fmt.Errorf("placement %s cells: replayed=%v snapshot=%v", p.ID, got, p.Cells)
		}
	}
	return nil
}

func sameCells(a, b [][3]int) bool {
	if len(a) != len(b) {
		return false
	}
	less := func(s [][3]int) func(i, j int) bool {
		return func(i, j int) bool {
			for k := 0; k < 3; k++ {
				if s[i][k] != s[j][k] {
					return s[i][k] < s[j][k]
				}
			}
			return false
		}
	}
	a = append([][3]int(nil), a...)
	b = append([][3]int(nil), b...)
	sort.Slice(a, less(a))
	sort.Slice(b, less(b))
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
