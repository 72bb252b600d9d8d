package main

import (
	"fmt"
	"io"
	"sync/atomic"

	"gridplace.ai/internal/persistence/indexdb"
	"gridplace.ai/internal/sim/assets"
	"gridplace.ai/internal/sim/grid"
	"gridplace.ai/internal/sim/placement"
)

var attemptStates = []placement.State{
	placement.StateRequested,
	placement.StateLoading,
	placement.StateValidating,
	placement.StateCommitted,
	placement.StateRolledBack,
	placement.StateFailed,
}

// attemptCounters counts placement attempts by the states they pass through.
type attemptCounters struct {
	n [6]atomic.Uint64
}

func (c *attemptCounters) observe(_ placement.ItemRef, _ grid.Cell, st placement.State) {
	if int(st) >= 0 && int(st) < len(c.n) {
		c.n[st].Add(1)
	}
}

func (c *attemptCounters) count(st placement.State) uint64 {
	if int(st) < 0 || int(st) >= len(c.n) {
		return 0
	}
	return c.n[st].Load()
}

// Minimal Prometheus exposition format.
func writeMetrics(w io.Writer, gridID string, orch *placement.Orchestrator, provider *assets.CatalogProvider, idx *indexdb.SQLiteIndex, attempts *attemptCounters) {
	fmt.Fprintf(w, "# HELP gridplace_placements Committed placements.\n")
	fmt.Fprintf(w, "# TYPE gridplace_placements gauge\n")
	fmt.Fprintf(w, "gridplace_placements{grid=%q} %d\n", gridID, orch.Len())

	fmt.Fprintf(w, "# HELP gridplace_outstanding_handles Asset handles not yet released.\n")
	fmt.Fprintf(w, "# TYPE gridplace_outstanding_handles gauge\n")
	fmt.Fprintf(w, "gridplace_outstanding_handles{grid=%q} %d\n", gridID, provider.Outstanding())

	fmt.Fprintf(w, "# HELP gridplace_place_attempts_total Placement attempts that reached each state.\n")
	fmt.Fprintf(w, "# TYPE gridplace_place_attempts_total counter\n")
	for _, st := range attemptStates {
		fmt.Fprintf(w, "gridplace_place_attempts_total{grid=%q,state=%q} %d\n", gridID, st.String(), attempts.count(st))
	}

	st := idx.Stats()
	fmt.Fprintf(w, "# HELP gridplace_index_queue_depth Index writer backlog.\n")
	fmt.Fprintf(w, "# TYPE gridplace_index_queue_depth gauge\n")
	fmt.Fprintf(w, "gridplace_index_queue_depth{grid=%q} %d\n", gridID, st.QueueDepth)
	fmt.Fprintf(w, "# HELP gridplace_index_dropped_total Index writes dropped under load.\n")
	fmt.Fprintf(w, "# TYPE gridplace_index_dropped_total counter\n")
	fmt.Fprintf(w, "gridplace_index_dropped_total{grid=%q,kind=%q} %d\n", gridID, "audit", st.DropAuditTotal)
	fmt.Fprintf(w, "gridplace_index_dropped_total{grid=%q,kind=%q} %d\n", gridID, "snapshot", st.DropSnapshotTotal)
}
