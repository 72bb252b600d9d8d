package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"gridplace.ai/internal/persistence/indexdb"
	persistlog "gridplace.ai/internal/persistence/log"
	"gridplace.ai/internal/persistence/snapshot"
	"gridplace.ai/internal/sim/assets"
	"gridplace.ai/internal/sim/catalogs"
	"gridplace.ai/internal/sim/grid"
	"gridplace.ai/internal/sim/placement"
	"gridplace.ai/internal/sim/tuning"
	"gridplace.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory (items.json, tuning.yaml)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite placement index")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	gridDir := filepath.Join(*dataDir, "grids", tune.GridID)
	snapDir := filepath.Join(gridDir, "snapshots")
	if err := os.MkdirAll(gridDir, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(gridDir, "index.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Printf("index: upsert catalogs: %v", err)
		}
	}

	auditLog := persistlog.NewAuditLogger(gridDir)
	defer auditLog.Close()
	audit := persistlog.MultiAudit{auditLog}
	if idx != nil {
		audit = append(audit, idx)
	}

	g, err := grid.New(tune.GridConfig())
	if err != nil {
		logger.Fatalf("grid: %v", err)
	}
	provider := assets.NewCatalogProvider(&cats.Items)
	attempts := &attemptCounters{}
	orch := placement.New(g, provider,
		placement.WithLogger(logger),
		placement.WithStateHook(attempts.observe),
		placement.WithAuditLogger(audit),
		placement.WithLoadTimeout(tune.LoadTimeout()),
	)

	ctx, cancel := signalContext()
	defer cancel()

	snapshotToLoad := strings.TrimSpace(*snapPath)
	var seq uint64
	if p, s, ok := snapshot.Latest(snapDir); ok {
		seq = s
		if snapshotToLoad == "" && *loadLatest {
			snapshotToLoad = p
		}
	}
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.GridID != "" && snap.Header.GridID != tune.GridID {
			logger.Fatalf("snapshot grid id mismatch: tuning=%s snap=%s", tune.GridID, snap.Header.GridID)
		}
		if err := orch.Restore(ctx, snap); err != nil {
			// Partial restores keep what could be re-placed.
			logger.Printf("restore: %v", err)
		}
		if snap.Header.Seq > seq {
			seq = snap.Header.Seq
		}
		logger.Printf("resumed from snapshot=%s placements=%d/%d", filepath.Base(snapshotToLoad), orch.Len(), len(snap.Placements))
	}

	writeSnapshot := func() {
		seq++
		snap := orch.ExportSnapshot(tune.GridID, seq)
		path := snapshot.PathFor(snapDir, seq)
		if err := snapshot.WriteSnapshot(path, snap); err != nil {
			logger.Printf("snapshot write: %v", err)
			return
		}
		idx.RecordSnapshot(path, snap)
		if _, err := snapshot.Prune(snapDir, tune.SnapshotKeep); err != nil {
			logger.Printf("snapshot prune: %v", err)
		}
	}

	// Periodic snapshots stop before the final one, which is written only once
	// no session can mutate the grid.
	stopSnap := make(chan struct{})
	snapDone := make(chan struct{})
	go func() {
		defer close(snapDone)
		every := tune.SnapshotEvery()
		if every <= 0 {
			<-stopSnap
			return
		}
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-stopSnap:
				return
			case <-t.C:
				writeSnapshot()
			}
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/debug/grid", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(orch.DebugGrid())
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, tune.GridID, orch, provider, idx, attempts)
	})
	wsSrv := ws.NewServer(orch, logger,
		ws.WithGridID(tune.GridID),
		ws.WithCatalog(&cats.Items),
	)
	mux.HandleFunc("/v1/ws", wsSrv.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s grid=%s items=%d", *addr, tune.GridID, len(cats.Items.Palette))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	cancel()
	<-shutdownDone
	// Shutdown does not wait for hijacked websocket connections.
	wsSrv.Close()
	close(stopSnap)
	<-snapDone
	writeSnapshot()
	logger.Printf("stopped; final snapshot seq=%d placements=%d", seq, orch.Len())
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
