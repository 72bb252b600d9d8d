package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"gridplace.ai/internal/persistence/snapshot"
	"gridplace.ai/internal/sim/catalogs"
	"gridplace.ai/internal/sim/placement"
	"gridplace.ai/internal/sim/tuning"
)

// SQLiteIndex is a queryable read model of placements and audits. It is fed
// asynchronously and may drop writes under load; the JSONL audit log and the
// snapshots stay authoritative.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.RWMutex
	closed bool

	dropAudit    atomic.Uint64
	dropSnapshot atomic.Uint64
}

type Stats struct {
	QueueDepth        int    `json:"queue_depth"`
	DropAuditTotal    uint64 `json:"drop_audit_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
}

type reqKind int

const (
	reqAudit reqKind = iota + 1
	reqSnapshot
)

type req struct {
	kind reqKind

	audit    placement.AuditEntry
	snapshot snapshotRow
}

type snapshotRow struct {
	Seq        uint64
	Path       string
	GridID     string
	SavedAt    int64
	Placements int
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS placements (
			id TEXT PRIMARY KEY,
			item TEXT NOT NULL,
			pivot_x INTEGER NOT NULL,
			pivot_y INTEGER NOT NULL,
			pivot_z INTEGER NOT NULL,
			cell_count INTEGER NOT NULL,
			cells_json TEXT NOT NULL,
			placed_at TEXT NOT NULL,
			removed_at TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_placements_item ON placements(item);`,
		`CREATE TABLE IF NOT EXISTS audits (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			time TEXT NOT NULL,
			action TEXT NOT NULL,
			state TEXT NOT NULL,
			placement_id TEXT,
			item TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			reason TEXT,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_placement ON audits(placement_id);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_pos ON audits(x, z, y);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			seq INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			grid_id TEXT NOT NULL,
			saved_at INTEGER NOT NULL,
			placements INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close drains the queue, commits and closes the database.
func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		DropAuditTotal:    s.dropAudit.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
	}
}

func (s *SQLiteIndex) WriteAudit(entry placement.AuditEntry) error {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}
	select {
	case s.ch <- req{kind: reqAudit, audit: entry}:
	default:
		s.dropAudit.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	r := snapshotRow{
		Seq:        snap.Header.Seq,
		Path:       path,
		GridID:     snap.Header.GridID,
		SavedAt:    snap.Header.SavedAt,
		Placements: len(snap.Placements),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

// UpsertCatalogs stores the item catalog and the effective tuning so a reader
// can tell which definitions produced the indexed placements.
func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if configDir != "" {
		if b, err := os.ReadFile(filepath.Join(configDir, "items.json")); err == nil {
			rows = append(rows, kv{name: "items_file", digest: cats.Items.DefsDigest, json: b})
		}
	}
	{
		defs := make([]catalogs.ItemDef, 0, len(cats.Items.Defs))
		for _, d := range cats.Items.Defs {
			defs = append(defs, d)
		}
		sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
		if b, _ := json.Marshal(defs); len(b) > 0 {
			rows = append(rows, kv{name: "items_defs", digest: cats.Items.DefsDigest, json: b})
		}
	}
	if b, _ := json.Marshal(cats.Items.Palette); len(b) > 0 {
		rows = append(rows, kv{name: "items_palette", digest: cats.Items.PaletteDigest, json: b})
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertAudit, _ := s.db.Prepare(`INSERT INTO audits(time,action,state,placement_id,item,x,y,z,reason,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	upsertPlacement, _ := s.db.Prepare(`INSERT OR REPLACE INTO placements(id,item,pivot_x,pivot_y,pivot_z,cell_count,cells_json,placed_at,removed_at) VALUES(?,?,?,?,?,?,?,?,NULL)`)
	restorePlacement, _ := s.db.Prepare(`INSERT INTO placements(id,item,pivot_x,pivot_y,pivot_z,cell_count,cells_json,placed_at,removed_at) VALUES(?,?,?,?,?,?,?,?,NULL) ON CONFLICT(id) DO UPDATE SET removed_at=NULL`)
	markRemoved, _ := s.db.Prepare(`UPDATE placements SET removed_at=? WHERE id=? AND removed_at IS NULL`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(seq,path,grid_id,saved_at,placements) VALUES(?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertAudit, upsertPlacement, restorePlacement, markRemoved, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil {
			return true
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqAudit:
			a := r.audit
			ts := a.Time.UTC().Format(time.RFC3339Nano)
			raw, _ := json.Marshal(a)
			var pid any
			if a.PlacementID != "" {
				pid = a.PlacementID
			}
			if !exec(insertAudit, ts, a.Action, a.State, pid, a.Item, a.Pivot[0], a.Pivot[1], a.Pivot[2], a.Reason, string(raw)) {
				continue
			}
			if a.State != placement.StateCommitted.String() || a.PlacementID == "" {
				break
			}
			switch a.Action {
			case placement.ActionPlace:
				cells, _ := json.Marshal(a.Cells)
				exec(upsertPlacement, a.PlacementID, a.Item, a.Pivot[0], a.Pivot[1], a.Pivot[2], len(a.Cells), string(cells), ts)
			case placement.ActionRestore:
				// Keeps the original placed_at when the row exists.
				cells, _ := json.Marshal(a.Cells)
				exec(restorePlacement, a.PlacementID, a.Item, a.Pivot[0], a.Pivot[1], a.Pivot[2], len(a.Cells), string(cells), ts)
			case placement.ActionRemove:
				exec(markRemoved, ts, a.PlacementID)
			}

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, int64(sn.Seq), sn.Path, sn.GridID, sn.SavedAt, sn.Placements)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
