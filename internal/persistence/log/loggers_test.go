package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zstd"

	"gridplace.ai/internal/sim/placement"
)

func readLines(t *testing.T, path string) []placement.AuditEntry {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	defer dec.Close()

	var out []placement.AuditEntry
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		var e placement.AuditEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return out
}

func TestAuditLogger_WritesRotatingJSONL(t *testing.T) {
	dir := t.TempDir()
	l := NewAuditLogger(dir)
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	l.w.now = func() time.Time { return clock }

	first := placement.AuditEntry{Time: clock, Action: placement.ActionPlace, State: "COMMITTED", PlacementID: "p1", Item: "HUT", Pivot: [3]int{1, 0, 2}, Cells: [][3]int{{1, 0, 2}}}
	if err := l.WriteAudit(first); err != nil {
		t.Fatalf("write: %v", err)
	}
	firstPath := l.w.Path()

	if st, err := os.Stat(firstPath); err != nil || st.Size() == 0 {
		t.Fatalf("entry not flushed before close: %v", err)
	}

	clock = clock.Add(2 * time.Minute)
	second := placement.AuditEntry{Time: clock, Action: placement.ActionRemove, State: "COMMITTED", PlacementID: "p1", Item: "HUT"}
	if err := l.WriteAudit(second); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if want := filepath.Join(dir, "audit", "audit-2026-03-01-10.jsonl.zst"); firstPath != want {
		t.Fatalf("path = %s, want %s", firstPath, want)
	}
	if diff := cmp.Diff([]placement.AuditEntry{first}, readLines(t, firstPath)); diff != "" {
		t.Fatalf("hour 10 (-want +got):\n%s", diff)
	}
	secondPath := filepath.Join(dir, "audit", "audit-2026-03-01-11.jsonl.zst")
	if diff := cmp.Diff([]placement.AuditEntry{second}, readLines(t, secondPath)); diff != "" {
		t.Fatalf("hour 11 (-want +got):\n%s", diff)
	}
}

type errAudit struct{ n int }

func (e *errAudit) WriteAudit(placement.AuditEntry) error {
	e.n++
	return errors.New("down")
}

func TestMultiAudit_WritesAll(t *testing.T) {
	a, b := &errAudit{}, &errAudit{}
	m := MultiAudit{a, nil, b}
	if err := m.WriteAudit(placement.AuditEntry{}); err == nil {
		t.Fatalf("expected error")
	}
	if a.n != 1 || b.n != 1 {
		t.Fatalf("calls = %d %d", a.n, b.n)
	}
}

func TestReadAuditFile_AfterRotation(t *testing.T) {
	dir := t.TempDir()
	l := NewAuditLogger(dir)
	clock := time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC)
	l.w.now = func() time.Time { return clock }

	var want []placement.AuditEntry
	for i, id := range []string{"p1", "p2", "p3"} {
		e := placement.AuditEntry{Time: clock, Action: placement.ActionPlace, State: "COMMITTED", PlacementID: id, Item: "HUT", Pivot: [3]int{i, 0, 0}}
		if err := l.WriteAudit(e); err != nil {
			t.Fatalf("write: %v", err)
		}
		want = append(want, e)
		clock = clock.Add(20 * time.Minute)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := ListFiles(filepath.Join(dir, "audit"), "audit")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "audit-2026-03-01-23.jsonl.zst" || filepath.Base(files[1]) != "audit-2026-03-02-00.jsonl.zst" {
		t.Fatalf("files = %v", files)
	}
	var got []placement.AuditEntry
	for _, f := range files {
		if err := ReadAuditFile(f, func(e placement.AuditEntry) error {
			got = append(got, e)
			return nil
		}); err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("entries (-want +got):\n%s", diff)
	}
}
