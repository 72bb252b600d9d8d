package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const (
	Version = 1
	Ext     = ".snap.zst"
)

type Header struct {
	Version int    `json:"version"`
	GridID  string `json:"grid_id"`
	Seq     uint64 `json:"seq"`
	SavedAt int64  `json:"saved_at_unix_ms"`
	// AuditUntil is the time of the last audit entry reflected in the
	// snapshot. Replay applies only entries after it.
	AuditUntil int64 `json:"audit_until_unix_ns,omitempty"`
}

// SnapshotV1 captures the committed placements of one grid. Live instances
// and asset handles are not persisted; restore re-runs placement per record.
type SnapshotV1 struct {
	Header Header `json:"header"`

	CellSize   float64    `json:"cell_size"`
	HalfExtent [3]float64 `json:"half_extent"`
	Epsilon    float64    `json:"epsilon"`

	Placements []PlacementV1 `json:"placements"`
}

type PlacementV1 struct {
	ID     string     `json:"id"`
	Item   string     `json:"item"`
	Anchor [3]float64 `json:"anchor"`
	Pivot  [3]int     `json:"pivot"`
	Cells  [][3]int   `json:"cells"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 64*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Sync()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)

	// The header line is for tooling; gob carries it too.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

func PathFor(dir string, seq uint64) string {
	return filepath.Join(dir, strconv.FormatUint(seq, 10)+Ext)
}

type entry struct {
	seq  uint64
	path string
}

func list(dir string) []entry {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []entry
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, Ext) {
			continue
		}
		seq, err := strconv.ParseUint(strings.TrimSuffix(name, Ext), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, entry{seq: seq, path: filepath.Join(dir, name)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Latest returns the highest-sequence snapshot in dir, or ok=false.
func Latest(dir string) (path string, seq uint64, ok bool) {
	all := list(dir)
	if len(all) == 0 {
		return "", 0, false
	}
	last := all[len(all)-1]
	return last.path, last.seq, true
}

// Prune keeps the newest keep snapshots in dir and returns the removed paths.
func Prune(dir string, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	all := list(dir)
	if len(all) <= keep {
		return nil, nil
	}
	var removed []string
	for _, e := range all[:len(all)-keep] {
		if err := os.Remove(e.path); err != nil && !os.IsNotExist(err) {
			return removed, err
		}
		removed = append(removed, e.path)
	}
	return removed, nil
}
