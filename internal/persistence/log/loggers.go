package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"gridplace.ai/internal/sim/placement"
)

const hourLayout = "2006-01-02-15"

// JSONLZstdWriter appends JSON lines to <dir>/<prefix>-<hour>.jsonl.zst,
// starting a new file when the UTC hour changes. Every Write ends a zstd
// block, so a crashed process loses at most the line being written.
type JSONLZstdWriter struct {
	dir    string
	prefix string
	now    func() time.Time

	mu   sync.Mutex
	hour string
	f    *os.File
	enc  *zstd.Encoder
	bw   *bufio.Writer
}

func NewJSONLZstdWriter(dir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{dir: dir, prefix: prefix, now: time.Now}
}

func (w *JSONLZstdWriter) Write(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if hour := w.now().UTC().Format(hourLayout); hour != w.hour || w.bw == nil {
		if err := w.openLocked(hour); err != nil {
			return err
		}
	}
	if _, err := w.bw.Write(append(b, '\n')); err != nil {
		return err
	}
	if err := w.bw.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

// Path returns the file the next Write would go to.
func (w *JSONLZstdWriter) Path() string {
	return w.pathFor(w.now().UTC().Format(hourLayout))
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) openLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathFor(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f, w.enc, w.bw, w.hour = f, enc, bufio.NewWriterSize(enc, 32*1024), hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	if w.f == nil {
		return nil
	}
	var err error
	if ferr := w.bw.Flush(); ferr != nil {
		err = ferr
	}
	if cerr := w.enc.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if cerr := w.f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	w.f, w.enc, w.bw = nil, nil, nil
	return err
}

func (w *JSONLZstdWriter) pathFor(hour string) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// AuditLogger writes placement audit entries under <gridDir>/audit.
type AuditLogger struct{ w *JSONLZstdWriter }

func NewAuditLogger(gridDir string) *AuditLogger {
	return &AuditLogger{w: NewJSONLZstdWriter(filepath.Join(gridDir, "audit"), "audit")}
}

func (l *AuditLogger) WriteAudit(v placement.AuditEntry) error { return l.w.Write(v) }
func (l *AuditLogger) Close() error                            { return l.w.Close() }

// MultiAudit fans one entry out to several loggers and returns the first error.
type MultiAudit []placement.AuditLogger

func (m MultiAudit) WriteAudit(e placement.AuditEntry) error {
	var first error
	for _, l := range m {
		if l == nil {
			continue
		}
		if err := l.WriteAudit(e); err != nil && first == nil {
			first = err
		}
	}
	return first
}
