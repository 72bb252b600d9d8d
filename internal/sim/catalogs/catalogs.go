package catalogs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type Catalogs struct {
	Items ItemCatalog
}

type ItemCatalog struct {
	Palette       []string
	Defs          map[string]ItemDef
	PaletteDigest string
	DefsDigest    string
}

// ItemDef describes one placeable structure. Bounds are local to the anchor
// the structure is placed at (the bottom-center of its pivot cell).
type ItemDef struct {
	ID          string        `json:"id"`
	Name        string        `json:"name,omitempty"`
	Kind        string        `json:"kind,omitempty"` // "BUILDING","PROP","DECOR"
	Bounds      [2][3]float64 `json:"bounds"`
	LoadDelayMs int           `json:"load_delay_ms,omitempty"`
}

func (d ItemDef) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("empty id")
	}
	for i := 0; i < 3; i++ {
		if d.Bounds[0][i] > d.Bounds[1][i] {
			return fmt.Errorf("item %s: bounds min[%d]=%v > max[%d]=%v", d.ID, i, d.Bounds[0][i], i, d.Bounds[1][i])
		}
	}
	if d.LoadDelayMs < 0 {
		return fmt.Errorf("item %s: load_delay_ms must be >= 0", d.ID)
	}
	return nil
}

func (c *ItemCatalog) Get(id string) (ItemDef, bool) {
	if c == nil {
		return ItemDef{}, false
	}
	d, ok := c.Defs[id]
	return d, ok
}

// Load reads <configDir>/items.json plus any <configDir>/items/*.json files
// (one ItemDef each).
func Load(configDir string) (*Catalogs, error) {
	var c Catalogs
	if err := loadItems(filepath.Join(configDir, "items.json"), filepath.Join(configDir, "items"), &c.Items); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadItems(path, extraDir string, out *ItemCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var defs []ItemDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("items.json: %w", err)
	}

	var concat bytes.Buffer
	concat.Write(raw)
	extra, extraRaw, err := loadItemFiles(extraDir)
	if err != nil {
		return err
	}
	concat.Write(extraRaw)
	out.DefsDigest = sha256Hex(concat.Bytes())

	out.Defs = map[string]ItemDef{}
	for _, d := range append(defs, extra...) {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("items: %w", err)
		}
		if _, dup := out.Defs[d.ID]; dup {
			return fmt.Errorf("items: duplicate id %s", d.ID)
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out.Palette = ids
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

func loadItemFiles(dir string) ([]ItemDef, []byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		// The extra directory is optional.
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".json") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	var (
		concat bytes.Buffer
		defs   []ItemDef
	)
	for _, p := range files {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, nil, err
		}
		concat.WriteByte('\n')
		concat.Write(b)

		var d ItemDef
		if err := json.Unmarshal(b, &d); err != nil {
			return nil, nil, fmt.Errorf("item %s: %w", filepath.Base(p), err)
		}
		if d.ID == "" {
			return nil, nil, fmt.Errorf("item %s: missing id", filepath.Base(p))
		}
		defs = append(defs, d)
	}
	return defs, concat.Bytes(), nil
}
