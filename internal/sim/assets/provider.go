package assets

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"gridplace.ai/internal/sim/catalogs"
	"gridplace.ai/internal/sim/grid"
	"gridplace.ai/internal/sim/placement"
)

var ErrUnknownItem = errors.New("unknown item")

// Handle is the release token for one successful load.
type Handle struct {
	seq  uint64
	item placement.ItemRef
}

// CatalogProvider serves prototypes from an item catalog. Loads resolve on
// their own goroutine after the item's load_delay_ms.
type CatalogProvider struct {
	items *catalogs.ItemCatalog

	mu          sync.Mutex
	next        uint64
	outstanding map[uint64]placement.ItemRef
}

func NewCatalogProvider(items *catalogs.ItemCatalog) *CatalogProvider {
	return &CatalogProvider{
		items:       items,
		outstanding: map[uint64]placement.ItemRef{},
	}
}

func (p *CatalogProvider) LoadAsync(ctx context.Context, ref placement.ItemRef) <-chan placement.LoadResult {
	ch := make(chan placement.LoadResult, 1)
	go func() {
		def, ok := p.items.Get(string(ref))
		if !ok {
			ch <- placement.LoadResult{Err: fmt.Errorf("%w: %s", ErrUnknownItem, ref)}
			return
		}
		if def.LoadDelayMs > 0 {
			t := time.NewTimer(time.Duration(def.LoadDelayMs) * time.Millisecond)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				ch <- placement.LoadResult{Err: ctx.Err()}
				return
			}
		}
		ch <- placement.LoadResult{
			Prototype: &Prototype{def: def},
			Handle:    p.acquire(ref),
		}
	}()
	return ch
}

func (p *CatalogProvider) acquire(ref placement.ItemRef) Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	p.outstanding[p.next] = ref
	return Handle{seq: p.next, item: ref}
}

// Release is idempotent. Releasing a handle this provider never issued is an
// error.
func (p *CatalogProvider) Release(h placement.Handle) error {
	hh, ok := h.(Handle)
	if !ok {
		return fmt.Errorf("release: foreign handle %T", h)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if hh.seq == 0 || hh.seq > p.next {
		return fmt.Errorf("release: unknown handle %d", hh.seq)
	}
	delete(p.outstanding, hh.seq)
	return nil
}

// Outstanding returns the number of loads not yet released.
func (p *CatalogProvider) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.outstanding)
}

type Prototype struct {
	def catalogs.ItemDef
}

func (p *Prototype) Def() catalogs.ItemDef { return p.def }

func (p *Prototype) Instantiate(pos mgl64.Vec3) (placement.Instance, error) {
	local := grid.NewBox(mgl64.Vec3(p.def.Bounds[0]), mgl64.Vec3(p.def.Bounds[1]))
	return &Instance{item: p.def.ID, pos: pos, local: local}, nil
}

// Instance is a headless stand-in for a spawned structure.
type Instance struct {
	item  string
	local grid.Box

	mu        sync.Mutex
	pos       mgl64.Vec3
	destroyed bool
}

func (i *Instance) Item() string { return i.item }

func (i *Instance) Position() mgl64.Vec3 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.pos
}

func (i *Instance) Bounds() grid.Box {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.local.Translate(i.pos)
}

// MoveTo repositions the instance without touching the grid.
func (i *Instance) MoveTo(pos mgl64.Vec3) {
	i.mu.Lock()
	i.pos = pos
	i.mu.Unlock()
}

func (i *Instance) Destroy() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.destroyed = true
	return nil
}

func (i *Instance) Destroyed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.destroyed
}
