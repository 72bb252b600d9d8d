package placement

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"gridplace.ai/internal/sim/grid"
)

type fakeHandle int

type fakeProvider struct {
	mu          sync.Mutex
	defs        map[ItemRef]grid.Box
	loadErr     map[ItemRef]error
	releaseErr  error
	destroyErr  error
	next        int
	outstanding map[fakeHandle]bool
	instances   []*fakeInstance

	// gate, when set, holds every load until closed and ignores ctx.
	gate chan struct{}
	// sent is signalled after each result is delivered.
	sent chan struct{}
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		defs:        map[ItemRef]grid.Box{},
		loadErr:     map[ItemRef]error{},
		outstanding: map[fakeHandle]bool{},
	}
}

func (p *fakeProvider) add(ref ItemRef, min, max mgl64.Vec3) {
	p.defs[ref] = grid.NewBox(min, max)
}

func (p *fakeProvider) LoadAsync(ctx context.Context, ref ItemRef) <-chan LoadResult {
	ch := make(chan LoadResult, 1)
	go func() {
		if p.gate != nil {
			<-p.gate
		}
		ch <- p.resolve(ref)
		if p.sent != nil {
			p.sent <- struct{}{}
		}
	}()
	return ch
}

func (p *fakeProvider) resolve(ref ItemRef) LoadResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.loadErr[ref]; err != nil {
		return LoadResult{Err: err}
	}
	b, ok := p.defs[ref]
	if !ok {
		return LoadResult{Err: fmt.Errorf("no such item %q", ref)}
	}
	p.next++
	h := fakeHandle(p.next)
	p.outstanding[h] = true
	return LoadResult{Prototype: &fakePrototype{p: p, local: b}, Handle: h}
}

func (p *fakeProvider) Release(h Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	fh, ok := h.(fakeHandle)
	if !ok {
		return errors.New("foreign handle")
	}
	delete(p.outstanding, fh)
	return p.releaseErr
}

func (p *fakeProvider) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.outstanding)
}

func (p *fakeProvider) Instances() []*fakeInstance {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*fakeInstance(nil), p.instances...)
}

type fakePrototype struct {
	p     *fakeProvider
	local grid.Box
}

func (fp *fakePrototype) Instantiate(pos mgl64.Vec3) (Instance, error) {
	fp.p.mu.Lock()
	defer fp.p.mu.Unlock()
	inst := &fakeInstance{pos: pos, local: fp.local, destroyErr: fp.p.destroyErr}
	fp.p.instances = append(fp.p.instances, inst)
	return inst, nil
}

type fakeInstance struct {
	mu         sync.Mutex
	pos        mgl64.Vec3
	local      grid.Box
	destroyed  bool
	destroyErr error
}

func (i *fakeInstance) Position() mgl64.Vec3 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.pos
}

func (i *fakeInstance) Bounds() grid.Box {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.local.Translate(i.pos)
}

func (i *fakeInstance) Destroy() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.destroyed = true
	return i.destroyErr
}

func (i *fakeInstance) Destroyed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.destroyed
}

type memAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (m *memAudit) WriteAudit(e AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memAudit) all() []AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AuditEntry(nil), m.entries...)
}

// gatedAudit holds every PLACE COMMITTED write until release is closed.
type gatedAudit struct {
	memAudit
	entered chan struct{}
	release chan struct{}
}

func (g *gatedAudit) WriteAudit(e AuditEntry) error {
	if e.Action == ActionPlace && e.State == StateCommitted.String() {
		g.entered <- struct{}{}
		<-g.release
	}
	return g.memAudit.WriteAudit(e)
}
