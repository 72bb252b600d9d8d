package placement

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"gridplace.ai/internal/sim/grid"
)

// Placement is a read-only view of a committed placement.
type Placement struct {
	ID     string
	Item   ItemRef
	Anchor mgl64.Vec3
	Pivot  grid.Cell
	Cells  []grid.Cell
}

type entry struct {
	id     string
	item   ItemRef
	anchor mgl64.Vec3
	pivot  grid.Cell
	inst   Instance
	handle Handle
}

type Option func(*Orchestrator)

func WithLogger(l *log.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

func WithAuditLogger(a AuditLogger) Option {
	return func(o *Orchestrator) { o.audit = a }
}

// WithLoadTimeout bounds the Loading phase. Zero disables the bound.
func WithLoadTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.loadTimeout = d }
}

func WithIDGenerator(f func() string) Option {
	return func(o *Orchestrator) {
		if f != nil {
			o.newID = f
		}
	}
}

// StateFunc observes every phase a placement attempt passes through. It runs
// on the calling goroutine and must not call back into the Orchestrator.
type StateFunc func(ref ItemRef, pivot grid.Cell, st State)

func WithStateHook(f StateFunc) Option {
	return func(o *Orchestrator) { o.onState = f }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// Orchestrator runs the load → validate → commit/rollback transaction for each
// placement request and keeps the index from placement id to the live
// instance and asset handle.
type Orchestrator struct {
	grid     *grid.Grid
	provider Provider

	log         *log.Logger
	audit       AuditLogger
	loadTimeout time.Duration
	newID       func() string
	now         func() time.Time
	onState     StateFunc

	mu        sync.Mutex
	entries   map[string]*entry
	lastAudit time.Time
}

func New(g *grid.Grid, p Provider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		grid:     g,
		provider: p,
		log:      log.New(io.Discard, "", 0),
		newID:    uuid.NewString,
		now:      time.Now,
		entries:  map[string]*entry{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) Grid() *grid.Grid { return o.grid }

// Place loads ref, instantiates it at the cell anchor under pos and commits it
// to the grid if its footprint is free. On ErrLoadFailed nothing was created;
// on ErrSpaceOccupied the instance was destroyed and its handle released.
func (o *Orchestrator) Place(ctx context.Context, ref ItemRef, pos mgl64.Vec3) (Placement, error) {
	return o.place(ctx, ActionPlace, ref, pos, "")
}

func (o *Orchestrator) setState(ref ItemRef, pivot grid.Cell, st State) {
	if o.onState != nil {
		o.onState(ref, pivot, st)
	}
}

// place runs one attempt. action is what the audit log records it as.
func (o *Orchestrator) place(ctx context.Context, action string, ref ItemRef, pos mgl64.Vec3, id string) (Placement, error) {
	pivot := o.grid.WorldToCell(pos)
	anchor := o.grid.CellToWorld(pivot)
	o.setState(ref, pivot, StateRequested)

	o.setState(ref, pivot, StateLoading)
	res, err := o.load(ctx, ref)
	if err != nil {
		o.writeAudit(action, StateFailed, id, ref, pos, pivot, nil, err.Error())
		o.setState(ref, pivot, StateFailed)
		return Placement{}, fmt.Errorf("place %s: %w: %w", ref, ErrLoadFailed, err)
	}

	// ctx is no longer consulted from here on.
	o.setState(ref, pivot, StateValidating)
	inst, err := res.Prototype.Instantiate(anchor)
	if err != nil {
		if rerr := o.provider.Release(res.Handle); rerr != nil {
			o.log.Printf("release %s after instantiate failure: %v", ref, rerr)
		}
		o.writeAudit(action, StateFailed, id, ref, pos, pivot, nil, err.Error())
		o.setState(ref, pivot, StateFailed)
		return Placement{}, fmt.Errorf("place %s: instantiate: %w: %w", ref, ErrLoadFailed, err)
	}
	bounds := grid.BoundsAsMoved(inst.Bounds(), inst.Position(), anchor)

	p, err := o.commit(action, id, ref, pos, anchor, pivot, bounds, inst, res.Handle)
	if err != nil {
		if cerr := o.cleanup(inst, res.Handle); cerr != nil {
			o.log.Printf("rollback %s at %v: %v", ref, pivot, cerr)
		}
		o.writeAudit(action, StateRolledBack, id, ref, pos, pivot, nil, err.Error())
		o.setState(ref, pivot, StateRolledBack)
		return Placement{}, fmt.Errorf("place %s at %v: %w", ref, pivot.Array(), err)
	}
	o.setState(ref, pivot, StateCommitted)
	return p, nil
}

// load waits for the provider's result or ctx. A result that arrives after ctx
// is done is drained in the background and its handle released.
func (o *Orchestrator) load(ctx context.Context, ref ItemRef) (LoadResult, error) {
	if ref == "" {
		return LoadResult{}, errors.New("empty item ref")
	}
	if o.loadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.loadTimeout)
		defer cancel()
	}
	ch := o.provider.LoadAsync(ctx, ref)
	select {
	case res, ok := <-ch:
		if !ok {
			return LoadResult{}, errors.New("provider closed result channel")
		}
		if res.Err != nil {
			return LoadResult{}, res.Err
		}
		if res.Prototype == nil {
			if err := o.provider.Release(res.Handle); err != nil {
				o.log.Printf("release %s: %v", ref, err)
			}
			return LoadResult{}, errors.New("provider returned no prototype")
		}
		return res, nil
	case <-ctx.Done():
		go o.drain(ref, ch)
		return LoadResult{}, ctx.Err()
	}
}

func (o *Orchestrator) drain(ref ItemRef, ch <-chan LoadResult) {
	res, ok := <-ch
	if !ok || res.Err != nil || res.Handle == nil {
		return
	}
	if err := o.provider.Release(res.Handle); err != nil {
		o.log.Printf("release late %s: %v", ref, err)
	}
}

func (o *Orchestrator) commit(action, id string, ref ItemRef, pos, anchor mgl64.Vec3, pivot grid.Cell, bounds grid.Box, inst Instance, h Handle) (Placement, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	cells, ok := o.footprintLocked(bounds, pivot)
	if !ok {
		return Placement{}, ErrSpaceOccupied
	}
	if id == "" {
		id = o.newID()
	}
	if _, dup := o.entries[id]; dup {
		return Placement{}, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	o.grid.Register(pivot, cells, id)
	e := &entry{id: id, item: ref, anchor: anchor, pivot: pivot, inst: inst, handle: h}
	o.entries[id] = e
	p := o.viewLocked(e)
	o.writeAuditLocked(action, StateCommitted, id, ref, pos, pivot, p.Cells, "")
	return p, nil
}

// footprintLocked returns the cells bounds covers plus the pivot, and whether
// all of them are in bounds and free.
func (o *Orchestrator) footprintLocked(bounds grid.Box, pivot grid.Cell) ([]grid.Cell, bool) {
	lo, hi := o.grid.FootprintRange(bounds)
	if !o.grid.RangeInBounds(lo, hi) || !o.grid.InBounds(pivot) {
		return nil, false
	}
	cells := grid.EnumerateRange(lo, hi)
	if !containsCell(lo, hi, pivot) {
		cells = append(cells, pivot)
	}
	if !o.grid.IsEmpty(cells) {
		return nil, false
	}
	return cells, true
}

func containsCell(lo, hi, c grid.Cell) bool {
	return c.X >= lo.X && c.X <= hi.X &&
		c.Y >= lo.Y && c.Y <= hi.Y &&
		c.Z >= lo.Z && c.Z <= hi.Z
}

// cleanup always attempts both steps.
func (o *Orchestrator) cleanup(inst Instance, h Handle) error {
	var errs []error
	if err := inst.Destroy(); err != nil {
		errs = append(errs, fmt.Errorf("destroy: %w", err))
	}
	if err := o.provider.Release(h); err != nil {
		errs = append(errs, fmt.Errorf("release: %w", err))
	}
	return errors.Join(errs...)
}

// Remove frees every cell of the placement covering pos. Cleanup failures
// are logged; once the grid entry is gone the removal counts as done.
func (o *Orchestrator) Remove(pos mgl64.Vec3) (ItemRef, bool) {
	o.mu.Lock()
	id, ok := o.grid.TryRemove(pos)
	if !ok {
		o.mu.Unlock()
		return "", false
	}
	e := o.entries[id]
	delete(o.entries, id)
	if e != nil {
		o.writeAuditLocked(ActionRemove, StateCommitted, id, e.item, pos, e.pivot, nil, "")
	}
	o.mu.Unlock()

	if e == nil {
		o.log.Printf("remove: grid held %s with no index entry", id)
		return "", false
	}
	if err := o.cleanup(e.inst, e.handle); err != nil {
		o.log.Printf("remove %s: %v", id, err)
	}
	return e.item, true
}

func (o *Orchestrator) GetItemAt(pos mgl64.Vec3) (ItemRef, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.entryAtLocked(pos)
	if !ok {
		return "", false
	}
	return e.item, true
}

// GetRepresentationPositionAt returns the live instance's position, which is
// the anchor it was instantiated at unless the instance has since moved.
func (o *Orchestrator) GetRepresentationPositionAt(pos mgl64.Vec3) (mgl64.Vec3, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.entryAtLocked(pos)
	if !ok {
		return mgl64.Vec3{}, false
	}
	return e.inst.Position(), true
}

func (o *Orchestrator) PlacementAt(pos mgl64.Vec3) (Placement, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.entryAtLocked(pos)
	if !ok {
		return Placement{}, false
	}
	return o.viewLocked(e), true
}

func (o *Orchestrator) entryAtLocked(pos mgl64.Vec3) (*entry, bool) {
	rec, ok := o.grid.Lookup(pos)
	if !ok {
		return nil, false
	}
	e, ok := o.entries[rec.ID]
	return e, ok
}

func (o *Orchestrator) viewLocked(e *entry) Placement {
	p := Placement{ID: e.id, Item: e.item, Anchor: e.anchor, Pivot: e.pivot}
	if rec, ok := o.grid.LookupCell(e.pivot); ok && rec.ID == e.id {
		p.Cells = rec.Cells
	}
	return p
}

// CanPlace previews the footprint of b without loading anything. The pivot is
// the cell under b's bottom-center.
func (o *Orchestrator) CanPlace(b grid.Box) ([]grid.Cell, bool) {
	bottom := mgl64.Vec3{(b.Min[0] + b.Max[0]) / 2, b.Min[1], (b.Min[2] + b.Max[2]) / 2}
	pivot := o.grid.WorldToCell(bottom)

	o.mu.Lock()
	defer o.mu.Unlock()
	return o.footprintLocked(b, pivot)
}

// Placements lists committed placements sorted by id.
func (o *Orchestrator) Placements() []Placement {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.placementsLocked()
}

func (o *Orchestrator) placementsLocked() []Placement {
	out := make([]Placement, 0, len(o.entries))
	for _, e := range o.entries {
		out = append(out, o.viewLocked(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DebugGrid snapshots the grid for tooling without racing placements.
func (o *Orchestrator) DebugGrid() grid.DebugView {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.grid.Debug()
}

func (o *Orchestrator) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.entries)
}
