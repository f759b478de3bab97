package handle

import (
	"fmt"
	"sync"

	"github.com/wippyai/ilstub/errors"
	"github.com/wippyai/ilstub/stub"
)

// ErrClosed matches, via errors.Is, the error returned by operations on a
// closed table. Each call returns its own error value.
var ErrClosed = &errors.Error{Phase: errors.PhaseAllocate, Kind: errors.KindClosed}

func errClosed() error {
	return errors.Closed(errors.PhaseAllocate, "handle table")
}

// Options configures a Table.
type Options struct {
	// Limit caps the number of live handles. Zero means no limit.
	Limit int
}

// DefaultOptions returns default table configuration.
func DefaultOptions() Options {
	return Options{}
}

// Table is an in-memory stub store that hands out handles.
// Thread-safe.
type Table struct {
	entries   []entry
	freeList  []Handle
	homes     []string
	observers []Observer
	opts      Options
	live      int
	mu        sync.RWMutex
	obsMu     sync.RWMutex
	closed    bool
}

type entry struct {
	stub  *stub.Stub
	home  Home
	valid bool
}

// NewTable creates an empty table.
func NewTable(opts Options) *Table {
	return &Table{
		entries:  make([]entry, 0, 64),
		freeList: make([]Handle, 0, 16),
		opts:     opts,
	}
}

// NewHome registers a stub container for a loading context.
func (t *Table) NewHome(name string) (Home, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, errClosed()
	}
	t.homes = append(t.homes, name)
	home := Home(len(t.homes))
	t.mu.Unlock()

	t.notify(Event{Type: EventHomeCreated, Home: home, Name: name})
	return home, nil
}

// HomeName returns the name a home was registered with.
func (t *Table) HomeName(home Home) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if home == 0 || int(home) > len(t.homes) {
		return "", false
	}
	return t.homes[home-1], true
}

// Allocate stores s in home and returns its handle.
func (t *Table) Allocate(home Home, s *stub.Stub) (Handle, error) {
	if s == nil {
		return 0, errors.InvalidInput(errors.PhaseAllocate, "nil stub")
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, errClosed()
	}
	if home == 0 || int(home) > len(t.homes) {
		t.mu.Unlock()
		return 0, errors.New(errors.PhaseAllocate, errors.KindInvalidInput).
			Value(home).
			Detail("unknown home %d", home).
			Build()
	}
	if t.opts.Limit > 0 && t.live >= t.opts.Limit {
		t.mu.Unlock()
		return 0, errors.AllocationFailed(errors.PhaseAllocate, "stub handle",
			fmt.Errorf("limit of %d live handles reached", t.opts.Limit))
	}

	e := entry{stub: s, home: home, valid: true}
	var h Handle
	if n := len(t.freeList); n > 0 {
		h = t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		t.entries[h-1] = e
	} else {
		t.entries = append(t.entries, e)
		h = Handle(len(t.entries))
	}
	t.live++
	t.mu.Unlock()

	t.notify(Event{Type: EventAllocated, Handle: h, Home: home})
	return h, nil
}

// Get returns the stub a handle refers to.
func (t *Table) Get(h Handle) (*stub.Stub, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.lookup(h)
	if !ok {
		return nil, false
	}
	return e.stub, true
}

// HomeOf returns the home a handle was allocated in.
func (t *Table) HomeOf(h Handle) (Home, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.lookup(h)
	if !ok {
		return 0, false
	}
	return e.home, true
}

// Release frees a handle. Released handles may be reused.
func (t *Table) Release(h Handle) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return errClosed()
	}
	e, ok := t.lookup(h)
	if !ok {
		t.mu.Unlock()
		return errors.NotFound(errors.PhaseAllocate, "handle", fmt.Sprint(uint32(h)))
	}
	home := e.home
	t.entries[h-1] = entry{}
	t.freeList = append(t.freeList, h)
	t.live--
	t.mu.Unlock()

	t.notify(Event{Type: EventReleased, Handle: h, Home: home})
	return nil
}

// Len returns the number of live handles.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.live
}

// Each calls fn for every live handle until fn returns false.
// fn must not call back into the table.
func (t *Table) Each(fn func(h Handle, s *stub.Stub) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i, e := range t.entries {
		if e.valid && !fn(Handle(i+1), e.stub) {
			return
		}
	}
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Close drops every stub and rejects further operations.
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.entries = nil
	t.freeList = nil
	t.homes = nil
	t.live = 0
	return nil
}

// lookup requires t.mu.
func (t *Table) lookup(h Handle) (entry, bool) {
	if h == 0 || int(h) > len(t.entries) {
		return entry{}, false
	}
	e := t.entries[h-1]
	return e, e.valid
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnHandleEvent(e)
	}
}
