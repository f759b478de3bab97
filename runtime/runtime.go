package runtime

import (
	"sync/atomic"

	"go.uber.org/multierr"

	"github.com/wippyai/ilstub/errors"
	"github.com/wippyai/ilstub/handle"
	"github.com/wippyai/ilstub/stub"
	"github.com/wippyai/ilstub/stubcache"
)

// Options configures a Runtime.
type Options struct {
	Handles handle.Options
	Cache   stubcache.Options
	// Linker is applied to every stub a Context builds.
	Linker stub.Options
}

// DefaultOptions returns default runtime configuration.
func DefaultOptions() Options {
	return Options{
		Handles: handle.DefaultOptions(),
		Cache:   stubcache.DefaultOptions(),
		Linker:  stub.DefaultOptions(),
	}
}

// Runtime owns the handle table and one stub cache per loading context.
type Runtime struct {
	table  *handle.Table
	caches *stubcache.Registry
	opts   Options
}

func New(opts Options) *Runtime {
	table := handle.NewTable(opts.Handles)
	return &Runtime{
		table:  table,
		caches: stubcache.NewRegistry(table, opts.Cache),
		opts:   opts,
	}
}

// Handles returns the table published stubs live in.
func (r *Runtime) Handles() *handle.Table {
	return r.table
}

// Get returns the stub a handle refers to.
func (r *Runtime) Get(h handle.Handle) (*stub.Stub, bool) {
	return r.table.Get(h)
}

// Open returns a Context for the named loading context. Contexts opened
// with the same name share a cache. Each Context must be closed.
func (r *Runtime) Open(name string) (*Context, error) {
	cache, err := r.caches.Acquire(name)
	if err != nil {
		return nil, err
	}
	return &Context{rt: r, cache: cache, name: name}, nil
}

// Close releases every cache and then the handle table.
// All contexts are invalid afterwards.
func (r *Runtime) Close() error {
	return multierr.Append(r.caches.Close(), r.table.Close())
}

// EmitFunc fills in the code streams of a fresh linker.
type EmitFunc func(l *stub.Linker) error

// Context generates stubs for one loading context. Safe for concurrent use.
type Context struct {
	rt     *Runtime
	cache  *stubcache.Cache
	name   string
	closed atomic.Bool
}

// Name returns the loading context name.
func (c *Context) Name() string {
	return c.name
}

// Cache returns the context's stub cache.
func (c *Context) Cache() *stubcache.Cache {
	return c.cache
}

// Stub returns the handle of the stub identified by blob. On a miss it
// creates a linker from cfg, runs emit on it and publishes the result.
// Linker options in cfg are replaced by the runtime's.
func (c *Context) Stub(blob stubcache.Blob, cfg stub.Config, emit EmitFunc) (handle.Handle, error) {
	if c.closed.Load() {
		return 0, errors.Closed(errors.PhaseCache, "context "+c.name)
	}
	if emit == nil {
		return 0, errors.InvalidInput(errors.PhaseEmit, "nil emit function")
	}
	cfg.Options = c.rt.opts.Linker
	return c.cache.GetOrCreate(blob, func() (*stub.Stub, error) {
		l, err := stub.New(cfg)
		if err != nil {
			return nil, err
		}
		if err := emit(l); err != nil {
			return nil, err
		}
		return l.Build()
	})
}

// Close drops the context's reference to its cache. The last Close for a
// name releases that cache's stubs.
func (c *Context) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.rt.caches.Release(c.name)
}
