// Package handle mints opaque handles for published stubs.
//
// A Table is the default in-process allocator used by the stub cache. Each
// loading context registers a home, and every stub it publishes is stored
// under that home:
//
//	table := handle.NewTable(handle.DefaultOptions())
//	home, _ := table.NewHome("default")
//	h, err := table.Allocate(home, st)
//
//	st, ok := table.Get(h)
//	_ = table.Release(h) // h may be handed out again
//
// Handle 0 and Home 0 are never issued.
package handle
