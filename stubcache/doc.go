// Package stubcache deduplicates generated stubs by content.
//
// A Blob identifies a stub: an 8-byte little-endian length header followed
// by whatever bytes the caller uses to describe the stub's shape. Two
// requests with byte-identical blobs share one published handle.
//
//	cache := stubcache.New("app", table, stubcache.DefaultOptions())
//	h, err := cache.GetOrCreate(blob, func() (*stub.Stub, error) {
//		return linker.Build()
//	})
//
// Builds run with no lock held. Concurrent misses for the same blob are
// coalesced into a single build; when coalescing is disabled, racing
// builders each allocate a candidate and every candidate but the first
// published one is released through the Allocator.
//
// Entries live in an open-addressing table with linear probing. Delete
// leaves a tombstone so probe chains stay intact; tombstones are dropped
// when the table grows.
package stubcache
