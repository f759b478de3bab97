package stubcache

// Options configures a Cache.
type Options struct {
	// InitialCapacity is the starting number of table slots. It is rounded
	// up to a power of two.
	InitialCapacity int
	// Coalesce merges concurrent misses for the same blob into one build.
	// When disabled, racing builders each build and all but the first
	// published candidate are released.
	Coalesce bool
}

// DefaultOptions returns default cache configuration.
func DefaultOptions() Options {
	return Options{
		InitialCapacity: 16,
		Coalesce:        true,
	}
}
