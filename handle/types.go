package handle

// Handle is an opaque reference to a published stub.
// Handle 0 is reserved and always invalid.
type Handle uint32

// Valid reports whether h can refer to a stub.
func (h Handle) Valid() bool {
	return h != 0
}

// Home identifies the container stubs of one loading context live in.
// Home 0 is reserved and always invalid.
type Home uint32

// EventType distinguishes handle lifecycle notifications.
type EventType uint8

const (
	EventAllocated EventType = iota
	EventReleased
	EventHomeCreated
)

func (t EventType) String() string {
	switch t {
	case EventAllocated:
		return "allocated"
	case EventReleased:
		return "released"
	case EventHomeCreated:
		return "home_created"
	default:
		return "unknown"
	}
}

// Event describes a change in a Table.
type Event struct {
	Name   string
	Handle Handle
	Home   Home
	Type   EventType
}

// Observer receives table lifecycle events. Callbacks run with no table
// lock held.
type Observer interface {
	OnHandleEvent(e Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(e Event)

// OnHandleEvent calls f(e).
func (f ObserverFunc) OnHandleEvent(e Event) {
	f(e)
}
