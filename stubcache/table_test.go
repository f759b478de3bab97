package stubcache

import (
	"testing"

	"github.com/wippyai/ilstub/handle"
)

func TestTableTombstones(t *testing.T) {
	tb := newTable(0)
	const hash = 3
	a, b, c := NewBlob([]byte{'a'}), NewBlob([]byte{'b'}), NewBlob([]byte{'c'})

	tb.insert(a, hash, 1)
	tb.insert(b, hash, 2)
	tb.insert(c, hash, 3)

	if h, ok := tb.remove(b, hash); !ok || h != 2 {
		t.Fatalf("remove = %d, %v", h, ok)
	}
	if tb.slots[4].state != slotDeleted {
		t.Fatalf("slot 4 state = %d, want tombstone", tb.slots[4].state)
	}
	// c sits past the tombstone in the same probe chain.
	if i, ok := tb.find(c, hash); !ok || tb.slots[i].handle != 3 {
		t.Errorf("find past tombstone = %d, %v", i, ok)
	}
	if _, ok := tb.find(b, hash); ok {
		t.Error("deleted blob still found")
	}
	if _, ok := tb.remove(b, hash); ok {
		t.Error("second remove succeeded")
	}

	tb.insert(b, hash, 4)
	if tb.slots[4].state != slotUsed || tb.slots[4].handle != 4 {
		t.Errorf("tombstone not reused: %+v", tb.slots[4])
	}
	if tb.used != 3 || tb.deleted != 0 {
		t.Errorf("used=%d deleted=%d", tb.used, tb.deleted)
	}
}

func TestTableGrow(t *testing.T) {
	tb := newTable(0)
	blobs := make([]Blob, 20)
	for i := range blobs {
		blobs[i] = NewBlob([]byte{byte(i)})
		tb.insert(blobs[i], hashBlob(blobs[i]), handle.Handle(i+1))
	}
	if len(tb.slots) < 32 {
		t.Errorf("slots = %d after 20 inserts", len(tb.slots))
	}
	for i, b := range blobs {
		j, ok := tb.find(b, hashBlob(b))
		if !ok || tb.slots[j].handle != handle.Handle(i+1) {
			t.Errorf("blob %d: found=%v", i, ok)
		}
	}
}

func TestTableGrowDropsTombstones(t *testing.T) {
	tb := newTable(0)
	n := len(tb.slots)
	for i := range 100 {
		b := NewBlob([]byte{byte(i)})
		tb.insert(b, hashBlob(b), handle.Handle(i+1))
		tb.remove(b, hashBlob(b))
	}
	if len(tb.slots) != n {
		t.Errorf("slots = %d, want %d with no live entries", len(tb.slots), n)
	}
	if tb.used != 0 || tb.deleted > n*3/4 {
		t.Errorf("used=%d deleted=%d", tb.used, tb.deleted)
	}
	// A free slot must remain so misses terminate.
	if _, ok := tb.find(NewBlob([]byte("missing")), 0); ok {
		t.Error("found a blob that was never inserted")
	}
}

func TestSlotCount(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, 8}, {-1, 8}, {8, 8}, {9, 16}, {100, 128},
	}
	for _, tt := range tests {
		if got := slotCount(tt.in); got != tt.want {
			t.Errorf("slotCount(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
