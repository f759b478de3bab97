package stubcache

import (
	"github.com/wippyai/ilstub/handle"
)

type slotState uint8

const (
	slotFree slotState = iota
	slotUsed
	slotDeleted
)

type slot struct {
	blob   Blob
	handle handle.Handle
	hash   uint32
	state  slotState
}

// table is an open-addressing hash table with linear probing. Deleted
// slots stay as tombstones until the next growth. Not thread-safe.
type table struct {
	slots   []slot
	used    int
	deleted int
}

const minSlots = 8

func newTable(capacity int) *table {
	return &table{slots: make([]slot, slotCount(capacity))}
}

func slotCount(capacity int) int {
	n := minSlots
	for n < capacity {
		n <<= 1
	}
	return n
}

// find returns the index of the Used slot holding blob.
func (t *table) find(blob Blob, hash uint32) (int, bool) {
	mask := len(t.slots) - 1
	for i, n := int(hash)&mask, 0; n < len(t.slots); i, n = (i+1)&mask, n+1 {
		s := &t.slots[i]
		switch s.state {
		case slotFree:
			return -1, false
		case slotUsed:
			if s.hash == hash && s.blob.Equal(blob) {
				return i, true
			}
		}
	}
	return -1, false
}

// insert publishes blob. The caller has checked that it is absent and
// passes a blob copy the table may keep.
func (t *table) insert(blob Blob, hash uint32, h handle.Handle) {
	if (t.used+t.deleted+1)*4 > len(t.slots)*3 {
		t.grow()
	}
	mask := len(t.slots) - 1
	for i := int(hash) & mask; ; i = (i + 1) & mask {
		s := &t.slots[i]
		if s.state == slotUsed {
			continue
		}
		if s.state == slotDeleted {
			t.deleted--
		}
		*s = slot{blob: blob, handle: h, hash: hash, state: slotUsed}
		t.used++
		return
	}
}

// remove tombstones the slot holding blob.
func (t *table) remove(blob Blob, hash uint32) (handle.Handle, bool) {
	i, ok := t.find(blob, hash)
	if !ok {
		return 0, false
	}
	h := t.slots[i].handle
	t.slots[i] = slot{state: slotDeleted}
	t.used--
	t.deleted++
	return h, true
}

// grow rehashes the live entries, doubling when more than half the slots
// are live. Tombstones are dropped.
func (t *table) grow() {
	n := len(t.slots)
	if (t.used+1)*2 > n {
		n <<= 1
	}
	old := t.slots
	t.slots = make([]slot, n)
	t.used = 0
	t.deleted = 0
	mask := n - 1
	for _, s := range old {
		if s.state != slotUsed {
			continue
		}
		i := int(s.hash) & mask
		for t.slots[i].state == slotUsed {
			i = (i + 1) & mask
		}
		t.slots[i] = s
		t.used++
	}
}

func (t *table) each(fn func(s *slot)) {
	for i := range t.slots {
		if t.slots[i].state == slotUsed {
			fn(&t.slots[i])
		}
	}
}
