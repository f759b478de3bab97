package stub

import "github.com/wippyai/ilstub/errors"

// Label is a branch target owned by one Linker. The zero Label is invalid.
type Label struct {
	owner *Linker
	id    int32
	gen   uint32
}

// ID returns the label's index within its linker.
func (l Label) ID() int {
	return int(l.id)
}

// Valid reports whether the label was issued by a linker.
func (l Label) Valid() bool {
	return l.owner != nil
}

// labelState is the position bookkeeping for one label. Offsets start at -1
// and are assigned during the first link pass.
type labelState struct {
	stream int
	instr  int
	offset int
}

// NewLabel allocates an unmarked label.
func (l *Linker) NewLabel() Label {
	l.labels = append(l.labels, labelState{stream: -1, instr: -1, offset: -1})
	return Label{owner: l, id: int32(len(l.labels) - 1), gen: l.gen}
}

// LabelOffset returns the byte offset assigned to a label, or -1 before link.
func (l *Linker) LabelOffset(lbl Label) int {
	l.checkLabel(lbl)
	return l.labels[lbl.id].offset
}

func (l *Linker) checkLabel(lbl Label) {
	if lbl.owner != l {
		panic(errors.ContractViolation(errors.PhaseEmit,
			"label %d belongs to a different linker", lbl.id))
	}
	if lbl.gen != l.gen || lbl.id < 0 || int(lbl.id) >= len(l.labels) {
		panic(errors.ContractViolation(errors.PhaseEmit,
			"label %d was discarded by ClearCode", lbl.id))
	}
}
