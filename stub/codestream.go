package stub

import (
	"fmt"

	"github.com/wippyai/ilstub/errors"
	"github.com/wippyai/ilstub/opcode"
)

// StreamKind names the phase a code stream belongs to.
type StreamKind uint8

const (
	StreamInitialize StreamKind = iota
	StreamMarshal
	StreamCallMethod
	StreamUnmarshalReturn
	StreamUnmarshal
	StreamExceptionCleanup
	StreamCleanup
	StreamExceptionHandler
)

var streamNames = [...]string{
	StreamInitialize:       "Initialize",
	StreamMarshal:          "Marshal",
	StreamCallMethod:       "CallMethod",
	StreamUnmarshalReturn:  "UnmarshalReturn",
	StreamUnmarshal:        "Unmarshal",
	StreamExceptionCleanup: "ExceptionCleanup",
	StreamCleanup:          "Cleanup",
	StreamExceptionHandler: "ExceptionHandler",
}

func (k StreamKind) String() string {
	if int(k) < len(streamNames) {
		return streamNames[k]
	}
	return fmt.Sprintf("stream(%d)", uint8(k))
}

// noLabel marks an instruction that carries no label reference.
const noLabel int32 = -1

// Instruction is one symbolic instruction. For branches Arg holds the
// sign-extended displacement once the stub is linked.
type Instruction struct {
	Op         opcode.Opcode
	StackDelta int16
	Arg        uint64
	label      int32
}

// Label returns the label id referenced by a branch or label marker, or -1.
func (i Instruction) Label() int {
	return int(i.label)
}

// CodeStream is an ordered instruction sequence for one stub phase.
// Not thread-safe.
type CodeStream struct {
	owner    *Linker
	instrs   []Instruction
	building []ehClause
	finished []ehClause
	index    int
	kind     StreamKind
}

// Kind returns the phase of the stream.
func (s *CodeStream) Kind() StreamKind {
	return s.kind
}

// Len returns the number of instructions, label markers included.
func (s *CodeStream) Len() int {
	return len(s.instrs)
}

// Instructions returns a copy of the stream contents.
func (s *CodeStream) Instructions() []Instruction {
	return append([]Instruction(nil), s.instrs...)
}

// Emit appends an instruction with an explicit stack delta. Branches go
// through the branch helpers; short branches and switch are not supported.
func (s *CodeStream) Emit(op opcode.Opcode, stackDelta int16, arg uint64) {
	s.checkOpen()
	switch {
	case !op.Valid():
		panic(errors.ContractViolation(errors.PhaseEmit, "invalid opcode %d", uint16(op)))
	case op == opcode.Switch, op.IsShortBranch():
		panic(errors.ContractViolation(errors.PhaseEmit, "%s is not supported", op))
	case op == opcode.CodeLabel, op.IsBranch():
		panic(errors.ContractViolation(errors.PhaseEmit, "%s requires a label", op))
	}
	s.instrs = append(s.instrs, Instruction{Op: op, StackDelta: stackDelta, Arg: arg, label: noLabel})
}

// EmitBranch appends a long-form branch to lbl.
func (s *CodeStream) EmitBranch(op opcode.Opcode, stackDelta int16, lbl Label) {
	s.checkOpen()
	if !op.IsBranch() {
		panic(errors.ContractViolation(errors.PhaseEmit, "%s is not a long branch", op))
	}
	s.owner.checkLabel(lbl)
	s.instrs = append(s.instrs, Instruction{Op: op, StackDelta: stackDelta, label: lbl.id})
}

// EmitLabel marks the current position of the stream as the target of lbl.
// A label can be marked once.
func (s *CodeStream) EmitLabel(lbl Label) {
	s.checkOpen()
	s.owner.checkLabel(lbl)
	st := &s.owner.labels[lbl.id]
	if st.stream >= 0 {
		panic(errors.ContractViolation(errors.PhaseEmit,
			"label %d already marked in stream %d", lbl.id, st.stream))
	}
	st.stream = s.index
	st.instr = len(s.instrs)
	s.instrs = append(s.instrs, Instruction{Op: opcode.CodeLabel, label: lbl.id})
}

func (s *CodeStream) checkOpen() {
	if s.owner.linked {
		panic(errors.ContractViolation(errors.PhaseEmit,
			"emit into %s stream after link", s.kind))
	}
}

func (s *CodeStream) reset() {
	s.instrs = s.instrs[:0]
	s.building = nil
	s.finished = nil
}
