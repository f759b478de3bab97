package stub

import (
	"encoding/binary"
	"fmt"

	"github.com/wippyai/ilstub/errors"
)

// EHKind is the kind of a protected region handler. Values are the clause
// flags written to the exception section.
type EHKind uint32

const (
	EHCatch   EHKind = 0
	EHFinally EHKind = 2
)

func (k EHKind) String() string {
	switch k {
	case EHCatch:
		return "catch"
	case EHFinally:
		return "finally"
	default:
		return fmt.Sprintf("eh_kind(%d)", uint32(k))
	}
}

// EHClause is a resolved exception handling clause.
type EHClause struct {
	Kind          EHKind
	TryOffset     uint32
	TryLength     uint32
	HandlerOffset uint32
	HandlerLength uint32
	ClassToken    uint32
}

// Flags returns the clause flags word.
func (c EHClause) Flags() uint32 {
	return uint32(c.Kind)
}

type ehClause struct {
	tryBegin     Label
	tryEnd       Label
	handlerBegin Label
	handlerEnd   Label
	token        uint32
	kind         EHKind
}

// BeginTryBlock opens a protected region at the current position.
func (s *CodeStream) BeginTryBlock() {
	s.checkOpen()
	c := ehClause{tryBegin: s.owner.NewLabel()}
	s.EmitLabel(c.tryBegin)
	s.building = append(s.building, c)
}

// EndTryBlock closes the innermost protected region.
func (s *CodeStream) EndTryBlock() {
	c := s.current("EndTryBlock")
	if c.tryEnd.Valid() {
		panic(errors.ContractViolation(errors.PhaseEmit, "try block already closed"))
	}
	c.tryEnd = s.owner.NewLabel()
	s.EmitLabel(c.tryEnd)
}

// BeginCatchBlock starts a typed catch handler for the innermost region.
func (s *CodeStream) BeginCatchBlock(classToken uint32) {
	s.beginHandler(EHCatch, classToken)
}

// EndCatchBlock ends the current catch handler.
func (s *CodeStream) EndCatchBlock() {
	s.endHandler(EHCatch)
}

// BeginFinallyBlock starts a finally handler for the innermost region.
func (s *CodeStream) BeginFinallyBlock() {
	s.beginHandler(EHFinally, 0)
}

// EndFinallyBlock ends the current finally handler.
func (s *CodeStream) EndFinallyBlock() {
	s.endHandler(EHFinally)
}

func (s *CodeStream) beginHandler(kind EHKind, token uint32) {
	c := s.current("Begin " + kind.String())
	if !c.tryEnd.Valid() || c.handlerBegin.Valid() {
		panic(errors.ContractViolation(errors.PhaseEmit,
			"%s handler must follow a closed try block", kind))
	}
	c.kind = kind
	c.token = token
	c.handlerBegin = s.owner.NewLabel()
	s.EmitLabel(c.handlerBegin)
}

func (s *CodeStream) endHandler(kind EHKind) {
	c := s.current("End " + kind.String())
	if !c.handlerBegin.Valid() || c.kind != kind {
		panic(errors.ContractViolation(errors.PhaseEmit,
			"end of %s handler does not match open %s handler", kind, c.kind))
	}
	c.handlerEnd = s.owner.NewLabel()
	s.EmitLabel(c.handlerEnd)
	s.finished = append(s.finished, *c)
	s.building = s.building[:len(s.building)-1]
}

func (s *CodeStream) current(op string) *ehClause {
	s.checkOpen()
	if len(s.building) == 0 {
		panic(errors.ContractViolation(errors.PhaseEmit, "%s without open try block", op))
	}
	return &s.building[len(s.building)-1]
}

// ehClauses resolves finished clauses of every stream. Labels must be linked.
func (l *Linker) ehClauses() []EHClause {
	var out []EHClause
	for _, s := range l.streams {
		if len(s.building) != 0 {
			panic(errors.ContractViolation(errors.PhaseLink,
				"%s stream has %d unterminated exception blocks", s.kind, len(s.building)))
		}
		for _, c := range s.finished {
			tryBegin := l.labels[c.tryBegin.id].offset
			tryEnd := l.labels[c.tryEnd.id].offset
			hBegin := l.labels[c.handlerBegin.id].offset
			hEnd := l.labels[c.handlerEnd.id].offset
			out = append(out, EHClause{
				Kind:          c.kind,
				TryOffset:     uint32(tryBegin),
				TryLength:     uint32(tryEnd - tryBegin),
				HandlerOffset: uint32(hBegin),
				HandlerLength: uint32(hEnd - hBegin),
				ClassToken:    c.token,
			})
		}
	}
	return out
}

const (
	ehSectionFat  = 0x41 // EHTable | FatFormat
	ehClauseSize  = 24
	ehHeaderSize  = 4
	maxEHDataSize = 1<<24 - 1
)

// EncodeEHSection encodes clauses as a fat exception handling data section.
// No clauses encode to nothing.
func EncodeEHSection(clauses []EHClause) ([]byte, error) {
	if len(clauses) == 0 {
		return nil, nil
	}
	size := len(clauses)*ehClauseSize + ehHeaderSize
	if size > maxEHDataSize {
		return nil, errors.Overflow(errors.PhaseCodegen, size, "exception section size")
	}
	out := make([]byte, size)
	out[0] = ehSectionFat
	out[1] = byte(size)
	out[2] = byte(size >> 8)
	out[3] = byte(size >> 16)
	p := out[ehHeaderSize:]
	for _, c := range clauses {
		binary.LittleEndian.PutUint32(p[0:], c.Flags())
		binary.LittleEndian.PutUint32(p[4:], c.TryOffset)
		binary.LittleEndian.PutUint32(p[8:], c.TryLength)
		binary.LittleEndian.PutUint32(p[12:], c.HandlerOffset)
		binary.LittleEndian.PutUint32(p[16:], c.HandlerLength)
		binary.LittleEndian.PutUint32(p[20:], c.ClassToken)
		p = p[ehClauseSize:]
	}
	return out, nil
}
