package stub

import (
	"math"

	"go.uber.org/zap"

	"github.com/wippyai/ilstub/errors"
	"github.com/wippyai/ilstub/opcode"
)

// Link resolves label offsets, lowers instructions to their shortest
// encodings and patches branch displacements. It returns the code size and
// the maximum simulated stack depth. A linker links once; ClearCode
// resets it for another round.
func (l *Linker) Link() (codeSize, maxStack int) {
	if l.linked {
		panic(errors.ContractViolation(errors.PhaseLink, "stub already linked"))
	}

	underflow := false
	offset, depth, peak := 0, 0, 0
	for _, s := range l.streams {
		for i := range s.instrs {
			in := &s.instrs[i]
			lower(in)

			if in.Op == opcode.CodeLabel {
				st := &l.labels[in.label]
				if st.offset >= 0 {
					panic(errors.ContractViolation(errors.PhaseLink, "label %d resolved twice", in.label))
				}
				st.offset = offset
			}

			offset += in.Op.Size()
			depth += int(in.StackDelta)
			peak = max(peak, depth)
			if depth < 0 {
				underflow = true
			}
		}
	}

	if underflow {
		l.reportUnderflow()
	}

	cur := 0
	for _, s := range l.streams {
		for i := range s.instrs {
			in := &s.instrs[i]
			cur += in.Op.Size()
			if !in.Op.IsBranch() {
				continue
			}
			target := l.labels[in.label].offset
			if target < 0 {
				panic(errors.ContractViolation(errors.PhaseLink,
					"%s in %s stream targets unmarked label %d", in.Op, s.kind, in.label))
			}
			in.Arg = uint64(int64(target - cur))
		}
	}

	if offset > math.MaxInt32 {
		panic(errors.ContractViolation(errors.PhaseLink, "code size %d exceeds branch range", offset))
	}

	l.linked = true
	l.codeSize = offset
	l.maxStack = peak
	return offset, peak
}

// Linked reports whether Link has run since creation or the last ClearCode.
func (l *Linker) Linked() bool {
	return l.linked
}

// GenerateCode writes the linked code into buf and returns the number of
// bytes written. buf must hold at least the size returned by Link.
func (l *Linker) GenerateCode(buf []byte) int {
	if !l.linked {
		panic(errors.ContractViolation(errors.PhaseCodegen, "code generated before link"))
	}
	if len(buf) < l.codeSize {
		panic(errors.ContractViolation(errors.PhaseCodegen,
			"code buffer holds %d bytes, need %d", len(buf), l.codeSize))
	}
	n := 0
	for _, s := range l.streams {
		for _, in := range s.instrs {
			n += in.Op.Put(buf[n:], in.Arg)
		}
	}
	if n != l.codeSize {
		panic(errors.ContractViolation(errors.PhaseCodegen,
			"generated %d bytes, link computed %d", n, l.codeSize))
	}
	return n
}

func (l *Linker) reportUnderflow() {
	log := Logger()
	log.Warn("stub stack underflow",
		zap.Int("streams", len(l.streams)),
		zap.String("dump", l.Dump()),
	)
	if l.opts.Debug {
		panic(errors.ContractViolation(errors.PhaseLink, "simulated stack depth went negative"))
	}
}

// lower rewrites an instruction in place to its shortest encoding.
func lower(in *Instruction) {
	switch in.Op {
	case opcode.LdcI8:
		v := int64(in.Arg)
		switch {
		case v == -1:
			in.Op = opcode.LdcI4M1
		case v >= 0 && v <= 8:
			in.Op = opcode.LdcI4_0 + opcode.Opcode(v)
		case v >= math.MinInt8 && v <= math.MaxInt8:
			in.Op = opcode.LdcI4S
		case v >= math.MinInt32 && v <= math.MaxInt32:
			in.Op = opcode.LdcI4
		}

	case opcode.Ldarg:
		in.Op = lowerIndex(in.Arg, opcode.Ldarg0, opcode.LdargS, opcode.Ldarg)
	case opcode.Ldloc:
		in.Op = lowerIndex(in.Arg, opcode.Ldloc0, opcode.LdlocS, opcode.Ldloc)
	case opcode.Stloc:
		in.Op = lowerIndex(in.Arg, opcode.Stloc0, opcode.StlocS, opcode.Stloc)

	case opcode.Ldarga:
		if in.Arg <= math.MaxUint8 {
			in.Op = opcode.LdargaS
		}
	case opcode.Starg:
		if in.Arg <= math.MaxUint8 {
			in.Op = opcode.StargS
		}
	case opcode.Ldloca:
		if in.Arg <= math.MaxUint8 {
			in.Op = opcode.LdlocaS
		}
	}
}

func lowerIndex(idx uint64, zero, short, long opcode.Opcode) opcode.Opcode {
	switch {
	case idx <= 3:
		return zero + opcode.Opcode(idx)
	case idx <= math.MaxUint8:
		return short
	default:
		return long
	}
}
