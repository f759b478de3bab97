package stub

import (
	"github.com/wippyai/ilstub/errors"
	"github.com/wippyai/ilstub/opcode"
)

// DecodedInstruction is one instruction read back from generated code.
type DecodedInstruction struct {
	Offset  int
	Size    int
	Operand uint64
	Op      opcode.Opcode
}

// Target returns the absolute branch target of a branch instruction.
func (d DecodedInstruction) Target() (int, bool) {
	if !d.Op.IsBranch() && !d.Op.IsShortBranch() {
		return 0, false
	}
	return d.Offset + d.Size + int(int64(d.Operand)), true
}

// Disassemble decodes generated code. Switch tables are not supported.
func Disassemble(code []byte) ([]DecodedInstruction, error) {
	var out []DecodedInstruction
	for off := 0; off < len(code); {
		op, prefix := opcode.Lookup(code[off:])
		if op == opcode.Invalid {
			return out, errors.New(errors.PhaseDecode, errors.KindInvalidData).
				Value(off).
				Detail("unknown opcode 0x%02x at offset %d", code[off], off).
				Build()
		}
		kind := op.Info().Operand
		if kind == opcode.InlineSwitch {
			return out, errors.Unsupported(errors.PhaseDecode, "switch")
		}
		arg, ok := opcode.ReadOperand(kind, code[off+prefix:])
		if !ok {
			return out, errors.New(errors.PhaseDecode, errors.KindInvalidData).
				Value(off).
				Detail("%s operand truncated at offset %d", op, off).
				Build()
		}
		size := prefix + kind.Size()
		out = append(out, DecodedInstruction{Offset: off, Size: size, Operand: arg, Op: op})
		off += size
	}
	return out, nil
}
