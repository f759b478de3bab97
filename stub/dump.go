package stub

import (
	"fmt"
	"math"
	"strings"

	"github.com/wippyai/ilstub/opcode"
)

// Dump renders every stream as text, one instruction per line.
func (l *Linker) Dump() string {
	var b strings.Builder
	for _, s := range l.streams {
		fmt.Fprintf(&b, "// %s stream\n", s.kind)
		depth := 0
		for _, in := range s.instrs {
			depth += int(in.StackDelta)
			if in.Op == opcode.CodeLabel {
				fmt.Fprintf(&b, "LABEL_%d:\n", in.label)
				continue
			}
			fmt.Fprintf(&b, "  %-12s %-16s // %+d (%d)\n",
				in.Op, l.operandText(in), in.StackDelta, depth)
		}
	}
	return b.String()
}

func (l *Linker) operandText(in Instruction) string {
	kind := in.Op.Info().Operand
	switch {
	case in.Op.IsBranch():
		return fmt.Sprintf("LABEL_%d", in.label)
	case in.Op == opcode.LdcI8:
		return fmt.Sprintf("%d", int64(in.Arg))
	}
	switch kind {
	case opcode.InlineNone:
		return ""
	case opcode.ShortInlineR:
		return fmt.Sprintf("%g", math.Float32frombits(uint32(in.Arg)))
	case opcode.InlineR:
		return fmt.Sprintf("%g", math.Float64frombits(in.Arg))
	case opcode.InlineMethod, opcode.InlineSig, opcode.InlineType,
		opcode.InlineString, opcode.InlineField, opcode.InlineTok:
		return fmt.Sprintf("0x%08x", uint32(in.Arg))
	case opcode.ShortInlineI, opcode.InlineI:
		return fmt.Sprintf("%d", int64(in.Arg))
	default:
		return fmt.Sprintf("%d", in.Arg)
	}
}
