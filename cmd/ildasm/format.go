package main

import (
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/wippyai/ilstub/opcode"
	"github.com/wippyai/ilstub/sig"
	"github.com/wippyai/ilstub/stub"
)

// readInput loads a file of raw bytes, or of hex text when asHex is set.
// Whitespace in hex input is ignored.
func readInput(path string, asHex bool) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if !asHex {
		return data, nil
	}
	clean := strings.Join(strings.Fields(string(data)), "")
	out, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("decode hex in %s: %w", path, err)
	}
	return out, nil
}

func formatInstruction(in stub.DecodedInstruction) string {
	name := in.Op.String()
	if target, ok := in.Target(); ok {
		return fmt.Sprintf("IL_%04x: %-12s IL_%04x", in.Offset, name, target)
	}
	switch in.Op.Info().Operand {
	case opcode.InlineNone:
		return fmt.Sprintf("IL_%04x: %s", in.Offset, name)
	case opcode.InlineMethod, opcode.InlineSig, opcode.InlineType, opcode.InlineString,
		opcode.InlineField, opcode.InlineTok:
		return fmt.Sprintf("IL_%04x: %-12s %08x", in.Offset, name, uint32(in.Operand))
	case opcode.InlineI8:
		return fmt.Sprintf("IL_%04x: %-12s %d", in.Offset, name, int64(in.Operand))
	case opcode.InlineI:
		return fmt.Sprintf("IL_%04x: %-12s %d", in.Offset, name, int32(in.Operand))
	case opcode.ShortInlineI:
		return fmt.Sprintf("IL_%04x: %-12s %d", in.Offset, name, int8(in.Operand))
	case opcode.ShortInlineR:
		return fmt.Sprintf("IL_%04x: %-12s %g", in.Offset, name, math.Float32frombits(uint32(in.Operand)))
	case opcode.InlineR:
		return fmt.Sprintf("IL_%04x: %-12s %g", in.Offset, name, math.Float64frombits(in.Operand))
	default:
		return fmt.Sprintf("IL_%04x: %-12s %d", in.Offset, name, in.Operand)
	}
}

func formatDescriptor(d sig.Descriptor) string {
	var b strings.Builder
	for i, e := range d.Elements {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(e.String())
		if e == sig.Internal {
			kind := "class"
			if d.ValueType {
				kind = "valuetype"
			}
			fmt.Fprintf(&b, " %s %#x", kind, uint64(d.Handle))
		}
	}
	return b.String()
}

func formatMethod(m *sig.MethodSignature) string {
	params := make([]string, len(m.Params))
	for i, p := range m.Params {
		params[i] = formatDescriptor(p)
	}
	return fmt.Sprintf("[%#02x] %s (%s)", byte(m.CallConv), formatDescriptor(m.Return), strings.Join(params, ", "))
}

func formatLocals(locals []sig.Descriptor) []string {
	out := make([]string, len(locals))
	for i, l := range locals {
		out[i] = fmt.Sprintf("V_%d: %s", i, formatDescriptor(l))
	}
	return out
}
