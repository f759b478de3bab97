package opcode

import (
	"encoding/binary"
	"fmt"
)

// Opcode identifies a CIL instruction. Values index the static tables below
// and are not the encoded bytes; use Info for the encoding.
type Opcode uint16

// OperandKind describes the inline operand that follows an opcode.
type OperandKind uint8

const (
	InlineNone OperandKind = iota
	ShortInlineVar
	ShortInlineI
	InlineI
	InlineI8
	ShortInlineR
	InlineR
	InlineMethod
	InlineSig
	ShortInlineBrTarget
	InlineBrTarget
	InlineSwitch
	InlineType
	InlineString
	InlineField
	InlineTok
	InlineVar
	InlinePseudo // label marker, encodes to nothing
)

var operandSizes = [...]int{
	InlineNone:          0,
	ShortInlineVar:      1,
	ShortInlineI:        1,
	InlineI:             4,
	InlineI8:            8,
	ShortInlineR:        4,
	InlineR:             8,
	InlineMethod:        4,
	InlineSig:           4,
	ShortInlineBrTarget: 1,
	InlineBrTarget:      4,
	InlineSwitch:        -1,
	InlineType:          4,
	InlineString:        4,
	InlineField:         4,
	InlineTok:           4,
	InlineVar:           2,
	InlinePseudo:        0,
}

// Size returns the operand width in bytes, or -1 for variable-width operands.
func (k OperandKind) Size() int {
	if int(k) >= len(operandSizes) {
		return -1
	}
	return operandSizes[k]
}

// Info holds the encoding of an opcode.
// Byte1 is 0xFF for single-byte opcodes, otherwise the 0xFE prefix.
type Info struct {
	Name    string
	Byte1   byte
	Byte2   byte
	Operand OperandKind
}

// Stack, constants, arguments and locals
const (
	Nop Opcode = iota
	Break
	Ldarg0
	Ldarg1
	Ldarg2
	Ldarg3
	Ldloc0
	Ldloc1
	Ldloc2
	Ldloc3
	Stloc0
	Stloc1
	Stloc2
	Stloc3
	LdargS
	LdargaS
	StargS
	LdlocS
	LdlocaS
	StlocS
	Ldnull
	LdcI4M1
	LdcI4_0
	LdcI4_1
	LdcI4_2
	LdcI4_3
	LdcI4_4
	LdcI4_5
	LdcI4_6
	LdcI4_7
	LdcI4_8
	LdcI4S
	LdcI4
	LdcI8
	LdcR4
	LdcR8
	Dup
	Pop
	Jmp
	Call
	Calli
	Ret

	// short branches (decodable, never emitted)
	BrS
	BrfalseS
	BrtrueS
	BeqS
	BgeS
	BgtS
	BleS
	BltS
	BneUnS
	BgeUnS
	BgtUnS
	BleUnS
	BltUnS

	// long branches
	Br
	Brfalse
	Brtrue
	Beq
	Bge
	Bgt
	Ble
	Blt
	BneUn
	BgeUn
	BgtUn
	BleUn
	BltUn
	Switch

	// indirect loads and stores
	LdindI1
	LdindU1
	LdindI2
	LdindU2
	LdindI4
	LdindU4
	LdindI8
	LdindI
	LdindR4
	LdindR8
	LdindRef
	StindRef
	StindI1
	StindI2
	StindI4
	StindI8
	StindR4
	StindR8

	// arithmetic and logic
	Add
	Sub
	Mul
	Div
	DivUn
	Rem
	RemUn
	And
	Or
	Xor
	Shl
	Shr
	ShrUn
	Neg
	Not

	// conversions
	ConvI1
	ConvI2
	ConvI4
	ConvI8
	ConvR4
	ConvR8
	ConvU4
	ConvU8

	// objects
	Callvirt
	Cpobj
	Ldobj
	Ldstr
	Newobj
	Castclass
	Isinst
	ConvRUn
	Unbox
	Throw
	Ldfld
	Ldflda
	Stfld
	Ldsfld
	Ldsflda
	Stsfld
	Stobj
	Box
	Newarr
	Ldlen
	Ldelema
	LdelemRef
	StelemRef

	// overflow-checked conversions and arithmetic
	ConvOvfI1
	ConvOvfU1
	ConvOvfI2
	ConvOvfU2
	ConvOvfI4
	ConvOvfU4
	ConvOvfI8
	ConvOvfU8
	Ldtoken
	ConvU2
	ConvU1
	ConvI
	ConvOvfI
	ConvOvfU
	AddOvf
	AddOvfUn
	MulOvf
	MulOvfUn
	SubOvf
	SubOvfUn
	Endfinally
	Leave
	LeaveS
	StindI
	ConvU

	// two-byte opcodes
	Arglist
	Ceq
	Cgt
	CgtUn
	Clt
	CltUn
	Ldftn
	Ldvirtftn
	Ldarg
	Ldarga
	Starg
	Ldloc
	Ldloca
	Stloc
	Localloc
	Endfilter
	Unaligned
	Volatile
	Tail
	Initobj
	Constrained
	Cpblk
	Initblk
	Rethrow
	Sizeof
	Readonly

	// CodeLabel marks a label position inside a code stream.
	CodeLabel

	numOpcodes
)

// Invalid is returned by decoding lookups for unknown byte sequences.
const Invalid Opcode = 0xFFFF

var table = [numOpcodes]Info{
	Nop:     {"nop", 0xFF, 0x00, InlineNone},
	Break:   {"break", 0xFF, 0x01, InlineNone},
	Ldarg0:  {"ldarg.0", 0xFF, 0x02, InlineNone},
	Ldarg1:  {"ldarg.1", 0xFF, 0x03, InlineNone},
	Ldarg2:  {"ldarg.2", 0xFF, 0x04, InlineNone},
	Ldarg3:  {"ldarg.3", 0xFF, 0x05, InlineNone},
	Ldloc0:  {"ldloc.0", 0xFF, 0x06, InlineNone},
	Ldloc1:  {"ldloc.1", 0xFF, 0x07, InlineNone},
	Ldloc2:  {"ldloc.2", 0xFF, 0x08, InlineNone},
	Ldloc3:  {"ldloc.3", 0xFF, 0x09, InlineNone},
	Stloc0:  {"stloc.0", 0xFF, 0x0A, InlineNone},
	Stloc1:  {"stloc.1", 0xFF, 0x0B, InlineNone},
	Stloc2:  {"stloc.2", 0xFF, 0x0C, InlineNone},
	Stloc3:  {"stloc.3", 0xFF, 0x0D, InlineNone},
	LdargS:  {"ldarg.s", 0xFF, 0x0E, ShortInlineVar},
	LdargaS: {"ldarga.s", 0xFF, 0x0F, ShortInlineVar},
	StargS:  {"starg.s", 0xFF, 0x10, ShortInlineVar},
	LdlocS:  {"ldloc.s", 0xFF, 0x11, ShortInlineVar},
	LdlocaS: {"ldloca.s", 0xFF, 0x12, ShortInlineVar},
	StlocS:  {"stloc.s", 0xFF, 0x13, ShortInlineVar},
	Ldnull:  {"ldnull", 0xFF, 0x14, InlineNone},
	LdcI4M1: {"ldc.i4.m1", 0xFF, 0x15, InlineNone},
	LdcI4_0: {"ldc.i4.0", 0xFF, 0x16, InlineNone},
	LdcI4_1: {"ldc.i4.1", 0xFF, 0x17, InlineNone},
	LdcI4_2: {"ldc.i4.2", 0xFF, 0x18, InlineNone},
	LdcI4_3: {"ldc.i4.3", 0xFF, 0x19, InlineNone},
	LdcI4_4: {"ldc.i4.4", 0xFF, 0x1A, InlineNone},
	LdcI4_5: {"ldc.i4.5", 0xFF, 0x1B, InlineNone},
	LdcI4_6: {"ldc.i4.6", 0xFF, 0x1C, InlineNone},
	LdcI4_7: {"ldc.i4.7", 0xFF, 0x1D, InlineNone},
	LdcI4_8: {"ldc.i4.8", 0xFF, 0x1E, InlineNone},
	LdcI4S:  {"ldc.i4.s", 0xFF, 0x1F, ShortInlineI},
	LdcI4:   {"ldc.i4", 0xFF, 0x20, InlineI},
	LdcI8:   {"ldc.i8", 0xFF, 0x21, InlineI8},
	LdcR4:   {"ldc.r4", 0xFF, 0x22, ShortInlineR},
	LdcR8:   {"ldc.r8", 0xFF, 0x23, InlineR},
	Dup:     {"dup", 0xFF, 0x25, InlineNone},
	Pop:     {"pop", 0xFF, 0x26, InlineNone},
	Jmp:     {"jmp", 0xFF, 0x27, InlineMethod},
	Call:    {"call", 0xFF, 0x28, InlineMethod},
	Calli:   {"calli", 0xFF, 0x29, InlineSig},
	Ret:     {"ret", 0xFF, 0x2A, InlineNone},

	BrS:      {"br.s", 0xFF, 0x2B, ShortInlineBrTarget},
	BrfalseS: {"brfalse.s", 0xFF, 0x2C, ShortInlineBrTarget},
	BrtrueS:  {"brtrue.s", 0xFF, 0x2D, ShortInlineBrTarget},
	BeqS:     {"beq.s", 0xFF, 0x2E, ShortInlineBrTarget},
	BgeS:     {"bge.s", 0xFF, 0x2F, ShortInlineBrTarget},
	BgtS:     {"bgt.s", 0xFF, 0x30, ShortInlineBrTarget},
	BleS:     {"ble.s", 0xFF, 0x31, ShortInlineBrTarget},
	BltS:     {"blt.s", 0xFF, 0x32, ShortInlineBrTarget},
	BneUnS:   {"bne.un.s", 0xFF, 0x33, ShortInlineBrTarget},
	BgeUnS:   {"bge.un.s", 0xFF, 0x34, ShortInlineBrTarget},
	BgtUnS:   {"bgt.un.s", 0xFF, 0x35, ShortInlineBrTarget},
	BleUnS:   {"ble.un.s", 0xFF, 0x36, ShortInlineBrTarget},
	BltUnS:   {"blt.un.s", 0xFF, 0x37, ShortInlineBrTarget},

	Br:      {"br", 0xFF, 0x38, InlineBrTarget},
	Brfalse: {"brfalse", 0xFF, 0x39, InlineBrTarget},
	Brtrue:  {"brtrue", 0xFF, 0x3A, InlineBrTarget},
	Beq:     {"beq", 0xFF, 0x3B, InlineBrTarget},
	Bge:     {"bge", 0xFF, 0x3C, InlineBrTarget},
	Bgt:     {"bgt", 0xFF, 0x3D, InlineBrTarget},
	Ble:     {"ble", 0xFF, 0x3E, InlineBrTarget},
	Blt:     {"blt", 0xFF, 0x3F, InlineBrTarget},
	BneUn:   {"bne.un", 0xFF, 0x40, InlineBrTarget},
	BgeUn:   {"bge.un", 0xFF, 0x41, InlineBrTarget},
	BgtUn:   {"bgt.un", 0xFF, 0x42, InlineBrTarget},
	BleUn:   {"ble.un", 0xFF, 0x43, InlineBrTarget},
	BltUn:   {"blt.un", 0xFF, 0x44, InlineBrTarget},
	Switch:  {"switch", 0xFF, 0x45, InlineSwitch},

	LdindI1:  {"ldind.i1", 0xFF, 0x46, InlineNone},
	LdindU1:  {"ldind.u1", 0xFF, 0x47, InlineNone},
	LdindI2:  {"ldind.i2", 0xFF, 0x48, InlineNone},
	LdindU2:  {"ldind.u2", 0xFF, 0x49, InlineNone},
	LdindI4:  {"ldind.i4", 0xFF, 0x4A, InlineNone},
	LdindU4:  {"ldind.u4", 0xFF, 0x4B, InlineNone},
	LdindI8:  {"ldind.i8", 0xFF, 0x4C, InlineNone},
	LdindI:   {"ldind.i", 0xFF, 0x4D, InlineNone},
	LdindR4:  {"ldind.r4", 0xFF, 0x4E, InlineNone},
	LdindR8:  {"ldind.r8", 0xFF, 0x4F, InlineNone},
	LdindRef: {"ldind.ref", 0xFF, 0x50, InlineNone},
	StindRef: {"stind.ref", 0xFF, 0x51, InlineNone},
	StindI1:  {"stind.i1", 0xFF, 0x52, InlineNone},
	StindI2:  {"stind.i2", 0xFF, 0x53, InlineNone},
	StindI4:  {"stind.i4", 0xFF, 0x54, InlineNone},
	StindI8:  {"stind.i8", 0xFF, 0x55, InlineNone},
	StindR4:  {"stind.r4", 0xFF, 0x56, InlineNone},
	StindR8:  {"stind.r8", 0xFF, 0x57, InlineNone},

	Add:   {"add", 0xFF, 0x58, InlineNone},
	Sub:   {"sub", 0xFF, 0x59, InlineNone},
	Mul:   {"mul", 0xFF, 0x5A, InlineNone},
	Div:   {"div", 0xFF, 0x5B, InlineNone},
	DivUn: {"div.un", 0xFF, 0x5C, InlineNone},
	Rem:   {"rem", 0xFF, 0x5D, InlineNone},
	RemUn: {"rem.un", 0xFF, 0x5E, InlineNone},
	And:   {"and", 0xFF, 0x5F, InlineNone},
	Or:    {"or", 0xFF, 0x60, InlineNone},
	Xor:   {"xor", 0xFF, 0x61, InlineNone},
	Shl:   {"shl", 0xFF, 0x62, InlineNone},
	Shr:   {"shr", 0xFF, 0x63, InlineNone},
	ShrUn: {"shr.un", 0xFF, 0x64, InlineNone},
	Neg:   {"neg", 0xFF, 0x65, InlineNone},
	Not:   {"not", 0xFF, 0x66, InlineNone},

	ConvI1: {"conv.i1", 0xFF, 0x67, InlineNone},
	ConvI2: {"conv.i2", 0xFF, 0x68, InlineNone},
	ConvI4: {"conv.i4", 0xFF, 0x69, InlineNone},
	ConvI8: {"conv.i8", 0xFF, 0x6A, InlineNone},
	ConvR4: {"conv.r4", 0xFF, 0x6B, InlineNone},
	ConvR8: {"conv.r8", 0xFF, 0x6C, InlineNone},
	ConvU4: {"conv.u4", 0xFF, 0x6D, InlineNone},
	ConvU8: {"conv.u8", 0xFF, 0x6E, InlineNone},

	Callvirt:  {"callvirt", 0xFF, 0x6F, InlineMethod},
	Cpobj:     {"cpobj", 0xFF, 0x70, InlineType},
	Ldobj:     {"ldobj", 0xFF, 0x71, InlineType},
	Ldstr:     {"ldstr", 0xFF, 0x72, InlineString},
	Newobj:    {"newobj", 0xFF, 0x73, InlineMethod},
	Castclass: {"castclass", 0xFF, 0x74, InlineType},
	Isinst:    {"isinst", 0xFF, 0x75, InlineType},
	ConvRUn:   {"conv.r.un", 0xFF, 0x76, InlineNone},
	Unbox:     {"unbox", 0xFF, 0x79, InlineType},
	Throw:     {"throw", 0xFF, 0x7A, InlineNone},
	Ldfld:     {"ldfld", 0xFF, 0x7B, InlineField},
	Ldflda:    {"ldflda", 0xFF, 0x7C, InlineField},
	Stfld:     {"stfld", 0xFF, 0x7D, InlineField},
	Ldsfld:    {"ldsfld", 0xFF, 0x7E, InlineField},
	Ldsflda:   {"ldsflda", 0xFF, 0x7F, InlineField},
	Stsfld:    {"stsfld", 0xFF, 0x80, InlineField},
	Stobj:     {"stobj", 0xFF, 0x81, InlineType},
	Box:       {"box", 0xFF, 0x8C, InlineType},
	Newarr:    {"newarr", 0xFF, 0x8D, InlineType},
	Ldlen:     {"ldlen", 0xFF, 0x8E, InlineNone},
	Ldelema:   {"ldelema", 0xFF, 0x8F, InlineType},
	LdelemRef: {"ldelem.ref", 0xFF, 0x9A, InlineNone},
	StelemRef: {"stelem.ref", 0xFF, 0xA2, InlineNone},

	ConvOvfI1:  {"conv.ovf.i1", 0xFF, 0xB3, InlineNone},
	ConvOvfU1:  {"conv.ovf.u1", 0xFF, 0xB4, InlineNone},
	ConvOvfI2:  {"conv.ovf.i2", 0xFF, 0xB5, InlineNone},
	ConvOvfU2:  {"conv.ovf.u2", 0xFF, 0xB6, InlineNone},
	ConvOvfI4:  {"conv.ovf.i4", 0xFF, 0xB7, InlineNone},
	ConvOvfU4:  {"conv.ovf.u4", 0xFF, 0xB8, InlineNone},
	ConvOvfI8:  {"conv.ovf.i8", 0xFF, 0xB9, InlineNone},
	ConvOvfU8:  {"conv.ovf.u8", 0xFF, 0xBA, InlineNone},
	Ldtoken:    {"ldtoken", 0xFF, 0xD0, InlineTok},
	ConvU2:     {"conv.u2", 0xFF, 0xD1, InlineNone},
	ConvU1:     {"conv.u1", 0xFF, 0xD2, InlineNone},
	ConvI:      {"conv.i", 0xFF, 0xD3, InlineNone},
	ConvOvfI:   {"conv.ovf.i", 0xFF, 0xD4, InlineNone},
	ConvOvfU:   {"conv.ovf.u", 0xFF, 0xD5, InlineNone},
	AddOvf:     {"add.ovf", 0xFF, 0xD6, InlineNone},
	AddOvfUn:   {"add.ovf.un", 0xFF, 0xD7, InlineNone},
	MulOvf:     {"mul.ovf", 0xFF, 0xD8, InlineNone},
	MulOvfUn:   {"mul.ovf.un", 0xFF, 0xD9, InlineNone},
	SubOvf:     {"sub.ovf", 0xFF, 0xDA, InlineNone},
	SubOvfUn:   {"sub.ovf.un", 0xFF, 0xDB, InlineNone},
	Endfinally: {"endfinally", 0xFF, 0xDC, InlineNone},
	Leave:      {"leave", 0xFF, 0xDD, InlineBrTarget},
	LeaveS:     {"leave.s", 0xFF, 0xDE, ShortInlineBrTarget},
	StindI:     {"stind.i", 0xFF, 0xDF, InlineNone},
	ConvU:      {"conv.u", 0xFF, 0xE0, InlineNone},

	Arglist:     {"arglist", 0xFE, 0x00, InlineNone},
	Ceq:         {"ceq", 0xFE, 0x01, InlineNone},
	Cgt:         {"cgt", 0xFE, 0x02, InlineNone},
	CgtUn:       {"cgt.un", 0xFE, 0x03, InlineNone},
	Clt:         {"clt", 0xFE, 0x04, InlineNone},
	CltUn:       {"clt.un", 0xFE, 0x05, InlineNone},
	Ldftn:       {"ldftn", 0xFE, 0x06, InlineMethod},
	Ldvirtftn:   {"ldvirtftn", 0xFE, 0x07, InlineMethod},
	Ldarg:       {"ldarg", 0xFE, 0x09, InlineVar},
	Ldarga:      {"ldarga", 0xFE, 0x0A, InlineVar},
	Starg:       {"starg", 0xFE, 0x0B, InlineVar},
	Ldloc:       {"ldloc", 0xFE, 0x0C, InlineVar},
	Ldloca:      {"ldloca", 0xFE, 0x0D, InlineVar},
	Stloc:       {"stloc", 0xFE, 0x0E, InlineVar},
	Localloc:    {"localloc", 0xFE, 0x0F, InlineNone},
	Endfilter:   {"endfilter", 0xFE, 0x11, InlineNone},
	Unaligned:   {"unaligned.", 0xFE, 0x12, ShortInlineI},
	Volatile:    {"volatile.", 0xFE, 0x13, InlineNone},
	Tail:        {"tail.", 0xFE, 0x14, InlineNone},
	Initobj:     {"initobj", 0xFE, 0x15, InlineType},
	Constrained: {"constrained.", 0xFE, 0x16, InlineType},
	Cpblk:       {"cpblk", 0xFE, 0x17, InlineNone},
	Initblk:     {"initblk", 0xFE, 0x18, InlineNone},
	Rethrow:     {"rethrow", 0xFE, 0x1A, InlineNone},
	Sizeof:      {"sizeof", 0xFE, 0x1C, InlineType},
	Readonly:    {"readonly.", 0xFE, 0x1E, InlineNone},

	CodeLabel: {"CODE_LABEL", 0xFF, 0xFF, InlinePseudo},
}

// reverse lookup for decoding, indexed by the final opcode byte
var (
	oneByte [256]Opcode
	twoByte [256]Opcode
)

func init() {
	for i := range oneByte {
		oneByte[i] = Invalid
		twoByte[i] = Invalid
	}
	for op := Opcode(0); op < numOpcodes; op++ {
		info := table[op]
		switch {
		case info.Operand == InlinePseudo:
		case info.Byte1 == 0xFE:
			twoByte[info.Byte2] = op
		default:
			oneByte[info.Byte2] = op
		}
	}
}

// Count returns the number of defined opcodes, including the label pseudo-op.
func Count() int {
	return int(numOpcodes)
}

// Valid reports whether op is a defined opcode.
func (op Opcode) Valid() bool {
	return op < numOpcodes
}

// Info returns the encoding metadata for an opcode.
func (op Opcode) Info() Info {
	if !op.Valid() {
		return Info{Name: fmt.Sprintf("UNKNOWN_%04X", uint16(op)), Byte1: 0xFF, Byte2: 0xFF}
	}
	return table[op]
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Info().Name
}

// PrefixSize returns the number of opcode bytes: 0 for the label marker, 1 or 2 otherwise.
func (op Opcode) PrefixSize() int {
	info := op.Info()
	switch {
	case info.Operand == InlinePseudo:
		return 0
	case info.Byte1 != 0xFF:
		return 2
	default:
		return 1
	}
}

// Size returns the total encoded size (prefix plus operand).
// Variable-width opcodes report -1.
func (op Opcode) Size() int {
	n := op.Info().Operand.Size()
	if n < 0 {
		return -1
	}
	return op.PrefixSize() + n
}

// IsBranch reports whether the operand is a 4-byte branch displacement.
func (op Opcode) IsBranch() bool {
	return op.Info().Operand == InlineBrTarget
}

// IsShortBranch reports whether the operand is a 1-byte branch displacement.
func (op Opcode) IsShortBranch() bool {
	return op.Info().Operand == ShortInlineBrTarget
}

// Put encodes op and its operand into dst and returns the number of bytes written.
// dst must hold at least op.Size() bytes.
func (op Opcode) Put(dst []byte, arg uint64) int {
	info := op.Info()
	n := 0
	switch op.PrefixSize() {
	case 0:
		return 0
	case 2:
		dst[n] = info.Byte1
		n++
	}
	dst[n] = info.Byte2
	n++

	switch info.Operand.Size() {
	case 0:
	case 1:
		dst[n] = byte(arg)
	case 2:
		binary.LittleEndian.PutUint16(dst[n:], uint16(arg))
	case 4:
		binary.LittleEndian.PutUint32(dst[n:], uint32(arg))
	case 8:
		binary.LittleEndian.PutUint64(dst[n:], arg)
	default:
		panic(fmt.Sprintf("opcode %s: unexpected operand width", info.Name))
	}
	return n + info.Operand.Size()
}

// Lookup decodes the opcode at the start of code and returns it with its prefix length.
// Unknown bytes yield Invalid.
func Lookup(code []byte) (Opcode, int) {
	if len(code) == 0 {
		return Invalid, 0
	}
	if code[0] == 0xFE {
		if len(code) < 2 {
			return Invalid, 0
		}
		return twoByte[code[1]], 2
	}
	return oneByte[code[0]], 1
}

// ReadOperand decodes an operand of the given kind from src.
// Signed kinds are sign-extended into the returned value.
func ReadOperand(kind OperandKind, src []byte) (uint64, bool) {
	size := kind.Size()
	if size < 0 || len(src) < size {
		return 0, false
	}
	switch size {
	case 0:
		return 0, true
	case 1:
		if kind == ShortInlineI || kind == ShortInlineBrTarget {
			return uint64(int64(int8(src[0]))), true
		}
		return uint64(src[0]), true
	case 2:
		return uint64(binary.LittleEndian.Uint16(src)), true
	case 4:
		v := binary.LittleEndian.Uint32(src)
		if kind == InlineI || kind == InlineBrTarget {
			return uint64(int64(int32(v))), true
		}
		return uint64(v), true
	default:
		return binary.LittleEndian.Uint64(src), true
	}
}
