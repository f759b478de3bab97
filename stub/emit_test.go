package stub_test

import (
	"testing"

	"github.com/wippyai/ilstub/opcode"
	"github.com/wippyai/ilstub/sig"
	"github.com/wippyai/ilstub/stub"
)

func decodeOps(t *testing.T, code []byte) []opcode.Opcode {
	t.Helper()
	decoded, err := stub.Disassemble(code)
	if err != nil {
		t.Fatalf("Disassemble: %v", err)
	}
	ops := make([]opcode.Opcode, len(decoded))
	for i, in := range decoded {
		ops[i] = in.Op
	}
	return ops
}

func TestEmitIndirectByDescriptor(t *testing.T) {
	tests := []struct {
		name  string
		desc  sig.Descriptor
		load  opcode.Opcode
		store opcode.Opcode
	}{
		{"int8", sig.Primitive(sig.I1), opcode.LdindI1, opcode.StindI1},
		{"bool", sig.Primitive(sig.Boolean), opcode.LdindU1, opcode.StindI1},
		{"char", sig.Primitive(sig.Char), opcode.LdindU2, opcode.StindI2},
		{"int16", sig.Primitive(sig.I2), opcode.LdindI2, opcode.StindI2},
		{"int32", sig.Primitive(sig.I4), opcode.LdindI4, opcode.StindI4},
		{"uint32", sig.Primitive(sig.U4), opcode.LdindU4, opcode.StindI4},
		{"uint64", sig.Primitive(sig.U8), opcode.LdindI8, opcode.StindI8},
		{"float32", sig.Primitive(sig.R4), opcode.LdindR4, opcode.StindR4},
		{"float64", sig.Primitive(sig.R8), opcode.LdindR8, opcode.StindR8},
		{"native uint", sig.Primitive(sig.U), opcode.LdindI, opcode.StindI},
		{"pointer", sig.Primitive(sig.I4).WithModifiers(sig.Ptr), opcode.LdindI, opcode.StindI},
		{"pinned pointer", sig.Primitive(sig.I4).WithModifiers(sig.Pinned, sig.Ptr), opcode.LdindI, opcode.StindI},
		{"string", sig.Primitive(sig.String), opcode.LdindRef, opcode.StindRef},
		{"object array", sig.Primitive(sig.Object).WithModifiers(sig.SzArray), opcode.LdindRef, opcode.StindRef},
		{"class handle", sig.InternalType(0x77, false), opcode.LdindRef, opcode.StindRef},
		{"value type handle", sig.InternalType(0x77, true), opcode.Ldobj, opcode.Stobj},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLinker(t, stub.Config{})
			s := l.NewCodeStream(stub.StreamMarshal)
			s.EmitLdindT(tt.desc)
			s.EmitStindT(tt.desc)
			st := build(t, l)

			ops := decodeOps(t, st.Code)
			if len(ops) != 2 || ops[0] != tt.load || ops[1] != tt.store {
				t.Errorf("ops = %v, want [%s %s]", ops, tt.load, tt.store)
			}
		})
	}
}

func TestEmitValueTypeToken(t *testing.T) {
	l := newLinker(t, stub.Config{})
	s := l.NewCodeStream(stub.StreamMarshal)
	s.EmitLdindT(sig.InternalType(0x77, true))
	s.EmitStindT(sig.InternalType(0x77, true))
	st := build(t, l)

	decoded, err := stub.Disassemble(st.Code)
	if err != nil {
		t.Fatalf("Disassemble: %v", err)
	}
	if decoded[0].Operand != 0x02000001 || decoded[1].Operand != 0x02000001 {
		t.Errorf("operands = %#x %#x, want one shared type token", decoded[0].Operand, decoded[1].Operand)
	}
	if len(st.Tokens) != 1 || st.Tokens[0].Ref != 0x77 || st.Tokens[0].Kind != stub.TokenType {
		t.Errorf("Tokens = %+v", st.Tokens)
	}
}

func TestEmitConvT(t *testing.T) {
	tests := []struct {
		elem sig.ElementType
		want opcode.Opcode
	}{
		{sig.U1, opcode.ConvU1},
		{sig.I1, opcode.ConvI1},
		{sig.U2, opcode.ConvU2},
		{sig.I2, opcode.ConvI2},
		{sig.U4, opcode.ConvU4},
		{sig.I4, opcode.ConvI4},
		{sig.U8, opcode.ConvU8},
		{sig.I8, opcode.ConvI8},
		{sig.R4, opcode.ConvR4},
		{sig.R8, opcode.ConvR8},
		{sig.I, opcode.ConvI},
		{sig.U, opcode.ConvU},
	}

	for _, tt := range tests {
		t.Run(tt.elem.String(), func(t *testing.T) {
			l := newLinker(t, stub.Config{})
			s := l.NewCodeStream(stub.StreamMarshal)
			s.EmitLdc(1)
			s.EmitConvT(tt.elem)
			st := build(t, l)
			ops := decodeOps(t, st.Code)
			if len(ops) != 2 || ops[1] != tt.want {
				t.Errorf("ops = %v, want conversion %s", ops, tt.want)
			}
		})
	}
}

func TestStackDeltas(t *testing.T) {
	tests := []struct {
		name  string
		emit  func(s *stub.CodeStream)
		delta int
	}{
		{"call", func(s *stub.CodeStream) { s.EmitCall(0x06000001, 3, 1) }, -2},
		{"callvirt", func(s *stub.CodeStream) { s.EmitCallvirt(0x06000001, 1, 0) }, -1},
		{"calli", func(s *stub.CodeStream) { s.EmitCalli(0x11000001, 2, 1) }, -2},
		{"newobj", func(s *stub.CodeStream) { s.EmitNewobj(0x06000001, 2) }, -1},
		{"cpblk", func(s *stub.CodeStream) { s.EmitCpblk() }, -3},
		{"initblk", func(s *stub.CodeStream) { s.EmitInitblk() }, -3},
		{"stelem.ref", func(s *stub.CodeStream) { s.EmitStelemRef() }, -3},
		{"stfld", func(s *stub.CodeStream) { s.EmitStfld(0x04000001) }, -2},
		{"cpobj", func(s *stub.CodeStream) { s.EmitCpobj(0x02000001) }, -2},
		{"initobj", func(s *stub.CodeStream) { s.EmitInitobj(0x02000001) }, -1},
		{"ldelema", func(s *stub.CodeStream) { s.EmitLdelema(0x02000001) }, -1},
		{"ldfld", func(s *stub.CodeStream) { s.EmitLdfld(0x04000001) }, 0},
		{"ldsflda", func(s *stub.CodeStream) { s.EmitLdsflda(0x04000001) }, 1},
		{"ldtoken", func(s *stub.CodeStream) { s.EmitLdtoken(0x02000001) }, 1},
		{"ldftn", func(s *stub.CodeStream) { s.EmitLdftn(0x06000001) }, 1},
		{"arglist", func(s *stub.CodeStream) { s.EmitArglist() }, 1},
		{"dup", func(s *stub.CodeStream) { s.EmitDup() }, 1},
		{"ceq", func(s *stub.CodeStream) { s.EmitCeq() }, -1},
		{"throw", func(s *stub.CodeStream) { s.EmitThrow() }, -1},
		{"localloc", func(s *stub.CodeStream) { s.EmitLocalloc() }, 0},
		{"unaligned", func(s *stub.CodeStream) { s.EmitUnaligned(1) }, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLinker(t, stub.Config{})
			s := l.NewCodeStream(stub.StreamMarshal)
			tt.emit(s)
			instrs := s.Instructions()
			if len(instrs) != 1 || int(instrs[0].StackDelta) != tt.delta {
				t.Errorf("instructions = %+v, want delta %d", instrs, tt.delta)
			}
		})
	}
}

func TestReturnDelta(t *testing.T) {
	// void ()
	voidSig := []byte{byte(sig.CallConvDefault), 0x00, byte(sig.Void)}

	tests := []struct {
		name  string
		cfg   stub.Config
		delta int16
	}{
		{"no signature", stub.Config{}, 0},
		{"void forward", stub.Config{Signature: voidSig}, 0},
		{"value forward", stub.Config{Signature: intToInt}, -1},
		{"value reverse", stub.Config{Signature: intToInt, Flags: stub.FlagReverse}, -1},
		{"void reverse", stub.Config{Signature: voidSig, Flags: stub.FlagReverse}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLinker(t, tt.cfg)
			s := l.NewCodeStream(stub.StreamCleanup)
			s.EmitRet()
			if got := s.Instructions()[0].StackDelta; got != tt.delta {
				t.Errorf("ret delta = %d, want %d", got, tt.delta)
			}
		})
	}
}

func TestHasThisBias(t *testing.T) {
	// instance void (int32)
	raw := []byte{byte(sig.CallConvDefault | sig.CallConvHasThis), 0x01, byte(sig.Void), byte(sig.I4)}
	l := newLinker(t, stub.Config{Signature: raw, Flags: stub.FlagStubHasThis})
	if !l.HasThis() {
		t.Fatal("HasThis = false")
	}

	s := l.NewCodeStream(stub.StreamMarshal)
	s.EmitLoadThis()
	s.EmitLdarg(0)
	s.EmitLdarga(0)
	s.EmitStarg(0)
	s.EmitPop()
	s.EmitPop()
	st := build(t, l)

	want := []opcode.Opcode{opcode.Ldarg0, opcode.Ldarg1, opcode.LdargaS, opcode.StargS, opcode.Pop, opcode.Pop}
	decoded, err := stub.Disassemble(st.Code)
	if err != nil {
		t.Fatalf("Disassemble: %v", err)
	}
	if len(decoded) != len(want) {
		t.Fatalf("decoded %d instructions, want %d", len(decoded), len(want))
	}
	for i, in := range decoded {
		if in.Op != want[i] {
			t.Errorf("instruction %d = %s, want %s", i, in.Op, want[i])
		}
	}
	if decoded[2].Operand != 1 || decoded[3].Operand != 0 {
		t.Errorf("ldarga.s %d, starg.s %d; want 1 and 0", decoded[2].Operand, decoded[3].Operand)
	}
}
