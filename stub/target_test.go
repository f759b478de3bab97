package stub_test

import (
	"bytes"
	"errors"
	"testing"

	ilerrors "github.com/wippyai/ilstub/errors"
	"github.com/wippyai/ilstub/sig"
	"github.com/wippyai/ilstub/stub"
)

// int32 (int32, native int)
var twoArgs = []byte{byte(sig.CallConvDefault), 0x02, byte(sig.I4), byte(sig.I4), byte(sig.I)}

func TestTargetShape(t *testing.T) {
	tests := []struct {
		name      string
		raw       []byte
		flags     stub.Flags
		initial   int
		final     int
		callConv  sig.CallConv
		targetSig []byte
	}{
		{
			name:      "forward",
			raw:       twoArgs,
			initial:   0,
			final:     -1,
			callConv:  sig.CallConvDefault,
			targetSig: []byte{0x00, 0x02, byte(sig.I4), byte(sig.I4), byte(sig.I), 0x00},
		},
		{
			name:      "forward instance target",
			raw:       twoArgs,
			flags:     stub.FlagTargetHasThis,
			initial:   -1,
			final:     -2,
			callConv:  sig.CallConvHasThis,
			targetSig: []byte{0x20, 0x02, byte(sig.I4), byte(sig.I4), byte(sig.I), 0x00},
		},
		{
			name:      "native target drops this",
			raw:       twoArgs,
			flags:     stub.FlagTargetHasThis | stub.FlagNDirect,
			initial:   -1,
			final:     -2,
			callConv:  sig.CallConvDefault,
			targetSig: []byte{0x00, 0x02, byte(sig.I4), byte(sig.I4), byte(sig.I), 0x00},
		},
		{
			name:      "reverse",
			raw:       twoArgs,
			flags:     stub.FlagReverse,
			initial:   -1,
			final:     -1,
			callConv:  sig.CallConvDefault,
			targetSig: []byte{0x00, 0x02, byte(sig.I4), byte(sig.I4), byte(sig.I), 0x00},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLinker(t, stub.Config{Signature: tt.raw, Flags: tt.flags})
			if got := l.TargetStackDelta(); got != tt.initial {
				t.Errorf("initial delta = %d, want %d", got, tt.initial)
			}
			if got := l.TargetCallingConv(); got != tt.callConv {
				t.Errorf("calling convention = %#x, want %#x", got, tt.callConv)
			}

			ret := sig.Primitive(sig.I4)
			if err := l.SetStubTargetReturnType(ret); err != nil {
				t.Fatalf("SetStubTargetReturnType: %v", err)
			}
			for range 2 {
				if _, err := l.SetStubTargetArgType(nil, true); err != nil {
					t.Fatalf("SetStubTargetArgType: %v", err)
				}
			}
			if got := l.TargetStackDelta(); got != tt.final {
				t.Errorf("final delta = %d, want %d", got, tt.final)
			}

			s := l.NewCodeStream(stub.StreamCallMethod)
			s.EmitCallTarget()
			in := s.Instructions()[0]
			if int(in.StackDelta) != tt.final-1 || uint32(in.Arg) != stub.TargetSigToken {
				t.Errorf("call target = %+v", in)
			}

			st := build(t, l)
			if !bytes.Equal(st.TargetSig, tt.targetSig) {
				t.Errorf("TargetSig = %x, want %x", st.TargetSig, tt.targetSig)
			}
		})
	}
}

func TestTargetVarArg(t *testing.T) {
	raw := []byte{byte(sig.CallConvVarArg), 0x00, byte(sig.Void)}

	l := newLinker(t, stub.Config{Signature: raw, Flags: stub.FlagNDirect})
	if got := l.TargetCallingConv(); got != sig.CallConvNativeVarArg {
		t.Errorf("ndirect vararg = %#x, want native vararg", got)
	}
	l = newLinker(t, stub.Config{Signature: raw})
	if got := l.TargetCallingConv(); got != sig.CallConvDefault {
		t.Errorf("managed vararg = %#x, want default", got)
	}
}

func TestTargetArgNormalization(t *testing.T) {
	tests := []struct {
		name string
		in   sig.Descriptor
		want sig.Descriptor
	}{
		{"primitive", sig.Primitive(sig.R8), sig.Primitive(sig.R8)},
		{"pointer", sig.Primitive(sig.I4).WithModifiers(sig.Ptr), sig.Primitive(sig.I)},
		{"byref", sig.Primitive(sig.I4).WithModifiers(sig.ByRef), sig.Primitive(sig.I)},
		{"string", sig.Primitive(sig.String), sig.Primitive(sig.I)},
		{"class handle", sig.InternalType(5, false), sig.Primitive(sig.I)},
		{"value type handle", sig.InternalType(5, true), sig.InternalType(5, true)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLinker(t, stub.Config{Signature: twoArgs})
			if _, err := l.SetStubTargetArgType(&tt.in, true); err != nil {
				t.Fatalf("SetStubTargetArgType: %v", err)
			}
			st := build(t, l)
			m, err := sig.DecodeMethod(st.TargetSig)
			if err != nil {
				t.Fatalf("DecodeMethod: %v", err)
			}
			if len(m.Params) != 1 || !m.Params[0].Equal(tt.want) {
				t.Errorf("params = %+v, want %+v", m.Params, tt.want)
			}
		})
	}
}

func TestTargetConsumesManagedParams(t *testing.T) {
	l := newLinker(t, stub.Config{Signature: twoArgs})
	if _, err := l.SetStubTargetPrimitiveArg(sig.U8, true); err != nil {
		t.Fatalf("explicit arg: %v", err)
	}
	if n, err := l.SetStubTargetArgType(nil, true); err != nil || n != 1 {
		t.Fatalf("derived arg = %d, %v", n, err)
	}
	if _, err := l.SetStubTargetArgType(nil, true); err == nil {
		t.Error("expected error past the last managed parameter")
	}
	if _, err := l.SetStubTargetPrimitiveArg(sig.I4, false); err != nil {
		t.Errorf("non-consuming arg: %v", err)
	}

	st := build(t, l)
	m, err := sig.DecodeMethod(st.TargetSig)
	if err != nil {
		t.Fatalf("DecodeMethod: %v", err)
	}
	want := []sig.Descriptor{sig.Primitive(sig.U8), sig.Primitive(sig.I), sig.Primitive(sig.I4)}
	if len(m.Params) != len(want) {
		t.Fatalf("params = %+v", m.Params)
	}
	for i := range want {
		if !m.Params[i].Equal(want[i]) {
			t.Errorf("param %d = %+v, want %+v", i, m.Params[i], want[i])
		}
	}
}

func TestTargetCallingConv(t *testing.T) {
	l := newLinker(t, stub.Config{Signature: twoArgs, Flags: stub.FlagTargetHasThis})
	if err := l.SetStubTargetCallingConv(sig.CallConvC); err != nil {
		t.Fatalf("SetStubTargetCallingConv: %v", err)
	}
	if l.TargetCallingConv() != sig.CallConvC {
		t.Errorf("calling convention = %#x", l.TargetCallingConv())
	}
	if got := l.TargetStackDelta(); got != 0 {
		t.Errorf("delta after dropping this = %d, want 0", got)
	}

	l = newLinker(t, stub.Config{Signature: twoArgs, Flags: stub.FlagTargetHasThis})
	if err := l.SetStubTargetUnmanagedCallConv(stub.UnmanagedThiscall); err != nil {
		t.Fatalf("SetStubTargetUnmanagedCallConv: %v", err)
	}
	if l.TargetCallingConv() != sig.CallConvThisCall || l.TargetStackDelta() != 0 {
		t.Errorf("thiscall: cc=%#x delta=%d", l.TargetCallingConv(), l.TargetStackDelta())
	}
}

func TestSuppressGCTransition(t *testing.T) {
	mods := map[stub.Modifier]sig.TypeHandle{
		stub.ModSuppressGCTransition: 0x5000,
		stub.ModStdcall:              0x6000,
		stub.ModCdecl:                0x7000,
		stub.ModMemberFunction:       0x8000,
	}
	l := newLinker(t, stub.Config{Flags: stub.FlagSuppressGCTransition, Modifiers: mods})
	if l.TargetCallingConv() != sig.CallConvUnmanaged {
		t.Fatalf("calling convention = %#x, want unmanaged", l.TargetCallingConv())
	}

	if err := l.SetStubTargetCallingConv(sig.CallConvStdCall); err != nil {
		t.Fatalf("SetStubTargetCallingConv: %v", err)
	}
	if err := l.SetStubTargetUnmanagedCallConv(stub.UnmanagedCMember); err != nil {
		t.Fatalf("SetStubTargetUnmanagedCallConv: %v", err)
	}
	err := l.SetStubTargetCallingConv(sig.CallConvVarArg)
	if !errors.Is(err, &ilerrors.Error{Phase: ilerrors.PhaseSignature, Kind: ilerrors.KindUnsupported}) {
		t.Errorf("vararg under unmanaged: %v", err)
	}

	st := build(t, l)
	want := []byte{
		byte(sig.CallConvUnmanaged), 0x00,
		byte(sig.CModOpt), 0x04,
		byte(sig.CModOpt), 0x08,
		byte(sig.CModOpt), 0x0C,
		byte(sig.CModOpt), 0x10,
		byte(sig.Void), 0x00,
	}
	if !bytes.Equal(st.TargetSig, want) {
		t.Errorf("TargetSig = %x, want %x", st.TargetSig, want)
	}

	refs := []uint64{0x5000, 0x6000, 0x7000, 0x8000}
	if len(st.Tokens) != len(refs) {
		t.Fatalf("Tokens = %+v", st.Tokens)
	}
	for i, ref := range refs {
		if st.Tokens[i].Ref != ref || st.Tokens[i].Token != 0x02000001+uint32(i) {
			t.Errorf("token %d = %+v", i, st.Tokens[i])
		}
	}
}

func TestMissingModifier(t *testing.T) {
	_, err := stub.New(stub.Config{Flags: stub.FlagSuppressGCTransition})
	if !errors.Is(err, &ilerrors.Error{Phase: ilerrors.PhaseSignature, Kind: ilerrors.KindNotFound}) {
		t.Errorf("New without modifiers: %v", err)
	}
}

func TestBadManagedSignature(t *testing.T) {
	_, err := stub.New(stub.Config{Signature: []byte{0x00, 0x01}})
	if err == nil {
		t.Fatal("expected error for truncated signature")
	}
}
