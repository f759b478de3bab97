package sig_test

import (
	"errors"
	"testing"

	ilerrors "github.com/wippyai/ilstub/errors"
	"github.com/wippyai/ilstub/sig"
)

const (
	classToken = 0x02000005
	valueToken = 0x02000006
)

func testResolver(t *testing.T) sig.TokenResolver {
	return sig.ResolverFunc(func(module sig.Module, token uint32) (sig.TypeHandle, bool, error) {
		if module != 7 {
			t.Errorf("module = %d, want 7", module)
		}
		switch token {
		case classToken:
			return 0x1000, false, nil
		case valueToken:
			return 0x2000, true, nil
		}
		return 0, false, errors.New("unknown token")
	})
}

// void (int32, class, byref valuetype, int32*)
func managedSample(t *testing.T) []byte {
	t.Helper()
	raw := []byte{byte(sig.CallConvDefault), 0x04, byte(sig.Void), byte(sig.I4), byte(sig.Class)}
	raw, err := sig.AppendToken(raw, classToken)
	if err != nil {
		t.Fatal(err)
	}
	raw = append(raw, byte(sig.ByRef), byte(sig.ValueType))
	if raw, err = sig.AppendToken(raw, valueToken); err != nil {
		t.Fatal(err)
	}
	return append(raw, byte(sig.Ptr), byte(sig.I4))
}

func TestParseManaged(t *testing.T) {
	m, err := sig.ParseManaged(managedSample(t), 7, testResolver(t))
	if err != nil {
		t.Fatalf("ParseManaged: %v", err)
	}
	if m.ParamCount() != 4 || !m.ReturnsVoid() || m.CallConv() != sig.CallConvDefault {
		t.Fatalf("header: params=%d void=%v cc=%#x", m.ParamCount(), m.ReturnsVoid(), m.CallConv())
	}

	want := []sig.Descriptor{
		sig.Primitive(sig.I4),
		sig.InternalType(0x1000, false),
		sig.InternalType(0x2000, true, sig.ByRef),
		sig.Primitive(sig.I4).WithModifiers(sig.Ptr),
	}
	for i, w := range want {
		got, err := m.Next()
		if err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}
		if !got.Equal(w) {
			t.Errorf("param %d = %+v, want %+v", i, got, w)
		}
	}

	_, err = m.Next()
	if !errors.Is(err, &ilerrors.Error{Phase: ilerrors.PhaseSignature, Kind: ilerrors.KindInvalidInput}) {
		t.Errorf("Next past end = %v", err)
	}
	if err := m.Skip(); err == nil {
		t.Error("Skip past end succeeded")
	}
}

func TestManagedSkip(t *testing.T) {
	m, err := sig.ParseManaged(managedSample(t), 7, testResolver(t))
	if err != nil {
		t.Fatal(err)
	}
	for range 3 {
		if err := m.Skip(); err != nil {
			t.Fatalf("Skip: %v", err)
		}
	}
	got, err := m.Next()
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(sig.Primitive(sig.I4).WithModifiers(sig.Ptr)) {
		t.Errorf("after skips = %+v", got)
	}
}

func TestParseManagedErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"empty", nil},
		{"no count", []byte{0x00}},
		{"no return", []byte{0x00, 0x01}},
		{"generic without arity", []byte{byte(sig.CallConvGeneric)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := sig.ParseManaged(tt.raw, 0, nil); err == nil {
				t.Error("expected error")
			}
		})
	}

	t.Run("token without resolver", func(t *testing.T) {
		m, err := sig.ParseManaged(managedSample(t), 7, nil)
		if err != nil {
			t.Fatal(err)
		}
		_ = m.Skip()
		if _, err := m.Next(); err == nil {
			t.Error("class token resolved without a resolver")
		}
	})
}

func TestDecodeMethod(t *testing.T) {
	fb := sig.NewFunctionBuilder(nil)
	fb.SetCallingConv(sig.CallConvHasThis)
	if err := fb.SetReturnType(sig.Primitive(sig.I8)); err != nil {
		t.Fatal(err)
	}
	for _, d := range []sig.Descriptor{sig.Primitive(sig.R8), sig.InternalType(0x40, true, sig.Ptr)} {
		if _, err := fb.NewArg(d); err != nil {
			t.Fatal(err)
		}
	}
	raw, err := fb.Bytes()
	if err != nil {
		t.Fatal(err)
	}

	m, err := sig.DecodeMethod(raw)
	if err != nil {
		t.Fatalf("DecodeMethod: %v", err)
	}
	if m.CallConv != sig.CallConvHasThis || !m.Return.Equal(sig.Primitive(sig.I8)) || len(m.Params) != 2 {
		t.Fatalf("decoded = %+v", m)
	}
	if !m.Params[1].Equal(sig.InternalType(0x40, true, sig.Ptr)) {
		t.Errorf("param 1 = %+v", m.Params[1])
	}

	if _, err := sig.DecodeMethod(append(raw, 0xFF)); err == nil {
		t.Error("trailing bytes accepted")
	}
}
