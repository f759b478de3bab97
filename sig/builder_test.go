package sig_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	ilerrors "github.com/wippyai/ilstub/errors"
	"github.com/wippyai/ilstub/sig"
)

func handleBytes(h sig.TypeHandle) []byte {
	return binary.LittleEndian.AppendUint64(nil, uint64(h))
}

func TestLocalBuilder_Empty(t *testing.T) {
	lb := sig.NewLocalBuilder(nil)
	got, err := lb.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	want := []byte{0x07, 0x00, 0x00}
	if !bytes.Equal(got, want) {
		t.Errorf("empty local sig = %x, want %x", got, want)
	}
}

func TestLocalBuilder_Ordinals(t *testing.T) {
	lb := sig.NewLocalBuilder(nil)
	for i, d := range []sig.Descriptor{
		sig.Primitive(sig.I4),
		sig.Primitive(sig.I),
		sig.InternalType(0xAABB, true, sig.ByRef),
	} {
		n, err := lb.NewLocal(d)
		if err != nil {
			t.Fatalf("NewLocal: %v", err)
		}
		if int(n) != i {
			t.Errorf("ordinal = %d, want %d", n, i)
		}
	}

	got, err := lb.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	want := []byte{0x07, 0x03, byte(sig.I4), byte(sig.I), byte(sig.ByRef), byte(sig.Internal)}
	want = append(want, handleBytes(0xAABB)...)
	want = append(want, 0x00)
	if !bytes.Equal(got, want) {
		t.Errorf("local sig = %x, want %x", got, want)
	}
}

func TestLocalBuilder_RoundTrip(t *testing.T) {
	locals := []sig.Descriptor{
		sig.Primitive(sig.I4),
		sig.InternalType(0x1122334455667788, false),
		sig.InternalType(0x42, true, sig.Pinned, sig.ByRef),
		sig.Primitive(sig.R8).WithModifiers(sig.Ptr),
		sig.Primitive(sig.Object).WithModifiers(sig.SzArray),
		sig.MDArray(0x99, []byte{0x02, 0x02, 0x03, 0x04, 0x00}),
		sig.Primitive(sig.Boolean),
	}

	lb := sig.NewLocalBuilder(nil)
	for _, d := range locals {
		if _, err := lb.NewLocal(d); err != nil {
			t.Fatalf("NewLocal: %v", err)
		}
	}
	blob, err := lb.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}

	decoded, err := sig.DecodeLocals(blob)
	if err != nil {
		t.Fatalf("DecodeLocals: %v", err)
	}
	if len(decoded) != len(locals) {
		t.Fatalf("decoded %d locals, want %d", len(decoded), len(locals))
	}
	for i := range locals {
		if !decoded[i].Equal(locals[i]) {
			t.Errorf("local %d = %+v, want %+v", i, decoded[i], locals[i])
		}
	}
}

func TestLocalBuilder_ModifiedMDArray(t *testing.T) {
	shape := []byte{0x02, 0x00, 0x00}
	tests := []struct {
		name string
		desc sig.Descriptor
		want []byte
	}{
		{
			name: "byref",
			desc: sig.MDArray(0x1234, shape).WithModifiers(sig.ByRef),
			want: append(append([]byte{0x07, 0x01, byte(sig.ByRef), byte(sig.Array), byte(sig.Internal)},
				handleBytes(0x1234)...), 0x02, 0x00, 0x00, 0x00),
		},
		{
			name: "szarray of mdarray",
			desc: sig.MDArray(0x99, shape).WithModifiers(sig.SzArray),
			want: append(append([]byte{0x07, 0x01, byte(sig.SzArray), byte(sig.Array), byte(sig.Internal)},
				handleBytes(0x99)...), 0x02, 0x00, 0x00, 0x00),
		},
		{
			name: "array of pointers",
			desc: sig.Descriptor{Elements: []sig.ElementType{sig.Array, sig.Ptr, sig.I4}, Bounds: shape},
			want: []byte{0x07, 0x01, byte(sig.Array), byte(sig.Ptr), byte(sig.I4), 0x02, 0x00, 0x00, 0x00},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lb := sig.NewLocalBuilder(nil)
			if _, err := lb.NewLocal(tt.desc); err != nil {
				t.Fatalf("NewLocal: %v", err)
			}
			blob, err := lb.Bytes()
			if err != nil {
				t.Fatalf("Bytes: %v", err)
			}
			if !bytes.Equal(blob, tt.want) {
				t.Errorf("blob = %x, want %x", blob, tt.want)
			}

			decoded, err := sig.DecodeLocals(blob)
			if err != nil {
				t.Fatalf("DecodeLocals: %v", err)
			}
			if len(decoded) != 1 || !decoded[0].Equal(tt.desc) {
				t.Errorf("decoded = %+v, want %+v", decoded, tt.desc)
			}
		})
	}
}

func TestDescriptorEqual_Module(t *testing.T) {
	raw := []byte{0x00, 0x00, byte(sig.Void)}
	if !sig.FunctionPointer(1, raw).Equal(sig.FunctionPointer(1, raw)) {
		t.Error("identical function pointers differ")
	}
	if sig.FunctionPointer(1, raw).Equal(sig.FunctionPointer(2, raw)) {
		t.Error("function pointers from different modules are equal")
	}
}

func TestLocalBuilder_BufferTooSmall(t *testing.T) {
	lb := sig.NewLocalBuilder(nil)
	_, _ = lb.NewLocal(sig.Primitive(sig.I8))

	buf := []byte{0xEE, 0xEE, 0xEE}
	n, err := lb.Signature(buf)
	if n != 0 || err == nil {
		t.Fatalf("Signature = %d, %v; want failure", n, err)
	}
	if !errors.Is(err, &ilerrors.Error{Phase: ilerrors.PhaseSignature, Kind: ilerrors.KindBufferTooSmall}) {
		t.Errorf("unexpected error: %v", err)
	}
	if !bytes.Equal(buf, []byte{0xEE, 0xEE, 0xEE}) {
		t.Errorf("buffer modified on failure: %x", buf)
	}

	size, _ := lb.Size()
	if size != 4 {
		t.Errorf("Size = %d, want 4", size)
	}
}

func TestDescriptorContract(t *testing.T) {
	tests := []struct {
		name string
		desc sig.Descriptor
	}{
		{"unresolved class", sig.Primitive(sig.Class)},
		{"unresolved value type", sig.Primitive(sig.ValueType).WithModifiers(sig.ByRef)},
		{"empty", sig.Descriptor{}},
		{"too long", sig.Primitive(sig.I4).WithModifiers(
			sig.Ptr, sig.Ptr, sig.Ptr, sig.Ptr, sig.Ptr, sig.Ptr, sig.Ptr, sig.Ptr)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				r := recover()
				if !ilerrors.IsContractViolation(r) {
					t.Errorf("expected contract violation, got %v", r)
				}
			}()
			_, _ = sig.NewLocalBuilder(nil).NewLocal(tt.desc)
		})
	}
}

func TestFunctionBuilder_Default(t *testing.T) {
	fb := sig.NewFunctionBuilder(nil)
	if !fb.ReturnsVoid() {
		t.Error("default return should be void")
	}
	got, err := fb.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	want := []byte{0x00, 0x00, byte(sig.Void), 0x00}
	if !bytes.Equal(got, want) {
		t.Errorf("function sig = %x, want %x", got, want)
	}
}

func TestFunctionBuilder_ModOpts(t *testing.T) {
	fb := sig.NewFunctionBuilder(nil)
	fb.SetCallingConv(sig.CallConvUnmanaged)
	if err := fb.AddCallConvModOpt(sig.TableTypeRef | 0x05); err != nil {
		t.Fatalf("AddCallConvModOpt: %v", err)
	}
	if err := fb.SetReturnType(sig.Primitive(sig.I4)); err != nil {
		t.Fatalf("SetReturnType: %v", err)
	}
	if _, err := fb.NewArg(sig.Primitive(sig.I)); err != nil {
		t.Fatalf("NewArg: %v", err)
	}

	want := []byte{byte(sig.CallConvUnmanaged), 0x01, byte(sig.CModOpt), 0x15, byte(sig.I4), byte(sig.I), 0x00}
	size, err := fb.Size()
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != len(want) {
		t.Fatalf("Size = %d, want %d", size, len(want))
	}

	// a buffer sized without the modifier must be rejected
	if _, err := fb.Signature(make([]byte, size-2)); err == nil {
		t.Error("expected buffer-too-small when modifiers are not accounted for")
	}

	buf := make([]byte, size)
	n, err := fb.Signature(buf)
	if err != nil {
		t.Fatalf("Signature: %v", err)
	}
	if !bytes.Equal(buf[:n], want) {
		t.Errorf("function sig = %x, want %x", buf[:n], want)
	}

	m, err := sig.DecodeMethod(buf[:n])
	if err != nil {
		t.Fatalf("DecodeMethod: %v", err)
	}
	if len(m.ModOpts) != 1 || m.ModOpts[0] != sig.TableTypeRef|0x05 {
		t.Errorf("ModOpts = %x", m.ModOpts)
	}
	if !m.Return.Equal(sig.Primitive(sig.I4)) || len(m.Params) != 1 {
		t.Errorf("decoded = %+v", m)
	}

	if err := fb.AddCallConvModOpt(0x06000001); err == nil {
		t.Error("method token accepted as modifier")
	}
}

func TestFunctionBuilder_SetSignature(t *testing.T) {
	raw := []byte{
		byte(sig.CallConvDefault | sig.CallConvHasThis), 0x02,
		byte(sig.I4),
		byte(sig.Class), 0x49,
		byte(sig.ByRef), byte(sig.U1),
	}
	fb := sig.NewFunctionBuilder(nil)
	if err := fb.SetSignature(raw); err != nil {
		t.Fatalf("SetSignature: %v", err)
	}
	if fb.Count() != 2 || fb.ReturnsVoid() || !fb.CallingConv().HasThis() {
		t.Errorf("parsed state: count=%d void=%v cc=%#x", fb.Count(), fb.ReturnsVoid(), fb.CallingConv())
	}

	got, err := fb.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	want := append(append([]byte(nil), raw...), 0x00)
	if !bytes.Equal(got, want) {
		t.Errorf("re-encoded = %x, want %x", got, want)
	}

	// an existing terminator is accepted
	if err := fb.SetSignature(want); err != nil {
		t.Errorf("SetSignature with terminator: %v", err)
	}
	if err := fb.SetSignature(raw[:4]); err == nil {
		t.Error("truncated signature accepted")
	}
}

type mapResolver map[uint32]sig.TypeHandle

func (m mapResolver) ResolveType(_ sig.Module, token uint32) (sig.TypeHandle, bool, error) {
	h, ok := m[token]
	if !ok {
		return 0, false, errors.New("unknown token")
	}
	return h, false, nil
}

func TestFunctionPointerConversion(t *testing.T) {
	// int32 (class 0x01000012, valuetype 0x02000003*)
	raw := []byte{
		byte(sig.CallConvDefault), 0x02,
		byte(sig.I4),
		byte(sig.Class), 0x49,
		byte(sig.Ptr), byte(sig.ValueType), 0x0C,
	}
	res := mapResolver{
		sig.TableTypeRef | 0x12: 0x1000,
		sig.TableTypeDef | 0x03: 0x2000,
	}

	lb := sig.NewLocalBuilder(res)
	if _, err := lb.NewLocal(sig.FunctionPointer(7, raw)); err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	blob, err := lb.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}

	sub := []byte{byte(sig.CallConvDefault), 0x02, byte(sig.I4), byte(sig.Internal)}
	sub = append(sub, handleBytes(0x1000)...)
	sub = append(sub, byte(sig.Ptr), byte(sig.Internal))
	sub = append(sub, handleBytes(0x2000)...)

	want := append([]byte{0x07, 0x01, byte(sig.FnPtr)}, sub...)
	want = append(want, 0x00)
	if !bytes.Equal(blob, want) {
		t.Fatalf("fnptr local = %x\nwant          %x", blob, want)
	}

	decoded, err := sig.DecodeLocals(blob)
	if err != nil {
		t.Fatalf("DecodeLocals: %v", err)
	}
	if len(decoded) != 1 || !bytes.Equal(decoded[0].FnPtrSig, sub) {
		t.Errorf("decoded fnptr = %x, want %x", decoded[0].FnPtrSig, sub)
	}

	// encoding an already converted signature is idempotent
	again := sig.NewLocalBuilder(nil)
	if _, err := again.NewLocal(decoded[0]); err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	blob2, _ := again.Bytes()
	if !bytes.Equal(blob, blob2) {
		t.Errorf("re-encoded fnptr differs: %x", blob2)
	}
}

func TestFunctionPointerConversion_Failures(t *testing.T) {
	raw := []byte{byte(sig.CallConvDefault), 0x01, byte(sig.Void), byte(sig.Class), 0x49}

	lb := sig.NewLocalBuilder(nil)
	if _, err := lb.NewLocal(sig.FunctionPointer(1, raw)); err == nil {
		t.Error("expected error without resolver")
	}
	if lb.Count() != 0 {
		t.Errorf("failed local was counted")
	}

	lb = sig.NewLocalBuilder(mapResolver{})
	_, err := lb.NewLocal(sig.FunctionPointer(1, raw))
	if err == nil {
		t.Fatal("expected resolver error")
	}
	var e *ilerrors.Error
	if !errors.As(err, &e) || e.Cause == nil {
		t.Errorf("resolver error not wrapped: %v", err)
	}
	blob, _ := lb.Bytes()
	if !bytes.Equal(blob, []byte{0x07, 0x00, 0x00}) {
		t.Errorf("partial descriptor leaked into signature: %x", blob)
	}
}
