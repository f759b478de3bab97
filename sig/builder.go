package sig

import (
	"bytes"
	"math"

	"github.com/wippyai/ilstub/errors"
)

// builder accumulates encoded descriptors shared by both signature kinds.
type builder struct {
	buf   []byte
	count uint32
	res   TokenResolver
}

func (b *builder) append(d Descriptor) (uint32, error) {
	mark := len(b.buf)
	out, err := appendDescriptor(b.buf, d, b.res)
	if err != nil {
		b.buf = b.buf[:mark]
		return 0, err
	}
	b.buf = out
	n := b.count
	b.count++
	return n, nil
}

// checkedSize sums signature parts and fails when the total does not fit
// the 32-bit size representation.
func checkedSize(parts ...int) (int, error) {
	var total uint64
	for _, p := range parts {
		total += uint64(p)
		if total > math.MaxUint32 {
			return 0, errors.Overflow(errors.PhaseSignature, total, "signature size")
		}
	}
	return int(total), nil
}

// LocalBuilder serializes a stub's local variables.
type LocalBuilder struct {
	builder
}

// NewLocalBuilder creates a builder. The resolver is consulted only for
// function pointer descriptors and may be nil otherwise.
func NewLocalBuilder(r TokenResolver) *LocalBuilder {
	return &LocalBuilder{builder{res: r}}
}

// NewLocal appends a local and returns its 0-based ordinal.
func (b *LocalBuilder) NewLocal(d Descriptor) (uint32, error) {
	return b.append(d)
}

// Count returns the number of locals.
func (b *LocalBuilder) Count() int {
	return int(b.count)
}

// Size returns the encoded signature size.
func (b *LocalBuilder) Size() (int, error) {
	n, err := CompressedSize(b.count)
	if err != nil {
		return 0, err
	}
	return checkedSize(1, n, len(b.buf), 1)
}

// Signature writes {LOCAL_SIG, count, locals, END} into buf and returns the
// number of bytes written. Nothing is written when buf is too small.
func (b *LocalBuilder) Signature(buf []byte) (int, error) {
	size, err := b.Size()
	if err != nil {
		return 0, err
	}
	if len(buf) < size {
		return 0, errors.BufferTooSmall(errors.PhaseSignature, size, len(buf))
	}

	buf[0] = byte(CallConvLocalSig)
	n := 1
	w, _ := PutCompressed(buf[n:], b.count)
	n += w
	n += copy(buf[n:], b.buf)
	buf[n] = byte(End)
	return n + 1, nil
}

// Bytes returns a freshly allocated signature.
func (b *LocalBuilder) Bytes() ([]byte, error) {
	size, err := b.Size()
	if err != nil {
		return nil, err
	}
	out := make([]byte, size)
	if _, err := b.Signature(out); err != nil {
		return nil, err
	}
	return out, nil
}

// FunctionBuilder serializes a native call shape.
type FunctionBuilder struct {
	builder
	callConv CallConv
	modOpts  []byte
	ret      []byte
}

// NewFunctionBuilder creates a builder with the default calling convention
// and a void return.
func NewFunctionBuilder(r TokenResolver) *FunctionBuilder {
	return &FunctionBuilder{
		builder:  builder{res: r},
		callConv: CallConvDefault,
		ret:      []byte{byte(Void)},
	}
}

// SetCallingConv replaces the calling convention byte.
func (b *FunctionBuilder) SetCallingConv(cc CallConv) {
	b.callConv = cc
}

// CallingConv returns the calling convention byte.
func (b *FunctionBuilder) CallingConv() CallConv {
	return b.callConv
}

// AddCallConvModOpt appends a calling convention modifier naming a
// TypeDef or TypeRef token.
func (b *FunctionBuilder) AddCallConvModOpt(token uint32) error {
	switch token & tokenTableMask {
	case TableTypeDef, TableTypeRef:
	default:
		return errors.New(errors.PhaseSignature, errors.KindInvalidInput).
			Value(token).
			Detail("calling convention modifier 0x%08x must be a TypeDef or TypeRef", token).
			Build()
	}
	out, err := AppendToken(append(b.modOpts, byte(CModOpt)), token)
	if err != nil {
		return err
	}
	b.modOpts = out
	return nil
}

// SetReturnType replaces the return descriptor.
func (b *FunctionBuilder) SetReturnType(d Descriptor) error {
	ret, err := appendDescriptor(nil, d, b.res)
	if err != nil {
		return err
	}
	b.ret = ret
	return nil
}

// ReturnsVoid reports whether the return is exactly void.
func (b *FunctionBuilder) ReturnsVoid() bool {
	return len(b.ret) == 1 && b.ret[0] == byte(Void)
}

// NewArg appends an argument and returns its 0-based ordinal.
func (b *FunctionBuilder) NewArg(d Descriptor) (uint32, error) {
	return b.append(d)
}

// Count returns the number of arguments.
func (b *FunctionBuilder) Count() int {
	return int(b.count)
}

// SetSignature replaces the builder state with a parsed method signature.
// Generic signatures are not accepted.
func (b *FunctionBuilder) SetSignature(raw []byte) error {
	r := bytes.NewReader(raw)
	cc, err := r.ReadByte()
	if err != nil {
		return truncated(err)
	}
	if CallConv(cc).IsGeneric() {
		return errors.Unsupported(errors.PhaseSignature, "generic target signature")
	}
	count, err := ReadCompressed(r)
	if err != nil {
		return truncated(err)
	}

	skip := converter{in: r, verbatim: true}
	start := skip.offset()
	if err := skip.typ(); err != nil {
		return err
	}
	retEnd := skip.offset()
	for range count {
		if err := skip.typ(); err != nil {
			return err
		}
	}
	argsEnd := skip.offset()

	switch r.Len() {
	case 0:
	case 1:
		if raw[argsEnd] != byte(End) {
			return errors.InvalidData(errors.PhaseSignature, nil, "bad signature terminator")
		}
	default:
		return errors.InvalidData(errors.PhaseSignature, nil, "trailing bytes after signature")
	}

	b.callConv = CallConv(cc)
	b.count = count
	b.modOpts = nil
	b.ret = append([]byte(nil), raw[start:retEnd]...)
	b.buf = append(b.buf[:0], raw[retEnd:argsEnd]...)
	return nil
}

// Size returns the encoded signature size, modifiers included.
func (b *FunctionBuilder) Size() (int, error) {
	n, err := CompressedSize(b.count)
	if err != nil {
		return 0, err
	}
	return checkedSize(1, n, len(b.modOpts), len(b.ret), len(b.buf), 1)
}

// Signature writes {callconv, count, modopts, return, args, END} into buf.
// Nothing is written when buf is too small.
func (b *FunctionBuilder) Signature(buf []byte) (int, error) {
	size, err := b.Size()
	if err != nil {
		return 0, err
	}
	if len(buf) < size {
		return 0, errors.BufferTooSmall(errors.PhaseSignature, size, len(buf))
	}

	buf[0] = byte(b.callConv)
	n := 1
	w, _ := PutCompressed(buf[n:], b.count)
	n += w
	n += copy(buf[n:], b.modOpts)
	n += copy(buf[n:], b.ret)
	n += copy(buf[n:], b.buf)
	buf[n] = byte(End)
	return n + 1, nil
}

// Bytes returns a freshly allocated signature.
func (b *FunctionBuilder) Bytes() ([]byte, error) {
	size, err := b.Size()
	if err != nil {
		return nil, err
	}
	out := make([]byte, size)
	if _, err := b.Signature(out); err != nil {
		return nil, err
	}
	return out, nil
}
