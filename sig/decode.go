package sig

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/wippyai/ilstub/errors"
)

// MethodSignature is a decoded function signature.
type MethodSignature struct {
	Return       Descriptor
	Params       []Descriptor
	ModOpts      []uint32
	GenericCount uint32
	CallConv     CallConv
}

// DecodeLocals decodes a local signature back into its descriptors.
func DecodeLocals(raw []byte) ([]Descriptor, error) {
	d := decoder{in: bytes.NewReader(raw)}

	marker, err := d.readByte()
	if err != nil {
		return nil, err
	}
	if CallConv(marker) != CallConvLocalSig {
		return nil, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Value(marker).
			Detail("local signature starts with 0x%02x", marker).
			Build()
	}
	count, err := ReadCompressed(d.in)
	if err != nil {
		return nil, truncated(err)
	}

	locals := make([]Descriptor, 0, count)
	for range count {
		desc, err := d.descriptor()
		if err != nil {
			return nil, err
		}
		locals = append(locals, desc)
	}
	if err := d.end(true); err != nil {
		return nil, err
	}
	return locals, nil
}

// DecodeMethod decodes a method signature. The trailing END written by
// FunctionBuilder is accepted but not required.
func DecodeMethod(raw []byte) (*MethodSignature, error) {
	d := decoder{in: bytes.NewReader(raw)}

	cc, err := d.readByte()
	if err != nil {
		return nil, err
	}
	m := &MethodSignature{CallConv: CallConv(cc)}
	if m.CallConv.IsGeneric() {
		if m.GenericCount, err = ReadCompressed(d.in); err != nil {
			return nil, truncated(err)
		}
	}
	count, err := ReadCompressed(d.in)
	if err != nil {
		return nil, truncated(err)
	}

	for {
		b, err := d.peek()
		if err != nil {
			return nil, err
		}
		if ElementType(b) != CModOpt {
			break
		}
		_, _ = d.in.ReadByte()
		token, err := ReadToken(d.in)
		if err != nil {
			return nil, truncated(err)
		}
		m.ModOpts = append(m.ModOpts, token)
	}

	if m.Return, err = d.descriptor(); err != nil {
		return nil, err
	}
	m.Params = make([]Descriptor, 0, count)
	for range count {
		p, err := d.descriptor()
		if err != nil {
			return nil, err
		}
		m.Params = append(m.Params, p)
	}
	if err := d.end(false); err != nil {
		return nil, err
	}
	return m, nil
}

type decoder struct {
	in *bytes.Reader
}

func (d *decoder) readByte() (byte, error) {
	b, err := d.in.ReadByte()
	if err != nil {
		return 0, truncated(err)
	}
	return b, nil
}

func (d *decoder) peek() (byte, error) {
	b, err := d.readByte()
	if err != nil {
		return 0, err
	}
	_ = d.in.UnreadByte()
	return b, nil
}

func (d *decoder) end(required bool) error {
	switch d.in.Len() {
	case 0:
		if required {
			return errors.InvalidData(errors.PhaseDecode, nil, "missing signature terminator")
		}
		return nil
	case 1:
		b, _ := d.in.ReadByte()
		if ElementType(b) != End {
			return errors.InvalidData(errors.PhaseDecode, nil, "bad signature terminator")
		}
		return nil
	default:
		return errors.InvalidData(errors.PhaseDecode, nil, "trailing bytes after signature")
	}
}

// descriptor decodes one entry in the form written by appendDescriptor.
func (d *decoder) descriptor() (Descriptor, error) {
	var desc Descriptor
	for {
		b, err := d.readByte()
		if err != nil {
			return desc, err
		}
		et := ElementType(b)
		desc.Elements = append(desc.Elements, et)
		if len(desc.Elements) > MaxElements {
			return desc, errors.InvalidData(errors.PhaseDecode, nil, "descriptor exceeds element limit")
		}

		switch {
		case et.IsPrimitive():
			return d.finish(desc)
		case et.IsModifier():
			continue
		}

		switch et {
		case Array:
			continue
		case Internal:
			var h [HandleSize]byte
			if _, err := io.ReadFull(d.in, h[:]); err != nil {
				return desc, truncated(err)
			}
			desc.Handle = TypeHandle(binary.LittleEndian.Uint64(h[:]))
			return d.finish(desc)
		case FnPtr:
			c := converter{in: d.in, verbatim: true}
			if err := c.method(); err != nil {
				return desc, err
			}
			desc.FnPtrSig = c.out
			return d.finish(desc)
		default:
			return desc, errors.New(errors.PhaseDecode, errors.KindInvalidData).
				Value(b).
				Detail("element type %s cannot appear in a descriptor", et).
				Build()
		}
	}
}

func (d *decoder) finish(desc Descriptor) (Descriptor, error) {
	if !desc.isArray() {
		return desc, nil
	}
	c := converter{in: d.in, verbatim: true}
	if err := c.arrayShape(); err != nil {
		return desc, err
	}
	desc.Bounds = c.out
	return desc, nil
}
