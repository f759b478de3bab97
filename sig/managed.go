package sig

import (
	"bytes"

	"github.com/wippyai/ilstub/errors"
)

// ManagedSignature walks the parameters of a managed method signature.
type ManagedSignature struct {
	in           *bytes.Reader
	raw          []byte
	module       Module
	res          TokenResolver
	params       uint32
	consumed     uint32
	genericCount uint32
	callConv     CallConv
	returnsVoid  bool
}

// ParseManaged reads the header of a method signature and positions the
// cursor at its first parameter.
func ParseManaged(raw []byte, module Module, r TokenResolver) (*ManagedSignature, error) {
	m := &ManagedSignature{
		in:     bytes.NewReader(raw),
		raw:    raw,
		module: module,
		res:    r,
	}

	cc, err := m.in.ReadByte()
	if err != nil {
		return nil, truncated(err)
	}
	m.callConv = CallConv(cc)
	if m.callConv.IsGeneric() {
		if m.genericCount, err = ReadCompressed(m.in); err != nil {
			return nil, truncated(err)
		}
	}
	if m.params, err = ReadCompressed(m.in); err != nil {
		return nil, truncated(err)
	}

	ret, err := m.in.ReadByte()
	if err != nil {
		return nil, truncated(err)
	}
	m.returnsVoid = ElementType(ret) == Void
	_ = m.in.UnreadByte()

	skip := converter{in: m.in, verbatim: true}
	if err := skip.typ(); err != nil {
		return nil, err
	}
	return m, nil
}

// CallConv returns the calling convention byte.
func (m *ManagedSignature) CallConv() CallConv {
	return m.callConv
}

// ParamCount returns the declared number of parameters.
func (m *ManagedSignature) ParamCount() uint32 {
	return m.params
}

// ReturnsVoid reports whether the first return element is void.
func (m *ManagedSignature) ReturnsVoid() bool {
	return m.returnsVoid
}

// Skip advances past the next parameter.
func (m *ManagedSignature) Skip() error {
	if m.consumed >= m.params {
		return errors.New(errors.PhaseSignature, errors.KindInvalidInput).
			Value(m.consumed).
			Detail("signature has only %d parameters", m.params).
			Build()
	}
	skip := converter{in: m.in, verbatim: true}
	if err := skip.typ(); err != nil {
		return err
	}
	m.consumed++
	return nil
}

// Next decodes the next parameter into a descriptor, resolving class and
// value type tokens. Custom modifiers are dropped.
func (m *ManagedSignature) Next() (Descriptor, error) {
	if m.consumed >= m.params {
		return Descriptor{}, errors.New(errors.PhaseSignature, errors.KindInvalidInput).
			Value(m.consumed).
			Detail("signature has only %d parameters", m.params).
			Build()
	}

	var d Descriptor
	for {
		b, err := m.in.ReadByte()
		if err != nil {
			return d, truncated(err)
		}
		et := ElementType(b)

		switch {
		case et.IsPrimitive():
			d.Elements = append(d.Elements, et)
			m.consumed++
			return d, nil
		case et.IsModifier():
			d.Elements = append(d.Elements, et)
			continue
		}

		switch et {
		case CModOpt, CModReqd:
			if _, err := ReadToken(m.in); err != nil {
				return d, truncated(err)
			}
			continue

		case Class, ValueType:
			token, err := ReadToken(m.in)
			if err != nil {
				return d, truncated(err)
			}
			h, valueType, err := resolveToken(m.res, m.module, token)
			if err != nil {
				return d, err
			}
			d.Elements = append(d.Elements, Internal)
			d.Handle = h
			d.ValueType = valueType
			m.consumed++
			return d, nil

		case FnPtr:
			start := int(m.in.Size()) - m.in.Len()
			skip := converter{in: m.in, verbatim: true}
			if err := skip.method(); err != nil {
				return d, err
			}
			d.Elements = append(d.Elements, FnPtr)
			d.FnPtrSig = m.raw[start : int(m.in.Size())-m.in.Len()]
			d.Module = m.module
			m.consumed++
			return d, nil

		default:
			return d, errors.Unsupported(errors.PhaseSignature, "managed parameter of type "+et.String())
		}
	}
}
