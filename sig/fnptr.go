package sig

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/wippyai/ilstub/errors"
)

// ConvertToInternal appends a module-independent copy of the method
// signature raw to dst. Class and ValueType tokens become Internal handles,
// custom modifiers become CModInternal entries. Everything else is copied.
func ConvertToInternal(dst []byte, module Module, raw []byte, r TokenResolver) ([]byte, error) {
	c := converter{
		in:     bytes.NewReader(raw),
		out:    dst,
		module: module,
		res:    r,
	}
	if err := c.method(); err != nil {
		return dst, err
	}
	if c.in.Len() != 0 {
		return dst, errors.InvalidData(errors.PhaseSignature, []string{"fnptr"},
			"trailing bytes after function pointer signature")
	}
	return c.out, nil
}

type converter struct {
	in     *bytes.Reader
	out    []byte
	module Module
	res    TokenResolver
	// verbatim copies type tokens instead of resolving them
	verbatim bool
}

func (c *converter) readByte() (byte, error) {
	b, err := c.in.ReadByte()
	if err != nil {
		return 0, truncated(err)
	}
	return b, nil
}

// copyCompressed copies one compressed integer verbatim and returns its value.
// Signed values use the same width prefix so they copy correctly too.
func (c *converter) copyCompressed() (uint32, error) {
	start := c.offset()
	v, err := ReadCompressed(c.in)
	if err != nil {
		return 0, truncated(err)
	}
	end := c.offset()
	raw := make([]byte, end-start)
	if _, err := c.in.ReadAt(raw, int64(start)); err != nil {
		return 0, truncated(err)
	}
	c.out = append(c.out, raw...)
	return v, nil
}

func (c *converter) copyN(n int) error {
	for range n {
		b, err := c.readByte()
		if err != nil {
			return err
		}
		c.out = append(c.out, b)
	}
	return nil
}

func (c *converter) offset() int {
	return int(c.in.Size()) - c.in.Len()
}

func (c *converter) resolve(token uint32) (TypeHandle, error) {
	h, _, err := resolveToken(c.res, c.module, token)
	return h, err
}

func resolveToken(r TokenResolver, module Module, token uint32) (TypeHandle, bool, error) {
	if r == nil {
		return 0, false, errors.New(errors.PhaseSignature, errors.KindInvalidInput).
			Value(token).
			Detail("type token 0x%08x needs a token resolver", token).
			Build()
	}
	h, valueType, err := r.ResolveType(module, token)
	if err != nil {
		return 0, false, errors.New(errors.PhaseSignature, errors.KindInvalidInput).
			Value(token).
			Cause(err).
			Detail("resolve type token 0x%08x", token).
			Build()
	}
	return h, valueType, nil
}

func (c *converter) method() error {
	cc, err := c.readByte()
	if err != nil {
		return err
	}
	c.out = append(c.out, cc)

	if CallConv(cc).IsGeneric() {
		if _, err := c.copyCompressed(); err != nil {
			return err
		}
	}
	n, err := c.copyCompressed()
	if err != nil {
		return err
	}
	// return type, then parameters
	for i := uint32(0); i <= n; i++ {
		if err := c.typ(); err != nil {
			return err
		}
	}
	return nil
}

func (c *converter) typ() error {
	b, err := c.readByte()
	if err != nil {
		return err
	}
	et := ElementType(b)

	switch {
	case et.IsPrimitive():
		c.out = append(c.out, b)
		return nil
	case et.IsModifier():
		c.out = append(c.out, b)
		return c.typ()
	}

	switch et {
	case CModOpt, CModReqd:
		if c.verbatim {
			c.out = append(c.out, b)
			if _, err := c.copyCompressed(); err != nil {
				return err
			}
			return c.typ()
		}
		token, err := ReadToken(c.in)
		if err != nil {
			return truncated(err)
		}
		h, err := c.resolve(token)
		if err != nil {
			return err
		}
		var required byte
		if et == CModReqd {
			required = 1
		}
		c.out = append(c.out, byte(CModInternal), required)
		c.out = binary.LittleEndian.AppendUint64(c.out, uint64(h))
		return c.typ()

	case Class, ValueType:
		if c.verbatim {
			c.out = append(c.out, b)
			_, err := c.copyCompressed()
			return err
		}
		token, err := ReadToken(c.in)
		if err != nil {
			return truncated(err)
		}
		h, err := c.resolve(token)
		if err != nil {
			return err
		}
		c.out = append(c.out, byte(Internal))
		c.out = binary.LittleEndian.AppendUint64(c.out, uint64(h))
		return nil

	case Internal:
		c.out = append(c.out, b)
		return c.copyN(HandleSize)

	case CModInternal:
		c.out = append(c.out, b)
		if err := c.copyN(1 + HandleSize); err != nil {
			return err
		}
		return c.typ()

	case Var, MVar:
		c.out = append(c.out, b)
		_, err := c.copyCompressed()
		return err

	case GenericInst:
		c.out = append(c.out, b)
		if err := c.typ(); err != nil {
			return err
		}
		n, err := c.copyCompressed()
		if err != nil {
			return err
		}
		for range n {
			if err := c.typ(); err != nil {
				return err
			}
		}
		return nil

	case Array:
		c.out = append(c.out, b)
		if err := c.typ(); err != nil {
			return err
		}
		return c.arrayShape()

	case FnPtr:
		c.out = append(c.out, b)
		return c.method()

	default:
		return errors.New(errors.PhaseSignature, errors.KindInvalidData).
			Path("fnptr").
			Value(b).
			Detail("unexpected element type 0x%02x", b).
			Build()
	}
}

func (c *converter) arrayShape() error {
	// rank
	if _, err := c.copyCompressed(); err != nil {
		return err
	}
	// sizes, then lower bounds
	for range 2 {
		n, err := c.copyCompressed()
		if err != nil {
			return err
		}
		for range n {
			if _, err := c.copyCompressed(); err != nil {
				return err
			}
		}
	}
	return nil
}

func truncated(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return errors.InvalidData(errors.PhaseDecode, nil, "signature truncated")
	}
	return err
}
