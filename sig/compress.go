package sig

import (
	"io"

	"github.com/wippyai/ilstub/errors"
)

// Compressed integer encoding for signature blobs (ECMA-335 II.23.2)

// MaxCompressed is the largest value representable in compressed form.
const MaxCompressed = 0x1FFFFFFF

// CompressedSize returns the encoded width of v.
func CompressedSize(v uint32) (int, error) {
	switch {
	case v < 0x80:
		return 1, nil
	case v < 0x4000:
		return 2, nil
	case v <= MaxCompressed:
		return 4, nil
	default:
		return 0, errors.Overflow(errors.PhaseSignature, v, "compressed integer")
	}
}

// PutCompressed writes v into dst and returns the number of bytes written.
// dst must hold CompressedSize(v) bytes.
func PutCompressed(dst []byte, v uint32) (int, error) {
	n, err := CompressedSize(v)
	if err != nil {
		return 0, err
	}
	switch n {
	case 1:
		dst[0] = byte(v)
	case 2:
		dst[0] = byte(v>>8) | 0x80
		dst[1] = byte(v)
	default:
		dst[0] = byte(v>>24) | 0xC0
		dst[1] = byte(v >> 16)
		dst[2] = byte(v >> 8)
		dst[3] = byte(v)
	}
	return n, nil
}

// AppendCompressed appends the compressed form of v.
func AppendCompressed(dst []byte, v uint32) ([]byte, error) {
	var tmp [4]byte
	n, err := PutCompressed(tmp[:], v)
	if err != nil {
		return dst, err
	}
	return append(dst, tmp[:n]...), nil
}

// ReadCompressed reads a compressed unsigned integer.
func ReadCompressed(r io.ByteReader) (uint32, error) {
	b0, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	switch {
	case b0&0x80 == 0:
		return uint32(b0), nil
	case b0&0xC0 == 0x80:
		b1, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		return uint32(b0&0x3F)<<8 | uint32(b1), nil
	case b0&0xE0 == 0xC0:
		var rest [3]byte
		for i := range rest {
			if rest[i], err = r.ReadByte(); err != nil {
				return 0, err
			}
		}
		return uint32(b0&0x1F)<<24 | uint32(rest[0])<<16 | uint32(rest[1])<<8 | uint32(rest[2]), nil
	default:
		return 0, errors.InvalidData(errors.PhaseDecode, nil, "invalid compressed integer prefix")
	}
}

// Metadata token tables usable in TypeDefOrRef positions
const (
	TableTypeRef  uint32 = 0x01000000
	TableTypeDef  uint32 = 0x02000000
	TableTypeSpec uint32 = 0x1b000000
)

const (
	tokenTableMask = 0xFF000000
	tokenRIDMask   = 0x00FFFFFF
)

// CompressToken encodes a TypeDefOrRef token as rid<<2 | tag.
func CompressToken(token uint32) (uint32, error) {
	rid := token & tokenRIDMask
	var tag uint32
	switch token & tokenTableMask {
	case TableTypeDef:
		tag = 0
	case TableTypeRef:
		tag = 1
	case TableTypeSpec:
		tag = 2
	default:
		return 0, errors.New(errors.PhaseSignature, errors.KindInvalidInput).
			Value(token).
			Detail("token 0x%08x is not a TypeDefOrRef token", token).
			Build()
	}
	return rid<<2 | tag, nil
}

// AppendToken appends the compressed form of a TypeDefOrRef token.
func AppendToken(dst []byte, token uint32) ([]byte, error) {
	v, err := CompressToken(token)
	if err != nil {
		return dst, err
	}
	return AppendCompressed(dst, v)
}

// ReadToken reads a compressed TypeDefOrRef token.
func ReadToken(r io.ByteReader) (uint32, error) {
	v, err := ReadCompressed(r)
	if err != nil {
		return 0, err
	}
	rid := v >> 2
	switch v & 3 {
	case 0:
		return TableTypeDef | rid, nil
	case 1:
		return TableTypeRef | rid, nil
	case 2:
		return TableTypeSpec | rid, nil
	default:
		return 0, errors.InvalidData(errors.PhaseDecode, nil, "invalid TypeDefOrRef tag")
	}
}
