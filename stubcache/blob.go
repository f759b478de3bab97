package stubcache

import (
	"bytes"
	"encoding/binary"

	"github.com/wippyai/ilstub/errors"
)

// HeaderSize is the size of the length header that starts every blob.
const HeaderSize = 8

// Blob is a stub identity key: an 8-byte little-endian total length
// followed by caller-defined bytes. Blobs compare byte for byte.
type Blob []byte

// NewBlob prefixes payload with its length header.
func NewBlob(payload []byte) Blob {
	b := make(Blob, HeaderSize+len(payload))
	binary.LittleEndian.PutUint64(b, uint64(len(b)))
	copy(b[HeaderSize:], payload)
	return b
}

// ParseBlob checks that raw carries a consistent header.
func ParseBlob(raw []byte) (Blob, error) {
	b := Blob(raw)
	if err := b.validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Len returns the total length recorded in the header.
func (b Blob) Len() uint64 {
	if len(b) < HeaderSize {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// Payload returns the bytes after the header.
func (b Blob) Payload() []byte {
	if len(b) < HeaderSize {
		return nil
	}
	return b[HeaderSize:]
}

// Equal reports whether two blobs are byte-identical.
func (b Blob) Equal(o Blob) bool {
	return bytes.Equal(b, o)
}

func (b Blob) validate() error {
	if len(b) < HeaderSize {
		return errors.New(errors.PhaseCache, errors.KindInvalidInput).
			Value(len(b)).
			Detail("blob of %d bytes is shorter than its header", len(b)).
			Build()
	}
	if n := b.Len(); n != uint64(len(b)) {
		return errors.New(errors.PhaseCache, errors.KindInvalidInput).
			Value(n).
			Detail("blob header records %d bytes, blob has %d", n, len(b)).
			Build()
	}
	return nil
}

func (b Blob) clone() Blob {
	return append(Blob(nil), b...)
}
