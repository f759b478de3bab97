package sig

import (
	"bytes"
	"encoding/binary"

	"github.com/wippyai/ilstub/errors"
)

// MaxElements bounds the element-type prefix of a descriptor.
const MaxElements = 8

// HandleSize is the width of an internal handle in a signature.
const HandleSize = 8

// TypeHandle is a process-local type identity. It is only meaningful
// within the process that produced it.
type TypeHandle uint64

// Module scopes metadata tokens found in raw signatures.
type Module uint64

// TokenResolver maps a module-relative type token to a process-local handle.
type TokenResolver interface {
	ResolveType(module Module, token uint32) (TypeHandle, bool, error)
}

// ResolverFunc adapts a function to TokenResolver.
type ResolverFunc func(module Module, token uint32) (TypeHandle, bool, error)

// ResolveType implements TokenResolver.
func (f ResolverFunc) ResolveType(module Module, token uint32) (TypeHandle, bool, error) {
	return f(module, token)
}

// Descriptor describes one local, argument or return type.
type Descriptor struct {
	// Elements is the element-type prefix, e.g. {ByRef, Internal}.
	Elements []ElementType
	// Handle follows every Internal element.
	Handle TypeHandle
	// ValueType records whether Handle names a value type.
	ValueType bool
	// FnPtrSig is the method signature following a FnPtr element.
	FnPtrSig []byte
	// Module scopes tokens inside FnPtrSig.
	Module Module
	// Bounds is the array shape following an Array element.
	Bounds []byte
}

// Primitive returns a single-element descriptor.
func Primitive(t ElementType) Descriptor {
	return Descriptor{Elements: []ElementType{t}}
}

// InternalType returns a descriptor for a resolved type, optionally
// prefixed by modifiers such as ByRef or Ptr.
func InternalType(h TypeHandle, valueType bool, modifiers ...ElementType) Descriptor {
	elems := make([]ElementType, 0, len(modifiers)+1)
	elems = append(elems, modifiers...)
	elems = append(elems, Internal)
	return Descriptor{Elements: elems, Handle: h, ValueType: valueType}
}

// FunctionPointer returns a descriptor whose module-relative signature is
// re-encoded module-independently when written.
func FunctionPointer(module Module, raw []byte) Descriptor {
	return Descriptor{Elements: []ElementType{FnPtr}, FnPtrSig: raw, Module: module}
}

// MDArray returns a multi-dimensional array of a resolved element type with
// the given shape bytes (rank, sizes, lower bounds).
func MDArray(elem TypeHandle, bounds []byte) Descriptor {
	return Descriptor{Elements: []ElementType{Array, Internal}, Handle: elem, Bounds: bounds}
}

// WithModifiers returns a copy with the given element types prefixed.
func (d Descriptor) WithModifiers(modifiers ...ElementType) Descriptor {
	elems := make([]ElementType, 0, len(modifiers)+len(d.Elements))
	elems = append(elems, modifiers...)
	elems = append(elems, d.Elements...)
	d.Elements = elems
	return d
}

// Leaf returns the first element that is not Pinned.
func (d Descriptor) Leaf() ElementType {
	for _, e := range d.Elements {
		if e != Pinned {
			return e
		}
	}
	return End
}

// IsVoid reports whether d is exactly {Void}.
func (d Descriptor) IsVoid() bool {
	return len(d.Elements) == 1 && d.Elements[0] == Void
}

// isArray reports whether an Array element appears anywhere in d.
func (d Descriptor) isArray() bool {
	for _, e := range d.Elements {
		if e == Array {
			return true
		}
	}
	return false
}

// Equal compares two descriptors field by field. Function pointer
// signatures are compared raw together with the module scoping them.
func (d Descriptor) Equal(o Descriptor) bool {
	if len(d.Elements) != len(o.Elements) || d.Handle != o.Handle || d.Module != o.Module {
		return false
	}
	for i := range d.Elements {
		if d.Elements[i] != o.Elements[i] {
			return false
		}
	}
	return bytes.Equal(d.FnPtrSig, o.FnPtrSig) && bytes.Equal(d.Bounds, o.Bounds)
}

func (d Descriptor) validate() {
	if len(d.Elements) == 0 || len(d.Elements) > MaxElements {
		panic(errors.ContractViolation(errors.PhaseSignature,
			"descriptor has %d element bytes, want 1..%d", len(d.Elements), MaxElements))
	}
	for _, e := range d.Elements {
		if e == Class || e == ValueType {
			panic(errors.ContractViolation(errors.PhaseSignature,
				"%s must be resolved to an internal handle before use", e))
		}
	}
}

// appendDescriptor writes the signature form of d.
// Class and ValueType elements are contract violations.
func appendDescriptor(dst []byte, d Descriptor, r TokenResolver) ([]byte, error) {
	d.validate()

	for _, e := range d.Elements {
		dst = append(dst, byte(e))
		switch e {
		case Internal:
			dst = binary.LittleEndian.AppendUint64(dst, uint64(d.Handle))
		case FnPtr:
			var err error
			dst, err = ConvertToInternal(dst, d.Module, d.FnPtrSig, r)
			if err != nil {
				return dst, err
			}
		}
	}

	// The shape follows the array's element type, which ends the descriptor.
	if d.isArray() {
		dst = append(dst, d.Bounds...)
	}
	return dst, nil
}

// EncodedSize returns the number of bytes d occupies in a signature.
func (d Descriptor) EncodedSize(r TokenResolver) (int, error) {
	b, err := appendDescriptor(nil, d, r)
	if err != nil {
		return 0, err
	}
	return len(b), nil
}
