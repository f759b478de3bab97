package sig

import "fmt"

// ElementType is a signature element type code.
type ElementType byte

const (
	End          ElementType = 0x00
	Void         ElementType = 0x01
	Boolean      ElementType = 0x02
	Char         ElementType = 0x03
	I1           ElementType = 0x04
	U1           ElementType = 0x05
	I2           ElementType = 0x06
	U2           ElementType = 0x07
	I4           ElementType = 0x08
	U4           ElementType = 0x09
	I8           ElementType = 0x0a
	U8           ElementType = 0x0b
	R4           ElementType = 0x0c
	R8           ElementType = 0x0d
	String       ElementType = 0x0e
	Ptr          ElementType = 0x0f
	ByRef        ElementType = 0x10
	ValueType    ElementType = 0x11
	Class        ElementType = 0x12
	Var          ElementType = 0x13
	Array        ElementType = 0x14
	GenericInst  ElementType = 0x15
	TypedByRef   ElementType = 0x16
	I            ElementType = 0x18
	U            ElementType = 0x19
	FnPtr        ElementType = 0x1b
	Object       ElementType = 0x1c
	SzArray      ElementType = 0x1d
	MVar         ElementType = 0x1e
	CModReqd     ElementType = 0x1f
	CModOpt      ElementType = 0x20
	Internal     ElementType = 0x21
	CModInternal ElementType = 0x22
	Sentinel     ElementType = 0x41
	Pinned       ElementType = 0x45
)

var elementNames = map[ElementType]string{
	End:          "end",
	Void:         "void",
	Boolean:      "bool",
	Char:         "char",
	I1:           "int8",
	U1:           "uint8",
	I2:           "int16",
	U2:           "uint16",
	I4:           "int32",
	U4:           "uint32",
	I8:           "int64",
	U8:           "uint64",
	R4:           "float32",
	R8:           "float64",
	String:       "string",
	Ptr:          "ptr",
	ByRef:        "byref",
	ValueType:    "valuetype",
	Class:        "class",
	Var:          "var",
	Array:        "array",
	GenericInst:  "genericinst",
	TypedByRef:   "typedref",
	I:            "native int",
	U:            "native uint",
	FnPtr:        "fnptr",
	Object:       "object",
	SzArray:      "szarray",
	MVar:         "mvar",
	CModReqd:     "modreq",
	CModOpt:      "modopt",
	Internal:     "internal",
	CModInternal: "modinternal",
	Sentinel:     "sentinel",
	Pinned:       "pinned",
}

func (t ElementType) String() string {
	if s, ok := elementNames[t]; ok {
		return s
	}
	return fmt.Sprintf("element(0x%02x)", byte(t))
}

// IsPrimitive reports whether t is a single-byte type with no further data.
func (t ElementType) IsPrimitive() bool {
	switch t {
	case Void, Boolean, Char, I1, U1, I2, U2, I4, U4, I8, U8, R4, R8,
		String, TypedByRef, I, U, Object:
		return true
	}
	return false
}

// IsModifier reports whether t prefixes another type.
func (t ElementType) IsModifier() bool {
	switch t {
	case Ptr, ByRef, SzArray, Pinned, Sentinel:
		return true
	}
	return false
}

// CallConv is the leading byte of a method or local signature.
type CallConv byte

const (
	CallConvDefault      CallConv = 0x00
	CallConvC            CallConv = 0x01
	CallConvStdCall      CallConv = 0x02
	CallConvThisCall     CallConv = 0x03
	CallConvFastCall     CallConv = 0x04
	CallConvVarArg       CallConv = 0x05
	CallConvField        CallConv = 0x06
	CallConvLocalSig     CallConv = 0x07
	CallConvProperty     CallConv = 0x08
	CallConvUnmanaged    CallConv = 0x09
	CallConvGenericInst  CallConv = 0x0a
	CallConvNativeVarArg CallConv = 0x0b

	CallConvMask CallConv = 0x0f

	CallConvGeneric      CallConv = 0x10
	CallConvHasThis      CallConv = 0x20
	CallConvExplicitThis CallConv = 0x40
)

// Kind strips the flag bits.
func (c CallConv) Kind() CallConv {
	return c & CallConvMask
}

// HasThis reports whether the implicit this flag is set.
func (c CallConv) HasThis() bool {
	return c&CallConvHasThis != 0
}

// IsGeneric reports whether a generic parameter count follows the calling convention byte.
func (c CallConv) IsGeneric() bool {
	return c&CallConvGeneric != 0
}
