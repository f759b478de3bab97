package stub

import "github.com/wippyai/ilstub/sig"

// Options configures linker behavior.
type Options struct {
	// Debug turns a simulated stack underflow into a panic after it is logged.
	Debug bool
}

// DefaultOptions returns default linker configuration.
func DefaultOptions() Options {
	return Options{}
}

// Flags describe the kind of stub being built.
type Flags uint32

const (
	// FlagReverse marks a native-to-managed stub. The target signature is
	// then the managed signature and does not affect the target stack delta.
	FlagReverse Flags = 1 << iota
	// FlagStubHasThis biases argument indices by one for an implicit this.
	FlagStubHasThis
	// FlagTargetHasThis marks a target that receives an implicit this.
	FlagTargetHasThis
	// FlagNDirect marks a call into native code. Native signatures never
	// carry a this pointer.
	FlagNDirect
	// FlagSuppressGCTransition adds the suppress-transition modifier and
	// switches the target to the unmanaged calling convention.
	FlagSuppressGCTransition
)

// Has reports whether all bits of f2 are set.
func (f Flags) Has(f2 Flags) bool {
	return f&f2 == f2
}

// Modifier names a marker type used as a calling convention modopt.
type Modifier uint8

const (
	ModCdecl Modifier = iota
	ModStdcall
	ModThiscall
	ModFastcall
	ModMemberFunction
	ModSuppressGCTransition
)

var modifierNames = [...]string{
	ModCdecl:                "CallConvCdecl",
	ModStdcall:              "CallConvStdcall",
	ModThiscall:             "CallConvThiscall",
	ModFastcall:             "CallConvFastcall",
	ModMemberFunction:       "CallConvMemberFunction",
	ModSuppressGCTransition: "CallConvSuppressGCTransition",
}

func (m Modifier) String() string {
	if int(m) < len(modifierNames) {
		return modifierNames[m]
	}
	return "CallConvUnknown"
}

// Config describes the stub a Linker builds.
type Config struct {
	// Resolver resolves type tokens found in Signature and in function
	// pointer descriptors.
	Resolver sig.TokenResolver
	// Modifiers maps calling convention marker types to their handles.
	Modifiers map[Modifier]sig.TypeHandle
	// Signature is the stub's managed method signature. It may be empty.
	Signature []byte
	// Module scopes tokens inside Signature.
	Module  sig.Module
	Flags   Flags
	Options Options
}
