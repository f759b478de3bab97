package stub

import (
	"github.com/wippyai/ilstub/errors"
	"github.com/wippyai/ilstub/sig"
)

// Linker assembles one stub from its code streams. It owns every stream,
// label and signature builder it hands out. Not thread-safe.
type Linker struct {
	modifiers         map[Modifier]sig.TypeHandle
	managed           *sig.ManagedSignature
	locals            *sig.LocalBuilder
	target            *sig.FunctionBuilder
	streams           []*CodeStream
	labels            []labelState
	tokens            tokenMap
	flags             Flags
	opts              Options
	targetStackDelta  int
	codeSize          int
	maxStack          int
	gen               uint32
	hasThis           bool
	returnsVoid       bool
	targetReturnsVoid bool
	linked            bool
}

// New creates a linker for the stub described by cfg. The managed signature,
// when present, seeds the target call shape.
func New(cfg Config) (*Linker, error) {
	l := &Linker{
		modifiers:         cfg.Modifiers,
		locals:            sig.NewLocalBuilder(cfg.Resolver),
		target:            sig.NewFunctionBuilder(cfg.Resolver),
		flags:             cfg.Flags,
		opts:              cfg.Options,
		returnsVoid:       true,
		targetReturnsVoid: true,
	}

	if cfg.Flags.Has(FlagSuppressGCTransition) {
		if err := l.addModifier(ModSuppressGCTransition); err != nil {
			return nil, err
		}
		l.target.SetCallingConv(sig.CallConvUnmanaged)
	}

	if len(cfg.Signature) == 0 {
		return l, nil
	}

	m, err := sig.ParseManaged(cfg.Signature, cfg.Module, cfg.Resolver)
	if err != nil {
		return nil, err
	}
	l.managed = m
	l.returnsVoid = m.ReturnsVoid()
	l.targetReturnsVoid = l.returnsVoid
	l.hasThis = cfg.Flags.Has(FlagStubHasThis)

	native := sig.CallConvDefault
	if m.CallConv().Kind() == sig.CallConvVarArg && cfg.Flags.Has(FlagNDirect) {
		native = sig.CallConvNativeVarArg
	}
	targetHasThis := cfg.Flags.Has(FlagTargetHasThis)
	if targetHasThis && !cfg.Flags.Has(FlagNDirect) {
		native |= sig.CallConvHasThis
	}
	if targetHasThis && !l.Reverse() {
		l.targetStackDelta--
	}

	if l.target.CallingConv() == sig.CallConvUnmanaged {
		if mod, ok := unmanagedModifier(native); ok {
			if err := l.addModifier(mod); err != nil {
				return nil, err
			}
		}
	} else {
		l.target.SetCallingConv(native)
	}

	if l.Reverse() {
		l.targetStackDelta -= int(m.ParamCount())
		if !l.returnsVoid {
			l.targetStackDelta++
		}
	}
	return l, nil
}

// NewCodeStream appends a stream of the given phase. Streams are linked in
// creation order.
func (l *Linker) NewCodeStream(kind StreamKind) *CodeStream {
	if l.linked {
		panic(errors.ContractViolation(errors.PhaseEmit, "new code stream after link"))
	}
	s := &CodeStream{owner: l, kind: kind, index: len(l.streams)}
	l.streams = append(l.streams, s)
	return s
}

// Streams returns the streams in link order.
func (l *Linker) Streams() []*CodeStream {
	return append([]*CodeStream(nil), l.streams...)
}

// NewLocal declares a local variable and returns its ordinal.
func (l *Linker) NewLocal(d sig.Descriptor) (uint32, error) {
	return l.locals.NewLocal(d)
}

// NewPrimitiveLocal declares a local of a primitive element type.
func (l *Linker) NewPrimitiveLocal(t sig.ElementType) (uint32, error) {
	return l.locals.NewLocal(sig.Primitive(t))
}

// LocalCount returns the number of declared locals.
func (l *Linker) LocalCount() int {
	return l.locals.Count()
}

// Reverse reports whether the stub is called from native code.
func (l *Linker) Reverse() bool {
	return l.flags.Has(FlagReverse)
}

// HasThis reports whether argument indices are biased for an implicit this.
func (l *Linker) HasThis() bool {
	return l.hasThis
}

// ReturnsVoid reports whether the stub itself returns no value.
func (l *Linker) ReturnsVoid() bool {
	return l.returnsVoid
}

// TargetReturnsVoid reports whether the stub target returns no value.
func (l *Linker) TargetReturnsVoid() bool {
	return l.targetReturnsVoid
}

// TargetStackDelta returns the net stack effect of calling the target,
// excluding the function pointer.
func (l *Linker) TargetStackDelta() int {
	return l.targetStackDelta
}

// TargetCallingConv returns the calling convention of the target signature.
func (l *Linker) TargetCallingConv() sig.CallConv {
	return l.target.CallingConv()
}

// Token returns the stub-local token for a reference. Repeated requests for
// the same reference return the same token.
func (l *Linker) Token(kind TokenKind, ref uint64) uint32 {
	return l.tokens.token(kind, ref)
}

// SigToken returns the stub-local token for a standalone signature.
func (l *Linker) SigToken(raw []byte) uint32 {
	return l.tokens.sigToken(raw)
}

// Tokens returns every token handed out so far, in creation order.
func (l *Linker) Tokens() []TokenEntry {
	return l.tokens.snapshot()
}

// SetStubTargetReturnType sets the target return type. For forward stubs
// a value return adds one to the target stack delta.
func (l *Linker) SetStubTargetReturnType(d sig.Descriptor) error {
	d = transformArgForJIT(d)
	if err := l.target.SetReturnType(d); err != nil {
		return err
	}
	if !l.Reverse() {
		l.targetReturnsVoid = d.IsVoid()
		if !l.targetReturnsVoid {
			l.targetStackDelta++
		}
	}
	return nil
}

// SetStubTargetArgType appends a target argument and returns its ordinal.
// When consume is set the next managed parameter is also consumed. A nil
// descriptor then takes the type of that parameter.
func (l *Linker) SetStubTargetArgType(d *sig.Descriptor, consume bool) (uint32, error) {
	var arg sig.Descriptor
	switch {
	case d != nil:
		arg = *d
		if consume {
			if err := l.managedSig().Skip(); err != nil {
				return 0, err
			}
		}
	case consume:
		next, err := l.managedSig().Next()
		if err != nil {
			return 0, err
		}
		arg = next
	default:
		panic(errors.ContractViolation(errors.PhaseSignature,
			"target argument needs a descriptor or a managed parameter"))
	}

	n, err := l.target.NewArg(transformArgForJIT(arg))
	if err != nil {
		return 0, err
	}
	if !l.Reverse() {
		l.targetStackDelta--
	}
	return n, nil
}

// SetStubTargetPrimitiveArg appends a primitive target argument.
func (l *Linker) SetStubTargetPrimitiveArg(t sig.ElementType, consume bool) (uint32, error) {
	d := sig.Primitive(t)
	return l.SetStubTargetArgType(&d, consume)
}

// SetStubTargetCallingConv replaces the target calling convention. Under the
// unmanaged convention the choice is recorded as a modifier instead.
func (l *Linker) SetStubTargetCallingConv(cc sig.CallConv) error {
	orig := l.target.CallingConv()
	if orig == sig.CallConvUnmanaged {
		mod, ok := unmanagedModifier(cc)
		if !ok {
			return errors.Unsupported(errors.PhaseSignature,
				"unmanaged calling convention modifier for "+callConvName(cc))
		}
		if err := l.addModifier(mod); err != nil {
			return err
		}
	} else {
		l.target.SetCallingConv(cc)
	}

	if !l.Reverse() && orig.HasThis() && !cc.HasThis() {
		l.targetStackDelta++
	}
	return nil
}

// UnmanagedCallConv is a native calling convention that may need modifiers
// beyond the calling convention byte.
type UnmanagedCallConv uint8

const (
	UnmanagedC UnmanagedCallConv = iota + 1
	UnmanagedStdcall
	UnmanagedThiscall
	UnmanagedFastcall
	UnmanagedCMember
	UnmanagedStdcallMember
	UnmanagedFastcallMember
)

// SetStubTargetUnmanagedCallConv selects a native calling convention,
// preferring the plain calling convention byte and falling back to
// modifiers under the unmanaged convention.
func (l *Linker) SetStubTargetUnmanagedCallConv(cc UnmanagedCallConv) error {
	orig := l.target.CallingConv()
	if orig != sig.CallConvUnmanaged {
		switch cc {
		case UnmanagedC:
			l.target.SetCallingConv(sig.CallConvC)
		case UnmanagedStdcall:
			l.target.SetCallingConv(sig.CallConvStdCall)
		case UnmanagedThiscall:
			l.target.SetCallingConv(sig.CallConvThisCall)
		case UnmanagedFastcall:
			l.target.SetCallingConv(sig.CallConvFastCall)
		default:
			l.target.SetCallingConv(sig.CallConvUnmanaged)
		}
	}

	if l.target.CallingConv() == sig.CallConvUnmanaged {
		var mods []Modifier
		switch cc {
		case UnmanagedC:
			mods = []Modifier{ModCdecl}
		case UnmanagedStdcall:
			mods = []Modifier{ModStdcall}
		case UnmanagedThiscall:
			mods = []Modifier{ModThiscall}
		case UnmanagedFastcall:
			mods = []Modifier{ModFastcall}
		case UnmanagedCMember:
			mods = []Modifier{ModCdecl, ModMemberFunction}
		case UnmanagedStdcallMember:
			mods = []Modifier{ModStdcall, ModMemberFunction}
		case UnmanagedFastcallMember:
			mods = []Modifier{ModFastcall, ModMemberFunction}
		default:
			return errors.Unsupported(errors.PhaseSignature, "unknown unmanaged calling convention")
		}
		for _, m := range mods {
			if err := l.addModifier(m); err != nil {
				return err
			}
		}
	}

	if !l.Reverse() && orig.HasThis() {
		l.targetStackDelta++
	}
	return nil
}

// ClearCode discards all emitted code and labels. Streams stay registered
// and the linker can be linked again.
func (l *Linker) ClearCode() {
	l.labels = l.labels[:0]
	l.gen++
	for _, s := range l.streams {
		s.reset()
	}
	l.linked = false
	l.codeSize = 0
	l.maxStack = 0
}

func (l *Linker) thisBias() int {
	if l.hasThis {
		return 1
	}
	return 0
}

func (l *Linker) returnPopsStack() bool {
	if l.Reverse() {
		return !l.targetReturnsVoid
	}
	return !l.returnsVoid
}

func (l *Linker) managedSig() *sig.ManagedSignature {
	if l.managed == nil {
		panic(errors.ContractViolation(errors.PhaseSignature, "stub has no managed signature"))
	}
	return l.managed
}

func (l *Linker) addModifier(m Modifier) error {
	h, ok := l.modifiers[m]
	if !ok {
		return errors.NotFound(errors.PhaseSignature, "calling convention modifier", m.String())
	}
	return l.target.AddCallConvModOpt(l.Token(TokenType, uint64(h)))
}

func unmanagedModifier(cc sig.CallConv) (Modifier, bool) {
	switch cc {
	case sig.CallConvC:
		return ModCdecl, true
	case sig.CallConvStdCall:
		return ModStdcall, true
	case sig.CallConvThisCall:
		return ModThiscall, true
	case sig.CallConvFastCall:
		return ModFastcall, true
	}
	return 0, false
}

func callConvName(cc sig.CallConv) string {
	switch cc.Kind() {
	case sig.CallConvDefault:
		return "default"
	case sig.CallConvC:
		return "cdecl"
	case sig.CallConvStdCall:
		return "stdcall"
	case sig.CallConvThisCall:
		return "thiscall"
	case sig.CallConvFastCall:
		return "fastcall"
	case sig.CallConvVarArg:
		return "vararg"
	case sig.CallConvUnmanaged:
		return "unmanaged"
	case sig.CallConvNativeVarArg:
		return "native vararg"
	default:
		return "other"
	}
}

// transformArgForJIT normalizes a target descriptor: primitives and value
// type handles pass through, everything else becomes native int.
func transformArgForJIT(d sig.Descriptor) sig.Descriptor {
	if len(d.Elements) != 1 {
		return sig.Primitive(sig.I)
	}
	switch t := d.Elements[0]; t {
	case sig.Void, sig.Boolean, sig.Char, sig.I1, sig.U1, sig.I2, sig.U2,
		sig.I4, sig.U4, sig.I8, sig.U8, sig.R4, sig.R8, sig.I, sig.U:
		return d
	case sig.Internal:
		if d.ValueType {
			return d
		}
	}
	return sig.Primitive(sig.I)
}
