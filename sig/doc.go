// Package sig builds and decodes the compact type signatures attached to a
// generated stub.
//
// A LocalBuilder serializes the stub's locals:
//
//	lb := sig.NewLocalBuilder(nil)
//	n, _ := lb.NewLocal(sig.Primitive(sig.I4))            // ordinal 0
//	_, _ = lb.NewLocal(sig.InternalType(h, true, sig.ByRef)) // ordinal 1
//	blob, err := lb.Bytes() // {0x07, 2, I4, BYREF INTERNAL <h>, END}
//
// A FunctionBuilder serializes a native call shape with a calling
// convention, optional calling convention modifiers, one return descriptor
// and the argument list.
//
// Descriptors that cannot be expressed as a single primitive byte are
// escaped: an Internal element carries an 8-byte process-local TypeHandle,
// and a FnPtr element carries a nested method signature re-encoded so that
// every type token is replaced by a handle obtained from a TokenResolver.
//
// Sizes are computed with overflow checks. Counts beyond MaxCompressed or
// totals beyond 32 bits fail before anything is written.
package sig
