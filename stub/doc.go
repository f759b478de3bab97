// Package stub assembles small CIL routines from symbolic instructions.
//
// # Main Types
//
//   - Linker: owns the code streams, labels, locals and target signature of one stub
//   - CodeStream: ordered instructions for one phase (marshal, call, cleanup, ...)
//   - Label: branch target owned by a Linker
//   - Stub: generated code, max stack, signatures and exception clauses
//
// # Linking
//
// Link makes two passes over the streams in creation order. The first pass
// lowers each instruction to its shortest encoding, records label offsets,
// sums encoded sizes and simulates the evaluation stack to find the maximum
// depth. The second pass rewrites every branch operand to the distance from
// the end of the branch to its label. Branches always use the 4-byte form.
//
// # Thread Safety
//
// A Linker and everything it hands out are confined to one goroutine.
//
// # Example
//
//	l, _ := stub.New(stub.Config{Signature: managedSig})
//	s := l.NewCodeStream(stub.StreamMarshal)
//	s.EmitLdarg(0)
//	s.EmitLdc(5)
//	s.EmitAdd()
//	s.EmitRet()
//	st, err := l.Build() // st.MaxStack == 2
package stub
