// Package ilstub assembles small CIL method bodies ("stubs") at run time.
//
// A stub is written into ordered code streams, linked into a single body
// with branch offsets and a maximum stack depth, and published behind a
// handle. Identical stubs are generated once per loading context.
//
// # Architecture Overview
//
//	ilstub/
//	├── opcode/      CIL opcode table and encoding
//	├── sig/         Local and method signature builders and decoders
//	├── stub/        Code streams, labels and the two-pass linker
//	├── handle/      Handle table holding published stubs
//	├── stubcache/   Content-addressed stub cache per loading context
//	├── runtime/     Ties linking, caching and publication together
//	├── errors/      Structured error types
//	└── cmd/ildasm/  Disassembler for generated bodies
//
// # Quick Start
//
//	rt := runtime.New(runtime.DefaultOptions())
//	defer rt.Close()
//
//	ctx, _ := rt.Open("app")
//	defer ctx.Close()
//
//	h, err := ctx.Stub(blob, stub.Config{Signature: raw}, func(l *stub.Linker) error {
//	    s := l.NewCodeStream(stub.StreamMarshal)
//	    s.EmitLdarg(0)
//	    s.EmitLdc(5)
//	    s.EmitAdd()
//	    s.EmitRet()
//	    return nil
//	})
//
// # Logging
//
// The stub and stubcache packages log through zap. Both default to a no-op
// logger; install one with SetLogger before use.
package ilstub
