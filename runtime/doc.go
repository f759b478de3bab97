// Package runtime ties stub generation to publication.
//
// A Runtime owns the handle table and a cache per loading context. A
// Context emits a stub only when no stub with the same identity blob has
// been published in that context:
//
//	rt := runtime.New(runtime.DefaultOptions())
//	defer rt.Close()
//
//	ctx, err := rt.Open("app")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ctx.Close()
//
//	h, err := ctx.Stub(blob, stub.Config{Signature: raw}, func(l *stub.Linker) error {
//	    s := l.NewCodeStream(stub.StreamMarshal)
//	    s.EmitLdarg(0)
//	    s.EmitRet()
//	    return nil
//	})
//
//	st, _ := rt.Get(h)
package runtime
