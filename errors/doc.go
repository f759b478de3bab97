// Package errors provides structured error types for the stub assembler.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries a location path, the offending value and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseSignature, errors.KindOverflow).
//		Path("locals").
//		Value(n).
//		Detail("too many locals").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Overflow(errors.PhaseSignature, n, "compressed count")
//	err := errors.BufferTooSmall(errors.PhaseSignature, need, len(buf))
//
// Contract violations (bugs in the code emitting a stub) are not returned.
// They are raised with panic(errors.ContractViolation(...)) and can be
// recognized after recover with IsContractViolation.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
