// Package errors provides structured error types for flatimg.
//
// Errors are categorized by Phase (which pipeline step failed) and Kind
// (what went wrong). The Error type carries the offending file path or
// program header index when one applies, plus the cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseFlatten, errors.KindMalformedImage).
//		Segment(3).
//		Detail("memsz %#x smaller than filesz %#x", memsz, filesz).
//		Build()
//
// Or use the convenience constructors for the common cases:
//
//	err := errors.IO(errors.PhaseRead, path, cause)
//	err := errors.UnresolvedEntry(entry)
//
// All errors implement the standard error interface and support errors.Is/As.
// KindOf recovers the Kind through any amount of fmt.Errorf wrapping, which is
// what the CLI uses to pick an exit status.
package errors
