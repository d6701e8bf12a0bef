package errors

import (
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
)

// Phase indicates which pipeline step produced the error
type Phase string

const (
	PhaseUsage    Phase = "usage"    // command line handling
	PhaseRead     Phase = "read"     // reading the input image
	PhaseParse    Phase = "parse"    // executable header and program headers
	PhaseValidate Phase = "validate" // optional layout checks
	PhaseFlatten  Phase = "flatten"  // writing the flat image
	PhaseResolve  Phase = "resolve"  // entry point resolution
	PhaseEmit     Phase = "emit"     // writing the metadata artifact
	PhaseVerify   Phase = "verify"   // boot simulation
	PhaseCommit   Phase = "commit"   // publishing staged artifacts
)

// Kind categorizes the error
type Kind string

const (
	KindUsage           Kind = "usage"
	KindMalformedImage  Kind = "malformed_image"
	KindIO              Kind = "io_failure"
	KindUnresolvedEntry Kind = "unresolved_entry"
	KindLayoutMismatch  Kind = "layout_mismatch"
	KindUnsupported     Kind = "unsupported"
	KindVerification    Kind = "verification"
)

// NoSegment marks an Error that is not tied to a program header.
const NoSegment = -1

// Error is the structured error type used throughout flatimg
type Error struct {
	Value   any
	Cause   error
	Phase   Phase
	Kind    Kind
	Path    string
	Detail  string
	Segment int
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Path != "" {
		b.WriteString(" at ")
		b.WriteString(e.Path)
	}

	if e.Segment > NoSegment {
		b.WriteString(" (segment ")
		b.WriteString(strconv.Itoa(e.Segment))
		b.WriteByte(')')
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// KindOf returns the Kind of the outermost *Error in err's chain, or ""
// when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err's chain carries an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == kind {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase:   phase,
			Kind:    kind,
			Segment: NoSegment,
		},
	}
}

// Path sets the offending file path
func (b *Builder) Path(path string) *Builder {
	b.err.Path = path
	return b
}

// Segment sets the offending program header index
func (b *Builder) Segment(idx int) *Builder {
	b.err.Segment = idx
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Usage creates a command line usage error
func Usage(detail string, args ...any) *Error {
	return New(PhaseUsage, KindUsage).Detail(detail, args...).Build()
}

// MalformedImage creates an error for input that is not a usable executable
func MalformedImage(phase Phase, segment int, detail string, args ...any) *Error {
	return New(phase, KindMalformedImage).Segment(segment).Detail(detail, args...).Build()
}

// IO creates an I/O failure naming the offending path
func IO(phase Phase, path string, cause error) *Error {
	return &Error{
		Phase:   phase,
		Kind:    KindIO,
		Path:    path,
		Cause:   cause,
		Segment: NoSegment,
	}
}

// UnresolvedEntry creates an error for an entry address outside every
// loadable segment
func UnresolvedEntry(entry uint64) *Error {
	return &Error{
		Phase:   PhaseResolve,
		Kind:    KindUnresolvedEntry,
		Detail:  fmt.Sprintf("entry address %#x is not inside any loadable segment", entry),
		Value:   entry,
		Segment: NoSegment,
	}
}

// LayoutMismatch creates an error for loadable segments that are not packed
// back to back in virtual memory
func LayoutMismatch(segment int, detail string, args ...any) *Error {
	return New(PhaseValidate, KindLayoutMismatch).Segment(segment).Detail(detail, args...).Build()
}

// Unsupported creates an unsupported feature error
func Unsupported(phase Phase, feature string) *Error {
	return &Error{
		Phase:   phase,
		Kind:    KindUnsupported,
		Detail:  feature + " is not supported",
		Segment: NoSegment,
	}
}

// Verification creates a boot simulation mismatch
func Verification(segment int, detail string, args ...any) *Error {
	return New(PhaseVerify, KindVerification).Segment(segment).Detail(detail, args...).Build()
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:   phase,
		Kind:    kind,
		Detail:  detail,
		Cause:   cause,
		Segment: NoSegment,
	}
}
