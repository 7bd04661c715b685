package spec

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes spec errors for clearer handling and messaging.
type ErrorCode string

const (
	InputError      ErrorCode = "InputError"
	NetworkError    ErrorCode = "NetworkError"
	ParseError      ErrorCode = "ParseError"
	ReferenceError  ErrorCode = "ReferenceError"
	MalformedSpec   ErrorCode = "MalformedSpec"
	ConversionError ErrorCode = "ConversionError"
	ShapeError      ErrorCode = "ShapeError"
)

// Sentinels matched by errors.Is against any *SpecError carrying the same code.
var (
	ErrInput         = errors.New("spec: input error")
	ErrParse         = errors.New("spec: parse error")
	ErrReference     = errors.New("spec: reference resolution error")
	ErrMalformedSpec = errors.New("spec: malformed spec")
	ErrShape         = errors.New("spec: unexpected node shape")
)

var sentinelCodes = map[error]ErrorCode{
	ErrInput:         InputError,
	ErrParse:         ParseError,
	ErrReference:     ReferenceError,
	ErrMalformedSpec: MalformedSpec,
	ErrShape:         ShapeError,
}

// SpecError is a structured error with optional location and JSON Pointer.
type SpecError struct {
	Code        ErrorCode
	Message     string
	Location    string // file path or URL
	JSONPointer string // e.g. "#/paths/~1servers/get"
	Cause       error
}

func (e *SpecError) Error() string {
	if e.Cause != nil && e.Message == "" {
		return e.Cause.Error()
	}
	return e.Message
}

func (e *SpecError) Unwrap() error { return e.Cause }

// Is reports whether target is the sentinel for this error's code.
func (e *SpecError) Is(target error) bool {
	code, ok := sentinelCodes[target]
	return ok && code == e.Code
}

func refError(ref string, cause error, format string, args ...any) error {
	return &SpecError{
		Code:        ReferenceError,
		Message:     fmt.Sprintf(format, args...),
		Location:    ref,
		JSONPointer: ref,
		Cause:       cause,
	}
}

func malformed(pointer string, format string, args ...any) error {
	return &SpecError{
		Code:        MalformedSpec,
		Message:     fmt.Sprintf(format, args...),
		JSONPointer: pointer,
	}
}

// Malformed builds a MalformedSpec error for callers outside this package that
// find required fields missing in a normalized document.
func Malformed(pointer string, format string, args ...any) error {
	return malformed(pointer, format, args...)
}
