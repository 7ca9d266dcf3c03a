package template

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Sentinel error kinds for everything the engine can raise. They are wrapped
// by *Error together with the source position, so callers can match with
// errors.Is while still getting line/column diagnostics.
var (
	// ErrInvalidFormatter indicates an unknown formatter name, a malformed
	// formatter argument, or a formatter whose capability does not match the
	// token it is attached to.
	ErrInvalidFormatter = errors.New("invalid formatter")

	// ErrInvalidToken indicates a token that was not terminated before the
	// end of input or that was incorrectly delimited.
	ErrInvalidToken = errors.New("invalid token")

	// ErrInvalidNamedCharacter indicates an unrecognized name inside a
	// {{_...}} token.
	ErrInvalidNamedCharacter = errors.New("invalid named character")

	// ErrInvalidBlock indicates unbalanced block nesting: a block that is
	// never closed, a close that does not match the innermost open block, or
	// a close with no open block at all.
	ErrInvalidBlock = errors.New("invalid block")

	// ErrInvalidPath indicates a dotted path component that could not be
	// resolved against a value that was found on the context stack. A root
	// name that is absent everywhere is not an error; only a failing path
	// step is.
	ErrInvalidPath = errors.New("cannot resolve path")

	// ErrNoResolver indicates an include directive in a template that was
	// constructed without an include resolver.
	ErrNoResolver = errors.New("no include resolver configured")
)

// Position is a location in template source, used for diagnostics. Line and
// Column are 1-based. Filename is empty for templates constructed directly
// from a string.
type Position struct {
	Line     int
	Column   int
	Filename string
}

func (p Position) String() string {
	var sb strings.Builder
	if p.Filename != "" {
		sb.WriteString(p.Filename)
		sb.WriteByte(':')
	}
	sb.WriteString(strconv.Itoa(p.Line))
	sb.WriteByte(':')
	sb.WriteString(strconv.Itoa(p.Column))
	return sb.String()
}

// Error is the error type returned for all template failures. It wraps one
// of the sentinel kinds above and carries the source position at which the
// failure was detected.
type Error struct {
	Kind     error
	Message  string
	Position Position
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Position, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, pos Position, format string, args ...any) *Error {
	return &Error{
		Kind:     kind,
		Message:  fmt.Sprintf(format, args...),
		Position: pos,
	}
}
