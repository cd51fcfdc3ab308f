package firez

import (
	"errors"
	"fmt"
)

// Sentinel errors. Use errors.Is to test for them; the typed errors below
// unwrap to the matching sentinel.
var (
	// ErrArenaFinalized is returned when a burned arena is mutated or burned again.
	ErrArenaFinalized = errors.New("firez: arena already burned")
	// ErrInvalidReference is returned when a NodeRef is used against a tree it does not belong to.
	ErrInvalidReference = errors.New("firez: node reference does not belong to this tree")
	// ErrPayloadExtraction is reported when a Provider fails or panics.
	ErrPayloadExtraction = errors.New("firez: payload extraction failed")
	// ErrSerialization is returned when a ctx value cannot be encoded.
	ErrSerialization = errors.New("firez: value cannot be serialized")
	// ErrMalformedTree is returned when an imported artifact violates the wire contract.
	ErrMalformedTree = errors.New("firez: malformed tree")
)

// SerializationError names the ctx key whose value could not be encoded.
type SerializationError struct {
	Err error
	Key string
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("firez: ctx value %q cannot be serialized: %v", e.Key, e.Err)
}

// Unwrap exposes both ErrSerialization and the underlying cause.
func (e *SerializationError) Unwrap() []error {
	return []error{ErrSerialization, e.Err}
}

// ExtractionError describes a Provider failure for a single span or event.
type ExtractionError struct {
	Err  error
	Name string
	Kind Kind
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("firez: extracting %s %q: %v", e.Kind, e.Name, e.Err)
}

// Unwrap exposes both ErrPayloadExtraction and the underlying cause.
func (e *ExtractionError) Unwrap() []error {
	return []error{ErrPayloadExtraction, e.Err}
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedTree, fmt.Sprintf(format, args...))
}
