// Package apperr defines the error kinds shared by every domain package.
//
// Domain packages declare their own errors with New so that callers can match
// either the specific error or its kind:
//
//	errors.Is(err, membership.ErrAlreadyMember) // specific
//	errors.Is(err, apperr.ErrAlreadyExists)     // kind
package apperr

import (
	"errors"
	"sort"
	"strings"
)

// Error kinds.
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrInvariantViolation = errors.New("invariant violation")
	ErrValidation         = errors.New("validation failed")
)

// Error is a domain error tagged with one of the kinds above.
type Error struct {
	Kind   error
	Msg    string
	Fields map[string]string // field name -> problem, ValidationFailed only
}

// New returns a domain error of the given kind.
func New(kind error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Validation returns a ValidationFailed error carrying field-level detail.
func Validation(fields map[string]string) *Error {
	return &Error{Kind: ErrValidation, Msg: "validation failed", Fields: fields}
}

// InvalidField is shorthand for a single-field validation error.
func InvalidField(field, problem string) *Error {
	return Validation(map[string]string{field: problem})
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return e.Msg
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return e.Msg + " (" + strings.Join(parts, "; ") + ")"
}

// Unwrap exposes the kind to errors.Is.
func (e *Error) Unwrap() error { return e.Kind }

// KindOf returns the kind of err, or nil for infrastructure errors.
func KindOf(err error) error {
	for _, k := range []error{ErrUnauthorized, ErrNotFound, ErrAlreadyExists, ErrInvariantViolation, ErrValidation} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// FieldsOf returns the field details of the first *Error in err's chain.
func FieldsOf(err error) map[string]string {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}
