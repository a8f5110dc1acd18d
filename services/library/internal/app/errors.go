package app

import (
	"errors"
	"strings"
)

// ErrBusinessRule matches every domain-rule violation. Callers surface these
// to clients as rejected requests; they are never retried.
var ErrBusinessRule = errors.New("business rule violation")

var (
	ErrDuplicateISBN     = newBusinessError("isbn already registered")
	ErrBookAlreadyLoaned = newBusinessError("book already loaned")
	ErrBookNotFound      = newBusinessError("book not found for passed isbn")
	ErrLoanReopen        = newBusinessError("returned loan cannot be reopened")
)

// ErrLoanNotFound is returned when an operation targets an unknown loan id.
var ErrLoanNotFound = errors.New("loan not found")

// BusinessError is a client-facing domain-rule violation.
type BusinessError struct {
	msg string
}

func newBusinessError(msg string) *BusinessError {
	return &BusinessError{msg: msg}
}

func (e *BusinessError) Error() string { return e.msg }

func (e *BusinessError) Is(target error) bool { return target == ErrBusinessRule }

// FieldError names one invalid input field.
type FieldError struct {
	Field  string
	Reason string
}

// ValidationError reports missing or malformed input.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Reason)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrBusinessRule }

type validator struct {
	fields []FieldError
}

func (v *validator) required(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.fields = append(v.fields, FieldError{Field: field, Reason: "must not be empty"})
	}
}

func (v *validator) maxLen(field, value string, n int) {
	if len(value) > n {
		v.fields = append(v.fields, FieldError{Field: field, Reason: "is too long"})
	}
}

func (v *validator) check(field string, ok bool, reason string) {
	if !ok {
		v.fields = append(v.fields, FieldError{Field: field, Reason: reason})
	}
}

func (v *validator) err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: v.fields}
}
