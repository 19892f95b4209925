// Package domain holds the error taxonomy shared by all workflow services.
package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a duplicate or an entity not in the expected
	// state (e.g. batch already decided, second pending swap).
	ErrConflict = errors.New("conflict")

	// ErrForbidden indicates an authorization or ownership violation.
	ErrForbidden = errors.New("forbidden")

	// ErrValidation indicates a precondition failure: advance-notice
	// violation, past-date mutation, empty operator pool.
	ErrValidation = errors.New("validation failed")
)

// NotFoundf wraps ErrNotFound with context.
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

// Conflictf wraps ErrConflict with context.
func Conflictf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrConflict)...)
}

// Forbiddenf wraps ErrForbidden with context.
func Forbiddenf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrForbidden)...)
}

// Validationf wraps ErrValidation with context.
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrValidation)...)
}
