package storage

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed input: a bad enum value, an empty
// required field, a broken recurrence rule.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
}

// NotFoundError reports an absent entity. It is also returned for entities
// owned by another user, so existence of foreign rows is never leaked.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// AuthorizationError reports an authenticated but unpermitted operation.
type AuthorizationError struct {
	Entity string
	ID     string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("not authorized for %s %s", e.Entity, e.ID)
}

// ConflictError reports a uniqueness violation, e.g. a duplicate tag name.
type ConflictError struct {
	Entity string
	Detail string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s conflict: %s", e.Entity, e.Detail)
}

// UnavailableError wraps a persistence-layer failure.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a NotFoundError anywhere in its chain.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation reports whether err is a ValidationError anywhere in its chain.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsConflict reports whether err is a ConflictError anywhere in its chain.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
