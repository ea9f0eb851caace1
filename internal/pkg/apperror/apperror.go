// Package apperror defines the error kinds surfaced by the cluster engine.
// Callers wrap them with fmt.Errorf("...: %w", ...) and classify with
// errors.Is.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrInsufficientData     = errors.New("insufficient data")
	ErrIncompatibleMerge    = errors.New("incompatible merge")
	ErrExternalCollaborator = errors.New("external collaborator failure")
	ErrPersistence          = errors.New("persistence failure")
	ErrConflict             = errors.New("conflict")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrLocked               = errors.New("operation already in progress")
)

func NotFound(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}

func InvalidArgument(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidArgument)
}

func Conflict(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrConflict)
}

// Persistence wraps a storage error, keeping both in the chain.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}

func External(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrExternalCollaborator, err)
}
