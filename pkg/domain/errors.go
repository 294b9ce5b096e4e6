package domain

import (
	"errors"
	"fmt"
)

// Common domain errors
var (
	ErrAddressing     = errors.New("unresolvable parameter path")
	ErrConfigInvalid  = errors.New("invalid configuration")
	ErrUnsupported    = errors.New("unsupported operation")
	ErrFrameNotFound  = errors.New("frame not found")
	ErrModelNotFound  = errors.New("model not found")
	ErrNotFitted      = errors.New("transformer not fitted")
	ErrInvalidFrame   = errors.New("invalid frame")
	ErrColumnNotFound = errors.New("column not found")
)

// AddressingError reports a parameter path that does not resolve to the pipeline,
// its estimator or one of its transformers.
type AddressingError struct {
	Path   string
	Reason string
}

func (e *AddressingError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unknown pipeline parameter %q: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("unknown pipeline parameter %q", e.Path)
}

// Is matches ErrAddressing.
func (e *AddressingError) Is(target error) bool {
	return target == ErrAddressing
}

// ConfigError reports a structured configuration value that could not be parsed.
// The raw value is embedded in the message; the field is left unset.
type ConfigError struct {
	Field string
	Raw   string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("can't parse the %s dictionary; got error: %v for raw value: %s", e.Field, e.Err, e.Raw)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is matches ErrConfigInvalid.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfigInvalid
}

// UnsupportedOperationError signals a programming misuse rather than bad input.
// It is raised with panic, never returned.
type UnsupportedOperationError struct {
	Op     string
	Reason string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// Is matches ErrUnsupported.
func (e *UnsupportedOperationError) Is(target error) bool {
	return target == ErrUnsupported
}

// ParameterError reports a value rejected by a named parameter.
type ParameterError struct {
	Name string
	Raw  string
	Err  error
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("invalid value %q for parameter %s: %v", e.Raw, e.Name, e.Err)
}

func (e *ParameterError) Unwrap() error {
	return e.Err
}

// Is matches ErrConfigInvalid.
func (e *ParameterError) Is(target error) bool {
	return target == ErrConfigInvalid
}
