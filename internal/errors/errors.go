// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrNoData             = errors.New("no data")
	ErrMarketClosed       = errors.New("market is closed")
	ErrSourceUnavailable  = errors.New("metrics source unavailable")
	ErrBroadcasterStopped = errors.New("broadcaster is stopped")
	ErrUnknownInstrument  = errors.New("unknown instrument")
	ErrTimeout            = errors.New("operation timed out")
	ErrConfigInvalid      = errors.New("invalid configuration")
)

// ValidationError represents a metric that is outside its allowed domain.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// SourceError represents an error from the upstream metrics source.
type SourceError struct {
	Source  string
	Symbol  string
	Message string
	Err     error
}

func (e *SourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("source error [%s] %s: %s: %v", e.Source, e.Symbol, e.Message, e.Err)
	}
	return fmt.Sprintf("source error [%s] %s: %s", e.Source, e.Symbol, e.Message)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// NewSourceError creates a new SourceError.
func NewSourceError(source, symbol, message string, err error) *SourceError {
	return &SourceError{
		Source:  source,
		Symbol:  symbol,
		Message: message,
		Err:     err,
	}
}

// SupervisorError represents a failure escalated by the health supervisor.
type SupervisorError struct {
	Symbol   string
	Restarts int
	Message  string
}

func (e *SupervisorError) Error() string {
	return fmt.Sprintf("supervisor error [%s]: %s (restarts: %d)", e.Symbol, e.Message, e.Restarts)
}

// NewSupervisorError creates a new SupervisorError.
func NewSupervisorError(symbol string, restarts int, message string) *SupervisorError {
	return &SupervisorError{
		Symbol:   symbol,
		Restarts: restarts,
		Message:  message,
	}
}

// StoreError represents a persistence error.
type StoreError struct {
	Operation string
	Err       error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error [%s]: %v", e.Operation, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError.
func NewStoreError(operation string, err error) *StoreError {
	return &StoreError{Operation: operation, Err: err}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
