package errors

import (
	"errors"
	"fmt"
)

var (
	ErrModuleNotFound       = errors.New("module not found")
	ErrInvalidConfig        = errors.New("invalid configuration")
	ErrModuleExecution      = errors.New("module execution failed")
	ErrModuleTimeout        = errors.New("module timed out")
	ErrScanNotFound         = errors.New("scan not found")
	ErrInvalidTransition    = errors.New("scan already in terminal state")
	ErrDiscordNotConfigured = errors.New("discord client not configured")
)

// ValidationError is returned synchronously to the caller of StartScan.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

type ModuleError struct {
	Module string
	Err    error
}

func (e *ModuleError) Error() string {
	return fmt.Sprintf("module %s failed: %v", e.Module, e.Err)
}

func (e *ModuleError) Unwrap() error {
	return e.Err
}

func NewModuleError(module string, err error) *ModuleError {
	return &ModuleError{
		Module: module,
		Err:    err,
	}
}

// OrchestrationFault marks a failure of the orchestration itself, as opposed
// to a failure of one of the modules it runs.
type OrchestrationFault struct {
	ScanID string
	Op     string
	Err    error
}

func (e *OrchestrationFault) Error() string {
	return fmt.Sprintf("scan %s: %s: %v", e.ScanID, e.Op, e.Err)
}

func (e *OrchestrationFault) Unwrap() error {
	return e.Err
}

func NewOrchestrationFault(scanID, op string, err error) *OrchestrationFault {
	return &OrchestrationFault{
		ScanID: scanID,
		Op:     op,
		Err:    err,
	}
}

type ConfigError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error for field %s (value: %v): %s", e.Field, e.Value, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

func NewConfigError(field string, value interface{}, message string) *ConfigError {
	return &ConfigError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}
