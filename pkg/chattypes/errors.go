package chattypes

import (
	"errors"
	"fmt"
)

// ErrorKind classifies errors surfaced to the user.
type ErrorKind string

// Error kinds rendered at the UI boundary.
const (
	KindConfiguration   ErrorKind = "configuration_error"
	KindExternalService ErrorKind = "external_service_error"
	KindValidation      ErrorKind = "validation_error"
	KindBusy            ErrorKind = "busy"
)

// ConfigurationError reports a missing or invalid credential, provider or model setting.
type ConfigurationError struct {
	Message string
	Err     error
}

// NewConfigurationError builds a ConfigurationError from a format string.
func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Kind returns KindConfiguration.
func (e *ConfigurationError) Kind() ErrorKind { return KindConfiguration }

// ExternalServiceError reports a failure talking to the completion API:
// network errors, rate limits, non-2xx responses or unusable payloads.
type ExternalServiceError struct {
	Provider   string
	StatusCode int // 0 when unknown
	Message    string
	Err        error
}

// NewExternalServiceError wraps err as a failure of the named provider.
func NewExternalServiceError(provider, message string, err error) *ExternalServiceError {
	return &ExternalServiceError{Provider: provider, Message: message, Err: err}
}

func (e *ExternalServiceError) Error() string {
	msg := e.Message
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// Kind returns KindExternalService.
func (e *ExternalServiceError) Kind() ErrorKind { return KindExternalService }

// ValidationError reports bad user input such as an empty message.
type ValidationError struct {
	Message string
}

// NewValidationError builds a ValidationError from a format string.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string { return e.Message }

// Kind returns KindValidation.
func (e *ValidationError) Kind() ErrorKind { return KindValidation }

// BusyError is returned when a session already has a submission in flight.
type BusyError struct {
	SessionID string
}

func (e *BusyError) Error() string {
	return "a message is already being processed for this session"
}

// Kind returns KindBusy.
func (e *BusyError) Kind() ErrorKind { return KindBusy }

// KindOf returns the kind of a classified error anywhere in err's chain,
// defaulting to KindExternalService for unclassified failures.
func KindOf(err error) ErrorKind {
	var kinded interface{ Kind() ErrorKind }
	if errors.As(err, &kinded) {
		return kinded.Kind()
	}
	return KindExternalService
}
