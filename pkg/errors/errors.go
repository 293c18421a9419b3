package errors

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidGrade         = errors.New("invalid grade value")
	ErrInvalidStatus        = errors.New("invalid attendance status")
	ErrInvalidPeriod        = errors.New("invalid attestation period")
	ErrSessionNotFound      = errors.New("journal session not found")
	ErrGatewayUnavailable   = errors.New("journal gateway unavailable")
	ErrAuthenticationFailed = errors.New("authentication failed")
)

type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s' with value '%v': %s",
		e.Field, e.Value, e.Message)
}

type RetryableError struct {
	Err     error
	Message string
}

func (e RetryableError) Error() string {
	return fmt.Sprintf("retryable error: %s - %s", e.Message, e.Err.Error())
}

func (e RetryableError) Unwrap() error {
	return e.Err
}

func NewRetryableError(err error, message string) error {
	return RetryableError{
		Err:     err,
		Message: message,
	}
}

// StatusError is returned for gateway responses outside the 2xx range.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: gateway returned status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: gateway returned status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// IsRetryable reports whether err is worth another attempt of the same request.
func IsRetryable(err error) bool {
	var re RetryableError
	return errors.As(err, &re)
}

// IsClientError reports whether err carries a 4xx gateway status.
func IsClientError(err error) bool {
	var se StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 400 && se.StatusCode < 500
	}
	return false
}
