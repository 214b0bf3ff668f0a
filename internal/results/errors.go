package results

import (
	"errors"
	"fmt"
)

// ErrorCode classifies result processing failures.
type ErrorCode string

const (
	// ErrCodePartialData indicates the device returned fewer shots than
	// the run requested.
	ErrCodePartialData ErrorCode = "PARTIAL_DATA"

	// ErrCodeUnknownMode indicates a data collection mode without a
	// handler.
	ErrCodeUnknownMode ErrorCode = "UNKNOWN_MODE"

	// ErrCodeMissingData indicates a buffer the handler needs was not
	// returned by the device.
	ErrCodeMissingData ErrorCode = "MISSING_DATA"

	// ErrCodeBadRegistration indicates a handler registered under a
	// built-in mode value.
	ErrCodeBadRegistration ErrorCode = "BAD_REGISTRATION"
)

// Error is a failure while turning device buffers into results. Box
// names the result box involved, when there is one.
type Error struct {
	Code    ErrorCode
	Box     string
	Message string
}

func (e *Error) Error() string {
	if e.Box != "" {
		return fmt.Sprintf("%s: box %q: %s", e.Code, e.Box, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsPartialData reports whether err is a partial data rejection.
func IsPartialData(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Code == ErrCodePartialData
}
