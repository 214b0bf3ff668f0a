package platform

import (
	"errors"
	"fmt"
)

// StatusCode mirrors the status codes the device transport reports.
type StatusCode string

const (
	StatusOK              StatusCode = "OK"
	StatusNotFound        StatusCode = "NOT_FOUND"
	StatusInvalidArgument StatusCode = "INVALID_ARGUMENT"
	StatusUnimplemented   StatusCode = "UNIMPLEMENTED"
	StatusUnavailable     StatusCode = "UNAVAILABLE"
	StatusInternal        StatusCode = "INTERNAL"
	StatusDeadline        StatusCode = "DEADLINE_EXCEEDED"
)

// StatusError is a failed device call.
type StatusError struct {
	Code    StatusCode
	Op      string
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, e.Message)
}

// Retryable reports whether a call failing with this code may succeed
// on a later attempt. Missing entities, bad arguments and unimplemented
// calls never do.
func (e *StatusError) Retryable() bool {
	switch e.Code {
	case StatusNotFound, StatusInvalidArgument, StatusUnimplemented:
		return false
	}
	return true
}

// Code extracts the status code of err, or INTERNAL for plain errors.
func Code(err error) StatusCode {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return StatusInternal
}

// IsNotFound reports whether err is a NOT_FOUND status.
func IsNotFound(err error) bool { return Code(err) == StatusNotFound }
