// Package qicode implements the experiment description model: typed
// variables and expressions, pulses, cells, and the command graph that
// the compiler lowers to sequencer programs.
package qicode

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes program construction errors.
type ErrorCode string

const (
	// ErrCodeTypeMismatch indicates conflicting type implications for an
	// expression.
	ErrCodeTypeMismatch ErrorCode = "TYPE_MISMATCH"

	// ErrCodeTypeUnknown indicates a variable whose type could not be
	// inferred from any use.
	ErrCodeTypeUnknown ErrorCode = "TYPE_UNKNOWN"

	// ErrCodeIllegalType indicates an expression used where its type is
	// forbidden.
	ErrCodeIllegalType ErrorCode = "ILLEGAL_TYPE"

	// ErrCodeInvalidRange indicates a loop range that cannot execute on
	// the hardware.
	ErrCodeInvalidRange ErrorCode = "INVALID_RANGE"

	// ErrCodeInvalidPulse indicates an unsupported pulse parameter
	// combination.
	ErrCodeInvalidPulse ErrorCode = "INVALID_PULSE"

	// ErrCodeInvalidRecording indicates a recording at a position whose
	// execution count cannot be determined statically.
	ErrCodeInvalidRecording ErrorCode = "INVALID_RECORDING"
)

// ProgramError is an error detected while building or checking a program.
type ProgramError struct {
	Code    ErrorCode
	Subject string
	Message string
}

func (e *ProgramError) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Subject, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsTypeError returns true for type mismatch, unknown type, and illegal
// type errors. Uses errors.As to handle wrapped errors.
func IsTypeError(err error) bool {
	var pe *ProgramError
	if errors.As(err, &pe) {
		switch pe.Code {
		case ErrCodeTypeMismatch, ErrCodeTypeUnknown, ErrCodeIllegalType:
			return true
		}
	}
	return false
}

// IsRangeError returns true for invalid loop range errors.
func IsRangeError(err error) bool {
	var pe *ProgramError
	return errors.As(err, &pe) && pe.Code == ErrCodeInvalidRange
}

// IsPulseError returns true for invalid pulse errors.
func IsPulseError(err error) bool {
	var pe *ProgramError
	return errors.As(err, &pe) && pe.Code == ErrCodeInvalidPulse
}
