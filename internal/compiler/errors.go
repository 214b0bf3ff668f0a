package compiler

import (
	"errors"
	"fmt"
)

// ErrorCode classifies compile failures.
type ErrorCode string

const (
	// ErrCodeRegisterExhausted indicates the program needs more live
	// values than the sequencer has registers.
	ErrCodeRegisterExhausted ErrorCode = "REGISTER_EXHAUSTED"

	// ErrCodeCapacityExceeded indicates the program or its static data
	// region does not fit into the sequencer memory.
	ErrCodeCapacityExceeded ErrorCode = "CAPACITY_EXCEEDED"

	// ErrCodeImmediateRange indicates a constant that cannot be encoded
	// in the instruction's immediate field.
	ErrCodeImmediateRange ErrorCode = "IMMEDIATE_RANGE"

	// ErrCodeUnsupported indicates a program construct the code
	// generator cannot lower.
	ErrCodeUnsupported ErrorCode = "UNSUPPORTED_COMMAND"

	// ErrCodeUninitialized indicates a variable read before any value
	// was written to it.
	ErrCodeUninitialized ErrorCode = "UNINITIALIZED_VARIABLE"
)

// CompileError is a failure during code generation. Cell is the index
// of the sequencer the failure happened on, or -1 when it is not tied
// to one.
type CompileError struct {
	Code    ErrorCode
	Cell    int
	Message string
}

func (e *CompileError) Error() string {
	if e.Cell >= 0 {
		return fmt.Sprintf("%s: cell %d: %s", e.Code, e.Cell, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsCapacityError reports whether err is a program or static region
// overflow.
func IsCapacityError(err error) bool {
	var ce *CompileError
	return errors.As(err, &ce) && ce.Code == ErrCodeCapacityExceeded
}

// IsRegisterExhausted reports whether err is a register allocation
// failure.
func IsRegisterExhausted(err error) bool {
	var ce *CompileError
	return errors.As(err, &ce) && ce.Code == ErrCodeRegisterExhausted
}
