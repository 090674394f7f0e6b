package core

import (
	"errors"
	"fmt"
)

// ErrorType represents the categories of batch failures
type ErrorType int

const (
	// ErrorConfig is an invalid batch size or inconsistent buffer lengths
	ErrorConfig ErrorType = iota
	// ErrorInvalidNonce is a nonce buffer that does not match the batch
	ErrorInvalidNonce
	// ErrorContextInit is a lane context that could not be built
	ErrorContextInit
	// ErrorComputeFault is a runtime fault inside a stage
	ErrorComputeFault
)

func (t ErrorType) String() string {
	switch t {
	case ErrorConfig:
		return "config"
	case ErrorInvalidNonce:
		return "invalid_nonce"
	case ErrorContextInit:
		return "context_init"
	case ErrorComputeFault:
		return "compute_fault"
	default:
		return "unknown"
	}
}

// ParseErrorType is the inverse of ErrorType.String
func ParseErrorType(s string) (ErrorType, bool) {
	for _, t := range []ErrorType{ErrorConfig, ErrorInvalidNonce, ErrorContextInit, ErrorComputeFault} {
		if t.String() == s {
			return t, true
		}
	}
	return 0, false
}

// NoLane marks errors that are not tied to a single lane
const NoLane = -1

// HashError represents errors that can occur during a batch computation
type HashError struct {
	Type    ErrorType
	Op      string
	Lane    int
	Message string
	Err     error
}

func (e *HashError) Error() string {
	msg := fmt.Sprintf("%s: %s error: %s", e.Op, e.Type, e.Message)
	if e.Lane != NoLane {
		msg = fmt.Sprintf("%s: %s error in lane %d: %s", e.Op, e.Type, e.Lane, e.Message)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *HashError) Unwrap() error {
	return e.Err
}

// NewConfigError reports a rejected batch shape
func NewConfigError(op, format string, args ...interface{}) error {
	return &HashError{Type: ErrorConfig, Op: op, Lane: NoLane, Message: fmt.Sprintf(format, args...)}
}

// NewInvalidNonceError reports a malformed nonce buffer
func NewInvalidNonceError(op string, got, want int) error {
	return &HashError{
		Type:    ErrorInvalidNonce,
		Op:      op,
		Lane:    NoLane,
		Message: fmt.Sprintf("nonce buffer is %d bytes, expected %d", got, want),
	}
}

// NewContextInitError reports a context that failed to build for lane
func NewContextInitError(op string, lane int, err error) error {
	return &HashError{Type: ErrorContextInit, Op: op, Lane: lane, Message: "context construction failed", Err: err}
}

// NewComputeFault reports a stage failure in lane
func NewComputeFault(op string, lane int, err error) error {
	return &HashError{Type: ErrorComputeFault, Op: op, Lane: lane, Message: "lane execution failed", Err: err}
}

// ErrorTypeOf returns the type of the first HashError in err's chain
func ErrorTypeOf(err error) (ErrorType, bool) {
	var he *HashError
	if errors.As(err, &he) {
		return he.Type, true
	}
	return 0, false
}

// IsConfigError reports config-class failures, including malformed nonces
func IsConfigError(err error) bool {
	t, ok := ErrorTypeOf(err)
	return ok && (t == ErrorConfig || t == ErrorInvalidNonce)
}

// IsInvalidNonceError reports malformed nonce buffers
func IsInvalidNonceError(err error) bool {
	t, ok := ErrorTypeOf(err)
	return ok && t == ErrorInvalidNonce
}

// IsContextInitError reports context construction failures
func IsContextInitError(err error) bool {
	t, ok := ErrorTypeOf(err)
	return ok && t == ErrorContextInit
}

// IsComputeFault reports runtime faults
func IsComputeFault(err error) bool {
	t, ok := ErrorTypeOf(err)
	return ok && t == ErrorComputeFault
}
