package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies run failures
type ErrorKind string

const (
	KindCompile        ErrorKind = "CompileError"
	KindDependencyLoad ErrorKind = "DependencyLoadError"
	KindRuntime        ErrorKind = "RuntimeError"
	KindCancelled      ErrorKind = "Cancelled"
	KindDeserialize    ErrorKind = "DeserializeError"
)

// RunError is the error payload delivered for a failed run
type RunError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Value   string    `json:"value,omitempty"` // thrown JS value, stringified
	Stack   string    `json:"stack,omitempty"`
	cause   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying Go error, if any
func (e *RunError) Unwrap() error {
	return e.cause
}

// Is matches any RunError of the same kind
func (e *RunError) Is(target error) bool {
	t, ok := target.(*RunError)
	return ok && t.Message == "" && t.Kind == e.Kind
}

func newRunError(kind ErrorKind, cause error, format string, args ...interface{}) *RunError {
	return &RunError{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// NewCompileError reports invalid source
func NewCompileError(format string, args ...interface{}) *RunError {
	return newRunError(KindCompile, nil, format, args...)
}

// NewDependencyLoadError reports a dependency that could not be loaded
func NewDependencyLoadError(cause error, format string, args ...interface{}) *RunError {
	return newRunError(KindDependencyLoad, cause, format, args...)
}

// NewRuntimeError reports an exception thrown by user code or a harness failure
func NewRuntimeError(format string, args ...interface{}) *RunError {
	return newRunError(KindRuntime, nil, format, args...)
}

// NewCancelled reports operator-requested termination
func NewCancelled(format string, args ...interface{}) *RunError {
	return newRunError(KindCancelled, nil, format, args...)
}

// NewDeserializeError reports a malformed shared configuration
func NewDeserializeError(cause error) *RunError {
	return newRunError(KindDeserialize, cause, "malformed configuration: %v", cause)
}

// Kind sentinels for errors.Is
var (
	ErrCompile        = &RunError{Kind: KindCompile}
	ErrDependencyLoad = &RunError{Kind: KindDependencyLoad}
	ErrRuntime        = &RunError{Kind: KindRuntime}
	ErrCancelled      = &RunError{Kind: KindCancelled}
	ErrDeserialize    = &RunError{Kind: KindDeserialize}
)

// AsRunError converts any error to a RunError, classifying unknown errors as runtime failures
func AsRunError(err error) *RunError {
	if err == nil {
		return nil
	}
	var re *RunError
	if errors.As(err, &re) {
		return re
	}
	return newRunError(KindRuntime, err, "%v", err)
}
