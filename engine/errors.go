package engine

import (
	"fmt"
	"runtime"

	"github.com/perfgo/e2erun/driver"
)

// ConfigError is fatal: the process exits before any test runs.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "invalid configuration: " + e.Reason
}

// SessionError reports a remote session that could not be opened.
type SessionError struct {
	Browser driver.Kind
	Err     error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("failed to open %s session: %v", e.Browser, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// AttemptError is the failure outcome of one attempt.
type AttemptError struct {
	Test    string
	Attempt int
	Err     error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("%s (attempt %d): %v", e.Test, e.Attempt, e.Err)
}

func (e *AttemptError) Unwrap() error { return e.Err }

// PanicError is a panic raised by a test body, with the frames of the
// panicking goroutine.
type PanicError struct {
	Value  any
	Frames []runtime.Frame
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap exposes panics raised with an error value.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
