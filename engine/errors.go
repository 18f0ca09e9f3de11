package engine

import (
	"errors"
	"fmt"
)

// Lifecycle and policy errors.
var (
	// ErrInvalidOption indicates an option value outside its valid range.
	ErrInvalidOption = errors.New("engine: invalid option")

	// ErrNotRunning indicates a tick on an engine that was never started.
	ErrNotRunning = errors.New("engine: not running")

	// ErrDestroyed indicates use of an engine after Destroy.
	ErrDestroyed = errors.New("engine: destroyed")

	// ErrEscalated indicates the engine destroyed itself after too many
	// consecutive failed ticks.
	ErrEscalated = errors.New("engine: too many consecutive failed ticks")
)

// OptionError describes one rejected option.
type OptionError struct {
	Field  string
	Value  any
	Reason string
}

func (e *OptionError) Error() string {
	return fmt.Sprintf("engine: option %s=%v: %s", e.Field, e.Value, e.Reason)
}

func (e *OptionError) Unwrap() error {
	return ErrInvalidOption
}

// ConfigurationError reports a malformed dataset or option set. It is
// returned synchronously and is never retried.
type ConfigurationError struct {
	Wrapped error
}

func (e *ConfigurationError) Error() string {
	return "configuration: " + e.Wrapped.Error()
}

func (e *ConfigurationError) Unwrap() error {
	return e.Wrapped
}

// ResourceError reports a failed host allocation.
type ResourceError struct {
	Resource string
	Wrapped  error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("allocating %s: %v", e.Resource, e.Wrapped)
}

func (e *ResourceError) Unwrap() error {
	return e.Wrapped
}

// TransientRenderError reports a skipped tick. The engine state is left as
// it was before the tick.
type TransientRenderError struct {
	Frame   uint64
	Pass    string
	Wrapped error
}

func (e *TransientRenderError) Error() string {
	return fmt.Sprintf("frame %d: %s pass: %v", e.Frame, e.Pass, e.Wrapped)
}

func (e *TransientRenderError) Unwrap() error {
	return e.Wrapped
}
