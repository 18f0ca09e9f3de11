package gpu

import (
	"errors"
	"fmt"
)

var (
	// ErrContextLost is returned by every operation while the device
	// context is lost.
	ErrContextLost = errors.New("gpu: context lost")
	// ErrOutOfMemory is returned when an allocation exceeds the host budget.
	ErrOutOfMemory = errors.New("gpu: out of memory")
	// ErrFeedbackLoop is returned when a pass samples its own render target.
	ErrFeedbackLoop = errors.New("gpu: pass reads its render target")
	// ErrUnknownResource is returned for released or foreign resources.
	ErrUnknownResource = errors.New("gpu: unknown resource")
	// ErrInvalidArgument is returned for malformed requests.
	ErrInvalidArgument = errors.New("gpu: invalid argument")
)

// UniformError reports a missing or mistyped uniform value.
type UniformError struct {
	Program string
	Name    string
	Want    string
	Got     any
}

func (e *UniformError) Error() string {
	if e.Got == nil {
		return fmt.Sprintf("gpu: program %s: missing uniform %q (%s)", e.Program, e.Name, e.Want)
	}
	return fmt.Sprintf("gpu: program %s: uniform %q is %T, want %s", e.Program, e.Name, e.Got, e.Want)
}

func (e *UniformError) Unwrap() error {
	return ErrInvalidArgument
}
