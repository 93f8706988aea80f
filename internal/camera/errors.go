package camera

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned by Session.SubmitTarget when the hardware is not
	// ready for a new target. Callers retry on the next frame.
	ErrBusy = errors.New("camera: hardware busy")

	// ErrAlreadyOpen is returned by Session.Open on an open session.
	ErrAlreadyOpen = errors.New("camera: session already open")

	// ErrClosed is returned when a closed pipeline is used.
	ErrClosed = errors.New("camera: pipeline closed")
)

// EnvironmentError is a fatal startup failure: memory, alignment or the
// hardware session could not be set up.
type EnvironmentError struct {
	Op  string
	Err error
}

func (e *EnvironmentError) Error() string {
	return fmt.Sprintf("camera %s: %v", e.Op, e.Err)
}

func (e *EnvironmentError) Unwrap() error {
	return e.Err
}

func envErr(op string, err error) error {
	return &EnvironmentError{Op: op, Err: err}
}
