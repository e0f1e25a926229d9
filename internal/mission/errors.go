package mission

import (
	"errors"
	"fmt"
)

var (
	// ErrConflict is returned when a mission is requested while another one is in progress
	ErrConflict = errors.New("another mission is already in progress")

	// ErrNotFound is returned for a location id missing from the location table
	ErrNotFound = errors.New("unknown location")

	// ErrInsufficientBattery is returned by preflight when the battery is below the floor
	ErrInsufficientBattery = errors.New("battery too low for mission")

	// ErrPreflightVision is returned by preflight when the home marker is not visible
	ErrPreflightVision = errors.New("cannot detect home marker before takeoff")

	// ErrCommandRejected is returned when the vehicle rejects or does not acknowledge a command
	ErrCommandRejected = errors.New("command rejected")

	// ErrVideoUnavailable is returned when no frame is available at a step that requires one
	ErrVideoUnavailable = errors.New("no video frame available")

	// ErrAlignmentTimeout is returned when the vehicle could not align with the home marker
	ErrAlignmentTimeout = errors.New("failed to align with landing marker")

	// ErrLandingCommandFailed is returned when the final land command is rejected
	ErrLandingCommandFailed = errors.New("landing command failed")

	// ErrInvalidTransition is returned when a mission status would skip or reverse
	ErrInvalidTransition = errors.New("invalid mission status transition")

	errAborted = errors.New("mission aborted")
)

// ExecutionError is returned for every mission that was accepted and then failed.
// It carries the terminal mission record and unwraps to the original cause.
type ExecutionError struct {
	Mission Mission
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("mission %s failed: %s", e.Mission.ID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
