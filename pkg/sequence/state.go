// Package sequence runs the cell's pick-and-place programs on a robot.
package sequence

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle of one run.
type State int

const (
	Idle State = iota
	WaitingForOperator
	Running
	Done
	Stopped
	Faulted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case WaitingForOperator:
		return "waiting for operator"
	case Running:
		return "running"
	case Done:
		return "done"
	case Stopped:
		return "stopped"
	case Faulted:
		return "faulted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == Done || s == Stopped || s == Faulted
}

// Selection names the product program a run executes.
type Selection string

const (
	None      Selection = ""
	Buckles   Selection = "buckles"
	Armrests  Selection = "armrests"
	Seatbelts Selection = "seatbelts"
	All       Selection = "all"
)

// Selections returns the built-in selections in operator menu order.
func Selections() []Selection {
	return []Selection{Buckles, Armrests, Seatbelts, All}
}

// ParseSelection accepts a selection name or its 1-based menu number.
func ParseSelection(s string) (Selection, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, sel := range Selections() {
		if s == string(sel) || s == fmt.Sprint(i+1) {
			return sel, nil
		}
	}
	return None, fmt.Errorf("unknown sequence %q", s)
}

var (
	// ErrStopped is returned once a stop was requested for the run.
	ErrStopped = errors.New("sequence: stop requested")

	// ErrSafetyDisabled is returned when the enable switch is off.
	ErrSafetyDisabled = errors.New("sequence: safety switch not enabled")

	// ErrSensorFault is returned when force or pose could not be read during a sensor move.
	ErrSensorFault = errors.New("sequence: sensor fault")

	// ErrBusy is returned when an operation needs the robot while a run is active.
	ErrBusy = errors.New("sequence: a run is already active")

	// ErrUnknownWaypoint is returned when a sequence names a waypoint that is not configured.
	ErrUnknownWaypoint = errors.New("sequence: unknown waypoint")
)

// Update reports progress of a run.
type Update struct {
	RunID     uuid.UUID
	Selection Selection
	State     State
	Step      string
	Index     int
	Total     int
	Err       error
	At        time.Time
}

// Result summarizes a finished run.
type Result struct {
	RunID     uuid.UUID
	Selection Selection
	State     State
	Steps     int
	Err       error
	Started   time.Time
	Finished  time.Time
}

// Duration returns how long the run took.
func (r Result) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}
