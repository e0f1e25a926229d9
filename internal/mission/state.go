package mission

import (
	"fmt"
	"time"
)

// State is the mission controller state
type State int

const (
	StateIdle State = iota
	StatePreflight
	StateTakeoff
	StatePathToLocation
	StateCapturing
	StateReturning
	StateAligning
	StateLanding
	StateCompleted
	StateFailed
)

var stateNames = [...]string{
	StateIdle:           "idle",
	StatePreflight:      "preflight",
	StateTakeoff:        "takeoff_sequence",
	StatePathToLocation: "path_to_location",
	StateCapturing:      "capturing",
	StateReturning:      "returning",
	StateAligning:       "aligning",
	StateLanding:        "landing",
	StateCompleted:      "completed",
	StateFailed:         "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Exclusive reports whether a mission is in progress while the controller is in state s
func (s State) Exclusive() bool {
	return s > StateIdle && s < StateCompleted
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseState parses the textual form of a State
func ParseState(s string) (State, error) {
	for i, name := range stateNames {
		if name == s {
			return State(i), nil
		}
	}
	return StateIdle, fmt.Errorf("unknown state '%s'", s)
}

// Status is the lifecycle status of a Mission record
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition is possible from s
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Mission is a single mission execution record
type Mission struct {
	ID              string     `json:"missionId"`
	LocationID      string     `json:"locationId"`
	Status          Status     `json:"status"`
	State           State      `json:"state"`
	StartTime       time.Time  `json:"startTime"`
	CompletionTime  *time.Time `json:"completionTime,omitempty"`
	ImagesCaptured  int        `json:"imagesCaptured"`
	AlignmentRounds int        `json:"alignmentRounds"`
	Error           string     `json:"errorMessage,omitempty"`
}

func newMission(id, locationID string) *Mission {
	return &Mission{
		ID:         id,
		LocationID: locationID,
		Status:     StatusPending,
		State:      StateIdle,
	}
}

// transition moves the mission strictly along pending -> in_progress -> completed|failed
func (m *Mission) transition(to Status, now time.Time) error {
	switch {
	case m.Status == StatusPending && to == StatusInProgress:
		m.StartTime = now
	case m.Status == StatusInProgress && to == StatusCompleted:
		m.CompletionTime = &now
	case m.Status == StatusInProgress && to == StatusFailed:
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.Status, to)
	}

	m.Status = to
	return nil
}

// Duration returns how long the mission ran, or has been running as of now
func (m *Mission) Duration(now time.Time) time.Duration {
	if m.StartTime.IsZero() {
		return 0
	}
	if m.CompletionTime != nil {
		return m.CompletionTime.Sub(m.StartTime)
	}
	return now.Sub(m.StartTime)
}
