package mission

import (
	"context"
	"image"
	"time"
)

// Recorder persists mission records and alignment samples
type Recorder interface {
	RecordMission(ctx context.Context, m Mission) error
	RecordAlignment(ctx context.Context, missionID string, round int, s AlignmentSample) error
}

// Archiver stores the frames captured during a mission
type Archiver interface {
	Archive(ctx context.Context, m Mission, frames []image.Image) error
}

// Notifier receives an Event on every controller state change
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// Event describes a mission state change
type Event struct {
	MissionID  string    `json:"missionId"`
	LocationID string    `json:"locationId"`
	State      State     `json:"state"`
	Status     Status    `json:"status"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func newEvent(m Mission, now time.Time) Event {
	return Event{
		MissionID:  m.ID,
		LocationID: m.LocationID,
		State:      m.State,
		Status:     m.Status,
		Error:      m.Error,
		Timestamp:  now.UTC(),
	}
}
