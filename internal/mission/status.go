package mission

import (
	"context"
	"image"
	"slices"
)

// Snapshot is a read-only view of the controller and vehicle state
type Snapshot struct {
	BatteryLevel      int      `json:"batteryLevel"` // -1 when the vehicle cannot report it
	MissionInProgress bool     `json:"missionInProgress"`
	CurrentMission    *Mission `json:"currentMission,omitempty"`
	VideoStreaming    bool     `json:"videoStreaming"`
	IsFlying          bool     `json:"isFlying"`
	State             State    `json:"state"`
}

// Status returns the current snapshot. It never waits for a running mission
// and never mutates controller state.
func (c *Controller) Status(ctx context.Context) Snapshot {
	battery, err := c.link.Battery(ctx)
	if err != nil {
		battery = -1
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		BatteryLevel:      battery,
		MissionInProgress: c.state.Exclusive(),
		VideoStreaming:    c.streaming,
		IsFlying:          c.flying,
		State:             c.state,
	}
	if c.current != nil {
		m := *c.current
		s.CurrentMission = &m
	}

	return s
}

// InProgress reports whether a mission is currently running
func (c *Controller) InProgress() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Exclusive()
}

// Current returns a copy of the most recent mission record
func (c *Controller) Current() Mission {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return Mission{}
	}
	return *c.current
}

// Images returns the frames captured by the most recent capture phase
func (c *Controller) Images() []image.Image {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.images)
}
