package location

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/drone-mission/internal/drone"
)

// DefaultFrameCount is the number of frames sampled at a capture point that does not set one
const DefaultFrameCount = 1

// MovementCommand is a single metric movement along a path
type MovementCommand struct {
	Direction drone.Direction
	Distance  float64        // meters
	Delay     *time.Duration // settle delay after the command, nil means executor default
}

// Command converts the movement into a primitive vehicle command
func (m MovementCommand) Command() drone.Command {
	return drone.MoveMeters(m.Direction, m.Distance)
}

func (m MovementCommand) String() string {
	return m.Command().String()
}

// CapturePoint is a place along the mission where frames are sampled
type CapturePoint struct {
	Position   *MovementCommand // optional repositioning before sampling
	FrameCount int
}

// Location is a predefined mission destination
type Location struct {
	ID            string
	Path          []MovementCommand
	CapturePoints []CapturePoint
	ReturnPath    []MovementCommand
}

// Table is an immutable mapping of location id to Location
type Table struct {
	locations map[string]Location
}

// NewTable builds a table from the given locations, validating each of them
func NewTable(locations ...Location) (*Table, error) {
	t := Table{locations: make(map[string]Location, len(locations))}
	for _, l := range locations {
		if l.ID == "" {
			return nil, errors.New("location id is required")
		}
		if _, ok := t.locations[l.ID]; ok {
			return nil, fmt.Errorf("duplicate location '%s'", l.ID)
		}
		if err := l.Validate(); err != nil {
			return nil, fmt.Errorf("location '%s': %w", l.ID, err)
		}
		t.locations[l.ID] = l
	}

	return &t, nil
}

// Lookup returns the location with the given id
func (t *Table) Lookup(id string) (Location, bool) {
	l, ok := t.locations[id]
	return l, ok
}

// IDs returns all location ids in lexical order
func (t *Table) IDs() []string {
	ids := make([]string, 0, len(t.locations))
	for id := range t.locations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of locations in the table
func (t *Table) Len() int {
	return len(t.locations)
}

// Validate checks the location paths and capture points
func (l Location) Validate() error {
	for i, m := range l.Path {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("path[%d]: %w", i, err)
		}
	}
	for i, p := range l.CapturePoints {
		if p.FrameCount < 0 {
			return fmt.Errorf("capturePoints[%d]: frame count must not be negative: %d", i, p.FrameCount)
		}
		if p.Position == nil {
			continue
		}
		if err := p.Position.Validate(); err != nil {
			return fmt.Errorf("capturePoints[%d].position: %w", i, err)
		}
	}
	for i, m := range l.ReturnPath {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("returnPath[%d]: %w", i, err)
		}
	}

	return nil
}

// Validate checks the direction and distance of a movement
func (m MovementCommand) Validate() error {
	if !m.Direction.Valid() {
		return fmt.Errorf("invalid direction '%s'", m.Direction)
	}
	if drone.Centimeters(m.Distance) <= 0 {
		return fmt.Errorf("distance must be at least 1 cm: %g m", m.Distance)
	}
	if m.Delay != nil && *m.Delay < 0 {
		return fmt.Errorf("delay must not be negative: %s", *m.Delay)
	}
	return nil
}

type fileMovement struct {
	Direction string   `yaml:"direction"`
	Distance  float64  `yaml:"distance"` // meters
	Delay     *float64 `yaml:"delay"`    // seconds
}

type fileCapturePoint struct {
	Position *fileMovement `yaml:"position"`
	Frames   *int          `yaml:"frames"`
}

type fileLocation struct {
	Path          []fileMovement     `yaml:"path"`
	CapturePoints []fileCapturePoint `yaml:"capturePoints"`
	ReturnPath    []fileMovement     `yaml:"returnPath"`
}

type file struct {
	Locations map[string]fileLocation `yaml:"locations"`
}

// Load reads the location table from a YAML file
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading locations file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML location table
func Parse(data []byte) (*Table, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding locations: %w", err)
	}

	locations := make([]Location, 0, len(f.Locations))
	for id, fl := range f.Locations {
		l := Location{
			ID:         id,
			Path:       toMovements(fl.Path),
			ReturnPath: toMovements(fl.ReturnPath),
		}

		for _, fp := range fl.CapturePoints {
			p := CapturePoint{FrameCount: DefaultFrameCount}
			if fp.Frames != nil {
				p.FrameCount = *fp.Frames
			}
			if fp.Position != nil {
				m := toMovement(*fp.Position)
				p.Position = &m
			}
			l.CapturePoints = append(l.CapturePoints, p)
		}

		locations = append(locations, l)
	}

	return NewTable(locations...)
}

func toMovements(in []fileMovement) []MovementCommand {
	out := make([]MovementCommand, len(in))
	for i, fm := range in {
		out[i] = toMovement(fm)
	}
	return out
}

func toMovement(fm fileMovement) MovementCommand {
	m := MovementCommand{
		Direction: drone.Direction(fm.Direction),
		Distance:  fm.Distance,
	}
	if fm.Delay != nil {
		d := time.Duration(*fm.Delay * float64(time.Second))
		m.Delay = &d
	}
	return m
}
