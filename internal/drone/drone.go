package drone

import (
	"context"
	"fmt"
	"image"
	"math"
)

const (
	VerbTakeoff Verb = "takeoff"
	VerbLand    Verb = "land"

	DirectionForward Direction = "forward"
	DirectionBack    Direction = "back"
	DirectionLeft    Direction = "left"
	DirectionRight   Direction = "right"
	DirectionUp      Direction = "up"
	DirectionDown    Direction = "down"
)

var validDirections = map[Direction]struct{}{
	DirectionForward: {},
	DirectionBack:    {},
	DirectionLeft:    {},
	DirectionRight:   {},
	DirectionUp:      {},
	DirectionDown:    {},
}

// Verb is the primitive command word understood by the vehicle
type Verb string

func (v Verb) String() string {
	return string(v)
}

// Direction is a motion direction relative to the vehicle body
type Direction string

func (d Direction) String() string {
	return string(d)
}

// Valid reports whether d is one of the six supported directions
func (d Direction) Valid() bool {
	_, ok := validDirections[d]
	return ok
}

// Link is the command, telemetry and video channel to a single vehicle.
// Implementations must be safe for concurrent use: status queries read
// battery while a mission is sending commands.
type Link interface {
	// Send issues a primitive command and blocks until the vehicle
	// acknowledges it. A nil error is a positive acknowledgement.
	Send(ctx context.Context, cmd Command) error

	// Battery returns the remaining battery charge in percent.
	Battery(ctx context.Context) (int, error)

	// Frame returns the most recent video frame, or nil when none is available.
	Frame() image.Image

	StartVideo(ctx context.Context) error
	StopVideo() error
}

// Command is a single primitive vehicle command, e.g. "takeoff" or "forward 120"
type Command struct {
	Verb  Verb
	Value int // centimeters for motion verbs, unused otherwise
}

// Takeoff returns the takeoff command
func Takeoff() Command {
	return Command{Verb: VerbTakeoff}
}

// Land returns the land command
func Land() Command {
	return Command{Verb: VerbLand}
}

// Move returns a motion command in direction d by cm centimeters
func Move(d Direction, cm int) Command {
	return Command{Verb: Verb(d), Value: cm}
}

// MoveMeters returns a motion command with the distance quantized to whole centimeters
func MoveMeters(d Direction, meters float64) Command {
	return Move(d, Centimeters(meters))
}

// IsMotion reports whether the command moves the vehicle in one of the six directions
func (c Command) IsMotion() bool {
	return Direction(c.Verb).Valid()
}

func (c Command) String() string {
	if c.IsMotion() {
		return fmt.Sprintf("%s %d", c.Verb, c.Value)
	}
	return string(c.Verb)
}

// Centimeters converts meters to the nearest whole centimeter
func Centimeters(meters float64) int {
	return int(math.Round(meters * 100))
}
