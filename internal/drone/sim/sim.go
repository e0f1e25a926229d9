package sim

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/roman-kulish/drone-mission/internal/drone"
	"github.com/roman-kulish/drone-mission/internal/vision"
)

const (
	FrameWidth  = 960
	FrameHeight = 720

	// FocalLength in pixels, roughly an 82.6 degree horizontal field of view
	FocalLength = 921.0

	MinMove = 20  // cm
	MaxMove = 500 // cm

	cameraHeight = 0.1 // m above ground when landed
)

var (
	ErrNotFlying       = errors.New("not flying")
	ErrAlreadyFlying   = errors.New("already flying")
	ErrOutOfRange      = errors.New("out of range")
	ErrUnknownCommand  = errors.New("unknown command")
	ErrBatteryDepleted = errors.New("battery depleted")
)

var (
	groundColor = color.RGBA{R: 0x40, G: 0x40, B: 0x40, A: 0xff}
	markerColor = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
)

// Config describes the simulated vehicle and its home marker
type Config struct {
	Battery         float64 // initial charge, percent
	DrainPerMeter   float64 // percent per meter flown
	TakeoffAltitude float64 // m
	MarkerID        int
	MarkerSize      float64 // m
	TakeoffDriftX   float64 // lateral drift during takeoff, m, positive to the right
	TakeoffDriftY   float64 // longitudinal drift during takeoff, m, positive forward
	CommandLatency  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Battery:         100,
		DrainPerMeter:   1,
		TakeoffAltitude: 0.5,
		MarkerID:        1,
		MarkerSize:      0.5,
	}
}

func WithLogger(logger *slog.Logger) func(*World) {
	return func(w *World) {
		w.logger = logger
	}
}

// World is a simulated vehicle that starts on top of its home marker. It
// implements both drone.Link and vision.Engine: frames render the marker as
// seen by a downward facing camera, and pose estimation inverts that projection.
type World struct {
	config Config

	mu        sync.RWMutex
	x, y, alt float64
	battery   float64
	flying    bool
	streaming bool

	logger *slog.Logger
}

var (
	_ drone.Link    = (*World)(nil)
	_ vision.Engine = (*World)(nil)
)

func NewWorld(config Config, options ...func(*World)) *World {
	w := World{
		config:  config,
		battery: config.Battery,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&w)
	}

	return &w
}

// Position returns the vehicle position relative to the home marker, in meters
func (w *World) Position() (x, y, alt float64) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.x, w.y, w.alt
}

func (w *World) IsFlying() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.flying
}

func (w *World) Send(ctx context.Context, cmd drone.Command) error {
	if w.config.CommandLatency > 0 {
		timer := time.NewTimer(w.config.CommandLatency)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.apply(cmd); err != nil {
		w.logger.Debug("command rejected", slog.String("command", cmd.String()), slog.Any("error", err))
		return fmt.Errorf("'%s': %w", cmd, err)
	}

	w.logger.Debug("command",
		slog.String("command", cmd.String()),
		slog.Group("position",
			slog.Float64("x", w.x),
			slog.Float64("y", w.y),
			slog.Float64("alt", w.alt),
		),
		slog.Float64("battery", w.battery),
	)
	return nil
}

func (w *World) apply(cmd drone.Command) error {
	switch cmd.Verb {
	case drone.VerbTakeoff:
		if w.flying {
			return ErrAlreadyFlying
		}
		if w.battery <= 0 {
			return ErrBatteryDepleted
		}
		w.flying = true
		w.alt = w.config.TakeoffAltitude
		w.x += w.config.TakeoffDriftX
		w.y += w.config.TakeoffDriftY
		w.drain(w.config.TakeoffAltitude)
		return nil

	case drone.VerbLand:
		if !w.flying {
			return ErrNotFlying
		}
		w.flying = false
		w.alt = 0
		return nil
	}

	if !cmd.IsMotion() {
		return ErrUnknownCommand
	}
	if !w.flying {
		return ErrNotFlying
	}
	if cmd.Value < MinMove || cmd.Value > MaxMove {
		return fmt.Errorf("%w: %d cm", ErrOutOfRange, cmd.Value)
	}

	m := float64(cmd.Value) / 100

	switch drone.Direction(cmd.Verb) {
	case drone.DirectionForward:
		w.y += m
	case drone.DirectionBack:
		w.y -= m
	case drone.DirectionRight:
		w.x += m
	case drone.DirectionLeft:
		w.x -= m
	case drone.DirectionUp:
		w.alt += m
	case drone.DirectionDown:
		if w.alt-m < 0 {
			return fmt.Errorf("%w: %d cm below ground", ErrOutOfRange, cmd.Value)
		}
		w.alt -= m
	}

	w.drain(m)
	return nil
}

func (w *World) drain(meters float64) {
	w.battery = math.Max(0, w.battery-meters*w.config.DrainPerMeter)
}

func (w *World) Battery(context.Context) (int, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return int(math.Round(w.battery)), nil
}

func (w *World) StartVideo(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.streaming = true
	return nil
}

func (w *World) StopVideo() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.streaming = false
	return nil
}

// Frame renders the ground with the home marker as a white square
func (w *World) Frame() image.Image {
	w.mu.RLock()
	streaming := w.streaming
	corners, visible := w.project()
	w.mu.RUnlock()

	if !streaming {
		return nil
	}

	img := image.NewRGBA(image.Rect(0, 0, FrameWidth, FrameHeight))
	draw.Draw(img, img.Bounds(), image.NewUniform(groundColor), image.Point{}, draw.Src)

	if visible {
		r := image.Rect(
			int(corners[0].X), int(corners[0].Y),
			int(corners[2].X), int(corners[2].Y),
		).Intersect(img.Bounds())
		draw.Draw(img, r, image.NewUniform(markerColor), image.Point{}, draw.Src)
	}

	return img
}

// project returns the image corners of the home marker, top-left first and
// clockwise. Image x grows to the right of the vehicle, image y grows backwards.
func (w *World) project() (vision.Corners, bool) {
	h := w.alt + cameraHeight
	cx, cy := float64(FrameWidth)/2, float64(FrameHeight)/2

	u := cx - FocalLength*w.x/h
	v := cy + FocalLength*w.y/h
	half := FocalLength * w.config.MarkerSize / h / 2

	if u < 0 || u >= FrameWidth || v < 0 || v >= FrameHeight {
		return vision.Corners{}, false
	}

	return vision.Corners{
		{X: u - half, Y: v - half},
		{X: u + half, Y: v - half},
		{X: u + half, Y: v + half},
		{X: u - half, Y: v + half},
	}, true
}

// DetectMarkers reports the home marker when its center is in view
func (w *World) DetectMarkers(frame image.Image) ([]vision.Marker, error) {
	if frame == nil {
		return nil, errors.New("nil frame")
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	corners, visible := w.project()
	if !visible {
		return nil, nil
	}
	return []vision.Marker{{ID: w.config.MarkerID, Corners: corners}}, nil
}

// EstimatePose recovers the marker translation relative to the vehicle from
// the projected marker size and offset
func (w *World) EstimatePose(corners vision.Corners) (vision.Pose, error) {
	side := corners[0].Distance(corners[1])
	if side <= 0 {
		return vision.Pose{}, errors.New("degenerate marker corners")
	}

	h := FocalLength * w.config.MarkerSize / side
	center := corners.Center()

	return vision.Pose{
		Translation: vision.Vec3{
			X: (center.X - float64(FrameWidth)/2) * h / FocalLength,
			Y: -(center.Y - float64(FrameHeight)/2) * h / FocalLength,
			Z: h,
		},
	}, nil
}
