package sim

import (
	"context"
	"errors"
	"image/color"
	"math"
	"testing"
	"time"

	"github.com/roman-kulish/drone-mission/internal/drone"
)

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestWorld_Send(t *testing.T) {
	ctx := context.Background()

	config := DefaultConfig()
	config.DrainPerMeter = 10
	w := NewWorld(config)

	if err := w.Send(ctx, drone.Move(drone.DirectionForward, 100)); !errors.Is(err, ErrNotFlying) {
		t.Errorf("Expected ErrNotFlying, got %v", err)
	}
	if err := w.Send(ctx, drone.Land()); !errors.Is(err, ErrNotFlying) {
		t.Errorf("Expected ErrNotFlying, got %v", err)
	}

	if err := w.Send(ctx, drone.Takeoff()); err != nil {
		t.Fatalf("Failed to take off: %v", err)
	}
	if !w.IsFlying() {
		t.Fatalf("Expected the vehicle to be flying")
	}
	if err := w.Send(ctx, drone.Takeoff()); !errors.Is(err, ErrAlreadyFlying) {
		t.Errorf("Expected ErrAlreadyFlying, got %v", err)
	}

	if err := w.Send(ctx, drone.Move(drone.DirectionForward, 120)); err != nil {
		t.Fatalf("Failed to move: %v", err)
	}
	if err := w.Send(ctx, drone.Move(drone.DirectionLeft, 30)); err != nil {
		t.Fatalf("Failed to move: %v", err)
	}

	x, y, alt := w.Position()
	if !near(x, -0.3) || !near(y, 1.2) || !near(alt, 0.5) {
		t.Errorf("Unexpected position %g, %g, %g", x, y, alt)
	}

	for _, cmd := range []drone.Command{
		drone.Move(drone.DirectionForward, 10),
		drone.Move(drone.DirectionBack, 501),
		drone.Move(drone.DirectionDown, 100),
	} {
		if err := w.Send(ctx, cmd); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("%s: expected ErrOutOfRange, got %v", cmd, err)
		}
	}

	if err := w.Send(ctx, drone.Command{Verb: "flip"}); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("Expected ErrUnknownCommand, got %v", err)
	}

	// 0.5 m takeoff, 1.2 m forward and 0.3 m left at 10% per meter
	battery, err := w.Battery(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if battery != 80 {
		t.Errorf("Expected 80%% battery, got %d%%", battery)
	}

	if err = w.Send(ctx, drone.Land()); err != nil {
		t.Fatalf("Failed to land: %v", err)
	}
	if _, _, alt = w.Position(); w.IsFlying() || alt != 0 {
		t.Errorf("Expected the vehicle on the ground, altitude %g", alt)
	}
}

func TestWorld_BatteryDepleted(t *testing.T) {
	config := DefaultConfig()
	config.Battery = 0
	w := NewWorld(config)

	if err := w.Send(context.Background(), drone.Takeoff()); !errors.Is(err, ErrBatteryDepleted) {
		t.Errorf("Expected ErrBatteryDepleted, got %v", err)
	}
}

func TestWorld_CommandLatency(t *testing.T) {
	config := DefaultConfig()
	config.CommandLatency = time.Minute
	w := NewWorld(config)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := w.Send(ctx, drone.Takeoff()); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if w.IsFlying() {
		t.Errorf("Expected the cancelled command not to be applied")
	}
}

func TestWorld_Frame(t *testing.T) {
	ctx := context.Background()
	w := NewWorld(DefaultConfig())

	if w.Frame() != nil {
		t.Fatalf("Expected no frame before the video stream is started")
	}

	if err := w.StartVideo(ctx); err != nil {
		t.Fatalf("Failed to start video: %v", err)
	}

	frame := w.Frame()
	if frame == nil {
		t.Fatalf("Expected a frame")
	}
	if b := frame.Bounds(); b.Dx() != FrameWidth || b.Dy() != FrameHeight {
		t.Errorf("Unexpected frame bounds %v", b)
	}

	// the marker fills the view while the vehicle sits on it
	if c := color.RGBAModel.Convert(frame.At(FrameWidth/2, FrameHeight/2)); c != markerColor {
		t.Errorf("Expected the marker in the frame center, got %v", c)
	}

	if err := w.Send(ctx, drone.Takeoff()); err != nil {
		t.Fatalf("Failed to take off: %v", err)
	}
	if err := w.Send(ctx, drone.Move(drone.DirectionForward, 500)); err != nil {
		t.Fatalf("Failed to move: %v", err)
	}
	if c := color.RGBAModel.Convert(w.Frame().At(FrameWidth/2, FrameHeight/2)); c != groundColor {
		t.Errorf("Expected ground away from the marker, got %v", c)
	}

	if err := w.StopVideo(); err != nil {
		t.Fatalf("Failed to stop video: %v", err)
	}
	if w.Frame() != nil {
		t.Errorf("Expected no frame after the video stream is stopped")
	}
}

func TestWorld_Vision(t *testing.T) {
	ctx := context.Background()
	w := NewWorld(DefaultConfig())

	if _, err := w.DetectMarkers(nil); err == nil {
		t.Errorf("Expected an error for a nil frame")
	}

	if err := w.StartVideo(ctx); err != nil {
		t.Fatalf("Failed to start video: %v", err)
	}

	for _, cmd := range []drone.Command{
		drone.Takeoff(),
		drone.Move(drone.DirectionUp, 100),
		drone.Move(drone.DirectionRight, 50),
		drone.Move(drone.DirectionBack, 20),
	} {
		if err := w.Send(ctx, cmd); err != nil {
			t.Fatalf("%s: %v", cmd, err)
		}
	}

	markers, err := w.DetectMarkers(w.Frame())
	if err != nil {
		t.Fatalf("Failed to detect markers: %v", err)
	}
	if len(markers) != 1 || markers[0].ID != 1 {
		t.Fatalf("Expected the home marker, got %+v", markers)
	}

	pose, err := w.EstimatePose(markers[0].Corners)
	if err != nil {
		t.Fatalf("Failed to estimate pose: %v", err)
	}

	// marker is to the left of and ahead of the vehicle
	tr := pose.Translation
	if !near(tr.X, -0.5) || !near(tr.Y, 0.2) || !near(tr.Z, 1.6) {
		t.Errorf("Unexpected translation %+v", tr)
	}

	if err = w.Send(ctx, drone.Move(drone.DirectionRight, 500)); err != nil {
		t.Fatalf("Failed to move: %v", err)
	}
	if markers, err = w.DetectMarkers(w.Frame()); err != nil || len(markers) != 0 {
		t.Errorf("Expected no markers out of view, got %+v (%v)", markers, err)
	}
}
