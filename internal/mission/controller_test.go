package mission

import (
	"context"
	"errors"
	"image"
	"slices"
	"sync"
	"testing"

	"github.com/roman-kulish/drone-mission/internal/drone"
	"github.com/roman-kulish/drone-mission/internal/location"
	"github.com/roman-kulish/drone-mission/internal/vision"
)

func newTestController(t *testing.T, link *fakeLink, engine *fakeVision, options ...func(*Controller)) *Controller {
	t.Helper()

	table, err := location.NewTable(testLocation())
	if err != nil {
		t.Fatalf("Failed to create location table: %v", err)
	}

	c, err := NewController(link, engine, table, DefaultConfig(), options...)
	if err != nil {
		t.Fatalf("Failed to create controller: %v", err)
	}
	c.setSleep(noSleep)
	return c
}

func alignedVision() *fakeVision {
	return newFakeVision(markerAt(DefaultHomeMarkerID, 0, 0.2))
}

func TestController_Execute(t *testing.T) {
	link := newFakeLink()
	recorder := &fakeRecorder{}
	notifier := &fakeNotifier{}
	archiver := &fakeArchiver{}

	c := newTestController(t, link, alignedVision(),
		WithRecorder(recorder), WithNotifier(notifier), WithArchiver(archiver))

	m, err := c.Execute(context.Background(), "warehouse")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if m.Status != StatusCompleted || m.State != StateCompleted {
		t.Errorf("Expected completed mission, got status %s state %s", m.Status, m.State)
	}
	if m.ID == "" || m.LocationID != "warehouse" {
		t.Errorf("Unexpected mission identity: %+v", m)
	}
	if m.StartTime.IsZero() || m.CompletionTime == nil || m.CompletionTime.Before(m.StartTime) {
		t.Errorf("Expected start and completion times, got %v / %v", m.StartTime, m.CompletionTime)
	}
	if m.ImagesCaptured != 3 || len(c.Images()) != 3 {
		t.Errorf("Expected 3 images captured, got %d (buffer %d)", m.ImagesCaptured, len(c.Images()))
	}
	if m.AlignmentRounds != 1 || m.Error != "" {
		t.Errorf("Unexpected alignment outcome: %+v", m)
	}

	want := []string{
		"takeoff", "up 100",
		"forward 300", "left 100",
		"up 50",
		"right 100", "back 300",
		"land",
	}
	if got := link.commands(); !slices.Equal(got, want) {
		t.Errorf("Expected commands\n%v\ngot\n%v", want, got)
	}

	status := c.Status(context.Background())
	if status.MissionInProgress || status.IsFlying || status.State != StateCompleted {
		t.Errorf("Unexpected status after completion: %+v", status)
	}
	if status.CurrentMission == nil || status.CurrentMission.ID != m.ID {
		t.Errorf("Expected the completed mission in the status")
	}

	var states []State
	for _, e := range notifier.events {
		states = append(states, e.State)
	}
	wantStates := []State{
		StatePreflight, StateTakeoff, StatePathToLocation, StateCapturing,
		StateReturning, StateAligning, StateLanding, StateCompleted,
	}
	if !slices.Equal(states, wantStates) {
		t.Errorf("Expected state events %v, got %v", wantStates, states)
	}

	if len(recorder.missions) != 2 {
		t.Fatalf("Expected the mission to be recorded on start and finish, got %d", len(recorder.missions))
	}
	if recorder.missions[0].Status != StatusInProgress || recorder.missions[1].Status != StatusCompleted {
		t.Errorf("Unexpected recorded statuses: %s, %s", recorder.missions[0].Status, recorder.missions[1].Status)
	}
	if len(recorder.samples) != 1 || recorder.samples[0].missionID != m.ID || !recorder.samples[0].sample.Aligned {
		t.Errorf("Expected one aligned sample recorded, got %+v", recorder.samples)
	}

	if archiver.frames != 3 || archiver.mission.ID != m.ID {
		t.Errorf("Expected 3 frames archived for the mission, got %d", archiver.frames)
	}
}

func TestController_InsufficientBattery(t *testing.T) {
	link := newFakeLink()
	link.battery = 15

	c := newTestController(t, link, alignedVision())

	m, err := c.Execute(context.Background(), "warehouse")
	if !errors.Is(err, ErrInsufficientBattery) {
		t.Fatalf("Expected ErrInsufficientBattery, got %v", err)
	}

	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("Expected *ExecutionError, got %T", err)
	}
	if execErr.Mission.ID != m.ID || m.Status != StatusFailed || m.Error == "" {
		t.Errorf("Expected failed mission with error message, got %+v", m)
	}
	if m.CompletionTime != nil {
		t.Errorf("Expected no completion time on failure")
	}

	if got := link.commands(); len(got) != 0 {
		t.Errorf("Expected no commands below the battery floor, got %v", got)
	}
	if c.InProgress() {
		t.Errorf("Expected mission in progress to be cleared")
	}
}

func TestController_NotFound(t *testing.T) {
	link := newFakeLink()
	c := newTestController(t, link, alignedVision())

	m, err := c.Execute(context.Background(), "nowhere")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		t.Errorf("Expected a plain error, no mission was started")
	}
	if m.ID != "" || c.Current().ID != "" {
		t.Errorf("Expected no mission to be created")
	}

	status := c.Status(context.Background())
	if status.MissionInProgress || status.CurrentMission != nil || status.State != StateIdle {
		t.Errorf("Expected untouched state, got %+v", status)
	}
}

func TestController_PreflightVisionFailure(t *testing.T) {
	link := newFakeLink()
	c := newTestController(t, link, newFakeVision(markerAt(9, 0, 0.2)))

	_, err := c.Execute(context.Background(), "warehouse")
	if !errors.Is(err, ErrPreflightVision) {
		t.Fatalf("Expected ErrPreflightVision, got %v", err)
	}
	if len(link.commands()) != 0 {
		t.Errorf("Expected no takeoff without the home marker, got %v", link.commands())
	}
}

func TestController_PreflightNoFrame(t *testing.T) {
	link := newFakeLink()
	link.frame = nil

	_, err := newTestController(t, link, alignedVision()).Execute(context.Background(), "warehouse")
	if !errors.Is(err, ErrVideoUnavailable) {
		t.Fatalf("Expected ErrVideoUnavailable, got %v", err)
	}
}

func TestController_TakeoffRejected(t *testing.T) {
	for _, rejected := range []string{"takeoff", "up 100"} {
		t.Run(rejected, func(t *testing.T) {
			link := newFakeLink()
			link.reject[rejected] = errNoAck

			c := newTestController(t, link, alignedVision())

			m, err := c.Execute(context.Background(), "warehouse")
			if !errors.Is(err, ErrCommandRejected) || !errors.Is(err, errNoAck) {
				t.Fatalf("Expected ErrCommandRejected, got %v", err)
			}
			if m.Status != StatusFailed || m.State != StateFailed {
				t.Errorf("Expected failed mission, got %s / %s", m.Status, m.State)
			}
			if link.count(drone.Verb(drone.DirectionForward)) != 0 {
				t.Errorf("Expected the path to be skipped, got %v", link.commands())
			}
		})
	}
}

func TestController_AlignmentTimeout(t *testing.T) {
	link := newFakeLink()
	engine := newFakeVision(markerAt(DefaultHomeMarkerID, 120, 0.2))
	engine.pose = vision.Pose{Translation: vision.Vec3{X: 0.3}}

	c := newTestController(t, link, engine)

	m, err := c.Execute(context.Background(), "warehouse")
	if !errors.Is(err, ErrAlignmentTimeout) {
		t.Fatalf("Expected ErrAlignmentTimeout, got %v", err)
	}

	commands := link.commands()
	tail := commands[len(commands)-3:]
	if !slices.Equal(tail, []string{"right 20", "right 20", "right 20"}) {
		t.Errorf("Expected 3 corrections after the return path, got %v", commands)
	}
	if link.count(drone.VerbLand) != 0 {
		t.Errorf("Expected no land command without alignment")
	}
	if m.AlignmentRounds != DefaultMaxRounds {
		t.Errorf("Expected %d alignment rounds, got %d", DefaultMaxRounds, m.AlignmentRounds)
	}

	status := c.Status(context.Background())
	if !status.IsFlying || status.MissionInProgress {
		t.Errorf("Expected a hovering vehicle and no mission in progress, got %+v", status)
	}
}

func TestController_LandingCommandFailed(t *testing.T) {
	link := newFakeLink()
	link.reject["land"] = errNoAck

	_, err := newTestController(t, link, alignedVision()).Execute(context.Background(), "warehouse")
	if !errors.Is(err, ErrLandingCommandFailed) {
		t.Fatalf("Expected ErrLandingCommandFailed, got %v", err)
	}
}

func TestController_ZeroImagesStillCompletes(t *testing.T) {
	link := newFakeLink()
	engine := alignedVision()

	c := newTestController(t, link, engine)

	// preflight frame, three unavailable capture samples, then alignment frames
	link.frames = []image.Image{newFrame(), nil, nil, nil}

	m, err := c.Execute(context.Background(), "warehouse")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if m.ImagesCaptured != 0 || m.Status != StatusCompleted {
		t.Errorf("Expected a completed mission with zero images, got %+v", m)
	}
}

func TestController_Cancelled(t *testing.T) {
	link := newFakeLink()
	c := newTestController(t, link, alignedVision())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m, err := c.Execute(ctx, "warehouse")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if m.Status != StatusFailed || c.InProgress() {
		t.Errorf("Expected the mission to fail and release the controller, got %+v", m)
	}
	if len(link.commands()) != 0 {
		t.Errorf("Expected no commands, got %v", link.commands())
	}
}

func TestController_SingleFlight(t *testing.T) {
	const n = 8

	link := newFakeLink()
	link.gate = make(chan struct{})
	link.entered = make(chan struct{}, 1)

	c := newTestController(t, link, alignedVision())

	results := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Execute(context.Background(), "warehouse")
			results <- err
		}()
	}

	// all but the running mission must be rejected while it blocks on takeoff
	for i := 0; i < n-1; i++ {
		if err := <-results; !errors.Is(err, ErrConflict) {
			t.Errorf("Expected ErrConflict, got %v", err)
		}
	}

	<-link.entered
	status := c.Status(context.Background())
	if !status.MissionInProgress || status.State != StateTakeoff {
		t.Errorf("Expected the running mission in takeoff, got %+v", status)
	}

	close(link.gate)
	wg.Wait()

	if err := <-results; err != nil {
		t.Errorf("Expected the running mission to complete, got %v", err)
	}
	if link.count(drone.VerbTakeoff) != 1 {
		t.Errorf("Expected exactly one takeoff, got %d", link.count(drone.VerbTakeoff))
	}

	if _, err := c.Execute(context.Background(), "warehouse"); err != nil {
		t.Errorf("Expected a new mission after completion, got %v", err)
	}
}

func TestController_InitializeAndClose(t *testing.T) {
	link := newFakeLink()
	c := newTestController(t, link, alignedVision())

	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !c.Status(context.Background()).VideoStreaming {
		t.Errorf("Expected video streaming after initialize")
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if c.Status(context.Background()).VideoStreaming || link.streaming {
		t.Errorf("Expected video stopped after close")
	}

	link.videoErr = errors.New("no stream")
	if err := c.Initialize(context.Background()); !errors.Is(err, ErrVideoUnavailable) {
		t.Errorf("Expected ErrVideoUnavailable, got %v", err)
	}
}

func TestController_InitializeCancelledDuringWarmup(t *testing.T) {
	link := newFakeLink()
	c := newTestController(t, link, alignedVision())
	c.setSleep(sleepContext)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.Initialize(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if c.Status(context.Background()).VideoStreaming || link.streaming {
		t.Errorf("Expected video stopped after an interrupted warm-up")
	}
}

func TestController_StatusBatteryUnavailable(t *testing.T) {
	link := newFakeLink()
	link.batteryErr = errors.New("telemetry lost")

	if level := newTestController(t, link, alignedVision()).Status(context.Background()).BatteryLevel; level != -1 {
		t.Errorf("Expected battery level -1, got %d", level)
	}
}

func TestNewController_InvalidConfig(t *testing.T) {
	config := DefaultConfig()
	config.Alignment.MaxRounds = 0

	table, _ := location.NewTable()
	if _, err := NewController(newFakeLink(), newFakeVision(), table, config); err == nil {
		t.Errorf("Expected invalid configuration to be rejected")
	}
}
