package mission

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roman-kulish/drone-mission/internal/drone"
	"github.com/roman-kulish/drone-mission/internal/location"
	"github.com/roman-kulish/drone-mission/internal/vision"
)

// Locations resolves a location id to its paths and capture points
type Locations interface {
	Lookup(id string) (location.Location, bool)
}

// WithLogger sets the logger for the controller and its components
func WithLogger(logger *slog.Logger) func(*Controller) {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithRecorder persists missions and alignment samples through r
func WithRecorder(r Recorder) func(*Controller) {
	return func(c *Controller) {
		c.recorder = r
	}
}

// WithArchiver hands captured frames to a after every capture phase
func WithArchiver(a Archiver) func(*Controller) {
	return func(c *Controller) {
		c.archiver = a
	}
}

// WithNotifier publishes every state change through n
func WithNotifier(n Notifier) func(*Controller) {
	return func(c *Controller) {
		c.notifier = n
	}
}

// Controller runs one mission at a time: preflight, takeoff, path to the
// location, capture, return, landing alignment and land. It exclusively owns
// the active mission record and the in-progress state.
type Controller struct {
	link      drone.Link
	locations Locations
	config    Config

	path    *PathExecutor
	capture *CaptureManager
	aligner *LandingAligner

	recorder Recorder
	archiver Archiver
	notifier Notifier
	logger   *slog.Logger

	sleep sleepFunc
	now   func() time.Time
	newID func() string

	mu        sync.RWMutex
	state     State
	current   *Mission
	images    []image.Image
	flying    bool
	streaming bool
}

// NewController creates a Controller flying the vehicle behind link
func NewController(link drone.Link, engine vision.Engine, locations Locations, config Config, options ...func(*Controller)) (*Controller, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mission configuration: %w", err)
	}

	c := Controller{
		link:      link,
		locations: locations,
		config:    config,
		logger:    discardLogger(),
		sleep:     sleepContext,
		now:       time.Now,
		newID:     uuid.NewString,
		state:     StateIdle,
	}

	for _, option := range options {
		option(&c)
	}

	c.path = NewPathExecutor(link, config.SettleDelay, c.logger)
	c.capture = NewCaptureManager(link, c.path, config.CaptureInterval, c.logger)
	c.aligner = NewLandingAligner(link, engine, config.HomeMarkerID, config.Alignment, c.logger)
	c.setSleep(c.sleep)
	c.aligner.observe = c.recordAlignment

	return &c, nil
}

func (c *Controller) setSleep(fn sleepFunc) {
	c.sleep = fn
	c.path.sleep = fn
	c.capture.sleep = fn
	c.aligner.sleep = fn
}

// Initialize starts the video stream and waits for it to stabilize
func (c *Controller) Initialize(ctx context.Context) error {
	if err := c.link.StartVideo(ctx); err != nil {
		return fmt.Errorf("%w: starting video stream: %w", ErrVideoUnavailable, err)
	}

	c.mu.Lock()
	c.streaming = true
	c.mu.Unlock()

	if err := c.sleep(ctx, c.config.VideoWarmup); err != nil {
		c.mu.Lock()
		c.streaming = false
		c.mu.Unlock()

		if stopErr := c.link.StopVideo(); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("stopping video stream: %w", stopErr))
		}
		return fmt.Errorf("video warm-up: %w", err)
	}
	return nil
}

// Close stops the video stream
func (c *Controller) Close() error {
	c.mu.Lock()
	c.streaming = false
	c.mu.Unlock()

	if err := c.link.StopVideo(); err != nil {
		return fmt.Errorf("stopping video stream: %w", err)
	}
	return nil
}

// Execute flies a full mission to the location and blocks until it reaches a
// terminal state. ErrConflict and ErrNotFound are returned without creating a
// mission. Every other failure is returned as *ExecutionError together with
// the failed mission record.
func (c *Controller) Execute(ctx context.Context, locationID string) (result Mission, err error) {
	loc, err := c.acquire(locationID)
	if err != nil {
		return Mission{}, err
	}

	snapshot := c.Current()
	logger := c.logger.With(
		slog.String("missionID", snapshot.ID),
		slog.String("locationID", locationID))

	c.record(ctx, snapshot)
	logger.Info("mission started")

	runErr := errAborted
	defer func() {
		result, err = c.release(ctx, runErr)
		if err != nil {
			logger.Error(err.Error())
			return
		}
		logger.Info("mission completed",
			slog.Int("imagesCaptured", result.ImagesCaptured),
			slog.Duration("duration", result.Duration(c.now())))
	}()

	runErr = c.run(ctx, loc, logger)
	return
}

// acquire atomically checks that no mission is in progress and starts a new one
func (c *Controller) acquire(locationID string) (location.Location, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Exclusive() {
		return location.Location{}, ErrConflict
	}

	loc, ok := c.locations.Lookup(locationID)
	if !ok {
		return location.Location{}, fmt.Errorf("%w: %s", ErrNotFound, locationID)
	}

	m := newMission(c.newID(), locationID)
	if err := m.transition(StatusInProgress, c.now()); err != nil {
		return location.Location{}, err
	}

	c.state = StatePreflight
	m.State = c.state
	c.current = m
	c.images = nil

	return loc, nil
}

// release moves the mission to its terminal state and clears the in-progress state
func (c *Controller) release(ctx context.Context, runErr error) (Mission, error) {
	c.mu.Lock()
	m := c.current

	if runErr == nil {
		c.state = StateCompleted
		runErr = m.transition(StatusCompleted, c.now())
	}
	if runErr != nil {
		c.state = StateFailed
		m.Error = runErr.Error()
		_ = m.transition(StatusFailed, c.now())
	}

	m.State = c.state
	snapshot := *m
	c.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	c.record(ctx, snapshot)
	c.notify(ctx, snapshot)

	if runErr != nil {
		return snapshot, &ExecutionError{Mission: snapshot, Err: runErr}
	}
	return snapshot, nil
}

func (c *Controller) run(ctx context.Context, loc location.Location, logger *slog.Logger) error {
	steps := []struct {
		state State
		msg   string
		fn    func(context.Context, location.Location) error
	}{
		{StatePreflight, "preflight", c.preflight},
		{StateTakeoff, "takeoff", c.takeoff},
		{StatePathToLocation, "flying to location", c.flyToLocation},
		{StateCapturing, "capturing", c.captureImages},
		{StateReturning, "returning", c.flyReturn},
		{StateAligning, "aligning", c.align},
		{StateLanding, "landing", c.land},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}

		c.setState(ctx, step.state)
		logger.Debug(step.msg, slog.String("state", step.state.String()))

		if err := step.fn(ctx, loc); err != nil {
			return fmt.Errorf("%s: %w", step.msg, err)
		}
	}

	return nil
}

func (c *Controller) preflight(ctx context.Context, _ location.Location) error {
	battery, err := c.link.Battery(ctx)
	if err != nil {
		return fmt.Errorf("reading battery: %w", err)
	}
	if battery < c.config.BatteryFloor {
		return fmt.Errorf("%w: %d%% (minimum %d%%)", ErrInsufficientBattery, battery, c.config.BatteryFloor)
	}

	frame := c.link.Frame()
	if frame == nil {
		return ErrVideoUnavailable
	}

	_, sample, err := c.aligner.Evaluate(frame)
	if err != nil {
		return err
	}
	if sample == nil {
		return fmt.Errorf("%w: marker %d", ErrPreflightVision, c.config.HomeMarkerID)
	}

	return nil
}

func (c *Controller) takeoff(ctx context.Context, _ location.Location) error {
	cmd := drone.Takeoff()
	if err := c.link.Send(ctx, cmd); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCommandRejected, cmd, err)
	}
	c.setFlying(true)

	cmd = drone.MoveMeters(drone.DirectionUp, c.config.TakeoffHeight)
	if err := c.link.Send(ctx, cmd); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCommandRejected, cmd, err)
	}

	return nil
}

func (c *Controller) flyToLocation(ctx context.Context, loc location.Location) error {
	return c.path.Run(ctx, loc.Path)
}

func (c *Controller) captureImages(ctx context.Context, loc location.Location) error {
	frames, err := c.capture.Capture(ctx, loc.CapturePoints)

	c.mu.Lock()
	c.images = frames
	c.current.ImagesCaptured = len(frames)
	snapshot := *c.current
	c.mu.Unlock()

	if err != nil {
		return err
	}

	if c.archiver != nil && len(frames) > 0 {
		if aErr := c.archiver.Archive(ctx, snapshot, frames); aErr != nil {
			c.logger.Warn(fmt.Sprintf("archiving frames: %s", aErr.Error()), slog.String("missionID", snapshot.ID))
		}
	}

	return nil
}

func (c *Controller) flyReturn(ctx context.Context, loc location.Location) error {
	return c.path.Run(ctx, loc.ReturnPath)
}

func (c *Controller) align(ctx context.Context, _ location.Location) error {
	rounds, err := c.aligner.Align(ctx)

	c.mu.Lock()
	c.current.AlignmentRounds = rounds
	c.mu.Unlock()

	return err
}

func (c *Controller) land(ctx context.Context, _ location.Location) error {
	if err := c.aligner.Land(ctx); err != nil {
		return err
	}
	c.setFlying(false)
	return nil
}

func (c *Controller) setState(ctx context.Context, s State) {
	c.mu.Lock()
	c.state = s
	c.current.State = s
	snapshot := *c.current
	c.mu.Unlock()

	c.notify(ctx, snapshot)
}

func (c *Controller) setFlying(flying bool) {
	c.mu.Lock()
	c.flying = flying
	c.mu.Unlock()
}

func (c *Controller) record(ctx context.Context, m Mission) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.RecordMission(ctx, m); err != nil {
		c.logger.Warn(fmt.Sprintf("recording mission: %s", err.Error()), slog.String("missionID", m.ID))
	}
}

func (c *Controller) recordAlignment(ctx context.Context, round int, s AlignmentSample) {
	if c.recorder == nil {
		return
	}

	c.mu.RLock()
	missionID := c.current.ID
	c.mu.RUnlock()

	if err := c.recorder.RecordAlignment(ctx, missionID, round, s); err != nil {
		c.logger.Warn(fmt.Sprintf("recording alignment sample: %s", err.Error()), slog.String("missionID", missionID))
	}
}

func (c *Controller) notify(ctx context.Context, m Mission) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Notify(ctx, newEvent(m, c.now())); err != nil {
		c.logger.Warn(fmt.Sprintf("publishing mission event: %s", err.Error()), slog.String("missionID", m.ID))
	}
}
