package mission

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"

	"github.com/roman-kulish/drone-mission/internal/drone"
	"github.com/roman-kulish/drone-mission/internal/vision"
)

// AlignmentSample is one evaluation of the home marker against the alignment thresholds
type AlignmentSample struct {
	MarkerID           int         `json:"markerId"`
	Translation        vision.Vec3 `json:"translation"`
	Rotation           vision.Vec3 `json:"rotation"`
	DistanceFromCenter float64     `json:"distanceFromCenter"` // pixels
	MarkerArea         float64     `json:"markerArea"`         // pixels
	Aligned            bool        `json:"aligned"`
}

type sampleObserver func(ctx context.Context, round int, s AlignmentSample)

// LandingAligner centers the vehicle over the home marker with a bounded
// visual servoing loop and then lands it.
type LandingAligner struct {
	link     drone.Link
	engine   vision.Engine
	markerID int
	config   AlignmentConfig

	sleep   sleepFunc
	observe sampleObserver
	logger  *slog.Logger
}

// NewLandingAligner creates a LandingAligner for the given home marker
func NewLandingAligner(link drone.Link, engine vision.Engine, markerID int, config AlignmentConfig, logger *slog.Logger) *LandingAligner {
	if logger == nil {
		logger = discardLogger()
	}

	return &LandingAligner{
		link:     link,
		engine:   engine,
		markerID: markerID,
		config:   config,
		sleep:    sleepContext,
		logger:   logger,
	}
}

// Evaluate checks the frame for the home marker. The sample is nil when the
// marker is not visible. The vehicle is aligned when the marker centroid is
// within the center tolerance and the marker covers more than the minimum
// share of the frame, so a small, far away marker is never aligned.
func (a *LandingAligner) Evaluate(frame image.Image) (bool, *AlignmentSample, error) {
	markers, err := a.engine.DetectMarkers(frame)
	if err != nil {
		return false, nil, fmt.Errorf("detecting markers: %w", err)
	}

	marker, ok := vision.Find(markers, a.markerID)
	if !ok {
		return false, nil, nil
	}

	pose, err := a.engine.EstimatePose(marker.Corners)
	if err != nil {
		return false, nil, fmt.Errorf("estimating marker pose: %w", err)
	}

	sample := AlignmentSample{
		MarkerID:           marker.ID,
		Translation:        pose.Translation,
		Rotation:           pose.Rotation,
		DistanceFromCenter: marker.Corners.Center().Distance(vision.FrameCenter(frame)),
		MarkerArea:         marker.Corners.Area(),
	}
	sample.Aligned = a.aligned(sample.DistanceFromCenter, sample.MarkerArea, vision.FrameArea(frame))

	return sample.Aligned, &sample, nil
}

func (a *LandingAligner) aligned(distance, area, frameArea float64) bool {
	return distance < a.config.CenterTolerance && area > frameArea*a.config.MinAreaRatio
}

// Align runs at most MaxRounds alignment rounds and returns the number of
// rounds used. Landing must not be attempted unless Align returns nil.
func (a *LandingAligner) Align(ctx context.Context) (int, error) {
	for round := 1; round <= a.config.MaxRounds; round++ {
		if round > 1 {
			if err := a.sleep(ctx, a.config.RoundDelay); err != nil {
				return round - 1, err
			}
		}

		frame := a.link.Frame()
		if frame == nil {
			return round, fmt.Errorf("%w: alignment round %d", ErrVideoUnavailable, round)
		}

		aligned, sample, err := a.Evaluate(frame)
		if err != nil {
			return round, fmt.Errorf("alignment round %d: %w", round, err)
		}

		if sample == nil {
			a.logger.Warn("home marker not visible", slog.Int("round", round))
			continue
		}

		if a.observe != nil {
			a.observe(ctx, round, *sample)
		}

		if aligned {
			a.logger.Info("aligned with home marker",
				slog.Int("round", round),
				slog.Float64("distance", sample.DistanceFromCenter),
				slog.Float64("area", sample.MarkerArea))
			return round, nil
		}

		for _, cmd := range a.corrections(sample.Translation) {
			if err = a.link.Send(ctx, cmd); err != nil {
				return round, fmt.Errorf("%w: correction '%s': %w", ErrCommandRejected, cmd, err)
			}
			a.logger.Debug("correction issued", slog.Int("round", round), slog.String("command", cmd.String()))
		}
	}

	return a.config.MaxRounds, fmt.Errorf("%w after %d rounds", ErrAlignmentTimeout, a.config.MaxRounds)
}

// corrections returns fixed size moves towards the marker on every axis
// where the offset exceeds the correction trigger
func (a *LandingAligner) corrections(t vision.Vec3) []drone.Command {
	var cmds []drone.Command

	if math.Abs(t.X) > a.config.CorrectionTrigger {
		dir := drone.DirectionLeft
		if t.X > 0 {
			dir = drone.DirectionRight
		}
		cmds = append(cmds, drone.Move(dir, a.config.CorrectionStep))
	}

	if math.Abs(t.Y) > a.config.CorrectionTrigger {
		dir := drone.DirectionBack
		if t.Y > 0 {
			dir = drone.DirectionForward
		}
		cmds = append(cmds, drone.Move(dir, a.config.CorrectionStep))
	}

	return cmds
}

// Land issues the final land command
func (a *LandingAligner) Land(ctx context.Context) error {
	if err := a.link.Send(ctx, drone.Land()); err != nil {
		return fmt.Errorf("%w: %w", ErrLandingCommandFailed, err)
	}
	return nil
}
