package mission

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/roman-kulish/drone-mission/internal/drone"
	"github.com/roman-kulish/drone-mission/internal/location"
)

// CaptureManager samples frames from the video feed at the capture points of a location
type CaptureManager struct {
	link     drone.Link
	path     *PathExecutor
	interval time.Duration
	sleep    sleepFunc
	logger   *slog.Logger
}

// NewCaptureManager creates a CaptureManager sampling one frame every interval
func NewCaptureManager(link drone.Link, path *PathExecutor, interval time.Duration, logger *slog.Logger) *CaptureManager {
	if logger == nil {
		logger = discardLogger()
	}

	return &CaptureManager{
		link:     link,
		path:     path,
		interval: interval,
		sleep:    sleepContext,
		logger:   logger,
	}
}

// Capture visits the points in order and returns a fresh buffer of frames,
// ordered by point and then by sample. Unavailable frames are skipped and
// never retried, so a low yield is not an error. Frames captured before a
// failed repositioning are returned along with the error.
func (c *CaptureManager) Capture(ctx context.Context, points []location.CapturePoint) ([]image.Image, error) {
	var frames []image.Image

	for i, p := range points {
		if p.Position != nil {
			if err := c.path.Run(ctx, []location.MovementCommand{*p.Position}); err != nil {
				return frames, fmt.Errorf("repositioning to capture point %d: %w", i, err)
			}
		}

		var skipped int
		for n := 0; n < p.FrameCount; n++ {
			if frame := c.link.Frame(); frame != nil {
				frames = append(frames, frame)
			} else {
				skipped++
			}

			if err := c.sleep(ctx, c.interval); err != nil {
				return frames, fmt.Errorf("sampling capture point %d: %w", i, err)
			}
		}

		if skipped > 0 {
			c.logger.Warn("frames unavailable at capture point",
				slog.Int("point", i),
				slog.Int("skipped", skipped),
				slog.Int("requested", p.FrameCount))
		}
	}

	return frames, nil
}
