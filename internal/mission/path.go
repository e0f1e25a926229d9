package mission

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roman-kulish/drone-mission/internal/drone"
	"github.com/roman-kulish/drone-mission/internal/location"
)

type sleepFunc func(ctx context.Context, d time.Duration) error

// sleepContext waits for d or until ctx is done, whichever comes first
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// PathExecutor issues an ordered sequence of movement commands, waiting
// for the vehicle to settle after each of them.
type PathExecutor struct {
	link        drone.Link
	settleDelay time.Duration
	sleep       sleepFunc
	logger      *slog.Logger
}

// NewPathExecutor creates a PathExecutor that waits settleDelay after every
// command which does not carry its own delay
func NewPathExecutor(link drone.Link, settleDelay time.Duration, logger *slog.Logger) *PathExecutor {
	if logger == nil {
		logger = discardLogger()
	}

	return &PathExecutor{
		link:        link,
		settleDelay: settleDelay,
		sleep:       sleepContext,
		logger:      logger,
	}
}

// Run sends the commands in order and stops at the first one that is not
// acknowledged. Remaining commands are never issued.
func (p *PathExecutor) Run(ctx context.Context, commands []location.MovementCommand) error {
	for i, m := range commands {
		cmd := m.Command()
		if err := p.link.Send(ctx, cmd); err != nil {
			return fmt.Errorf("%w: path command %d '%s': %w", ErrCommandRejected, i, cmd, err)
		}

		delay := p.settleDelay
		if m.Delay != nil {
			delay = *m.Delay
		}

		p.logger.Debug("path command acknowledged",
			slog.String("command", cmd.String()),
			slog.Duration("settle", delay))

		if err := p.sleep(ctx, delay); err != nil {
			return fmt.Errorf("settling after '%s': %w", cmd, err)
		}
	}

	return nil
}
