package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/drone-mission/internal/archive"
	"github.com/roman-kulish/drone-mission/internal/drone/sim"
	"github.com/roman-kulish/drone-mission/internal/events"
	"github.com/roman-kulish/drone-mission/internal/location"
	"github.com/roman-kulish/drone-mission/internal/mission"
	"github.com/roman-kulish/drone-mission/internal/storage"
)

// Run flies a single mission to the location against the simulated vehicle
// and writes the terminal mission record to out as JSON
func Run(ctx context.Context, config *Config, locationID string, out io.Writer, logger *slog.Logger) (err error) {
	locations, err := location.Load(config.LocationsFile)
	if err != nil {
		return fmt.Errorf("failed to load locations: %w", err)
	}

	store, err := createStorage(&config.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	defer closeWithError(store, &err)

	options := []func(*mission.Controller){
		mission.WithLogger(logger),
		mission.WithRecorder(store),
	}

	if config.Archive.Enabled {
		var a *archive.Archive
		if a, err = createArchive(&config.Archive, logger); err != nil {
			return fmt.Errorf("failed to create archive: %w", err)
		}
		options = append(options, mission.WithArchiver(a))
	}

	if config.Messaging.Enabled {
		var publisher *events.Publisher
		if publisher, err = createPublisher(config, logger); err != nil {
			return fmt.Errorf("failed to connect to the broker: %w", err)
		}
		defer closeWithError(publisher, &err)

		options = append(options, mission.WithNotifier(publisher))
	}

	world := sim.NewWorld(config.SimulatorConfig(), sim.WithLogger(logger.With(slog.String("component", "simulator"))))

	missionConfig := config.MissionConfig()
	controller, err := mission.NewController(world, world, locations, missionConfig, options...)
	if err != nil {
		return err
	}

	logger.Info("starting video stream", slog.Duration("warmup", missionConfig.VideoWarmup))
	defer closeWithError(controller, &err)
	if err = controller.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}

	// the mission timeout is enforced here, the controller only observes cancellation
	missionCtx, cancel := context.WithTimeout(ctx, missionConfig.Timeout)
	defer cancel()

	m, execErr := controller.Execute(missionCtx, locationID)
	if m.ID != "" {
		if err = writeJSON(out, m); err != nil {
			return fmt.Errorf("failed to write mission: %w", err)
		}
	}
	return execErr
}

// History writes all stored missions to out, oldest first
func History(ctx context.Context, config *Config, out io.Writer) (err error) {
	store, err := createStorage(&config.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	defer closeWithError(store, &err)

	missions, err := store.Missions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list missions: %w", err)
	}

	if len(missions) == 0 {
		_, err = fmt.Fprintln(out, "no missions recorded")
		return
	}

	now := time.Now()
	for _, m := range missions {
		line := fmt.Sprintf("%s  %-16s %-12s started %-16s images %-3d rounds %d",
			m.ID,
			m.LocationID,
			m.Status,
			humanize.Time(m.StartTime),
			m.ImagesCaptured,
			m.AlignmentRounds,
		)
		if m.CompletionTime != nil {
			line += fmt.Sprintf("  took %s", m.Duration(now).Round(time.Second))
		}
		if m.Error != "" {
			line += "  error: " + m.Error
		}

		if _, err = fmt.Fprintln(out, line); err != nil {
			return
		}
	}

	return nil
}

func createStorage(config *StorageConfig) (*storage.SqliteStore, error) {
	dir := filepath.Dir(config.Database)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory '%s': %w", dir, err)
	}
	return storage.NewSqliteStore(config.Database), nil
}

func createArchive(config *ArchiveConfig, logger *slog.Logger) (*archive.Archive, error) {
	format, err := archive.ParseImageFormat(config.Format)
	if err != nil {
		return nil, err
	}

	options := []func(*archive.Archive){archive.WithLogger(logger)}

	if config.Annotate {
		annotator, err := archive.NewAnnotator()
		if err != nil {
			return nil, fmt.Errorf("creating annotator: %w", err)
		}
		options = append(options, archive.WithAnnotations(annotator))
	}

	return archive.New(config.Directory, format, options...)
}

func createPublisher(config *Config, logger *slog.Logger) (*events.Publisher, error) {
	client, err := events.Connect(config.EventsConfig())
	if err != nil {
		return nil, err
	}

	options := []func(*events.Publisher){events.WithLogger(logger)}
	if config.Messaging.PublishTimeout > 0 {
		options = append(options, events.WithPublishTimeout(time.Duration(config.Messaging.PublishTimeout)))
	}

	return events.NewPublisher(client, config.Messaging.Topic, options...), nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}
