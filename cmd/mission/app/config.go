package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/drone-mission/internal/archive"
	"github.com/roman-kulish/drone-mission/internal/drone/sim"
	"github.com/roman-kulish/drone-mission/internal/events"
	"github.com/roman-kulish/drone-mission/internal/mission"
)

const (
	defaultLocationsFile = "locations.yaml"
	defaultDatabase      = "data/missions.sqlite"
	defaultArchiveDir    = "data/frames"
	defaultTopic         = "drone/missions"
	defaultMQTTPort      = 1883
	defaultClientID      = "drone-mission"
)

// Config represents the main application configuration
type Config struct {
	Settings      Settings        `yaml:"settings"`
	Mission       MissionConfig   `yaml:"mission"`
	Alignment     AlignmentConfig `yaml:"alignment"`
	LocationsFile string          `yaml:"locationsFile"`
	Storage       StorageConfig   `yaml:"storage"`
	Archive       ArchiveConfig   `yaml:"archive"`
	Messaging     MessagingConfig `yaml:"messaging"`
	Simulator     SimulatorConfig `yaml:"simulator"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// MissionConfig represents the mission controller settings
type MissionConfig struct {
	TakeoffHeight   float64      `yaml:"takeoffHeight"`
	Timeout         TimeDuration `yaml:"timeout"`
	HomeMarkerID    int          `yaml:"homeMarkerID"`
	BatteryFloor    int          `yaml:"batteryFloor"`
	SettleDelay     TimeDuration `yaml:"settleDelay"`
	CaptureInterval TimeDuration `yaml:"captureInterval"`
	VideoWarmup     TimeDuration `yaml:"videoWarmup"`
}

// AlignmentConfig represents the landing alignment thresholds
type AlignmentConfig struct {
	CenterTolerance   float64      `yaml:"centerTolerance"`
	MinAreaRatio      float64      `yaml:"minAreaRatio"`
	CorrectionTrigger float64      `yaml:"correctionTrigger"`
	CorrectionStep    int          `yaml:"correctionStep"`
	MaxRounds         int          `yaml:"maxRounds"`
	RoundDelay        TimeDuration `yaml:"roundDelay"`
}

// StorageConfig represents mission history settings
type StorageConfig struct {
	Database string `yaml:"database"`
}

// ArchiveConfig represents captured frame archive settings
type ArchiveConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Directory string `yaml:"directory"`
	Format    string `yaml:"format"`
	Annotate  bool   `yaml:"annotate"`
}

// MessagingConfig represents the MQTT event publisher settings
type MessagingConfig struct {
	Enabled        bool         `yaml:"enabled"`
	Broker         string       `yaml:"broker"`
	Port           int          `yaml:"port"`
	ClientID       string       `yaml:"clientID"`
	Username       string       `yaml:"username"`
	Password       string       `yaml:"password"`
	Topic          string       `yaml:"topic"`
	PublishTimeout TimeDuration `yaml:"publishTimeout"`
}

// SimulatorConfig represents the simulated vehicle settings
type SimulatorConfig struct {
	Battery         float64      `yaml:"battery"`
	DrainPerMeter   float64      `yaml:"drainPerMeter"`
	TakeoffAltitude float64      `yaml:"takeoffAltitude"`
	MarkerSize      float64      `yaml:"markerSize"`
	TakeoffDriftX   float64      `yaml:"takeoffDriftX"`
	TakeoffDriftY   float64      `yaml:"takeoffDriftY"`
	CommandLatency  TimeDuration `yaml:"commandLatency"`
}

// DefaultConfig returns the configuration used for every value the file omits
func DefaultConfig() *Config {
	m := mission.DefaultConfig()
	s := sim.DefaultConfig()

	return &Config{
		Settings: Settings{LogLevel: "info"},
		Mission: MissionConfig{
			TakeoffHeight:   m.TakeoffHeight,
			Timeout:         TimeDuration(m.Timeout),
			HomeMarkerID:    m.HomeMarkerID,
			BatteryFloor:    m.BatteryFloor,
			SettleDelay:     TimeDuration(m.SettleDelay),
			CaptureInterval: TimeDuration(m.CaptureInterval),
			VideoWarmup:     TimeDuration(m.VideoWarmup),
		},
		Alignment: AlignmentConfig{
			CenterTolerance:   m.Alignment.CenterTolerance,
			MinAreaRatio:      m.Alignment.MinAreaRatio,
			CorrectionTrigger: m.Alignment.CorrectionTrigger,
			CorrectionStep:    m.Alignment.CorrectionStep,
			MaxRounds:         m.Alignment.MaxRounds,
			RoundDelay:        TimeDuration(m.Alignment.RoundDelay),
		},
		LocationsFile: defaultLocationsFile,
		Storage:       StorageConfig{Database: defaultDatabase},
		Archive: ArchiveConfig{
			Directory: defaultArchiveDir,
			Format:    string(archive.ImagePNG),
		},
		Messaging: MessagingConfig{
			Port:     defaultMQTTPort,
			ClientID: defaultClientID,
			Topic:    defaultTopic,
		},
		Simulator: SimulatorConfig{
			Battery:         s.Battery,
			DrainPerMeter:   s.DrainPerMeter,
			TakeoffAltitude: s.TakeoffAltitude,
			MarkerSize:      s.MarkerSize,
		},
	}
}

// LoadConfig reads the YAML configuration file on top of DefaultConfig.
// Relative file paths are resolved against the directory of the file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration file: %w", err)
	}

	config, err := ParseConfig(data)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	for _, p := range []*string{&config.LocationsFile, &config.Storage.Database, &config.Archive.Directory} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}

	return config, nil
}

// ParseConfig parses and validates a YAML configuration
func ParseConfig(data []byte) (*Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) Validate() error {
	var errs []error

	m := c.MissionConfig()
	if err := m.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.LocationsFile == "" {
		errs = append(errs, errors.New("locationsFile is required"))
	}
	if c.Storage.Database == "" {
		errs = append(errs, errors.New("storage.database is required"))
	}
	if c.Archive.Enabled {
		if _, err := archive.ParseImageFormat(c.Archive.Format); err != nil {
			errs = append(errs, fmt.Errorf("archive: %w", err))
		}
	}
	if c.Messaging.Enabled && c.Messaging.Broker == "" {
		errs = append(errs, errors.New("messaging.broker is required"))
	}
	if c.Simulator.MarkerSize <= 0 {
		errs = append(errs, fmt.Errorf("simulator.markerSize must be positive: %g", c.Simulator.MarkerSize))
	}

	return errors.Join(errs...)
}

// MissionConfig converts the mission and alignment sections into the controller configuration
func (c *Config) MissionConfig() mission.Config {
	return mission.Config{
		TakeoffHeight:   c.Mission.TakeoffHeight,
		Timeout:         time.Duration(c.Mission.Timeout),
		HomeMarkerID:    c.Mission.HomeMarkerID,
		BatteryFloor:    c.Mission.BatteryFloor,
		SettleDelay:     time.Duration(c.Mission.SettleDelay),
		CaptureInterval: time.Duration(c.Mission.CaptureInterval),
		VideoWarmup:     time.Duration(c.Mission.VideoWarmup),
		Alignment: mission.AlignmentConfig{
			CenterTolerance:   c.Alignment.CenterTolerance,
			MinAreaRatio:      c.Alignment.MinAreaRatio,
			CorrectionTrigger: c.Alignment.CorrectionTrigger,
			CorrectionStep:    c.Alignment.CorrectionStep,
			MaxRounds:         c.Alignment.MaxRounds,
			RoundDelay:        time.Duration(c.Alignment.RoundDelay),
		},
	}
}

// SimulatorConfig converts the simulator section, the simulated home marker
// always carries the configured home marker id
func (c *Config) SimulatorConfig() sim.Config {
	return sim.Config{
		Battery:         c.Simulator.Battery,
		DrainPerMeter:   c.Simulator.DrainPerMeter,
		TakeoffAltitude: c.Simulator.TakeoffAltitude,
		MarkerID:        c.Mission.HomeMarkerID,
		MarkerSize:      c.Simulator.MarkerSize,
		TakeoffDriftX:   c.Simulator.TakeoffDriftX,
		TakeoffDriftY:   c.Simulator.TakeoffDriftY,
		CommandLatency:  time.Duration(c.Simulator.CommandLatency),
	}
}

// EventsConfig converts the messaging section into broker connection settings
func (c *Config) EventsConfig() events.Config {
	return events.Config{
		Broker:   c.Messaging.Broker,
		Port:     c.Messaging.Port,
		ClientID: c.Messaging.ClientID,
		Username: c.Messaging.Username,
		Password: c.Messaging.Password,
	}
}

// TimeDuration is a time.Duration written as a Go duration string, e.g. "500ms"
type TimeDuration time.Duration

func (d *TimeDuration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("app.TimeDuration: failed to parse: %s", err)
	}

	*d = TimeDuration(duration)
	return nil
}

func (d TimeDuration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d TimeDuration) String() string {
	return time.Duration(d).String()
}
