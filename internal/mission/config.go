package mission

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultTakeoffHeight   = 1.0 // meters
	DefaultTimeout         = 180 * time.Second
	DefaultHomeMarkerID    = 1
	DefaultBatteryFloor    = 20 // percent
	DefaultSettleDelay     = 2 * time.Second
	DefaultCaptureInterval = 500 * time.Millisecond
	DefaultVideoWarmup     = 2 * time.Second

	DefaultCenterTolerance   = 50   // pixels
	DefaultMinAreaRatio      = 0.10 // fraction of the frame area
	DefaultCorrectionTrigger = 0.2  // marker-relative units
	DefaultCorrectionStep    = 20   // centimeters
	DefaultMaxRounds         = 3
	DefaultRoundDelay        = 1 * time.Second
)

// Config holds the mission controller settings
type Config struct {
	TakeoffHeight   float64       // mission height above the takeoff point, meters
	Timeout         time.Duration // advisory, enforced by the caller
	HomeMarkerID    int
	BatteryFloor    int           // minimum battery percent required to take off
	SettleDelay     time.Duration // default wait after each path command
	CaptureInterval time.Duration // wait between frame samples at a capture point
	VideoWarmup     time.Duration // wait after starting the video stream

	Alignment AlignmentConfig
}

// AlignmentConfig holds the landing alignment thresholds
type AlignmentConfig struct {
	CenterTolerance   float64       // max marker distance from the frame center, pixels
	MinAreaRatio      float64       // min marker area as a fraction of the frame area
	CorrectionTrigger float64       // min |translation| on an axis that triggers a correction
	CorrectionStep    int           // fixed correction distance, centimeters
	MaxRounds         int           // alignment rounds before giving up
	RoundDelay        time.Duration // wait between rounds
}

// DefaultConfig returns the default mission configuration
func DefaultConfig() Config {
	return Config{
		TakeoffHeight:   DefaultTakeoffHeight,
		Timeout:         DefaultTimeout,
		HomeMarkerID:    DefaultHomeMarkerID,
		BatteryFloor:    DefaultBatteryFloor,
		SettleDelay:     DefaultSettleDelay,
		CaptureInterval: DefaultCaptureInterval,
		VideoWarmup:     DefaultVideoWarmup,
		Alignment: AlignmentConfig{
			CenterTolerance:   DefaultCenterTolerance,
			MinAreaRatio:      DefaultMinAreaRatio,
			CorrectionTrigger: DefaultCorrectionTrigger,
			CorrectionStep:    DefaultCorrectionStep,
			MaxRounds:         DefaultMaxRounds,
			RoundDelay:        DefaultRoundDelay,
		},
	}
}

// Validate checks that all thresholds are usable
func (c *Config) Validate() error {
	var errs []error

	if c.TakeoffHeight <= 0 {
		errs = append(errs, fmt.Errorf("takeoff height must be positive: %g", c.TakeoffHeight))
	}
	if c.BatteryFloor < 0 || c.BatteryFloor > 100 {
		errs = append(errs, fmt.Errorf("battery floor must be within [0, 100]: %d", c.BatteryFloor))
	}
	if c.SettleDelay < 0 || c.CaptureInterval < 0 || c.VideoWarmup < 0 || c.Alignment.RoundDelay < 0 {
		errs = append(errs, errors.New("delays must not be negative"))
	}

	a := c.Alignment
	if a.CenterTolerance <= 0 {
		errs = append(errs, fmt.Errorf("center tolerance must be positive: %g", a.CenterTolerance))
	}
	if a.MinAreaRatio <= 0 || a.MinAreaRatio >= 1 {
		errs = append(errs, fmt.Errorf("min area ratio must be within (0, 1): %g", a.MinAreaRatio))
	}
	if a.CorrectionTrigger <= 0 {
		errs = append(errs, fmt.Errorf("correction trigger must be positive: %g", a.CorrectionTrigger))
	}
	if a.CorrectionStep <= 0 {
		errs = append(errs, fmt.Errorf("correction step must be positive: %d", a.CorrectionStep))
	}
	if a.MaxRounds <= 0 {
		errs = append(errs, fmt.Errorf("max rounds must be positive: %d", a.MaxRounds))
	}

	return errors.Join(errs...)
}
