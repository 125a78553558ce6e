package pipeline

import (
	"time"

	"codeberg.org/mutker/camvitals/internal/bloodpressure"
	"codeberg.org/mutker/camvitals/internal/errors"
	"codeberg.org/mutker/camvitals/internal/heartrate"
	"codeberg.org/mutker/camvitals/internal/session"
)

// Config composes the estimator and session configurations.
type Config struct {
	HeartRate     heartrate.Config     `mapstructure:"heart_rate"`
	BloodPressure bloodpressure.Config `mapstructure:"blood_pressure"`
	Session       session.Config       `mapstructure:"session"`
	// DetectTimeout bounds each face detection call; zero waits for ctx.
	DetectTimeout time.Duration `mapstructure:"detect_timeout"`
}

func DefaultConfig() Config {
	return Config{
		HeartRate:     heartrate.DefaultConfig(),
		BloodPressure: bloodpressure.DefaultConfig(),
		Session:       session.DefaultConfig(),
		DetectTimeout: time.Second,
	}
}

func (c Config) Validate() error {
	if err := c.HeartRate.Validate(); err != nil {
		return err
	}
	if err := c.BloodPressure.Validate(); err != nil {
		return err
	}
	if err := c.Session.Validate(); err != nil {
		return err
	}
	if c.DetectTimeout < 0 {
		return errors.New().WithMessage(errors.ErrInvalidConfig, "detect_timeout must not be negative")
	}

	return nil
}
