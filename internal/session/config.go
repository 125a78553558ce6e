package session

import (
	"time"

	"codeberg.org/mutker/camvitals/internal/errors"
	"codeberg.org/mutker/camvitals/internal/signal"
)

// Config holds the aggregation constants.
type Config struct {
	MeasurementInterval time.Duration `mapstructure:"measurement_interval"`
	MinReadings         int           `mapstructure:"min_readings"`
	HRVBounds           signal.Range  `mapstructure:"hrv_bounds"`
	GlucoseBounds       signal.Range  `mapstructure:"glucose_bounds"`
	OutlierIQR          float64       `mapstructure:"outlier_iqr"`
	ConsistencyWeight   float64       `mapstructure:"consistency_weight"`
	CoverageWeight      float64       `mapstructure:"coverage_weight"`
	// Coverage saturates at MinReadings*CoverageFactor readings.
	CoverageFactor float64 `mapstructure:"coverage_factor"`
	// ReferenceGlucose is recorded with each reading; glucose is not
	// measured from video.
	ReferenceGlucose float64 `mapstructure:"reference_glucose"`
}

// DefaultConfig returns the default aggregation constants.
func DefaultConfig() Config {
	return Config{
		MeasurementInterval: 1500 * time.Millisecond,
		MinReadings:         3,
		HRVBounds:           signal.Range{Min: 20, Max: 100},
		GlucoseBounds:       signal.Range{Min: 70, Max: 180},
		OutlierIQR:          1.5,
		ConsistencyWeight:   0.7,
		CoverageWeight:      0.3,
		CoverageFactor:      1.5,
		ReferenceGlucose:    90,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	switch {
	case c.MeasurementInterval < 0:
		return errFactory.WithMessage(errors.ErrInvalidConfig, "session: measurement_interval must not be negative")
	case c.MinReadings < 1:
		return errFactory.WithMessage(errors.ErrInvalidConfig, "session: min_readings must be at least 1")
	case !c.HRVBounds.Valid() || !c.GlucoseBounds.Valid():
		return errFactory.WithMessage(errors.ErrInvalidConfig, "session: invalid plausibility bounds")
	case c.OutlierIQR < 0 || c.CoverageFactor <= 0:
		return errFactory.WithMessage(errors.ErrInvalidConfig, "session: outlier_iqr and coverage_factor must be positive")
	}

	return nil
}
