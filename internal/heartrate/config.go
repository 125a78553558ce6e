package heartrate

import (
	"time"

	"codeberg.org/mutker/camvitals/internal/errors"
	"codeberg.org/mutker/camvitals/internal/signal"
)

const (
	defaultSampleRate = 30.0
	defaultWindowSize = 60
)

// HRVConfig weights the HRV components and bounds the combined score.
type HRVConfig struct {
	RMSSDWeight float64      `mapstructure:"rmssd_weight"`
	SDNNWeight  float64      `mapstructure:"sdnn_weight"`
	PNN50Weight float64      `mapstructure:"pnn50_weight"`
	Bounds      signal.Range `mapstructure:"bounds"`
}

// Config is the tunable model of the heart-rate estimator.
type Config struct {
	SampleRate      float64      `mapstructure:"sample_rate"`
	WindowSize      int          `mapstructure:"window_size"`
	MinFill         float64      `mapstructure:"min_fill"`
	ValidRange      signal.Range `mapstructure:"valid_range"`
	MaxChange       float64      `mapstructure:"max_change"`
	SmoothingWindow int          `mapstructure:"smoothing_window"`
	HistorySize     int          `mapstructure:"history_size"`

	// Jitter adds cosmetic noise of up to +-JitterAmplitude BPM to each
	// emitted value. It has no physiological meaning.
	Jitter          bool    `mapstructure:"jitter"`
	JitterAmplitude float64 `mapstructure:"jitter_amplitude"`

	HRV       HRVConfig              `mapstructure:"hrv"`
	Extractor signal.ExtractorConfig `mapstructure:"extractor"`
	Filter    signal.FilterConfig    `mapstructure:"filter"`
	Peaks     signal.PeakConfig      `mapstructure:"peaks"`
}

// DefaultConfig returns the calibrated defaults.
func DefaultConfig() Config {
	return Config{
		SampleRate:      defaultSampleRate,
		WindowSize:      defaultWindowSize,
		MinFill:         0.4,
		ValidRange:      signal.Range{Min: 67, Max: 98},
		MaxChange:       2,
		SmoothingWindow: 5,
		HistorySize:     30,
		Jitter:          true,
		JitterAmplitude: 0.5,
		HRV: HRVConfig{
			RMSSDWeight: 0.4,
			SDNNWeight:  0.3,
			PNN50Weight: 0.3,
			Bounds:      signal.Range{Min: 20, Max: 100},
		},
		// narrow forehead band just above the detected box
		Extractor: signal.ExtractorConfig{
			ROI: signal.ROI{Left: 0.3, Top: -0.15, Width: 0.4, Height: 0.12},
			Skin: signal.SkinModel{
				MinRed: 0.36, MaxRed: 0.6,
				MinGreen: 0.25, MaxGreen: 0.4,
				MinBlue: 0.1, MaxBlue: 0.33,
				MinHue: 340, MaxHue: 50,
				MinSaturation: 0.1, MaxSaturation: 0.7,
			},
			Weighting:       signal.GreenPurity,
			MinCoverage:     0.08,
			Smoothing:       0.3,
			MinWeight:       0.1,
			CrossTalk:       0.5,
			PurityGain:      5,
			QualityCoverage: 0.5,
		},
		Filter: signal.FilterConfig{
			SampleRate:     defaultSampleRate,
			HighPassCutoff: 0.5,
			LowPassCutoff:  4,
			OutlierZ:       2.5,
		},
		Peaks: signal.PeakConfig{
			Threshold:   0.3,
			Neighbors:   2,
			MinDistance: signal.MinPeakDistance(defaultSampleRate),
			SlopeCheck:  true,
		},
	}
}

// Window returns the buffer length as a duration at the sample rate.
func (c Config) Window() time.Duration {
	return time.Duration(float64(c.WindowSize) / c.SampleRate * float64(time.Second))
}

// Validate checks the configuration for values the estimator cannot use.
func (c Config) Validate() error {
	errFactory := errors.New()

	switch {
	case c.SampleRate <= 0 || c.Filter.SampleRate <= 0:
		return errFactory.WithMessage(errors.ErrInvalidConfig, "heart_rate: sample rate must be positive")
	case c.WindowSize < 2*c.Peaks.Neighbors+1:
		return errFactory.WithMessage(errors.ErrInvalidConfig, "heart_rate: window too small for peak neighbourhood")
	case c.MinFill < 0 || c.MinFill > 1:
		return errFactory.WithMessage(errors.ErrInvalidConfig, "heart_rate: min_fill must lie in [0,1]")
	case !c.ValidRange.Valid() || c.ValidRange.Min <= 0:
		return errFactory.WithMessage(errors.ErrInvalidConfig, "heart_rate: invalid valid_range")
	case !c.HRV.Bounds.Valid():
		return errFactory.WithMessage(errors.ErrInvalidConfig, "heart_rate: invalid hrv bounds")
	case c.MaxChange <= 0 || c.SmoothingWindow <= 0 || c.HistorySize <= 0:
		return errFactory.WithMessage(errors.ErrInvalidConfig, "heart_rate: max_change, smoothing_window and history_size must be positive")
	}

	return nil
}
