package bloodpressure

import (
	"time"

	"codeberg.org/mutker/camvitals/internal/errors"
	"codeberg.org/mutker/camvitals/internal/signal"
)

const (
	defaultSampleRate = 30.0
	defaultWindowSize = 60
)

// Model holds the linear calibration constants mapping PPG features to
// pressure. They are heuristic and not derived from a clinical model.
type Model struct {
	BaselineSystolic  float64 `mapstructure:"baseline_systolic"`
	BaselineDiastolic float64 `mapstructure:"baseline_diastolic"`

	ReferenceTransitTime  float64 `mapstructure:"reference_transit_time"`
	ReferencePulseWidth   float64 `mapstructure:"reference_pulse_width"`
	ReferenceAugmentation float64 `mapstructure:"reference_augmentation"`

	SystolicTransitTime  float64 `mapstructure:"systolic_transit_time"`
	SystolicPulseWidth   float64 `mapstructure:"systolic_pulse_width"`
	SystolicAugmentation float64 `mapstructure:"systolic_augmentation"`

	DiastolicTransitTime  float64 `mapstructure:"diastolic_transit_time"`
	DiastolicPulseWidth   float64 `mapstructure:"diastolic_pulse_width"`
	DiastolicAugmentation float64 `mapstructure:"diastolic_augmentation"`
}

// Limits bound every emitted estimate.
type Limits struct {
	Systolic      signal.Range `mapstructure:"systolic"`
	Diastolic     signal.Range `mapstructure:"diastolic"`
	PulsePressure signal.Range `mapstructure:"pulse_pressure"`
}

// QualityConfig weights the signal-quality components.
type QualityConfig struct {
	SNRWeight         float64      `mapstructure:"snr_weight"`
	ZeroCrossWeight   float64      `mapstructure:"zero_cross_weight"`
	PeriodicityWeight float64      `mapstructure:"periodicity_weight"`
	ZeroCrossRate     signal.Range `mapstructure:"zero_cross_rate"` // crossings per second
	Lag               signal.Range `mapstructure:"lag"`             // seconds
	MinQuality        float64      `mapstructure:"min_quality"`
}

// Config is the tunable model of the blood-pressure estimator.
type Config struct {
	SampleRate  float64       `mapstructure:"sample_rate"`
	WindowSize  int           `mapstructure:"window_size"`
	MinFill     float64       `mapstructure:"min_fill"`
	MinInterval time.Duration `mapstructure:"min_interval"`

	PulseWidth  signal.Range `mapstructure:"pulse_width"`  // seconds
	TransitTime signal.Range `mapstructure:"transit_time"` // seconds

	// Estimates move only when either component changes by more than
	// SmoothThreshold mmHg; the blend toward the new value is
	// change/BlendScale clamped to Blend.
	SmoothThreshold float64      `mapstructure:"smooth_threshold"`
	BlendScale      float64      `mapstructure:"blend_scale"`
	Blend           signal.Range `mapstructure:"blend"`

	Model     Model                  `mapstructure:"model"`
	Limits    Limits                 `mapstructure:"limits"`
	Quality   QualityConfig          `mapstructure:"quality"`
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
		MinInterval:     200 * time.Millisecond,
		PulseWidth:      signal.Range{Min: 0.4, Max: 1.4},
		TransitTime:     signal.Range{Min: 0.08, Max: 0.5},
		SmoothThreshold: 2,
		BlendScale:      20,
		Blend:           signal.Range{Min: 0.3, Max: 0.5},
		Model: Model{
			BaselineSystolic:      110,
			BaselineDiastolic:     70,
			ReferenceTransitTime:  0.25,
			ReferencePulseWidth:   0.8,
			ReferenceAugmentation: 1.0,
			SystolicTransitTime:   60,
			SystolicPulseWidth:    15,
			SystolicAugmentation:  8,
			DiastolicTransitTime:  35,
			DiastolicPulseWidth:   10,
			DiastolicAugmentation: 5,
		},
		Limits: Limits{
			Systolic:      signal.Range{Min: 90, Max: 160},
			Diastolic:     signal.Range{Min: 60, Max: 100},
			PulsePressure: signal.Range{Min: 35, Max: 55},
		},
		Quality: QualityConfig{
			SNRWeight:         0.4,
			ZeroCrossWeight:   0.2,
			PeriodicityWeight: 0.4,
			ZeroCrossRate:     signal.Range{Min: 1, Max: 6},
			Lag:               signal.Range{Min: 0.5, Max: 1.5},
			MinQuality:        0.45,
		},
		// taller band over the upper face, inside the detected box
		Extractor: signal.ExtractorConfig{
			ROI: signal.ROI{Left: 0.3, Top: 0.05, Width: 0.4, Height: 0.25},
			Skin: signal.SkinModel{
				MinRed: 0.35, MaxRed: 0.65,
				MinGreen: 0.2, MaxGreen: 0.4,
				MinBlue: 0.05, MaxBlue: 0.35,
				MinHue: 330, MaxHue: 60,
				MinSaturation: 0.08, MaxSaturation: 0.8,
			},
			Weighting:       signal.RedGreen,
			MinCoverage:     0.1,
			Smoothing:       0.3,
			MinWeight:       0.1,
			QualityCoverage: 0.5,
			RedWeight:       0.3,
			GreenWeight:     0.7,
			HueCenter:       20,
			HueSpan:         40,
		},
		Filter: signal.FilterConfig{
			SampleRate:     defaultSampleRate,
			HighPassCutoff: 0.5,
			LowPassCutoff:  6,
			OutlierZ:       2.5,
		},
		Peaks: signal.PeakConfig{
			Threshold:   0.3,
			Neighbors:   2,
			MinDistance: signal.MinPeakDistance(defaultSampleRate),
		},
	}
}

// Validate checks the configuration for values the estimator cannot use.
func (c Config) Validate() error {
	errFactory := errors.New()

	switch {
	case c.SampleRate <= 0 || c.Filter.SampleRate <= 0:
		return errFactory.WithMessage(errors.ErrInvalidConfig, "blood_pressure: sample rate must be positive")
	case c.WindowSize < 2*c.Peaks.Neighbors+1:
		return errFactory.WithMessage(errors.ErrInvalidConfig, "blood_pressure: window too small for peak neighbourhood")
	case c.MinFill < 0 || c.MinFill > 1:
		return errFactory.WithMessage(errors.ErrInvalidConfig, "blood_pressure: min_fill must lie in [0,1]")
	case c.MinInterval < 0:
		return errFactory.WithMessage(errors.ErrInvalidConfig, "blood_pressure: min_interval must not be negative")
	case !c.Limits.Systolic.Valid() || !c.Limits.Diastolic.Valid() || !c.Limits.PulsePressure.Valid():
		return errFactory.WithMessage(errors.ErrInvalidConfig, "blood_pressure: invalid limits")
	case c.Limits.Diastolic.Min+c.Limits.PulsePressure.Min < c.Limits.Systolic.Min ||
		c.Limits.Diastolic.Max+c.Limits.PulsePressure.Max > c.Limits.Systolic.Max:
		return errFactory.WithMessage(errors.ErrInvalidConfig, "blood_pressure: pulse pressure limits incompatible with systolic range")
	case !c.PulseWidth.Valid() || !c.TransitTime.Valid() || !c.Blend.Valid() || !c.Quality.Lag.Valid():
		return errFactory.WithMessage(errors.ErrInvalidConfig, "blood_pressure: invalid feature range")
	case c.BlendScale <= 0:
		return errFactory.WithMessage(errors.ErrInvalidConfig, "blood_pressure: blend_scale must be positive")
	}

	return nil
}
