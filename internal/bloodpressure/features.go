package bloodpressure

import (
	"math"

	"codeberg.org/mutker/camvitals/internal/errors"
	"codeberg.org/mutker/camvitals/internal/signal"
	"gonum.org/v1/gonum/floats"
)

// Features is the PPG feature vector of one update. It is consumed
// immediately and never retained.
type Features struct {
	SystolicPeak      float64
	DiastolicPeak     float64
	AugmentationIndex float64
	PulseWidth        float64 // seconds
	TransitTime       float64 // seconds
}

// ExtractFeatures derives the feature vector from a conditioned window and
// its extrema. It needs two peaks and two valleys, and rejects pulse widths
// and transit times outside the configured ranges.
func ExtractFeatures(x []float64, peaks, valleys []int, cfg Config) (Features, error) {
	errFactory := errors.New()

	if len(peaks) < 2 || len(valleys) < 2 {
		return Features{}, errFactory.WithData(errors.ErrInsufficientPeaks, struct {
			Peaks   int
			Valleys int
		}{len(peaks), len(valleys)})
	}

	f := Features{
		SystolicPeak:  floats.Max(valuesAt(x, peaks)),
		DiastolicPeak: floats.Min(valuesAt(x, valleys)),
	}
	if f.SystolicPeak == 0 {
		return f, errFactory.WithMessage(errors.ErrFeatureRange, "zero systolic peak")
	}
	f.AugmentationIndex = math.Abs(f.DiastolicPeak / f.SystolicPeak)
	f.PulseWidth = signal.Median(signal.Diff(peaks)) / cfg.SampleRate

	transit := transitTimes(peaks, valleys, cfg.SampleRate)
	if len(transit) == 0 {
		return f, errFactory.WithMessage(errors.ErrFeatureRange, "no valley precedes a peak")
	}
	f.TransitTime = signal.Median(transit)

	if !cfg.PulseWidth.Contains(f.PulseWidth) || !cfg.TransitTime.Contains(f.TransitTime) {
		return f, errFactory.WithData(errors.ErrFeatureRange, f)
	}

	return f, nil
}

// transitTimes pairs each valley with the first peak after it.
func transitTimes(peaks, valleys []int, sampleRate float64) []float64 {
	var out []float64
	p := 0
	for _, v := range valleys {
		for p < len(peaks) && peaks[p] <= v {
			p++
		}
		if p == len(peaks) {
			break
		}
		out = append(out, float64(peaks[p]-v)/sampleRate)
	}

	return out
}

func valuesAt(x []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = x[j]
	}

	return out
}
