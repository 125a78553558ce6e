package signal

import "math"

// FilterConfig configures the band-pass conditioner.
type FilterConfig struct {
	SampleRate     float64 `mapstructure:"sample_rate"`
	HighPassCutoff float64 `mapstructure:"high_pass_cutoff"`
	LowPassCutoff  float64 `mapstructure:"low_pass_cutoff"`
	OutlierZ       float64 `mapstructure:"outlier_z"`
}

// emaAlpha is the one-pole smoothing coefficient for a cutoff in Hz.
func emaAlpha(cutoff, sampleRate float64) float64 {
	if cutoff <= 0 || sampleRate <= 0 {
		return 1
	}
	dt := 1 / sampleRate
	rc := 1 / (2 * math.Pi * cutoff)

	return dt / (rc + dt)
}

// BandPass filters x in one pass. The high-pass output is x minus a slow
// EMA at HighPassCutoff; the low-pass stage removes what a fast EMA at
// LowPassCutoff does not follow. Their difference is fast - slow. The slow
// EMA starts at the mean of x so the window start does not ring.
func BandPass(x []float64, cfg FilterConfig) []float64 {
	out := make([]float64, len(x))
	if len(x) == 0 {
		return out
	}

	aSlow := emaAlpha(cfg.HighPassCutoff, cfg.SampleRate)
	aFast := emaAlpha(cfg.LowPassCutoff, cfg.SampleRate)
	slow, _ := MeanStdDev(x)
	fast := x[0]
	for i, v := range x {
		slow += aSlow * (v - slow)
		fast += aFast * (v - fast)
		highPass := v - slow
		lowResidue := v - fast
		out[i] = highPass - lowResidue
	}

	return out
}

// Normalize winsorizes samples whose |z| exceeds outlierZ to the mean, then
// z-scores the result. Zero-variance input yields zeros.
func Normalize(x []float64, outlierZ float64) []float64 {
	out := make([]float64, len(x))
	mean, std := MeanStdDev(x)
	if std < varianceEpsilon {
		return out
	}

	copy(out, x)
	if outlierZ > 0 {
		for i, v := range out {
			if math.Abs(v-mean)/std > outlierZ {
				out[i] = mean
			}
		}
	}

	mean, std = MeanStdDev(out)
	if std < varianceEpsilon {
		for i := range out {
			out[i] = 0
		}
		return out
	}
	for i, v := range out {
		out[i] = (v - mean) / std
	}

	return out
}

// Condition runs BandPass then Normalize.
func Condition(x []float64, cfg FilterConfig) []float64 {
	return Normalize(BandPass(x, cfg), cfg.OutlierZ)
}
