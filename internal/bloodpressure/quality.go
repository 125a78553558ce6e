package bloodpressure

import (
	"math"

	"codeberg.org/mutker/camvitals/internal/signal"
	"gonum.org/v1/gonum/stat"
)

// SignalQuality scores a conditioned window in [0,1] as a weighted blend of
// smoothness against a 3-point moving average, a plausible zero-crossing
// rate and autocorrelation periodicity within the configured lag range.
func SignalQuality(x []float64, sampleRate float64, cfg QualityConfig) float64 {
	if len(x) < 3 || sampleRate <= 0 {
		return 0
	}

	q := cfg.SNRWeight*smoothness(x) +
		cfg.ZeroCrossWeight*zeroCrossScore(x, sampleRate, cfg.ZeroCrossRate) +
		cfg.PeriodicityWeight*periodicity(x, sampleRate, cfg.Lag)

	return signal.Clamp(q, 0, 1)
}

func variance(x []float64) (float64, float64) {
	mean, v := stat.PopMeanVariance(x, nil)
	if math.IsNaN(v) {
		return mean, 0
	}

	return mean, v
}

func smoothness(x []float64) float64 {
	_, total := variance(x)
	if total == 0 {
		return 0
	}

	resid := make([]float64, 0, len(x)-2)
	for i := 1; i < len(x)-1; i++ {
		resid = append(resid, x[i]-(x[i-1]+x[i]+x[i+1])/3)
	}
	_, noise := variance(resid)

	return signal.Clamp(1-noise/total, 0, 1)
}

func zeroCrossScore(x []float64, sampleRate float64, band signal.Range) float64 {
	mean := stat.Mean(x, nil)

	var crossings int
	for i := 1; i < len(x); i++ {
		if (x[i-1]-mean)*(x[i]-mean) < 0 {
			crossings++
		}
	}
	rate := float64(crossings) / (float64(len(x)) / sampleRate)
	if band.Contains(rate) {
		return 1
	}

	return 0
}

// periodicity is the largest normalised autocorrelation over the lag
// range, limited to lags leaving at least a third of the window overlapping.
func periodicity(x []float64, sampleRate float64, lag signal.Range) float64 {
	n := len(x)
	mean, v := variance(x)
	if v == 0 {
		return 0
	}

	lo := int(math.Ceil(lag.Min * sampleRate))
	hi := min(int(lag.Max*sampleRate), n-n/3)

	best := 0.0
	for k := max(lo, 1); k <= hi; k++ {
		var s float64
		for i := 0; i+k < n; i++ {
			s += (x[i] - mean) * (x[i+k] - mean)
		}
		best = max(best, s/float64(n-k)/v)
	}

	return signal.Clamp(best, 0, 1)
}
