package heartrate

import (
	"math"

	"codeberg.org/mutker/camvitals/internal/signal"
)

// HRVComponents are the statistics HRV is combined from, computed over the
// RR-interval equivalents (60000/bpm ms) of a heart-rate history.
type HRVComponents struct {
	RMSSD float64
	SDNN  float64
	PNN50 float64 // percent
}

// Components computes RMSSD, SDNN and pNN50 over history. It needs at
// least two positive rates.
func Components(history []float64) (HRVComponents, bool) {
	rr := make([]float64, 0, len(history))
	for _, bpm := range history {
		if bpm > 0 {
			rr = append(rr, 60000/bpm)
		}
	}
	if len(rr) < 2 {
		return HRVComponents{}, false
	}

	var sumSq float64
	var over50 int
	for i := 1; i < len(rr); i++ {
		d := rr[i] - rr[i-1]
		sumSq += d * d
		if math.Abs(d) > 50 {
			over50++
		}
	}
	diffs := float64(len(rr) - 1)
	_, sdnn := signal.MeanStdDev(rr)

	return HRVComponents{
		RMSSD: math.Sqrt(sumSq / diffs),
		SDNN:  sdnn,
		PNN50: 100 * float64(over50) / diffs,
	}, true
}

// HRV combines the components into a score clamped to the configured
// bounds and truncated to one decimal. It returns 0 when history is too
// short.
func HRV(history []float64, cfg HRVConfig) float64 {
	c, ok := Components(history)
	if !ok {
		return 0
	}
	v := cfg.RMSSDWeight*c.RMSSD + cfg.SDNNWeight*c.SDNN + cfg.PNN50Weight*c.PNN50

	return math.Trunc(cfg.Bounds.Clamp(v)*10) / 10
}
