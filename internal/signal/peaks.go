package signal

// PeakConfig configures local extremum detection.
type PeakConfig struct {
	Threshold   float64 `mapstructure:"threshold"`
	Neighbors   int     `mapstructure:"neighbors"`
	MinDistance int     `mapstructure:"min_distance"`
	SlopeCheck  bool    `mapstructure:"slope_check"`
}

// MinPeakDistance is the minimum spacing between accepted extrema, a
// quarter second of samples.
func MinPeakDistance(sampleRate float64) int {
	return int(sampleRate * 0.25)
}

// FindExtrema returns ascending peak and valley indices of x. Peaks exceed
// Threshold and every neighbour within Neighbors on each side; valleys are
// the mirrored case. Extrema closer than MinDistance to the previously
// accepted one of the same kind replace it only if more extreme.
func FindExtrema(x []float64, cfg PeakConfig) ([]int, []int) {
	k := cfg.Neighbors
	if k < 1 {
		k = 1
	}

	var peaks, valleys []int
	for i := k; i < len(x)-k; i++ {
		if x[i] > cfg.Threshold && dominates(x, i, k, 1) && (!cfg.SlopeCheck || slopeTurns(x, i, k, 1)) {
			peaks = accept(peaks, x, i, cfg.MinDistance, 1)
		}
		if x[i] < -cfg.Threshold && dominates(x, i, k, -1) && (!cfg.SlopeCheck || slopeTurns(x, i, k, -1)) {
			valleys = accept(valleys, x, i, cfg.MinDistance, -1)
		}
	}

	return peaks, valleys
}

// dominates reports whether sign*x[i] is strictly greater than sign*x[j]
// for every j within k of i.
func dominates(x []float64, i, k int, sign float64) bool {
	for j := i - k; j <= i+k; j++ {
		if j != i && sign*x[i] <= sign*x[j] {
			return false
		}
	}

	return true
}

// slopeTurns checks the slope over the neighbourhood changes sign at i.
func slopeTurns(x []float64, i, k int, sign float64) bool {
	before := sign * (x[i] - x[i-k])
	after := sign * (x[i+k] - x[i])

	return before > 0 && after < 0
}

func accept(idx []int, x []float64, i, minDistance int, sign float64) []int {
	if n := len(idx); n > 0 && i-idx[n-1] < minDistance {
		if sign*x[i] > sign*x[idx[n-1]] {
			idx[n-1] = i
		}
		return idx
	}

	return append(idx, i)
}

// Refine moves each extremum index in idx to the vertex of the parabola
// through it and its two neighbours. Offsets are limited to half a sample;
// indices at the edges or on a flat top stay where they are.
func Refine(x []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for n, i := range idx {
		out[n] = float64(i)
		if i <= 0 || i >= len(x)-1 {
			continue
		}
		den := x[i-1] - 2*x[i] + x[i+1]
		if den == 0 {
			continue
		}
		out[n] += clamp(0.5*(x[i-1]-x[i+1])/den, -0.5, 0.5)
	}

	return out
}
