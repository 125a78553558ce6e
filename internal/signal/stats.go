package signal

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

const varianceEpsilon = 1e-12

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}

	return v
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return clamp(v, lo, hi)
}

// Median returns the median of x, averaging the two middle values for even
// lengths. It returns 0 for an empty slice.
func Median(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	s := append([]float64(nil), x...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}

	return (s[mid-1] + s[mid]) / 2
}

// MeanStdDev returns the population mean and standard deviation of x.
func MeanStdDev(x []float64) (float64, float64) {
	if len(x) == 0 {
		return 0, 0
	}
	mean, std := stat.PopMeanStdDev(x, nil)
	if math.IsNaN(std) {
		std = 0
	}

	return mean, std
}

// Diff returns successive differences of integer indices.
func Diff(idx []int) []float64 {
	if len(idx) < 2 {
		return nil
	}
	out := make([]float64, len(idx)-1)
	for i := 1; i < len(idx); i++ {
		out[i-1] = float64(idx[i] - idx[i-1])
	}

	return out
}

// Gaps returns successive differences of fractional positions.
func Gaps(pos []float64) []float64 {
	if len(pos) < 2 {
		return nil
	}
	out := make([]float64, len(pos)-1)
	for i := 1; i < len(pos); i++ {
		out[i-1] = pos[i] - pos[i-1]
	}

	return out
}

// Range is a closed interval.
type Range struct {
	Min float64 `mapstructure:"min"`
	Max float64 `mapstructure:"max"`
}

// Contains reports whether v lies in [Min, Max].
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Clamp limits v to the range.
func (r Range) Clamp(v float64) float64 {
	return clamp(v, r.Min, r.Max)
}

// Valid reports whether Min <= Max.
func (r Range) Valid() bool {
	return r.Min <= r.Max
}
