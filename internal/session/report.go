package session

import (
	"math"
	"sort"

	"codeberg.org/mutker/camvitals/internal/bloodpressure"
	"codeberg.org/mutker/camvitals/internal/signal"
	"gonum.org/v1/gonum/stat"
)

// NoPressure is the averaged blood pressure when no reading carried one.
const NoPressure = "--/--"

// Report summarises a session.
type Report struct {
	AverageHeartRate     int
	AverageBloodPressure string
	AverageHRV           float64
	AverageBloodGlucose  int
	Confidence           int // percent
	TotalReadings        int
}

// FinalReport computes the session report from the stored readings.
// Below MinReadings every vital is zero and the pressure is "--/--".
func (a *Aggregator) FinalReport() Report {
	n := len(a.readings)
	if n < a.cfg.MinReadings {
		return Report{AverageBloodPressure: NoPressure, TotalReadings: n}
	}

	kept := a.filterOutliers()

	hr := make([]float64, len(kept))
	hrv := make([]float64, len(kept))
	glucose := make([]float64, len(kept))
	for i, r := range kept {
		hr[i] = r.HeartRate
		hrv[i] = r.HRV
		glucose[i] = r.BloodGlucose
	}

	return Report{
		AverageHeartRate:     int(math.Round(stat.Mean(hr, nil))),
		AverageBloodPressure: averagePressure(kept),
		AverageHRV:           math.Round(stat.Mean(hrv, nil)*10) / 10,
		AverageBloodGlucose:  int(math.Round(stat.Mean(glucose, nil))),
		Confidence:           a.confidence(hr, n),
		TotalReadings:        n,
	}
}

// filterOutliers drops readings whose heart rate or HRV falls outside its
// IQR fence. If nothing survives, all readings are kept.
func (a *Aggregator) filterOutliers() []Reading {
	hrFence := fence(a.readings, func(r Reading) float64 { return r.HeartRate }, a.cfg.OutlierIQR)
	hrvFence := fence(a.readings, func(r Reading) float64 { return r.HRV }, a.cfg.OutlierIQR)

	var kept []Reading
	for _, r := range a.readings {
		if hrFence.Contains(r.HeartRate) && hrvFence.Contains(r.HRV) {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		return a.readings
	}

	return kept
}

// fence returns [Q1-k*IQR, Q3+k*IQR] with quartiles taken by index into
// the sorted values.
func fence(readings []Reading, value func(Reading) float64, k float64) signal.Range {
	v := make([]float64, len(readings))
	for i, r := range readings {
		v[i] = value(r)
	}
	sort.Float64s(v)

	q1 := v[int(math.Floor(float64(len(v))*0.25))]
	q3 := v[int(math.Floor(float64(len(v))*0.75))]
	iqr := q3 - q1

	return signal.Range{Min: q1 - k*iqr, Max: q3 + k*iqr}
}

func averagePressure(readings []Reading) string {
	var sys, dia []float64
	for _, r := range readings {
		if p, ok := bloodpressure.Parse(r.BloodPressure); ok {
			sys = append(sys, float64(p.Systolic))
			dia = append(dia, float64(p.Diastolic))
		}
	}
	if len(sys) == 0 {
		return NoPressure
	}

	return bloodpressure.Pressure{
		Systolic:  int(math.Round(stat.Mean(sys, nil))),
		Diastolic: int(math.Round(stat.Mean(dia, nil))),
	}.String()
}

// confidence blends heart-rate consistency (one minus the coefficient of
// variation) over the kept rates with coverage of all stored readings.
func (a *Aggregator) confidence(hr []float64, readings int) int {
	mean, std := signal.MeanStdDev(hr)
	consistency := 0.0
	if mean > 0 {
		consistency = 1 - math.Min(1, std/mean)
	}
	coverage := math.Min(1, float64(readings)/(float64(a.cfg.MinReadings)*a.cfg.CoverageFactor))

	return int(math.Round(100 * (a.cfg.ConsistencyWeight*consistency + a.cfg.CoverageWeight*coverage)))
}
