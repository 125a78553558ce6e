// Package session aggregates per-frame vital readings over a measurement
// session into a single confidence-scored report.
package session

import (
	"time"
)

// Measurement is one reading as produced by the estimators.
type Measurement struct {
	HeartRate     float64
	BloodPressure string // "sys/dia", or a sentinel when unknown
	HRV           float64
	BloodGlucose  float64
}

// Reading is a stored, timestamped measurement.
type Reading struct {
	Measurement
	Timestamp time.Time
}

// Clock returns the current time.
type Clock func() time.Time

// Aggregator collects readings for one session. It is not safe for
// concurrent use.
type Aggregator struct {
	cfg      Config
	now      Clock
	readings []Reading
	last     time.Time
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock replaces the wall clock used for debouncing and timestamps.
func WithClock(c Clock) Option {
	return func(a *Aggregator) { a.now = c }
}

// NewAggregator creates an empty aggregator.
func NewAggregator(cfg Config, opts ...Option) *Aggregator {
	a := &Aggregator{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}

	return a
}

// AddReading stores m unless the previous accepted reading is less than
// MeasurementInterval old. HRV and glucose are clamped to their
// plausibility bounds. It reports whether m was stored.
func (a *Aggregator) AddReading(m Measurement) bool {
	now := a.now()
	if !a.last.IsZero() && now.Sub(a.last) < a.cfg.MeasurementInterval {
		return false
	}

	m.HRV = a.cfg.HRVBounds.Clamp(m.HRV)
	m.BloodGlucose = a.cfg.GlucoseBounds.Clamp(m.BloodGlucose)
	a.readings = append(a.readings, Reading{Measurement: m, Timestamp: now})
	a.last = now

	return true
}

// Clear drops all readings and the debounce timestamp.
func (a *Aggregator) Clear() {
	a.readings = nil
	a.last = time.Time{}
}

// Len returns the number of stored readings.
func (a *Aggregator) Len() int {
	return len(a.readings)
}

// Readings returns a copy of the stored readings, oldest first.
func (a *Aggregator) Readings() []Reading {
	return append([]Reading(nil), a.readings...)
}
