package bloodpressure

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// NoEstimate is the string form of a pressure before any estimate exists.
const NoEstimate = "--"

// Pressure is an emitted systolic/diastolic estimate in mmHg.
type Pressure struct {
	Systolic  int
	Diastolic int
}

// Valid reports whether p holds an estimate.
func (p Pressure) Valid() bool {
	return p.Systolic > 0 && p.Diastolic > 0
}

// PulsePressure returns systolic minus diastolic.
func (p Pressure) PulsePressure() int {
	return p.Systolic - p.Diastolic
}

func (p Pressure) String() string {
	if !p.Valid() {
		return NoEstimate
	}

	return fmt.Sprintf("%d/%d", p.Systolic, p.Diastolic)
}

// Parse reads a "sys/dia" string. Sentinels and malformed input report
// false.
func Parse(s string) (Pressure, bool) {
	sys, dia, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return Pressure{}, false
	}
	a, err := strconv.Atoi(sys)
	if err != nil {
		return Pressure{}, false
	}
	b, err := strconv.Atoi(dia)
	if err != nil {
		return Pressure{}, false
	}

	p := Pressure{Systolic: a, Diastolic: b}

	return p, p.Valid()
}

// Predict maps features to raw systolic and diastolic values.
func (m Model) Predict(f Features) (float64, float64) {
	sys := m.BaselineSystolic +
		m.SystolicTransitTime*(m.ReferenceTransitTime-f.TransitTime) +
		m.SystolicPulseWidth*(m.ReferencePulseWidth-f.PulseWidth) +
		m.SystolicAugmentation*(f.AugmentationIndex-m.ReferenceAugmentation)
	dia := m.BaselineDiastolic +
		m.DiastolicTransitTime*(m.ReferenceTransitTime-f.TransitTime) +
		m.DiastolicPulseWidth*(m.ReferencePulseWidth-f.PulseWidth) +
		m.DiastolicAugmentation*(f.AugmentationIndex-m.ReferenceAugmentation)

	return sys, dia
}

// Constrain clamps both values, moves them symmetrically until the pulse
// pressure is in range, then shifts the pair into the diastolic and
// systolic ranges without changing its pulse pressure.
func Constrain(sys, dia float64, l Limits) (float64, float64) {
	sys = l.Systolic.Clamp(sys)
	dia = l.Diastolic.Clamp(dia)

	switch pp := sys - dia; {
	case pp < l.PulsePressure.Min:
		adj := (l.PulsePressure.Min - pp) / 2
		sys, dia = sys+adj, dia-adj
	case pp > l.PulsePressure.Max:
		adj := (pp - l.PulsePressure.Max) / 2
		sys, dia = sys-adj, dia+adj
	}

	if shift := l.Diastolic.Clamp(dia) - dia; shift != 0 {
		sys, dia = sys+shift, dia+shift
	}
	if shift := l.Systolic.Clamp(sys) - sys; shift != 0 {
		sys, dia = sys+shift, dia+shift
	}

	return l.Systolic.Clamp(sys), l.Diastolic.Clamp(dia)
}

// Finalize constrains and rounds a raw pair. Rounding never pushes the
// pulse pressure out of range.
func Finalize(sys, dia float64, l Limits) Pressure {
	sys, dia = Constrain(sys, dia, l)
	p := Pressure{
		Systolic:  int(math.Round(sys)),
		Diastolic: int(math.Round(dia)),
	}

	switch pp := float64(p.PulsePressure()); {
	case pp < l.PulsePressure.Min:
		p.Systolic = p.Diastolic + int(math.Ceil(l.PulsePressure.Min))
	case pp > l.PulsePressure.Max:
		p.Systolic = p.Diastolic + int(math.Floor(l.PulsePressure.Max))
	}

	return p
}

// Smooth moves prev toward next only when either component changes by more
// than the threshold, blending in proportion to the larger change.
func Smooth(prev, next Pressure, cfg Config) Pressure {
	if !prev.Valid() {
		return next
	}

	ds := float64(next.Systolic - prev.Systolic)
	dd := float64(next.Diastolic - prev.Diastolic)
	change := max(math.Abs(ds), math.Abs(dd))
	if change <= cfg.SmoothThreshold {
		return prev
	}

	f := cfg.Blend.Clamp(change / cfg.BlendScale)

	return Finalize(float64(prev.Systolic)+f*ds, float64(prev.Diastolic)+f*dd, cfg.Limits)
}
