// Package heartrate estimates heart rate and HRV from the green-channel
// pulse signal of a forehead region.
package heartrate

import (
	"image"
	"math"
	"math/rand"
	"time"

	"codeberg.org/mutker/camvitals/internal/errors"
	"codeberg.org/mutker/camvitals/internal/face"
	"codeberg.org/mutker/camvitals/internal/logger"
	"codeberg.org/mutker/camvitals/internal/signal"
)

// Phase is the estimator's position in its session lifecycle.
type Phase int

const (
	// Collecting means the buffer is below the minimum fill.
	Collecting Phase = iota
	// Estimating means every update produces a candidate rate.
	Estimating
)

func (p Phase) String() string {
	if p == Estimating {
		return "estimating"
	}

	return "collecting"
}

// Status tags an update result.
type Status int

const (
	StatusOK Status = iota
	StatusDegraded
)

func (s Status) String() string {
	if s == StatusOK {
		return "ok"
	}

	return "degraded"
}

// State is everything the estimator carries between frames.
type State struct {
	Phase      Phase
	Buffer     signal.Ring
	Smoothing  signal.Ring
	History    signal.Ring
	LastSignal float64
	HeartRate  float64
	HRV        float64
}

// NewState returns an empty state sized for cfg.
func NewState(cfg Config) State {
	return State{
		Buffer:    signal.NewRing(cfg.WindowSize),
		Smoothing: signal.NewRing(cfg.SmoothingWindow),
		History:   signal.NewRing(cfg.HistorySize),
	}
}

func (s State) clone() State {
	c := s
	c.Buffer = s.Buffer.Clone()
	c.Smoothing = s.Smoothing.Clone()
	c.History = s.History.Clone()

	return c
}

// Input is one frame and its detection, which may be nil.
type Input struct {
	Frame     image.Image
	Detection *face.Detection
}

// Result is the per-frame output. A degraded result carries the last
// emitted values and the reason no fresh estimate was produced.
type Result struct {
	Status    Status
	Reason    errors.Error
	Phase     Phase
	HeartRate float64
	HRV       float64
	History   []float64
	Quality   float64
}

// JitterFunc returns a cosmetic offset in BPM added to each emitted rate.
type JitterFunc func() float64

// UniformJitter draws offsets uniformly from [-amplitude, amplitude].
func UniformJitter(rng *rand.Rand, amplitude float64) JitterFunc {
	return func() float64 {
		return (rng.Float64()*2 - 1) * amplitude
	}
}

// Step advances st by one frame. It never panics; a recovered panic yields
// a degraded result with the last heart rate, zero HRV and st unchanged.
func Step(cfg Config, st State, in Input, jitter JitterFunc) (next State, res Result) {
	errFactory := errors.New()

	defer func() {
		if r := recover(); r != nil {
			next = st
			res = Result{
				Status:    StatusDegraded,
				Reason:    errFactory.WithData(errors.ErrInternal, r),
				Phase:     st.Phase,
				HeartRate: st.HeartRate,
			}
		}
	}()

	next = st.clone()

	sample, err := signal.Extract(cfg.Extractor, in.Frame, in.Detection, st.LastSignal)
	if err != nil {
		return next, next.degraded(err)
	}
	next.LastSignal = sample.Value
	next.Buffer.Push(sample.Value)

	if next.Buffer.Fill() < cfg.MinFill {
		next.Phase = Collecting
		return next, next.degraded(errFactory.WithData(errors.ErrBufferFilling, next.Buffer.Len()))
	}
	next.Phase = Estimating

	x := signal.Condition(next.Buffer.Values(), cfg.Filter)
	peaks, _ := signal.FindExtrema(x, cfg.Peaks)
	bpm, ok := EstimateBPM(signal.Refine(x, peaks), cfg.SampleRate, cfg.ValidRange)
	if !ok {
		res := next.degraded(errFactory.WithData(errors.ErrInsufficientPeaks, len(peaks)))
		res.Quality = sample.Quality
		return next, res
	}

	next.HeartRate = next.emit(cfg, bpm, jitter)
	next.History.Push(next.HeartRate)
	if _, ok := Components(next.History.Values()); !ok {
		res := next.degraded(errFactory.WithData(errors.ErrInsufficientHistory, next.History.Len()))
		res.Quality = sample.Quality
		return next, res
	}
	next.HRV = HRV(next.History.Values(), cfg.HRV)

	return next, Result{
		Status:    StatusOK,
		Phase:     next.Phase,
		HeartRate: next.HeartRate,
		HRV:       next.HRV,
		History:   next.History.Values(),
		Quality:   sample.Quality,
	}
}

func (s State) degraded(reason error) Result {
	coded, ok := reason.(errors.Error)
	if !ok {
		coded = errors.New().Wrap(errors.ErrInternal, reason)
	}

	return Result{
		Status:    StatusDegraded,
		Reason:    coded,
		Phase:     s.Phase,
		HeartRate: s.HeartRate,
		HRV:       s.HRV,
		History:   s.History.Values(),
	}
}

// emit clamps and rate-limits a raw rate, smooths it and applies jitter.
// The returned value stays in the valid range and within MaxChange of the
// previous emitted value.
func (s *State) emit(cfg Config, bpm float64, jitter JitterFunc) float64 {
	limit := func(v float64) float64 {
		v = cfg.ValidRange.Clamp(v)
		if s.HeartRate > 0 {
			v = signal.Clamp(v, s.HeartRate-cfg.MaxChange, s.HeartRate+cfg.MaxChange)
		}
		return v
	}

	s.Smoothing.Push(limit(bpm))
	smoothed, _ := signal.MeanStdDev(s.Smoothing.Values())
	if jitter != nil {
		smoothed += jitter()
	}

	return math.Round(limit(smoothed)*10) / 10
}

// EstimateBPM converts gaps between consecutive peak positions, which may
// fall between samples, to rates. It drops gaps whose rate falls outside
// valid and returns the clamped rate of the median surviving gap.
func EstimateBPM(peaks []float64, sampleRate float64, valid signal.Range) (float64, bool) {
	var gaps []float64
	for _, gap := range signal.Gaps(peaks) {
		if gap <= 0 {
			continue
		}
		if valid.Contains(60 * sampleRate / gap) {
			gaps = append(gaps, gap)
		}
	}
	if len(gaps) == 0 {
		return 0, false
	}

	return valid.Clamp(60 * sampleRate / signal.Median(gaps)), true
}

// Estimator owns one session's heart-rate state. It is not safe for
// concurrent use.
type Estimator struct {
	cfg    Config
	state  State
	jitter JitterFunc
	log    logger.Logger
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithJitter replaces the jitter source; nil disables jitter.
func WithJitter(j JitterFunc) Option {
	return func(e *Estimator) { e.jitter = j }
}

// WithLogger sets the logger used for degraded updates.
func WithLogger(log logger.Logger) Option {
	return func(e *Estimator) { e.log = log }
}

// NewEstimator creates an estimator. Jitter follows cfg.Jitter unless
// overridden by WithJitter.
func NewEstimator(cfg Config, opts ...Option) *Estimator {
	e := &Estimator{
		cfg:   cfg,
		state: NewState(cfg),
		log:   logger.Nop(),
	}
	if cfg.Jitter {
		e.jitter = UniformJitter(rand.New(rand.NewSource(time.Now().UnixNano())), cfg.JitterAmplitude)
	}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Update processes one frame.
func (e *Estimator) Update(frame image.Image, det *face.Detection) Result {
	var res Result
	e.state, res = Step(e.cfg, e.state, Input{Frame: frame, Detection: det}, e.jitter)

	if res.Status == StatusDegraded {
		if res.Reason.Code() == errors.ErrInternal {
			e.log.ErrorWithCode(res.Reason).Msg("Heart rate update recovered")
		} else {
			e.log.Debug().
				Str("reason", string(res.Reason.Code())).
				Str("phase", res.Phase.String()).
				Float64("heart_rate", res.HeartRate).
				Msg("Heart rate update degraded")
		}
	}

	return res
}

// State returns a copy of the current state.
func (e *Estimator) State() State {
	return e.state.clone()
}

// Reset discards all history, as at the start of a new session.
func (e *Estimator) Reset() {
	e.state = NewState(e.cfg)
}
