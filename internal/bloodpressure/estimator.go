// Package bloodpressure estimates systolic and diastolic pressure from
// pulse shape features of a red/green weighted facial PPG signal. The model
// is heuristic and makes no clinical claim. Every frame is sampled into the
// buffer; only estimation is gated by MinInterval.
package bloodpressure

import (
	"image"
	"time"

	"codeberg.org/mutker/camvitals/internal/errors"
	"codeberg.org/mutker/camvitals/internal/face"
	"codeberg.org/mutker/camvitals/internal/logger"
	"codeberg.org/mutker/camvitals/internal/signal"
)

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
	Buffer     signal.Ring
	LastSignal float64
	Estimate   Pressure
	LastUpdate time.Time
}

// NewState returns an empty state sized for cfg.
func NewState(cfg Config) State {
	return State{Buffer: signal.NewRing(cfg.WindowSize)}
}

func (s State) clone() State {
	c := s
	c.Buffer = s.Buffer.Clone()

	return c
}

// Input is one frame, its detection (possibly nil) and its capture time.
type Input struct {
	Frame     image.Image
	Detection *face.Detection
	Time      time.Time
}

// Result is the per-frame output. A degraded result carries the last
// estimate, which is invalid until the first successful update.
type Result struct {
	Status   Status
	Reason   errors.Error
	Pressure Pressure
	Features Features
	Quality  float64
}

func (r Result) String() string {
	return r.Pressure.String()
}

// Step advances st by one frame. Every frame with a usable signal is
// buffered; feature estimation runs at most once per MinInterval of input
// time. It never panics; a recovered panic leaves st unchanged.
func Step(cfg Config, st State, in Input) (next State, res Result) {
	errFactory := errors.New()

	defer func() {
		if r := recover(); r != nil {
			next = st
			res = Result{
				Status:   StatusDegraded,
				Reason:   errFactory.WithData(errors.ErrInternal, r),
				Pressure: st.Estimate,
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
		return next, next.degraded(errFactory.WithData(errors.ErrBufferFilling, next.Buffer.Len()))
	}

	if !st.LastUpdate.IsZero() && in.Time.Sub(st.LastUpdate) < cfg.MinInterval {
		return next, next.degraded(errFactory.New(errors.ErrRateLimited))
	}
	next.LastUpdate = in.Time

	x := signal.Condition(next.Buffer.Values(), cfg.Filter)
	peaks, valleys := signal.FindExtrema(x, cfg.Peaks)

	quality := SignalQuality(x, cfg.SampleRate, cfg.Quality)
	if len(peaks) >= 2 && len(valleys) >= 2 && quality < cfg.Quality.MinQuality {
		res := next.degraded(errFactory.WithData(errors.ErrLowSignalQuality, quality))
		res.Quality = quality
		return next, res
	}

	features, err := ExtractFeatures(x, peaks, valleys, cfg)
	if err != nil {
		res := next.degraded(err)
		res.Quality = quality
		res.Features = features
		return next, res
	}

	sys, dia := cfg.Model.Predict(features)
	next.Estimate = Smooth(st.Estimate, Finalize(sys, dia, cfg.Limits), cfg)

	return next, Result{
		Status:   StatusOK,
		Pressure: next.Estimate,
		Features: features,
		Quality:  quality,
	}
}

func (s State) degraded(reason error) Result {
	coded, ok := reason.(errors.Error)
	if !ok {
		coded = errors.New().Wrap(errors.ErrInternal, reason)
	}

	return Result{
		Status:   StatusDegraded,
		Reason:   coded,
		Pressure: s.Estimate,
	}
}

// Estimator owns one session's blood-pressure state. It is not safe for
// concurrent use.
type Estimator struct {
	cfg   Config
	state State
	log   logger.Logger
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithLogger sets the logger used for degraded updates.
func WithLogger(log logger.Logger) Option {
	return func(e *Estimator) { e.log = log }
}

// NewEstimator creates an estimator.
func NewEstimator(cfg Config, opts ...Option) *Estimator {
	e := &Estimator{
		cfg:   cfg,
		state: NewState(cfg),
		log:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Update processes one frame captured at ts.
func (e *Estimator) Update(frame image.Image, det *face.Detection, ts time.Time) Result {
	var res Result
	e.state, res = Step(e.cfg, e.state, Input{Frame: frame, Detection: det, Time: ts})

	if res.Status == StatusDegraded {
		if res.Reason.Code() == errors.ErrInternal {
			e.log.ErrorWithCode(res.Reason).Msg("Blood pressure update recovered")
		} else if res.Reason.Code() != errors.ErrRateLimited {
			e.log.Debug().
				Str("reason", string(res.Reason.Code())).
				Str("estimate", res.Pressure.String()).
				Float64("quality", res.Quality).
				Msg("Blood pressure update degraded")
		}
	}

	return res
}

// Estimate returns the current estimate, "--" before the first one.
func (e *Estimator) Estimate() Pressure {
	return e.state.Estimate
}

// State returns a copy of the current state.
func (e *Estimator) State() State {
	return e.state.clone()
}

// Reset discards all history, as at the start of a new session.
func (e *Estimator) Reset() {
	e.state = NewState(e.cfg)
}
