// Package pipeline runs the per-frame vital-sign pipeline: face detection,
// both estimators and session aggregation.
package pipeline

import (
	"context"
	"image"
	"io"
	"time"

	"codeberg.org/mutker/camvitals/internal/bloodpressure"
	"codeberg.org/mutker/camvitals/internal/errors"
	"codeberg.org/mutker/camvitals/internal/face"
	"codeberg.org/mutker/camvitals/internal/heartrate"
	"codeberg.org/mutker/camvitals/internal/history"
	"codeberg.org/mutker/camvitals/internal/logger"
	"codeberg.org/mutker/camvitals/internal/session"
	"codeberg.org/mutker/camvitals/internal/telemetry"
)

// Update is the outcome of one frame.
type Update struct {
	Time          time.Time
	Detected      bool
	HeartRate     heartrate.Result
	BloodPressure bloodpressure.Result
	// Offered is set when the frame produced a reading for the session;
	// Accepted when the aggregator kept it.
	Offered  bool
	Accepted bool
}

// Pipeline owns one measurement session. Frames must be processed from a
// single goroutine.
type Pipeline struct {
	cfg       Config
	detector  face.Detector
	hr        *heartrate.Estimator
	bp        *bloodpressure.Estimator
	agg       *session.Aggregator
	telemetry telemetry.Collector
	store     history.Store
	log       logger.Logger
	hrOpts    []heartrate.Option

	sessionID string
	started   time.Time
	now       time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

func WithTelemetry(c telemetry.Collector) Option {
	return func(p *Pipeline) { p.telemetry = c }
}

func WithHistory(s history.Store) Option {
	return func(p *Pipeline) { p.store = s }
}

func WithLogger(log logger.Logger) Option {
	return func(p *Pipeline) { p.log = log }
}

// WithJitter overrides the heart-rate jitter source; nil disables it.
func WithJitter(j heartrate.JitterFunc) Option {
	return func(p *Pipeline) { p.hrOpts = append(p.hrOpts, heartrate.WithJitter(j)) }
}

// New creates a pipeline and starts its first session.
func New(cfg Config, detector face.Detector, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if detector == nil {
		return nil, errors.New().WithMessage(errors.ErrInvalidArgument, "nil face detector")
	}

	p := &Pipeline{
		cfg:       cfg,
		detector:  detector,
		telemetry: telemetry.Noop(),
		store:     history.Noop(),
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.hr = heartrate.NewEstimator(cfg.HeartRate, append([]heartrate.Option{heartrate.WithLogger(p.log.With("heart_rate"))}, p.hrOpts...)...)
	p.bp = bloodpressure.NewEstimator(cfg.BloodPressure, bloodpressure.WithLogger(p.log.With("blood_pressure")))
	// the aggregator debounces on frame time, not wall time
	p.agg = session.NewAggregator(cfg.Session, session.WithClock(func() time.Time { return p.now }))
	p.NewSession()

	return p, nil
}

// NewSession discards all estimator and aggregator state and assigns a new
// session id.
func (p *Pipeline) NewSession() {
	p.hr.Reset()
	p.bp.Reset()
	p.agg.Clear()
	p.sessionID = history.NewSessionID()
	p.started = time.Time{}

	p.log.Debug().
		Str("session_id", p.sessionID).
		Dur("window", p.cfg.HeartRate.Window()).
		Msg("Started measurement session")
}

// SessionID returns the current session's id.
func (p *Pipeline) SessionID() string {
	return p.sessionID
}

// ProcessFrame runs one frame captured at ts through the pipeline. Detector
// failures count as misses; only a cancelled ctx returns an error.
func (p *Pipeline) ProcessFrame(ctx context.Context, frame image.Image, ts time.Time) (Update, error) {
	if err := ctx.Err(); err != nil {
		return Update{}, err
	}
	if p.started.IsZero() {
		p.started = ts
	}
	p.now = ts

	det := p.detect(ctx, frame)
	if err := ctx.Err(); err != nil {
		return Update{}, err
	}

	u := Update{
		Time:          ts,
		Detected:      det != nil,
		HeartRate:     p.hr.Update(frame, det),
		BloodPressure: p.bp.Update(frame, det, ts),
	}

	if u.HeartRate.Status == heartrate.StatusOK && u.HeartRate.HRV > 0 {
		u.Offered = true
		u.Accepted = p.agg.AddReading(session.Measurement{
			HeartRate:     u.HeartRate.HeartRate,
			BloodPressure: u.BloodPressure.Pressure.String(),
			HRV:           u.HeartRate.HRV,
			BloodGlucose:  p.cfg.Session.ReferenceGlucose,
		})
		if u.Accepted {
			p.persistLastReading(ctx)
		}
	}

	if err := p.telemetry.Record(ctx, snapshot(u)); err != nil {
		p.log.Warn().Err(err).Msg("Failed to record telemetry")
	}

	return u, nil
}

func (p *Pipeline) detect(ctx context.Context, frame image.Image) *face.Detection {
	if frame == nil {
		return nil
	}
	if p.cfg.DetectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.DetectTimeout)
		defer cancel()
	}

	det, err := p.detector.Detect(ctx, frame)
	if err != nil {
		p.log.Warn().
			Err(err).
			Str("error_code", string(errors.ErrDetectFailed)).
			Msg("Face detection failed, treating frame as a miss")
		return nil
	}

	return det
}

func (p *Pipeline) persistLastReading(ctx context.Context) {
	readings := p.agg.Readings()
	last := readings[len(readings)-1]

	if err := p.store.RecordReading(ctx, p.sessionID, last); err != nil {
		p.log.Warn().Err(err).Msg("Failed to persist reading")
		return
	}

	p.log.Debug().
		Float64("heart_rate", last.HeartRate).
		Float64("hrv", last.HRV).
		Str("blood_pressure", last.BloodPressure).
		Int("readings", len(readings)).
		Msg("Reading accepted")
}

// Report returns the current session report.
func (p *Pipeline) Report() session.Report {
	return p.agg.FinalReport()
}

// Finish computes the session report and saves it to history.
func (p *Pipeline) Finish(ctx context.Context) (*history.SessionRecord, error) {
	record := &history.SessionRecord{
		ID:         p.sessionID,
		StartedAt:  p.started,
		FinishedAt: p.now,
		Report:     p.agg.FinalReport(),
	}

	if err := p.store.SaveReport(ctx, record); err != nil {
		return record, errors.New().Wrap(errors.ErrOperationFailed, err)
	}

	return record, nil
}

// Run processes frames from src until it is exhausted or ctx is done and
// returns the session report. A cancelled ctx still yields the report of
// the frames seen so far, together with ctx's error.
func (p *Pipeline) Run(ctx context.Context, src Source) (session.Report, error) {
	var frames int

	for {
		frame, err := src.Next(ctx)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			p.log.Info().Int("frames", frames).Msg("Frame source exhausted")
			return p.Report(), nil
		case ctx.Err() != nil:
			return p.Report(), ctx.Err()
		case errors.HasCode(err, errors.ErrFrameDecode):
			// an undecodable frame is processed as a missing one
			p.log.Warn().Err(err).Msg("Skipping undecodable frame")
		default:
			return p.Report(), errors.New().Wrap(errors.ErrSourceFailure, err)
		}

		if _, err := p.ProcessFrame(ctx, frame.Image, frame.Time); err != nil {
			return p.Report(), err
		}
		frames++
	}
}

func snapshot(u Update) *telemetry.Snapshot {
	s := &telemetry.Snapshot{
		Timestamp: u.Time,
		HeartRate: telemetry.EstimatorMetrics{
			OK:        u.HeartRate.Status == heartrate.StatusOK,
			HeartRate: u.HeartRate.HeartRate,
			HRV:       u.HeartRate.HRV,
			Quality:   u.HeartRate.Quality,
		},
		BloodPressure: telemetry.PressureMetrics{
			OK:        u.BloodPressure.Status == bloodpressure.StatusOK,
			Systolic:  u.BloodPressure.Pressure.Systolic,
			Diastolic: u.BloodPressure.Pressure.Diastolic,
			Quality:   u.BloodPressure.Quality,
		},
		Reading: telemetry.ReadingMetrics{Offered: u.Offered, Accepted: u.Accepted},
	}
	if u.HeartRate.Reason != nil {
		s.HeartRate.Reason = u.HeartRate.Reason.Code()
	}
	if u.BloodPressure.Reason != nil {
		s.BloodPressure.Reason = u.BloodPressure.Reason.Code()
	}

	return s
}
