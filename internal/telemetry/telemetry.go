// Package telemetry exposes pipeline outcomes as Prometheus metrics.
package telemetry

import (
	"context"

	"codeberg.org/mutker/camvitals/internal/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	heartRateLabel     = "heart_rate"
	bloodPressureLabel = "blood_pressure"
)

type service struct {
	frames    *prometheus.CounterVec
	degraded  *prometheus.CounterVec
	readings  *prometheus.CounterVec
	heartRate prometheus.Gauge
	hrv       prometheus.Gauge
	pressure  *prometheus.GaugeVec
	quality   *prometheus.GaugeVec
}

type noopCollector struct{}

// NewService registers the pipeline metrics on reg. A disabled config
// yields a no-op collector.
func NewService(cfg Config, reg prometheus.Registerer) (c Collector, err error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}
	if !cfg.Enabled {
		return Noop(), nil
	}

	// promauto panics on duplicate registration
	defer func() {
		if r := recover(); r != nil {
			c, err = nil, errFactory.WithData(ErrRegistration, r)
		}
	}()

	factory := promauto.With(reg)
	ns := cfg.Namespace

	return &service{
		frames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "frames_total",
			Help:      "Frames processed per estimator by update status",
		}, []string{"estimator", "status"}),
		degraded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "degraded_total",
			Help:      "Degraded estimator updates by reason",
		}, []string{"estimator", "reason"}),
		readings: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "readings_total",
			Help:      "Readings offered to the session aggregator",
		}, []string{"result"}),
		heartRate: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "heart_rate_bpm",
			Help:      "Last emitted heart rate",
		}),
		hrv: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "hrv_ms",
			Help:      "Last emitted heart-rate variability score",
		}),
		pressure: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "blood_pressure_mmhg",
			Help:      "Last emitted blood pressure estimate",
		}, []string{"kind"}),
		quality: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "signal_quality",
			Help:      "Signal quality of the last update in [0,1]",
		}, []string{"estimator"}),
	}, nil
}

func (s *service) Record(ctx context.Context, snapshot *Snapshot) error {
	errFactory := errors.New()

	if snapshot == nil {
		return errFactory.New(ErrInvalidSample)
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
	}

	hr := snapshot.HeartRate
	s.observe(heartRateLabel, hr.OK, hr.Reason, hr.Quality)
	if hr.HeartRate > 0 {
		s.heartRate.Set(hr.HeartRate)
		s.hrv.Set(hr.HRV)
	}

	bp := snapshot.BloodPressure
	s.observe(bloodPressureLabel, bp.OK, bp.Reason, bp.Quality)
	if bp.Systolic > 0 && bp.Diastolic > 0 {
		s.pressure.WithLabelValues("systolic").Set(float64(bp.Systolic))
		s.pressure.WithLabelValues("diastolic").Set(float64(bp.Diastolic))
	}

	if snapshot.Reading.Offered {
		result := "debounced"
		if snapshot.Reading.Accepted {
			result = "accepted"
		}
		s.readings.WithLabelValues(result).Inc()
	}

	return nil
}

func (s *service) observe(estimator string, ok bool, reason errors.ErrorCode, quality float64) {
	if ok {
		s.frames.WithLabelValues(estimator, "ok").Inc()
		s.quality.WithLabelValues(estimator).Set(quality)
		return
	}

	s.frames.WithLabelValues(estimator, "degraded").Inc()
	if reason != "" {
		s.degraded.WithLabelValues(estimator, string(reason)).Inc()
	}
}

func (s *service) Close() error {
	return nil
}

// Noop returns a collector that discards everything.
func Noop() Collector { return noopCollector{} }

func (noopCollector) Record(context.Context, *Snapshot) error { return nil }
func (noopCollector) Close() error                            { return nil }
