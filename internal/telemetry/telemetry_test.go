package telemetry_test

import (
	"context"
	"testing"

	"codeberg.org/mutker/camvitals/internal/errors"
	"codeberg.org/mutker/camvitals/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// value returns the sample of family name whose labels include all of
// labels, or -1 if none matches.
func value(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for k, v := range labels {
				found := false
				for _, lp := range m.GetLabel() {
					if lp.GetName() == k && lp.GetValue() == v {
						found = true
					}
				}
				if !found {
					continue metrics
				}
			}
			if m.GetCounter() != nil {
				return m.GetCounter().GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}

	return -1
}

func enabled(t *testing.T) (telemetry.Collector, *prometheus.Registry) {
	t.Helper()

	reg := prometheus.NewRegistry()
	cfg := telemetry.DefaultConfig()
	cfg.Enabled = true
	c, err := telemetry.NewService(cfg, reg)
	require.NoError(t, err)

	return c, reg
}

func TestRecordCountsFramesAndReasons(t *testing.T) {
	c, reg := enabled(t)
	ctx := context.Background()

	require.NoError(t, c.Record(ctx, &telemetry.Snapshot{
		HeartRate:     telemetry.EstimatorMetrics{OK: true, HeartRate: 72.4, HRV: 41, Quality: 0.8},
		BloodPressure: telemetry.PressureMetrics{Reason: errors.ErrRateLimited, Systolic: 120, Diastolic: 80},
		Reading:       telemetry.ReadingMetrics{Offered: true, Accepted: true},
	}))
	require.NoError(t, c.Record(ctx, &telemetry.Snapshot{
		HeartRate:     telemetry.EstimatorMetrics{Reason: errors.ErrNoDetection, HeartRate: 72.4, HRV: 41},
		BloodPressure: telemetry.PressureMetrics{Reason: errors.ErrNoDetection},
		Reading:       telemetry.ReadingMetrics{Offered: true},
	}))

	assert.Equal(t, 1.0, value(t, reg, "camvitals_frames_total", map[string]string{"estimator": "heart_rate", "status": "ok"}))
	assert.Equal(t, 1.0, value(t, reg, "camvitals_frames_total", map[string]string{"estimator": "heart_rate", "status": "degraded"}))
	assert.Equal(t, 2.0, value(t, reg, "camvitals_frames_total", map[string]string{"estimator": "blood_pressure", "status": "degraded"}))
	assert.Equal(t, 1.0, value(t, reg, "camvitals_degraded_total", map[string]string{"estimator": "blood_pressure", "reason": "rate_limited"}))
	assert.Equal(t, 1.0, value(t, reg, "camvitals_degraded_total", map[string]string{"estimator": "heart_rate", "reason": "no_detection"}))
	assert.Equal(t, 1.0, value(t, reg, "camvitals_readings_total", map[string]string{"result": "accepted"}))
	assert.Equal(t, 1.0, value(t, reg, "camvitals_readings_total", map[string]string{"result": "debounced"}))

	assert.Equal(t, 72.4, value(t, reg, "camvitals_heart_rate_bpm", nil))
	assert.Equal(t, 41.0, value(t, reg, "camvitals_hrv_ms", nil))
	assert.Equal(t, 120.0, value(t, reg, "camvitals_blood_pressure_mmhg", map[string]string{"kind": "systolic"}))
	assert.Equal(t, 0.8, value(t, reg, "camvitals_signal_quality", map[string]string{"estimator": "heart_rate"}))

	count, err := testutil.GatherAndCount(reg, "camvitals_readings_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRecordValidation(t *testing.T) {
	c, _ := enabled(t)

	err := c.Record(context.Background(), nil)
	assert.True(t, errors.HasCode(err, telemetry.ErrInvalidSample))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = c.Record(ctx, &telemetry.Snapshot{})
	assert.True(t, errors.HasCode(err, errors.ErrTimeout))
}

func TestDuplicateRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := telemetry.DefaultConfig()
	cfg.Enabled = true

	_, err := telemetry.NewService(cfg, reg)
	require.NoError(t, err)

	_, err = telemetry.NewService(cfg, reg)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, telemetry.ErrRegistration))
}

func TestDisabledCollectorIsNoop(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := telemetry.NewService(telemetry.DefaultConfig(), reg)
	require.NoError(t, err)

	assert.NoError(t, c.Record(context.Background(), &telemetry.Snapshot{}))
	assert.NoError(t, c.Close())

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Empty(t, families)
}
