package telemetry

import (
	"context"
	"time"

	"codeberg.org/mutker/camvitals/internal/errors"
)

// Collector records per-frame pipeline outcomes.
type Collector interface {
	Record(ctx context.Context, snapshot *Snapshot) error
	Close() error
}

// Snapshot is the outcome of one processed frame.
type Snapshot struct {
	Timestamp     time.Time
	HeartRate     EstimatorMetrics
	BloodPressure PressureMetrics
	Reading       ReadingMetrics
}

// EstimatorMetrics is a heart-rate update outcome. Reason is empty for OK
// updates.
type EstimatorMetrics struct {
	OK        bool
	Reason    errors.ErrorCode
	HeartRate float64
	HRV       float64
	Quality   float64
}

type PressureMetrics struct {
	OK        bool
	Reason    errors.ErrorCode
	Systolic  int
	Diastolic int
	Quality   float64
}

// ReadingMetrics reports whether a reading was offered to the session
// aggregator and whether it was kept.
type ReadingMetrics struct {
	Offered  bool
	Accepted bool
}
