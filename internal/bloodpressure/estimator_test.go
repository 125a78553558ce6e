package bloodpressure_test

import (
	"image"
	"image/color"
	"math"
	"math/rand"
	"testing"
	"time"

	"codeberg.org/mutker/camvitals/internal/bloodpressure"
	"codeberg.org/mutker/camvitals/internal/errors"
	"codeberg.org/mutker/camvitals/internal/face"
	"codeberg.org/mutker/camvitals/internal/signal"
	"codeberg.org/mutker/camvitals/internal/simulate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(n int, period float64) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = math.Sin(2 * math.Pi * float64(i) / period)
	}

	return x
}

func newVideo(bpm float64, seed int64) (*simulate.Video, *face.Detection) {
	cfg := simulate.DefaultConfig()
	cfg.HeartRate = bpm
	cfg.Seed = seed
	cfg.Duration = 0

	return simulate.NewVideo(cfg, time.Unix(0, 0)), &face.Detection{Box: cfg.Box}
}

// frameTime spaces frames 40ms apart so every fifth frame clears a 200ms gate.
func frameTime(i int) time.Time {
	return time.Unix(0, 0).Add(time.Duration(i) * 40 * time.Millisecond)
}

func TestSignalQualityPrefersPeriodicSignals(t *testing.T) {
	q := bloodpressure.DefaultConfig().Quality

	periodic := bloodpressure.SignalQuality(sine(60, 25), 30, q)
	assert.Greater(t, periodic, 0.9)

	rng := rand.New(rand.NewSource(3))
	noise := make([]float64, 60)
	for i := range noise {
		noise[i] = rng.NormFloat64()
	}
	assert.Less(t, bloodpressure.SignalQuality(noise, 30, q), q.MinQuality)

	assert.Zero(t, bloodpressure.SignalQuality(make([]float64, 60), 30, q))
	assert.Zero(t, bloodpressure.SignalQuality([]float64{1, 2}, 30, q))
}

func TestExtractFeaturesFromSine(t *testing.T) {
	cfg := bloodpressure.DefaultConfig()
	x := sine(60, 25)
	peaks, valleys := signal.FindExtrema(x, cfg.Peaks)

	f, err := bloodpressure.ExtractFeatures(x, peaks, valleys, cfg)
	require.NoError(t, err)
	assert.InDelta(t, 25.0/30, f.PulseWidth, 1.0/30)
	assert.InDelta(t, 12.5/30, f.TransitTime, 1.0/30)
	assert.InDelta(t, 1, f.AugmentationIndex, 0.05)
	assert.Greater(t, f.SystolicPeak, 0.9)
	assert.Less(t, f.DiastolicPeak, -0.9)
}

func TestExtractFeaturesRejections(t *testing.T) {
	cfg := bloodpressure.DefaultConfig()

	_, err := bloodpressure.ExtractFeatures(sine(60, 25), []int{6}, []int{18, 43}, cfg)
	assert.True(t, errors.HasCode(err, errors.ErrInsufficientPeaks))

	// 11-sample period is a 0.37s pulse width
	x := sine(60, 11)
	peaks, valleys := signal.FindExtrema(x, signal.PeakConfig{Threshold: 0.3, Neighbors: 2, MinDistance: 3})
	_, err = bloodpressure.ExtractFeatures(x, peaks, valleys, cfg)
	assert.True(t, errors.HasCode(err, errors.ErrFeatureRange))
}

func TestEstimatorReportsSentinelUntilFirstEstimate(t *testing.T) {
	est := bloodpressure.NewEstimator(bloodpressure.DefaultConfig())
	assert.Equal(t, "--", est.Estimate().String())

	video, det := newVideo(72, 1)
	res := est.Update(video.Render(), det, frameTime(0))
	assert.Equal(t, bloodpressure.StatusDegraded, res.Status)
	assert.Equal(t, errors.ErrBufferFilling, res.Reason.Code())
	assert.Equal(t, "--", res.String())
}

func TestEstimatorConvergesOnSimulatedPulse(t *testing.T) {
	video, det := newVideo(72, 5)
	est := bloodpressure.NewEstimator(bloodpressure.DefaultConfig())

	var ok int
	for i := 0; i < 300; i++ {
		res := est.Update(video.Render(), det, frameTime(i))
		if res.Status == bloodpressure.StatusOK {
			ok++
			assertWithinLimits(t, res.Pressure)
			assert.GreaterOrEqual(t, res.Quality, 0.45)
		}
	}

	assert.Positive(t, ok)
	assert.True(t, est.Estimate().Valid())
	assert.NotEqual(t, "--", est.Estimate().String())
}

func TestEstimationIsRateLimited(t *testing.T) {
	video, det := newVideo(72, 6)
	cfg := bloodpressure.DefaultConfig()
	st := bloodpressure.NewState(cfg)

	var attempts []time.Time
	for i := 0; i < 120; i++ {
		ts := frameTime(i)
		var res bloodpressure.Result
		st, res = bloodpressure.Step(cfg, st, bloodpressure.Input{Frame: video.Render(), Detection: det, Time: ts})

		if res.Status == bloodpressure.StatusDegraded && res.Reason.Code() == errors.ErrBufferFilling {
			continue
		}
		if res.Status == bloodpressure.StatusDegraded && res.Reason.Code() == errors.ErrRateLimited {
			assert.Equal(t, st.Estimate, res.Pressure)
			continue
		}
		attempts = append(attempts, ts)
	}

	require.NotEmpty(t, attempts)
	for i := 1; i < len(attempts); i++ {
		assert.GreaterOrEqual(t, attempts[i].Sub(attempts[i-1]), cfg.MinInterval)
	}
	// frames keep being buffered while the gate is closed
	assert.Equal(t, cfg.WindowSize, st.Buffer.Len())
}

func TestGatedFramesAreStillSampled(t *testing.T) {
	video, det := newVideo(72, 6)
	cfg := bloodpressure.DefaultConfig()
	st := bloodpressure.NewState(cfg)

	i := 0
	for ; i < 120; i++ {
		var res bloodpressure.Result
		st, res = bloodpressure.Step(cfg, st, bloodpressure.Input{Frame: video.Render(), Detection: det, Time: frameTime(i)})
		if res.Status == bloodpressure.StatusOK || res.Reason.Code() != errors.ErrBufferFilling {
			break
		}
	}
	require.Less(t, i, 120)

	// the next frame lands 40ms after the attempt, inside the gate
	before := st.Buffer.Values()
	next, res := bloodpressure.Step(cfg, st, bloodpressure.Input{Frame: video.Render(), Detection: det, Time: frameTime(i + 1)})
	require.Equal(t, bloodpressure.StatusDegraded, res.Status)
	assert.Equal(t, errors.ErrRateLimited, res.Reason.Code())
	assert.NotEqual(t, before, next.Buffer.Values())
	assert.Equal(t, len(before)+1, next.Buffer.Len())
}

func TestEstimateStaysInRangeAcrossRates(t *testing.T) {
	video, det := newVideo(72, 8)
	est := bloodpressure.NewEstimator(bloodpressure.DefaultConfig())
	rng := rand.New(rand.NewSource(8))

	for i := 0; i < 2000; i++ {
		if i%200 == 0 {
			video.SetHeartRate(40 + rng.Float64()*110)
		}
		var d *face.Detection
		if rng.Intn(10) > 0 {
			d = det
		}
		res := est.Update(video.Render(), d, frameTime(i))
		if res.Pressure.Valid() {
			assertWithinLimits(t, res.Pressure)
		}
	}
}

func TestMissingDetectionHoldsEstimate(t *testing.T) {
	video, det := newVideo(72, 9)
	est := bloodpressure.NewEstimator(bloodpressure.DefaultConfig())
	for i := 0; i < 200; i++ {
		est.Update(video.Render(), det, frameTime(i))
	}
	before := est.State()
	require.True(t, before.Estimate.Valid())

	for i := 200; i < 210; i++ {
		res := est.Update(video.Render(), nil, frameTime(i))
		assert.Equal(t, errors.ErrNoDetection, res.Reason.Code())
		assert.Equal(t, before.Estimate, res.Pressure)
	}
	assert.Equal(t, before.Buffer.Values(), est.State().Buffer.Values())
}

type panicImage struct{}

func (panicImage) ColorModel() color.Model { return color.RGBAModel }
func (panicImage) Bounds() image.Rectangle { return image.Rect(0, 0, 160, 120) }
func (panicImage) At(int, int) color.Color { panic("decoder fault") }

func TestStepRecoversFromPanics(t *testing.T) {
	cfg := bloodpressure.DefaultConfig()
	_, det := newVideo(72, 1)
	st := bloodpressure.NewState(cfg)

	next, res := bloodpressure.Step(cfg, st, bloodpressure.Input{Frame: panicImage{}, Detection: det, Time: frameTime(0)})
	require.Equal(t, bloodpressure.StatusDegraded, res.Status)
	assert.Equal(t, errors.ErrInternal, res.Reason.Code())
	assert.Equal(t, "--", res.String())
	assert.Zero(t, next.Buffer.Len())
}

func TestResetAndValidate(t *testing.T) {
	cfg := bloodpressure.DefaultConfig()
	require.NoError(t, cfg.Validate())

	video, det := newVideo(72, 4)
	est := bloodpressure.NewEstimator(cfg)
	for i := 0; i < 150; i++ {
		est.Update(video.Render(), det, frameTime(i))
	}
	est.Reset()
	assert.False(t, est.Estimate().Valid())
	assert.Zero(t, est.State().Buffer.Len())

	cfg.Limits.PulsePressure = signal.Range{Min: 35, Max: 80}
	assert.True(t, errors.HasCode(cfg.Validate(), errors.ErrInvalidConfig))
}
