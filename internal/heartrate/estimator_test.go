package heartrate_test

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"math/rand"
	"testing"
	"time"

	"codeberg.org/mutker/camvitals/internal/errors"
	"codeberg.org/mutker/camvitals/internal/face"
	"codeberg.org/mutker/camvitals/internal/heartrate"
	"codeberg.org/mutker/camvitals/internal/signal"
	"codeberg.org/mutker/camvitals/internal/simulate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scene struct {
	video *simulate.Video
	det   face.Detector
}

func newScene(t *testing.T, bpm float64, seed int64) scene {
	t.Helper()

	cfg := simulate.DefaultConfig()
	cfg.HeartRate = bpm
	cfg.Seed = seed
	cfg.Duration = 0
	v := simulate.NewVideo(cfg, time.Unix(0, 0))

	return scene{video: v, det: v.Detector()}
}

func (s scene) next(t *testing.T) (image.Image, *face.Detection) {
	t.Helper()

	frame, err := s.video.Next(context.Background())
	require.NoError(t, err)
	det, err := s.det.Detect(context.Background(), frame.Image)
	require.NoError(t, err)

	return frame.Image, det
}

func noJitter() heartrate.Config {
	cfg := heartrate.DefaultConfig()
	cfg.Jitter = false
	return cfg
}

func TestEstimateBPMFromSinePeaks(t *testing.T) {
	// period of 25 samples at 30 Hz is 72 BPM
	x := make([]float64, 120)
	for i := range x {
		x[i] = math.Sin(2 * math.Pi * float64(i) / 25)
	}
	cfg := heartrate.DefaultConfig()
	c := signal.Condition(x, cfg.Filter)
	peaks, _ := signal.FindExtrema(c, cfg.Peaks)

	bpm, ok := heartrate.EstimateBPM(signal.Refine(c, peaks), cfg.SampleRate, cfg.ValidRange)
	require.True(t, ok)
	assert.InDelta(t, 72, bpm, 1)
}

func TestEstimateBPMDropsImplausibleGaps(t *testing.T) {
	valid := signal.Range{Min: 67, Max: 98}

	// 10-sample gaps are 180 BPM and never valid
	_, ok := heartrate.EstimateBPM([]float64{0, 10, 20, 30}, 30, valid)
	assert.False(t, ok)

	_, ok = heartrate.EstimateBPM([]float64{5}, 30, valid)
	assert.False(t, ok)

	bpm, ok := heartrate.EstimateBPM([]float64{0, 10, 35, 60}, 30, valid)
	require.True(t, ok)
	assert.Equal(t, 72.0, bpm)
}

func TestEstimateBPMUsesFractionalGaps(t *testing.T) {
	valid := signal.Range{Min: 67, Max: 98}

	// 22.5 samples at 30 Hz is 80 BPM, between the 22- and 23-sample rates
	bpm, ok := heartrate.EstimateBPM([]float64{3.2, 25.7, 48.2, 70.7}, 30, valid)
	require.True(t, ok)
	assert.InDelta(t, 80, bpm, 1e-9)
}

func TestEstimatorConvergesOnSimulatedPulse(t *testing.T) {
	for _, bpm := range []float64{72, 80, 90} {
		for _, seed := range []int64{1, 2, 3, 7, 11} {
			t.Run(fmt.Sprintf("%.0f_bpm_seed_%d", bpm, seed), func(t *testing.T) {
				s := newScene(t, bpm, seed)
				est := heartrate.NewEstimator(noJitter())

				var last heartrate.Result
				var tail []float64
				for i := 0; i < 300; i++ {
					last = est.Update(s.next(t))
					if i >= 150 && last.Status == heartrate.StatusOK {
						tail = append(tail, last.HeartRate)
					}
				}

				require.NotEmpty(t, tail)
				mean, _ := signal.MeanStdDev(tail)
				assert.InDelta(t, bpm, mean, 1)
				assert.Equal(t, heartrate.Estimating, last.Phase)
				assert.InDelta(t, bpm, last.HeartRate, 2)
				assert.GreaterOrEqual(t, last.HRV, 20.0)
				assert.LessOrEqual(t, last.HRV, 100.0)
				assert.LessOrEqual(t, len(last.History), 30)
			})
		}
	}
}

func TestEveryOKResultCarriesBoundedHRV(t *testing.T) {
	for _, seed := range []int64{1, 2, 3, 7, 11} {
		s := newScene(t, 72, seed)
		est := heartrate.NewEstimator(noJitter())

		var ok, waiting int
		for i := 0; i < 300; i++ {
			res := est.Update(s.next(t))
			if res.Status == heartrate.StatusDegraded && res.Reason.Code() == errors.ErrInsufficientHistory {
				waiting++
				assert.Positive(t, res.HeartRate, "seed %d frame %d", seed, i)
				assert.Zero(t, res.HRV)
				continue
			}
			if res.Status != heartrate.StatusOK {
				continue
			}
			ok++
			assert.GreaterOrEqual(t, res.HRV, 20.0, "seed %d frame %d", seed, i)
			assert.LessOrEqual(t, res.HRV, 100.0, "seed %d frame %d", seed, i)
			assert.GreaterOrEqual(t, len(res.History), 2)
		}

		assert.Positive(t, ok, "seed %d", seed)
		assert.Equal(t, 1, waiting, "only the first rate lacks a predecessor")
	}
}

func TestCollectingUntilMinimumFill(t *testing.T) {
	s := newScene(t, 72, 1)
	cfg := noJitter()
	est := heartrate.NewEstimator(cfg)

	// 40% of a 60-sample window
	need := 24
	for i := 0; i < need-1; i++ {
		res := est.Update(s.next(t))
		require.Equal(t, heartrate.StatusDegraded, res.Status)
		assert.Equal(t, errors.ErrBufferFilling, res.Reason.Code())
		assert.Equal(t, heartrate.Collecting, res.Phase)
		assert.Zero(t, res.HeartRate)
	}

	res := est.Update(s.next(t))
	assert.Equal(t, heartrate.Estimating, res.Phase)
}

func TestMissingDetectionHoldsLastValues(t *testing.T) {
	s := newScene(t, 72, 3)
	est := heartrate.NewEstimator(noJitter())

	for i := 0; i < 200; i++ {
		est.Update(s.next(t))
	}
	before := est.State()
	require.Positive(t, before.HeartRate)

	for i := 0; i < 10; i++ {
		frame, _ := s.next(t)
		res := est.Update(frame, nil)
		assert.Equal(t, heartrate.StatusDegraded, res.Status)
		assert.Equal(t, errors.ErrNoDetection, res.Reason.Code())
		assert.Equal(t, before.HeartRate, res.HeartRate)
		assert.Equal(t, before.HRV, res.HRV)
	}

	after := est.State()
	assert.Equal(t, before.Buffer.Values(), after.Buffer.Values(), "skipped frames must not be buffered")
	assert.Equal(t, before.HeartRate, after.HeartRate)
}

func TestEmittedRateIsBoundedAndRateLimited(t *testing.T) {
	cfg := heartrate.DefaultConfig()
	rng := rand.New(rand.NewSource(42))
	s := newScene(t, 72, 11)
	est := heartrate.NewEstimator(cfg, heartrate.WithJitter(heartrate.UniformJitter(rng, 0.5)))

	prev := 0.0
	for i := 0; i < 1500; i++ {
		if i%150 == 0 {
			// wander well outside the plausible band
			s.video.SetHeartRate(45 + rng.Float64()*100)
		}
		res := est.Update(s.next(t))
		if res.Status != heartrate.StatusOK {
			continue
		}

		assert.GreaterOrEqual(t, res.HeartRate, 67.0)
		assert.LessOrEqual(t, res.HeartRate, 98.0)
		if prev > 0 {
			assert.LessOrEqual(t, math.Abs(res.HeartRate-prev), 2.0+1e-9, "frame %d", i)
		}
		prev = res.HeartRate
	}
	assert.Positive(t, prev)
}

func TestJitterIsCosmeticAndBounded(t *testing.T) {
	cfg := heartrate.DefaultConfig()
	plain := newScene(t, 72, 5)
	noisy := newScene(t, 72, 5)

	a := heartrate.NewEstimator(cfg, heartrate.WithJitter(nil))
	b := heartrate.NewEstimator(cfg, heartrate.WithJitter(func() float64 { return cfg.JitterAmplitude }))

	for i := 0; i < 300; i++ {
		ra := a.Update(plain.next(t))
		rb := b.Update(noisy.next(t))
		if ra.Status != heartrate.StatusOK || rb.Status != heartrate.StatusOK {
			continue
		}
		assert.LessOrEqual(t, math.Abs(ra.HeartRate-rb.HeartRate), 2*cfg.MaxChange)
		assert.LessOrEqual(t, rb.HeartRate, cfg.ValidRange.Max)
	}
}

// panicImage fails on every pixel read.
type panicImage struct{}

func (panicImage) ColorModel() color.Model { return color.RGBAModel }
func (panicImage) Bounds() image.Rectangle { return image.Rect(0, 0, 160, 120) }
func (panicImage) At(int, int) color.Color { panic("sensor fault") }

func TestStepRecoversFromPanics(t *testing.T) {
	cfg := noJitter()
	s := newScene(t, 72, 9)

	st := heartrate.NewState(cfg)
	for i := 0; i < 120; i++ {
		frame, det := s.next(t)
		st, _ = heartrate.Step(cfg, st, heartrate.Input{Frame: frame, Detection: det}, nil)
	}
	require.Positive(t, st.HeartRate)

	_, det := s.next(t)
	next, res := heartrate.Step(cfg, st, heartrate.Input{Frame: panicImage{}, Detection: det}, nil)

	require.Equal(t, heartrate.StatusDegraded, res.Status)
	assert.Equal(t, errors.ErrInternal, res.Reason.Code())
	assert.Equal(t, st.HeartRate, res.HeartRate)
	assert.Zero(t, res.HRV)
	assert.Equal(t, st.Buffer.Values(), next.Buffer.Values())
	assert.Equal(t, st.HeartRate, next.HeartRate)
}

func TestStepDoesNotMutateInputState(t *testing.T) {
	cfg := noJitter()
	s := newScene(t, 72, 2)

	st := heartrate.NewState(cfg)
	frame, det := s.next(t)
	next, _ := heartrate.Step(cfg, st, heartrate.Input{Frame: frame, Detection: det}, nil)

	assert.Equal(t, 0, st.Buffer.Len())
	assert.Equal(t, 1, next.Buffer.Len())
}

func TestResetStartsNewSession(t *testing.T) {
	s := newScene(t, 72, 4)
	est := heartrate.NewEstimator(noJitter())
	for i := 0; i < 150; i++ {
		est.Update(s.next(t))
	}
	require.Positive(t, est.State().HeartRate)

	est.Reset()
	st := est.State()
	assert.Zero(t, st.HeartRate)
	assert.Zero(t, st.Buffer.Len())
	assert.Equal(t, heartrate.Collecting, st.Phase)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, heartrate.DefaultConfig().Validate())

	cfg := heartrate.DefaultConfig()
	cfg.ValidRange = signal.Range{Min: 98, Max: 67}
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidConfig))

	cfg = heartrate.DefaultConfig()
	assert.Equal(t, 2*time.Second, cfg.Window())
}
