package signal_test

import (
	"image"
	"image/color"
	"math"
	"testing"

	"codeberg.org/mutker/camvitals/internal/errors"
	"codeberg.org/mutker/camvitals/internal/face"
	"codeberg.org/mutker/camvitals/internal/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRate = 30.0

func filterConfig() signal.FilterConfig {
	return signal.FilterConfig{
		SampleRate:     sampleRate,
		HighPassCutoff: 0.5,
		LowPassCutoff:  5,
		OutlierZ:       2.5,
	}
}

func sine(n int, period, offset float64) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = offset + math.Sin(2*math.Pi*float64(i)/period)
	}

	return x
}

func TestRingEvictsOldestFirst(t *testing.T) {
	r := signal.NewRing(3)
	assert.Equal(t, 0.0, r.Fill())

	for i := 1; i <= 5; i++ {
		r.Push(float64(i))
		assert.LessOrEqual(t, r.Len(), 3)
	}
	assert.Equal(t, []float64{3, 4, 5}, r.Values())
	assert.Equal(t, 1.0, r.Fill())

	last, ok := r.Last()
	require.True(t, ok)
	assert.Equal(t, 5.0, last)

	c := r.Clone()
	c.Push(6)
	assert.Equal(t, []float64{3, 4, 5}, r.Values(), "clone must not alias")
	assert.Equal(t, []float64{4, 5, 6}, c.Values())

	r.Reset()
	assert.Equal(t, 0, r.Len())
	_, ok = r.Last()
	assert.False(t, ok)

	var zero signal.Ring
	zero.Push(1)
	assert.Equal(t, 0, zero.Len())
}

func TestConditionConstantInputIsZero(t *testing.T) {
	x := make([]float64, 60)
	for i := range x {
		x[i] = 128
	}

	out := signal.Condition(x, filterConfig())
	require.Len(t, out, 60)
	for _, v := range out {
		assert.False(t, math.IsNaN(v))
		assert.Equal(t, 0.0, v)
	}

	assert.Empty(t, signal.Condition(nil, filterConfig()))
}

func TestConditionIsZeroMeanUnitVariance(t *testing.T) {
	out := signal.Condition(sine(60, 25, 100), filterConfig())
	mean, std := signal.MeanStdDev(out)
	assert.InDelta(t, 0, mean, 1e-9)
	assert.InDelta(t, 1, std, 1e-9)
}

func TestNormalizeClipsOutliers(t *testing.T) {
	x := sine(60, 20, 0)
	x[30] = 50

	raw := signal.Normalize(x, 0)
	assert.Greater(t, raw[30], 5.0)

	out := signal.Normalize(x, 2.5)
	for _, v := range out {
		assert.Less(t, math.Abs(v), 2.5)
	}
	assert.Less(t, out[30], 2.0)
}

func TestFindExtremaOnSineRecoversPeriod(t *testing.T) {
	const period = 25.0
	x := signal.Condition(sine(60, period, 100), filterConfig())

	cfg := signal.PeakConfig{
		Threshold:   0.3,
		Neighbors:   2,
		MinDistance: signal.MinPeakDistance(sampleRate),
		SlopeCheck:  true,
	}
	peaks, valleys := signal.FindExtrema(x, cfg)
	require.GreaterOrEqual(t, len(peaks), 2)
	require.GreaterOrEqual(t, len(valleys), 2)

	for _, gap := range signal.Diff(peaks) {
		assert.InDelta(t, period, gap, 1)
	}
	for _, gap := range signal.Diff(valleys) {
		assert.InDelta(t, period, gap, 1)
	}
	for _, p := range peaks {
		assert.GreaterOrEqual(t, p, 2)
		assert.Less(t, p, len(x)-2)
	}
}

func TestRefineFindsVertexBetweenSamples(t *testing.T) {
	x := make([]float64, 20)
	for i := range x {
		d := float64(i) - 10.3
		x[i] = -d * d
	}
	assert.InDeltaSlice(t, []float64{10.3}, signal.Refine(x, []int{10}), 1e-9)

	// flat top and edges stay put
	flat := []float64{0, 1, 1, 1, 0}
	assert.Equal(t, []float64{2, 0, 4}, signal.Refine(flat, []int{2, 0, 4}))

	// offsets never exceed half a sample
	skew := []float64{0, 5, 4.99, 0}
	got := signal.Refine(skew, []int{1})
	assert.LessOrEqual(t, got[0], 1.5)
	assert.GreaterOrEqual(t, got[0], 1.0)

	assert.Empty(t, signal.Refine(x, nil))
}

func TestRefinedGapsTrackFractionalPeriod(t *testing.T) {
	const period = 25.5
	x := signal.Condition(sine(60, period, 100), filterConfig())
	peaks, _ := signal.FindExtrema(x, signal.PeakConfig{Threshold: 0.3, Neighbors: 2, MinDistance: 7, SlopeCheck: true})
	require.GreaterOrEqual(t, len(peaks), 3)

	gaps := signal.Gaps(signal.Refine(x, peaks))
	require.Len(t, gaps, len(peaks)-1)
	assert.InDelta(t, period, gaps[len(gaps)-1], 0.1)

	assert.Nil(t, signal.Gaps([]float64{3}))
}

func TestFindExtremaEnforcesMinDistance(t *testing.T) {
	x := []float64{0, 0, 1, 0.5, 2, 0.5, 0, 0, 0, 0}
	peaks, _ := signal.FindExtrema(x, signal.PeakConfig{Threshold: 0.1, Neighbors: 1, MinDistance: 7})
	assert.Equal(t, []int{4}, peaks, "the larger of two close peaks wins")

	peaks, _ = signal.FindExtrema(x, signal.PeakConfig{Threshold: 0.1, Neighbors: 1, MinDistance: 1})
	assert.Equal(t, []int{2, 4}, peaks)

	peaks, valleys := signal.FindExtrema([]float64{1, 2}, signal.PeakConfig{Neighbors: 2})
	assert.Empty(t, peaks)
	assert.Empty(t, valleys)
}

func TestMinPeakDistance(t *testing.T) {
	assert.Equal(t, 7, signal.MinPeakDistance(30))
	assert.Equal(t, 15, signal.MinPeakDistance(60))
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 0.0, signal.Median(nil))
	assert.Equal(t, 2.0, signal.Median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, signal.Median([]float64{4, 1, 3, 2}))
}

func extractorConfig() signal.ExtractorConfig {
	return signal.ExtractorConfig{
		ROI: signal.ROI{Left: 0.3, Top: 0.1, Width: 0.4, Height: 0.2},
		Skin: signal.SkinModel{
			MinRed: 0.36, MaxRed: 0.6,
			MinGreen: 0.25, MaxGreen: 0.4,
			MinBlue: 0.1, MaxBlue: 0.33,
			MinHue: 340, MaxHue: 50,
			MinSaturation: 0.1, MaxSaturation: 0.7,
		},
		Weighting:       signal.GreenPurity,
		MinCoverage:     0.1,
		Smoothing:       0.3,
		MinWeight:       0.1,
		CrossTalk:       0.5,
		PurityGain:      5,
		QualityCoverage: 0.5,
	}
}

func filled(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}

	return img
}

func TestExtractSkinFrame(t *testing.T) {
	skin := color.RGBA{R: 200, G: 150, B: 120, A: 255}
	img := filled(100, 100, skin)
	det := &face.Detection{Box: face.Box{X: 10, Y: 10, Width: 80, Height: 80}}

	s, err := signal.Extract(extractorConfig(), img, det, 0)
	require.NoError(t, err)
	gn := 255 * 150.0 / (200 + 150 + 120)
	assert.InDelta(t, gn, s.Value, 1e-9, "green chromaticity without smoothing")
	assert.InDelta(t, 1, s.Coverage, 1e-9)
	assert.Greater(t, s.Quality, 0.5)
	assert.LessOrEqual(t, s.Quality, 1.0)

	s, err = signal.Extract(extractorConfig(), img, det, 140)
	require.NoError(t, err)
	assert.InDelta(t, 0.7*gn+0.3*140, s.Value, 1e-9)

	dim := filled(100, 100, color.RGBA{R: 100, G: 75, B: 60, A: 255})
	s, err = signal.Extract(extractorConfig(), dim, det, 0)
	require.NoError(t, err)
	assert.InDelta(t, gn, s.Value, 1e-9, "brightness scaling cancels out")

	cfg := extractorConfig()
	cfg.Weighting = signal.RedGreen
	cfg.RedWeight, cfg.GreenWeight = 0.6, 0.4
	cfg.HueCenter, cfg.HueSpan = 20, 40
	s, err = signal.Extract(cfg, img, det, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.6*200+0.4*150, s.Value, 1e-9)
}

func TestExtractFailuresReturnPrevious(t *testing.T) {
	cfg := extractorConfig()
	det := &face.Detection{Box: face.Box{X: 10, Y: 10, Width: 80, Height: 80}}

	s, err := signal.Extract(cfg, nil, det, 42)
	assert.True(t, errors.HasCode(err, errors.ErrNoFrame))
	assert.Equal(t, 42.0, s.Value)

	img := filled(100, 100, color.RGBA{R: 200, G: 150, B: 120, A: 255})
	s, err = signal.Extract(cfg, img, nil, 42)
	assert.True(t, errors.HasCode(err, errors.ErrNoDetection))
	assert.Equal(t, 42.0, s.Value)

	far := &face.Detection{Box: face.Box{X: 500, Y: 500, Width: 80, Height: 80}}
	_, err = signal.Extract(cfg, img, far, 42)
	assert.True(t, errors.HasCode(err, errors.ErrROIOutOfView))

	blue := filled(100, 100, color.RGBA{R: 20, G: 40, B: 220, A: 255})
	s, err = signal.Extract(cfg, blue, det, 0)
	assert.True(t, errors.HasCode(err, errors.ErrInsufficientSkin))
	assert.Equal(t, 0.0, s.Value)
}

func TestROIClampsToFrame(t *testing.T) {
	roi := signal.ROI{Left: 0.3, Top: -0.2, Width: 0.4, Height: 0.15}
	box := face.Box{X: 20, Y: 5, Width: 100, Height: 100}

	assert.Equal(t, image.Rect(50, -15, 90, 0), roi.Rect(box))
	assert.True(t, roi.Clamp(box, image.Rect(0, 0, 200, 200)).Empty())

	box.Y = 40
	assert.Equal(t, image.Rect(50, 20, 90, 35), roi.Clamp(box, image.Rect(0, 0, 200, 200)))
}
