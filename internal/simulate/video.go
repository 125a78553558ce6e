// Package simulate renders synthetic face video whose skin colour pulses at
// a chosen heart rate. It is not physiological; it exists to drive the
// estimators end to end.
package simulate

import (
	"context"
	"image"
	"image/color"
	"io"
	"math"
	"math/rand"
	"time"

	"codeberg.org/mutker/camvitals/internal/errors"
	"codeberg.org/mutker/camvitals/internal/face"
	"codeberg.org/mutker/camvitals/internal/pipeline"
)

// Config describes the rendered scene.
type Config struct {
	Width     int     `mapstructure:"width"`
	Height    int     `mapstructure:"height"`
	FPS       float64 `mapstructure:"fps"`
	HeartRate float64 `mapstructure:"heart_rate"`
	// Amplitude is the peak green-channel darkening per pulse.
	Amplitude float64 `mapstructure:"amplitude"`
	// Noise is the standard deviation of per-frame illumination noise.
	Noise float64 `mapstructure:"noise"`
	// Rise is the fraction of each beat spent on the upstroke.
	Rise      float64       `mapstructure:"rise"`
	Duration  time.Duration `mapstructure:"duration"`
	MissEvery int           `mapstructure:"miss_every"`
	Seed      int64         `mapstructure:"seed"`
	Box       face.Box      `mapstructure:"box"`
}

// DefaultConfig returns a 160x120 scene at 30 fps and 72 BPM.
func DefaultConfig() Config {
	return Config{
		Width:     160,
		Height:    120,
		FPS:       30,
		HeartRate: 72,
		Amplitude: 4,
		Noise:     0.3,
		Rise:      0.35,
		Duration:  20 * time.Second,
		Seed:      1,
		Box:       face.Box{X: 50, Y: 35, Width: 60, Height: 70},
	}
}

// Validate checks the scene can be rendered.
func (c Config) Validate() error {
	errFactory := errors.New()

	switch {
	case c.Width <= 0 || c.Height <= 0:
		return errFactory.WithMessage(errors.ErrInvalidConfig, "simulate: frame size must be positive")
	case c.FPS <= 0:
		return errFactory.WithMessage(errors.ErrInvalidConfig, "simulate: fps must be positive")
	case c.HeartRate <= 0:
		return errFactory.WithMessage(errors.ErrInvalidConfig, "simulate: heart rate must be positive")
	case c.Rise <= 0 || c.Rise >= 1:
		return errFactory.WithMessage(errors.ErrInvalidConfig, "simulate: rise must lie in (0,1)")
	}

	return nil
}

var (
	skinTone   = [3]float64{200, 150, 120}
	background = color.RGBA{R: 30, G: 60, B: 110, A: 255}
)

// Video renders frames on demand and implements pipeline.Source.
type Video struct {
	cfg   Config
	rng   *rand.Rand
	phase float64
	n     int
	max   int
	start time.Time
}

// NewVideo creates a video starting at start. A zero Duration renders
// frames forever.
func NewVideo(cfg Config, start time.Time) *Video {
	v := &Video{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		start: start,
	}
	if cfg.Duration > 0 {
		v.max = int(cfg.Duration.Seconds() * cfg.FPS)
	}

	return v
}

// SetHeartRate changes the pulse rate from the next frame on.
func (v *Video) SetHeartRate(bpm float64) {
	v.cfg.HeartRate = bpm
}

// Detector returns a detector that reports the scene's face box.
func (v *Video) Detector() *face.StaticDetector {
	return &face.StaticDetector{Box: v.cfg.Box, MissEvery: v.cfg.MissEvery}
}

// Pulse is the blood-volume waveform at beat phase t in [0,1): a raised
// cosine rising over the first rise fraction and decaying over the rest.
func Pulse(t, rise float64) float64 {
	if t < rise {
		return 0.5 * (1 - math.Cos(math.Pi*t/rise))
	}

	return 0.5 * (1 + math.Cos(math.Pi*(t-rise)/(1-rise)))
}

func (v *Video) Next(ctx context.Context) (pipeline.Frame, error) {
	if err := ctx.Err(); err != nil {
		return pipeline.Frame{}, err
	}
	if v.max > 0 && v.n >= v.max {
		return pipeline.Frame{}, io.EOF
	}

	img := v.Render()
	ts := v.start.Add(time.Duration(float64(v.n) / v.cfg.FPS * float64(time.Second)))
	v.n++

	return pipeline.Frame{Image: img, Time: ts}, nil
}

// Render draws the next frame and advances the beat phase.
func (v *Video) Render() *image.RGBA {
	cfg := v.cfg
	img := image.NewRGBA(image.Rect(0, 0, cfg.Width, cfg.Height))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = background.R, background.G, background.B, background.A
	}

	pulse := Pulse(v.phase, cfg.Rise)
	light := v.rng.NormFloat64() * cfg.Noise
	tone := [3]float64{
		skinTone[0] - 0.3*cfg.Amplitude*pulse + light,
		skinTone[1] - cfg.Amplitude*pulse + light,
		skinTone[2] - 0.2*cfg.Amplitude*pulse + light,
	}

	// skin covers the box and the forehead above it
	skin := image.Rect(
		int(cfg.Box.X), int(cfg.Box.Y-0.3*cfg.Box.Height),
		int(cfg.Box.X+cfg.Box.Width), int(cfg.Box.Y+cfg.Box.Height),
	).Intersect(img.Bounds())
	for y := skin.Min.Y; y < skin.Max.Y; y++ {
		for x := skin.Min.X; x < skin.Max.X; x++ {
			i := img.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				// dither so the ROI mean resolves sub-integer changes
				img.Pix[i+c] = toByte(tone[c] + v.rng.Float64() - 0.5)
			}
		}
	}

	v.phase += cfg.HeartRate / 60 / cfg.FPS
	v.phase -= math.Floor(v.phase)

	return img
}

func toByte(v float64) uint8 {
	return uint8(math.Max(0, math.Min(255, math.Round(v))))
}
