package signal

import (
	"image"

	"codeberg.org/mutker/camvitals/internal/errors"
	"codeberg.org/mutker/camvitals/internal/face"
)

// Weighting selects how skin pixels are weighted and which intensity they
// contribute.
type Weighting string

const (
	// GreenPurity weights green chromaticity by how much green remains after
	// subtracting red and blue cross-talk. Chromaticity ignores brightness
	// changes shared by all channels. Used for heart rate.
	GreenPurity Weighting = "green_purity"
	// RedGreen blends red and green intensity, weighted by how close the
	// pixel's hue is to typical skin and by its saturation. Used for blood
	// pressure.
	RedGreen Weighting = "red_green"
)

// ExtractorConfig holds the ROI, skin model and weighting constants of one
// extraction path.
type ExtractorConfig struct {
	ROI         ROI       `mapstructure:"roi"`
	Skin        SkinModel `mapstructure:"skin"`
	Weighting   Weighting `mapstructure:"weighting"`
	MinCoverage float64   `mapstructure:"min_coverage"`
	Smoothing   float64   `mapstructure:"smoothing"`
	MinWeight   float64   `mapstructure:"min_weight"`

	// green purity
	CrossTalk       float64 `mapstructure:"cross_talk"`
	PurityGain      float64 `mapstructure:"purity_gain"`
	QualityCoverage float64 `mapstructure:"quality_coverage"`

	// red/green
	RedWeight   float64 `mapstructure:"red_weight"`
	GreenWeight float64 `mapstructure:"green_weight"`
	HueCenter   float64 `mapstructure:"hue_center"`
	HueSpan     float64 `mapstructure:"hue_span"`
}

// Sample is the scalar reduction of one frame.
type Sample struct {
	Value    float64
	Quality  float64 // [0,1]
	Coverage float64 // skin pixels / ROI pixels
}

// Extract reduces the ROI of frame to one sample, smoothed against prev.
// On failure the returned sample carries prev unchanged together with a
// coded error; callers skip the frame.
func Extract(cfg ExtractorConfig, frame image.Image, det *face.Detection, prev float64) (Sample, error) {
	errFactory := errors.New()
	fallback := Sample{Value: prev}

	if frame == nil {
		return fallback, errFactory.New(errors.ErrNoFrame)
	}
	if det == nil || !det.Box.Valid() {
		return fallback, errFactory.New(errors.ErrNoDetection)
	}

	rect := cfg.ROI.Clamp(det.Box, frame.Bounds())
	if rect.Empty() {
		return fallback, errFactory.WithData(errors.ErrROIOutOfView, rect)
	}

	var (
		sum, weights float64
		skin         int
	)
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			p, ok := newPixel(rgbAt(frame, x, y))
			if !ok || !cfg.Skin.Contains(p) {
				continue
			}
			v, w := cfg.weigh(p)
			sum += w * v
			weights += w
			skin++
		}
	}

	coverage := float64(skin) / float64(rect.Dx()*rect.Dy())
	if coverage < cfg.MinCoverage || weights == 0 {
		fallback.Coverage = coverage
		return fallback, errFactory.WithData(errors.ErrInsufficientSkin, struct {
			Coverage float64
			Required float64
		}{coverage, cfg.MinCoverage})
	}

	value := sum / weights
	if prev > 0 {
		value = (1-cfg.Smoothing)*value + cfg.Smoothing*prev
	}

	return Sample{
		Value:    value,
		Quality:  cfg.quality(coverage, weights/float64(skin)),
		Coverage: coverage,
	}, nil
}

// weigh returns the intensity a skin pixel contributes and its weight.
func (cfg ExtractorConfig) weigh(p Pixel) (float64, float64) {
	switch cfg.Weighting {
	case RedGreen:
		w := 1.0
		if cfg.HueSpan > 0 {
			w = clamp(1-hueDistance(p.Hue, cfg.HueCenter)/cfg.HueSpan, 0, 1)
		}
		w = max(w*p.Saturation, cfg.MinWeight)
		return cfg.RedWeight*p.R + cfg.GreenWeight*p.G, w
	default:
		purity := p.Gn - cfg.CrossTalk*(p.Rn+p.Bn)/2
		return 255 * p.Gn, clamp(purity*cfg.PurityGain, cfg.MinWeight, 1)
	}
}

// quality blends ROI skin coverage with the mean pixel weight.
func (cfg ExtractorConfig) quality(coverage, meanWeight float64) float64 {
	cov := 1.0
	if cfg.QualityCoverage > 0 {
		cov = clamp(coverage/cfg.QualityCoverage, 0, 1)
	}

	return clamp(0.5*cov+0.5*clamp(meanWeight, 0, 1), 0, 1)
}
