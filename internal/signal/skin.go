package signal

import (
	"image"
	"image/color"
	"math"
)

// SkinModel bounds the chromaticity (channel / channel sum) and HSV hue and
// saturation of pixels accepted as skin. MinHue > MaxHue wraps through 0.
// Zero hue and saturation bounds disable the HSV gate.
type SkinModel struct {
	MinRed        float64 `mapstructure:"min_red"`
	MaxRed        float64 `mapstructure:"max_red"`
	MinGreen      float64 `mapstructure:"min_green"`
	MaxGreen      float64 `mapstructure:"max_green"`
	MinBlue       float64 `mapstructure:"min_blue"`
	MaxBlue       float64 `mapstructure:"max_blue"`
	MinHue        float64 `mapstructure:"min_hue"`
	MaxHue        float64 `mapstructure:"max_hue"`
	MinSaturation float64 `mapstructure:"min_saturation"`
	MaxSaturation float64 `mapstructure:"max_saturation"`
}

// Pixel is one RGB pixel with derived chromaticity and HSV components.
type Pixel struct {
	R, G, B    float64
	Rn, Gn, Bn float64
	Hue        float64 // degrees
	Saturation float64
}

func newPixel(r, g, b uint8) (Pixel, bool) {
	sum := float64(r) + float64(g) + float64(b)
	if sum == 0 {
		return Pixel{}, false
	}
	p := Pixel{R: float64(r), G: float64(g), B: float64(b)}
	p.Rn, p.Gn, p.Bn = p.R/sum, p.G/sum, p.B/sum
	p.Hue, p.Saturation = hueSat(p.R, p.G, p.B)

	return p, true
}

// Contains reports whether p classifies as skin.
func (s SkinModel) Contains(p Pixel) bool {
	if p.Rn < s.MinRed || p.Rn > s.MaxRed ||
		p.Gn < s.MinGreen || p.Gn > s.MaxGreen ||
		p.Bn < s.MinBlue || p.Bn > s.MaxBlue {
		return false
	}
	if s.MaxSaturation > 0 && (p.Saturation < s.MinSaturation || p.Saturation > s.MaxSaturation) {
		return false
	}
	if s.MinHue == 0 && s.MaxHue == 0 {
		return true
	}
	if s.MinHue <= s.MaxHue {
		return p.Hue >= s.MinHue && p.Hue <= s.MaxHue
	}

	return p.Hue >= s.MinHue || p.Hue <= s.MaxHue
}

func hueSat(r, g, b float64) (float64, float64) {
	maxC := math.Max(r, math.Max(g, b))
	minC := math.Min(r, math.Min(g, b))
	delta := maxC - minC
	if maxC == 0 || delta == 0 {
		return 0, 0
	}

	var h float64
	switch maxC {
	case r:
		h = math.Mod((g-b)/delta, 6)
	case g:
		h = (b-r)/delta + 2
	default:
		h = (r-g)/delta + 4
	}
	h *= 60
	if h < 0 {
		h += 360
	}

	return h, delta / maxC
}

// hueDistance is the angular distance between two hues in degrees.
func hueDistance(a, b float64) float64 {
	d := math.Abs(a - b)
	if d > 180 {
		d = 360 - d
	}

	return d
}

func rgbAt(img image.Image, x, y int) (uint8, uint8, uint8) {
	switch m := img.(type) {
	case *image.RGBA:
		i := m.PixOffset(x, y)
		return m.Pix[i], m.Pix[i+1], m.Pix[i+2]
	case *image.NRGBA:
		i := m.PixOffset(x, y)
		return m.Pix[i], m.Pix[i+1], m.Pix[i+2]
	}
	c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)

	return c.R, c.G, c.B
}
