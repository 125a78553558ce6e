package signal

import (
	"image"
	"math"

	"codeberg.org/mutker/camvitals/internal/face"
)

// ROI is a rectangle expressed as fractions of a face bounding box. Top may
// be negative to sample above the box.
type ROI struct {
	Left   float64 `mapstructure:"left"`
	Top    float64 `mapstructure:"top"`
	Width  float64 `mapstructure:"width"`
	Height float64 `mapstructure:"height"`
}

// Rect places the ROI on box in frame pixels, without clamping.
func (r ROI) Rect(box face.Box) image.Rectangle {
	x0 := box.X + r.Left*box.Width
	y0 := box.Y + r.Top*box.Height
	x1 := x0 + r.Width*box.Width
	y1 := y0 + r.Height*box.Height

	return image.Rect(
		int(math.Floor(x0)), int(math.Floor(y0)),
		int(math.Ceil(x1)), int(math.Ceil(y1)),
	)
}

// Clamp places the ROI on box and intersects it with bounds.
func (r ROI) Clamp(box face.Box, bounds image.Rectangle) image.Rectangle {
	return r.Rect(box).Intersect(bounds)
}
