// Package face describes the output of an external face detector and the
// interface the pipeline awaits once per frame.
package face

import (
	"context"
	"image"
)

// LandmarkCount is the number of ordered landmark points in a detection.
const LandmarkCount = 68

// Box is a face bounding box in frame pixel coordinates.
type Box struct {
	X      float64 `yaml:"x"`
	Y      float64 `yaml:"y"`
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

// Valid reports whether the box has a positive area.
func (b Box) Valid() bool {
	return b.Width > 0 && b.Height > 0
}

// Point is a landmark position in frame pixel coordinates.
type Point struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// Detection is a single detected face.
type Detection struct {
	Box       Box
	Landmarks []Point
}

// Detector finds a face in a frame. A nil detection with a nil error is a miss.
type Detector interface {
	Detect(ctx context.Context, frame image.Image) (*Detection, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(ctx context.Context, frame image.Image) (*Detection, error)

func (f DetectorFunc) Detect(ctx context.Context, frame image.Image) (*Detection, error) {
	return f(ctx, frame)
}

// StaticDetector reports the same box for every frame, missing every
// MissEvery-th frame when MissEvery > 0.
type StaticDetector struct {
	Box       Box
	MissEvery int

	calls int
}

func (d *StaticDetector) Detect(ctx context.Context, frame image.Image) (*Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.calls++
	if frame == nil || (d.MissEvery > 0 && d.calls%d.MissEvery == 0) {
		return nil, nil
	}

	return &Detection{Box: d.Box, Landmarks: BoxLandmarks(d.Box)}, nil
}

// BoxLandmarks lays out a coarse 68-point template inside a box. It stands in
// for real landmarks when only a bounding box is known.
func BoxLandmarks(b Box) []Point {
	pts := make([]Point, LandmarkCount)
	// jaw line 0-16
	for i := 0; i <= 16; i++ {
		t := float64(i) / 16
		pts[i] = Point{X: b.X + t*b.Width, Y: b.Y + b.Height*(0.35+0.6*(1-4*(t-0.5)*(t-0.5)))}
	}
	// everything else on a grid across the upper two thirds
	for i := 17; i < LandmarkCount; i++ {
		k := i - 17
		pts[i] = Point{
			X: b.X + b.Width*(0.2+0.6*float64(k%10)/9),
			Y: b.Y + b.Height*(0.25+0.5*float64(k/10)/5),
		}
	}

	return pts
}
