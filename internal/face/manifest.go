package face

import (
	"context"
	"image"
	"os"

	"codeberg.org/mutker/camvitals/internal/errors"
	"gopkg.in/yaml.v3"
)

// Manifest lists detections produced offline for a directory of frames.
type Manifest struct {
	Frames []ManifestEntry `yaml:"frames"`
}

// ManifestEntry is one frame's detection. Frames without an entry, or with
// a zero box, are misses.
type ManifestEntry struct {
	File      string  `yaml:"file"`
	Box       Box     `yaml:"box"`
	Landmarks []Point `yaml:"landmarks,omitempty"`
}

// LoadManifest reads a YAML detection manifest.
func LoadManifest(path string) (*Manifest, error) {
	errFactory := errors.New()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrReadManifest, err)
	}

	return ParseManifest(data)
}

// ParseManifest decodes manifest bytes.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.New().Wrap(errors.ErrReadManifest, err)
	}

	return &m, nil
}

// Lookup returns the detection recorded for file, or nil for a miss.
func (m *Manifest) Lookup(file string) *Detection {
	for _, e := range m.Frames {
		if e.File != file || !e.Box.Valid() {
			continue
		}
		lm := e.Landmarks
		if len(lm) != LandmarkCount {
			lm = BoxLandmarks(e.Box)
		}

		return &Detection{Box: e.Box, Landmarks: lm}
	}

	return nil
}

// Named is a frame that knows the file it was decoded from.
type Named interface {
	Name() string
}

// ManifestDetector answers detections from a manifest for frames that
// implement Named.
type ManifestDetector struct {
	Manifest *Manifest
}

func (d ManifestDetector) Detect(ctx context.Context, frame image.Image) (*Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	named, ok := frame.(Named)
	if !ok || d.Manifest == nil {
		return nil, nil
	}

	return d.Manifest.Lookup(named.Name()), nil
}
