package pipeline

import (
	"context"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"codeberg.org/mutker/camvitals/internal/errors"
)

// Frame is one captured video frame and its capture time.
type Frame struct {
	Image image.Image
	Time  time.Time
}

// Source yields frames in capture order and returns io.EOF when exhausted.
type Source interface {
	Next(ctx context.Context) (Frame, error)
}

// namedImage carries the file a frame was decoded from, so manifest
// detectors can look it up.
type namedImage struct {
	image.Image
	name string
}

func (n namedImage) Name() string { return n.name }

// DirSource decodes PNG and JPEG frames from a directory in lexical order.
// Timestamps advance by 1/fps from Start.
type DirSource struct {
	files []string
	next  int
	start time.Time
	step  time.Duration
}

// NewDirSource lists the frames in dir.
func NewDirSource(dir string, fps float64, start time.Time) (*DirSource, error) {
	errFactory := errors.New()

	if fps <= 0 {
		return nil, errFactory.WithMessage(errors.ErrInvalidArgument, "fps must be positive")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrSourceFailure, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	return &DirSource{
		files: files,
		start: start,
		step:  time.Duration(float64(time.Second) / fps),
	}, nil
}

// Len returns the number of frames found.
func (s *DirSource) Len() int { return len(s.files) }

func (s *DirSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if s.next >= len(s.files) {
		return Frame{}, io.EOF
	}

	path := s.files[s.next]
	ts := s.start.Add(time.Duration(s.next) * s.step)
	s.next++

	img, err := decodeFrame(path)
	if err != nil {
		// undecodable frames become empty frames; the estimators skip them
		return Frame{Time: ts}, errors.New().WithData(errors.ErrFrameDecode, struct {
			Path  string
			Error string
		}{path, err.Error()})
	}

	return Frame{Image: namedImage{Image: img, name: filepath.Base(path)}, Time: ts}, nil
}

func decodeFrame(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return png.Decode(f)
	default:
		return jpeg.Decode(f)
	}
}
