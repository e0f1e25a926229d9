package archive

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/drone-mission/internal/mission"
)

const (
	ImagePNG  ImageFormat = "png"
	ImageJPEG ImageFormat = "jpeg"
)

// ImageFormat is the encoding of archived frames
type ImageFormat string

var ErrInvalidFormat = errors.New("invalid image format")

var validImageFormats = map[ImageFormat]string{
	ImagePNG:  "png",
	ImageJPEG: "jpg",
}

// ParseImageFormat validates s as an ImageFormat, an empty string yields ImagePNG
func ParseImageFormat(s string) (ImageFormat, error) {
	if s == "" {
		return ImagePNG, nil
	}
	if _, ok := validImageFormats[ImageFormat(s)]; !ok {
		return "", fmt.Errorf("%w: '%s'", ErrInvalidFormat, s)
	}
	return ImageFormat(s), nil
}

func WithLogger(logger *slog.Logger) func(*Archive) {
	return func(a *Archive) {
		a.logger = logger
	}
}

// WithAnnotations stamps mission details onto every archived frame
func WithAnnotations(annotator *Annotator) func(*Archive) {
	return func(a *Archive) {
		a.annotator = annotator
	}
}

// Archive writes mission frames to <dir>/<missionID>/frame_<nnn>.<ext>
type Archive struct {
	dir    string
	format ImageFormat
	now    func() time.Time

	mu        sync.Mutex
	annotator *Annotator
	logger    *slog.Logger
}

var _ mission.Archiver = (*Archive)(nil)

func New(dir string, format ImageFormat, options ...func(*Archive)) (*Archive, error) {
	if dir == "" {
		return nil, errors.New("archive directory is required")
	}
	if _, ok := validImageFormats[format]; !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrInvalidFormat, format)
	}

	a := Archive{
		dir:    dir,
		format: format,
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&a)
	}

	return &a, nil
}

// Archive encodes frames in capture order. Frames archived before a failure
// are left on disk.
func (a *Archive) Archive(ctx context.Context, m mission.Mission, frames []image.Image) error {
	if len(frames) == 0 {
		return nil
	}

	dir := filepath.Join(a.dir, m.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating mission directory: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var total int64
	timestamp := a.now()

	for i, frame := range frames {
		if err := ctx.Err(); err != nil {
			return err
		}

		name := filepath.Join(dir, fmt.Sprintf("frame_%03d.%s", i+1, validImageFormats[a.format]))

		img, err := a.prepare(frame, FrameInfo{
			MissionID:  m.ID,
			LocationID: m.LocationID,
			Index:      i + 1,
			Total:      len(frames),
			Timestamp:  timestamp,
		})
		if err != nil {
			return fmt.Errorf("frame %d: %w", i+1, err)
		}

		n, err := a.write(name, img)
		if err != nil {
			return fmt.Errorf("writing '%s': %w", name, err)
		}
		total += n
	}

	a.logger.Info("frames archived",
		slog.String("missionId", m.ID),
		slog.String("directory", dir),
		slog.Int("frames", len(frames)),
		slog.String("size", humanize.Bytes(uint64(total))),
	)

	return nil
}

func (a *Archive) prepare(frame image.Image, info FrameInfo) (image.Image, error) {
	if a.annotator == nil {
		return frame, nil
	}

	bounds := frame.Bounds()
	img := image.NewRGBA(bounds)
	draw.Draw(img, bounds, frame, bounds.Min, draw.Src)

	if err := a.annotator.Annotate(img, info); err != nil {
		return nil, fmt.Errorf("annotating: %w", err)
	}
	return img, nil
}

func (a *Archive) write(name string, img image.Image) (n int64, err error) {
	out, err := os.Create(name)
	if err != nil {
		return
	}
	defer func() {
		if cErr := out.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}()

	w := &countingWriter{w: out}

	switch a.format {
	case ImagePNG:
		err = png.Encode(w, img)

	case ImageJPEG:
		err = jpeg.Encode(w, img, &jpeg.Options{
			Quality: 98,
		})
	}

	return w.n, err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
