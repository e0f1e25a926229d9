package archive

import (
	"fmt"
	"image"
	"time"

	"github.com/golang/freetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"
)

const (
	dpi     float64 = 72
	size    float64 = 16
	spacing float64 = 1.2
)

// FrameInfo is the text stamped onto an archived frame
type FrameInfo struct {
	MissionID  string
	LocationID string
	Index      int
	Total      int
	Timestamp  time.Time
}

// Annotator draws frame information in the bottom left corner of an image.
// It is not safe for concurrent use.
type Annotator struct {
	context *freetype.Context
}

func NewAnnotator() (*Annotator, error) {
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	context := freetype.NewContext()
	context.SetDPI(dpi)
	context.SetFont(parsedFont)
	context.SetFontSize(size)
	context.SetSrc(image.White)
	context.SetHinting(font.HintingFull)

	return &Annotator{context: context}, nil
}

func (a *Annotator) Annotate(img *image.RGBA, info FrameInfo) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	lines := []string{
		"Mission: " + info.MissionID,
		"Location: " + info.LocationID,
		fmt.Sprintf("Frame: %d/%d", info.Index, info.Total),
		"Captured: " + info.Timestamp.UTC().Format(time.RFC3339),
	}

	lineHeight := a.context.PointToFixed(size * spacing)

	bounds := img.Bounds()
	pt := freetype.Pt(bounds.Min.X+5, bounds.Max.Y-5)
	pt.Y -= lineHeight * fixed.Int26_6(len(lines)-1)

	for _, s := range lines {
		if _, err := a.context.DrawString(s, pt); err != nil {
			return fmt.Errorf("drawing '%s': %w", s, err)
		}
		pt.Y += lineHeight
	}

	return nil
}
