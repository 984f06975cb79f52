// Package overlay draws track boxes and captions onto frames and encodes them as JPEG.
package overlay

import (
	"fmt"
	"image"
	"image/color"

	"catwatch/internal/models"
	"catwatch/internal/services/capture"

	"gocv.io/x/gocv"
)

const (
	boxThickness  = 2
	textScale     = 0.6
	textThickness = 2
	captionOffset = 10
)

var (
	green = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	red   = color.RGBA{R: 255, G: 0, B: 0, A: 0}
	blue  = color.RGBA{R: 0, G: 0, B: 255, A: 0}
)

// DefaultColors assigns the overlay color per label.
var DefaultColors = map[string]color.RGBA{
	"cat":    green,
	"person": red,
}

// Renderer implements pipeline.Renderer[*capture.Frame].
type Renderer struct {
	colors   map[string]color.RGBA
	fallback color.RGBA
}

func NewRenderer(colors map[string]color.RGBA) *Renderer {
	if colors == nil {
		colors = DefaultColors
	}
	return &Renderer{colors: colors, fallback: blue}
}

// Color returns the overlay color for a label.
func (r *Renderer) Color(label string) color.RGBA {
	if c, ok := r.colors[label]; ok {
		return c
	}
	return r.fallback
}

// Render draws every track onto the frame in place and returns the JPEG bytes.
func (r *Renderer) Render(frame *capture.Frame, tracks []models.Track) ([]byte, error) {
	if frame == nil || frame.Mat.Empty() {
		return nil, fmt.Errorf("empty frame")
	}

	for _, track := range tracks {
		c := r.Color(track.Label)
		if err := gocv.Rectangle(&frame.Mat, track.Box.Rect(), c, boxThickness); err != nil {
			return nil, fmt.Errorf("failed to draw rectangle: %w", err)
		}
		if err := gocv.PutText(&frame.Mat, Caption(track), CaptionOrigin(track.Box), gocv.FontHersheySimplex, textScale, c, textThickness); err != nil {
			return nil, fmt.Errorf("failed to draw text: %w", err)
		}
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, frame.Mat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

// Caption is the text drawn above a track box, e.g. "CAT 0.93".
func Caption(track models.Track) string {
	return fmt.Sprintf("%s %.2f", models.DisplayLabel(track.Label), track.Confidence)
}

// CaptionOrigin places the caption just above the box, inside the frame.
func CaptionOrigin(box models.Box) image.Point {
	return image.Pt(box.X1, max(box.Y1-captionOffset, captionOffset))
}
