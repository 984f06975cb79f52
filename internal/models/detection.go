package models

import "image"

// Box is an axis-aligned rectangle in pixel coordinates (x1,y1)-(x2,y2).
type Box struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// NewBox builds a Box from corner coordinates, normalizing their order.
func NewBox(x1, y1, x2, y2 int) Box {
	if x2 < x1 {
		x1, x2 = x2, x1
	}
	if y2 < y1 {
		y1, y2 = y2, y1
	}
	return Box{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

// Width returns the horizontal extent, never negative.
func (b Box) Width() int {
	if b.X2 < b.X1 {
		return 0
	}
	return b.X2 - b.X1
}

// Height returns the vertical extent, never negative.
func (b Box) Height() int {
	if b.Y2 < b.Y1 {
		return 0
	}
	return b.Y2 - b.Y1
}

// Area returns the box area in square pixels.
func (b Box) Area() int {
	return b.Width() * b.Height()
}

// Rect converts the box to an image.Rectangle for drawing.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2)
}

// IoU returns the overlap ratio of two boxes: intersection area divided by
// union area. Disjoint or degenerate boxes yield 0.
func (b Box) IoU(other Box) float64 {
	ix1 := max(b.X1, other.X1)
	iy1 := max(b.Y1, other.Y1)
	ix2 := min(b.X2, other.X2)
	iy2 := min(b.Y2, other.Y2)

	if ix2 <= ix1 || iy2 <= iy1 {
		return 0
	}

	inter := (ix2 - ix1) * (iy2 - iy1)
	union := b.Area() + other.Area() - inter
	if union <= 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Detection is a single model output for one frame. It has no identity
// across frames.
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}
