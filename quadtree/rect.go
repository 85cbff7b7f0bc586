package quadtree

import (
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
)

// Rect is an axis-aligned rectangle. X and Y are the top-left corner; the y
// axis grows downward.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (r Rect) Right() float64 {
	return r.X + r.Width
}

func (r Rect) Bottom() float64 {
	return r.Y + r.Height
}

func (r Rect) Center() (float64, float64) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Contains reports whether the point lies in the rectangle, edges included.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.X &&
		x <= r.Right() &&
		y >= r.Y &&
		y <= r.Bottom()
}

// Quadrants returns the four equal sub-rectangles in NW, NE, SW, SE order.
func (r Rect) Quadrants() [4]Rect {
	halfWidth := r.Width / 2
	halfHeight := r.Height / 2

	return [4]Rect{
		{X: r.X, Y: r.Y, Width: halfWidth, Height: halfHeight},
		{X: r.X + halfWidth, Y: r.Y, Width: halfWidth, Height: halfHeight},
		{X: r.X, Y: r.Y + halfHeight, Width: halfWidth, Height: halfHeight},
		{X: r.X + halfWidth, Y: r.Y + halfHeight, Width: halfWidth, Height: halfHeight},
	}
}

// route picks the quadrant a query point falls in using half-open ranges:
// the left and top halves include the midlines, the outer edges belong to
// no quadrant.
func (r Rect) route(x, y float64) (Quadrant, bool) {
	midX, midY := r.Center()

	var east bool
	switch {
	case x > midX && x < r.Right():
		east = true
	case x > r.X && x <= midX:
		east = false
	default:
		return 0, false
	}

	var south bool
	switch {
	case y > midY && y < r.Bottom():
		south = true
	case y > r.Y && y <= midY:
		south = false
	default:
		return 0, false
	}

	switch {
	case south && east:
		return SE, true
	case south:
		return SW, true
	case east:
		return NE, true
	default:
		return NW, true
	}
}

// Validate returns an error when the rectangle cannot be subdivided into
// meaningful quadrants.
func (r Rect) Validate() error {
	if !isFinite(r.X) || !isFinite(r.Y) {
		return errors.New("rectangle origin is not finite").
			WithType(ErrTypeInvalidConfig).
			WithTag("x", r.X).
			WithTag("y", r.Y)
	}

	if !(r.Width > 0) || !(r.Height > 0) || !isFinite(r.Width) || !isFinite(r.Height) {
		return errors.New("rectangle size must be positive and finite").
			WithType(ErrTypeInvalidConfig).
			WithTag("width", r.Width).
			WithTag("height", r.Height)
	}

	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
