package mot

import (
	"image"
	"math"
)

// Rectangle is an axis-aligned box given by its top-left corner and size.
type Rectangle struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

func NewRect(x, y, width, height float64) Rectangle {
	return Rectangle{
		X:      x,
		Y:      y,
		Width:  width,
		Height: height,
	}
}

func NewRectFrom(rect image.Rectangle) Rectangle {
	return Rectangle{
		X:      float64(rect.Min.X),
		Y:      float64(rect.Min.Y),
		Width:  float64(rect.Dx()),
		Height: float64(rect.Dy()),
	}
}

// NewRectCentered builds a rectangle around the given center
func NewRectCentered(center Point, width, height float64) Rectangle {
	return Rectangle{
		X:      center.X - width/2.0,
		Y:      center.Y - height/2.0,
		Width:  width,
		Height: height,
	}
}

// Center returns the middle point of the rectangle
func (rect Rectangle) Center() Point {
	return Point{
		X: rect.X + rect.Width/2.0,
		Y: rect.Y + rect.Height/2.0,
	}
}

// Scale multiplies position and size by per-axis factors (detector space to display space)
func (rect Rectangle) Scale(sx, sy float64) Rectangle {
	return Rectangle{
		X:      rect.X * sx,
		Y:      rect.Y * sy,
		Width:  rect.Width * sx,
		Height: rect.Height * sy,
	}
}

type Point struct {
	X float64
	Y float64
}

func NewPoint(x, y float64) Point {
	return Point{
		X: x,
		Y: y,
	}
}

func NewPointFrom(point image.Point) Point {
	return Point{
		X: float64(point.X),
		Y: float64(point.Y),
	}
}

func euclideanDistance(p1, p2 Point) float64 {
	return math.Sqrt(math.Pow(p1.X-p2.X, 2) + math.Pow(p1.Y-p2.Y, 2))
}

// blend is an exponential moving average step: prev*(1-alpha) + next*alpha
func blend(prev, next, alpha float64) float64 {
	return prev*(1-alpha) + next*alpha
}

func isFinite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
