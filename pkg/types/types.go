package types

import "math"

// Box represents a normalized bounding box with coordinates in [0,1] range.
// The origin is the top-left corner, as returned by vision models.
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Observation converts a top-left-origin box into a bottom-left-origin Observation
func (b Box) Observation() Observation {
	return Observation{X: b.X, Y: 1 - (b.Y + b.H), W: b.W, H: b.H}
}

// Observation is the normalized bounding box of a detected subject within a frame.
// The origin is the bottom-left corner and y grows upward, so MaxY is the top of the box.
type Observation struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

func (o Observation) MinX() float64 { return o.X }
func (o Observation) MinY() float64 { return o.Y }
func (o Observation) MaxX() float64 { return o.X + o.W }
func (o Observation) MaxY() float64 { return o.Y + o.H }
func (o Observation) MidX() float64 { return o.X + o.W/2 }
func (o Observation) MidY() float64 { return o.Y + o.H/2 }

// Area returns the normalized area of the box
func (o Observation) Area() float64 {
	return o.W * o.H
}

// Valid reports whether the box has finite, non-negative extent
func (o Observation) Valid() bool {
	for _, v := range []float64{o.X, o.Y, o.W, o.H} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return o.W > 0 && o.H > 0
}

// Box converts the observation back to a top-left-origin box
func (o Observation) Box() Box {
	return Box{X: o.X, Y: 1 - o.MaxY(), W: o.W, H: o.H}
}

// Size is a frame size in pixels
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Valid reports whether both dimensions are positive
func (s Size) Valid() bool {
	return s.Width > 0 && s.Height > 0
}

// Point is a normalized point in Observation space
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Location is the subject location returned by a vision model
type Location struct {
	Label      string   `json:"label"`
	Confidence float64  `json:"confidence"`
	Box        Box      `json:"box"`
	Tags       []string `json:"tags"`
}
