package trajectory

import "math"

// Derivs is a curve point with its first and second time derivatives.
type Derivs struct {
	X, Y     float64
	DX, DY   float64
	DDX, DDY float64
}

type Curve interface {
	Name() string
	Eval(t float64) Derivs
}

// Sine moves forward at constant speed while oscillating sideways:
// x = V0 t, y = A sin(W t).
type Sine struct {
	V0, A, W float64
}

func NewSine(v0, a, w float64) *Sine { return &Sine{V0: v0, A: a, W: w} }

func (s *Sine) Name() string { return "sine" }

func (s *Sine) Eval(t float64) Derivs {
	sin, cos := math.Sincos(s.W * t)
	return Derivs{
		X: s.V0 * t, Y: s.A * sin,
		DX: s.V0, DY: s.A * s.W * cos,
		DDX: 0, DDY: -s.A * s.W * s.W * sin,
	}
}

// Circle is a counter-clockwise circle about the origin:
// x = R cos(W t), y = R sin(W t).
type Circle struct {
	R, W float64
}

func NewCircle(r, w float64) *Circle { return &Circle{R: r, W: w} }

func (c *Circle) Name() string { return "circle" }

func (c *Circle) Eval(t float64) Derivs {
	sin, cos := math.Sincos(c.W * t)
	w2 := c.W * c.W
	return Derivs{
		X: c.R * cos, Y: c.R * sin,
		DX: -c.R * c.W * sin, DY: c.R * c.W * cos,
		DDX: -c.R * w2 * cos, DDY: -c.R * w2 * sin,
	}
}

// Figure8 is a lemniscate-like path: x = A sin(2 W t), y = A sin(W t).
type Figure8 struct {
	A, W float64
}

func NewFigure8(a, w float64) *Figure8 { return &Figure8{A: a, W: w} }

func (f *Figure8) Name() string { return "figure8" }

func (f *Figure8) Eval(t float64) Derivs {
	sin1, cos1 := math.Sincos(f.W * t)
	sin2, cos2 := math.Sincos(2 * f.W * t)
	w2 := f.W * f.W
	return Derivs{
		X: f.A * sin2, Y: f.A * sin1,
		DX: 2 * f.W * f.A * cos2, DY: f.W * f.A * cos1,
		DDX: -4 * w2 * f.A * sin2, DDY: -w2 * f.A * sin1,
	}
}
