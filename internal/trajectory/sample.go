package trajectory

import "math"

// minSpeed is the speed below which heading and curvature are undefined.
const minSpeed = 1e-9

// Point is a reference sample. Theta is the raw atan2 heading in (-pi, pi].
type Point struct {
	X, Y      float64
	Theta     float64
	Speed     float64
	Curvature float64
	Omega     float64
}

// Sample evaluates c at t and derives the feedforward references. When the
// curve is momentarily at rest, curvature and angular rate are reported as 0.
func Sample(c Curve, t float64) Point {
	d := c.Eval(t)
	speed := math.Hypot(d.DX, d.DY)
	p := Point{
		X:     d.X,
		Y:     d.Y,
		Theta: math.Atan2(d.DY, d.DX),
		Speed: speed,
	}
	if speed < minSpeed {
		return p
	}
	p.Curvature = (d.DX*d.DDY - d.DY*d.DDX) / (speed * speed * speed)
	p.Omega = p.Curvature * speed
	return p
}

// Unwrap maps raw onto the branch nearest prev, so that the returned angle
// differs from prev by a value in (-pi, pi].
func Unwrap(prev, raw float64) float64 {
	m := math.Mod(math.Pi-(raw-prev), 2*math.Pi)
	if m < 0 {
		m += 2 * math.Pi
	}
	return prev + (math.Pi - m)
}
