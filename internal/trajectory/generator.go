package trajectory

import (
	"fmt"

	"github.com/san-kum/nmpcsim/internal/sim"
)

// Horizon holds N+1 state references (x, y, theta) and N input references
// (v, omega).
type Horizon struct {
	Xref []sim.State
	Uref []sim.Control
}

func (h Horizon) Len() int { return len(h.Uref) }

type Generator struct {
	curve Curve
}

func NewGenerator(c Curve) *Generator {
	return &Generator{curve: c}
}

func (g *Generator) Curve() Curve { return g.curve }

// BuildRefs samples the curve at t0 + k*ts for k = 0..n. Stages 0..n-1 carry
// a state and an input reference; stage n carries only the state. Headings
// are unwrapped in sequence starting from seedHeading, which should be the
// plant's current heading.
func (g *Generator) BuildRefs(t0 float64, n int, ts float64, seedHeading float64) (Horizon, error) {
	if n < 1 {
		return Horizon{}, fmt.Errorf("horizon length must be at least 1, got %d", n)
	}
	if ts <= 0 {
		return Horizon{}, fmt.Errorf("sampling time must be positive, got %f", ts)
	}

	h := Horizon{
		Xref: make([]sim.State, n+1),
		Uref: make([]sim.Control, n),
	}

	prev := seedHeading
	for k := 0; k < n; k++ {
		p := Sample(g.curve, t0+float64(k)*ts)
		th := Unwrap(prev, p.Theta)
		prev = th
		h.Xref[k] = sim.State{p.X, p.Y, th}
		h.Uref[k] = sim.Control{p.Speed, p.Omega}
	}

	p := Sample(g.curve, t0+float64(n)*ts)
	h.Xref[n] = sim.State{p.X, p.Y, Unwrap(prev, p.Theta)}

	return h, nil
}
