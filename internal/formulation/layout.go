package formulation

import (
	"errors"
	"fmt"

	"github.com/san-kum/nmpcsim/internal/cost"
	"github.com/san-kum/nmpcsim/internal/sim"
	"github.com/san-kum/nmpcsim/internal/trajectory"
)

var ErrLayout = errors.New("formulation: layout mismatch")

// Layout fixes the decision and parameter vector shapes for state dimension
// Nx, input dimension Nu and horizon N.
//
// Decision vector: [u_0; u_1; ...; u_{N-1}], each block Nu long.
// Parameter vector: [x0 | Xref row-major (N+1)*Nx | Uref row-major N*Nu | Q | Qt | R].
type Layout struct {
	Nx, Nu, N int
}

func NewLayout(nx, nu, n int) (Layout, error) {
	if nx < 1 || nu < 1 || n < 1 {
		return Layout{}, fmt.Errorf("%w: dimensions must be positive (nx=%d nu=%d N=%d)", ErrLayout, nx, nu, n)
	}
	return Layout{Nx: nx, Nu: nu, N: n}, nil
}

func (l Layout) DecisionLen() int { return l.Nu * l.N }

func (l Layout) ParamLen() int {
	return l.Nx + l.Nx*(l.N+1) + l.Nu*l.N + 2*l.Nx + l.Nu
}

// Segment is a named slice of the parameter vector.
type Segment struct {
	Name   string `yaml:"name"`
	Offset int    `yaml:"offset"`
	Len    int    `yaml:"len"`
}

// Segments lists the parameter vector blocks in wire order.
func (l Layout) Segments() []Segment {
	sizes := []struct {
		name string
		n    int
	}{
		{"x0", l.Nx},
		{"xref", l.Nx * (l.N + 1)},
		{"uref", l.Nu * l.N},
		{"Q", l.Nx},
		{"Qt", l.Nx},
		{"R", l.Nu},
	}
	segs := make([]Segment, len(sizes))
	off := 0
	for i, s := range sizes {
		segs[i] = Segment{Name: s.name, Offset: off, Len: s.n}
		off += s.n
	}
	return segs
}

func (l Layout) xrefOffset() int { return l.Nx }
func (l Layout) urefOffset() int { return l.Nx + l.Nx*(l.N+1) }
func (l Layout) qOffset() int    { return l.urefOffset() + l.Nu*l.N }
func (l Layout) qtOffset() int   { return l.qOffset() + l.Nx }
func (l Layout) rOffset() int    { return l.qtOffset() + l.Nx }

// Pack concatenates the current state, the reference horizon and the weights
// into a parameter vector.
func (l Layout) Pack(x0 sim.State, h trajectory.Horizon, w cost.Weights) ([]float64, error) {
	if len(x0) != l.Nx {
		return nil, fmt.Errorf("%w: state has %d entries, want %d", ErrLayout, len(x0), l.Nx)
	}
	if len(h.Xref) != l.N+1 || len(h.Uref) != l.N {
		return nil, fmt.Errorf("%w: horizon has %d/%d rows, want %d/%d", ErrLayout, len(h.Xref), len(h.Uref), l.N+1, l.N)
	}
	if len(w.Q) != l.Nx || len(w.Qt) != l.Nx || len(w.R) != l.Nu {
		return nil, fmt.Errorf("%w: weights Q=%d Qt=%d R=%d, want %d/%d/%d", ErrLayout, len(w.Q), len(w.Qt), len(w.R), l.Nx, l.Nx, l.Nu)
	}

	p := make([]float64, 0, l.ParamLen())
	p = append(p, x0...)
	for k, row := range h.Xref {
		if len(row) != l.Nx {
			return nil, fmt.Errorf("%w: Xref[%d] has %d entries, want %d", ErrLayout, k, len(row), l.Nx)
		}
		p = append(p, row...)
	}
	for k, row := range h.Uref {
		if len(row) != l.Nu {
			return nil, fmt.Errorf("%w: Uref[%d] has %d entries, want %d", ErrLayout, k, len(row), l.Nu)
		}
		p = append(p, row...)
	}
	p = append(p, w.Q...)
	p = append(p, w.Qt...)
	p = append(p, w.R...)
	return p, nil
}

// Input returns stage k of a decision vector.
func (l Layout) Input(u []float64, k int) sim.Control {
	out := make(sim.Control, l.Nu)
	copy(out, u[k*l.Nu:(k+1)*l.Nu])
	return out
}
