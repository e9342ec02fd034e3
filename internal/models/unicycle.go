package models

import (
	"github.com/san-kum/nmpcsim/internal/algebra"
	"github.com/san-kum/nmpcsim/internal/integrators"
	"github.com/san-kum/nmpcsim/internal/sim"
)

const (
	UnicycleStateDim = 3 // x, y, theta
	UnicycleInputDim = 2 // v, omega
)

// UnicycleODE is the kinematic unicycle: x' = v cos(theta), y' = v sin(theta),
// theta' = omega.
func UnicycleODE[T any](alg algebra.Algebra[T], x, u []T) []T {
	theta := x[2]
	v, omega := u[0], u[1]
	return []T{
		alg.Mul(v, alg.Cos(theta)),
		alg.Mul(v, alg.Sin(theta)),
		omega,
	}
}

// UnicycleStep integrates the unicycle over h with one RK4 step. It works on
// any algebra, so the same rollout drives simulation and problem assembly.
func UnicycleStep[T any](alg algebra.Algebra[T], x, u []T, h float64) []T {
	f := func(x, u []T, _ float64) []T { return UnicycleODE(alg, x, u) }
	return integrators.RK4Step(alg, f, x, u, 0, h)
}

type Unicycle struct{}

func NewUnicycle() *Unicycle {
	return &Unicycle{}
}

func (m *Unicycle) StateDim() int   { return UnicycleStateDim }
func (m *Unicycle) ControlDim() int { return UnicycleInputDim }

func (m *Unicycle) Derivative(x sim.State, u sim.Control, t float64) sim.State {
	return UnicycleODE[float64](algebra.Float{}, x, u)
}

// Advance returns the state after h seconds under constant input u.
func Advance(x sim.State, u sim.Control, h float64) sim.State {
	return UnicycleStep[float64](algebra.Float{}, x, u, h)
}
