package integrators

import (
	"github.com/san-kum/nmpcsim/internal/algebra"
	"github.com/san-kum/nmpcsim/internal/sim"
)

// ODE is a right-hand side dx/dt = f(x, u, t) over an arbitrary scalar type.
type ODE[T any] func(x, u []T, t float64) []T

// RK4Step advances x by one classical Runge-Kutta step of size h with u held
// constant. It is pure: x and u are not modified.
func RK4Step[T any](alg algebra.Algebra[T], f ODE[T], x, u []T, t, h float64) []T {
	k1 := f(x, u, t)
	k2 := f(algebra.Axpy(alg, x, h*0.5, k1), u, t+h*0.5)
	k3 := f(algebra.Axpy(alg, x, h*0.5, k2), u, t+h*0.5)
	k4 := f(algebra.Axpy(alg, x, h, k3), u, t+h)

	n := len(x)
	sum := make([]T, n)
	two := alg.Const(2)
	for i := 0; i < n; i++ {
		s := alg.Add(k1[i], alg.Mul(two, k2[i]))
		s = alg.Add(s, alg.Mul(two, k3[i]))
		sum[i] = alg.Add(s, k4[i])
	}
	return algebra.Axpy(alg, x, h/6.0, sum)
}

// RK4 is the numeric plant integrator. It holds no state between steps.
type RK4 struct{}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) Step(dyn sim.Dynamics, x sim.State, u sim.Control, t, dt float64) sim.State {
	f := func(x, u []float64, t float64) []float64 {
		return dyn.Derivative(x, u, t)
	}
	return RK4Step[float64](algebra.Float{}, f, x, u, t, dt)
}
