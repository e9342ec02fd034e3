// Package cost holds the quadratic tracking terms of the NMPC objective.
package cost

import "github.com/san-kum/nmpcsim/internal/algebra"

// Weights are the diagonal cost weights. Q and Qt weight state deviation at
// stages and at the terminal stage, R weights input magnitude.
type Weights struct {
	Q  []float64
	Qt []float64
	R  []float64
}

// StageCost is sum_i Q[i](x[i]-xref[i])^2 + sum_j R[j] u[j]^2.
//
// The reference input is not part of this term: inputs are penalized toward
// zero, not toward the feedforward reference.
func StageCost[T any](alg algebra.Algebra[T], x, xref, q, u, r []T) T {
	zero := make([]T, len(u))
	for i := range zero {
		zero[i] = alg.Const(0)
	}
	return alg.Add(
		algebra.WeightedSquares(alg, q, x, xref),
		algebra.WeightedSquares(alg, r, u, zero),
	)
}

// TerminalCost is sum_i Qt[i](x[i]-xref[i])^2.
func TerminalCost[T any](alg algebra.Algebra[T], x, xref, qt []T) T {
	return algebra.WeightedSquares(alg, qt, x, xref)
}

// Stage evaluates StageCost on plain floats.
func Stage(x, xref, q, u, r []float64) float64 {
	return StageCost[float64](algebra.Float{}, x, xref, q, u, r)
}

// Terminal evaluates TerminalCost on plain floats.
func Terminal(x, xref, qt []float64) float64 {
	return TerminalCost[float64](algebra.Float{}, x, xref, qt)
}
