package algebra

import "math"

// Algebra is the set of operations a rollout or cost term may use.
type Algebra[T any] interface {
	Const(c float64) T
	Add(a, b T) T
	Sub(a, b T) T
	Mul(a, b T) T
	Sin(a T) T
	Cos(a T) T
}

type Float struct{}

func (Float) Const(c float64) float64  { return c }
func (Float) Add(a, b float64) float64 { return a + b }
func (Float) Sub(a, b float64) float64 { return a - b }
func (Float) Mul(a, b float64) float64 { return a * b }
func (Float) Sin(a float64) float64    { return math.Sin(a) }
func (Float) Cos(a float64) float64    { return math.Cos(a) }

// Scale multiplies every element of v by c.
func Scale[T any](alg Algebra[T], v []T, c float64) []T {
	k := alg.Const(c)
	out := make([]T, len(v))
	for i := range v {
		out[i] = alg.Mul(k, v[i])
	}
	return out
}

// AddVec returns a + b elementwise. Both slices must have equal length.
func AddVec[T any](alg Algebra[T], a, b []T) []T {
	out := make([]T, len(a))
	for i := range a {
		out[i] = alg.Add(a[i], b[i])
	}
	return out
}

// Axpy returns x + c*y elementwise.
func Axpy[T any](alg Algebra[T], x []T, c float64, y []T) []T {
	return AddVec(alg, x, Scale(alg, y, c))
}

// WeightedSquares returns sum_i w[i] * (a[i] - b[i])^2.
func WeightedSquares[T any](alg Algebra[T], w, a, b []T) T {
	sum := alg.Const(0)
	for i := range w {
		d := alg.Sub(a[i], b[i])
		sum = alg.Add(sum, alg.Mul(w[i], alg.Mul(d, d)))
	}
	return sum
}

// Lift converts a float slice into algebra constants.
func Lift[T any](alg Algebra[T], v []float64) []T {
	out := make([]T, len(v))
	for i, c := range v {
		out[i] = alg.Const(c)
	}
	return out
}
