// Package algebra provides the scalar arithmetic shared by the numeric plant
// simulation and the symbolic problem formulation.
//
// Dynamics and cost code is written once against [Algebra], then
// instantiated with:
//
//   - [Float]: plain float64 arithmetic for forward simulation
//   - [Symbolic]: expression graphs over decision and parameter variables
//
// A symbolic expression is compiled into a [Tape], a topologically ordered
// node list that evaluates in linear time and serializes for external
// solver builders.
package algebra
