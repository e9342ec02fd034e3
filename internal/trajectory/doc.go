// Package trajectory synthesizes reference horizons for the tracking
// controller.
//
// A [Curve] is a parametric path with analytic first and second derivatives.
// [Sample] turns one evaluation into a dynamically consistent reference:
// heading from the velocity direction, speed from its norm and angular rate
// from curvature times speed. [Generator.BuildRefs] samples a curve over a
// horizon and keeps headings continuous relative to a seed angle with
// [Unwrap].
//
//	gen := trajectory.NewGenerator(trajectory.NewFigure8(0.4, 1))
//	h, _ := gen.BuildRefs(t0, 20, 0.1, plantHeading)
package trajectory
