package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/nmpcsim/internal/sim"
)

// PositionRMS is the root mean square planar distance to the reference.
type PositionRMS struct {
	sq []float64
}

func NewPositionRMS() *PositionRMS { return &PositionRMS{} }

func (p *PositionRMS) Name() string { return "position_rms" }

func (p *PositionRMS) Observe(x, ref sim.State, u sim.Control, t float64) {
	dx, dy := x[0]-ref[0], x[1]-ref[1]
	p.sq = append(p.sq, dx*dx+dy*dy)
}

func (p *PositionRMS) Value() float64 {
	if len(p.sq) == 0 {
		return 0
	}
	return math.Sqrt(stat.Mean(p.sq, nil))
}

func (p *PositionRMS) Reset() { p.sq = p.sq[:0] }

// MaxPositionError is the largest planar distance to the reference.
type MaxPositionError struct {
	dist []float64
}

func NewMaxPositionError() *MaxPositionError { return &MaxPositionError{} }

func (m *MaxPositionError) Name() string { return "max_position_error" }

func (m *MaxPositionError) Observe(x, ref sim.State, u sim.Control, t float64) {
	m.dist = append(m.dist, math.Hypot(x[0]-ref[0], x[1]-ref[1]))
}

func (m *MaxPositionError) Value() float64 {
	if len(m.dist) == 0 {
		return 0
	}
	return floats.Max(m.dist)
}

func (m *MaxPositionError) Reset() { m.dist = m.dist[:0] }

// HeadingRMS is the root mean square heading error, each error wrapped to
// [-pi, pi] so a reference that is unwrapped differently from the plant does
// not count whole turns.
type HeadingRMS struct {
	sq []float64
}

func NewHeadingRMS() *HeadingRMS { return &HeadingRMS{} }

func (h *HeadingRMS) Name() string { return "heading_rms" }

func (h *HeadingRMS) Observe(x, ref sim.State, u sim.Control, t float64) {
	d := x[2] - ref[2]
	d = math.Atan2(math.Sin(d), math.Cos(d))
	h.sq = append(h.sq, d*d)
}

func (h *HeadingRMS) Value() float64 {
	if len(h.sq) == 0 {
		return 0
	}
	return math.Sqrt(stat.Mean(h.sq, nil))
}

func (h *HeadingRMS) Reset() { h.sq = h.sq[:0] }

// Standard returns the tracking metrics reported for every run. r weights
// the control effort like the stage cost's input term.
func Standard(r ...float64) []sim.Metric {
	return []sim.Metric{
		NewPositionRMS(),
		NewMaxPositionError(),
		NewHeadingRMS(),
		NewControlEffort(r...),
	}
}

// Evaluate replays a history through ms and adds the degraded-step count and
// ratio.
func Evaluate(h *sim.History, ms ...sim.Metric) map[string]float64 {
	out := make(map[string]float64, len(ms)+2)
	for _, m := range ms {
		m.Reset()
		for i := 0; i < h.Len(); i++ {
			m.Observe(h.States[i], h.References[i], h.Inputs[i], h.Times[i])
		}
		out[m.Name()] = m.Value()
	}

	degraded := 0
	for _, d := range h.Degraded {
		if d {
			degraded++
		}
	}
	out["degraded_steps"] = float64(degraded)
	out["degraded_ratio"] = 0
	if h.Len() > 0 {
		out["degraded_ratio"] = float64(degraded) / float64(h.Len())
	}
	return out
}
