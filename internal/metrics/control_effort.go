package metrics

import (
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/nmpcsim/internal/sim"
)

// ControlEffort is the mean input energy sum_j R_j*u_j^2 over the run, the
// same input term the stage cost penalizes. Inputs without a weight count 1.
type ControlEffort struct {
	weights []float64
	energy  []float64
}

func NewControlEffort(r ...float64) *ControlEffort {
	return &ControlEffort{weights: append([]float64(nil), r...)}
}

func (c *ControlEffort) Name() string { return "control_effort" }

func (c *ControlEffort) Observe(x, ref sim.State, u sim.Control, t float64) {
	var e float64
	for j, v := range u {
		w := 1.0
		if j < len(c.weights) {
			w = c.weights[j]
		}
		e += w * v * v
	}
	c.energy = append(c.energy, e)
}

func (c *ControlEffort) Value() float64 {
	if len(c.energy) == 0 {
		return 0
	}
	return stat.Mean(c.energy, nil)
}

func (c *ControlEffort) Reset() { c.energy = c.energy[:0] }
