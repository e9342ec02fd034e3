package sim

// History is the append-only record of a closed-loop run. Row i holds the
// plant state after fine step i, the first reference row active during that
// step and the input applied over it.
type History struct {
	Dt         float64
	States     []State
	References []State
	Inputs     []Control
	Times      []float64
	Degraded   []bool
}

func NewHistory(dt float64, capacity int) *History {
	return &History{
		Dt:         dt,
		States:     make([]State, 0, capacity),
		References: make([]State, 0, capacity),
		Inputs:     make([]Control, 0, capacity),
		Times:      make([]float64, 0, capacity),
		Degraded:   make([]bool, 0, capacity),
	}
}

func (h *History) Append(t float64, x, ref State, u Control, degraded bool) {
	h.Times = append(h.Times, t)
	h.States = append(h.States, x.Clone())
	h.References = append(h.References, ref.Clone())
	h.Inputs = append(h.Inputs, u.Clone())
	h.Degraded = append(h.Degraded, degraded)
}

func (h *History) Len() int { return len(h.States) }

// Column extracts component i of every state (or reference) row.
func Column(rows []State, i int) []float64 {
	out := make([]float64, len(rows))
	for k, r := range rows {
		if i < len(r) {
			out[k] = r[i]
		}
	}
	return out
}

func InputColumn(rows []Control, i int) []float64 {
	out := make([]float64, len(rows))
	for k, r := range rows {
		if i < len(r) {
			out[k] = r[i]
		}
	}
	return out
}
