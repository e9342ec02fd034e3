package formulation

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/nmpcsim/internal/algebra"
	"github.com/san-kum/nmpcsim/internal/cost"
	"github.com/san-kum/nmpcsim/internal/models"
)

// Solver settings handed to the external builder.
const (
	SolverTolerance        = 1e-6
	SolverInitialTolerance = 1e-6
)

// Definition is what the problem depends on at build time.
type Definition struct {
	StateDim     int
	InputDim     int
	Horizon      int
	SamplingTime float64
	Umin         []float64
	Umax         []float64
}

// Problem is the finite-horizon optimal control problem: minimize the summed
// stage costs plus terminal cost of the unicycle rollout from P.x0 under
// decision inputs U, subject to Umin <= u_k <= Umax at every stage.
type Problem struct {
	Name         string
	Layout       Layout
	SamplingTime float64
	Umin         []float64
	Umax         []float64
	Cost         *algebra.Expr

	tape *algebra.Tape
}

// Build assembles the problem symbolically.
func Build(def Definition) (*Problem, error) {
	if def.StateDim != models.UnicycleStateDim || def.InputDim != models.UnicycleInputDim {
		return nil, fmt.Errorf("%w: unicycle needs nx=%d nu=%d, got nx=%d nu=%d",
			ErrLayout, models.UnicycleStateDim, models.UnicycleInputDim, def.StateDim, def.InputDim)
	}
	if def.SamplingTime <= 0 {
		return nil, fmt.Errorf("sampling time must be positive, got %f", def.SamplingTime)
	}
	l, err := NewLayout(def.StateDim, def.InputDim, def.Horizon)
	if err != nil {
		return nil, err
	}
	if len(def.Umin) != l.Nu || len(def.Umax) != l.Nu {
		return nil, fmt.Errorf("%w: bounds have %d/%d entries, want %d", ErrLayout, len(def.Umin), len(def.Umax), l.Nu)
	}
	for i := range def.Umin {
		if def.Umin[i] > def.Umax[i] {
			return nil, fmt.Errorf("umin[%d]=%g exceeds umax[%d]=%g", i, def.Umin[i], i, def.Umax[i])
		}
	}

	s := algebra.Symbolic{}
	xk := algebra.Params(0, l.Nx)
	q := algebra.Params(l.qOffset(), l.Nx)
	qt := algebra.Params(l.qtOffset(), l.Nx)
	r := algebra.Params(l.rOffset(), l.Nu)
	xref := func(k int) []*algebra.Expr { return algebra.Params(l.xrefOffset()+l.Nx*k, l.Nx) }

	total := s.Const(0)
	for k := 0; k < l.N; k++ {
		uk := algebra.Decisions(l.Nu*k, l.Nu)
		total = s.Add(total, cost.StageCost[*algebra.Expr](s, xk, xref(k), q, uk, r))
		xk = models.UnicycleStep[*algebra.Expr](s, xk, uk, def.SamplingTime)
	}
	total = s.Add(total, cost.TerminalCost[*algebra.Expr](s, xk, xref(l.N), qt))

	return &Problem{
		Name:         Identity(l.N, def.SamplingTime),
		Layout:       l,
		SamplingTime: def.SamplingTime,
		Umin:         append([]float64(nil), def.Umin...),
		Umax:         append([]float64(nil), def.Umax...),
		Cost:         total,
		tape:         algebra.Compile(total),
	}, nil
}

// Bounds tiles the per-stage rectangle over the whole decision vector.
func (p *Problem) Bounds() (lower, upper []float64) {
	n := p.Layout.DecisionLen()
	lower = make([]float64, n)
	upper = make([]float64, n)
	for i := 0; i < n; i++ {
		lower[i] = p.Umin[i%p.Layout.Nu]
		upper[i] = p.Umax[i%p.Layout.Nu]
	}
	return lower, upper
}

// MaxDurationMicros is the solver time budget: one sampling period.
func (p *Problem) MaxDurationMicros() int64 {
	return int64(math.Round(p.SamplingTime * 1e6))
}

func (p *Problem) Tape() *algebra.Tape { return p.tape }

// Evaluate computes the objective for decision vector u and parameters params.
func (p *Problem) Evaluate(u, params []float64) (float64, error) {
	if len(u) != p.Layout.DecisionLen() {
		return 0, fmt.Errorf("%w: decision vector has %d entries, want %d", ErrLayout, len(u), p.Layout.DecisionLen())
	}
	if len(params) != p.Layout.ParamLen() {
		return 0, fmt.Errorf("%w: parameter vector has %d entries, want %d", ErrLayout, len(params), p.Layout.ParamLen())
	}
	return p.tape.Eval(u, params)
}

// Identity names the generated solver after its horizon and sampling time,
// e.g. build/unicycle/horizon_20/sampling_0_1.
func Identity(horizon int, samplingTime float64) string {
	ts := strconv.FormatFloat(samplingTime, 'f', -1, 64)
	if !strings.Contains(ts, ".") {
		ts += ".0"
	}
	return fmt.Sprintf("build/unicycle/horizon_%d/sampling_%s", horizon, strings.ReplaceAll(ts, ".", "_"))
}

type layoutDoc struct {
	StateDim    int       `yaml:"state_dim"`
	InputDim    int       `yaml:"input_dim"`
	Horizon     int       `yaml:"horizon_len"`
	DecisionLen int       `yaml:"decision_len"`
	ParamLen    int       `yaml:"param_len"`
	Params      []Segment `yaml:"params"`
}

type boundsDoc struct {
	Kind  string    `yaml:"kind"`
	Lower []float64 `yaml:"umin,flow"`
	Upper []float64 `yaml:"umax,flow"`
}

type solverDoc struct {
	Tolerance         float64 `yaml:"tolerance"`
	InitialTolerance  float64 `yaml:"initial_tolerance"`
	MaxDurationMicros int64   `yaml:"max_duration_micros"`
	Preconditioning   bool    `yaml:"preconditioning"`
	Interface         string  `yaml:"interface"`
}

// Document is the serialized form consumed by the external solver builder.
type Document struct {
	Name         string        `yaml:"name"`
	SamplingTime float64       `yaml:"sampling_time"`
	Layout       layoutDoc     `yaml:"layout"`
	Bounds       boundsDoc     `yaml:"bounds"`
	Solver       solverDoc     `yaml:"solver"`
	Cost         *algebra.Tape `yaml:"cost"`
}

func (p *Problem) Document() Document {
	return Document{
		Name:         p.Name,
		SamplingTime: p.SamplingTime,
		Layout: layoutDoc{
			StateDim:    p.Layout.Nx,
			InputDim:    p.Layout.Nu,
			Horizon:     p.Layout.N,
			DecisionLen: p.Layout.DecisionLen(),
			ParamLen:    p.Layout.ParamLen(),
			Params:      p.Layout.Segments(),
		},
		Bounds: boundsDoc{Kind: "rectangle", Lower: p.Umin, Upper: p.Umax},
		Solver: solverDoc{
			Tolerance:         SolverTolerance,
			InitialTolerance:  SolverInitialTolerance,
			MaxDurationMicros: p.MaxDurationMicros(),
			Preconditioning:   true,
			Interface:         "tcp",
		},
		Cost: p.tape,
	}
}

// Export writes the problem document as YAML.
func (p *Problem) Export(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(p.Document()); err != nil {
		return fmt.Errorf("encode problem: %w", err)
	}
	return enc.Close()
}
