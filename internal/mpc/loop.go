// Package mpc runs the closed-loop receding-horizon controller: the plant is
// integrated at a fine step while the optimizer is consulted every sampling
// period, warm-started with its previous solution.
package mpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/san-kum/nmpcsim/internal/cost"
	"github.com/san-kum/nmpcsim/internal/formulation"
	"github.com/san-kum/nmpcsim/internal/metrics"
	"github.com/san-kum/nmpcsim/internal/sim"
	"github.com/san-kum/nmpcsim/internal/solver"
	"github.com/san-kum/nmpcsim/internal/trajectory"
)

var ErrSetup = errors.New("mpc: setup failed")

// Config fixes the timing, problem shape and weights of one run.
type Config struct {
	Layout       formulation.Layout
	SamplingTime float64
	Dt           float64
	Steps        int
	Weights      cost.Weights
	Identity     string
}

// SampleEvery is the number of fine steps between controller updates.
func (c Config) SampleEvery() int {
	return int(math.Round(c.SamplingTime / c.Dt))
}

// Update describes one controller update.
type Update struct {
	Index     int
	Step      int
	Time      float64
	State     sim.State
	Horizon   trajectory.Horizon
	Input     sim.Control
	Mode      Mode
	Result    solver.Result
	Err       error
	SolveTime time.Duration
}

type Observer interface {
	OnUpdate(u Update)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(u Update)

func (f ObserverFunc) OnUpdate(u Update) { f(u) }

// Result is what a run produced. It is returned even when the run stops
// early, holding everything recorded up to that point.
type Result struct {
	History  *sim.History
	Metrics  map[string]float64
	Updates  int
	Failures int
	Elapsed  time.Duration
	Final    Mode
}

// MsPerStep is the wall-clock average per fine step.
func (r *Result) MsPerStep() float64 {
	if r.History == nil || r.History.Len() == 0 {
		return 0
	}
	return float64(r.Elapsed) / float64(time.Millisecond) / float64(r.History.Len())
}

type Loop struct {
	plant      sim.Dynamics
	integrator sim.Integrator
	gen        *trajectory.Generator
	solver     solver.Solver
	logger     *slog.Logger
	metrics    []sim.Metric
	observers  []Observer

	mode      Mode
	closeOnce sync.Once
	ran       bool
}

func New(plant sim.Dynamics, integrator sim.Integrator, gen *trajectory.Generator, s solver.Solver, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		plant:      plant,
		integrator: integrator,
		gen:        gen,
		solver:     s,
		logger:     logger,
		metrics:    make([]sim.Metric, 0),
		observers:  make([]Observer, 0),
	}
}

func (l *Loop) AddMetric(m sim.Metric) { l.metrics = append(l.metrics, m) }
func (l *Loop) AddObserver(o Observer) { l.observers = append(l.observers, o) }
func (l *Loop) Mode() Mode             { return l.mode }

// Run drives the plant from x0 for cfg.Steps fine steps. The solver is closed
// exactly once when Run returns, whatever the outcome. Solve failures do not
// stop the run; they hold the previous input and switch to Degraded.
func (l *Loop) Run(ctx context.Context, x0 sim.State, cfg Config) (*Result, error) {
	if l.ran {
		return nil, fmt.Errorf("%w: loop already ran", ErrSetup)
	}
	l.ran = true
	defer l.closeSolver()

	if err := l.validate(x0, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSetup, err)
	}

	layout := cfg.Layout
	nu := layout.Nu
	kSample := cfg.SampleEvery()

	res := &Result{
		History: sim.NewHistory(cfg.Dt, cfg.Steps),
		Metrics: make(map[string]float64),
	}
	for _, m := range l.metrics {
		m.Reset()
	}

	x := x0.Clone()
	warm := make([]float64, layout.DecisionLen())
	u := make(sim.Control, nu)
	var horizon trajectory.Horizon

	l.mode = Initializing
	metrics.LoopMode.WithLabelValues(cfg.Identity).Set(float64(l.mode))
	l.logger.Info("control loop starting",
		"optimizer", cfg.Identity,
		"steps", cfg.Steps,
		"sample_every", kSample,
		"horizon", layout.N,
	)

	start := time.Now()
	finish := func(err error) (*Result, error) {
		res.Elapsed = time.Since(start)
		l.setMode(Finished, cfg.Identity)
		res.Final = l.mode
		for _, m := range l.metrics {
			res.Metrics[m.Name()] = m.Value()
		}
		l.logger.Info("control loop finished",
			"steps", res.History.Len(),
			"updates", res.Updates,
			"failures", res.Failures,
			"elapsed", res.Elapsed,
			"ms_per_step", res.MsPerStep(),
		)
		return res, err
	}

	for k := 0; k < cfg.Steps; k++ {
		select {
		case <-ctx.Done():
			return finish(ctx.Err())
		default:
		}

		t := float64(k) * cfg.Dt
		if k%kSample == 0 {
			var err error
			horizon, err = l.gen.BuildRefs(t, layout.N, cfg.SamplingTime, x[2])
			if err != nil {
				return finish(fmt.Errorf("build references at t=%g: %w", t, err))
			}
			params, err := layout.Pack(x, horizon, cfg.Weights)
			if err != nil {
				return finish(fmt.Errorf("pack parameters at t=%g: %w", t, err))
			}

			solveStart := time.Now()
			sol, solveErr := l.solver.Solve(ctx, params, warm)
			solveTime := time.Since(solveStart)
			res.Updates++
			metrics.ControllerUpdates.WithLabelValues(cfg.Identity).Inc()
			metrics.SolveLatency.WithLabelValues(cfg.Identity).Observe(solveTime.Seconds())

			if solveErr == nil && len(sol.Solution) != len(warm) {
				return finish(fmt.Errorf("%w: update %d returned %d values, want %d",
					solver.ErrMalformedSolution, res.Updates, len(sol.Solution), len(warm)))
			}
			if solveErr != nil {
				if ctx.Err() != nil {
					return finish(ctx.Err())
				}
				res.Failures++
				metrics.SolveFailures.WithLabelValues(cfg.Identity).Inc()
				l.logger.Warn("solve failed, holding previous input",
					"update", res.Updates, "t", t, "error", solveErr)
				l.setMode(Degraded, cfg.Identity)
			} else {
				copy(warm, sol.Solution)
				l.setMode(Running, cfg.Identity)
			}
			u = sim.Control(warm[:nu]).Clone()
			metrics.PositionError.WithLabelValues(cfg.Identity).Set(math.Hypot(x[0]-horizon.Xref[0][0], x[1]-horizon.Xref[0][1]))

			l.notify(Update{
				Index:     res.Updates,
				Step:      k,
				Time:      t,
				State:     x.Clone(),
				Horizon:   horizon,
				Input:     u.Clone(),
				Mode:      l.mode,
				Result:    sol,
				Err:       solveErr,
				SolveTime: solveTime,
			})
		}

		next := l.integrator.Step(l.plant, x, u, t, cfg.Dt)
		if !next.IsValid() {
			return finish(sim.SimError{Time: t, Step: k, Message: "plant state is not finite"})
		}
		x = next

		ref := horizon.Xref[0]
		for _, m := range l.metrics {
			m.Observe(x, ref, u, t+cfg.Dt)
		}
		res.History.Append(t+cfg.Dt, x, ref, u, l.mode == Degraded)
	}

	return finish(nil)
}

func (l *Loop) validate(x0 sim.State, cfg Config) error {
	if cfg.Dt <= 0 {
		return fmt.Errorf("dt must be positive, got %f", cfg.Dt)
	}
	ratio := cfg.SamplingTime / cfg.Dt
	if ratio < 1-1e-9 || math.Abs(ratio-math.Round(ratio)) > 1e-9*math.Max(1, ratio) {
		return fmt.Errorf("sampling time %g is not a positive integer multiple of dt %g", cfg.SamplingTime, cfg.Dt)
	}
	if cfg.Steps < 0 {
		return fmt.Errorf("steps must be non-negative, got %d", cfg.Steps)
	}
	if cfg.Layout.N < 1 {
		return fmt.Errorf("horizon must be at least 1, got %d", cfg.Layout.N)
	}
	if l.plant.StateDim() != cfg.Layout.Nx || l.plant.ControlDim() != cfg.Layout.Nu {
		return fmt.Errorf("plant is %dx%d, layout is %dx%d",
			l.plant.StateDim(), l.plant.ControlDim(), cfg.Layout.Nx, cfg.Layout.Nu)
	}
	if len(x0) != cfg.Layout.Nx || !x0.IsValid() {
		return fmt.Errorf("initial state %v: %w", x0, sim.ErrInvalidState)
	}
	return nil
}

func (l *Loop) setMode(m Mode, identity string) {
	if l.mode == m {
		return
	}
	l.logger.Info("mode change", "from", l.mode.String(), "to", m.String())
	l.mode = m
	metrics.LoopMode.WithLabelValues(identity).Set(float64(m))
}

func (l *Loop) notify(u Update) {
	for _, o := range l.observers {
		o.OnUpdate(u)
	}
}

func (l *Loop) closeSolver() {
	l.closeOnce.Do(func() {
		if err := l.solver.Close(); err != nil {
			l.logger.Warn("closing solver", "error", err)
		}
	})
}
