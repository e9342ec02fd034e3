package mpc_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/nmpcsim/internal/cost"
	"github.com/san-kum/nmpcsim/internal/formulation"
	"github.com/san-kum/nmpcsim/internal/integrators"
	"github.com/san-kum/nmpcsim/internal/metrics"
	"github.com/san-kum/nmpcsim/internal/models"
	"github.com/san-kum/nmpcsim/internal/mpc"
	"github.com/san-kum/nmpcsim/internal/sim"
	"github.com/san-kum/nmpcsim/internal/solver"
	"github.com/san-kum/nmpcsim/internal/trajectory"
)

// scripted replays canned replies in order, repeating the last one, and
// records every parameter vector and warm start it was given.
type scripted struct {
	replies []func(n int) (solver.Result, error)
	params  [][]float64
	warms   [][]float64
	closes  int
}

func (s *scripted) Solve(ctx context.Context, params, warm []float64) (solver.Result, error) {
	idx := len(s.warms)
	s.params = append(s.params, append([]float64(nil), params...))
	s.warms = append(s.warms, append([]float64(nil), warm...))
	if idx >= len(s.replies) {
		idx = len(s.replies) - 1
	}
	return s.replies[idx](len(warm))
}

func (s *scripted) Close() error {
	s.closes++
	return nil
}

func solution(v, w float64) func(n int) (solver.Result, error) {
	return func(n int) (solver.Result, error) {
		sol := make([]float64, n)
		for i := 0; i < n; i += 2 {
			sol[i], sol[i+1] = v, w
		}
		return solver.Result{ExitStatus: solver.StatusConverged, Solution: sol}, nil
	}
}

func failure(n int) (solver.Result, error) {
	return solver.Result{}, &solver.SolveError{Code: solver.CodeSolverFailed, Message: "problem solution failed"}
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func loopConfig(n int, steps int) mpc.Config {
	return mpc.Config{
		Layout:       formulation.Layout{Nx: 3, Nu: 2, N: n},
		SamplingTime: 0.1,
		Dt:           0.01,
		Steps:        steps,
		Weights: cost.Weights{
			Q:  []float64{1, 1, 0.1},
			Qt: []float64{1, 1, 0.1},
			R:  []float64{0.01, 0.01},
		},
		Identity: "test",
	}
}

func newLoop(s solver.Solver, c trajectory.Curve) *mpc.Loop {
	return mpc.New(models.NewUnicycle(), integrators.NewRK4(), trajectory.NewGenerator(c), s, quiet())
}

var _ = Describe("Loop", func() {
	var (
		updates []mpc.Update
		record  mpc.ObserverFunc
	)

	BeforeEach(func() {
		updates = nil
		record = func(u mpc.Update) { updates = append(updates, u) }
	})

	Context("with an echo solver", func() {
		It("runs every step, updates every period and closes once", func() {
			echo := solver.NewEcho(2 * 5)
			loop := newLoop(echo, trajectory.NewFigure8(0.4, 1))
			loop.AddObserver(record)
			loop.AddMetric(metrics.NewPositionRMS())

			res, err := loop.Run(context.Background(), sim.State{0, 0, 0}, loopConfig(5, 95))
			Expect(err).NotTo(HaveOccurred())

			Expect(res.History.Len()).To(Equal(95))
			Expect(res.Updates).To(Equal(10))
			Expect(echo.Calls()).To(Equal(int64(10)))
			Expect(echo.Closes()).To(Equal(int64(1)))
			Expect(res.Failures).To(BeZero())
			Expect(res.Final).To(Equal(mpc.Finished))
			Expect(loop.Mode()).To(Equal(mpc.Finished))
			Expect(res.Metrics).To(HaveKey("position_rms"))

			for _, x := range res.History.States {
				Expect(x.IsValid()).To(BeTrue())
			}
			Expect(updates).To(HaveLen(10))
			Expect(updates[3].Step).To(Equal(30))
			Expect(updates[3].Time).To(BeNumerically("~", 0.3, 1e-12))
		})

		It("records the state after each step at t+dt", func() {
			loop := newLoop(solver.NewEcho(4), trajectory.NewCircle(1, 0.2))
			res, err := loop.Run(context.Background(), sim.State{0, 0, 0}, loopConfig(2, 3))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.History.Times).To(HaveLen(3))
			Expect(res.History.Times[0]).To(BeNumerically("~", 0.01, 1e-12))
			Expect(res.History.Times[2]).To(BeNumerically("~", 0.03, 1e-12))
		})
	})

	Context("when the solver fails", func() {
		It("applies zero input if the very first solve fails", func() {
			s := &scripted{replies: []func(int) (solver.Result, error){failure}}
			loop := newLoop(s, trajectory.NewCircle(1, 0.2))
			loop.AddObserver(record)

			res, err := loop.Run(context.Background(), sim.State{0.5, 0.5, 1}, loopConfig(4, 10))
			Expect(err).NotTo(HaveOccurred())
			Expect(updates[0].Mode).To(Equal(mpc.Degraded))
			Expect(updates[0].Err).To(HaveOccurred())
			Expect(res.History.Inputs[0]).To(Equal(sim.Control{0, 0}))
			Expect(res.History.States[9]).To(Equal(sim.State{0.5, 0.5, 1}))
			Expect(res.History.Degraded[0]).To(BeTrue())
		})

		It("holds the last good input and warm start until the solver recovers", func() {
			s := &scripted{replies: []func(int) (solver.Result, error){
				solution(1, 0.5),
				failure,
				failure,
				solution(0.2, -0.1),
			}}
			loop := newLoop(s, trajectory.NewCircle(1, 0.2))
			loop.AddObserver(record)

			res, err := loop.Run(context.Background(), sim.State{0, 0, 0}, loopConfig(3, 40))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Updates).To(Equal(4))
			Expect(res.Failures).To(Equal(2))

			modes := []mpc.Mode{updates[0].Mode, updates[1].Mode, updates[2].Mode, updates[3].Mode}
			Expect(modes).To(Equal([]mpc.Mode{mpc.Running, mpc.Degraded, mpc.Degraded, mpc.Running}))

			Expect(updates[1].Input).To(Equal(sim.Control{1, 0.5}))
			Expect(updates[2].Input).To(Equal(sim.Control{1, 0.5}))
			Expect(updates[3].Input).To(Equal(sim.Control{0.2, -0.1}))

			first, _ := solution(1, 0.5)(6)
			Expect(s.warms[0]).To(Equal(make([]float64, 6)))
			Expect(s.warms[1]).To(Equal(first.Solution))
			Expect(s.warms[2]).To(Equal(first.Solution))
			Expect(s.warms[3]).To(Equal(first.Solution))

			Expect(res.History.Degraded[9]).To(BeFalse())
			Expect(res.History.Degraded[10]).To(BeTrue())
			Expect(res.History.Degraded[29]).To(BeTrue())
			Expect(res.History.Degraded[30]).To(BeFalse())
			Expect(s.closes).To(Equal(1))
		})
	})

	Context("when the run must stop", func() {
		It("fails on a malformed solution and still closes once", func() {
			s := &scripted{replies: []func(int) (solver.Result, error){
				func(int) (solver.Result, error) {
					return solver.Result{Solution: []float64{1, 2, 3}}, nil
				},
			}}
			loop := newLoop(s, trajectory.NewCircle(1, 0.2))

			res, err := loop.Run(context.Background(), sim.State{0, 0, 0}, loopConfig(3, 40))
			Expect(errors.Is(err, solver.ErrMalformedSolution)).To(BeTrue())
			Expect(res.History.Len()).To(BeZero())
			Expect(s.closes).To(Equal(1))
		})

		It("returns the partial history on cancellation", func() {
			ctx, cancel := context.WithCancel(context.Background())
			echo := solver.NewEcho(6)
			loop := newLoop(echo, trajectory.NewCircle(1, 0.2))
			loop.AddObserver(mpc.ObserverFunc(func(u mpc.Update) {
				if u.Index == 2 {
					cancel()
				}
			}))

			res, err := loop.Run(ctx, sim.State{0, 0, 0}, loopConfig(3, 100))
			Expect(err).To(MatchError(context.Canceled))
			Expect(res.History.Len()).To(Equal(11))
			Expect(echo.Closes()).To(Equal(int64(1)))
		})

		It("stops when the plant state blows up", func() {
			s := &scripted{replies: []func(int) (solver.Result, error){solution(math.Inf(1), 0)}}
			loop := newLoop(s, trajectory.NewCircle(1, 0.2))

			_, err := loop.Run(context.Background(), sim.State{0, 0, 0}, loopConfig(3, 10))
			Expect(errors.Is(err, sim.ErrInvalidState)).To(BeTrue())
			Expect(s.closes).To(Equal(1))
		})
	})

	Context("parameter packing", func() {
		It("sends the plant state first and seeds heading from the plant", func() {
			s := &scripted{replies: []func(int) (solver.Result, error){solution(1, 0)}}
			loop := newLoop(s, trajectory.NewCircle(1, 0.2))
			loop.AddObserver(record)

			x0 := sim.State{1, 0, 2*math.Pi + math.Pi/2}
			cfg := loopConfig(3, 25)
			_, err := loop.Run(context.Background(), x0, cfg)
			Expect(err).NotTo(HaveOccurred())

			Expect(s.params).To(HaveLen(3))
			Expect(s.params[0]).To(HaveLen(cfg.Layout.ParamLen()))
			for i, p := range s.params {
				x := updates[i].State
				Expect(p[:3]).To(Equal([]float64(x)))

				// Xref[0] heading is the circle tangent, unwrapped next to the plant heading.
				Expect(p[5] - x[2]).To(BeNumerically(">", -math.Pi))
				Expect(p[5] - x[2]).To(BeNumerically("<=", math.Pi))
				Expect(math.Remainder(p[5]-math.Pi/2-0.2*updates[i].Time, 2*math.Pi)).To(BeNumerically("~", 0, 1e-9))

				w := cfg.Weights
				tail := p[len(p)-8:]
				Expect(tail[:3]).To(Equal(w.Q))
				Expect(tail[3:6]).To(Equal(w.Qt))
				Expect(tail[6:]).To(Equal(w.R))
			}
			Expect(s.params[0][5]).To(BeNumerically("~", 2*math.Pi+math.Pi/2, 1e-9))
		})
	})

	Context("setup", func() {
		It("rejects inconsistent configuration and still closes the solver", func() {
			echo := solver.NewEcho(6)
			loop := newLoop(echo, trajectory.NewCircle(1, 0.2))
			cfg := loopConfig(3, 10)
			cfg.Layout.Nx = 4

			_, err := loop.Run(context.Background(), sim.State{0, 0, 0}, cfg)
			Expect(errors.Is(err, mpc.ErrSetup)).To(BeTrue())
			Expect(echo.Closes()).To(Equal(int64(1)))
		})

		It("rejects a sampling time that is not a multiple of dt", func() {
			echo := solver.NewEcho(6)
			loop := newLoop(echo, trajectory.NewCircle(1, 0.2))
			cfg := loopConfig(3, 10)
			cfg.SamplingTime = 0.15
			cfg.Dt = 0.1

			_, err := loop.Run(context.Background(), sim.State{0, 0, 0}, cfg)
			Expect(errors.Is(err, mpc.ErrSetup)).To(BeTrue())
			Expect(echo.Calls()).To(BeZero())
			Expect(echo.Closes()).To(Equal(int64(1)))
		})

		It("refuses to run twice", func() {
			echo := solver.NewEcho(6)
			loop := newLoop(echo, trajectory.NewCircle(1, 0.2))
			_, err := loop.Run(context.Background(), sim.State{0, 0, 0}, loopConfig(3, 5))
			Expect(err).NotTo(HaveOccurred())

			_, err = loop.Run(context.Background(), sim.State{0, 0, 0}, loopConfig(3, 5))
			Expect(errors.Is(err, mpc.ErrSetup)).To(BeTrue())
			Expect(echo.Closes()).To(Equal(int64(1)))
		})
	})

	Context("with the local solver", func() {
		It("pulls the plant onto a circle", func() {
			p, err := formulation.Build(formulation.Definition{
				StateDim: 3, InputDim: 2, Horizon: 10, SamplingTime: 0.1,
				Umin: []float64{-10, -10}, Umax: []float64{10, 10},
			})
			Expect(err).NotTo(HaveOccurred())
			local := solver.NewLocal(p)
			local.Budget = 0
			local.MaxIterations = 40

			loop := newLoop(local, trajectory.NewCircle(1, 0.2))
			cfg := loopConfig(10, 400)
			res, err := loop.Run(context.Background(), sim.State{0, 0, 0}, cfg)
			Expect(err).NotTo(HaveOccurred())

			last := res.History.Len() - 1
			x, ref := res.History.States[last], res.History.References[last]
			Expect(math.Hypot(x[0]-ref[0], x[1]-ref[1])).To(BeNumerically("<", 0.5))
		})
	})
})
