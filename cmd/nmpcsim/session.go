package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/san-kum/nmpcsim/internal/config"
	"github.com/san-kum/nmpcsim/internal/formulation"
	"github.com/san-kum/nmpcsim/internal/integrators"
	"github.com/san-kum/nmpcsim/internal/metrics"
	"github.com/san-kum/nmpcsim/internal/models"
	"github.com/san-kum/nmpcsim/internal/mpc"
	"github.com/san-kum/nmpcsim/internal/report"
	"github.com/san-kum/nmpcsim/internal/sim"
	"github.com/san-kum/nmpcsim/internal/solver"
	"github.com/san-kum/nmpcsim/internal/store"
	"github.com/san-kum/nmpcsim/internal/trajectory"
	"github.com/san-kum/nmpcsim/internal/viz"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// session is one configured control loop, ready to run.
type session struct {
	cfg   *config.Config
	loop  *mpc.Loop
	run   mpc.Config
	times *report.SolveTimes
}

func newSession(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*session, error) {
	c, err := trajectory.NewCurve(cfg.Trajectory.Curve, cfg.Trajectory.Params)
	if err != nil {
		return nil, err
	}
	layout, err := formulation.NewLayout(cfg.StateDim, cfg.InputDim, cfg.HorizonLen)
	if err != nil {
		return nil, err
	}

	s, err := openSolver(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	loop := mpc.New(models.NewUnicycle(), integrators.NewRK4(), trajectory.NewGenerator(c), s, logger)
	for _, m := range metrics.Standard(cfg.R...) {
		loop.AddMetric(m)
	}
	times := &report.SolveTimes{}
	loop.AddObserver(times)

	return &session{
		cfg:  cfg,
		loop: loop,
		run: mpc.Config{
			Layout:       layout,
			SamplingTime: cfg.SamplingTime,
			Dt:           cfg.Sim.Dt,
			Steps:        cfg.Steps(),
			Weights:      cfg.Weights(),
			Identity:     cfg.Identity(),
		},
		times: times,
	}, nil
}

func openSolver(ctx context.Context, cfg *config.Config, logger *slog.Logger) (solver.Solver, error) {
	switch optimizer {
	case "tcp":
		return solver.Connect(ctx, solver.Options{
			Identity:    cfg.Identity(),
			Host:        cfg.Solver.Host,
			Ports:       cfg.Solver.Ports,
			DialTimeout: cfg.Solver.DialTimeout,
			Logger:      logger,
		})
	case "local", "echo":
		p, err := formulation.Build(cfg.ProblemDefinition())
		if err != nil {
			return nil, err
		}
		if optimizer == "echo" {
			return solver.NewEcho(p.Layout.DecisionLen()), nil
		}
		return solver.NewLocal(p), nil
	default:
		return nil, fmt.Errorf("unknown optimizer: %s (available: tcp, local, echo)", optimizer)
	}
}

func (s *session) execute(ctx context.Context) (*mpc.Result, error) {
	res, err := s.loop.Run(ctx, sim.State(s.cfg.Sim.InitState), s.run)
	if res != nil {
		maps.Copy(res.Metrics, metrics.Evaluate(res.History))
	}
	return res, err
}

func (s *session) save(res *mpc.Result) (string, error) {
	return store.New(dataDir).Save(store.RunMetadata{
		Curve:        s.cfg.Trajectory.Curve,
		Optimizer:    s.run.Identity,
		SamplingTime: s.cfg.SamplingTime,
		Horizon:      s.cfg.HorizonLen,
		SimDt:        s.cfg.Sim.Dt,
		SimTime:      s.cfg.Sim.Time,
		Updates:      res.Updates,
		Failures:     res.Failures,
		Elapsed:      res.Elapsed,
		Metrics:      res.Metrics,
	}, res.History)
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	s, err := newSession(ctx, cfg, logger)
	if err != nil {
		return err
	}

	res, runErr := s.execute(ctx)
	if res == nil {
		return runErr
	}

	summary := report.Summarize(res, s.times)
	summary.Optimizer = s.run.Identity
	summary.Curve = cfg.Trajectory.Curve

	if !noSave && res.History.Len() > 0 {
		runID, err := s.save(res)
		if err != nil {
			return errors.Join(runErr, err)
		}
		summary.RunID = runID
	}

	fmt.Println(summary.Render())
	if showPlot && res.History.Len() > 0 {
		if err := report.Plot(os.Stdout, res.History, report.DefaultPlotOptions()); err != nil {
			return errors.Join(runErr, err)
		}
	}

	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// The terminal belongs to the view; logs go to a file beside the runs.
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return err
	}
	logFile, err := os.OpenFile(filepath.Join(dataDir, "live.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer logFile.Close()
	var level slog.Level
	_ = level.UnmarshalText([]byte(logLevel))
	liveLogger := newLogger(logFile, level)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	s, err := newSession(ctx, cfg, liveLogger)
	if err != nil {
		return err
	}

	p := tea.NewProgram(viz.NewModel(s.run.Identity, cfg.Trajectory.Curve, s.run.Steps, s.run.Dt), tea.WithAltScreen(), tea.WithContext(ctx))
	s.loop.AddObserver(viz.Forward(p.Send))

	var res *mpc.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := s.execute(gctx)
		res = r
		p.Send(viz.DoneMsg{Result: r, Err: err})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		_, err := p.Run()
		cancel()
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	})
	runErr := g.Wait()

	if res != nil && res.History.Len() > 0 {
		runID, err := s.save(res)
		if err != nil {
			return errors.Join(runErr, err)
		}
		fmt.Printf("saved run %s\n", runID)
	}
	return runErr
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
