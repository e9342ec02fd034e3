package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/san-kum/nmpcsim/internal/config"
	"github.com/san-kum/nmpcsim/internal/optim"
	"github.com/spf13/cobra"
)

var (
	sweepHorizons []int
	sweepTs       []float64
	sweepMetric   string
	sweepWorkers  int
)

func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Grid-search horizon length and sampling time with the local optimizer",
		RunE:  runSweep,
	}
	addConfigFlags(cmd)
	cmd.Flags().IntSliceVar(&sweepHorizons, "horizons", []int{10, 20, 30}, "horizon lengths to try")
	cmd.Flags().Float64SliceVar(&sweepTs, "ts-values", []float64{0.05, 0.1}, "sampling times to try")
	cmd.Flags().StringVar(&sweepMetric, "metric", "position_rms", "metric to minimize")
	cmd.Flags().IntVar(&sweepWorkers, "workers", 0, "concurrent runs (default: number of CPUs)")
	return cmd
}

func runSweep(cmd *cobra.Command, args []string) error {
	base, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	horizons := make([]float64, len(sweepHorizons))
	for i, n := range sweepHorizons {
		horizons[i] = float64(n)
	}
	g, err := optim.NewGridSearch([]string{"horizon_len", "sampling_time"}, [][]float64{horizons, sweepTs})
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	// Concurrent runs would interleave their loop logs; keep warnings only.
	quiet := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	optimizer = "local"

	eval := func(ctx context.Context, p optim.Point) (map[string]float64, error) {
		cfg := *base
		cfg.HorizonLen = int(p["horizon_len"])
		cfg.SamplingTime = p["sampling_time"]
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		s, err := newSession(ctx, &cfg, quiet)
		if err != nil {
			return nil, err
		}
		res, err := s.execute(ctx)
		if err != nil {
			return nil, err
		}
		res.Metrics["failures"] = float64(res.Failures)
		res.Metrics["ms_per_step"] = res.MsPerStep()
		return res.Metrics, nil
	}

	logger.Info("starting sweep", "curve", base.Trajectory.Curve, "points", len(g.Points()), "metric", sweepMetric)
	trials, best, err := g.WithWorkers(sweepWorkers).Search(ctx, eval, sweepMetric)
	if trials != nil {
		if werr := writeTrials(os.Stdout, base, trials); werr != nil {
			return werr
		}
	}
	if err != nil {
		return err
	}

	fmt.Printf("\nbest: N=%d Ts=%g %s=%.4f\n", int(best.Point["horizon_len"]), best.Point["sampling_time"], sweepMetric, best.Score(sweepMetric))
	return nil
}

func writeTrials(out io.Writer, base *config.Config, trials []optim.Trial) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "N\tTS\tPOS_RMS\tMAX_ERR\tDEGRADED\tMS/STEP\tERROR")
	for _, t := range trials {
		errText := ""
		if t.Err != nil {
			errText = t.Err.Error()
		}
		fmt.Fprintf(w, "%d\t%g\t%.4f\t%.4f\t%.3f\t%.3f\t%s\n",
			int(t.Point["horizon_len"]),
			t.Point["sampling_time"],
			t.Metrics["position_rms"],
			t.Metrics["max_position_error"],
			t.Metrics["degraded_ratio"],
			t.Metrics["ms_per_step"],
			errText,
		)
	}
	return w.Flush()
}
