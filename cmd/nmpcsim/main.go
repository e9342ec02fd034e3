package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/san-kum/nmpcsim/internal/config"
	"github.com/san-kum/nmpcsim/internal/formulation"
	"github.com/san-kum/nmpcsim/internal/report"
	"github.com/san-kum/nmpcsim/internal/solver"
	"github.com/san-kum/nmpcsim/internal/store"
	"github.com/san-kum/nmpcsim/internal/trajectory"
	"github.com/spf13/cobra"
)

var (
	dataDir     string
	logLevel    string
	logJSON     bool
	metricsAddr string

	configFile string
	preset     string
	simTime    float64
	simDt      float64
	curve      string
	horizon    int
	ts         float64
	host       string
	ports      []int
	optimizer  string
	noSave     bool
	showPlot   bool

	outDir   string
	toStdout bool
	outFile  string
	port     int
	useEcho  bool

	logger = slog.Default()
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "nmpcsim",
		Short: "Nonlinear MPC trajectory tracking for a unicycle robot",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup(cmd.Context())
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".nmpcsim", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "emit logs as JSON")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a closed-loop tracking simulation",
		RunE:  runSimulation,
	}
	addConfigFlags(runCmd)
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not persist the run")
	runCmd.Flags().BoolVar(&showPlot, "plot", false, "plot the run when done")

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "Run a simulation with a live terminal view",
		RunE:  runLive,
	}
	addConfigFlags(liveCmd)

	buildCmd := &cobra.Command{
		Use:   "build",
		Short: "Generate the optimal control problem description",
		RunE:  buildProblem,
	}
	addConfigFlags(buildCmd)
	buildCmd.Flags().StringVarP(&outDir, "out", "o", ".", "output root directory")
	buildCmd.Flags().BoolVar(&toStdout, "stdout", false, "write the problem to stdout")

	serveCmd := &cobra.Command{
		Use:   "serve-stub",
		Short: "Serve an in-process optimizer over TCP",
		RunE:  serveStub,
	}
	addConfigFlags(serveCmd)
	serveCmd.Flags().IntVar(&port, "port", solver.DefaultPorts[0], "listen port")
	serveCmd.Flags().BoolVar(&useEcho, "echo", false, "echo the warm start instead of optimizing")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List saved runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "Plot a saved run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "Write a run's history as CSV to stdout",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "Export a run as a single JSON document",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVarP(&outFile, "out", "o", "", "output file (default <run_id>.json)")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "List configuration presets",
		RunE:  listPresets,
	}

	rootCmd.AddCommand(runCmd, liveCmd, buildCmd, serveCmd, newSweepCmd(), listCmd, plotCmd, exportCSVCmd, exportJSONCmd, presetsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "YAML config file")
	cmd.Flags().StringVarP(&preset, "preset", "p", "", "use a named preset")
	cmd.Flags().Float64Var(&simTime, "time", 0, "simulated time in seconds")
	cmd.Flags().Float64Var(&simDt, "dt", 0, "plant integration step")
	cmd.Flags().StringVar(&curve, "curve", "", "reference curve ("+strings.Join(trajectory.Names(), ", ")+")")
	cmd.Flags().IntVar(&horizon, "horizon", 0, "prediction horizon length")
	cmd.Flags().Float64Var(&ts, "ts", 0, "controller sampling time")
	cmd.Flags().StringVar(&host, "host", "", "optimizer host")
	cmd.Flags().IntSliceVar(&ports, "ports", nil, "optimizer ports, probed in order")
	cmd.Flags().StringVar(&optimizer, "optimizer", "tcp", "optimizer backend (tcp, local, echo)")
}

func setup(ctx context.Context) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	logger = newLogger(os.Stderr, level)
	slog.SetDefault(logger)

	if metricsAddr != "" {
		go serveMetrics(ctx, metricsAddr)
	}
	return nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if logJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", "error", err)
	}
}

// loadConfig resolves preset, file and flag overrides, in that order.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	}
	if configFile != "" {
		loaded, err := config.LoadOver(configFile, cfg)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("time") {
		cfg.Sim.Time = simTime
	}
	if flags.Changed("dt") {
		cfg.Sim.Dt = simDt
	}
	if flags.Changed("curve") {
		cfg.Trajectory.Curve = curve
		cfg.Trajectory.Params = nil
	}
	if flags.Changed("horizon") {
		cfg.HorizonLen = horizon
	}
	if flags.Changed("ts") {
		cfg.SamplingTime = ts
	}
	if flags.Changed("host") {
		cfg.Solver.Host = host
	}
	if flags.Changed("ports") {
		cfg.Solver.Ports = ports
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildProblem(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	p, err := formulation.Build(cfg.ProblemDefinition())
	if err != nil {
		return err
	}

	if toStdout {
		return p.Export(os.Stdout)
	}

	dir := filepath.Join(outDir, p.Name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	path := filepath.Join(dir, "problem.yaml")
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := p.Export(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	logger.Info("problem written", "identity", p.Name, "path", path, "decision_len", p.Layout.DecisionLen(), "param_len", p.Layout.ParamLen())
	fmt.Println(path)
	return nil
}

func serveStub(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	p, err := formulation.Build(cfg.ProblemDefinition())
	if err != nil {
		return err
	}

	var backend solver.Solver = solver.NewLocal(p)
	if useEcho {
		backend = solver.NewEcho(p.Layout.DecisionLen())
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	addr := cfg.Solver.Host + ":" + strconv.Itoa(port)
	logger.Info("serving optimizer", "identity", p.Name, "addr", addr, "echo", useEcho)
	return solver.NewServer(backend, logger).ListenAndServe(ctx, addr)
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := store.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCURVE\tTIME\tSIM\tTS\tN\tUPDATES\tFAILURES\tPOS_RMS")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2fs\t%.3fs\t%d\t%d\t%d\t%.4f\n",
			run.ID,
			run.Curve,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.SimTime,
			run.SamplingTime,
			run.Horizon,
			run.Updates,
			run.Failures,
			run.Metrics["position_rms"],
		)
	}

	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := store.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	h, err := st.LoadHistory(runID)
	if err != nil {
		return err
	}

	fmt.Printf("run: %s  curve: %s  optimizer: %s\n\n", meta.ID, meta.Curve, meta.Optimizer)
	return report.Plot(os.Stdout, h, report.DefaultPlotOptions())
}

func exportCSV(cmd *cobra.Command, args []string) error {
	st := store.New(dataDir)
	if _, err := st.Load(args[0]); err != nil {
		return err
	}

	f, err := os.Open(st.HistoryPath(args[0]))
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(os.Stdout, f)
	return err
}

func exportJSON(cmd *cobra.Command, args []string) error {
	runID := args[0]
	path := outFile
	if path == "" {
		path = runID + ".json"
	}

	if err := store.New(dataDir).ExportJSON(path, runID); err != nil {
		return err
	}
	fmt.Printf("exported to %s\n", path)
	return nil
}

func listPresets(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCURVE\tSIM\tTS\tN")
	for _, name := range config.ListPresets() {
		cfg := config.GetPreset(name)
		fmt.Fprintf(w, "%s\t%s\t%.1fs\t%.3fs\t%d\n", name, cfg.Trajectory.Curve, cfg.Sim.Time, cfg.SamplingTime, cfg.HorizonLen)
	}
	return w.Flush()
}
