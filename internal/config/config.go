package config

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/nmpcsim/internal/cost"
	"github.com/san-kum/nmpcsim/internal/formulation"
	"github.com/san-kum/nmpcsim/internal/models"
)

const (
	DefaultStateDim     = 3
	DefaultInputDim     = 2
	DefaultSamplingTime = 0.1
	DefaultHorizonLen   = 20
	DefaultSimTime      = 30.0
	DefaultSimDt        = 0.001
	DefaultCurve        = "figure8"
	DefaultDialTimeout  = time.Second
)

var ErrInvalid = errors.New("config: invalid")

// FieldError reports one inconsistent configuration value.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error { return ErrInvalid }

type Config struct {
	StateDim     int       `yaml:"state_dim"`
	InputDim     int       `yaml:"input_dim"`
	SamplingTime float64   `yaml:"sampling_time"`
	HorizonLen   int       `yaml:"horizon_len"`
	Umin         []float64 `yaml:"umin,flow"`
	Umax         []float64 `yaml:"umax,flow"`
	Q            []float64 `yaml:"Q,flow"`
	R            []float64 `yaml:"R,flow"`
	Qt           []float64 `yaml:"Qt,flow"`

	Sim        SimConfig        `yaml:"sim"`
	Solver     SolverConfig     `yaml:"solver"`
	Trajectory TrajectoryConfig `yaml:"trajectory"`
}

type SimConfig struct {
	Time      float64   `yaml:"sim_time"`
	Dt        float64   `yaml:"sim_dt"`
	InitState []float64 `yaml:"init_state,flow"`
}

type SolverConfig struct {
	Host        string        `yaml:"host"`
	Ports       []int         `yaml:"ports,flow"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

type TrajectoryConfig struct {
	Curve  string             `yaml:"curve"`
	Params map[string]float64 `yaml:"params"`
}

func DefaultConfig() *Config {
	return &Config{
		StateDim:     DefaultStateDim,
		InputDim:     DefaultInputDim,
		SamplingTime: DefaultSamplingTime,
		HorizonLen:   DefaultHorizonLen,
		Umin:         []float64{-10, -10},
		Umax:         []float64{10, 10},
		Q:            []float64{1, 1, 0.1},
		R:            []float64{0.01, 0.01},
		Qt:           []float64{1, 1, 0.1},
		Sim: SimConfig{
			Time:      DefaultSimTime,
			Dt:        DefaultSimDt,
			InitState: []float64{0, 0, 0},
		},
		Solver: SolverConfig{
			Host:        "127.0.0.1",
			Ports:       []int{8333, 8334, 8335, 8336},
			DialTimeout: DefaultDialTimeout,
		},
		Trajectory: TrajectoryConfig{
			Curve: DefaultCurve,
		},
	}
}

// Load reads a YAML file over DefaultConfig, so absent fields keep their
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	return LoadOver(path, DefaultConfig())
}

// LoadOver reads path over a copy of base, so fields absent from the file
// keep base's values. Curve parameters carry over only while the curve is
// unchanged and the file gives none of its own.
func LoadOver(path string, base *Config) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := base.clone()
	cfg.Trajectory.Params = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Trajectory.Params == nil && cfg.Trajectory.Curve == base.Trajectory.Curve {
		cfg.Trajectory.Params = maps.Clone(base.Trajectory.Params)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) clone() *Config {
	out := *c
	out.Umin = slices.Clone(c.Umin)
	out.Umax = slices.Clone(c.Umax)
	out.Q = slices.Clone(c.Q)
	out.R = slices.Clone(c.R)
	out.Qt = slices.Clone(c.Qt)
	out.Sim.InitState = slices.Clone(c.Sim.InitState)
	out.Solver.Ports = slices.Clone(c.Solver.Ports)
	out.Trajectory.Params = maps.Clone(c.Trajectory.Params)
	return &out
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate reports every inconsistent field, joined.
func (c *Config) Validate() error {
	var errs []error
	bad := func(field, format string, args ...any) {
		errs = append(errs, &FieldError{Field: field, Reason: fmt.Sprintf(format, args...)})
	}

	if c.StateDim != models.UnicycleStateDim {
		bad("state_dim", "unicycle has %d states, got %d", models.UnicycleStateDim, c.StateDim)
	}
	if c.InputDim != models.UnicycleInputDim {
		bad("input_dim", "unicycle has %d inputs, got %d", models.UnicycleInputDim, c.InputDim)
	}
	if c.HorizonLen < 1 {
		bad("horizon_len", "must be at least 1, got %d", c.HorizonLen)
	}
	if !(c.SamplingTime > 0) {
		bad("sampling_time", "must be positive, got %g", c.SamplingTime)
	}

	vectors := []struct {
		field string
		v     []float64
		n     int
	}{
		{"umin", c.Umin, c.InputDim},
		{"umax", c.Umax, c.InputDim},
		{"Q", c.Q, c.StateDim},
		{"Qt", c.Qt, c.StateDim},
		{"R", c.R, c.InputDim},
		{"sim.init_state", c.Sim.InitState, c.StateDim},
	}
	for _, vec := range vectors {
		if len(vec.v) != vec.n {
			bad(vec.field, "expected %d entries, got %d", vec.n, len(vec.v))
		}
	}
	for _, w := range []struct {
		field string
		v     []float64
	}{{"Q", c.Q}, {"Qt", c.Qt}, {"R", c.R}} {
		for i, x := range w.v {
			if !(x >= 0) {
				bad(w.field, "entry %d must be non-negative, got %g", i, x)
			}
		}
	}
	if len(c.Umin) == len(c.Umax) {
		for i := range c.Umin {
			if c.Umin[i] > c.Umax[i] {
				bad("umin", "entry %d (%g) exceeds umax (%g)", i, c.Umin[i], c.Umax[i])
			}
		}
	}

	if !(c.Sim.Dt > 0) {
		bad("sim.sim_dt", "must be positive, got %g", c.Sim.Dt)
	}
	if !(c.Sim.Time > 0) {
		bad("sim.sim_time", "must be positive, got %g", c.Sim.Time)
	}
	if c.Sim.Dt > 0 && c.SamplingTime > 0 {
		ratio := c.SamplingTime / c.Sim.Dt
		if ratio < 1-1e-9 || math.Abs(ratio-math.Round(ratio)) > 1e-9*math.Max(1, ratio) {
			bad("sampling_time", "must be a positive integer multiple of sim_dt (%g / %g)", c.SamplingTime, c.Sim.Dt)
		}
	}

	if len(c.Solver.Ports) == 0 {
		bad("solver.ports", "at least one port is required")
	}
	for _, p := range c.Solver.Ports {
		if p < 1 || p > 65535 {
			bad("solver.ports", "port %d out of range", p)
		}
	}
	if c.Trajectory.Curve == "" {
		bad("trajectory.curve", "must name a curve")
	}

	return errors.Join(errs...)
}

// Steps is the number of fine simulation steps.
func (c *Config) Steps() int {
	return int(math.Floor(c.Sim.Time/c.Sim.Dt + 1e-9))
}

// SampleEvery is the number of fine steps per controller update.
func (c *Config) SampleEvery() int {
	return int(math.Round(c.SamplingTime / c.Sim.Dt))
}

func (c *Config) Weights() cost.Weights {
	return cost.Weights{
		Q:  append([]float64(nil), c.Q...),
		Qt: append([]float64(nil), c.Qt...),
		R:  append([]float64(nil), c.R...),
	}
}

func (c *Config) ProblemDefinition() formulation.Definition {
	return formulation.Definition{
		StateDim:     c.StateDim,
		InputDim:     c.InputDim,
		Horizon:      c.HorizonLen,
		SamplingTime: c.SamplingTime,
		Umin:         append([]float64(nil), c.Umin...),
		Umax:         append([]float64(nil), c.Umax...),
	}
}

// Identity is the name of the optimizer this configuration needs.
func (c *Config) Identity() string {
	return formulation.Identity(c.HorizonLen, c.SamplingTime)
}
