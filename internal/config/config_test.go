package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.StateDim != 3 || cfg.InputDim != 2 {
		t.Errorf("dims = %d/%d, want 3/2", cfg.StateDim, cfg.InputDim)
	}
	if cfg.HorizonLen != 20 || cfg.SamplingTime != 0.1 {
		t.Errorf("horizon/Ts = %d/%g, want 20/0.1", cfg.HorizonLen, cfg.SamplingTime)
	}
	if cfg.Trajectory.Curve != "figure8" {
		t.Errorf("expected figure8 curve, got %s", cfg.Trajectory.Curve)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if got := cfg.Steps(); got != 30000 {
		t.Errorf("Steps = %d, want 30000", got)
	}
	if got := cfg.SampleEvery(); got != 100 {
		t.Errorf("SampleEvery = %d, want 100", got)
	}
	if got := cfg.Identity(); got != "build/unicycle/horizon_20/sampling_0_1" {
		t.Errorf("Identity = %s", got)
	}
}

func TestLoadKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nmpc.yaml")
	data := []byte(`
sampling_time: 0.05
horizon_len: 30
Q: [2, 2, 0.5]
solver:
  ports: [9000]
  dial_timeout: 250ms
trajectory:
  curve: circle
  params:
    r: 2
`)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SamplingTime != 0.05 || cfg.HorizonLen != 30 {
		t.Errorf("overrides not applied: Ts=%g N=%d", cfg.SamplingTime, cfg.HorizonLen)
	}
	if cfg.Q[0] != 2 || cfg.Q[2] != 0.5 {
		t.Errorf("Q = %v", cfg.Q)
	}
	if cfg.R[0] != 0.01 || cfg.Umax[1] != 10 {
		t.Errorf("defaults lost: R=%v umax=%v", cfg.R, cfg.Umax)
	}
	if len(cfg.Solver.Ports) != 1 || cfg.Solver.Ports[0] != 9000 {
		t.Errorf("ports = %v", cfg.Solver.Ports)
	}
	if cfg.Solver.DialTimeout != 250*time.Millisecond {
		t.Errorf("dial timeout = %v", cfg.Solver.DialTimeout)
	}
	if cfg.Solver.Host != "127.0.0.1" {
		t.Errorf("host = %q", cfg.Solver.Host)
	}
	if len(cfg.Trajectory.Params) != 1 || cfg.Trajectory.Params["r"] != 2 {
		t.Errorf("params = %v", cfg.Trajectory.Params)
	}
	if cfg.Sim.Dt != 0.001 || cfg.Sim.Time != 30 {
		t.Errorf("sim defaults lost: %+v", cfg.Sim)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("horizon_len: 0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"state dim", func(c *Config) { c.StateDim = 4 }, "state_dim"},
		{"input dim", func(c *Config) { c.InputDim = 1 }, "input_dim"},
		{"horizon", func(c *Config) { c.HorizonLen = 0 }, "horizon_len"},
		{"sampling time", func(c *Config) { c.SamplingTime = -0.1 }, "sampling_time"},
		{"short Q", func(c *Config) { c.Q = []float64{1, 1} }, "Q"},
		{"negative R", func(c *Config) { c.R = []float64{0.01, -1} }, "R"},
		{"inverted bounds", func(c *Config) { c.Umin = []float64{-1, 5}; c.Umax = []float64{1, 1} }, "umin"},
		{"sim dt", func(c *Config) { c.Sim.Dt = 0 }, "sim.sim_dt"},
		{"non multiple", func(c *Config) { c.SamplingTime = 0.0015 }, "sampling_time"},
		{"Ts below dt", func(c *Config) { c.SamplingTime = 0.0005 }, "sampling_time"},
		{"no ports", func(c *Config) { c.Solver.Ports = nil }, "solver.ports"},
		{"bad port", func(c *Config) { c.Solver.Ports = []int{70000} }, "solver.ports"},
		{"init state", func(c *Config) { c.Sim.InitState = []float64{1} }, "sim.init_state"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
			var fe *FieldError
			if !errors.As(err, &fe) {
				t.Fatalf("expected *FieldError, got %T", err)
			}
			if fe.Field != tt.field {
				t.Errorf("field = %s, want %s", fe.Field, tt.field)
			}
		})
	}
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("short")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if cfg.Sim.Time != 2 {
		t.Errorf("expected 2 s run, got %g", cfg.Sim.Time)
	}

	cfg.HorizonLen = 99
	if GetPreset("short").HorizonLen == 99 {
		t.Error("presets must be independent copies")
	}
}

func TestGetPreset_NotFound(t *testing.T) {
	if cfg := GetPreset("nonexistent"); cfg != nil {
		t.Error("expected nil for nonexistent preset")
	}
}

func TestPresetsValid(t *testing.T) {
	for _, name := range ListPresets() {
		if err := GetPreset(name).Validate(); err != nil {
			t.Errorf("preset %s invalid: %v", name, err)
		}
	}
}

func TestListPresets(t *testing.T) {
	names := ListPresets()
	want := []string{"circle", "figure8", "short", "sine"}
	if len(names) != len(want) {
		t.Fatalf("got %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %s, want %s", i, names[i], want[i])
		}
	}
}

func TestLoadOverPreset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nmpc.yaml")
	if err := os.WriteFile(path, []byte("sim:\n  sim_time: 5\nhorizon_len: 15\n"), 0644); err != nil {
		t.Fatal(err)
	}

	base := GetPreset("circle")
	cfg, err := LoadOver(path, base)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Sim.Time != 5 || cfg.HorizonLen != 15 {
		t.Errorf("file values not applied: time=%g N=%d", cfg.Sim.Time, cfg.HorizonLen)
	}
	if cfg.Trajectory.Curve != "circle" {
		t.Errorf("curve = %s, want preset's circle", cfg.Trajectory.Curve)
	}
	if cfg.Trajectory.Params["r"] != 1 || cfg.Trajectory.Params["w"] != 0.2 {
		t.Errorf("preset params lost: %v", cfg.Trajectory.Params)
	}
	if base.Sim.Time != 40 || base.HorizonLen != DefaultHorizonLen {
		t.Errorf("base modified: time=%g N=%d", base.Sim.Time, base.HorizonLen)
	}
}

func TestLoadOverPresetNewCurveDropsParams(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nmpc.yaml")
	if err := os.WriteFile(path, []byte("trajectory:\n  curve: figure8\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadOver(path, GetPreset("circle"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Trajectory.Curve != "figure8" {
		t.Errorf("curve = %s, want figure8", cfg.Trajectory.Curve)
	}
	if len(cfg.Trajectory.Params) != 0 {
		t.Errorf("circle params carried into figure8: %v", cfg.Trajectory.Params)
	}
	if cfg.Sim.Time != 40 {
		t.Errorf("preset sim_time lost: %g", cfg.Sim.Time)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := GetPreset("sine")
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Trajectory.Curve != "sine" || loaded.Trajectory.Params["v0"] != 0.5 {
		t.Errorf("trajectory = %+v", loaded.Trajectory)
	}
}
