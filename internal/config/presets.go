package config

import "sort"

// Presets are named configurations built on DefaultConfig.
var Presets = map[string]func() *Config{
	"figure8": DefaultConfig,
	"circle": func() *Config {
		cfg := DefaultConfig()
		cfg.Trajectory = TrajectoryConfig{Curve: "circle", Params: map[string]float64{"r": 1, "w": 0.2}}
		cfg.Sim.Time = 40
		return cfg
	},
	"sine": func() *Config {
		cfg := DefaultConfig()
		cfg.Trajectory = TrajectoryConfig{Curve: "sine", Params: map[string]float64{"v0": 0.5, "a": 0.5, "w": 0.1}}
		return cfg
	},
	"short": func() *Config {
		cfg := DefaultConfig()
		cfg.Sim.Time = 2
		cfg.HorizonLen = 10
		return cfg
	},
}

// GetPreset returns a fresh copy of the named preset, or nil.
func GetPreset(name string) *Config {
	build, ok := Presets[name]
	if !ok {
		return nil
	}
	return build()
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
