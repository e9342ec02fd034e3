package trajectory

import (
	"fmt"
	"sort"
)

// Default curve parameters.
const (
	DefaultSineV0   = 0.5
	DefaultSineA    = 0.5
	DefaultSineW    = 0.1
	DefaultCircleR  = 1.0
	DefaultCircleW  = 0.2
	DefaultFigure8A = 0.4
	DefaultFigure8W = 1.0
)

var curves = map[string]func(params map[string]float64) Curve{
	"sine": func(p map[string]float64) Curve {
		return NewSine(param(p, "v0", DefaultSineV0), param(p, "a", DefaultSineA), param(p, "w", DefaultSineW))
	},
	"circle": func(p map[string]float64) Curve {
		return NewCircle(param(p, "r", DefaultCircleR), param(p, "w", DefaultCircleW))
	},
	"figure8": func(p map[string]float64) Curve {
		return NewFigure8(param(p, "a", DefaultFigure8A), param(p, "w", DefaultFigure8W))
	},
}

func param(p map[string]float64, key string, fallback float64) float64 {
	if v, ok := p[key]; ok {
		return v
	}
	return fallback
}

// NewCurve builds a named curve. Missing parameters take their defaults.
func NewCurve(name string, params map[string]float64) (Curve, error) {
	fn, ok := curves[name]
	if !ok {
		return nil, fmt.Errorf("unknown curve: %s (available: %v)", name, Names())
	}
	return fn(params), nil
}

func Names() []string {
	names := make([]string, 0, len(curves))
	for name := range curves {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
