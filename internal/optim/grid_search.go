// Package optim tunes controller settings by evaluating a grid of candidate
// values and ranking them by one run metric.
package optim

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
)

var ErrNoTrial = errors.New("optim: no trial succeeded")

// Point is one grid coordinate, keyed by parameter name.
type Point map[string]float64

// Trial is the outcome of evaluating one point.
type Trial struct {
	Point   Point
	Metrics map[string]float64
	Err     error
}

// Score is the trial's value for metric, or +Inf when it failed or the
// metric is missing or not finite.
func (t Trial) Score(metric string) float64 {
	if t.Err != nil {
		return math.Inf(1)
	}
	v, ok := t.Metrics[metric]
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return math.Inf(1)
	}
	return v
}

// EvalFunc runs one candidate and returns its metrics.
type EvalFunc func(ctx context.Context, p Point) (map[string]float64, error)

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	workers    int
}

func NewGridSearch(params []string, ranges [][]float64) (*GridSearch, error) {
	if len(params) == 0 || len(params) != len(ranges) {
		return nil, fmt.Errorf("optim: %d parameters for %d ranges", len(params), len(ranges))
	}
	for i, r := range ranges {
		if len(r) == 0 {
			return nil, fmt.Errorf("optim: empty range for %s", params[i])
		}
	}
	return &GridSearch{paramNames: params, ranges: ranges, workers: runtime.NumCPU()}, nil
}

// WithWorkers bounds the number of concurrent evaluations.
func (g *GridSearch) WithWorkers(n int) *GridSearch {
	if n > 0 {
		g.workers = n
	}
	return g
}

// Points enumerates the grid with the last parameter varying fastest.
func (g *GridSearch) Points() []Point {
	points := []Point{{}}
	for i, name := range g.paramNames {
		next := make([]Point, 0, len(points)*len(g.ranges[i]))
		for _, p := range points {
			for _, v := range g.ranges[i] {
				q := maps.Clone(p)
				q[name] = v
				next = append(next, q)
			}
		}
		points = next
	}
	return points
}

// Search evaluates every point and returns all trials in grid order along
// with the one minimizing metric. A failing trial is recorded, not fatal;
// only cancellation aborts the search.
func (g *GridSearch) Search(ctx context.Context, eval EvalFunc, metric string) ([]Trial, Trial, error) {
	points := g.Points()
	trials := make([]Trial, len(points))

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)
	for i, p := range points {
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			m, err := eval(gctx, p)
			trials[i] = Trial{Point: p, Metrics: m, Err: err}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, Trial{}, err
	}
	if err := ctx.Err(); err != nil {
		return nil, Trial{}, err
	}

	best := -1
	for i, t := range trials {
		if math.IsInf(t.Score(metric), 1) {
			continue
		}
		if best < 0 || t.Score(metric) < trials[best].Score(metric) {
			best = i
		}
	}
	if best < 0 {
		return trials, Trial{}, ErrNoTrial
	}
	return trials, trials[best], nil
}
