package solver

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/nmpcsim/internal/formulation"
)

// Local solves a formulation.Problem in-process by projected gradient descent
// with backtracking and Barzilai-Borwein step sizes. The fixed-point residual
// ||u - proj(u - g*grad)||_inf / g is the convergence measure.
type Local struct {
	Tolerance     float64
	MaxIterations int
	Budget        time.Duration

	problem *formulation.Problem
	lower   []float64
	upper   []float64

	mu     sync.Mutex
	closed bool
}

func NewLocal(p *formulation.Problem) *Local {
	lo, hi := p.Bounds()
	return &Local{
		Tolerance:     formulation.SolverTolerance,
		MaxIterations: 500,
		Budget:        time.Duration(p.MaxDurationMicros()) * time.Microsecond,
		problem:       p,
		lower:         lo,
		upper:         hi,
	}
}

func (l *Local) project(u []float64) {
	for i := range u {
		u[i] = math.Min(math.Max(u[i], l.lower[i]), l.upper[i])
	}
}

func (l *Local) Solve(ctx context.Context, params, warm []float64) (Result, error) {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return Result{}, ErrClosed
	}

	layout := l.problem.Layout
	n := layout.DecisionLen()
	if len(params) != layout.ParamLen() {
		return Result{}, &SolveError{Code: CodeBadParameter, Message: fmt.Sprintf("expected %d parameters, got %d", layout.ParamLen(), len(params))}
	}
	if len(warm) != 0 && len(warm) != n {
		return Result{}, &SolveError{Code: CodeBadGuess, Message: fmt.Sprintf("expected initial guess of length %d, got %d", n, len(warm))}
	}

	start := time.Now()
	tape := l.problem.Tape()

	u := make([]float64, n)
	copy(u, warm)
	l.project(u)
	f, g, err := tape.Gradient(u, params)
	if err != nil {
		return Result{}, &SolveError{Code: CodeSolverFailed, Message: err.Error()}
	}

	status := StatusMaxIterations
	gamma := 0.1
	trial := make([]float64, n)
	step := make([]float64, n)
	res := math.Inf(1)
	it := 0
	for ; it < l.MaxIterations; it++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		floats.AddScaledTo(trial, u, -gamma, g)
		l.project(trial)
		res = floats.Distance(trial, u, math.Inf(1)) / gamma
		if res <= l.Tolerance {
			status = StatusConverged
			break
		}
		if l.Budget > 0 && time.Since(start) > l.Budget {
			status = StatusOutOfTime
			break
		}

		var ft float64
		for {
			ft, err = tape.Eval(trial, params)
			if err != nil {
				return Result{}, &SolveError{Code: CodeSolverFailed, Message: err.Error()}
			}
			floats.SubTo(step, trial, u)
			if ft <= f+floats.Dot(g, step)+floats.Dot(step, step)/(2*gamma) || gamma < 1e-12 {
				break
			}
			gamma /= 2
			floats.AddScaledTo(trial, u, -gamma, g)
			l.project(trial)
		}

		_, gt, err := tape.Gradient(trial, params)
		if err != nil {
			return Result{}, &SolveError{Code: CodeSolverFailed, Message: err.Error()}
		}
		dg := make([]float64, n)
		floats.SubTo(dg, gt, g)
		if sy := floats.Dot(step, dg); sy > 0 {
			gamma = math.Min(floats.Dot(step, step)/sy, 1e3)
		}
		copy(u, trial)
		f, g = ft, gt
	}

	return Result{
		ExitStatus:      status,
		InnerIterations: it,
		OuterIterations: 1,
		FPRNorm:         res,
		SolveTimeMs:     float64(time.Since(start)) / float64(time.Millisecond),
		Cost:            f,
		Solution:        u,
	}, nil
}

func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}
