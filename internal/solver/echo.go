package solver

import (
	"context"
	"sync/atomic"
)

// Echo returns its warm start unchanged, or zeros when there is none. It
// counts calls and closes.
type Echo struct {
	DecisionLen int

	calls  atomic.Int64
	closes atomic.Int64
}

func NewEcho(decisionLen int) *Echo {
	return &Echo{DecisionLen: decisionLen}
}

func (e *Echo) Solve(ctx context.Context, params, warm []float64) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	e.calls.Add(1)
	sol := make([]float64, e.DecisionLen)
	if len(warm) == e.DecisionLen {
		copy(sol, warm)
	}
	return Result{ExitStatus: StatusConverged, Solution: sol}, nil
}

func (e *Echo) Close() error {
	e.closes.Add(1)
	return nil
}

func (e *Echo) Calls() int64  { return e.calls.Load() }
func (e *Echo) Closes() int64 { return e.closes.Load() }
