// Package solver talks to the parametric optimizer that solves the NMPC
// problem each sampling period, and provides local stand-ins for it.
package solver

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNoSolver          = errors.New("solver: no optimizer reachable")
	ErrClosed            = errors.New("solver: closed")
	ErrMalformedSolution = errors.New("solver: malformed solution")
)

// Error codes reported by the optimizer server.
const (
	CodeInvalidRequest = 1000
	CodeBadGuess       = 1600
	CodeBadParameter   = 1700
	CodeSolverFailed   = 2000
)

// Exit statuses.
const (
	StatusConverged     = "Converged"
	StatusMaxIterations = "NotConvergedIterations"
	StatusOutOfTime     = "NotConvergedOutOfTime"
)

// SolveError is a failure reported by the optimizer for a single request.
type SolveError struct {
	Code    int
	Message string
}

func (e *SolveError) Error() string {
	return fmt.Sprintf("solver error %d: %s", e.Code, e.Message)
}

// Result is a successful solve. Solution is the full decision vector.
type Result struct {
	ExitStatus      string    `json:"exit_status"`
	InnerIterations int       `json:"num_inner_iterations"`
	OuterIterations int       `json:"num_outer_iterations"`
	FPRNorm         float64   `json:"last_problem_norm_fpr"`
	SolveTimeMs     float64   `json:"solve_time_ms"`
	Cost            float64   `json:"cost"`
	Solution        []float64 `json:"solution"`
}

func (r Result) SolveTime() time.Duration {
	return time.Duration(r.SolveTimeMs * float64(time.Millisecond))
}

// Solver computes a decision vector for a parameter vector, optionally
// starting from a warm-start guess.
type Solver interface {
	Solve(ctx context.Context, params, warm []float64) (Result, error)
	Close() error
}
