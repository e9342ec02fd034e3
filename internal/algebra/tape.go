package algebra

import (
	"errors"
	"fmt"
	"math"
)

var ErrOutOfRange = errors.New("algebra: variable index out of range")

// Node is one instruction of a compiled tape. Args index earlier nodes.
type Node struct {
	Op    Op      `yaml:"op"`
	Value float64 `yaml:"value,omitempty"`
	Index int     `yaml:"index,omitempty"`
	Args  []int   `yaml:"args,omitempty,flow"`
}

// Tape is an expression graph flattened in dependency order; the last node is
// the output. Shared subexpressions appear once.
type Tape struct {
	Nodes []Node `yaml:"nodes"`
}

// Compile flattens root into a tape.
func Compile(root *Expr) *Tape {
	t := &Tape{}
	seen := make(map[*Expr]int)
	t.visit(root, seen)
	return t
}

func (t *Tape) visit(e *Expr, seen map[*Expr]int) int {
	if idx, ok := seen[e]; ok {
		return idx
	}
	var args []int
	for _, a := range e.Args {
		args = append(args, t.visit(a, seen))
	}
	t.Nodes = append(t.Nodes, Node{Op: e.Op, Value: e.Value, Index: e.Index, Args: args})
	idx := len(t.Nodes) - 1
	seen[e] = idx
	return idx
}

// MaxIndices reports the largest decision and parameter index referenced, or
// -1 when none is.
func (t *Tape) MaxIndices() (decision, param int) {
	decision, param = -1, -1
	for _, n := range t.Nodes {
		switch n.Op {
		case OpDecision:
			decision = max(decision, n.Index)
		case OpParam:
			param = max(param, n.Index)
		}
	}
	return decision, param
}

// Eval computes the tape output for the given variable values.
func (t *Tape) Eval(decision, params []float64) (float64, error) {
	if len(t.Nodes) == 0 {
		return 0, nil
	}
	vals, err := t.forward(decision, params)
	if err != nil {
		return 0, err
	}
	return vals[len(vals)-1], nil
}

// Gradient computes the tape output and its gradient with respect to the
// decision variables in one forward and one reverse sweep.
func (t *Tape) Gradient(decision, params []float64) (float64, []float64, error) {
	grad := make([]float64, len(decision))
	if len(t.Nodes) == 0 {
		return 0, grad, nil
	}
	vals, err := t.forward(decision, params)
	if err != nil {
		return 0, nil, err
	}

	adj := make([]float64, len(t.Nodes))
	adj[len(adj)-1] = 1
	for i := len(t.Nodes) - 1; i >= 0; i-- {
		a := adj[i]
		if a == 0 {
			continue
		}
		n := t.Nodes[i]
		switch n.Op {
		case OpDecision:
			grad[n.Index] += a
		case OpAdd:
			adj[n.Args[0]] += a
			adj[n.Args[1]] += a
		case OpSub:
			adj[n.Args[0]] += a
			adj[n.Args[1]] -= a
		case OpMul:
			adj[n.Args[0]] += a * vals[n.Args[1]]
			adj[n.Args[1]] += a * vals[n.Args[0]]
		case OpSin:
			adj[n.Args[0]] += a * math.Cos(vals[n.Args[0]])
		case OpCos:
			adj[n.Args[0]] -= a * math.Sin(vals[n.Args[0]])
		}
	}
	return vals[len(vals)-1], grad, nil
}

func (t *Tape) forward(decision, params []float64) ([]float64, error) {
	vals := make([]float64, len(t.Nodes))
	for i, n := range t.Nodes {
		switch n.Op {
		case OpConst:
			vals[i] = n.Value
		case OpDecision:
			if n.Index >= len(decision) {
				return nil, fmt.Errorf("%w: U[%d] with %d decisions", ErrOutOfRange, n.Index, len(decision))
			}
			vals[i] = decision[n.Index]
		case OpParam:
			if n.Index >= len(params) {
				return nil, fmt.Errorf("%w: P[%d] with %d parameters", ErrOutOfRange, n.Index, len(params))
			}
			vals[i] = params[n.Index]
		case OpAdd:
			vals[i] = vals[n.Args[0]] + vals[n.Args[1]]
		case OpSub:
			vals[i] = vals[n.Args[0]] - vals[n.Args[1]]
		case OpMul:
			vals[i] = vals[n.Args[0]] * vals[n.Args[1]]
		case OpSin:
			vals[i] = math.Sin(vals[n.Args[0]])
		case OpCos:
			vals[i] = math.Cos(vals[n.Args[0]])
		default:
			return nil, fmt.Errorf("algebra: unknown op %v at node %d", n.Op, i)
		}
	}
	return vals, nil
}
