package algebra

import (
	"fmt"
	"math"
)

type Op uint8

const (
	OpConst Op = iota
	OpDecision
	OpParam
	OpAdd
	OpSub
	OpMul
	OpSin
	OpCos
)

var opNames = [...]string{"const", "decision", "param", "add", "sub", "mul", "sin", "cos"}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

func (o Op) MarshalYAML() (interface{}, error) {
	return o.String(), nil
}

// Expr is a node in an expression graph. Nodes are immutable once built and
// may be shared between parents.
type Expr struct {
	Op    Op
	Value float64
	Index int
	Args  []*Expr
}

func Decision(i int) *Expr { return &Expr{Op: OpDecision, Index: i} }
func Param(i int) *Expr    { return &Expr{Op: OpParam, Index: i} }

// Decisions returns variables U[offset] .. U[offset+n-1].
func Decisions(offset, n int) []*Expr {
	out := make([]*Expr, n)
	for i := range out {
		out[i] = Decision(offset + i)
	}
	return out
}

// Params returns variables P[offset] .. P[offset+n-1].
func Params(offset, n int) []*Expr {
	out := make([]*Expr, n)
	for i := range out {
		out[i] = Param(offset + i)
	}
	return out
}

func (e *Expr) isConst(v float64) bool {
	return e.Op == OpConst && e.Value == v
}

// Symbolic builds expression graphs, folding constants as it goes.
type Symbolic struct{}

func (Symbolic) Const(c float64) *Expr { return &Expr{Op: OpConst, Value: c} }

func (s Symbolic) Add(a, b *Expr) *Expr {
	switch {
	case a.Op == OpConst && b.Op == OpConst:
		return s.Const(a.Value + b.Value)
	case a.isConst(0):
		return b
	case b.isConst(0):
		return a
	}
	return &Expr{Op: OpAdd, Args: []*Expr{a, b}}
}

func (s Symbolic) Sub(a, b *Expr) *Expr {
	switch {
	case a.Op == OpConst && b.Op == OpConst:
		return s.Const(a.Value - b.Value)
	case b.isConst(0):
		return a
	}
	return &Expr{Op: OpSub, Args: []*Expr{a, b}}
}

func (s Symbolic) Mul(a, b *Expr) *Expr {
	switch {
	case a.Op == OpConst && b.Op == OpConst:
		return s.Const(a.Value * b.Value)
	case a.isConst(0) || b.isConst(0):
		return s.Const(0)
	case a.isConst(1):
		return b
	case b.isConst(1):
		return a
	}
	return &Expr{Op: OpMul, Args: []*Expr{a, b}}
}

func (s Symbolic) Sin(a *Expr) *Expr {
	if a.Op == OpConst {
		return s.Const(math.Sin(a.Value))
	}
	return &Expr{Op: OpSin, Args: []*Expr{a}}
}

func (s Symbolic) Cos(a *Expr) *Expr {
	if a.Op == OpConst {
		return s.Const(math.Cos(a.Value))
	}
	return &Expr{Op: OpCos, Args: []*Expr{a}}
}
