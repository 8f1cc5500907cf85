package graph

import (
	"errors"
	"fmt"

	"github.com/born-ml/tgraph/internal/tensor"
)

// ErrInvalidGraph is matched by every validation failure.
var ErrInvalidGraph = errors.New("graph: invalid operator sequence")

// ValidationError describes one rule an operator sequence breaks.
//
// Index is the operator position, or -1 when the failure concerns the
// sequence as a whole (empty list, missing transfer).
type ValidationError struct {
	Index  int
	Kind   OperatorKind
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	msg := "graph: "
	if e.Index >= 0 {
		msg += fmt.Sprintf("operator %d (%s): ", e.Index, e.Kind)
	}
	msg += e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the cause and ErrInvalidGraph to errors.Is / errors.As.
func (e *ValidationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidGraph, e.Err}
	}
	return []error{ErrInvalidGraph}
}

// StructuralError reports a broken lowering invariant, for example a compute
// operator that does not follow a Transfer node. It signals a bug in the
// validator or the compiler rather than bad user input.
type StructuralError struct {
	Node   string
	Reason string
}

func (e *StructuralError) Error() string {
	if e.Node == "" {
		return "graph: structural: " + e.Reason
	}
	return fmt.Sprintf("graph: structural: %s: %s", e.Node, e.Reason)
}

// DimensionMismatchError reports operand extents a kernel cannot combine.
// Shapes that do not apply to Op are left zero.
type DimensionMismatchError struct {
	Op      string
	Input   tensor.Shape
	Weights tensor.Shape
	Bias    tensor.Shape
	Output  tensor.Shape
}

func (e *DimensionMismatchError) Error() string {
	if e.Weights.NumElements() == 0 && e.Bias.NumElements() == 0 {
		return fmt.Sprintf("graph: %s: dimension mismatch: input %s, output %s", e.Op, e.Input, e.Output)
	}
	return fmt.Sprintf("graph: %s: dimension mismatch: input %s, weights %s, bias %s, output %s",
		e.Op, e.Input, e.Weights, e.Bias, e.Output)
}

func structural(node, format string, args ...any) error {
	return &StructuralError{Node: node, Reason: fmt.Sprintf(format, args...)}
}
