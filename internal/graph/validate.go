package graph

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/born-ml/tgraph/internal/tensor"
)

// Validate checks that ops is a legal graph before anything is allocated.
//
// Every rule is checked and all failures are returned together as a
// multierr aggregate of *ValidationError; errors.Is(err, ErrInvalidGraph)
// holds for any non-nil result. Validate has no side effects.
func Validate(ops []Operator) error {
	if len(ops) == 0 {
		return &ValidationError{Index: -1, Reason: "empty operator list"}
	}

	var err error
	err = multierr.Append(err, validateEndpoints(ops))
	for i, op := range ops {
		if op.Kind.IsLinear() {
			err = multierr.Append(err, validateLinear(ops, i))
		}
	}
	return err
}

func validateEndpoints(ops []Operator) error {
	var err error
	uploads, downloads := 0, 0
	last := len(ops) - 1

	for i, op := range ops {
		switch op.Kind {
		case OpHostToDevice:
			uploads++
			if i != 0 {
				err = multierr.Append(err, &ValidationError{Index: i, Kind: op.Kind, Reason: "must be the first operator"})
			}
			if op.Input == nil {
				err = multierr.Append(err, &ValidationError{Index: i, Kind: op.Kind, Reason: "missing input tensor"})
			} else if e := op.Input.Shape().Validate(); e != nil {
				err = multierr.Append(err, &ValidationError{Index: i, Kind: op.Kind, Reason: "bad input shape", Err: e})
			}
		case OpDeviceToHost:
			downloads++
			if i != last {
				err = multierr.Append(err, &ValidationError{Index: i, Kind: op.Kind, Reason: "must be the last operator"})
			}
		}
	}

	if uploads != 1 {
		err = multierr.Append(err, &ValidationError{
			Index:  -1,
			Reason: fmt.Sprintf("expected exactly one HostToDevice, found %d", uploads),
		})
	}
	if downloads != 1 {
		err = multierr.Append(err, &ValidationError{
			Index:  -1,
			Reason: fmt.Sprintf("expected exactly one DeviceToHost, found %d", downloads),
		})
	}
	return err
}

// validateLinear checks the linear-family operator at i against the shape
// of the value flowing into it.
func validateLinear(ops []Operator, i int) error {
	op := ops[i]
	if op.Weights == nil || op.Bias == nil {
		return &ValidationError{Index: i, Kind: op.Kind, Reason: "missing weights or bias"}
	}

	in, err := inputShape(ops, i)
	if err != nil {
		return err
	}

	w, b := op.Weights.Shape(), op.Bias.Shape()
	for _, s := range []tensor.Shape{in, w, b} {
		if e := s.Validate(); e != nil {
			return &ValidationError{Index: i, Kind: op.Kind, Reason: "non-positive extent", Err: e}
		}
	}

	if in.Cols != w.Rows || b.Rows != in.Rows || b.Cols != w.Cols {
		return &ValidationError{
			Index:  i,
			Kind:   op.Kind,
			Reason: "incompatible operand shapes",
			Err: &DimensionMismatchError{
				Op:      op.Kind.String(),
				Input:   in,
				Weights: w,
				Bias:    b,
				Output:  b,
			},
		}
	}
	return nil
}

// inputShape scans backward from i-1 for the nearest operator that fixes the
// running tensor's shape. ReLU and Softmax keep the shape and are skipped.
func inputShape(ops []Operator, i int) (tensor.Shape, error) {
	for j := i - 1; j >= 0; j-- {
		prev := ops[j]
		switch {
		case prev.Kind == OpReLU || prev.Kind == OpSoftmax:
			continue
		case prev.Kind == OpHostToDevice:
			if prev.Input == nil {
				return tensor.Shape{}, &ValidationError{Index: i, Kind: ops[i].Kind, Reason: "predecessor has no input tensor"}
			}
			return prev.Input.Shape(), nil
		case prev.Kind.IsLinear():
			if prev.Bias == nil {
				return tensor.Shape{}, &ValidationError{Index: i, Kind: ops[i].Kind, Reason: "predecessor has no bias tensor"}
			}
			return prev.Bias.Shape(), nil
		default:
			return tensor.Shape{}, &ValidationError{
				Index:  i,
				Kind:   ops[i].Kind,
				Reason: fmt.Sprintf("unexpected %s at %d before linear operator", prev.Kind, j),
			}
		}
	}
	return tensor.Shape{}, &ValidationError{Index: i, Kind: ops[i].Kind, Reason: "no shape-determining predecessor"}
}
