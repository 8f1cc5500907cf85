// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package graph describes computation graphs as ordered operator lists.
//
// A graph starts with exactly one HostToDevice operator carrying the input,
// ends with exactly one DeviceToHost operator, and holds LinearLayer, ReLU
// and Softmax operators in between. Executors in backend/cpu and
// backend/webgpu validate the list, lower it into nodes over a buffer arena
// and run it.
//
// Example:
//
//	ops := []graph.Operator{
//	    graph.HostToDevice(tensor.Full(0.5, 4, 4)),
//	    graph.LinearLayer(tensor.Full(1, 4, 4), tensor.Full(0.1, 4, 4)),
//	    graph.ReLU(),
//	    graph.Softmax(),
//	    graph.DeviceToHost(),
//	}
//	if err := graph.Validate(ops); err != nil {
//	    log.Fatal(err)
//	}
package graph

import (
	"github.com/born-ml/tgraph/internal/graph"
	"github.com/born-ml/tgraph/tensor"
)

// Operator is one user-level step of a graph.
type Operator = graph.Operator

// OperatorKind identifies an Operator.
type OperatorKind = graph.OperatorKind

// Operator kinds.
const (
	OpEmpty                  = graph.OpEmpty
	OpHostToDevice           = graph.OpHostToDevice
	OpDeviceToHost           = graph.OpDeviceToHost
	OpLinearLayer            = graph.OpLinearLayer
	OpReLU                   = graph.OpReLU
	OpSoftmax                = graph.OpSoftmax
	OpLinearReLUFused        = graph.OpLinearReLUFused
	OpLinearReLUSoftmaxFused = graph.OpLinearReLUSoftmaxFused
)

// Node is one lowered executable step.
type Node = graph.Node

// NodeKind identifies a Node.
type NodeKind = graph.NodeKind

// Node kinds.
const (
	NodeInput             = graph.NodeInput
	NodeOutput            = graph.NodeOutput
	NodeTransfer          = graph.NodeTransfer
	NodeLinearLayer       = graph.NodeLinearLayer
	NodeReLU              = graph.NodeReLU
	NodeSoftmax           = graph.NodeSoftmax
	NodeLinearReLU        = graph.NodeLinearReLU
	NodeLinearReLUSoftmax = graph.NodeLinearReLUSoftmax
)

// Errors.
type (
	// ValidationError reports one rejected operator.
	ValidationError = graph.ValidationError
	// StructuralError reports a malformed node list or arena index.
	StructuralError = graph.StructuralError
	// DimensionMismatchError reports incompatible linear layer operands.
	DimensionMismatchError = graph.DimensionMismatchError
)

// ErrInvalidGraph is matched by every validation failure.
var ErrInvalidGraph = graph.ErrInvalidGraph

// Empty returns a no-op operator.
func Empty() Operator { return graph.Empty() }

// HostToDevice returns the operator that uploads input.
func HostToDevice(input *tensor.Tensor) Operator { return graph.HostToDevice(input) }

// DeviceToHost returns the operator that reads the result back.
func DeviceToHost() Operator { return graph.DeviceToHost() }

// LinearLayer returns in*weights + bias.
func LinearLayer(weights, bias *tensor.Tensor) Operator { return graph.LinearLayer(weights, bias) }

// ReLU returns max(x, 0).
func ReLU() Operator { return graph.ReLU() }

// Softmax normalizes over every element of its input.
func Softmax() Operator { return graph.Softmax() }

// LinearReLUFused returns the explicit fused LinearLayer + ReLU operator.
func LinearReLUFused(weights, bias *tensor.Tensor) Operator {
	return graph.LinearReLUFused(weights, bias)
}

// LinearReLUSoftmaxFused returns the explicit fused LinearLayer + ReLU +
// Softmax operator.
func LinearReLUSoftmaxFused(weights, bias *tensor.Tensor) Operator {
	return graph.LinearReLUSoftmaxFused(weights, bias)
}

// Validate checks ops and returns every problem found, or nil.
func Validate(ops []Operator) error {
	return graph.Validate(ops)
}
