// Package graph lowers a linear sequence of tensor operators into executable
// nodes bound to indices of an append-only buffer arena.
//
// The pipeline is Validate, then Compile. Backends supply the Allocator that
// owns the buffers and walk the resulting nodes themselves.
package graph

import "github.com/born-ml/tgraph/internal/tensor"

// OperatorKind tags the variant held by an Operator.
type OperatorKind int

// Operator kinds.
const (
	OpEmpty OperatorKind = iota
	OpHostToDevice
	OpDeviceToHost
	OpLinearLayer
	OpReLU
	OpSoftmax
	OpLinearReLUFused
	OpLinearReLUSoftmaxFused
)

// String returns the operator kind name.
func (k OperatorKind) String() string {
	switch k {
	case OpEmpty:
		return "Empty"
	case OpHostToDevice:
		return "HostToDevice"
	case OpDeviceToHost:
		return "DeviceToHost"
	case OpLinearLayer:
		return "LinearLayer"
	case OpReLU:
		return "ReLU"
	case OpSoftmax:
		return "Softmax"
	case OpLinearReLUFused:
		return "LinearReLUFused"
	case OpLinearReLUSoftmaxFused:
		return "LinearReLUSoftmaxFused"
	default:
		return "Unknown"
	}
}

// IsLinear reports whether the kind computes input*weights + bias.
func (k OperatorKind) IsLinear() bool {
	return k == OpLinearLayer || k == OpLinearReLUFused || k == OpLinearReLUSoftmaxFused
}

// Operator is one user-declared, unlowered graph step.
//
// Only the fields relevant to Kind are set: Input for HostToDevice, Weights
// and Bias for the linear family. Operators are treated as immutable; the
// compiler pushes the referenced tensors into the arena without copying.
type Operator struct {
	Kind    OperatorKind
	Input   *tensor.Tensor
	Weights *tensor.Tensor
	Bias    *tensor.Tensor
}

// Empty returns a no-op operator.
func Empty() Operator { return Operator{Kind: OpEmpty} }

// HostToDevice uploads input as the graph's starting value.
func HostToDevice(input *tensor.Tensor) Operator {
	return Operator{Kind: OpHostToDevice, Input: input}
}

// DeviceToHost marks the graph result for readback.
func DeviceToHost() Operator { return Operator{Kind: OpDeviceToHost} }

// LinearLayer computes input*weights + bias.
func LinearLayer(weights, bias *tensor.Tensor) Operator {
	return Operator{Kind: OpLinearLayer, Weights: weights, Bias: bias}
}

// ReLU clamps negative values to zero.
func ReLU() Operator { return Operator{Kind: OpReLU} }

// Softmax normalizes over every element of its input.
func Softmax() Operator { return Operator{Kind: OpSoftmax} }

// LinearReLUFused is LinearLayer followed by ReLU, declared pre-fused.
func LinearReLUFused(weights, bias *tensor.Tensor) Operator {
	return Operator{Kind: OpLinearReLUFused, Weights: weights, Bias: bias}
}

// LinearReLUSoftmaxFused is LinearLayer, ReLU and Softmax declared pre-fused.
func LinearReLUSoftmaxFused(weights, bias *tensor.Tensor) Operator {
	return Operator{Kind: OpLinearReLUSoftmaxFused, Weights: weights, Bias: bias}
}

func (o Operator) String() string {
	switch {
	case o.Kind == OpHostToDevice && o.Input != nil:
		return o.Kind.String() + o.Input.Shape().String()
	case o.Kind.IsLinear() && o.Weights != nil && o.Bias != nil:
		return o.Kind.String() + "{w" + o.Weights.Shape().String() + " b" + o.Bias.Shape().String() + "}"
	default:
		return o.Kind.String()
	}
}
