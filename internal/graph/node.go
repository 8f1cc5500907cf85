package graph

import (
	"fmt"

	"github.com/born-ml/tgraph/internal/tensor"
)

// NodeKind is the executable form of a lowered operator.
type NodeKind int

// Node kinds.
const (
	NodeInput NodeKind = iota
	NodeOutput
	NodeTransfer
	NodeLinearLayer
	NodeReLU
	NodeSoftmax
	NodeLinearReLU
	NodeLinearReLUSoftmax

	numNodeKinds
)

var nodeKindNames = [numNodeKinds]string{
	NodeInput:             "Input",
	NodeOutput:            "Output",
	NodeTransfer:          "Transfer",
	NodeLinearLayer:       "LinearLayer",
	NodeReLU:              "ReLU",
	NodeSoftmax:           "Softmax",
	NodeLinearReLU:        "LinearReLU",
	NodeLinearReLUSoftmax: "LinearReLUSoftmax",
}

// String returns the CPU-side name of the kind.
func (k NodeKind) String() string {
	if k < 0 || k >= numNodeKinds {
		return "Unknown"
	}
	return nodeKindNames[k]
}

// Name returns the kind name as seen by the given device. The GPU path
// names the bookkeeping kinds after the direction data moves.
func (k NodeKind) Name(target tensor.Device) string {
	if target == tensor.WebGPU {
		switch k {
		case NodeInput:
			return "HostToDevice"
		case NodeOutput:
			return "DeviceToHost"
		case NodeTransfer:
			return "DeviceToDevice"
		}
	}
	return k.String()
}

// IsBookkeeping reports whether executing the kind is a no-op.
func (k NodeKind) IsBookkeeping() bool {
	return k == NodeInput || k == NodeOutput || k == NodeTransfer
}

// IsLinear reports whether the kind has [input, weights, bias, output] operands.
func (k NodeKind) IsLinear() bool {
	return k == NodeLinearLayer || k == NodeLinearReLU || k == NodeLinearReLUSoftmax
}

// Arity returns the number of buffer indices a node of this kind carries.
func (k NodeKind) Arity() int {
	switch {
	case k.IsBookkeeping():
		return 1
	case k.IsLinear():
		return 4
	case k == NodeReLU || k == NodeSoftmax:
		return 2
	default:
		return 0
	}
}

// Node is a lowered unit of work. Buffers index into the arena the node was
// compiled against; nodes never own the buffers they reference.
type Node struct {
	Name    string
	Kind    NodeKind
	Buffers []int
}

func (n Node) String() string {
	return fmt.Sprintf("%s%v", n.Name, n.Buffers)
}

// namer hands out "<Kind>_<n>" names with one counter per kind.
type namer struct {
	target tensor.Device
	counts [numNodeKinds]int
}

func (nm *namer) next(kind NodeKind) string {
	n := nm.counts[kind]
	nm.counts[kind]++
	return fmt.Sprintf("%s_%d", kind.Name(nm.target), n)
}
