package graph_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tgraph/backend/cpu"
	"github.com/born-ml/tgraph/graph"
	"github.com/born-ml/tgraph/tensor"
)

func scenario() []graph.Operator {
	return []graph.Operator{
		graph.HostToDevice(tensor.Full(0.5, 4, 4)),
		graph.LinearLayer(tensor.Full(1, 4, 4), tensor.Full(0.1, 4, 4)),
		graph.ReLU(),
		graph.Softmax(),
		graph.DeviceToHost(),
	}
}

func TestValidate(t *testing.T) {
	ops := scenario()
	require.NoError(t, graph.Validate(ops))

	ops[1] = graph.LinearLayer(tensor.Full(1, 3, 4), tensor.Full(0.1, 4, 4))
	err := graph.Validate(ops)
	require.ErrorIs(t, err, graph.ErrInvalidGraph)

	var dim *graph.DimensionMismatchError
	assert.True(t, errors.As(err, &dim))
}

func TestNodeKinds(t *testing.T) {
	kindsOf := func(nodes []graph.Node) []graph.NodeKind {
		var kinds []graph.NodeKind
		for _, n := range nodes {
			kinds = append(kinds, n.Kind)
		}
		return kinds
	}

	fused, err := cpu.NewRunner(scenario(), cpu.WithFusion(true))
	require.NoError(t, err)
	assert.Equal(t, []graph.NodeKind{
		graph.NodeInput, graph.NodeTransfer,
		graph.NodeLinearReLUSoftmax, graph.NodeTransfer,
		graph.NodeOutput,
	}, kindsOf(fused.Nodes()))

	plain, err := cpu.NewRunner(scenario(), cpu.WithFusion(false))
	require.NoError(t, err)
	assert.Equal(t, []graph.NodeKind{
		graph.NodeInput, graph.NodeTransfer,
		graph.NodeLinearLayer, graph.NodeTransfer,
		graph.NodeReLU, graph.NodeTransfer,
		graph.NodeSoftmax, graph.NodeTransfer,
		graph.NodeOutput,
	}, kindsOf(plain.Nodes()))
}
