package cpu

import (
	"github.com/born-ml/tgraph/internal/graph"
	"github.com/born-ml/tgraph/internal/tensor"
)

// Arena holds the host tensors of one graph run.
type Arena struct {
	graph.Arena[*tensor.Tensor]
}

var _ graph.Allocator = (*Arena)(nil)

// Push stores t by reference.
func (a *Arena) Push(_ string, t *tensor.Tensor) (int, error) {
	return a.Arena.Push(t), nil
}

// Alloc stores a new zero tensor.
func (a *Arena) Alloc(_ string, rows, cols int) (int, error) {
	return a.Arena.Push(tensor.Zeros(rows, cols)), nil
}

// Shape returns the extents of the tensor at index i.
func (a *Arena) Shape(i int) (tensor.Shape, error) {
	t, err := a.At(i)
	if err != nil {
		return tensor.Shape{}, err
	}
	return t.Shape(), nil
}
