package webgpu

import (
	"github.com/born-ml/tgraph/internal/graph"
	"github.com/born-ml/tgraph/internal/tensor"
)

// Arena holds the device tensors of one graph run.
type Arena struct {
	graph.Arena[*DeviceTensor]
	device Device
}

var _ graph.Allocator = (*Arena)(nil)

// NewArena creates an empty arena allocating on device.
func NewArena(device Device) *Arena {
	return &Arena{device: device}
}

// Push uploads t into a new device tensor.
func (a *Arena) Push(label string, t *tensor.Tensor) (int, error) {
	dt, err := NewDeviceTensor(a.device, label, t)
	if err != nil {
		return 0, err
	}
	return a.Arena.Push(dt), nil
}

// Alloc creates a zeroed rows x cols device tensor.
func (a *Arena) Alloc(label string, rows, cols int) (int, error) {
	return a.Push(label, tensor.Zeros(rows, cols))
}

// Shape returns the extents of the tensor at index i.
func (a *Arena) Shape(i int) (tensor.Shape, error) {
	t, err := a.At(i)
	if err != nil {
		return tensor.Shape{}, err
	}
	return t.Shape(), nil
}

// Release frees every device tensor.
func (a *Arena) Release() {
	for _, t := range a.All() {
		t.Release()
	}
}
