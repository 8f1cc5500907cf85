package graph

import (
	"fmt"
	"slices"

	"github.com/born-ml/tgraph/internal/tensor"
)

// Allocator is the buffer store the compiler lowers into. Indices returned
// by Push and Alloc must stay valid and keep their value for the lifetime
// of the run.
type Allocator interface {
	// Push stores an existing tensor (operator input, weights, bias).
	Push(label string, t *tensor.Tensor) (int, error)
	// Alloc stores a fresh zero-filled rows x cols buffer.
	Alloc(label string, rows, cols int) (int, error)
	// Shape returns the extents of the buffer at index i.
	Shape(i int) (tensor.Shape, error)
	// Len returns the number of buffers stored so far.
	Len() int
}

// Arena is an append-only slot list addressed by stable index.
//
// Slots are never removed or reordered, so an index handed out by Push
// refers to the same value until the arena is dropped.
type Arena[T any] struct {
	slots []T
}

// Push appends v and returns its index.
func (a *Arena[T]) Push(v T) int {
	a.slots = append(a.slots, v)
	return len(a.slots) - 1
}

// Len returns the number of slots.
func (a *Arena[T]) Len() int {
	return len(a.slots)
}

// At returns the value at index i.
func (a *Arena[T]) At(i int) (T, error) {
	if i < 0 || i >= len(a.slots) {
		var zero T
		return zero, &StructuralError{Reason: fmt.Sprintf("buffer index %d out of range [0, %d)", i, len(a.slots))}
	}
	return a.slots[i], nil
}

// All returns the slots in index order. The slice must not be modified.
func (a *Arena[T]) All() []T {
	return a.slots
}

// Operands splits a compute node's buffers into read-only inputs and the
// single output it writes. The output slot is always the last index and
// must not alias any input, so a kernel may write it while reading the rest.
func (a *Arena[T]) Operands(n Node) (inputs []T, output T, err error) {
	want := n.Kind.Arity()
	if n.Kind.IsBookkeeping() || want == 0 {
		return nil, output, structural(n.Name, "%s node has no operands", n.Kind)
	}
	if len(n.Buffers) != want {
		return nil, output, structural(n.Name, "expected %d buffer indices, got %d", want, len(n.Buffers))
	}

	last := len(n.Buffers) - 1
	out := n.Buffers[last]
	if slices.Contains(n.Buffers[:last], out) {
		return nil, output, structural(n.Name, "output buffer %d aliases an input", out)
	}

	for _, idx := range n.Buffers {
		if idx < 0 || idx >= len(a.slots) {
			return nil, output, structural(n.Name, "buffer index %d out of range [0, %d)", idx, len(a.slots))
		}
	}

	inputs = make([]T, last)
	for i, idx := range n.Buffers[:last] {
		inputs[i] = a.slots[idx]
	}
	return inputs, a.slots[out], nil
}
