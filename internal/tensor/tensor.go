// Package tensor provides the flat row-major 2D float32 tensor used by the
// graph engine.
package tensor

import (
	"fmt"
	"math"
)

// Tensor is a flat row-major 2D buffer of float32 values.
//
// All active data lives in indices [0, Rows*Cols). The tensor owns its
// slice; Clone returns an independent copy.
type Tensor struct {
	data  []float32
	shape Shape
}

// Data returns the backing slice. Writes are visible to the tensor.
func (t *Tensor) Data() []float32 {
	return t.data
}

// Shape returns the tensor extents.
func (t *Tensor) Shape() Shape {
	return t.shape
}

// Rows returns the row count.
func (t *Tensor) Rows() int {
	return t.shape.Rows
}

// Cols returns the column count.
func (t *Tensor) Cols() int {
	return t.shape.Cols
}

// Len returns the number of active elements.
func (t *Tensor) Len() int {
	return t.shape.NumElements()
}

// ByteSize returns the size of the active data in bytes.
func (t *Tensor) ByteSize() uint64 {
	return uint64(t.Len()) * 4 //nolint:gosec // G115: Len is non-negative
}

// At returns the element at (row, col).
func (t *Tensor) At(row, col int) float32 {
	return t.data[row*t.shape.Cols+col]
}

// Set stores v at (row, col).
func (t *Tensor) Set(row, col int, v float32) {
	t.data[row*t.shape.Cols+col] = v
}

// Clone returns a deep copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	data := make([]float32, len(t.data))
	copy(data, t.data)
	return &Tensor{data: data, shape: t.shape}
}

// Sum returns the sum of all active elements.
func (t *Tensor) Sum() float32 {
	var sum float32
	for _, v := range t.data[:t.Len()] {
		sum += v
	}
	return sum
}

// Sub returns the element-wise difference t - other.
func (t *Tensor) Sub(other *Tensor) (*Tensor, error) {
	if !t.shape.Equal(other.shape) {
		return nil, fmt.Errorf("tensor: shape mismatch %s vs %s", t.shape, other.shape)
	}
	out := Zeros(t.shape.Rows, t.shape.Cols)
	for i := range out.data {
		out.data[i] = t.data[i] - other.data[i]
	}
	return out, nil
}

// MaxAbsDiff returns the largest element-wise absolute difference between
// t and other. Shapes must match.
func (t *Tensor) MaxAbsDiff(other *Tensor) (float32, error) {
	diff, err := t.Sub(other)
	if err != nil {
		return 0, err
	}
	var worst float64
	for _, v := range diff.data {
		worst = math.Max(worst, math.Abs(float64(v)))
	}
	return float32(worst), nil
}

// String returns a short description of the tensor.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%s", t.shape)
}
