package tensor

import "fmt"

// New creates a rows x cols tensor where element i holds i*scale.
//
// A scale of 0 yields a zero tensor. The ramp makes every element distinct,
// which keeps index mistakes visible in tests.
func New(scale float32, rows, cols int) *Tensor {
	t := Zeros(rows, cols)
	for i := range t.data {
		t.data[i] = float32(i) * scale
	}
	return t
}

// Zeros creates a rows x cols tensor filled with zeros.
func Zeros(rows, cols int) *Tensor {
	n := 0
	if rows > 0 && cols > 0 {
		n = rows * cols
	}
	return &Tensor{
		data:  make([]float32, n),
		shape: Shape{Rows: rows, Cols: cols},
	}
}

// Full creates a rows x cols tensor with every element set to value.
func Full(value float32, rows, cols int) *Tensor {
	t := Zeros(rows, cols)
	for i := range t.data {
		t.data[i] = value
	}
	return t
}

// FromSlice creates a rows x cols tensor holding a copy of data.
func FromSlice(rows, cols int, data []float32) (*Tensor, error) {
	shape := Shape{Rows: rows, Cols: cols}
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("tensor: %w", err)
	}
	if len(data) != shape.NumElements() {
		return nil, fmt.Errorf("tensor: data length %d does not match shape %s", len(data), shape)
	}
	t := Zeros(rows, cols)
	copy(t.data, data)
	return t, nil
}
