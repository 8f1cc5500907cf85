// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/tgraph/internal/tensor"
)

// Tensor is a dense row-major 2D float32 tensor.
type Tensor = tensor.Tensor

// Shape holds the extents of a Tensor.
type Shape = tensor.Shape

// Device identifies where an executor keeps tensor storage.
type Device = tensor.Device

// Devices.
const (
	CPU    = tensor.CPU
	WebGPU = tensor.WebGPU
)

// New creates a rows x cols tensor where element i holds i*scale.
func New(scale float32, rows, cols int) *Tensor {
	return tensor.New(scale, rows, cols)
}

// Zeros creates a rows x cols tensor filled with zeros.
func Zeros(rows, cols int) *Tensor {
	return tensor.Zeros(rows, cols)
}

// Full creates a rows x cols tensor with every element set to value.
func Full(value float32, rows, cols int) *Tensor {
	return tensor.Full(value, rows, cols)
}

// FromSlice creates a rows x cols tensor holding a copy of data.
func FromSlice(rows, cols int, data []float32) (*Tensor, error) {
	return tensor.FromSlice(rows, cols, data)
}

// FromBytes decodes a rows x cols tensor from little-endian float32 bytes.
func FromBytes(rows, cols int, raw []byte) (*Tensor, error) {
	return tensor.FromBytes(rows, cols, raw)
}
