// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the 2D float32 tensors that flow through a graph.
//
// # Overview
//
// A Tensor is a dense row-major matrix of float32 values. Tensors are the
// inputs, weights, biases and results of graph operators, and the unit of
// storage in both executors' buffer arenas.
//
// # Basic Usage
//
//	import "github.com/born-ml/tgraph/tensor"
//
//	func main() {
//	    x := tensor.New(0.1, 2, 3)      // ramp: element i holds i*0.1
//	    w := tensor.Full(1, 3, 4)       // every element 1
//	    b := tensor.Zeros(2, 4)
//
//	    data, err := tensor.FromSlice(2, 2, []float32{1, 2, 3, 4})
//	}
//
// # Bytes
//
// Bytes and FromBytes convert to and from the little-endian layout device
// buffers use.
package tensor
