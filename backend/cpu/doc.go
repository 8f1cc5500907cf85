// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu executes graphs on the host.
//
// # Overview
//
// This package provides:
//   - Pure Go kernels (no CGO)
//   - Row-parallel linear layers for large operands
//   - Optional LinearLayer fusion during lowering
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/tgraph/backend/cpu"
//	    "github.com/born-ml/tgraph/graph"
//	    "github.com/born-ml/tgraph/tensor"
//	)
//
//	func main() {
//	    r, err := cpu.NewRunner(ops, cpu.WithFusion(true))
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    out, err := r.Run()
//	}
//
// # Thread Safety
//
// A Runner owns its arena and must not be run from two goroutines at
// once. Separate runners share no mutable state.
package cpu
