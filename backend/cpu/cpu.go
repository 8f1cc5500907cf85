// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	"github.com/go-logr/logr"

	internalcpu "github.com/born-ml/tgraph/internal/backend/cpu"
	"github.com/born-ml/tgraph/graph"
)

// Backend holds the CPU kernels.
type Backend = internalcpu.CPUBackend

// Runner owns a graph lowered for the CPU.
type Runner = internalcpu.Runner

// Option configures a Runner.
type Option = internalcpu.Option

// New creates a CPU backend that parallelizes large linear layers.
func New() *Backend {
	return internalcpu.New()
}

// NewSequential creates a CPU backend that never fans out.
func NewSequential() *Backend {
	return internalcpu.NewSequential()
}

// NewRunner validates ops and lowers them for execution.
func NewRunner(ops []graph.Operator, opts ...Option) (*Runner, error) {
	return internalcpu.NewRunner(ops, opts...)
}

// WithFusion enables LinearLayer fusion during lowering.
func WithFusion(fuse bool) Option {
	return internalcpu.WithFusion(fuse)
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return internalcpu.WithLogger(log)
}

// WithBackend selects the kernels a runner executes with.
func WithBackend(b *Backend) Option {
	return internalcpu.WithBackend(b)
}
