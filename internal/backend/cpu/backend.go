// Package cpu implements the CPU backend: numeric kernels for the graph node
// kinds, a host tensor arena and the node executor.
package cpu

import (
	"github.com/born-ml/tgraph/internal/parallel"
	"github.com/born-ml/tgraph/internal/tensor"
)

// CPUBackend runs graph kernels on host memory.
type CPUBackend struct {
	device tensor.Device
	par    parallel.Config
}

// New creates a new CPU backend that fans large linear layers out across
// all CPUs.
func New() *CPUBackend {
	return &CPUBackend{
		device: tensor.CPU,
		par:    parallel.DefaultConfig(),
	}
}

// NewSequential creates a CPU backend that never spawns goroutines.
func NewSequential() *CPUBackend {
	return &CPUBackend{
		device: tensor.CPU,
		par:    parallel.Sequential(),
	}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}
