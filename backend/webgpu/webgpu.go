// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu executes graphs on a WebGPU compute device.
//
// The native device uses go-webgpu and is available on windows. The
// emulated device runs the same WGSL kernels in Go everywhere, which makes
// it useful for tests and machines without a GPU.
//
// Example:
//
//	import (
//	    "github.com/born-ml/tgraph/backend/webgpu"
//	    "github.com/born-ml/tgraph/graph"
//	)
//
//	func main() {
//	    dev, err := webgpu.NewNativeDevice()
//	    if err != nil {
//	        dev = webgpu.NewEmulatedDevice()
//	    }
//	    defer dev.Release()
//
//	    cache := webgpu.NewProgramCache(dev, logr.Discard())
//	    if err := cache.PopulateAll(); err != nil {
//	        log.Fatal(err)
//	    }
//	    defer cache.Release()
//
//	    r, err := webgpu.NewRunner(dev, ops, webgpu.WithProgramCache(cache))
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer r.Release()
//	    out, err := r.Run(ctx, 1)
//	}
package webgpu

import (
	"github.com/go-logr/logr"

	internalwebgpu "github.com/born-ml/tgraph/internal/backend/webgpu"
	"github.com/born-ml/tgraph/graph"
)

// Device is the compute device a Runner drives.
type Device = internalwebgpu.Device

// EmulatedDevice runs the WGSL kernels in Go.
type EmulatedDevice = internalwebgpu.EmulatedDevice

// ProgramCache holds compiled kernels for reuse across runners.
type ProgramCache = internalwebgpu.ProgramCache

// Runner owns a graph lowered onto a device.
type Runner = internalwebgpu.Runner

// Option configures a Runner.
type Option = internalwebgpu.Option

// DeviceError reports a failure of the compute device.
type DeviceError = internalwebgpu.DeviceError

// Errors.
var (
	ErrProgramNotCached = internalwebgpu.ErrProgramNotCached
	ErrReadbackInFlight = internalwebgpu.ErrReadbackInFlight
	ErrNoReadback       = internalwebgpu.ErrNoReadback
	ErrNoNativeDevice   = internalwebgpu.ErrNoNativeDevice
	ErrRunnerReleased   = internalwebgpu.ErrRunnerReleased
)

// NewNativeDevice opens the system WebGPU adapter, or returns an error
// matching ErrNoNativeDevice.
func NewNativeDevice() (Device, error) {
	return internalwebgpu.NewNativeDevice()
}

// NewEmulatedDevice creates a software device.
func NewEmulatedDevice() *EmulatedDevice {
	return internalwebgpu.NewEmulatedDevice()
}

// NewProgramCache creates an empty cache for device.
func NewProgramCache(device Device, log logr.Logger) *ProgramCache {
	return internalwebgpu.NewProgramCache(device, log)
}

// NewRunner validates ops and lowers them onto device.
func NewRunner(device Device, ops []graph.Operator, opts ...Option) (*Runner, error) {
	return internalwebgpu.NewRunner(device, ops, opts...)
}

// WithFusion enables LinearLayer fusion during lowering.
func WithFusion(fuse bool) Option {
	return internalwebgpu.WithFusion(fuse)
}

// WithProgramCache makes the runner take every pipeline from cache.
func WithProgramCache(cache *ProgramCache) Option {
	return internalwebgpu.WithProgramCache(cache)
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return internalwebgpu.WithLogger(log)
}
