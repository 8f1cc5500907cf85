// Package webgpu implements the GPU executor for lowered graphs.
//
// The executor talks to a Device: a small compute-device abstraction with
// program compilation, buffers, bind groups, command encoding, submission
// and asynchronous map-for-read. NewNativeDevice backs it with
// go-webgpu (github.com/go-webgpu/webgpu); NewEmulatedDevice runs the same
// kernels in Go for tests and machines without a GPU.
package webgpu

import (
	"errors"
	"fmt"
)

// BufferUsage describes how a device buffer is used.
type BufferUsage uint32

// Buffer usages.
const (
	// UsageStorage is a device-resident kernel operand. It can be the
	// source of a copy.
	UsageStorage BufferUsage = 1 << iota
	// UsageStaging is a host-visible buffer that can be mapped for read and
	// be the destination of a copy.
	UsageStaging
	// UsageUniform holds small kernel parameters.
	UsageUniform
)

func (u BufferUsage) String() string {
	switch u {
	case UsageStorage:
		return "storage"
	case UsageStaging:
		return "staging"
	case UsageUniform:
		return "uniform"
	default:
		return fmt.Sprintf("usage(%#x)", uint32(u))
	}
}

// Program is a compiled shader module.
type Program interface {
	Release()
}

// Pipeline is a compute pipeline for one entry point of a Program.
type Pipeline interface {
	Release()
}

// Buffer is a device memory allocation.
type Buffer interface {
	Size() uint64
	Release()
}

// BindGroup binds buffers to the slots of a pipeline.
type BindGroup interface {
	Release()
}

// Binding assigns a buffer to a shader binding slot of group 0.
type Binding struct {
	Slot   uint32
	Buffer Buffer
}

// Encoder records commands. Nothing runs until the encoder is submitted.
type Encoder interface {
	Dispatch(p Pipeline, bindings BindGroup, x, y, z uint32)
	CopyBuffer(src, dst Buffer, size uint64)
}

// Device is the compute device the executor drives.
//
// Devices are used from a single goroutine at a time.
type Device interface {
	// Name describes the device.
	Name() string
	// CompileProgram compiles WGSL source.
	CompileProgram(label, source string) (Program, error)
	// CreatePipeline creates a compute pipeline for entry.
	CreatePipeline(program Program, entry string) (Pipeline, error)
	// AllocateBuffer creates a buffer of size bytes. When contents is not
	// nil it is uploaded at creation; otherwise the buffer is zeroed.
	AllocateBuffer(label string, usage BufferUsage, size uint64, contents []byte) (Buffer, error)
	// Bind creates a bind group for group 0 of p.
	Bind(p Pipeline, bindings []Binding) (BindGroup, error)
	// NewEncoder opens a command encoder.
	NewEncoder() (Encoder, error)
	// Submit finishes enc and queues its commands.
	Submit(enc Encoder) error
	// MapForRead starts mapping a staging buffer. The returned channel
	// receives exactly one value once the map completes or fails.
	MapForRead(buf Buffer) (<-chan error, error)
	// Poll advances pending device work. With wait set it blocks until
	// queued work has made progress.
	Poll(wait bool)
	// ReadMapped returns a copy of a mapped buffer's bytes.
	ReadMapped(buf Buffer) ([]byte, error)
	// Unmap releases the host mapping of buf.
	Unmap(buf Buffer)
	// Release frees the device.
	Release()
}

var (
	// ErrProgramNotCached is returned when a program cache is configured
	// but does not hold a kernel the graph needs.
	ErrProgramNotCached = errors.New("webgpu: program not cached")
	// ErrReadbackInFlight is returned when a readback is started on a
	// tensor that already has one pending.
	ErrReadbackInFlight = errors.New("webgpu: readback already in flight")
	// ErrNoReadback is returned when awaiting a tensor with no pending
	// readback.
	ErrNoReadback = errors.New("webgpu: no readback in flight")
	// ErrNoNativeDevice is returned when no native WebGPU device can be
	// created on this platform.
	ErrNoNativeDevice = errors.New("webgpu: native device not available")
	// ErrRunnerReleased is returned by Run after Release.
	ErrRunnerReleased = errors.New("webgpu: runner released")
)

// DeviceError reports a failure of the compute device. Device errors are
// not retried.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("webgpu: %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

func deviceError(op string, err error) error {
	if err == nil {
		return nil
	}
	var derr *DeviceError
	if errors.As(err, &derr) {
		return err
	}
	return &DeviceError{Op: op, Err: err}
}
