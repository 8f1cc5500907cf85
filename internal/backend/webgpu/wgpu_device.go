//go:build windows

package webgpu

import (
	"fmt"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/pkg/errors"
)

// NativeDevice is a Device backed by the system WebGPU implementation.
type NativeDevice struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	name     string
}

type nativeProgram struct{ module *wgpu.ShaderModule }

func (p *nativeProgram) Release() { p.module.Release() }

type nativePipeline struct{ pipeline *wgpu.ComputePipeline }

func (p *nativePipeline) Release() { p.pipeline.Release() }

type nativeBindGroup struct{ group *wgpu.BindGroup }

func (g *nativeBindGroup) Release() { g.group.Release() }

type nativeBuffer struct {
	buffer *wgpu.Buffer
	size   uint64
}

func (b *nativeBuffer) Size() uint64 { return b.size }
func (b *nativeBuffer) Release()     { b.buffer.Release() }

type nativeEncoder struct {
	encoder *wgpu.CommandEncoder
}

func (e *nativeEncoder) Dispatch(p Pipeline, bindings BindGroup, x, y, z uint32) {
	pass := e.encoder.BeginComputePass(nil)
	pass.SetPipeline(p.(*nativePipeline).pipeline)
	pass.SetBindGroup(0, bindings.(*nativeBindGroup).group, nil)
	pass.DispatchWorkgroups(x, y, z)
	pass.End()
}

func (e *nativeEncoder) CopyBuffer(src, dst Buffer, size uint64) {
	e.encoder.CopyBufferToBuffer(src.(*nativeBuffer).buffer, 0, dst.(*nativeBuffer).buffer, 0, size)
}

// NewNativeDevice opens the high-performance adapter.
// Returns ErrNoNativeDevice if the native library or an adapter is missing.
func NewNativeDevice() (dev Device, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			dev = nil
			err = fmt.Errorf("%w: native library not available: %v", ErrNoNativeDevice, r)
		}
	}()

	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create instance: %w", ErrNoNativeDevice, err)
	}
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("%w: request adapter: %w", ErrNoNativeDevice, err)
	}

	// Adapter info is only used for the name.
	name := "WebGPU"
	if info, infoErr := adapter.GetInfo(); infoErr == nil && info != nil {
		name = adapterName(info)
	}

	device, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: request device: %w", ErrNoNativeDevice, err)
	}

	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: no queue", ErrNoNativeDevice)
	}

	return &NativeDevice{
		instance: instance,
		adapter:  adapter,
		device:   device,
		queue:    queue,
		name:     name,
	}, nil
}

func adapterName(info *wgpu.AdapterInfoGo) string {
	switch {
	case info.Device != "" && info.Vendor != "":
		return fmt.Sprintf("WebGPU (%s %s)", info.Vendor, info.Device)
	case info.Description != "":
		return fmt.Sprintf("WebGPU (%s)", info.Description)
	case info.Device != "":
		return fmt.Sprintf("WebGPU (%s)", info.Device)
	}
	return "WebGPU"
}

// Name returns the adapter name.
func (d *NativeDevice) Name() string {
	return d.name
}

// CompileProgram compiles a WGSL module.
func (d *NativeDevice) CompileProgram(label, source string) (prog Program, err error) {
	defer recoverAs(&err, "compile "+label)
	module := d.device.CreateShaderModuleWGSL(source)
	if module == nil {
		return nil, errors.Errorf("shader module %q not created", label)
	}
	return &nativeProgram{module: module}, nil
}

// CreatePipeline creates a compute pipeline with an auto layout.
func (d *NativeDevice) CreatePipeline(program Program, entry string) (p Pipeline, err error) {
	defer recoverAs(&err, "pipeline "+entry)
	pipeline := d.device.CreateComputePipelineSimple(nil, program.(*nativeProgram).module, entry)
	if pipeline == nil {
		return nil, errors.Errorf("pipeline for entry %q not created", entry)
	}
	return &nativePipeline{pipeline: pipeline}, nil
}

func nativeUsage(usage BufferUsage) wgpu.BufferUsage {
	switch usage {
	case UsageStaging:
		return wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst
	case UsageUniform:
		return wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst
	default:
		return wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst
	}
}

// AllocateBuffer creates a buffer, uploading contents through a mapping at
// creation.
func (d *NativeDevice) AllocateBuffer(label string, usage BufferUsage, size uint64, contents []byte) (buf Buffer, err error) {
	defer recoverAs(&err, "allocate "+label)

	desc := &wgpu.BufferDescriptor{
		Usage: nativeUsage(usage),
		Size:  size,
	}
	if len(contents) > 0 {
		desc.MappedAtCreation = wgpu.True
	}
	buffer := d.device.CreateBuffer(desc)
	if buffer == nil {
		return nil, errors.Errorf("buffer %q not created", label)
	}

	if len(contents) > 0 {
		mappedPtr := buffer.GetMappedRange(0, size)
		//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
		mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
		copy(mappedSlice, contents)
		buffer.Unmap()
	}
	return &nativeBuffer{buffer: buffer, size: size}, nil
}

// Bind creates a bind group against the pipeline's auto layout.
func (d *NativeDevice) Bind(p Pipeline, bindings []Binding) (bg BindGroup, err error) {
	defer recoverAs(&err, "bind")

	pipeline := p.(*nativePipeline).pipeline
	entries := make([]wgpu.BindGroupEntry, len(bindings))
	for i, b := range bindings {
		entries[i] = wgpu.BufferBindingEntry(b.Slot, b.Buffer.(*nativeBuffer).buffer, 0, b.Buffer.Size())
	}

	layout := pipeline.GetBindGroupLayout(0)
	group := d.device.CreateBindGroupSimple(layout, entries)
	if group == nil {
		return nil, errors.New("bind group not created")
	}
	return &nativeBindGroup{group: group}, nil
}

// NewEncoder opens a command encoder.
func (d *NativeDevice) NewEncoder() (enc Encoder, err error) {
	defer recoverAs(&err, "create encoder")
	return &nativeEncoder{encoder: d.device.CreateCommandEncoder(nil)}, nil
}

// Submit finishes enc and submits it to the queue.
func (d *NativeDevice) Submit(enc Encoder) (err error) {
	defer recoverAs(&err, "submit")
	e := enc.(*nativeEncoder)
	d.queue.Submit(e.encoder.Finish(nil))
	return nil
}

// MapForRead maps buf for reading. The binding blocks until the map
// completes, so the returned channel is already filled.
func (d *NativeDevice) MapForRead(buf Buffer) (done <-chan error, err error) {
	defer recoverAs(&err, "map")
	b := buf.(*nativeBuffer)
	ch := make(chan error, 1)
	ch <- b.buffer.MapAsync(d.device, wgpu.MapModeRead, 0, b.size)
	return ch, nil
}

// Poll is a no-op: MapForRead already waited.
func (d *NativeDevice) Poll(bool) {}

// ReadMapped copies the mapped range of buf.
func (d *NativeDevice) ReadMapped(buf Buffer) (data []byte, err error) {
	defer recoverAs(&err, "read mapped")
	b := buf.(*nativeBuffer)
	mappedPtr := b.buffer.GetMappedRange(0, b.size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), b.size)
	data = make([]byte, b.size)
	copy(data, mappedSlice)
	return data, nil
}

// Unmap releases the mapping of buf.
func (d *NativeDevice) Unmap(buf Buffer) {
	buf.(*nativeBuffer).buffer.Unmap()
}

// Release frees the device, adapter and instance.
func (d *NativeDevice) Release() {
	if d.queue != nil {
		d.queue.Release()
		d.queue = nil
	}
	if d.device != nil {
		d.device.Release()
		d.device = nil
	}
	if d.adapter != nil {
		d.adapter.Release()
		d.adapter = nil
	}
	if d.instance != nil {
		d.instance.Release()
		d.instance = nil
	}
}

// recoverAs turns a panic raised inside the native binding into an error.
func recoverAs(err *error, op string) {
	if r := recover(); r != nil {
		*err = errors.Errorf("%s: %v", op, r)
	}
}
