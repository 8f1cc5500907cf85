package webgpu

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/pkg/errors"
)

// EmulatedDevice is a software Device. It accepts only the shaders shipped
// in this package and runs their entry points in Go with the same dispatch
// geometry, bounds guards and binding slots as the WGSL. Map requests
// complete on the next Poll, so the readback protocol is exercised the same
// way as on hardware.
type EmulatedDevice struct {
	mu       sync.Mutex
	pending  []*emuMapRequest
	failMaps error
	released bool
	stats    EmulatedStats
}

// EmulatedStats counts device activity.
type EmulatedStats struct {
	Programs    int // Shader modules compiled
	Pipelines   int // Pipelines created
	BindGroups  int // Bind groups created
	Submits     int // Encoders submitted
	Dispatches  int // Dispatches executed
	Copies      int // Buffer copies executed
	Buffers     int // Buffers allocated
	LiveBuffers int // Buffers allocated and not yet released
}

// NewEmulatedDevice creates a software device.
func NewEmulatedDevice() *EmulatedDevice {
	return &EmulatedDevice{}
}

// Name returns the device name.
func (d *EmulatedDevice) Name() string {
	return "WebGPU (emulated)"
}

// Stats returns a snapshot of the activity counters.
func (d *EmulatedDevice) Stats() EmulatedStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// FailMaps makes every map request completed from now on fail with err.
// A nil err restores normal behavior.
func (d *EmulatedDevice) FailMaps(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failMaps = err
}

type emuProgram struct {
	shader   ShaderID
	released bool
}

func (p *emuProgram) Release() { p.released = true }

type emuPipeline struct {
	kernel   KernelID
	released bool
}

func (p *emuPipeline) Release() { p.released = true }

type emuBindGroup struct {
	pipeline *emuPipeline
	slots    map[uint32]*emuBuffer
	released bool
}

func (g *emuBindGroup) Release() { g.released = true }

type emuBuffer struct {
	dev      *EmulatedDevice
	label    string
	usage    BufferUsage
	data     []byte
	mapping  bool // map requested, not yet completed
	mapped   bool
	released bool
}

func (b *emuBuffer) Size() uint64 {
	return uint64(len(b.data))
}

func (b *emuBuffer) Release() {
	if b.released {
		return
	}
	b.released = true
	b.dev.mu.Lock()
	b.dev.stats.LiveBuffers--
	b.dev.mu.Unlock()
}

// emuFault aborts a kernel the way a device fault would. It is raised with
// panic inside kernels and recovered by Submit.
type emuFault struct {
	msg string
}

func (b *emuBuffer) word(i uint32) uint32 {
	off := uint64(i) * 4
	if off+4 > uint64(len(b.data)) {
		panic(emuFault{fmt.Sprintf("read of element %d past end of %s (%d bytes)", i, b.label, len(b.data))})
	}
	return binary.LittleEndian.Uint32(b.data[off:])
}

func (b *emuBuffer) load(i uint32) float32 {
	return math.Float32frombits(b.word(i))
}

func (b *emuBuffer) store(i uint32, v float32) {
	off := uint64(i) * 4
	if off+4 > uint64(len(b.data)) {
		panic(emuFault{fmt.Sprintf("write of element %d past end of %s (%d bytes)", i, b.label, len(b.data))})
	}
	binary.LittleEndian.PutUint32(b.data[off:], math.Float32bits(v))
}

type emuCommand struct {
	name string
	run  func()
}

type emuEncoder struct {
	cmds      []emuCommand
	submitted bool
}

func (e *emuEncoder) Dispatch(p Pipeline, bindings BindGroup, x, y, z uint32) {
	pipeline, _ := p.(*emuPipeline)
	group, _ := bindings.(*emuBindGroup)
	e.cmds = append(e.cmds, emuCommand{
		name: "dispatch",
		run: func() {
			switch {
			case pipeline == nil || group == nil:
				panic(emuFault{"dispatch with foreign pipeline or bind group"})
			case pipeline.released || group.released:
				panic(emuFault{"dispatch with released pipeline or bind group"})
			case group.pipeline.kernel != pipeline.kernel:
				panic(emuFault{"bind group was created for " + group.pipeline.kernel.String()})
			}
			for _, b := range group.slots {
				if b.released {
					panic(emuFault{"dispatch reads released buffer " + b.label})
				}
			}
			emuKernels[pipeline.kernel](group.slots, x, y, z)
		},
	})
}

func (e *emuEncoder) CopyBuffer(src, dst Buffer, size uint64) {
	s, _ := src.(*emuBuffer)
	d, _ := dst.(*emuBuffer)
	e.cmds = append(e.cmds, emuCommand{
		name: "copy",
		run: func() {
			switch {
			case s == nil || d == nil:
				panic(emuFault{"copy with foreign buffer"})
			case s.released || d.released:
				panic(emuFault{"copy with released buffer"})
			case s.usage != UsageStorage || d.usage != UsageStaging:
				panic(emuFault{fmt.Sprintf("copy from %s to %s buffer", s.usage, d.usage)})
			case d.mapping || d.mapped:
				panic(emuFault{"copy into mapped buffer " + d.label})
			case size > s.Size() || size > d.Size() || size%4 != 0:
				panic(emuFault{fmt.Sprintf("copy of %d bytes from %s to %s", size, s.label, d.label)})
			}
			copy(d.data[:size], s.data[:size])
		},
	})
}

// CompileProgram accepts only the package's own shader sources.
func (d *EmulatedDevice) CompileProgram(label, source string) (Program, error) {
	for id := ShaderID(0); id < numShaders; id++ {
		if id.Source() == source {
			d.mu.Lock()
			d.stats.Programs++
			d.mu.Unlock()
			return &emuProgram{shader: id}, nil
		}
	}
	return nil, errors.Errorf("emulated: no software kernel for shader %q", label)
}

// CreatePipeline resolves entry within the program's shader.
func (d *EmulatedDevice) CreatePipeline(program Program, entry string) (Pipeline, error) {
	p, ok := program.(*emuProgram)
	if !ok || p.released {
		return nil, errors.New("emulated: invalid program")
	}
	for id := KernelID(0); id < numKernels; id++ {
		if id.Shader() == p.shader && id.Entry() == entry {
			d.mu.Lock()
			d.stats.Pipelines++
			d.mu.Unlock()
			return &emuPipeline{kernel: id}, nil
		}
	}
	return nil, errors.Errorf("emulated: shader %s has no entry point %q", p.shader, entry)
}

// AllocateBuffer creates a zeroed buffer, optionally filled from contents.
func (d *EmulatedDevice) AllocateBuffer(label string, usage BufferUsage, size uint64, contents []byte) (Buffer, error) {
	if size == 0 {
		return nil, errors.Errorf("emulated: zero-sized buffer %q", label)
	}
	if uint64(len(contents)) > size {
		return nil, errors.Errorf("emulated: %d bytes of contents for %d-byte buffer %q", len(contents), size, label)
	}
	if usage != UsageStorage && usage != UsageStaging && usage != UsageUniform {
		return nil, errors.Errorf("emulated: unsupported usage %s for %q", usage, label)
	}

	buf := &emuBuffer{dev: d, label: label, usage: usage, data: make([]byte, size)}
	copy(buf.data, contents)

	d.mu.Lock()
	d.stats.Buffers++
	d.stats.LiveBuffers++
	d.mu.Unlock()
	return buf, nil
}

// Bind checks bindings against the slots the entry point uses.
func (d *EmulatedDevice) Bind(p Pipeline, bindings []Binding) (BindGroup, error) {
	pipeline, ok := p.(*emuPipeline)
	if !ok || pipeline.released {
		return nil, errors.New("emulated: invalid pipeline")
	}

	slots := make(map[uint32]*emuBuffer, len(bindings))
	for _, b := range bindings {
		buf, ok := b.Buffer.(*emuBuffer)
		if !ok || buf.released {
			return nil, errors.Errorf("emulated: invalid buffer at slot %d", b.Slot)
		}
		slots[b.Slot] = buf
	}

	want := emuKernelSlots[pipeline.kernel]
	if len(slots) != len(want) {
		return nil, errors.Errorf("emulated: %s binds %d slots, got %d", pipeline.kernel, len(want), len(slots))
	}
	for _, slot := range want {
		buf, ok := slots[slot]
		if !ok {
			return nil, errors.Errorf("emulated: %s: slot %d not bound", pipeline.kernel, slot)
		}
		usage := UsageStorage
		if slot == 0 {
			usage = UsageUniform
		}
		if buf.usage != usage {
			return nil, errors.Errorf("emulated: %s: slot %d wants %s buffer, got %s", pipeline.kernel, slot, usage, buf.usage)
		}
	}

	d.mu.Lock()
	d.stats.BindGroups++
	d.mu.Unlock()
	return &emuBindGroup{pipeline: pipeline, slots: slots}, nil
}

// NewEncoder opens an encoder.
func (d *EmulatedDevice) NewEncoder() (Encoder, error) {
	if d.released {
		return nil, errors.New("emulated: device released")
	}
	return &emuEncoder{}, nil
}

// Submit runs the encoder's commands in order.
func (d *EmulatedDevice) Submit(enc Encoder) (err error) {
	e, ok := enc.(*emuEncoder)
	if !ok {
		return errors.New("emulated: foreign encoder")
	}
	if e.submitted {
		return errors.New("emulated: encoder already submitted")
	}
	e.submitted = true

	d.mu.Lock()
	d.stats.Submits++
	d.mu.Unlock()

	for i, cmd := range e.cmds {
		if err := d.run(cmd); err != nil {
			return errors.Wrapf(err, "emulated: command %d (%s)", i, cmd.name)
		}
	}
	return nil
}

func (d *EmulatedDevice) run(cmd emuCommand) (err error) {
	defer func() {
		if r := recover(); r != nil {
			fault, ok := r.(emuFault)
			if !ok {
				panic(r)
			}
			err = errors.New(fault.msg)
		}
	}()

	cmd.run()

	d.mu.Lock()
	if cmd.name == "copy" {
		d.stats.Copies++
	} else {
		d.stats.Dispatches++
	}
	d.mu.Unlock()
	return nil
}

type emuMapRequest struct {
	buf  *emuBuffer
	done chan error
}

// MapForRead queues a map request that completes on the next Poll.
func (d *EmulatedDevice) MapForRead(buf Buffer) (<-chan error, error) {
	b, ok := buf.(*emuBuffer)
	switch {
	case !ok || b.released:
		return nil, errors.New("emulated: invalid buffer")
	case b.usage != UsageStaging:
		return nil, errors.Errorf("emulated: cannot map %s buffer %q", b.usage, b.label)
	case b.mapping || b.mapped:
		return nil, errors.Errorf("emulated: buffer %q already mapped", b.label)
	}

	b.mapping = true
	req := &emuMapRequest{buf: b, done: make(chan error, 1)}

	d.mu.Lock()
	d.pending = append(d.pending, req)
	d.mu.Unlock()
	return req.done, nil
}

// Poll completes every pending map request.
func (d *EmulatedDevice) Poll(_ bool) {
	d.mu.Lock()
	pending := d.pending
	d.pending = nil
	fail := d.failMaps
	d.mu.Unlock()

	for _, req := range pending {
		req.buf.mapping = false
		if fail != nil {
			req.done <- fail
			continue
		}
		req.buf.mapped = true
		req.done <- nil
	}
}

// ReadMapped copies a mapped buffer.
func (d *EmulatedDevice) ReadMapped(buf Buffer) ([]byte, error) {
	b, ok := buf.(*emuBuffer)
	if !ok || !b.mapped {
		return nil, errors.New("emulated: buffer not mapped")
	}
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out, nil
}

// Unmap releases the mapping of buf.
func (d *EmulatedDevice) Unmap(buf Buffer) {
	if b, ok := buf.(*emuBuffer); ok {
		b.mapped = false
	}
}

// Release marks the device unusable.
func (d *EmulatedDevice) Release() {
	d.released = true
}
