package webgpu

import (
	"github.com/born-ml/tgraph/internal/tensor"
)

// DeviceTensor pairs a host tensor with its device storage buffer and a
// host-visible staging buffer used for readback.
type DeviceTensor struct {
	host    *tensor.Tensor // Host copy, refreshed by readback
	label   string
	storage Buffer // Kernel operand
	staging Buffer // Copy destination, mapped for read

	// stagingCurrent is true while the staging buffer holds the latest
	// storage contents. A dispatch writing this tensor clears it; the
	// transfer pass sets it again.
	stagingCurrent bool

	// pending is the readback slot: the completion signal of the one
	// map-for-read request allowed in flight.
	pending <-chan error
}

// NewDeviceTensor uploads host into a new storage buffer and allocates a
// matching staging buffer. Readback fills a private copy of host, so the
// caller's tensor is never written.
func NewDeviceTensor(dev Device, label string, host *tensor.Tensor) (*DeviceTensor, error) {
	size := host.ByteSize()
	storage, err := dev.AllocateBuffer(label+".storage", UsageStorage, size, host.Bytes())
	if err != nil {
		return nil, deviceError("allocate "+label, err)
	}
	staging, err := dev.AllocateBuffer(label+".staging", UsageStaging, size, nil)
	if err != nil {
		storage.Release()
		return nil, deviceError("allocate "+label, err)
	}
	return &DeviceTensor{
		host:    host.Clone(),
		label:   label,
		storage: storage,
		staging: staging,
	}, nil
}

// Host returns the host tensor. Its contents reflect the device only after
// a completed readback.
func (t *DeviceTensor) Host() *tensor.Tensor {
	return t.host
}

// Shape returns the tensor extents.
func (t *DeviceTensor) Shape() tensor.Shape {
	return t.host.Shape()
}

// Label returns the allocation label.
func (t *DeviceTensor) Label() string {
	return t.label
}

// Storage returns the device storage buffer.
func (t *DeviceTensor) Storage() Buffer {
	return t.storage
}

// ByteSize returns the size of the device buffers.
func (t *DeviceTensor) ByteSize() uint64 {
	return t.host.ByteSize()
}

// markWritten records that a dispatch will overwrite storage.
func (t *DeviceTensor) markWritten() {
	t.stagingCurrent = false
}

// encodeTransfer records a storage to staging copy if staging is stale.
// It reports whether a copy was recorded.
func (t *DeviceTensor) encodeTransfer(enc Encoder) bool {
	if t.stagingCurrent {
		return false
	}
	enc.CopyBuffer(t.storage, t.staging, t.ByteSize())
	t.stagingCurrent = true
	return true
}

// Release frees both device buffers. A pending readback is abandoned.
func (t *DeviceTensor) Release() {
	if t.storage != nil {
		t.storage.Release()
		t.storage = nil
	}
	if t.staging != nil {
		t.staging.Release()
		t.staging = nil
	}
	t.pending = nil
}
