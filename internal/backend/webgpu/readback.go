package webgpu

import (
	"context"

	"github.com/born-ml/tgraph/internal/tensor"
)

// BeginReadback starts mapping the staging buffer for read.
//
// At most one readback may be in flight per tensor; a second call before
// the first is awaited returns ErrReadbackInFlight and leaves the first
// request untouched.
func (t *DeviceTensor) BeginReadback(dev Device) error {
	if t.pending != nil {
		return ErrReadbackInFlight
	}
	done, err := dev.MapForRead(t.staging)
	if err != nil {
		return deviceError("map "+t.label, err)
	}
	t.pending = done
	return nil
}

// ReadbackPending reports whether a readback is in flight.
func (t *DeviceTensor) ReadbackPending() bool {
	return t.pending != nil
}

// AwaitReadback polls dev until the pending readback completes, then copies
// the mapped bytes into the host tensor and unmaps.
//
// Cancelling ctx only abandons the wait; the request stays in flight and a
// later AwaitReadback resumes it.
func (t *DeviceTensor) AwaitReadback(ctx context.Context, dev Device) (*tensor.Tensor, error) {
	if t.pending == nil {
		return nil, ErrNoReadback
	}

	for {
		select {
		case err := <-t.pending:
			t.pending = nil
			if err != nil {
				return nil, deviceError("map "+t.label, err)
			}
			return t.copyMapped(dev)
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
			dev.Poll(true)
		}
	}
}

func (t *DeviceTensor) copyMapped(dev Device) (*tensor.Tensor, error) {
	defer dev.Unmap(t.staging)

	raw, err := dev.ReadMapped(t.staging)
	if err != nil {
		return nil, deviceError("read "+t.label, err)
	}
	if err := t.host.CopyFromBytes(raw); err != nil {
		return nil, deviceError("read "+t.label, err)
	}
	return t.host, nil
}

// Readback maps, awaits and copies in one call.
func (t *DeviceTensor) Readback(ctx context.Context, dev Device) (*tensor.Tensor, error) {
	if err := t.BeginReadback(dev); err != nil {
		return nil, err
	}
	return t.AwaitReadback(ctx, dev)
}
