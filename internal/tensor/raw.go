package tensor

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Device identifies where a graph's nodes execute.
type Device int

// Supported compute devices.
const (
	CPU Device = iota
	WebGPU
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case CPU:
		return "CPU"
	case WebGPU:
		return "WebGPU"
	default:
		return "Unknown"
	}
}

// Bytes encodes the active elements as little-endian float32 values, the
// layout WGSL storage buffers expect.
func (t *Tensor) Bytes() []byte {
	out := make([]byte, t.ByteSize())
	for i, v := range t.data[:t.Len()] {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// CopyFromBytes overwrites the tensor data with little-endian float32 values.
// Extra trailing bytes (buffer padding) are ignored.
func (t *Tensor) CopyFromBytes(raw []byte) error {
	need := int(t.ByteSize()) //nolint:gosec // G115: bounded by Len
	if len(raw) < need {
		return fmt.Errorf("tensor: have %d bytes, need %d for shape %s", len(raw), need, t.shape)
	}
	for i := range t.data[:t.Len()] {
		t.data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return nil
}

// FromBytes decodes little-endian float32 values into a new rows x cols tensor.
func FromBytes(rows, cols int, raw []byte) (*Tensor, error) {
	t := Zeros(rows, cols)
	if err := t.CopyFromBytes(raw); err != nil {
		return nil, err
	}
	return t, nil
}
