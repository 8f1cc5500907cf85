package webgpu

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatBytes(vals ...float32) []byte {
	out := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func pipelineFor(t *testing.T, dev Device, id KernelID) Pipeline {
	t.Helper()
	prog, err := dev.CompileProgram(id.Shader().String(), id.Shader().Source())
	require.NoError(t, err)
	p, err := dev.CreatePipeline(prog, id.Entry())
	require.NoError(t, err)
	return p
}

func TestEmulatedDevice_RejectsUnknownShader(t *testing.T) {
	dev := NewEmulatedDevice()

	_, err := dev.CompileProgram("custom", "@compute fn main() {}")
	require.Error(t, err)

	prog, err := dev.CompileProgram("relu", reluShader)
	require.NoError(t, err)
	_, err = dev.CreatePipeline(prog, "single_pass_max")
	assert.Error(t, err, "entry point belongs to another shader")
}

func TestEmulatedDevice_BindChecksSlots(t *testing.T) {
	dev := NewEmulatedDevice()
	p := pipelineFor(t, dev, KernelReLU)

	params, err := dev.AllocateBuffer("params", UsageUniform, 16, elementUniform(4))
	require.NoError(t, err)
	values, err := dev.AllocateBuffer("values", UsageStorage, 16, nil)
	require.NoError(t, err)
	result, err := dev.AllocateBuffer("result", UsageStorage, 16, nil)
	require.NoError(t, err)

	_, err = dev.Bind(p, []Binding{{0, params}, {1, values}})
	assert.Error(t, err, "missing slot")

	_, err = dev.Bind(p, []Binding{{0, values}, {1, params}, {2, result}})
	assert.Error(t, err, "usage mismatch")

	_, err = dev.Bind(p, []Binding{{0, params}, {1, values}, {2, result}, {3, result}})
	assert.Error(t, err, "extra slot")

	_, err = dev.Bind(p, []Binding{{0, params}, {1, values}, {2, result}})
	assert.NoError(t, err)
}

func TestEmulatedDevice_ReLUDispatch(t *testing.T) {
	dev := NewEmulatedDevice()
	p := pipelineFor(t, dev, KernelReLU)

	params, err := dev.AllocateBuffer("params", UsageUniform, 16, elementUniform(4))
	require.NoError(t, err)
	values, err := dev.AllocateBuffer("values", UsageStorage, 16, floatBytes(-1, 2, -3, 4))
	require.NoError(t, err)
	result, err := dev.AllocateBuffer("result", UsageStorage, 16, nil)
	require.NoError(t, err)
	staging, err := dev.AllocateBuffer("staging", UsageStaging, 16, nil)
	require.NoError(t, err)

	bg, err := dev.Bind(p, []Binding{{0, params}, {1, values}, {2, result}})
	require.NoError(t, err)

	enc, err := dev.NewEncoder()
	require.NoError(t, err)
	enc.Dispatch(p, bg, 1, 1, 1)
	enc.CopyBuffer(result, staging, 16)
	require.NoError(t, dev.Submit(enc))
	assert.Error(t, dev.Submit(enc), "encoders are single use")

	done, err := dev.MapForRead(staging)
	require.NoError(t, err)
	dev.Poll(true)
	require.NoError(t, <-done)

	raw, err := dev.ReadMapped(staging)
	require.NoError(t, err)
	dev.Unmap(staging)
	assert.Equal(t, floatBytes(0, 2, 0, 4), raw)

	stats := dev.Stats()
	assert.Equal(t, 1, stats.Dispatches)
	assert.Equal(t, 1, stats.Copies)
}

func TestEmulatedDevice_OutOfBoundsFaults(t *testing.T) {
	dev := NewEmulatedDevice()
	p := pipelineFor(t, dev, KernelReLU)

	// params claims 8 elements over 4-element buffers.
	params, err := dev.AllocateBuffer("params", UsageUniform, 16, elementUniform(8))
	require.NoError(t, err)
	values, err := dev.AllocateBuffer("values", UsageStorage, 16, nil)
	require.NoError(t, err)
	result, err := dev.AllocateBuffer("result", UsageStorage, 16, nil)
	require.NoError(t, err)

	bg, err := dev.Bind(p, []Binding{{0, params}, {1, values}, {2, result}})
	require.NoError(t, err)
	enc, err := dev.NewEncoder()
	require.NoError(t, err)
	enc.Dispatch(p, bg, 1, 1, 1)

	err = dev.Submit(enc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "past end")
}

func TestEmulatedDevice_MapProtocol(t *testing.T) {
	dev := NewEmulatedDevice()
	storage, err := dev.AllocateBuffer("storage", UsageStorage, 8, floatBytes(1, 2))
	require.NoError(t, err)
	staging, err := dev.AllocateBuffer("staging", UsageStaging, 8, nil)
	require.NoError(t, err)

	_, err = dev.MapForRead(storage)
	assert.Error(t, err, "only staging buffers map")

	done, err := dev.MapForRead(staging)
	require.NoError(t, err)
	_, err = dev.MapForRead(staging)
	assert.Error(t, err, "already mapping")

	select {
	case <-done:
		t.Fatal("map completed before Poll")
	default:
	}
	_, err = dev.ReadMapped(staging)
	assert.Error(t, err, "not mapped yet")

	// Copies into a buffer being mapped fault at submit.
	enc, err := dev.NewEncoder()
	require.NoError(t, err)
	enc.CopyBuffer(storage, staging, 8)
	assert.Error(t, dev.Submit(enc))

	dev.Poll(false)
	require.NoError(t, <-done)
	dev.Unmap(staging)

	enc, err = dev.NewEncoder()
	require.NoError(t, err)
	enc.CopyBuffer(storage, staging, 8)
	assert.NoError(t, dev.Submit(enc))
}

func TestEmulatedDevice_FailMaps(t *testing.T) {
	dev := NewEmulatedDevice()
	staging, err := dev.AllocateBuffer("staging", UsageStaging, 4, nil)
	require.NoError(t, err)

	lost := errors.New("device lost")
	dev.FailMaps(lost)
	done, err := dev.MapForRead(staging)
	require.NoError(t, err)
	dev.Poll(true)
	assert.ErrorIs(t, <-done, lost)

	dev.FailMaps(nil)
	done, err = dev.MapForRead(staging)
	require.NoError(t, err, "a failed map leaves the buffer unmapped")
	dev.Poll(true)
	assert.NoError(t, <-done)
}

func TestEmulatedDevice_LiveBuffers(t *testing.T) {
	dev := NewEmulatedDevice()
	a, err := dev.AllocateBuffer("a", UsageStorage, 4, nil)
	require.NoError(t, err)
	_, err = dev.AllocateBuffer("b", UsageStorage, 4, nil)
	require.NoError(t, err)

	a.Release()
	a.Release()

	stats := dev.Stats()
	assert.Equal(t, 2, stats.Buffers)
	assert.Equal(t, 1, stats.LiveBuffers)

	_, err = dev.AllocateBuffer("empty", UsageStorage, 0, nil)
	assert.Error(t, err)
	_, err = dev.AllocateBuffer("short", UsageStorage, 4, floatBytes(1, 2))
	assert.Error(t, err)
}
