//go:build windows

package webgpu

import (
	"context"
	"errors"
	"testing"

	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tgraph/internal/graph"
	"github.com/born-ml/tgraph/internal/tensor"
)

// nativeDevice opens the system adapter or skips the test.
func nativeDevice(t *testing.T) Device {
	t.Helper()
	dev, err := NewNativeDevice()
	if err != nil {
		require.True(t, errors.Is(err, ErrNoNativeDevice), "unexpected error: %v", err)
		t.Logf("WebGPU not available: %v", err)
		t.Skip("WebGPU not available on this system")
	}
	t.Cleanup(dev.Release)
	return dev
}

func TestAdapterName(t *testing.T) {
	tests := []struct {
		info *wgpu.AdapterInfoGo
		want string
	}{
		{&wgpu.AdapterInfoGo{Vendor: "nvidia", Device: "RTX 4070"}, "WebGPU (nvidia RTX 4070)"},
		{&wgpu.AdapterInfoGo{Description: "Microsoft Basic Render Driver"}, "WebGPU (Microsoft Basic Render Driver)"},
		{&wgpu.AdapterInfoGo{Device: "Arc A770"}, "WebGPU (Arc A770)"},
		{&wgpu.AdapterInfoGo{}, "WebGPU"},
	}
	for _, tt := range tests {
		if got := adapterName(tt.info); got != tt.want {
			t.Errorf("adapterName(%+v) = %q, want %q", *tt.info, got, tt.want)
		}
	}
}

func TestNativeDevice_New(t *testing.T) {
	dev := nativeDevice(t)
	if dev.Name() == "" {
		t.Error("device name should not be empty")
	}
	t.Logf("Using GPU: %s", dev.Name())
}

func TestNativeDevice_CompilesEveryKernel(t *testing.T) {
	dev := nativeDevice(t)
	cache := NewProgramCache(dev, discard)
	defer cache.Release()

	require.NoError(t, cache.PopulateAll())
	for _, id := range AllKernels() {
		_, err := cache.Pipeline(id)
		assert.NoError(t, err, "kernel %v", id)
	}
}

func TestNativeDevice_RoundTrip(t *testing.T) {
	in := tensor.New(0.5, 3, 4)
	r := newRunner(t, nativeDevice(t), []graph.Operator{graph.HostToDevice(in), graph.DeviceToHost()})

	out, err := r.Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, in.Data(), out.Data())
}

func TestNativeDevice_Scenario(t *testing.T) {
	dev := nativeDevice(t)
	for _, fuse := range []bool{false, true} {
		r := newRunner(t, dev, scenario(), WithFusion(fuse))
		out, err := r.Run(context.Background(), 2)
		require.NoError(t, err, "fuse=%v", fuse)
		assert.InDelta(t, 1.0, float64(out.Sum()), 1e-5, "fuse=%v", fuse)
	}
}

func TestNativeDevice_MatchesCPU(t *testing.T) {
	// GPU exp and log differ from Go's in the last bits; fused paths
	// reorder them.
	assertMatchesCPU(t, nativeDevice(t), 1e-5, 1e-4)
}

func TestNativeDevice_FusionTransparency(t *testing.T) {
	dev := nativeDevice(t)
	plain := newRunner(t, dev, scenario(), WithFusion(false))
	fused := newRunner(t, dev, scenario(), WithFusion(true))
	assert.Len(t, fused.Nodes(), len(plain.Nodes())-4)

	want, err := plain.Run(context.Background(), 1)
	require.NoError(t, err)
	got, err := fused.Run(context.Background(), 1)
	require.NoError(t, err)

	diff, err := got.MaxAbsDiff(want)
	require.NoError(t, err)
	assert.Less(t, diff, float32(1e-4))
}
