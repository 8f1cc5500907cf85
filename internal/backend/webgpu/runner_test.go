package webgpu

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tgraph/internal/backend/cpu"
	"github.com/born-ml/tgraph/internal/graph"
	"github.com/born-ml/tgraph/internal/tensor"
)

var discard = logr.Discard()

// signed returns a ramp shifted so roughly half the values are negative.
func signed(scale float32, rows, cols int) *tensor.Tensor {
	t := tensor.New(scale, rows, cols)
	half := float32(rows*cols) * scale / 2
	for i := range t.Data() {
		t.Data()[i] -= half
	}
	return t
}

func scenario() []graph.Operator {
	return []graph.Operator{
		graph.HostToDevice(tensor.Full(0.5, 4, 4)),
		graph.LinearLayer(tensor.Full(1, 4, 4), tensor.Full(0.1, 4, 4)),
		graph.ReLU(),
		graph.Softmax(),
		graph.DeviceToHost(),
	}
}

func newRunner(t *testing.T, dev Device, ops []graph.Operator, opts ...Option) *Runner {
	t.Helper()
	r, err := NewRunner(dev, ops, opts...)
	require.NoError(t, err)
	t.Cleanup(r.Release)
	return r
}

func TestRunner_RoundTrip(t *testing.T) {
	in := tensor.New(0.5, 3, 4)
	r := newRunner(t, NewEmulatedDevice(), []graph.Operator{graph.HostToDevice(in), graph.DeviceToHost()})

	out, err := r.Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, in.Data(), out.Data())
	assert.NotSame(t, in, out)
}

func TestRunner_LinearReLUSoftmaxScenario(t *testing.T) {
	for _, fuse := range []bool{false, true} {
		t.Run(fmt.Sprintf("fuse=%v", fuse), func(t *testing.T) {
			r := newRunner(t, NewEmulatedDevice(), scenario(), WithFusion(fuse))

			out, err := r.Run(context.Background(), 1)
			require.NoError(t, err)
			assert.Equal(t, tensor.Shape{Rows: 4, Cols: 4}, out.Shape())
			assert.InDelta(t, 1.0, float64(out.Sum()), 1e-5)
			for _, v := range out.Data() {
				assert.InDelta(t, 1.0/16, float64(v), 1e-6)
			}
		})
	}
}

// Fused, the first graph lowers to LinearReLUSoftmax + LinearLayer and the
// second to LinearReLU + LinearLayer + Softmax.
var equivalenceGraphs = map[string]func(rows, inner, cols int) []graph.Operator{
	"LinearReLUSoftmax": func(rows, inner, cols int) []graph.Operator {
		return []graph.Operator{
			graph.HostToDevice(signed(0.1, rows, inner)),
			graph.LinearLayer(signed(0.05, inner, cols), signed(0.02, rows, cols)),
			graph.ReLU(),
			graph.Softmax(),
			graph.LinearLayer(signed(0.03, cols, 3), signed(0.01, rows, 3)),
			graph.DeviceToHost(),
		}
	},
	"LinearReLU": func(rows, inner, cols int) []graph.Operator {
		return []graph.Operator{
			graph.HostToDevice(signed(0.1, rows, inner)),
			graph.LinearLayer(signed(0.05, inner, cols), signed(0.02, rows, cols)),
			graph.ReLU(),
			graph.LinearLayer(signed(0.03, cols, 2), signed(0.01, rows, 2)),
			graph.Softmax(),
			graph.DeviceToHost(),
		}
	},
}

// assertMatchesCPU runs every equivalence graph for extents 1..8 on dev,
// fused and unfused, against the sequential CPU backend.
func assertMatchesCPU(t *testing.T, dev Device, tolerance, fusedTolerance float32) {
	t.Helper()
	cache := NewProgramCache(dev, discard)
	require.NoError(t, cache.PopulateAll())
	defer cache.Release()

	for name, build := range equivalenceGraphs {
		t.Run(name, func(t *testing.T) {
			for rows := 1; rows <= 8; rows++ {
				for cols := 1; cols <= 8; cols++ {
					inner := (rows+cols)%5 + 1
					ops := build(rows, inner, cols)

					ref, err := cpu.NewRunner(ops, cpu.WithBackend(cpu.NewSequential()))
					require.NoError(t, err)
					want, err := ref.Run()
					require.NoError(t, err)

					for _, fuse := range []bool{false, true} {
						r, err := NewRunner(dev, ops, WithFusion(fuse), WithProgramCache(cache))
						require.NoError(t, err)
						got, err := r.Run(context.Background(), 1)
						r.Release()
						require.NoError(t, err, "%dx%dx%d fuse=%v", rows, inner, cols, fuse)

						tol := tolerance
						if fuse {
							tol = fusedTolerance
						}
						diff, err := got.MaxAbsDiff(want)
						require.NoError(t, err)
						assert.Less(t, diff, tol, "%dx%dx%d fuse=%v", rows, inner, cols, fuse)
					}
				}
			}
		})
	}
}

func TestRunner_MatchesCPU(t *testing.T) {
	// The emulated kernels follow the CPU operation order, so fusing does
	// not need a looser bound.
	assertMatchesCPU(t, NewEmulatedDevice(), 1e-5, 1e-5)
}

func TestRunner_FusionTransparency(t *testing.T) {
	dev := NewEmulatedDevice()
	plain := newRunner(t, dev, scenario(), WithFusion(false))
	fused := newRunner(t, dev, scenario(), WithFusion(true))

	// Input, Transfer, then (node, Transfer) per compute step, then Output.
	assert.Len(t, plain.Nodes(), 2+2*3+1)
	assert.Len(t, fused.Nodes(), 2+2*1+1)
	assert.Equal(t, 1+3+1+1, plain.Arena().Len())
	assert.Equal(t, 1+3, fused.Arena().Len())

	want, err := plain.Run(context.Background(), 1)
	require.NoError(t, err)
	got, err := fused.Run(context.Background(), 1)
	require.NoError(t, err)

	diff, err := got.MaxAbsDiff(want)
	require.NoError(t, err)
	assert.Less(t, diff, float32(1e-6))
}

func TestRunner_NodeKinds(t *testing.T) {
	r := newRunner(t, NewEmulatedDevice(), scenario(), WithFusion(true))

	var kinds []graph.NodeKind
	for _, n := range r.Nodes() {
		kinds = append(kinds, n.Kind)
	}
	assert.Equal(t, []graph.NodeKind{
		graph.NodeInput, graph.NodeTransfer,
		graph.NodeLinearReLUSoftmax, graph.NodeTransfer,
		graph.NodeOutput,
	}, kinds)
}

func TestRunner_ProgramCache(t *testing.T) {
	t.Run("Miss", func(t *testing.T) {
		dev := NewEmulatedDevice()
		cache := NewProgramCache(dev, discard)
		r := newRunner(t, dev, scenario(), WithProgramCache(cache))

		_, err := r.Run(context.Background(), 1)
		assert.ErrorIs(t, err, ErrProgramNotCached)
		assert.Zero(t, dev.Stats().Submits)
	})

	t.Run("PartialMiss", func(t *testing.T) {
		dev := NewEmulatedDevice()
		cache := NewProgramCache(dev, discard)
		require.NoError(t, cache.Populate(KernelsFor(graph.NodeLinearLayer)...))
		r := newRunner(t, dev, scenario(), WithProgramCache(cache))

		_, err := r.Run(context.Background(), 1)
		assert.ErrorIs(t, err, ErrProgramNotCached)
	})

	t.Run("Hit", func(t *testing.T) {
		dev := NewEmulatedDevice()

		var logged []string
		log := funcr.New(func(_, args string) { logged = append(logged, args) }, funcr.Options{})
		cache := NewProgramCache(dev, log)
		require.NoError(t, cache.PopulateAll())
		require.NoError(t, cache.PopulateAll(), "populating twice is a no-op")
		defer cache.Release()

		assert.Equal(t, int(numKernels), cache.Len())
		assert.Equal(t, int(numShaders), cache.Compiles())
		assert.Len(t, logged, int(numKernels))
		assert.True(t, strings.Contains(logged[0], `"cached kernel"`), logged[0])

		before := dev.Stats()
		for _, fuse := range []bool{false, true} {
			r := newRunner(t, dev, scenario(), WithFusion(fuse), WithProgramCache(cache))
			_, err := r.Run(context.Background(), 3)
			require.NoError(t, err)
		}
		after := dev.Stats()
		assert.Equal(t, before.Programs, after.Programs, "no compiles during runs")
		assert.Equal(t, before.Pipelines, after.Pipelines)
	})

	t.Run("Inline", func(t *testing.T) {
		dev := NewEmulatedDevice()
		r := newRunner(t, dev, scenario(), WithFusion(true))

		_, err := r.Run(context.Background(), 2)
		require.NoError(t, err)

		// One compile per dispatch: linear_relu, max, sum and map.
		stats := dev.Stats()
		assert.Equal(t, 2*4, stats.Programs)
		assert.Equal(t, 2*4, stats.Dispatches)
	})
}

func TestRunner_Iterations(t *testing.T) {
	dev := NewEmulatedDevice()
	r := newRunner(t, dev, scenario(), WithFusion(true))

	_, err := r.Run(context.Background(), 0)
	require.Error(t, err)
	assert.Zero(t, dev.Stats().Submits)

	out, err := r.Run(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 5, dev.Stats().Submits)
	assert.InDelta(t, 1.0, float64(out.Sum()), 1e-5)
}

func TestRunner_StagingTransfers(t *testing.T) {
	dev := NewEmulatedDevice()
	r := newRunner(t, dev, scenario(), WithFusion(true))

	_, err := r.Run(context.Background(), 2)
	require.NoError(t, err)
	// The first pass copies all four tensors, later passes only the output.
	assert.Equal(t, 4+1, dev.Stats().Copies)

	_, err = r.Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 4+1+1, dev.Stats().Copies)
}

func TestRunner_PoolReuse(t *testing.T) {
	r := newRunner(t, NewEmulatedDevice(), scenario(), WithFusion(true))

	_, err := r.Run(context.Background(), 3)
	require.NoError(t, err)

	// Intermediate plus two softmax scalars, allocated once.
	stats := r.PoolStats()
	assert.Equal(t, uint64(3), stats.Misses)
	assert.Equal(t, uint64(6), stats.Hits)
	assert.Equal(t, 3, stats.Pooled)
}

func TestRunner_CancelledReadbackResumes(t *testing.T) {
	r := newRunner(t, NewEmulatedDevice(), scenario(), WithFusion(true))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Run(ctx, 1)
	require.ErrorIs(t, err, context.Canceled)

	out, err := r.Arena().At(r.output)
	require.NoError(t, err)
	assert.True(t, out.ReadbackPending())

	got, err := r.Run(context.Background(), 1)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, float64(got.Sum()), 1e-5)
	assert.False(t, out.ReadbackPending())
}

func TestRunner_MapFailure(t *testing.T) {
	dev := NewEmulatedDevice()
	r := newRunner(t, dev, scenario())

	lost := errors.New("device lost")
	dev.FailMaps(lost)
	_, err := r.Run(context.Background(), 1)

	var derr *DeviceError
	require.True(t, errors.As(err, &derr), "got %v", err)
	assert.ErrorIs(t, err, lost)

	dev.FailMaps(nil)
	_, err = r.Run(context.Background(), 1)
	assert.NoError(t, err)
}

func TestRunner_RejectsInvalidGraph(t *testing.T) {
	dev := NewEmulatedDevice()

	_, err := NewRunner(dev, []graph.Operator{
		graph.HostToDevice(tensor.Full(1, 2, 3)),
		graph.LinearLayer(tensor.Full(1, 2, 2), tensor.Full(1, 2, 2)),
		graph.DeviceToHost(),
	})
	require.ErrorIs(t, err, graph.ErrInvalidGraph)
	assert.Zero(t, dev.Stats().Buffers, "nothing is allocated for an invalid graph")
}

func TestRunner_ReleaseFreesBuffers(t *testing.T) {
	dev := NewEmulatedDevice()
	r, err := NewRunner(dev, scenario())
	require.NoError(t, err)

	_, err = r.Run(context.Background(), 2)
	require.NoError(t, err)
	require.Positive(t, dev.Stats().LiveBuffers)

	r.Release()
	assert.Zero(t, dev.Stats().LiveBuffers)

	_, err = r.Run(context.Background(), 1)
	assert.ErrorIs(t, err, ErrRunnerReleased)

	r.Release()
	assert.Zero(t, dev.Stats().LiveBuffers)
}

func TestDeviceTensor_Readback(t *testing.T) {
	dev := NewEmulatedDevice()
	host := tensor.New(1, 2, 2)
	dt, err := NewDeviceTensor(dev, "x", host)
	require.NoError(t, err)
	defer dt.Release()

	_, err = dt.AwaitReadback(context.Background(), dev)
	require.ErrorIs(t, err, ErrNoReadback)

	enc, err := dev.NewEncoder()
	require.NoError(t, err)
	assert.True(t, dt.encodeTransfer(enc))
	assert.False(t, dt.encodeTransfer(enc), "staging already current")
	require.NoError(t, dev.Submit(enc))

	require.NoError(t, dt.BeginReadback(dev))
	assert.ErrorIs(t, dt.BeginReadback(dev), ErrReadbackInFlight)

	got, err := dt.AwaitReadback(context.Background(), dev)
	require.NoError(t, err)
	assert.Equal(t, host.Data(), got.Data())
	assert.NotSame(t, host, got)
	assert.False(t, dt.ReadbackPending())
}
