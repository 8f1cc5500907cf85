package webgpu

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/born-ml/tgraph/internal/graph"
	"github.com/born-ml/tgraph/internal/tensor"
)

// Option configures a Runner.
type Option func(*Runner)

// WithFusion enables LinearLayer fusion during lowering.
func WithFusion(fuse bool) Option {
	return func(r *Runner) {
		r.fuse = fuse
	}
}

// WithProgramCache makes the runner take every pipeline from cache. The
// cache must already hold the kernels the graph needs; a miss fails the run
// with ErrProgramNotCached. Without a cache, programs are compiled for each
// dispatch and released after submission.
func WithProgramCache(cache *ProgramCache) Option {
	return func(r *Runner) {
		r.cache = cache
	}
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(r *Runner) {
		r.log = log
	}
}

// nodeUniforms are the parameter buffers of one node. Extents never change
// between iterations, so they are uploaded once.
type nodeUniforms struct {
	linear   Buffer // Dimensions of the linear kernels
	elements Buffer // Element count of relu and softmax
}

// Runner owns a graph lowered onto a device.
type Runner struct {
	device Device
	cache  *ProgramCache
	fuse   bool
	log    logr.Logger

	pool     *BufferPool
	arena    *Arena
	nodes    []graph.Node
	uniforms []nodeUniforms
	output   int // Arena index read back after a run
	released bool
}

// NewRunner validates ops and lowers them onto device, uploading every
// operator tensor. Nothing is allocated when validation fails.
func NewRunner(device Device, ops []graph.Operator, opts ...Option) (*Runner, error) {
	r := &Runner{
		device: device,
		log:    logr.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.arena = NewArena(device)
	nodes, err := graph.Compile(ops, r.arena,
		graph.WithFusion(r.fuse),
		graph.WithTarget(tensor.WebGPU),
		graph.WithLogger(r.log))
	if err != nil {
		r.arena.Release()
		return nil, err
	}
	r.nodes = nodes

	last := nodes[len(nodes)-1]
	if last.Kind != graph.NodeOutput || len(last.Buffers) != 1 {
		r.arena.Release()
		return nil, &graph.StructuralError{Node: last.Name, Reason: "graph must end with a single-buffer output node"}
	}
	r.output = last.Buffers[0]

	if err := r.uploadUniforms(); err != nil {
		r.Release()
		return nil, err
	}
	r.pool = NewBufferPool(device)
	return r, nil
}

func (r *Runner) uploadUniforms() error {
	r.uniforms = make([]nodeUniforms, len(r.nodes))
	for i, n := range r.nodes {
		if n.Kind.IsBookkeeping() {
			continue
		}
		in, out, err := r.arena.Operands(n)
		if err != nil {
			return err
		}

		u := &r.uniforms[i]
		if n.Kind.IsLinear() {
			params := linearUniform(in[0].Shape(), in[1].Shape(), in[2].Shape(), out.Shape())
			if u.linear, err = r.allocUniform(n.Name+".dims", params); err != nil {
				return err
			}
		}
		if n.Kind == graph.NodeReLU || n.Kind == graph.NodeSoftmax || n.Kind == graph.NodeLinearReLUSoftmax {
			params := elementUniform(out.Shape().NumElements())
			if u.elements, err = r.allocUniform(n.Name+".params", params); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Runner) allocUniform(label string, params []byte) (Buffer, error) {
	size := alignUniform(uint64(len(params)))
	padded := make([]byte, size)
	copy(padded, params)
	buf, err := r.device.AllocateBuffer(label, UsageUniform, size, padded)
	if err != nil {
		return nil, deviceError("allocate "+label, err)
	}
	return buf, nil
}

// Run executes the graph iterations times, each as one submission, then
// reads back the output tensor.
//
// ctx bounds only the readback wait. Work already submitted runs to
// completion; if the wait is abandoned the next Run finishes it first.
func (r *Runner) Run(ctx context.Context, iterations int) (*tensor.Tensor, error) {
	if r.released {
		return nil, ErrRunnerReleased
	}
	if iterations < 1 {
		return nil, fmt.Errorf("webgpu: iterations must be at least 1, got %d", iterations)
	}

	out, err := r.arena.At(r.output)
	if err != nil {
		return nil, err
	}
	if out.ReadbackPending() {
		if _, err := out.AwaitReadback(ctx, r.device); err != nil {
			return nil, err
		}
	}

	for it := 0; it < iterations; it++ {
		if err := r.submitIteration(); err != nil {
			return nil, err
		}
	}

	host, err := out.Readback(ctx, r.device)
	if err != nil {
		return nil, err
	}
	r.log.V(1).Info("gpu graph executed",
		"device", r.device.Name(),
		"iterations", iterations,
		"nodes", len(r.nodes),
		"cached", r.cache != nil)
	return host.Clone(), nil
}

// submitIteration records every node plus the staging transfer into one
// batch and submits it.
func (r *Runner) submitIteration() error {
	batch, err := NewBatch(r.device)
	if err != nil {
		return err
	}
	for i, n := range r.nodes {
		batch.Add(n.Name, func(b *CommandBatch) error {
			return r.encodeNode(b, i, n)
		})
	}
	batch.Add("transfer_all_buffers", r.transferAllBuffers)
	return batch.Submit()
}

// Nodes returns the lowered node list.
func (r *Runner) Nodes() []graph.Node {
	return r.nodes
}

// Arena returns the device tensors the nodes index into.
func (r *Runner) Arena() *Arena {
	return r.arena
}

// PoolStats returns scratch buffer pool statistics.
func (r *Runner) PoolStats() PoolStats {
	return r.pool.Stats()
}

// Release frees the runner's device buffers. The device and the program
// cache are owned by the caller. Release is idempotent.
func (r *Runner) Release() {
	if r.released {
		return
	}
	r.released = true
	for _, u := range r.uniforms {
		if u.linear != nil {
			u.linear.Release()
		}
		if u.elements != nil {
			u.elements.Release()
		}
	}
	r.uniforms = nil
	if r.pool != nil {
		r.pool.Clear()
	}
	if r.arena != nil {
		r.arena.Release()
	}
}
