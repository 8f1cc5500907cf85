package webgpu

import (
	"github.com/born-ml/tgraph/internal/graph"
)

// kernelPipeline returns the pipeline for id. With a program cache it is a
// lookup; without one the program is compiled inline and released after
// the batch is submitted.
func (r *Runner) kernelPipeline(batch *CommandBatch, id KernelID) (Pipeline, error) {
	if r.cache != nil {
		return r.cache.Pipeline(id)
	}

	shader := id.Shader()
	program, err := r.device.CompileProgram(shader.String(), shader.Source())
	if err != nil {
		return nil, deviceError("compile "+shader.String(), err)
	}
	batch.Defer(program.Release)

	pipeline, err := r.device.CreatePipeline(program, id.Entry())
	if err != nil {
		return nil, deviceError("create pipeline "+id.String(), err)
	}
	batch.Defer(pipeline.Release)
	return pipeline, nil
}

// dispatch binds buffers for id and records one dispatch.
func (r *Runner) dispatch(batch *CommandBatch, id KernelID, bindings []Binding, x, y, z uint32) error {
	pipeline, err := r.kernelPipeline(batch, id)
	if err != nil {
		return err
	}

	bindGroup, err := r.device.Bind(pipeline, bindings)
	if err != nil {
		return deviceError("bind "+id.String(), err)
	}
	batch.Defer(bindGroup.Release)

	batch.Encoder().Dispatch(pipeline, bindGroup, x, y, z)
	return nil
}

// groups returns ceil(n / block) as a workgroup count.
func groups(n, block int) uint32 {
	//nolint:gosec // G115: Safe conversion, workgroup count is non-negative
	return uint32((n + block - 1) / block)
}

// encodeNode records the dispatches of the compute node at position i.
// Bookkeeping nodes record nothing.
func (r *Runner) encodeNode(batch *CommandBatch, i int, n graph.Node) error {
	if n.Kind.IsBookkeeping() {
		return nil
	}

	in, out, err := r.arena.Operands(n)
	if err != nil {
		return err
	}
	out.markWritten()
	u := r.uniforms[i]

	switch n.Kind {
	case graph.NodeLinearLayer:
		return r.encodeLinear(batch, KernelLinear, u.linear, in, out.Storage(), out)
	case graph.NodeLinearReLU:
		return r.encodeLinear(batch, KernelLinearReLU, u.linear, in, out.Storage(), out)
	case graph.NodeLinearReLUSoftmax:
		intermediate, err := r.pool.Acquire(n.Name+".intermediate", out.ByteSize(), UsageStorage)
		if err != nil {
			return err
		}
		batch.Defer(func() { r.pool.Release(intermediate, UsageStorage) })

		if err := r.encodeLinear(batch, KernelLinearReLU, u.linear, in, intermediate, out); err != nil {
			return err
		}
		return r.encodeSoftmax(batch, n.Name, u.elements, intermediate, out)
	case graph.NodeReLU:
		return r.dispatch(batch, KernelReLU, []Binding{
			{Slot: 0, Buffer: u.elements},
			{Slot: 1, Buffer: in[0].Storage()},
			{Slot: 2, Buffer: out.Storage()},
		}, groups(out.Shape().NumElements(), workgroupSize), 1, 1)
	case graph.NodeSoftmax:
		return r.encodeSoftmax(batch, n.Name, u.elements, in[0].Storage(), out)
	default:
		return &graph.StructuralError{Node: n.Name, Reason: "no GPU kernel for " + n.Kind.String()}
	}
}

// encodeLinear records values*weights + bias into result, a buffer shaped
// like out.
func (r *Runner) encodeLinear(batch *CommandBatch, id KernelID, uniform Buffer, in []*DeviceTensor, result Buffer, out *DeviceTensor) error {
	shape := out.Shape()
	return r.dispatch(batch, id, []Binding{
		{Slot: 0, Buffer: uniform},
		{Slot: 1, Buffer: in[0].Storage()},
		{Slot: 2, Buffer: in[1].Storage()},
		{Slot: 3, Buffer: in[2].Storage()},
		{Slot: 4, Buffer: result},
	}, groups(shape.Rows, linearBlock), groups(shape.Cols, linearBlock), 1)
}

// encodeSoftmax records the max, sum and map passes over values into out.
// The two scalars passed between passes come from the pool.
func (r *Runner) encodeSoftmax(batch *CommandBatch, name string, uniform, values Buffer, out *DeviceTensor) error {
	globalMax, err := r.pool.Acquire(name+".global_max", 4, UsageStorage)
	if err != nil {
		return err
	}
	batch.Defer(func() { r.pool.Release(globalMax, UsageStorage) })

	globalOffset, err := r.pool.Acquire(name+".global_offset", 4, UsageStorage)
	if err != nil {
		return err
	}
	batch.Defer(func() { r.pool.Release(globalOffset, UsageStorage) })

	if err := r.dispatch(batch, KernelSoftmaxMax, []Binding{
		{Slot: 0, Buffer: uniform},
		{Slot: 1, Buffer: values},
		{Slot: 2, Buffer: globalMax},
	}, 1, 1, 1); err != nil {
		return err
	}

	if err := r.dispatch(batch, KernelSoftmaxSum, []Binding{
		{Slot: 0, Buffer: uniform},
		{Slot: 1, Buffer: values},
		{Slot: 2, Buffer: globalMax},
		{Slot: 3, Buffer: globalOffset},
	}, 1, 1, 1); err != nil {
		return err
	}

	return r.dispatch(batch, KernelSoftmaxMap, []Binding{
		{Slot: 0, Buffer: uniform},
		{Slot: 1, Buffer: values},
		{Slot: 3, Buffer: globalOffset},
		{Slot: 4, Buffer: out.Storage()},
	}, groups(out.Shape().NumElements(), workgroupSize), 1, 1)
}

// transferAllBuffers copies every tensor whose staging buffer is stale.
func (r *Runner) transferAllBuffers(batch *CommandBatch) error {
	copies := 0
	for _, t := range r.arena.All() {
		if t.encodeTransfer(batch.Encoder()) {
			copies++
		}
	}
	r.log.V(2).Info("transfer_all_buffers", "copies", copies)
	return nil
}
