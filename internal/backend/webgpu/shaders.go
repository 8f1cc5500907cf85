package webgpu

import "github.com/born-ml/tgraph/internal/graph"

// WGSL compute shaders for the graph kernels.
// Using string constants instead of embed for simplicity.

const (
	// linearBlock is the side of the 2D workgroup of the linear kernels.
	linearBlock = 8
	// workgroupSize is the number of threads per 1D workgroup.
	workgroupSize = 256
)

// linearShader computes result = values*weights + bias, optionally clamped.
// Bindings: 0 dims, 1 values, 2 weights, 3 bias, 4 result.
const linearShader = `
struct Dimensions {
    values_rows: u32,
    values_cols: u32,
    weights_rows: u32,
    weights_cols: u32,
    bias_rows: u32,
    bias_cols: u32,
    result_rows: u32,
    result_cols: u32,
}

@group(0) @binding(0) var<uniform> dims: Dimensions;
@group(0) @binding(1) var<storage, read> values: array<f32>;
@group(0) @binding(2) var<storage, read> weights: array<f32>;
@group(0) @binding(3) var<storage, read> bias: array<f32>;
@group(0) @binding(4) var<storage, read_write> result: array<f32>;

fn linear(row: u32, col: u32) -> f32 {
    var sum: f32 = bias[row * dims.bias_cols + col];
    for (var k: u32 = 0u; k < dims.values_cols; k = k + 1u) {
        sum = sum + values[row * dims.values_cols + k] * weights[k * dims.weights_cols + col];
    }
    return sum;
}

@compute @workgroup_size(8, 8, 1)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let row = global_id.x;
    let col = global_id.y;
    if (row < dims.result_rows && col < dims.result_cols) {
        result[row * dims.result_cols + col] = linear(row, col);
    }
}

@compute @workgroup_size(8, 8, 1)
fn main_with_relu(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let row = global_id.x;
    let col = global_id.y;
    if (row < dims.result_rows && col < dims.result_cols) {
        result[row * dims.result_cols + col] = max(linear(row, col), 0.0);
    }
}
`

// reluShader computes result = max(values, 0).
// Bindings: 0 params, 1 values, 2 result.
const reluShader = `
struct Params {
    size: u32,
}

@group(0) @binding(0) var<uniform> params: Params;
@group(0) @binding(1) var<storage, read> values: array<f32>;
@group(0) @binding(2) var<storage, read_write> result: array<f32>;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if (idx < params.size) {
        result[idx] = max(values[idx], 0.0);
    }
}
`

// softmaxShader normalizes over every element in three passes: a single
// thread finds the maximum, a single thread folds max + ln(sum(exp(x - max)))
// into one offset, then every element maps to exp(x - offset).
// Bindings: 0 params, 1 values, 2 global_max, 3 global_offset, 4 result.
const softmaxShader = `
struct Params {
    size: u32,
}

@group(0) @binding(0) var<uniform> params: Params;
@group(0) @binding(1) var<storage, read> values: array<f32>;
@group(0) @binding(2) var<storage, read_write> global_max: array<f32>;
@group(0) @binding(3) var<storage, read_write> global_offset: array<f32>;
@group(0) @binding(4) var<storage, read_write> result: array<f32>;

@compute @workgroup_size(1)
fn single_pass_max(@builtin(global_invocation_id) global_id: vec3<u32>) {
    if (global_id.x != 0u) {
        return;
    }
    var m: f32 = values[0];
    for (var i: u32 = 1u; i < params.size; i = i + 1u) {
        m = max(m, values[i]);
    }
    global_max[0] = m;
}

@compute @workgroup_size(1)
fn single_pass_sum(@builtin(global_invocation_id) global_id: vec3<u32>) {
    if (global_id.x != 0u) {
        return;
    }
    let m = global_max[0];
    var sum: f32 = 0.0;
    for (var i: u32 = 0u; i < params.size; i = i + 1u) {
        sum = sum + exp(values[i] - m);
    }
    global_offset[0] = m + log(sum);
}

@compute @workgroup_size(256)
fn map(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if (idx < params.size) {
        result[idx] = exp(values[idx] - global_offset[0]);
    }
}
`

// ShaderID identifies one shader module.
type ShaderID int

// Shader modules.
const (
	ShaderLinear ShaderID = iota
	ShaderReLU
	ShaderSoftmax

	numShaders
)

var shaderTable = [numShaders]struct {
	name   string
	source string
}{
	ShaderLinear:  {"linear_layer", linearShader},
	ShaderReLU:    {"relu", reluShader},
	ShaderSoftmax: {"softmax", softmaxShader},
}

func (s ShaderID) String() string {
	if s < 0 || s >= numShaders {
		return "unknown"
	}
	return shaderTable[s].name
}

// Source returns the WGSL source of the shader.
func (s ShaderID) Source() string {
	return shaderTable[s].source
}

// KernelID identifies one compiled entry point. It replaces string cache
// keys: every value has a table entry, so a lookup cannot miss on a typo.
type KernelID int

// Kernels.
const (
	KernelLinear KernelID = iota
	KernelLinearReLU
	KernelReLU
	KernelSoftmaxMax
	KernelSoftmaxSum
	KernelSoftmaxMap

	numKernels
)

var kernelTable = [numKernels]struct {
	name   string
	shader ShaderID
	entry  string
}{
	KernelLinear:     {"LinearLayer", ShaderLinear, "main"},
	KernelLinearReLU: {"LinearLayer_fused", ShaderLinear, "main_with_relu"},
	KernelReLU:       {"ReLU", ShaderReLU, "main"},
	KernelSoftmaxMax: {"Softmax_single_pass_max", ShaderSoftmax, "single_pass_max"},
	KernelSoftmaxSum: {"Softmax_single_pass_sum", ShaderSoftmax, "single_pass_sum"},
	KernelSoftmaxMap: {"Softmax_map", ShaderSoftmax, "map"},
}

// AllKernels lists every kernel in table order.
func AllKernels() []KernelID {
	ids := make([]KernelID, numKernels)
	for i := range ids {
		ids[i] = KernelID(i)
	}
	return ids
}

func (k KernelID) String() string {
	if k < 0 || k >= numKernels {
		return "unknown"
	}
	return kernelTable[k].name
}

// Shader returns the module the kernel's entry point lives in.
func (k KernelID) Shader() ShaderID {
	return kernelTable[k].shader
}

// Entry returns the WGSL entry point name.
func (k KernelID) Entry() string {
	return kernelTable[k].entry
}

// KernelsFor returns the kernels a node of the given kind dispatches, in
// order. Bookkeeping kinds dispatch nothing.
func KernelsFor(kind graph.NodeKind) []KernelID {
	switch kind {
	case graph.NodeLinearLayer:
		return []KernelID{KernelLinear}
	case graph.NodeLinearReLU:
		return []KernelID{KernelLinearReLU}
	case graph.NodeLinearReLUSoftmax:
		return []KernelID{KernelLinearReLU, KernelSoftmaxMax, KernelSoftmaxSum, KernelSoftmaxMap}
	case graph.NodeReLU:
		return []KernelID{KernelReLU}
	case graph.NodeSoftmax:
		return []KernelID{KernelSoftmaxMax, KernelSoftmaxSum, KernelSoftmaxMap}
	default:
		return nil
	}
}
