package webgpu

import (
	"encoding/binary"

	"github.com/born-ml/tgraph/internal/tensor"
)

// uniformAlign is the size granularity of uniform buffers.
const uniformAlign = 16

// linearUniform encodes the Dimensions struct of linearShader: rows and
// cols of values, weights, bias and result as eight u32.
func linearUniform(in, w, b, out tensor.Shape) []byte {
	params := make([]byte, 32)
	for i, s := range []tensor.Shape{in, w, b, out} {
		//nolint:gosec // G115: extents are validated positive and small
		binary.LittleEndian.PutUint32(params[i*8:], uint32(s.Rows))
		//nolint:gosec // G115: extents are validated positive and small
		binary.LittleEndian.PutUint32(params[i*8+4:], uint32(s.Cols))
	}
	return params
}

// elementUniform encodes the Params struct of reluShader and softmaxShader,
// padded to 16 bytes.
func elementUniform(n int) []byte {
	params := make([]byte, uniformAlign)
	//nolint:gosec // G115: element count is non-negative
	binary.LittleEndian.PutUint32(params[0:4], uint32(n))
	return params
}

// alignUniform rounds size up to the uniform granularity.
func alignUniform(size uint64) uint64 {
	return (size + uniformAlign - 1) &^ (uniformAlign - 1)
}
