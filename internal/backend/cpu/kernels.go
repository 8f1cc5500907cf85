package cpu

import (
	"math"

	"github.com/born-ml/tgraph/internal/graph"
	"github.com/born-ml/tgraph/internal/parallel"
	"github.com/born-ml/tgraph/internal/tensor"
)

// LinearLayer computes out = in*w + b.
// in is (M, K), w is (K, N), b and out are (M, N).
func (cpu *CPUBackend) LinearLayer(in, w, b, out *tensor.Tensor) error {
	if err := checkLinear("LinearLayer", in, w, b, out); err != nil {
		return err
	}
	cpu.linear(in, w, b, out, false)
	return nil
}

// LinearReLU computes out = max(in*w + b, 0) in one pass.
func (cpu *CPUBackend) LinearReLU(in, w, b, out *tensor.Tensor) error {
	if err := checkLinear("LinearReLU", in, w, b, out); err != nil {
		return err
	}
	cpu.linear(in, w, b, out, true)
	return nil
}

// LinearReLUSoftmax computes softmax(max(in*w + b, 0)) without an
// intermediate buffer.
func (cpu *CPUBackend) LinearReLUSoftmax(in, w, b, out *tensor.Tensor) error {
	if err := checkLinear("LinearReLUSoftmax", in, w, b, out); err != nil {
		return err
	}
	cpu.linear(in, w, b, out, true)
	softmaxFloat32(out.Data()[:out.Len()], out.Data()[:out.Len()])
	return nil
}

// ReLU computes out = max(in, 0).
func (cpu *CPUBackend) ReLU(in, out *tensor.Tensor) error {
	if err := checkElementwise("ReLU", in, out); err != nil {
		return err
	}
	dst := out.Data()
	for i, v := range in.Data()[:in.Len()] {
		if v > 0 {
			dst[i] = v
		} else {
			dst[i] = 0
		}
	}
	return nil
}

// Softmax normalizes over every element of in, not per row:
// out_i = exp(x_i - (max + ln(sum_j exp(x_j - max)))).
func (cpu *CPUBackend) Softmax(in, out *tensor.Tensor) error {
	if err := checkElementwise("Softmax", in, out); err != nil {
		return err
	}
	softmaxFloat32(out.Data()[:out.Len()], in.Data()[:in.Len()])
	return nil
}

// linear writes each output row independently, so rows can run in parallel.
func (cpu *CPUBackend) linear(in, w, b, out *tensor.Tensor, relu bool) {
	m, k, n := in.Rows(), in.Cols(), w.Cols()
	src, wt, bias, dst := in.Data(), w.Data(), b.Data(), out.Data()

	parallel.ForRows(m, k*n, func(i int) {
		row := src[i*k : (i+1)*k]
		for j := 0; j < n; j++ {
			sum := bias[i*n+j]
			for kIdx, a := range row {
				sum += a * wt[kIdx*n+j]
			}
			if relu && sum < 0 {
				sum = 0
			}
			dst[i*n+j] = sum
		}
	}, cpu.par)
}

// softmaxFloat32 may run in place (dst == src).
func softmaxFloat32(dst, src []float32) {
	if len(src) == 0 {
		return
	}

	maxVal := src[0]
	for _, v := range src[1:] {
		if v > maxVal {
			maxVal = v
		}
	}

	var sum float32
	for _, v := range src {
		sum += float32(math.Exp(float64(v - maxVal)))
	}

	offset := maxVal + float32(math.Log(float64(sum)))
	for i, v := range src {
		dst[i] = float32(math.Exp(float64(v - offset)))
	}
}

func checkLinear(op string, in, w, b, out *tensor.Tensor) error {
	if in.Cols() == w.Rows() &&
		b.Rows() == in.Rows() &&
		b.Cols() == w.Cols() &&
		out.Shape().Equal(b.Shape()) {
		return nil
	}
	return &graph.DimensionMismatchError{
		Op:      op,
		Input:   in.Shape(),
		Weights: w.Shape(),
		Bias:    b.Shape(),
		Output:  out.Shape(),
	}
}

func checkElementwise(op string, in, out *tensor.Tensor) error {
	if in.Shape().Equal(out.Shape()) {
		return nil
	}
	return &graph.DimensionMismatchError{Op: op, Input: in.Shape(), Output: out.Shape()}
}
