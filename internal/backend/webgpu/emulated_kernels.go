package webgpu

import "math"

// emuKernel runs one dispatch of a kernel over an x*y*z grid of workgroups.
type emuKernel func(slots map[uint32]*emuBuffer, x, y, z uint32)

// emuKernelSlots lists the bindings each entry point statically uses. As
// with an auto-derived layout, a slot the entry point does not touch must
// not be bound.
var emuKernelSlots = [numKernels][]uint32{
	KernelLinear:     {0, 1, 2, 3, 4},
	KernelLinearReLU: {0, 1, 2, 3, 4},
	KernelReLU:       {0, 1, 2},
	KernelSoftmaxMax: {0, 1, 2},
	KernelSoftmaxSum: {0, 1, 2, 3},
	KernelSoftmaxMap: {0, 1, 3, 4},
}

var emuKernels = [numKernels]emuKernel{
	KernelLinear:     emuLinear(false),
	KernelLinearReLU: emuLinear(true),
	KernelReLU:       emuReLU,
	KernelSoftmaxMax: emuSoftmaxMax,
	KernelSoftmaxSum: emuSoftmaxSum,
	KernelSoftmaxMap: emuSoftmaxMap,
}

func emuLinear(relu bool) emuKernel {
	return func(slots map[uint32]*emuBuffer, x, y, _ uint32) {
		dims := slots[0]
		valuesCols := dims.word(1)
		weightsCols := dims.word(3)
		biasCols := dims.word(5)
		resultRows := dims.word(6)
		resultCols := dims.word(7)
		values, weights, bias, result := slots[1], slots[2], slots[3], slots[4]

		for row := uint32(0); row < x*linearBlock; row++ {
			for col := uint32(0); col < y*linearBlock; col++ {
				if row >= resultRows || col >= resultCols {
					continue
				}
				sum := bias.load(row*biasCols + col)
				for k := uint32(0); k < valuesCols; k++ {
					sum += values.load(row*valuesCols+k) * weights.load(k*weightsCols+col)
				}
				if relu && sum < 0 {
					sum = 0
				}
				result.store(row*resultCols+col, sum)
			}
		}
	}
}

func emuReLU(slots map[uint32]*emuBuffer, x, _, _ uint32) {
	size := slots[0].word(0)
	values, result := slots[1], slots[2]
	for idx := uint32(0); idx < x*workgroupSize && idx < size; idx++ {
		result.store(idx, max(values.load(idx), 0))
	}
}

func emuSoftmaxMax(slots map[uint32]*emuBuffer, _, _, _ uint32) {
	size := slots[0].word(0)
	values := slots[1]
	m := values.load(0)
	for i := uint32(1); i < size; i++ {
		m = max(m, values.load(i))
	}
	slots[2].store(0, m)
}

func emuSoftmaxSum(slots map[uint32]*emuBuffer, _, _, _ uint32) {
	size := slots[0].word(0)
	values := slots[1]
	m := slots[2].load(0)
	var sum float32
	for i := uint32(0); i < size; i++ {
		sum += float32(math.Exp(float64(values.load(i) - m)))
	}
	slots[3].store(0, m+float32(math.Log(float64(sum))))
}

func emuSoftmaxMap(slots map[uint32]*emuBuffer, x, _, _ uint32) {
	size := slots[0].word(0)
	values, result := slots[1], slots[4]
	offset := slots[3].load(0)
	for idx := uint32(0); idx < x*workgroupSize && idx < size; idx++ {
		result.store(idx, float32(math.Exp(float64(values.load(idx)-offset))))
	}
}
