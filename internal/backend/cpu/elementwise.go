package cpu

import (
	"fmt"

	"github.com/ericwkw/mnist-trainer/internal/tensor"
)

// Add performs element-wise addition with broadcasting.
func (b *Backend) Add(x, y *tensor.RawTensor) *tensor.RawTensor {
	return b.elementWise("add", x, y,
		func(a, c float32) float32 { return a + c },
		func(a, c float64) float64 { return a + c })
}

// Sub performs element-wise subtraction with broadcasting.
func (b *Backend) Sub(x, y *tensor.RawTensor) *tensor.RawTensor {
	return b.elementWise("sub", x, y,
		func(a, c float32) float32 { return a - c },
		func(a, c float64) float64 { return a - c })
}

// Mul performs element-wise multiplication with broadcasting.
func (b *Backend) Mul(x, y *tensor.RawTensor) *tensor.RawTensor {
	return b.elementWise("mul", x, y,
		func(a, c float32) float32 { return a * c },
		func(a, c float64) float64 { return a * c })
}

// Div performs element-wise division with broadcasting.
// Division by zero follows IEEE 754 semantics (Inf/NaN).
func (b *Backend) Div(x, y *tensor.RawTensor) *tensor.RawTensor {
	return b.elementWise("div", x, y,
		func(a, c float32) float32 { return a / c },
		func(a, c float64) float64 { return a / c })
}

func (b *Backend) elementWise(
	name string,
	x, y *tensor.RawTensor,
	op32 func(float32, float32) float32,
	op64 func(float64, float64) float64,
) *tensor.RawTensor {
	if x.DType() != y.DType() {
		panic(fmt.Sprintf("%s: dtype mismatch %s vs %s", name, x.DType(), y.DType()))
	}

	outShape, needsBroadcast, err := tensor.BroadcastShapes(x.Shape(), y.Shape())
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}

	out, err := tensor.NewRaw(outShape, x.DType())
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}

	switch x.DType() {
	case tensor.Float32:
		if needsBroadcast {
			broadcastLoop(out.AsFloat32(), x.AsFloat32(), y.AsFloat32(), outShape, x.Shape(), y.Shape(), op32)
		} else {
			fastLoop(out.AsFloat32(), x.AsFloat32(), y.AsFloat32(), op32)
		}
	case tensor.Float64:
		if needsBroadcast {
			broadcastLoop(out.AsFloat64(), x.AsFloat64(), y.AsFloat64(), outShape, x.Shape(), y.Shape(), op64)
		} else {
			fastLoop(out.AsFloat64(), x.AsFloat64(), y.AsFloat64(), op64)
		}
	default:
		panic(fmt.Sprintf("%s: unsupported dtype %s", name, x.DType()))
	}
	return out
}

// fastLoop handles the common same-shape case without index arithmetic.
func fastLoop[T any](dst, x, y []T, op func(T, T) T) {
	for i := range dst {
		dst[i] = op(x[i], y[i])
	}
}

// broadcastLoop maps each output element back to its source elements
// under NumPy broadcasting rules.
func broadcastLoop[T any](dst, x, y []T, outShape, xShape, yShape tensor.Shape, op func(T, T) T) {
	for i := range dst {
		dst[i] = op(x[broadcastIndex(i, outShape, xShape)], y[broadcastIndex(i, outShape, yShape)])
	}
}

// broadcastIndex converts a flat index in the output shape to the
// corresponding flat index in a (possibly smaller) source shape.
func broadcastIndex(flatIdx int, outShape, srcShape tensor.Shape) int {
	srcStrides := srcShape.ComputeStrides()
	offset := len(outShape) - len(srcShape)

	srcIdx := 0
	rem := flatIdx
	outStrides := outShape.ComputeStrides()
	for d := 0; d < len(outShape); d++ {
		coord := rem / outStrides[d]
		rem %= outStrides[d]

		sd := d - offset
		if sd < 0 {
			continue
		}
		if srcShape[sd] == 1 {
			continue
		}
		srcIdx += coord * srcStrides[sd]
	}
	return srcIdx
}
