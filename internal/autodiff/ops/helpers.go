package ops

import (
	"fmt"

	"github.com/ericwkw/mnist-trainer/internal/tensor"
)

// reduceBroadcast sums a gradient down to the target shape, undoing any
// broadcasting that happened in the forward pass.
//
// Example: a[3] + b[2,3] -> c[2,3]. The gradient for a is grad_c summed
// over the leading dimension.
func reduceBroadcast(grad *tensor.RawTensor, targetShape tensor.Shape, backend tensor.Backend) *tensor.RawTensor {
	gradShape := grad.Shape()

	// Clone on the matching-shape path so accumulation in the tape
	// never aliases another input's gradient.
	if gradShape.Equal(targetShape) {
		return grad.Clone()
	}

	if len(targetShape) == 0 {
		return sumAll(grad)
	}

	// Sum away extra leading dimensions.
	result := grad
	for len(result.Shape()) > len(targetShape) {
		result = sumDim(result, 0, false)
	}

	// Sum dimensions where the target was broadcast from size 1.
	for d := 0; d < len(targetShape); d++ {
		if targetShape[d] == 1 && result.Shape()[d] > 1 {
			result = sumDim(result, d, true)
		}
	}

	if !result.Shape().Equal(targetShape) {
		result = backend.Reshape(result, targetShape)
	}
	return result
}

// sumAll reduces a tensor to a scalar-shaped [1] tensor.
func sumAll(t *tensor.RawTensor) *tensor.RawTensor {
	out, err := tensor.NewRaw(tensor.Shape{1}, t.DType())
	if err != nil {
		panic(fmt.Sprintf("sumAll: %v", err))
	}

	switch t.DType() {
	case tensor.Float32:
		var sum float32
		for _, v := range t.AsFloat32() {
			sum += v
		}
		out.AsFloat32()[0] = sum
	case tensor.Float64:
		var sum float64
		for _, v := range t.AsFloat64() {
			sum += v
		}
		out.AsFloat64()[0] = sum
	default:
		panic(fmt.Sprintf("sumAll: unsupported dtype %s", t.DType()))
	}
	return out
}

// sumDim sums a tensor along one dimension. With keepDim the summed
// dimension stays as size 1, otherwise it is removed.
func sumDim(t *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	shape := t.Shape()
	if dim < 0 || dim >= len(shape) {
		panic(fmt.Sprintf("sumDim: dimension %d out of range for shape %v", dim, shape))
	}

	var outShape tensor.Shape
	if keepDim {
		outShape = shape.Clone()
		outShape[dim] = 1
	} else {
		outShape = make(tensor.Shape, 0, len(shape)-1)
		for d, s := range shape {
			if d != dim {
				outShape = append(outShape, s)
			}
		}
	}

	out, err := tensor.NewRaw(outShape, t.DType())
	if err != nil {
		panic(fmt.Sprintf("sumDim: %v", err))
	}

	// outer x dimSize x inner iteration over the flat source data.
	outer := 1
	for d := 0; d < dim; d++ {
		outer *= shape[d]
	}
	dimSize := shape[dim]
	inner := 1
	for d := dim + 1; d < len(shape); d++ {
		inner *= shape[d]
	}

	switch t.DType() {
	case tensor.Float32:
		sumDimKernel(out.AsFloat32(), t.AsFloat32(), outer, dimSize, inner)
	case tensor.Float64:
		sumDimKernel(out.AsFloat64(), t.AsFloat64(), outer, dimSize, inner)
	default:
		panic(fmt.Sprintf("sumDim: unsupported dtype %s", t.DType()))
	}
	return out
}

func sumDimKernel[T float32 | float64](dst, src []T, outer, dimSize, inner int) {
	for o := 0; o < outer; o++ {
		for k := 0; k < dimSize; k++ {
			base := (o*dimSize + k) * inner
			dstBase := o * inner
			for i := 0; i < inner; i++ {
				dst[dstBase+i] += src[base+i]
			}
		}
	}
}
