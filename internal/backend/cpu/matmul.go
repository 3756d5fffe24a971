package cpu

import (
	"fmt"

	"github.com/ericwkw/mnist-trainer/internal/tensor"
)

// MatMul performs 2D matrix multiplication: (M, K) @ (K, N) -> (M, N).
//
// The inner loops are ordered i-k-j so the innermost loop walks both
// the output row and the right operand row sequentially, which keeps
// memory access cache-friendly without blocking.
func (b *Backend) MatMul(x, y *tensor.RawTensor) *tensor.RawTensor {
	xShape := x.Shape()
	yShape := y.Shape()

	if len(xShape) != 2 || len(yShape) != 2 {
		panic(fmt.Sprintf("matmul: expected 2D tensors, got %v and %v", xShape, yShape))
	}
	if xShape[1] != yShape[0] {
		panic(fmt.Sprintf("matmul: inner dimensions do not match: %v @ %v", xShape, yShape))
	}
	if x.DType() != y.DType() {
		panic(fmt.Sprintf("matmul: dtype mismatch %s vs %s", x.DType(), y.DType()))
	}

	M := xShape[0]
	K := xShape[1]
	N := yShape[1]

	out, err := tensor.NewRaw(tensor.Shape{M, N}, x.DType())
	if err != nil {
		panic(fmt.Sprintf("matmul: %v", err))
	}

	switch x.DType() {
	case tensor.Float32:
		matmulKernel(out.AsFloat32(), x.AsFloat32(), y.AsFloat32(), M, K, N)
	case tensor.Float64:
		matmulKernel(out.AsFloat64(), x.AsFloat64(), y.AsFloat64(), M, K, N)
	default:
		panic(fmt.Sprintf("matmul: unsupported dtype %s", x.DType()))
	}
	return out
}

func matmulKernel[T float32 | float64](dst, x, y []T, m, k, n int) {
	for i := 0; i < m; i++ {
		dstRow := dst[i*n : (i+1)*n]
		for kk := 0; kk < k; kk++ {
			xVal := x[i*k+kk]
			if xVal == 0 {
				continue
			}
			yRow := y[kk*n : (kk+1)*n]
			for j := 0; j < n; j++ {
				dstRow[j] += xVal * yRow[j]
			}
		}
	}
}
