// Package cpu implements the tensor.Backend interface with portable
// pure-Go kernels. All operations allocate a fresh output tensor so
// callers can rely on pointer identity for gradient bookkeeping.
package cpu

import (
	"fmt"

	"github.com/ericwkw/mnist-trainer/internal/tensor"
)

// Verify interface compliance at compile time.
var _ tensor.Backend = (*Backend)(nil)

// Backend is the CPU compute backend.
type Backend struct{}

// New creates a CPU backend.
func New() *Backend {
	return &Backend{}
}

// Name returns the backend name.
func (b *Backend) Name() string {
	return "cpu"
}

// Reshape returns a tensor with the same data and a new shape.
// The element count must be preserved.
func (b *Backend) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	if t.NumElements() != newShape.NumElements() {
		panic(fmt.Sprintf("reshape: cannot reshape %v (%d elements) to %v (%d elements)",
			t.Shape(), t.NumElements(), newShape, newShape.NumElements()))
	}

	out, err := tensor.NewRaw(newShape, t.DType())
	if err != nil {
		panic(fmt.Sprintf("reshape: %v", err))
	}
	copy(out.Data(), t.Data())
	return out
}

// Transpose permutes the tensor's dimensions. With no axes given, all
// dimensions are reversed.
func (b *Backend) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	shape := t.Shape()
	ndim := len(shape)

	if len(axes) == 0 {
		axes = make([]int, ndim)
		for i := range axes {
			axes[i] = ndim - 1 - i
		}
	}
	if len(axes) != ndim {
		panic(fmt.Sprintf("transpose: expected %d axes, got %d", ndim, len(axes)))
	}

	seen := make([]bool, ndim)
	newShape := make(tensor.Shape, ndim)
	for i, ax := range axes {
		if ax < 0 || ax >= ndim {
			panic(fmt.Sprintf("transpose: axis %d out of range for %dD tensor", ax, ndim))
		}
		if seen[ax] {
			panic(fmt.Sprintf("transpose: duplicate axis %d", ax))
		}
		seen[ax] = true
		newShape[i] = shape[ax]
	}

	out, err := tensor.NewRaw(newShape, t.DType())
	if err != nil {
		panic(fmt.Sprintf("transpose: %v", err))
	}

	switch t.DType() {
	case tensor.Float32:
		transposeCopy(out.AsFloat32(), t.AsFloat32(), shape, axes)
	case tensor.Float64:
		transposeCopy(out.AsFloat64(), t.AsFloat64(), shape, axes)
	case tensor.Int32:
		transposeCopy(out.AsInt32(), t.AsInt32(), shape, axes)
	default:
		panic(fmt.Sprintf("transpose: unsupported dtype %s", t.DType()))
	}
	return out
}

// transposeCopy copies src into dst with permuted dimension order.
func transposeCopy[T any](dst, src []T, srcShape tensor.Shape, axes []int) {
	ndim := len(srcShape)
	srcStrides := srcShape.ComputeStrides()

	// Strides of the source walked in destination order.
	walkStrides := make([]int, ndim)
	dstShape := make(tensor.Shape, ndim)
	for i, ax := range axes {
		walkStrides[i] = srcStrides[ax]
		dstShape[i] = srcShape[ax]
	}

	idx := make([]int, ndim)
	for dstIdx := range dst {
		srcIdx := 0
		for d := 0; d < ndim; d++ {
			srcIdx += idx[d] * walkStrides[d]
		}
		dst[dstIdx] = src[srcIdx]

		for d := ndim - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < dstShape[d] {
				break
			}
			idx[d] = 0
		}
	}
}
