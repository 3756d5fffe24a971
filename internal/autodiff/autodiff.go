// Package autodiff adds reverse-mode automatic differentiation on top
// of any tensor.Backend using the decorator pattern.
//
// Backend[B] forwards every operation to the wrapped backend and, while
// the tape is recording, appends an ops.Operation capturing the inputs
// and output. Tape.Backward then walks the recorded graph in reverse.
//
// Usage:
//
//	ad := autodiff.New(cpu.New())
//	ad.Tape().StartRecording()
//	loss := ad.CrossEntropy(logits, targets)
//	grads := ad.Tape().Backward(ones, ad.Inner())
package autodiff

import (
	"math/rand"

	"github.com/ericwkw/mnist-trainer/internal/autodiff/ops"
	"github.com/ericwkw/mnist-trainer/internal/tensor"
)

// Backend decorates an inner backend with gradient tracking.
type Backend[B tensor.Backend] struct {
	inner B
	tape  *Tape
}

// Compile-time check that the decorator still satisfies the interface
// it wraps.
var _ tensor.Backend = (*Backend[tensor.Backend])(nil)

// New creates an autodiff backend wrapping the given backend.
func New[B tensor.Backend](inner B) *Backend[B] {
	return &Backend[B]{inner: inner, tape: NewTape()}
}

// Tape returns the gradient tape.
func (b *Backend[B]) Tape() *Tape {
	return b.tape
}

// Inner returns the wrapped backend.
func (b *Backend[B]) Inner() B {
	return b.inner
}

// Name returns the backend name.
func (b *Backend[B]) Name() string {
	return "autodiff(" + b.inner.Name() + ")"
}

// Add performs element-wise addition and records it.
func (b *Backend[B]) Add(x, y *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Add(x, y)
	b.tape.Record(ops.NewAddOp(x, y, result))
	return result
}

// Sub performs element-wise subtraction and records it.
func (b *Backend[B]) Sub(x, y *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Sub(x, y)
	b.tape.Record(ops.NewSubOp(x, y, result))
	return result
}

// Mul performs element-wise multiplication and records it.
func (b *Backend[B]) Mul(x, y *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Mul(x, y)
	b.tape.Record(ops.NewMulOp(x, y, result))
	return result
}

// Div performs element-wise division and records it.
func (b *Backend[B]) Div(x, y *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Div(x, y)
	b.tape.Record(ops.NewDivOp(x, y, result))
	return result
}

// MatMul performs matrix multiplication and records it.
func (b *Backend[B]) MatMul(x, y *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.MatMul(x, y)
	b.tape.Record(ops.NewMatMulOp(x, y, result))
	return result
}

// Reshape reshapes a tensor and records it, so gradients reach
// parameters that were viewed before use.
func (b *Backend[B]) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	result := b.inner.Reshape(t, newShape)
	b.tape.Record(ops.NewReshapeOp(t, result))
	return result
}

// Transpose permutes dimensions and records the resolved permutation.
func (b *Backend[B]) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	// Resolve default axes here so the recorded op can invert them.
	ndim := len(t.Shape())
	if len(axes) == 0 {
		axes = make([]int, ndim)
		for i := range axes {
			axes[i] = ndim - 1 - i
		}
	}

	result := b.inner.Transpose(t, axes...)
	b.tape.Record(ops.NewTransposeOp(t, result, axes))
	return result
}

// Conv2D performs 2D convolution and records it.
func (b *Backend[B]) Conv2D(input, kernel *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	result := b.inner.Conv2D(input, kernel, stride, padding)
	b.tape.Record(ops.NewConv2DOp(input, kernel, result, stride, padding))
	return result
}

// Conv2DInputBackward delegates to the inner backend. Gradient ops are
// not themselves differentiated.
func (b *Backend[B]) Conv2DInputBackward(input, kernel, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	return b.inner.Conv2DInputBackward(input, kernel, grad, stride, padding)
}

// Conv2DKernelBackward delegates to the inner backend.
func (b *Backend[B]) Conv2DKernelBackward(input, kernel, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	return b.inner.Conv2DKernelBackward(input, kernel, grad, stride, padding)
}

// MaxPool2D performs max pooling and records it. The recorded op
// captures the max positions for gradient routing.
func (b *Backend[B]) MaxPool2D(input *tensor.RawTensor, kernelSize, stride int) *tensor.RawTensor {
	result := b.inner.MaxPool2D(input, kernelSize, stride)
	b.tape.Record(ops.NewMaxPool2DOp(input, result, kernelSize, stride))
	return result
}

// MaxPool2DBackward delegates to the inner backend.
func (b *Backend[B]) MaxPool2DBackward(input, grad *tensor.RawTensor, maxIndices []int, kernelSize, stride int) *tensor.RawTensor {
	return b.inner.MaxPool2DBackward(input, grad, maxIndices, kernelSize, stride)
}

// ReLU applies the rectifier and records it.
func (b *Backend[B]) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.ReLU(x)
	b.tape.Record(ops.NewReLUOp(x, result))
	return result
}

// Softmax applies softmax along the last dimension and records it.
func (b *Backend[B]) Softmax(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Softmax(x)
	b.tape.Record(ops.NewSoftmaxOp(x, result))
	return result
}

// CrossEntropy computes the fused softmax cross-entropy loss over a
// batch and records it. logits must be [batch, classes] float32,
// targets [batch] int32 class indices. Returns a [1] scalar tensor.
func (b *Backend[B]) CrossEntropy(logits, targets *tensor.RawTensor) *tensor.RawTensor {
	result := ops.CrossEntropyForward(logits, targets)
	b.tape.Record(ops.NewCrossEntropyOp(logits, targets, result))
	return result
}

// Dropout applies inverted dropout with the given zeroing rate and
// records the sampled mask for the backward pass. Callers are expected
// to skip the call entirely in evaluation mode.
func (b *Backend[B]) Dropout(x *tensor.RawTensor, rate float32, rng *rand.Rand) *tensor.RawTensor {
	op, result := ops.NewDropoutOp(x, rate, rng)
	b.tape.Record(op)
	return result
}
