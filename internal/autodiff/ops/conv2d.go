package ops

import "github.com/ericwkw/mnist-trainer/internal/tensor"

// Conv2DOp records output = conv2d(input, kernel, stride, padding).
// The backward pass delegates to the backend's convolution gradients.
type Conv2DOp struct {
	input   *tensor.RawTensor
	kernel  *tensor.RawTensor
	output  *tensor.RawTensor
	stride  int
	padding int
}

// NewConv2DOp creates a Conv2DOp.
func NewConv2DOp(input, kernel, output *tensor.RawTensor, stride, padding int) *Conv2DOp {
	return &Conv2DOp{
		input:   input,
		kernel:  kernel,
		output:  output,
		stride:  stride,
		padding: padding,
	}
}

func (op *Conv2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	gradInput := backend.Conv2DInputBackward(op.input, op.kernel, outputGrad, op.stride, op.padding)
	gradKernel := backend.Conv2DKernelBackward(op.input, op.kernel, outputGrad, op.stride, op.padding)
	return []*tensor.RawTensor{gradInput, gradKernel}
}

func (op *Conv2DOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input, op.kernel}
}

func (op *Conv2DOp) Output() *tensor.RawTensor { return op.output }
