package ops

import (
	"fmt"

	"github.com/ericwkw/mnist-trainer/internal/tensor"
)

// MaxPool2DOp records output = maxpool2d(input, kernelSize, stride).
//
// The flat index of each window's maximum is captured at record time so
// the backward pass can route gradients without re-scanning windows.
type MaxPool2DOp struct {
	input      *tensor.RawTensor
	output     *tensor.RawTensor
	kernelSize int
	stride     int
	maxIndices []int
}

// NewMaxPool2DOp creates a MaxPool2DOp and computes the max positions
// from the forward-pass input.
func NewMaxPool2DOp(input, output *tensor.RawTensor, kernelSize, stride int) *MaxPool2DOp {
	return &MaxPool2DOp{
		input:      input,
		output:     output,
		kernelSize: kernelSize,
		stride:     stride,
		maxIndices: computeMaxIndices(input, output, kernelSize, stride),
	}
}

func (op *MaxPool2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	gradInput := backend.MaxPool2DBackward(op.input, outputGrad, op.maxIndices, op.kernelSize, op.stride)
	return []*tensor.RawTensor{gradInput}
}

func (op *MaxPool2DOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }
func (op *MaxPool2DOp) Output() *tensor.RawTensor   { return op.output }

// computeMaxIndices finds, for every pooling window, the flat input
// index of the maximum value. Ties go to the first position scanned,
// matching the forward kernel.
func computeMaxIndices(input, output *tensor.RawTensor, kernelSize, stride int) []int {
	if input.DType() != tensor.Float32 {
		panic(fmt.Sprintf("maxpool2d: unsupported dtype %s", input.DType()))
	}

	inputShape := input.Shape()
	outputShape := output.Shape()

	N, c, h, w := inputShape[0], inputShape[1], inputShape[2], inputShape[3]
	hOut, wOut := outputShape[2], outputShape[3]

	maxIndices := make([]int, N*c*hOut*wOut)
	inputData := input.AsFloat32()

	outIdx := 0
	for batch := 0; batch < N; batch++ {
		for ch := 0; ch < c; ch++ {
			planeOffset := (batch*c + ch) * h * w
			for outH := 0; outH < hOut; outH++ {
				for outW := 0; outW < wOut; outW++ {
					hStart := outH * stride
					wStart := outW * stride

					maxPos := planeOffset + hStart*w + wStart
					maxVal := inputData[maxPos]
					for kh := 0; kh < kernelSize; kh++ {
						for kw := 0; kw < kernelSize; kw++ {
							pos := planeOffset + (hStart+kh)*w + (wStart + kw)
							if inputData[pos] > maxVal {
								maxVal = inputData[pos]
								maxPos = pos
							}
						}
					}

					maxIndices[outIdx] = maxPos
					outIdx++
				}
			}
		}
	}

	return maxIndices
}
