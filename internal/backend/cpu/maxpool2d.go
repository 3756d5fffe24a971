package cpu

import (
	"fmt"
	"math"

	"github.com/ericwkw/mnist-trainer/internal/tensor"
)

// MaxPool2D performs 2D max pooling over [N, C, H, W] input.
//
// Output dimensions:
//
//	out_h = (H - kernelSize) / stride + 1
//	out_w = (W - kernelSize) / stride + 1
func (b *Backend) MaxPool2D(input *tensor.RawTensor, kernelSize, stride int) *tensor.RawTensor {
	inputShape := input.Shape()
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("maxpool2d: expected 4D input [N,C,H,W], got %dD", len(inputShape)))
	}
	if input.DType() != tensor.Float32 {
		panic(fmt.Sprintf("maxpool2d: unsupported dtype %s", input.DType()))
	}
	if kernelSize <= 0 || stride <= 0 {
		panic(fmt.Sprintf("maxpool2d: invalid kernel size %d or stride %d", kernelSize, stride))
	}

	N, c, h, w := inputShape[0], inputShape[1], inputShape[2], inputShape[3]
	if kernelSize > h || kernelSize > w {
		panic(fmt.Sprintf("maxpool2d: kernel size %d too large for input %dx%d", kernelSize, h, w))
	}

	hOut := (h-kernelSize)/stride + 1
	wOut := (w-kernelSize)/stride + 1

	output, err := tensor.NewRaw(tensor.Shape{N, c, hOut, wOut}, tensor.Float32)
	if err != nil {
		panic(fmt.Sprintf("maxpool2d: %v", err))
	}

	inputData := input.AsFloat32()
	outputData := output.AsFloat32()

	for batch := 0; batch < N; batch++ {
		for ch := 0; ch < c; ch++ {
			plane := inputData[(batch*c+ch)*h*w : (batch*c+ch+1)*h*w]
			outPlane := outputData[(batch*c+ch)*hOut*wOut : (batch*c+ch+1)*hOut*wOut]

			for outH := 0; outH < hOut; outH++ {
				hStart := outH * stride
				for outW := 0; outW < wOut; outW++ {
					wStart := outW * stride

					maxVal := float32(math.Inf(-1))
					for kh := 0; kh < kernelSize; kh++ {
						row := plane[(hStart+kh)*w : (hStart+kh)*w+w]
						for kw := 0; kw < kernelSize; kw++ {
							if v := row[wStart+kw]; v > maxVal {
								maxVal = v
							}
						}
					}
					outPlane[outH*wOut+outW] = maxVal
				}
			}
		}
	}

	return output
}

// MaxPool2DBackward routes output gradients back to the input
// positions that produced the maxima. maxIndices holds, per output
// element, the flat index into the input tensor recorded during the
// forward pass.
func (b *Backend) MaxPool2DBackward(input, grad *tensor.RawTensor, maxIndices []int, kernelSize, stride int) *tensor.RawTensor {
	if grad.DType() != tensor.Float32 {
		panic(fmt.Sprintf("maxpool2d backward: unsupported dtype %s", grad.DType()))
	}
	if len(maxIndices) != grad.NumElements() {
		panic(fmt.Sprintf("maxpool2d backward: maxIndices length %d != grad elements %d",
			len(maxIndices), grad.NumElements()))
	}

	inputGrad, err := tensor.NewRaw(input.Shape(), tensor.Float32)
	if err != nil {
		panic(fmt.Sprintf("maxpool2d backward: %v", err))
	}

	inputGradData := inputGrad.AsFloat32()
	gradData := grad.AsFloat32()

	for i, maxPos := range maxIndices {
		inputGradData[maxPos] += gradData[i]
	}

	return inputGrad
}
