package cpu

import (
	"fmt"

	"github.com/ericwkw/mnist-trainer/internal/tensor"
)

// Conv2DInputBackward computes the gradient of a convolution with
// respect to its input (a transposed convolution of the output
// gradient with the kernel).
func (b *Backend) Conv2DInputBackward(input, kernel, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	inputShape := input.Shape()
	kernelShape := kernel.Shape()
	gradShape := grad.Shape()

	N, cIn, h, w := inputShape[0], inputShape[1], inputShape[2], inputShape[3]
	cOut, kH, kW := kernelShape[0], kernelShape[2], kernelShape[3]
	hOut, wOut := gradShape[2], gradShape[3]

	if grad.DType() != tensor.Float32 {
		panic(fmt.Sprintf("conv2d input backward: unsupported dtype %s", grad.DType()))
	}

	inputGrad, err := tensor.NewRaw(inputShape, tensor.Float32)
	if err != nil {
		panic(fmt.Sprintf("conv2d input backward: %v", err))
	}

	inputGradData := inputGrad.AsFloat32()
	gradData := grad.AsFloat32()
	kernelData := kernel.AsFloat32()

	for batch := 0; batch < N; batch++ {
		inputGradBatch := inputGradData[batch*cIn*h*w : (batch+1)*cIn*h*w]
		gradBatch := gradData[batch*cOut*hOut*wOut : (batch+1)*cOut*hOut*wOut]

		for outH := 0; outH < hOut; outH++ {
			for outW := 0; outW < wOut; outW++ {
				for oc := 0; oc < cOut; oc++ {
					gradVal := gradBatch[oc*hOut*wOut+outH*wOut+outW]
					if gradVal == 0 {
						continue
					}
					kernelOC := kernelData[oc*cIn*kH*kW : (oc+1)*cIn*kH*kW]

					// Scatter this output gradient back over the patch
					// of input positions it was computed from.
					for ic := 0; ic < cIn; ic++ {
						inputGradChan := inputGradBatch[ic*h*w : (ic+1)*h*w]
						kernelIC := kernelOC[ic*kH*kW : (ic+1)*kH*kW]

						for kh := 0; kh < kH; kh++ {
							hPos := outH*stride - padding + kh
							if hPos < 0 || hPos >= h {
								continue
							}
							for kw := 0; kw < kW; kw++ {
								wPos := outW*stride - padding + kw
								if wPos < 0 || wPos >= w {
									continue
								}
								inputGradChan[hPos*w+wPos] += gradVal * kernelIC[kh*kW+kw]
							}
						}
					}
				}
			}
		}
	}

	return inputGrad
}

// Conv2DKernelBackward computes the gradient of a convolution with
// respect to its kernel. Each kernel weight accumulates the product of
// the input values it touched and the corresponding output gradients,
// summed over the batch.
func (b *Backend) Conv2DKernelBackward(input, kernel, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	inputShape := input.Shape()
	kernelShape := kernel.Shape()
	gradShape := grad.Shape()

	N, cIn, h, w := inputShape[0], inputShape[1], inputShape[2], inputShape[3]
	cOut, kH, kW := kernelShape[0], kernelShape[2], kernelShape[3]
	hOut, wOut := gradShape[2], gradShape[3]

	if grad.DType() != tensor.Float32 {
		panic(fmt.Sprintf("conv2d kernel backward: unsupported dtype %s", grad.DType()))
	}

	kernelGrad, err := tensor.NewRaw(tensor.Shape{cOut, cIn, kH, kW}, tensor.Float32)
	if err != nil {
		panic(fmt.Sprintf("conv2d kernel backward: %v", err))
	}

	kernelGradData := kernelGrad.AsFloat32()
	gradData := grad.AsFloat32()
	inputData := input.AsFloat32()

	for oc := 0; oc < cOut; oc++ {
		for ic := 0; ic < cIn; ic++ {
			for kh := 0; kh < kH; kh++ {
				for kw := 0; kw < kW; kw++ {
					sum := float32(0)

					for batch := 0; batch < N; batch++ {
						inputChan := inputData[(batch*cIn+ic)*h*w : (batch*cIn+ic+1)*h*w]
						gradChan := gradData[(batch*cOut+oc)*hOut*wOut : (batch*cOut+oc+1)*hOut*wOut]

						for outH := 0; outH < hOut; outH++ {
							hPos := outH*stride - padding + kh
							if hPos < 0 || hPos >= h {
								continue
							}
							for outW := 0; outW < wOut; outW++ {
								wPos := outW*stride - padding + kw
								if wPos < 0 || wPos >= w {
									continue
								}
								sum += inputChan[hPos*w+wPos] * gradChan[outH*wOut+outW]
							}
						}
					}

					kernelGradData[(oc*cIn+ic)*kH*kW+kh*kW+kw] = sum
				}
			}
		}
	}

	return kernelGrad
}
