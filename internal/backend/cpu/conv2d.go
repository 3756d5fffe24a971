package cpu

import (
	"fmt"

	"github.com/ericwkw/mnist-trainer/internal/tensor"
)

// Conv2D performs 2D convolution via im2col.
//
// Input shape:  [batch, in_channels, height, width]
// Kernel shape: [out_channels, in_channels, kernel_h, kernel_w]
// Output shape: [batch, out_channels, out_h, out_w]
//
// The input patches are unrolled into a column matrix so the
// convolution reduces to a single matrix multiplication
// (Chellapilla et al., 2006).
func (b *Backend) Conv2D(input, kernel *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	inputShape := input.Shape()
	kernelShape := kernel.Shape()

	if len(inputShape) != 4 {
		panic(fmt.Sprintf("conv2d: input must be 4D [N,C,H,W], got %dD", len(inputShape)))
	}
	if len(kernelShape) != 4 {
		panic(fmt.Sprintf("conv2d: kernel must be 4D [C_out,C_in,K_h,K_w], got %dD", len(kernelShape)))
	}
	if input.DType() != tensor.Float32 || kernel.DType() != tensor.Float32 {
		panic(fmt.Sprintf("conv2d: unsupported dtype %s", input.DType()))
	}

	N, cIn, h, w := inputShape[0], inputShape[1], inputShape[2], inputShape[3]
	cOut, kH, kW := kernelShape[0], kernelShape[2], kernelShape[3]

	if cIn != kernelShape[1] {
		panic(fmt.Sprintf("conv2d: input channels %d != kernel channels %d", cIn, kernelShape[1]))
	}

	hOut := (h+2*padding-kH)/stride + 1
	wOut := (w+2*padding-kW)/stride + 1
	if hOut <= 0 || wOut <= 0 {
		panic(fmt.Sprintf("conv2d: invalid output dimensions %dx%d (stride=%d, padding=%d)", hOut, wOut, stride, padding))
	}

	output, err := tensor.NewRaw(tensor.Shape{N, cOut, hOut, wOut}, tensor.Float32)
	if err != nil {
		panic(fmt.Sprintf("conv2d: %v", err))
	}

	inputData := input.AsFloat32()
	kernelData := kernel.AsFloat32()
	outputData := output.AsFloat32()

	// Unroll input patches: one row per output position,
	// one column per kernel weight.
	colWidth := cIn * kH * kW
	colHeight := N * hOut * wOut
	colBuf := make([]float32, colHeight*colWidth)
	im2col(colBuf, inputData, N, cIn, h, w, kH, kW, hOut, wOut, stride, padding)

	// The kernel is already laid out row-major as [C_out, C_in*K_h*K_w],
	// so each output value is a dot product of a kernel row with a
	// colBuf row. Writing straight into [N, C_out, H_out, W_out] order
	// avoids the extra rearrange pass.
	planeSize := hOut * wOut
	for n := 0; n < N; n++ {
		for c := 0; c < cOut; c++ {
			kernelRow := kernelData[c*colWidth : (c+1)*colWidth]
			outPlane := outputData[(n*cOut+c)*planeSize : (n*cOut+c+1)*planeSize]
			for pos := 0; pos < planeSize; pos++ {
				colRow := colBuf[(n*planeSize+pos)*colWidth : (n*planeSize+pos+1)*colWidth]
				sum := float32(0)
				for k := range kernelRow {
					sum += kernelRow[k] * colRow[k]
				}
				outPlane[pos] = sum
			}
		}
	}

	return output
}

// im2col unrolls [N, C, H, W] input patches into a
// [N*H_out*W_out, C*K_h*K_w] column matrix. Out-of-bounds positions
// (padding) are left as zero.
func im2col(colBuf, inputData []float32, n, c, h, w, kH, kW, hOut, wOut, stride, padding int) {
	colWidth := c * kH * kW
	row := 0

	for batch := 0; batch < n; batch++ {
		batchOffset := batch * c * h * w
		for outH := 0; outH < hOut; outH++ {
			hStart := outH*stride - padding
			for outW := 0; outW < wOut; outW++ {
				wStart := outW*stride - padding
				buf := colBuf[row*colWidth : (row+1)*colWidth]

				idx := 0
				for ch := 0; ch < c; ch++ {
					chanOffset := batchOffset + ch*h*w
					for kh := 0; kh < kH; kh++ {
						hPos := hStart + kh
						if hPos < 0 || hPos >= h {
							idx += kW
							continue
						}
						rowOffset := chanOffset + hPos*w
						for kw := 0; kw < kW; kw++ {
							wPos := wStart + kw
							if wPos >= 0 && wPos < w {
								buf[idx] = inputData[rowOffset+wPos]
							}
							idx++
						}
					}
				}
				row++
			}
		}
	}
}
