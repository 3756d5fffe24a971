package cpu

import (
	"fmt"
	"math"

	"github.com/ericwkw/mnist-trainer/internal/tensor"
)

// ReLU computes max(0, x) element-wise.
func (b *Backend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	if x.DType() != tensor.Float32 {
		panic(fmt.Sprintf("relu: unsupported dtype %s", x.DType()))
	}

	out, err := tensor.NewRaw(x.Shape(), tensor.Float32)
	if err != nil {
		panic(fmt.Sprintf("relu: %v", err))
	}

	xData := x.AsFloat32()
	outData := out.AsFloat32()
	for i, v := range xData {
		if v > 0 {
			outData[i] = v
		}
	}
	return out
}

// Softmax computes the softmax along the last dimension.
// The maximum of each row is subtracted before exponentiation so large
// logits do not overflow.
func (b *Backend) Softmax(x *tensor.RawTensor) *tensor.RawTensor {
	if x.DType() != tensor.Float32 {
		panic(fmt.Sprintf("softmax: unsupported dtype %s", x.DType()))
	}

	shape := x.Shape()
	if len(shape) == 0 {
		panic("softmax: scalar input")
	}

	out, err := tensor.NewRaw(shape, tensor.Float32)
	if err != nil {
		panic(fmt.Sprintf("softmax: %v", err))
	}

	rowLen := shape[len(shape)-1]
	numRows := x.NumElements() / rowLen

	xData := x.AsFloat32()
	outData := out.AsFloat32()

	for r := 0; r < numRows; r++ {
		row := xData[r*rowLen : (r+1)*rowLen]
		outRow := outData[r*rowLen : (r+1)*rowLen]

		maxVal := row[0]
		for _, v := range row[1:] {
			if v > maxVal {
				maxVal = v
			}
		}

		sum := float32(0)
		for i, v := range row {
			e := float32(math.Exp(float64(v - maxVal)))
			outRow[i] = e
			sum += e
		}
		for i := range outRow {
			outRow[i] /= sum
		}
	}

	return out
}
