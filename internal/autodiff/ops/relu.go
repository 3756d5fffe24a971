package ops

import (
	"fmt"

	"github.com/ericwkw/mnist-trainer/internal/tensor"
)

// ReLUOp records output = max(0, input).
//
// The gradient passes through where the input was positive and is zero
// elsewhere.
type ReLUOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewReLUOp creates a ReLUOp.
func NewReLUOp(input, output *tensor.RawTensor) *ReLUOp {
	return &ReLUOp{input: input, output: output}
}

func (op *ReLUOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	if op.input.DType() != tensor.Float32 {
		panic(fmt.Sprintf("relu backward: unsupported dtype %s", op.input.DType()))
	}

	gradInput, err := tensor.NewRaw(op.input.Shape(), tensor.Float32)
	if err != nil {
		panic(fmt.Sprintf("relu backward: %v", err))
	}

	inputData := op.input.AsFloat32()
	gradData := outputGrad.AsFloat32()
	outData := gradInput.AsFloat32()
	for i, v := range inputData {
		if v > 0 {
			outData[i] = gradData[i]
		}
	}

	return []*tensor.RawTensor{gradInput}
}

func (op *ReLUOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }
func (op *ReLUOp) Output() *tensor.RawTensor   { return op.output }
