package ops

import (
	"fmt"

	"github.com/ericwkw/mnist-trainer/internal/tensor"
)

// SoftmaxOp records output = softmax(input) along the last dimension.
//
// The Jacobian-vector product simplifies to
//
//	grad_x_i = s_i * (grad_s_i - Σ_j grad_s_j * s_j)
//
// computed per row using the forward-pass output.
type SoftmaxOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewSoftmaxOp creates a SoftmaxOp.
func NewSoftmaxOp(input, output *tensor.RawTensor) *SoftmaxOp {
	return &SoftmaxOp{input: input, output: output}
}

func (op *SoftmaxOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	if op.output.DType() != tensor.Float32 {
		panic(fmt.Sprintf("softmax backward: unsupported dtype %s", op.output.DType()))
	}

	gradInput, err := tensor.NewRaw(op.input.Shape(), tensor.Float32)
	if err != nil {
		panic(fmt.Sprintf("softmax backward: %v", err))
	}

	shape := op.output.Shape()
	rowLen := shape[len(shape)-1]
	numRows := op.output.NumElements() / rowLen

	probs := op.output.AsFloat32()
	grad := outputGrad.AsFloat32()
	out := gradInput.AsFloat32()

	for r := 0; r < numRows; r++ {
		pRow := probs[r*rowLen : (r+1)*rowLen]
		gRow := grad[r*rowLen : (r+1)*rowLen]
		oRow := out[r*rowLen : (r+1)*rowLen]

		var dot float32
		for i := range pRow {
			dot += gRow[i] * pRow[i]
		}
		for i := range pRow {
			oRow[i] = pRow[i] * (gRow[i] - dot)
		}
	}

	return []*tensor.RawTensor{gradInput}
}

func (op *SoftmaxOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }
func (op *SoftmaxOp) Output() *tensor.RawTensor   { return op.output }
