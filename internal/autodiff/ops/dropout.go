package ops

import (
	"fmt"
	"math/rand"

	"github.com/ericwkw/mnist-trainer/internal/tensor"
)

// DropoutOp records inverted dropout: each element is zeroed with
// probability rate, survivors are scaled by 1/(1-rate) so the expected
// activation is unchanged. The sampled mask is kept for the backward
// pass, where the same elements are zeroed and scaled.
type DropoutOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
	mask   []float32
}

// NewDropoutOp samples a Bernoulli keep-mask, applies it to the input
// and returns the recorded operation together with the output tensor.
func NewDropoutOp(input *tensor.RawTensor, rate float32, rng *rand.Rand) (*DropoutOp, *tensor.RawTensor) {
	if input.DType() != tensor.Float32 {
		panic(fmt.Sprintf("dropout: unsupported dtype %s", input.DType()))
	}
	if rate < 0 || rate >= 1 {
		panic(fmt.Sprintf("dropout: rate must be in [0, 1), got %v", rate))
	}

	output, err := tensor.NewRaw(input.Shape(), tensor.Float32)
	if err != nil {
		panic(fmt.Sprintf("dropout: %v", err))
	}

	scale := 1 / (1 - rate)
	inputData := input.AsFloat32()
	outputData := output.AsFloat32()
	mask := make([]float32, len(inputData))

	for i := range inputData {
		if rng.Float32() >= rate {
			mask[i] = scale
			outputData[i] = inputData[i] * scale
		}
	}

	op := &DropoutOp{input: input, output: output, mask: mask}
	return op, output
}

func (op *DropoutOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	gradInput, err := tensor.NewRaw(op.input.Shape(), tensor.Float32)
	if err != nil {
		panic(fmt.Sprintf("dropout backward: %v", err))
	}

	gradData := outputGrad.AsFloat32()
	outData := gradInput.AsFloat32()
	for i, m := range op.mask {
		outData[i] = gradData[i] * m
	}

	return []*tensor.RawTensor{gradInput}
}

func (op *DropoutOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }
func (op *DropoutOp) Output() *tensor.RawTensor   { return op.output }
