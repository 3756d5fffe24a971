package nn

import (
	"fmt"
	"math/rand"

	"github.com/ericwkw/mnist-trainer/internal/tensor"
)

// Dense is a fully connected layer: y = x @ Wᵀ + b.
//
// Weight shape is [outFeatures, inFeatures], bias is [outFeatures].
// Weights use Xavier initialization, biases start at zero.
//
// Example:
//
//	layer := nn.NewDense("dense1", 784, 400, rng, backend)
//	out := layer.Forward(input) // [batch, 400]
type Dense[B tensor.Backend] struct {
	inFeatures  int
	outFeatures int
	weight      *Parameter[B]
	bias        *Parameter[B]
}

// NewDense creates a fully connected layer. The name prefixes the
// parameter names, e.g. "dense1.weight".
func NewDense[B tensor.Backend](name string, inFeatures, outFeatures int, rng *rand.Rand, backend B) *Dense[B] {
	if inFeatures <= 0 || outFeatures <= 0 {
		panic(fmt.Sprintf("dense: invalid features in=%d out=%d", inFeatures, outFeatures))
	}

	weight := Xavier(inFeatures, outFeatures, tensor.Shape{outFeatures, inFeatures}, rng, backend)
	bias := Zeros(tensor.Shape{outFeatures}, backend)

	return &Dense[B]{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      NewParameter(name+".weight", weight),
		bias:        NewParameter(name+".bias", bias),
	}
}

// Forward computes y = x @ Wᵀ + b for input [batch, inFeatures].
func (d *Dense[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("dense: expected 2D input [batch, features], got %v", shape))
	}
	if shape[1] != d.inFeatures {
		panic(fmt.Sprintf("dense: expected %d input features, got %d", d.inFeatures, shape[1]))
	}

	out := input.MatMul(d.weight.Tensor().T())

	// Reshape bias to [1, out] so broadcasting is explicit and the
	// view is recorded for the backward pass.
	return out.Add(d.bias.Tensor().Reshape(1, d.outFeatures))
}

// Parameters returns [weight, bias].
func (d *Dense[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{d.weight, d.bias}
}

// InFeatures returns the input feature count.
func (d *Dense[B]) InFeatures() int { return d.inFeatures }

// OutFeatures returns the output feature count.
func (d *Dense[B]) OutFeatures() int { return d.outFeatures }
