package nn

import (
	"fmt"

	"github.com/ericwkw/mnist-trainer/internal/tensor"
)

// Flatten collapses all dimensions after the batch dimension, turning
// [batch, d1, d2, ...] into [batch, d1*d2*...].
type Flatten[B tensor.Backend] struct{}

// NewFlatten creates a Flatten module.
func NewFlatten[B tensor.Backend]() *Flatten[B] {
	return &Flatten[B]{}
}

// Forward reshapes the input, keeping the batch dimension.
func (f *Flatten[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) < 2 {
		panic(fmt.Sprintf("flatten: expected at least 2D input, got %v", shape))
	}

	features := 1
	for _, d := range shape[1:] {
		features *= d
	}
	return input.Reshape(shape[0], features)
}

// Parameters returns nil.
func (f *Flatten[B]) Parameters() []*Parameter[B] {
	return nil
}
