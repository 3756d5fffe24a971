package nn

import "github.com/ericwkw/mnist-trainer/internal/tensor"

// Parameter is a named trainable tensor.
//
// Gradients are not stored here: the tape returns them keyed by the
// parameter's raw tensor, and optimizers look them up per step.
type Parameter[B tensor.Backend] struct {
	name   string
	tensor *tensor.Tensor[float32, B]
}

// NewParameter creates a parameter wrapping an initialized tensor.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return &Parameter[B]{name: name, tensor: t}
}

// Name returns the parameter name, e.g. "dense1.weight".
func (p *Parameter[B]) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter[B]) Tensor() *tensor.Tensor[float32, B] {
	return p.tensor
}
