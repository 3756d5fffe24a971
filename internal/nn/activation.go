package nn

import "github.com/ericwkw/mnist-trainer/internal/tensor"

// ReLU applies the rectifier max(0, x) element-wise.
type ReLU[B tensor.Backend] struct{}

// NewReLU creates a ReLU activation.
func NewReLU[B tensor.Backend]() *ReLU[B] {
	return &ReLU[B]{}
}

// Forward applies the activation.
func (r *ReLU[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	backend := input.Backend()
	return tensor.New[float32, B](backend.ReLU(input.Raw()), backend)
}

// Parameters returns nil.
func (r *ReLU[B]) Parameters() []*Parameter[B] {
	return nil
}

// Softmax normalizes logits to probabilities along the last dimension.
// Kept out of the trained models (the loss fuses its own softmax) but
// used at serving time to report class probabilities.
type Softmax[B tensor.Backend] struct{}

// NewSoftmax creates a Softmax activation.
func NewSoftmax[B tensor.Backend]() *Softmax[B] {
	return &Softmax[B]{}
}

// Forward applies softmax along the last dimension.
func (s *Softmax[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	backend := input.Backend()
	return tensor.New[float32, B](backend.Softmax(input.Raw()), backend)
}

// Parameters returns nil.
func (s *Softmax[B]) Parameters() []*Parameter[B] {
	return nil
}
