// Package ops implements the differentiable operations recorded by the
// gradient tape. Each operation keeps references to its input and
// output tensors from the forward pass and knows how to turn an output
// gradient into input gradients.
package ops

import "github.com/ericwkw/mnist-trainer/internal/tensor"

// Operation is one node of the recorded computation graph.
type Operation interface {
	// Backward computes gradients for the operation's inputs given the
	// gradient of the loss with respect to its output. The returned
	// slice is parallel to Inputs().
	Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor

	// Inputs returns the forward-pass input tensors.
	Inputs() []*tensor.RawTensor

	// Output returns the forward-pass output tensor. The tape uses its
	// pointer identity to look up the incoming gradient.
	Output() *tensor.RawTensor
}
