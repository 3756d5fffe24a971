// Package nn provides neural network building blocks: layers,
// activations, loss functions and the Sequential container used to
// assemble classifiers.
//
// Design follows PyTorch's nn.Module adapted to Go generics: modules
// are generic over the tensor backend, so the same model definition
// runs with or without gradient tracking.
package nn

import "github.com/ericwkw/mnist-trainer/internal/tensor"

// Module is the base interface for all network components.
type Module[B tensor.Backend] interface {
	// Forward computes the module output for the given input.
	Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]

	// Parameters returns the trainable parameters, including those of
	// nested modules. Parameter-free modules return nil.
	Parameters() []*Parameter[B]
}

// TrainingAware is implemented by modules whose behavior differs
// between training and evaluation, such as Dropout.
type TrainingAware interface {
	SetTraining(training bool)
}
