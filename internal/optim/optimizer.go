// Package optim implements gradient descent optimizers. Optimizers
// consume the gradient map produced by the autodiff tape, keyed by the
// raw tensors of the parameters they manage.
package optim

import (
	"github.com/ericwkw/mnist-trainer/internal/nn"
	"github.com/ericwkw/mnist-trainer/internal/tensor"
)

// Optimizer updates parameters from a gradient map.
type Optimizer[B tensor.Backend] interface {
	// Step applies one update. Parameters absent from the map (not part
	// of the recorded graph this step) are skipped.
	Step(grads map[*tensor.RawTensor]*tensor.RawTensor)

	// LearningRate returns the current learning rate.
	LearningRate() float32
}

// gradientFor looks up a parameter's gradient in the tape output.
func gradientFor[B tensor.Backend](param *nn.Parameter[B], grads map[*tensor.RawTensor]*tensor.RawTensor) []float32 {
	grad, ok := grads[param.Tensor().Raw()]
	if !ok {
		return nil
	}
	return grad.AsFloat32()
}
