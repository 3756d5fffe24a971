package nn

import "github.com/ericwkw/mnist-trainer/internal/tensor"

// Sequential chains modules so each output feeds the next input.
//
// Example:
//
//	model := nn.NewSequential(
//	    nn.NewFlatten[B](),
//	    nn.NewDense("dense1", 784, 400, rng, backend),
//	    nn.NewReLU[B](),
//	    nn.NewDense("dense2", 400, 10, rng, backend),
//	)
type Sequential[B tensor.Backend] struct {
	modules []Module[B]
}

// NewSequential creates a Sequential container from the given modules.
func NewSequential[B tensor.Backend](modules ...Module[B]) *Sequential[B] {
	return &Sequential[B]{modules: modules}
}

// Add appends a module to the chain.
func (s *Sequential[B]) Add(m Module[B]) {
	s.modules = append(s.modules, m)
}

// Forward applies every module in order.
func (s *Sequential[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	out := input
	for _, m := range s.modules {
		out = m.Forward(out)
	}
	return out
}

// Parameters collects the parameters of all contained modules.
func (s *Sequential[B]) Parameters() []*Parameter[B] {
	var params []*Parameter[B]
	for _, m := range s.modules {
		params = append(params, m.Parameters()...)
	}
	return params
}

// SetTraining propagates the training flag to every contained module
// that distinguishes the two modes.
func (s *Sequential[B]) SetTraining(training bool) {
	for _, m := range s.modules {
		if ta, ok := m.(TrainingAware); ok {
			ta.SetTraining(training)
		}
	}
}

// Modules returns the contained modules in order.
func (s *Sequential[B]) Modules() []Module[B] {
	return s.modules
}
