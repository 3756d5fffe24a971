package nn

import (
	"fmt"
	"math/rand"

	"github.com/ericwkw/mnist-trainer/internal/tensor"
)

// Dropout randomly zeroes activations during training with the given
// rate, scaling survivors so the expected activation is unchanged
// (inverted dropout). In evaluation mode it is the identity.
type Dropout[B tensor.Backend] struct {
	rate     float32
	rng      *rand.Rand
	training bool
}

// NewDropout creates a dropout layer. rate is the zeroing probability
// and must be in [0, 1).
func NewDropout[B tensor.Backend](rate float32, rng *rand.Rand) *Dropout[B] {
	if rate < 0 || rate >= 1 {
		panic(fmt.Sprintf("dropout: rate must be in [0, 1), got %v", rate))
	}
	return &Dropout[B]{rate: rate, rng: rng}
}

// SetTraining switches between training and evaluation behavior.
func (d *Dropout[B]) SetTraining(training bool) {
	d.training = training
}

// Forward applies dropout in training mode and passes the input through
// unchanged otherwise.
func (d *Dropout[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if !d.training || d.rate == 0 {
		return input
	}

	// Dropout needs the gradient-aware backend; a plain backend has no
	// mask bookkeeping, so eval-style forward is the only option there.
	type dropoutBackend interface {
		Dropout(x *tensor.RawTensor, rate float32, rng *rand.Rand) *tensor.RawTensor
	}

	backend := input.Backend()
	ad, ok := any(backend).(dropoutBackend)
	if !ok {
		return input
	}

	return tensor.New[float32, B](ad.Dropout(input.Raw(), d.rate, d.rng), backend)
}

// Parameters returns nil.
func (d *Dropout[B]) Parameters() []*Parameter[B] {
	return nil
}
