package nn

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/ericwkw/mnist-trainer/internal/tensor"
)

// Xavier returns a tensor initialized from the Glorot uniform
// distribution U(-b, b) with b = sqrt(6 / (fanIn + fanOut)).
//
// Keeps activation variance roughly constant across layers, which
// matters for the deeper dense stacks.
func Xavier[B tensor.Backend](fanIn, fanOut int, shape tensor.Shape, rng *rand.Rand, backend B) *tensor.Tensor[float32, B] {
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))
	return uniformInit[B](shape, bound, rng, backend)
}

func uniformInit[B tensor.Backend](shape tensor.Shape, bound float64, rng *rand.Rand, backend B) *tensor.Tensor[float32, B] {
	raw, err := tensor.NewRaw(shape, tensor.Float32)
	if err != nil {
		panic(fmt.Sprintf("init: %v", err))
	}

	data := raw.AsFloat32()
	for i := range data {
		data[i] = float32((rng.Float64()*2 - 1) * bound)
	}
	return tensor.New[float32, B](raw, backend)
}

// Zeros creates a zero-filled tensor, used for bias initialization.
func Zeros[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return tensor.Zeros[float32](shape, backend)
}
