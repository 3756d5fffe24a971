package nn

import (
	"fmt"
	"math/rand"

	"github.com/ericwkw/mnist-trainer/internal/tensor"
)

// Conv2D is a 2D convolutional layer.
//
// Input shape:  [batch, inChannels, height, width]
// Weight shape: [outChannels, inChannels, kernel, kernel]
// Output shape: [batch, outChannels, outH, outW] with
//
//	outH = (height + 2*padding - kernel)/stride + 1
type Conv2D[B tensor.Backend] struct {
	inChannels  int
	outChannels int
	kernelSize  int
	stride      int
	padding     int

	weight *Parameter[B]
	bias   *Parameter[B]
}

// NewConv2D creates a convolutional layer with square kernels, Xavier
// weight initialization and zero bias.
func NewConv2D[B tensor.Backend](name string, inChannels, outChannels, kernelSize, stride, padding int, rng *rand.Rand, backend B) *Conv2D[B] {
	if inChannels <= 0 || outChannels <= 0 {
		panic(fmt.Sprintf("conv2d: invalid channels in=%d out=%d", inChannels, outChannels))
	}
	if kernelSize <= 0 || stride <= 0 || padding < 0 {
		panic(fmt.Sprintf("conv2d: invalid kernel=%d stride=%d padding=%d", kernelSize, stride, padding))
	}

	fanIn := inChannels * kernelSize * kernelSize
	fanOut := outChannels * kernelSize * kernelSize
	weight := Xavier(fanIn, fanOut, tensor.Shape{outChannels, inChannels, kernelSize, kernelSize}, rng, backend)
	bias := Zeros(tensor.Shape{outChannels}, backend)

	return &Conv2D[B]{
		inChannels:  inChannels,
		outChannels: outChannels,
		kernelSize:  kernelSize,
		stride:      stride,
		padding:     padding,
		weight:      NewParameter(name+".weight", weight),
		bias:        NewParameter(name+".bias", bias),
	}
}

// Forward convolves the input and adds the per-channel bias.
func (c *Conv2D[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("conv2d: expected 4D input [N,C,H,W], got %v", shape))
	}
	if shape[1] != c.inChannels {
		panic(fmt.Sprintf("conv2d: expected %d input channels, got %d", c.inChannels, shape[1]))
	}

	backend := input.Backend()
	raw := backend.Conv2D(input.Raw(), c.weight.Tensor().Raw(), c.stride, c.padding)
	out := tensor.New[float32, B](raw, backend)

	// Bias broadcasts over batch and spatial dimensions.
	return out.Add(c.bias.Tensor().Reshape(1, c.outChannels, 1, 1))
}

// Parameters returns [weight, bias].
func (c *Conv2D[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{c.weight, c.bias}
}
