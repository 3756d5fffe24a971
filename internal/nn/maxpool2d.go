package nn

import (
	"fmt"

	"github.com/ericwkw/mnist-trainer/internal/tensor"
)

// MaxPool2D downsamples spatial dimensions by taking window maxima.
// It has no trainable parameters.
type MaxPool2D[B tensor.Backend] struct {
	kernelSize int
	stride     int
}

// NewMaxPool2D creates a pooling layer with square windows.
func NewMaxPool2D[B tensor.Backend](kernelSize, stride int) *MaxPool2D[B] {
	if kernelSize <= 0 || stride <= 0 {
		panic(fmt.Sprintf("maxpool2d: invalid kernel=%d stride=%d", kernelSize, stride))
	}
	return &MaxPool2D[B]{kernelSize: kernelSize, stride: stride}
}

// Forward pools the input over [batch, channels, height, width].
func (m *MaxPool2D[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	backend := input.Backend()
	raw := backend.MaxPool2D(input.Raw(), m.kernelSize, m.stride)
	return tensor.New[float32, B](raw, backend)
}

// Parameters returns nil; pooling is parameter-free.
func (m *MaxPool2D[B]) Parameters() []*Parameter[B] {
	return nil
}
