// Package model maps model type names to MNIST classifier architectures.
//
// All architectures consume [batch, 1, 28, 28] image tensors and emit
// raw logits over the ten digit classes; softmax is applied by the loss
// during training and by the server when producing probabilities.
package model

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/ericwkw/mnist-trainer/internal/nn"
	"github.com/ericwkw/mnist-trainer/internal/tensor"
)

// Supported model type names.
const (
	TypeLinear     = "linear"
	TypeDNN        = "dnn"
	TypeDNNDropout = "dnn_dropout"
	TypeCNN        = "cnn"
)

const (
	inputPixels = 28 * 28
	numClasses  = 10
	dropoutRate = 0.25
)

// Types returns the supported model type names in declaration order.
func Types() []string {
	return []string{TypeLinear, TypeDNN, TypeDNNDropout, TypeCNN}
}

// Build constructs the architecture registered under modelType.
//
// Weights are initialized from rng, so a fixed seed gives a
// reproducible model. Unknown names return an error listing the valid
// types.
func Build[B tensor.Backend](modelType string, rng *rand.Rand, backend B) (*nn.Sequential[B], error) {
	switch modelType {
	case TypeLinear:
		return buildLinear(rng, backend), nil
	case TypeDNN:
		return buildDNN(false, rng, backend), nil
	case TypeDNNDropout:
		return buildDNN(true, rng, backend), nil
	case TypeCNN:
		return buildCNN(rng, backend), nil
	default:
		return nil, fmt.Errorf("unknown model type %q, valid types: %s",
			modelType, strings.Join(Types(), ", "))
	}
}

// buildLinear is a softmax regression head over the flattened pixels.
func buildLinear[B tensor.Backend](rng *rand.Rand, backend B) *nn.Sequential[B] {
	return nn.NewSequential[B](
		nn.NewFlatten[B](),
		nn.NewDense("output", inputPixels, numClasses, rng, backend),
	)
}

// buildDNN is a two-hidden-layer perceptron, optionally with dropout
// before the output layer.
func buildDNN[B tensor.Backend](dropout bool, rng *rand.Rand, backend B) *nn.Sequential[B] {
	m := nn.NewSequential[B](
		nn.NewFlatten[B](),
		nn.NewDense("hidden1", inputPixels, 400, rng, backend),
		nn.NewReLU[B](),
		nn.NewDense("hidden2", 400, 100, rng, backend),
		nn.NewReLU[B](),
	)
	if dropout {
		m.Add(nn.NewDropout[B](dropoutRate, rng))
	}
	m.Add(nn.NewDense("output", 100, numClasses, rng, backend))
	return m
}

// buildCNN stacks two conv/pool blocks before the dense head.
//
// Spatial sizes: 28 -> conv3x3 -> 26 -> pool2 -> 13 -> conv3x3 -> 11
// -> pool2 -> 5, so the flattened feature vector is 32*5*5 = 800.
func buildCNN[B tensor.Backend](rng *rand.Rand, backend B) *nn.Sequential[B] {
	return nn.NewSequential[B](
		nn.NewConv2D("conv1", 1, 64, 3, 1, 0, rng, backend),
		nn.NewReLU[B](),
		nn.NewMaxPool2D[B](2, 2),
		nn.NewConv2D("conv2", 64, 32, 3, 1, 0, rng, backend),
		nn.NewReLU[B](),
		nn.NewMaxPool2D[B](2, 2),
		nn.NewFlatten[B](),
		nn.NewDense("hidden1", 32*5*5, 400, rng, backend),
		nn.NewReLU[B](),
		nn.NewDense("hidden2", 400, 100, rng, backend),
		nn.NewReLU[B](),
		nn.NewDropout[B](dropoutRate, rng),
		nn.NewDense("output", 100, numClasses, rng, backend),
	)
}
