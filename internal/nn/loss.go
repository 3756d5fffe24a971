package nn

import (
	"fmt"

	"github.com/ericwkw/mnist-trainer/internal/tensor"
)

// CrossEntropyLoss computes softmax cross-entropy for classification.
//
// Expects raw logits [batch, classes] and int32 class indices [batch];
// returns the mean loss over the batch as a [1] tensor.
//
// When the backend is gradient-aware the fused operation is recorded on
// the tape, giving the softmax-minus-one-hot gradient directly.
type CrossEntropyLoss[B tensor.Backend] struct {
	backend B
}

// NewCrossEntropyLoss creates the loss function.
func NewCrossEntropyLoss[B tensor.Backend](backend B) *CrossEntropyLoss[B] {
	return &CrossEntropyLoss[B]{backend: backend}
}

// Forward computes the mean cross-entropy loss.
func (c *CrossEntropyLoss[B]) Forward(
	logits *tensor.Tensor[float32, B],
	targets *tensor.Tensor[int32, B],
) *tensor.Tensor[float32, B] {
	type crossEntropyBackend interface {
		CrossEntropy(logits, targets *tensor.RawTensor) *tensor.RawTensor
	}

	ce, ok := any(c.backend).(crossEntropyBackend)
	if !ok {
		panic(fmt.Sprintf("cross-entropy: backend %s does not support the fused loss", c.backend.Name()))
	}

	return tensor.New[float32, B](ce.CrossEntropy(logits.Raw(), targets.Raw()), c.backend)
}

// Accuracy returns the fraction of rows whose argmax matches the
// target class.
func Accuracy[B tensor.Backend](
	logits *tensor.Tensor[float32, B],
	targets *tensor.Tensor[int32, B],
) float32 {
	shape := logits.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("accuracy: logits must be 2D [batch, classes], got %v", shape))
	}

	batchSize := shape[0]
	numClasses := shape[1]
	if batchSize == 0 {
		return 0
	}

	logitsData := logits.Data()
	targetsData := targets.Data()

	correct := 0
	for b := 0; b < batchSize; b++ {
		row := logitsData[b*numClasses : (b+1)*numClasses]
		best := 0
		for i, v := range row {
			if v > row[best] {
				best = i
			}
		}
		if int32(best) == targetsData[b] {
			correct++
		}
	}

	return float32(correct) / float32(batchSize)
}
