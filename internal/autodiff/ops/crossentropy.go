package ops

import (
	"fmt"
	"math"

	"github.com/ericwkw/mnist-trainer/internal/tensor"
)

// CrossEntropyOp records the fused softmax cross-entropy loss.
//
// Forward:
//
//	loss = mean_b(-log_softmax(logits[b])[targets[b]])
//
// Backward:
//
//	grad_logits[b,i] = (softmax(logits[b])[i] - onehot(targets[b])[i]) / batch
//
// Fusing the two keeps the gradient a single subtraction instead of
// chaining the full softmax Jacobian through a log.
type CrossEntropyOp struct {
	logits  *tensor.RawTensor
	targets *tensor.RawTensor
	output  *tensor.RawTensor
}

// NewCrossEntropyOp creates a CrossEntropyOp.
func NewCrossEntropyOp(logits, targets, output *tensor.RawTensor) *CrossEntropyOp {
	return &CrossEntropyOp{logits: logits, targets: targets, output: output}
}

// Inputs returns only the logits. Targets are class indices and carry
// no gradient.
func (op *CrossEntropyOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.logits}
}

func (op *CrossEntropyOp) Output() *tensor.RawTensor { return op.output }

func (op *CrossEntropyOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	logitsShape := op.logits.Shape()
	batchSize := logitsShape[0]
	numClasses := logitsShape[1]

	gradLogits, err := tensor.NewRaw(logitsShape, tensor.Float32)
	if err != nil {
		panic(fmt.Sprintf("cross-entropy backward: %v", err))
	}

	logitsData := op.logits.AsFloat32()
	targetsData := op.targets.AsInt32()
	gradData := gradLogits.AsFloat32()
	gradScale := outputGrad.AsFloat32()[0]

	for b := 0; b < batchSize; b++ {
		row := logitsData[b*numClasses : (b+1)*numClasses]
		probs := softmaxRow(row)

		target := int(targetsData[b])
		for i := 0; i < numClasses; i++ {
			g := probs[i]
			if i == target {
				g -= 1
			}
			gradData[b*numClasses+i] = gradScale * g / float32(batchSize)
		}
	}

	return []*tensor.RawTensor{gradLogits}
}

// CrossEntropyForward computes the mean negative log-likelihood of the
// target classes. logits must be [batch, classes] float32 and targets
// [batch] int32.
func CrossEntropyForward(logits, targets *tensor.RawTensor) *tensor.RawTensor {
	logitsShape := logits.Shape()
	if len(logitsShape) != 2 {
		panic(fmt.Sprintf("cross-entropy: logits must be 2D [batch, classes], got %v", logitsShape))
	}
	targetsShape := targets.Shape()
	if len(targetsShape) != 1 || targetsShape[0] != logitsShape[0] {
		panic(fmt.Sprintf("cross-entropy: targets shape %v does not match logits %v", targetsShape, logitsShape))
	}
	if logits.DType() != tensor.Float32 || targets.DType() != tensor.Int32 {
		panic(fmt.Sprintf("cross-entropy: unsupported dtypes %s/%s", logits.DType(), targets.DType()))
	}

	batchSize := logitsShape[0]
	numClasses := logitsShape[1]

	output, err := tensor.NewRaw(tensor.Shape{1}, tensor.Float32)
	if err != nil {
		panic(fmt.Sprintf("cross-entropy: %v", err))
	}

	logitsData := logits.AsFloat32()
	targetsData := targets.AsInt32()

	var totalLoss float32
	for b := 0; b < batchSize; b++ {
		row := logitsData[b*numClasses : (b+1)*numClasses]

		target := int(targetsData[b])
		if target < 0 || target >= numClasses {
			panic(fmt.Sprintf("cross-entropy: target %d out of range [0, %d)", target, numClasses))
		}

		// log_softmax via the log-sum-exp trick.
		maxVal := row[0]
		for _, v := range row[1:] {
			if v > maxVal {
				maxVal = v
			}
		}
		var sumExp float64
		for _, v := range row {
			sumExp += math.Exp(float64(v - maxVal))
		}
		logSumExp := float64(maxVal) + math.Log(sumExp)

		totalLoss += float32(logSumExp - float64(row[target]))
	}

	output.AsFloat32()[0] = totalLoss / float32(batchSize)
	return output
}

// softmaxRow computes softmax probabilities for one sample.
func softmaxRow(logits []float32) []float32 {
	probs := make([]float32, len(logits))

	maxVal := logits[0]
	for _, v := range logits[1:] {
		if v > maxVal {
			maxVal = v
		}
	}

	var sum float32
	for i, v := range logits {
		probs[i] = float32(math.Exp(float64(v - maxVal)))
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}
