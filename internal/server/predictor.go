package server

import (
	"fmt"
	"math/rand"

	"github.com/ericwkw/mnist-trainer/internal/backend/cpu"
	"github.com/ericwkw/mnist-trainer/internal/mnist"
	"github.com/ericwkw/mnist-trainer/internal/model"
	"github.com/ericwkw/mnist-trainer/internal/nn"
	"github.com/ericwkw/mnist-trainer/internal/serialization"
	"github.com/ericwkw/mnist-trainer/internal/tensor"
)

// Prediction is one classified instance.
type Prediction struct {
	Classes       int       `json:"classes"`
	Probabilities []float32 `json:"probabilities"`
}

// Predictor serves inference from a trained model artifact.
//
// The loaded model is read-only after construction, so Predict is safe
// for concurrent use.
type Predictor struct {
	backend    *cpu.Backend
	model      *nn.Sequential[*cpu.Backend]
	modelType  string
	paramCount int
	path       string
}

// NewPredictor loads a model artifact and prepares it for inference.
func NewPredictor(path string) (*Predictor, error) {
	header, stateDict, err := serialization.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load model artifact: %w", err)
	}

	backend := cpu.New()
	m, err := model.Build(header.ModelType, rand.New(rand.NewSource(1)), backend)
	if err != nil {
		return nil, err
	}
	if err := model.LoadStateDict(m, stateDict); err != nil {
		return nil, fmt.Errorf("artifact does not match %s architecture: %w", header.ModelType, err)
	}
	m.SetTraining(false)

	paramCount := 0
	for _, p := range m.Parameters() {
		paramCount += p.Tensor().NumElements()
	}

	return &Predictor{
		backend:    backend,
		model:      m,
		modelType:  header.ModelType,
		paramCount: paramCount,
		path:       path,
	}, nil
}

// ModelType returns the architecture name from the artifact header.
func (p *Predictor) ModelType() string {
	return p.modelType
}

// ParamCount returns the total number of trainable weights.
func (p *Predictor) ParamCount() int {
	return p.paramCount
}

// Path returns the artifact the predictor was loaded from.
func (p *Predictor) Path() string {
	return p.path
}

// Predict classifies a batch of flattened 784-pixel instances.
func (p *Predictor) Predict(instances [][]float32) ([]Prediction, error) {
	if len(instances) == 0 {
		return nil, fmt.Errorf("no instances given")
	}

	raw, err := tensor.NewRaw(tensor.Shape{len(instances), 1, mnist.ImageRows, mnist.ImageCols}, tensor.Float32)
	if err != nil {
		return nil, err
	}
	data := raw.AsFloat32()
	for i, instance := range instances {
		if len(instance) != mnist.ImageSize {
			return nil, fmt.Errorf("instance %d has %d values, want %d", i, len(instance), mnist.ImageSize)
		}
		copy(data[i*mnist.ImageSize:(i+1)*mnist.ImageSize], instance)
	}

	input := tensor.New[float32](raw, p.backend)
	logits := p.model.Forward(input)
	probs := p.backend.Softmax(logits.Raw()).AsFloat32()

	results := make([]Prediction, len(instances))
	for i := range results {
		row := probs[i*mnist.NumClasses : (i+1)*mnist.NumClasses]
		best := 0
		for j := 1; j < mnist.NumClasses; j++ {
			if row[j] > row[best] {
				best = j
			}
		}
		results[i] = Prediction{
			Classes:       best,
			Probabilities: append([]float32(nil), row...),
		}
	}
	return results, nil
}
