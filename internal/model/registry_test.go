package model_test

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/ericwkw/mnist-trainer/internal/backend/cpu"
	"github.com/ericwkw/mnist-trainer/internal/model"
	"github.com/ericwkw/mnist-trainer/internal/tensor"
)

func TestBuildUnknownType(t *testing.T) {
	_, err := model.Build("resnet", rand.New(rand.NewSource(1)), cpu.New())
	if err == nil {
		t.Fatal("expected error for unknown model type")
	}
	for _, name := range model.Types() {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error should list valid type %q: %v", name, err)
		}
	}
}

func TestBuildForwardShapes(t *testing.T) {
	backend := cpu.New()
	rng := rand.New(rand.NewSource(42))

	input := tensor.Zeros[float32](tensor.Shape{4, 1, 28, 28}, backend)

	for _, modelType := range model.Types() {
		m, err := model.Build(modelType, rng, backend)
		if err != nil {
			t.Fatalf("Build(%s): %v", modelType, err)
		}

		logits := m.Forward(input)
		want := tensor.Shape{4, 10}
		if !logits.Shape().Equal(want) {
			t.Errorf("%s: logits shape %v, want %v", modelType, logits.Shape(), want)
		}
	}
}

func TestBuildParameterCounts(t *testing.T) {
	backend := cpu.New()
	rng := rand.New(rand.NewSource(42))

	tests := []struct {
		modelType string
		numParams int
	}{
		{model.TypeLinear, 2},
		{model.TypeDNN, 6},
		{model.TypeDNNDropout, 6},
		{model.TypeCNN, 10},
	}

	for _, tt := range tests {
		m, err := model.Build(tt.modelType, rng, backend)
		if err != nil {
			t.Fatalf("Build(%s): %v", tt.modelType, err)
		}
		if got := len(m.Parameters()); got != tt.numParams {
			t.Errorf("%s: got %d parameter tensors, want %d", tt.modelType, got, tt.numParams)
		}
	}
}

func TestBuildReproducible(t *testing.T) {
	backend := cpu.New()

	a, err := model.Build(model.TypeLinear, rand.New(rand.NewSource(7)), backend)
	if err != nil {
		t.Fatal(err)
	}
	b, err := model.Build(model.TypeLinear, rand.New(rand.NewSource(7)), backend)
	if err != nil {
		t.Fatal(err)
	}

	aw := a.Parameters()[0].Tensor().Raw().AsFloat32()
	bw := b.Parameters()[0].Tensor().Raw().AsFloat32()
	for i := range aw {
		if aw[i] != bw[i] {
			t.Fatalf("same seed produced different weights at %d: %v vs %v", i, aw[i], bw[i])
		}
	}
}
