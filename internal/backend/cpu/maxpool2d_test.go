package cpu

import (
	"testing"

	"github.com/ericwkw/mnist-trainer/internal/tensor"
)

func TestMaxPool2D(t *testing.T) {
	b := New()

	input := rawFromFloat32(t, []float32{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
		13, 14, 15, 16,
	}, tensor.Shape{1, 1, 4, 4})

	out := b.MaxPool2D(input, 2, 2)

	if !out.Shape().Equal(tensor.Shape{1, 1, 2, 2}) {
		t.Fatalf("output shape = %v, want [1 1 2 2]", out.Shape())
	}
	assertFloat32Slice(t, []float32{6, 8, 14, 16}, out.AsFloat32(), "MaxPool2D 2x2")
}

func TestMaxPool2DNegativeValues(t *testing.T) {
	b := New()

	input := rawFromFloat32(t, []float32{
		-1, -2,
		-3, -4,
	}, tensor.Shape{1, 1, 2, 2})

	out := b.MaxPool2D(input, 2, 2)
	assertFloat32Slice(t, []float32{-1}, out.AsFloat32(), "all-negative window")
}

func TestMaxPool2DStrideOne(t *testing.T) {
	b := New()

	input := rawFromFloat32(t, []float32{
		1, 5, 2,
		0, 3, 4,
		6, 1, 0,
	}, tensor.Shape{1, 1, 3, 3})

	out := b.MaxPool2D(input, 2, 1)
	assertFloat32Slice(t, []float32{5, 5, 6, 4}, out.AsFloat32(), "overlapping windows")
}

func TestMaxPool2DKernelTooLargePanics(t *testing.T) {
	b := New()
	input := rawFromFloat32(t, []float32{1, 2, 3, 4}, tensor.Shape{1, 1, 2, 2})

	defer func() {
		if recover() == nil {
			t.Error("oversized kernel did not panic")
		}
	}()
	b.MaxPool2D(input, 3, 1)
}

func TestMaxPool2DBackward(t *testing.T) {
	b := New()

	input := rawFromFloat32(t, []float32{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
		13, 14, 15, 16,
	}, tensor.Shape{1, 1, 4, 4})

	grad := rawFromFloat32(t, []float32{10, 20, 30, 40}, tensor.Shape{1, 1, 2, 2})

	// Max positions for 2x2 pooling with stride 2: flat indices of
	// 6, 8, 14, 16 in the input.
	maxIndices := []int{5, 7, 13, 15}

	inputGrad := b.MaxPool2DBackward(input, grad, maxIndices, 2, 2)

	expected := []float32{
		0, 0, 0, 0,
		0, 10, 0, 20,
		0, 0, 0, 0,
		0, 30, 0, 40,
	}
	assertFloat32Slice(t, expected, inputGrad.AsFloat32(), "routed gradients")
}

func TestMaxPool2DBackwardIndexLengthPanics(t *testing.T) {
	b := New()

	input := rawFromFloat32(t, []float32{1, 2, 3, 4}, tensor.Shape{1, 1, 2, 2})
	grad := rawFromFloat32(t, []float32{1}, tensor.Shape{1, 1, 1, 1})

	defer func() {
		if recover() == nil {
			t.Error("wrong maxIndices length did not panic")
		}
	}()
	b.MaxPool2DBackward(input, grad, []int{0, 1}, 2, 2)
}
