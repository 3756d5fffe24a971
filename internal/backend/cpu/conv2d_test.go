package cpu

import (
	"testing"

	"github.com/ericwkw/mnist-trainer/internal/tensor"
)

func TestConv2DSimple(t *testing.T) {
	b := New()

	// 1x1x3x3 input, 1x1x2x2 kernel of ones: each output is the sum of
	// a 2x2 patch.
	input := rawFromFloat32(t, []float32{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	}, tensor.Shape{1, 1, 3, 3})
	kernel := rawFromFloat32(t, []float32{1, 1, 1, 1}, tensor.Shape{1, 1, 2, 2})

	out := b.Conv2D(input, kernel, 1, 0)

	if !out.Shape().Equal(tensor.Shape{1, 1, 2, 2}) {
		t.Fatalf("output shape = %v, want [1 1 2 2]", out.Shape())
	}
	assertFloat32Slice(t, []float32{12, 16, 24, 28}, out.AsFloat32(), "Conv2D")
}

func TestConv2DIdentityKernel(t *testing.T) {
	b := New()

	input := rawFromFloat32(t, []float32{1, 2, 3, 4}, tensor.Shape{1, 1, 2, 2})
	kernel := rawFromFloat32(t, []float32{1}, tensor.Shape{1, 1, 1, 1})

	out := b.Conv2D(input, kernel, 1, 0)
	assertFloat32Slice(t, []float32{1, 2, 3, 4}, out.AsFloat32(), "1x1 identity kernel")
}

func TestConv2DPadding(t *testing.T) {
	b := New()

	// With padding=1 and a 3x3 kernel, output keeps the input size.
	input := rawFromFloat32(t, []float32{
		0, 0, 0,
		0, 1, 0,
		0, 0, 0,
	}, tensor.Shape{1, 1, 3, 3})
	kernel := rawFromFloat32(t, []float32{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	}, tensor.Shape{1, 1, 3, 3})

	out := b.Conv2D(input, kernel, 1, 1)

	if !out.Shape().Equal(tensor.Shape{1, 1, 3, 3}) {
		t.Fatalf("output shape = %v, want [1 1 3 3]", out.Shape())
	}
	// Cross-correlating a unit impulse yields the kernel reversed.
	assertFloat32Slice(t, []float32{
		9, 8, 7,
		6, 5, 4,
		3, 2, 1,
	}, out.AsFloat32(), "impulse response")
}

func TestConv2DMultiChannel(t *testing.T) {
	b := New()

	// Two input channels, kernel sums both.
	input := rawFromFloat32(t, []float32{
		1, 2, 3, 4, // channel 0
		10, 20, 30, 40, // channel 1
	}, tensor.Shape{1, 2, 2, 2})
	kernel := rawFromFloat32(t, []float32{1, 1}, tensor.Shape{1, 2, 1, 1})

	out := b.Conv2D(input, kernel, 1, 0)
	assertFloat32Slice(t, []float32{11, 22, 33, 44}, out.AsFloat32(), "multi-channel Conv2D")
}

func TestConv2DStride(t *testing.T) {
	b := New()

	input := rawFromFloat32(t, []float32{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
		13, 14, 15, 16,
	}, tensor.Shape{1, 1, 4, 4})
	kernel := rawFromFloat32(t, []float32{1, 0, 0, 0}, tensor.Shape{1, 1, 2, 2})

	out := b.Conv2D(input, kernel, 2, 0)

	if !out.Shape().Equal(tensor.Shape{1, 1, 2, 2}) {
		t.Fatalf("output shape = %v, want [1 1 2 2]", out.Shape())
	}
	assertFloat32Slice(t, []float32{1, 3, 9, 11}, out.AsFloat32(), "stride 2 Conv2D")
}

func TestConv2DChannelMismatchPanics(t *testing.T) {
	b := New()

	input := rawFromFloat32(t, []float32{1, 2, 3, 4}, tensor.Shape{1, 1, 2, 2})
	kernel := rawFromFloat32(t, []float32{1, 1}, tensor.Shape{1, 2, 1, 1})

	defer func() {
		if recover() == nil {
			t.Error("channel mismatch did not panic")
		}
	}()
	b.Conv2D(input, kernel, 1, 0)
}

// TestConv2DInputBackwardNumeric verifies the analytic input gradient
// against a central-difference approximation.
func TestConv2DInputBackwardNumeric(t *testing.T) {
	b := New()

	input := rawFromFloat32(t, []float32{
		0.5, -0.2, 0.3,
		0.1, 0.8, -0.5,
		-0.3, 0.4, 0.2,
	}, tensor.Shape{1, 1, 3, 3})
	kernel := rawFromFloat32(t, []float32{0.2, -0.4, 0.6, 0.1}, tensor.Shape{1, 1, 2, 2})

	// Loss = sum of outputs, so the output gradient is all ones.
	out := b.Conv2D(input, kernel, 1, 0)
	grad, _ := tensor.NewRaw(out.Shape(), tensor.Float32)
	for i := range grad.AsFloat32() {
		grad.AsFloat32()[i] = 1
	}

	analytic := b.Conv2DInputBackward(input, kernel, grad, 1, 0)

	const eps = 1e-2
	inputData := input.AsFloat32()
	for i := range inputData {
		orig := inputData[i]

		inputData[i] = orig + eps
		plus := sumFloat32(b.Conv2D(input, kernel, 1, 0).AsFloat32())

		inputData[i] = orig - eps
		minus := sumFloat32(b.Conv2D(input, kernel, 1, 0).AsFloat32())

		inputData[i] = orig

		numeric := (plus - minus) / (2 * eps)
		if diff := numeric - analytic.AsFloat32()[i]; diff > 1e-2 || diff < -1e-2 {
			t.Errorf("input grad [%d]: numeric %v vs analytic %v", i, numeric, analytic.AsFloat32()[i])
		}
	}
}

// TestConv2DKernelBackwardNumeric verifies the analytic kernel gradient
// against a central-difference approximation.
func TestConv2DKernelBackwardNumeric(t *testing.T) {
	b := New()

	input := rawFromFloat32(t, []float32{
		0.5, -0.2, 0.3,
		0.1, 0.8, -0.5,
		-0.3, 0.4, 0.2,
	}, tensor.Shape{1, 1, 3, 3})
	kernel := rawFromFloat32(t, []float32{0.2, -0.4, 0.6, 0.1}, tensor.Shape{1, 1, 2, 2})

	out := b.Conv2D(input, kernel, 1, 0)
	grad, _ := tensor.NewRaw(out.Shape(), tensor.Float32)
	for i := range grad.AsFloat32() {
		grad.AsFloat32()[i] = 1
	}

	analytic := b.Conv2DKernelBackward(input, kernel, grad, 1, 0)

	const eps = 1e-2
	kernelData := kernel.AsFloat32()
	for i := range kernelData {
		orig := kernelData[i]

		kernelData[i] = orig + eps
		plus := sumFloat32(b.Conv2D(input, kernel, 1, 0).AsFloat32())

		kernelData[i] = orig - eps
		minus := sumFloat32(b.Conv2D(input, kernel, 1, 0).AsFloat32())

		kernelData[i] = orig

		numeric := (plus - minus) / (2 * eps)
		if diff := numeric - analytic.AsFloat32()[i]; diff > 1e-2 || diff < -1e-2 {
			t.Errorf("kernel grad [%d]: numeric %v vs analytic %v", i, numeric, analytic.AsFloat32()[i])
		}
	}
}

func sumFloat32(data []float32) float32 {
	var sum float32
	for _, v := range data {
		sum += v
	}
	return sum
}
