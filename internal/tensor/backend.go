package tensor

// Backend is the kernel surface a compute backend must provide.
//
// The set is intentionally small: it is exactly what the classifier
// architectures in this repository need for their forward and backward
// passes. Backends allocate fresh output tensors for every call; the
// autodiff decorator relies on input tensors staying untouched.
type Backend interface {
	// Element-wise binary operations with broadcasting.
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor
	Div(a, b *RawTensor) *RawTensor

	// MatMul performs 2D matrix multiplication: (M, K) @ (K, N) -> (M, N).
	MatMul(a, b *RawTensor) *RawTensor

	// Convolution and pooling. Input layout is [batch, channels, height, width],
	// kernel layout [out_channels, in_channels, kernel_h, kernel_w].
	Conv2D(input, kernel *RawTensor, stride, padding int) *RawTensor
	Conv2DInputBackward(input, kernel, grad *RawTensor, stride, padding int) *RawTensor
	Conv2DKernelBackward(input, kernel, grad *RawTensor, stride, padding int) *RawTensor
	MaxPool2D(input *RawTensor, kernelSize, stride int) *RawTensor
	MaxPool2DBackward(input, grad *RawTensor, maxIndices []int, kernelSize, stride int) *RawTensor

	// Shape operations.
	Reshape(t *RawTensor, newShape Shape) *RawTensor
	Transpose(t *RawTensor, axes ...int) *RawTensor

	// Activations.
	ReLU(x *RawTensor) *RawTensor
	Softmax(x *RawTensor) *RawTensor

	// Name identifies the backend for diagnostics.
	Name() string
}
