package autodiff

import (
	"github.com/ericwkw/mnist-trainer/internal/autodiff/ops"
	"github.com/ericwkw/mnist-trainer/internal/tensor"
)

// Tape records operations during the forward pass and replays them in
// reverse to compute gradients.
//
// Gradients are keyed by *RawTensor identity, which is why every
// backend operation must allocate a fresh output tensor.
type Tape struct {
	operations []ops.Operation
	recording  bool
}

// NewTape creates an empty, non-recording tape.
func NewTape() *Tape {
	return &Tape{operations: make([]ops.Operation, 0, 64)}
}

// StartRecording enables operation recording.
func (t *Tape) StartRecording() {
	t.recording = true
}

// StopRecording disables operation recording.
func (t *Tape) StopRecording() {
	t.recording = false
}

// IsRecording reports whether operations are currently being recorded.
func (t *Tape) IsRecording() bool {
	return t.recording
}

// Record appends an operation if the tape is recording.
func (t *Tape) Record(op ops.Operation) {
	if t.recording {
		t.operations = append(t.operations, op)
	}
}

// Clear drops all recorded operations. The recording flag is kept, so a
// training loop can clear once per step without re-arming the tape.
func (t *Tape) Clear() {
	t.operations = t.operations[:0]
}

// NumOps returns the number of recorded operations.
func (t *Tape) NumOps() int {
	return len(t.operations)
}

// Backward walks the tape in reverse from the last recorded output,
// applying the chain rule and accumulating gradients for tensors used
// more than once. Returns the gradient for every tensor reached.
func (t *Tape) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) map[*tensor.RawTensor]*tensor.RawTensor {
	grads := make(map[*tensor.RawTensor]*tensor.RawTensor)
	if len(t.operations) == 0 {
		return grads
	}

	// Gradient computations must not grow the tape.
	wasRecording := t.recording
	t.recording = false
	defer func() { t.recording = wasRecording }()

	grads[t.operations[len(t.operations)-1].Output()] = outputGrad

	for i := len(t.operations) - 1; i >= 0; i-- {
		op := t.operations[i]

		outGrad, ok := grads[op.Output()]
		if !ok {
			// No gradient flows through this operation.
			continue
		}

		inputGrads := op.Backward(outGrad, backend)
		for j, input := range op.Inputs() {
			if j >= len(inputGrads) || inputGrads[j] == nil {
				continue
			}
			if existing, ok := grads[input]; ok {
				grads[input] = backend.Add(existing, inputGrads[j])
			} else {
				grads[input] = inputGrads[j]
			}
		}
	}

	return grads
}
