package model

import (
	"fmt"

	"github.com/ericwkw/mnist-trainer/internal/nn"
	"github.com/ericwkw/mnist-trainer/internal/tensor"
)

// StateDict collects a model's parameters as a name to raw tensor map
// for serialization.
func StateDict[B tensor.Backend](m *nn.Sequential[B]) map[string]*tensor.RawTensor {
	params := m.Parameters()
	dict := make(map[string]*tensor.RawTensor, len(params))
	for _, p := range params {
		dict[p.Name()] = p.Tensor().Raw()
	}
	return dict
}

// LoadStateDict copies saved tensors into a freshly built model.
//
// Every model parameter must be present in the dict with a matching
// shape and dtype; extra dict entries are an error too, so a cnn
// artifact cannot silently load into a dnn.
func LoadStateDict[B tensor.Backend](m *nn.Sequential[B], dict map[string]*tensor.RawTensor) error {
	params := m.Parameters()
	if len(params) != len(dict) {
		return fmt.Errorf("state dict has %d tensors, model has %d parameters", len(dict), len(params))
	}

	for _, p := range params {
		saved, ok := dict[p.Name()]
		if !ok {
			return fmt.Errorf("state dict missing parameter %q", p.Name())
		}
		dst := p.Tensor().Raw()
		if !dst.Shape().Equal(saved.Shape()) {
			return fmt.Errorf("parameter %q shape mismatch: model %v, saved %v", p.Name(), dst.Shape(), saved.Shape())
		}
		if dst.DType() != saved.DType() {
			return fmt.Errorf("parameter %q dtype mismatch: model %s, saved %s", p.Name(), dst.DType(), saved.DType())
		}
		copy(dst.Data(), saved.Data())
	}
	return nil
}
