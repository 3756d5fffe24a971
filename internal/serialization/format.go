// Package serialization implements the binary model artifact format.
//
// Layout:
//
//	0x00  magic "MNTR" (4 bytes)
//	0x04  format version (uint32, little-endian)
//	0x08  flags (uint32)
//	0x0C  header size (uint64)
//	0x14  SHA-256 checksum of the data section (32 bytes)
//	0x34  JSON header (header size bytes)
//	      padding to a 64-byte boundary
//	      tensor data section
//
// Tensor offsets in the header are relative to the start of the data
// section.
package serialization

import (
	"time"

	"github.com/ericwkw/mnist-trainer/internal/tensor"
)

// Format constants.
const (
	MagicBytes      = "MNTR"
	FormatVersion   = 1
	HeaderAlignment = 64
	ChecksumSize    = 32
	ChecksumOffset  = 0x14
	fixedPrefixSize = 4 + 4 + 4 + 8 + ChecksumSize
)

// Data type names used in the JSON header.
const (
	DTypeFloat32 = "float32"
	DTypeFloat64 = "float64"
	DTypeInt32   = "int32"
	DTypeUint8   = "uint8"
)

// Flags for the artifact format.
const (
	FlagHasMetadata   uint32 = 1 << 0
	FlagHasCheckpoint uint32 = 1 << 1
)

// Header is the JSON header of a model artifact.
type Header struct {
	FormatVersion  int               `json:"format_version"`
	ModelType      string            `json:"model_type"`
	CreatedAt      time.Time         `json:"created_at"`
	Tensors        []TensorMeta      `json:"tensors"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CheckpointMeta *CheckpointMeta   `json:"checkpoint,omitempty"`
}

// CheckpointMeta carries training state for per-epoch checkpoints.
type CheckpointMeta struct {
	Epoch          int     `json:"epoch"`
	Step           int64   `json:"step"`
	TrainLoss      float64 `json:"train_loss"`
	ValLoss        float64 `json:"val_loss"`
	ValAccuracy    float64 `json:"val_accuracy"`
	OptimizerType  string  `json:"optimizer_type"`
	LearningRate   float64 `json:"learning_rate"`
	StepsPerEpoch  int     `json:"steps_per_epoch"`
	BatchSize      int     `json:"batch_size"`
	TrainerVersion string  `json:"trainer_version,omitempty"`
}

// TensorMeta describes one tensor in the data section.
type TensorMeta struct {
	Name   string `json:"name"`
	DType  string `json:"dtype"`
	Shape  []int  `json:"shape"`
	Offset int64  `json:"offset"`
	Size   int64  `json:"size"`
}

func dtypeToString(dt tensor.DataType) string {
	switch dt {
	case tensor.Float32:
		return DTypeFloat32
	case tensor.Float64:
		return DTypeFloat64
	case tensor.Int32:
		return DTypeInt32
	case tensor.Uint8:
		return DTypeUint8
	default:
		return "unknown"
	}
}

func stringToDtype(s string) (tensor.DataType, bool) {
	switch s {
	case DTypeFloat32:
		return tensor.Float32, true
	case DTypeFloat64:
		return tensor.Float64, true
	case DTypeInt32:
		return tensor.Int32, true
	case DTypeUint8:
		return tensor.Uint8, true
	default:
		return 0, false
	}
}

// alignPadding returns the padding needed to bring pos up to the next
// HeaderAlignment boundary.
func alignPadding(pos int64) int64 {
	return (HeaderAlignment - (pos % HeaderAlignment)) % HeaderAlignment
}
