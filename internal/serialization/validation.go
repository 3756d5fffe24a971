package serialization

import (
	"fmt"
	"sort"
)

// Validation limits protecting the reader from hostile files.
const (
	MaxHeaderSize    = 100 * 1024 * 1024
	MaxTensorCount   = 100_000
	MaxTensorNameLen = 4096
)

// ValidateHeader checks the tensor table of a parsed header against
// the size of the file's data section.
func ValidateHeader(h *Header, dataSize int64) error {
	if len(h.Tensors) > MaxTensorCount {
		return &ValidationError{
			Err:     ErrOutOfBounds,
			Details: fmt.Sprintf("got %d tensors, max %d", len(h.Tensors), MaxTensorCount),
		}
	}

	for _, t := range h.Tensors {
		if len(t.Name) == 0 || len(t.Name) > MaxTensorNameLen {
			return &ValidationError{
				Err:     ErrInvalidTensorName,
				Tensor:  t.Name,
				Details: fmt.Sprintf("tensor name length %d out of range", len(t.Name)),
			}
		}
		if t.Offset < 0 || t.Size < 0 {
			return &ValidationError{
				Err:     ErrNegativeOffset,
				Tensor:  t.Name,
				Details: fmt.Sprintf("offset=%d, size=%d", t.Offset, t.Size),
			}
		}
		if t.Offset+t.Size > dataSize {
			return &ValidationError{
				Err:     ErrOutOfBounds,
				Tensor:  t.Name,
				Details: fmt.Sprintf("offset %d + size %d > data size %d", t.Offset, t.Size, dataSize),
			}
		}

		dt, ok := stringToDtype(t.DType)
		if !ok {
			return &ValidationError{
				Err:     ErrUnknownDType,
				Tensor:  t.Name,
				Details: fmt.Sprintf("dtype %q", t.DType),
			}
		}
		elems := int64(1)
		for _, dim := range t.Shape {
			if dim < 0 {
				return &ValidationError{
					Err:     ErrSizeMismatch,
					Tensor:  t.Name,
					Details: fmt.Sprintf("negative dimension %d", dim),
				}
			}
			elems *= int64(dim)
		}
		if elems*int64(dt.Size()) != t.Size {
			return &ValidationError{
				Err:     ErrSizeMismatch,
				Tensor:  t.Name,
				Details: fmt.Sprintf("shape %v with dtype %s needs %d bytes, header says %d", t.Shape, t.DType, elems*int64(dt.Size()), t.Size),
			}
		}
	}

	return validateOffsets(h.Tensors)
}

// validateOffsets rejects overlapping tensor regions.
func validateOffsets(tensors []TensorMeta) error {
	sorted := make([]TensorMeta, len(tensors))
	copy(sorted, tensors)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Offset < sorted[j].Offset
	})

	for i := 0; i < len(sorted)-1; i++ {
		cur, next := sorted[i], sorted[i+1]
		if cur.Offset+cur.Size > next.Offset {
			return &ValidationError{
				Err:     ErrOffsetOverlap,
				Tensor:  cur.Name,
				Tensor2: next.Name,
				Details: fmt.Sprintf("regions [%d-%d] and [%d-%d] overlap",
					cur.Offset, cur.Offset+cur.Size, next.Offset, next.Offset+next.Size),
			}
		}
	}
	return nil
}
