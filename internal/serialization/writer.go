package serialization

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/ericwkw/mnist-trainer/internal/tensor"
)

// Writer writes model artifacts.
type Writer struct {
	file   *os.File
	closed bool
}

// NewWriter creates a writer targeting path, truncating any existing
// file.
func NewWriter(path string) (*Writer, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	return &Writer{file: file}, nil
}

// WriteStateDict writes a state dictionary with the given header.
//
// Tensor names are sorted so the same state dict always produces a
// byte-identical file. The header's tensor table and timestamps are
// filled in here; callers only set model type, metadata, and optional
// checkpoint info.
func (w *Writer) WriteStateDict(stateDict map[string]*tensor.RawTensor, header Header) error {
	if w.closed {
		return fmt.Errorf("writer is closed")
	}

	names := make([]string, 0, len(stateDict))
	for name := range stateDict {
		names = append(names, name)
	}
	sort.Strings(names)

	header.FormatVersion = FormatVersion
	if header.CreatedAt.IsZero() {
		header.CreatedAt = time.Now().UTC()
	}
	header.Tensors = make([]TensorMeta, 0, len(names))

	var offset int64
	for _, name := range names {
		raw := stateDict[name]
		size := int64(raw.NumElements() * raw.DType().Size())
		header.Tensors = append(header.Tensors, TensorMeta{
			Name:   name,
			DType:  dtypeToString(raw.DType()),
			Shape:  []int(raw.Shape()),
			Offset: offset,
			Size:   size,
		})
		offset += size
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if len(headerJSON) > MaxHeaderSize {
		return ErrHeaderTooLarge
	}

	var flags uint32
	if len(header.Metadata) > 0 {
		flags |= FlagHasMetadata
	}
	if header.CheckpointMeta != nil {
		flags |= FlagHasCheckpoint
	}

	// Fixed prefix with a zero checksum placeholder.
	if _, err := w.file.WriteString(MagicBytes); err != nil {
		return fmt.Errorf("failed to write magic bytes: %w", err)
	}
	if err := binary.Write(w.file, binary.LittleEndian, uint32(FormatVersion)); err != nil {
		return fmt.Errorf("failed to write version: %w", err)
	}
	if err := binary.Write(w.file, binary.LittleEndian, flags); err != nil {
		return fmt.Errorf("failed to write flags: %w", err)
	}
	if err := binary.Write(w.file, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := w.file.Write(make([]byte, ChecksumSize)); err != nil {
		return fmt.Errorf("failed to write checksum placeholder: %w", err)
	}

	if _, err := w.file.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	pos := int64(fixedPrefixSize) + int64(len(headerJSON))
	if padding := alignPadding(pos); padding > 0 {
		if _, err := w.file.Write(make([]byte, padding)); err != nil {
			return fmt.Errorf("failed to write padding: %w", err)
		}
	}

	// Stream tensor data through the hasher.
	hasher := sha256.New()
	out := io.MultiWriter(w.file, hasher)
	for _, name := range names {
		if _, err := out.Write(stateDict[name].Data()); err != nil {
			return fmt.Errorf("failed to write tensor %s: %w", name, err)
		}
	}

	// Patch the checksum into the fixed prefix.
	if _, err := w.file.WriteAt(hasher.Sum(nil), ChecksumOffset); err != nil {
		return fmt.Errorf("failed to write checksum: %w", err)
	}

	return nil
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}

// Save writes a state dictionary to path in one call.
func Save(path string, stateDict map[string]*tensor.RawTensor, header Header) error {
	w, err := NewWriter(path)
	if err != nil {
		return err
	}
	if err := w.WriteStateDict(stateDict, header); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
