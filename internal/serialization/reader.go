package serialization

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ericwkw/mnist-trainer/internal/tensor"
)

// Reader reads and validates model artifacts.
type Reader struct {
	file       *os.File
	header     Header
	flags      uint32
	checksum   [ChecksumSize]byte
	dataOffset int64
	dataSize   int64
	closed     bool
}

// NewReader opens an artifact, parses its header, validates the tensor
// table, and verifies the data checksum.
func NewReader(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	r := &Reader{file: file}
	if err := r.parseHeader(); err != nil {
		file.Close()
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	r.dataSize = info.Size() - r.dataOffset

	if err := ValidateHeader(&r.header, r.dataSize); err != nil {
		file.Close()
		return nil, err
	}
	if err := r.verifyChecksum(); err != nil {
		file.Close()
		return nil, err
	}

	return r, nil
}

func (r *Reader) parseHeader() error {
	prefix := make([]byte, fixedPrefixSize)
	if _, err := io.ReadFull(r.file, prefix); err != nil {
		return fmt.Errorf("failed to read fixed prefix: %w", err)
	}

	if string(prefix[:4]) != MagicBytes {
		return ErrInvalidMagic
	}

	version := binary.LittleEndian.Uint32(prefix[4:8])
	if version != FormatVersion {
		return fmt.Errorf("%w: got %d, want %d", ErrUnsupportedVersion, version, FormatVersion)
	}

	r.flags = binary.LittleEndian.Uint32(prefix[8:12])
	headerSize := binary.LittleEndian.Uint64(prefix[12:20])
	copy(r.checksum[:], prefix[ChecksumOffset:ChecksumOffset+ChecksumSize])

	if headerSize > MaxHeaderSize {
		return ErrHeaderTooLarge
	}

	headerJSON := make([]byte, headerSize)
	if _, err := io.ReadFull(r.file, headerJSON); err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}
	if err := json.Unmarshal(headerJSON, &r.header); err != nil {
		return fmt.Errorf("failed to parse header JSON: %w", err)
	}

	pos := int64(fixedPrefixSize) + int64(headerSize)
	r.dataOffset = pos + alignPadding(pos)
	return nil
}

func (r *Reader) verifyChecksum() error {
	if _, err := r.file.Seek(r.dataOffset, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to data section: %w", err)
	}
	computed, err := ComputeChecksumReader(r.file)
	if err != nil {
		return fmt.Errorf("failed to hash data section: %w", err)
	}
	return ValidateChecksum(computed, r.checksum)
}

// Header returns the parsed artifact header.
func (r *Reader) Header() Header {
	return r.header
}

// ModelType returns the model type recorded in the header.
func (r *Reader) ModelType() string {
	return r.header.ModelType
}

// TensorNames lists the tensors in header order.
func (r *Reader) TensorNames() []string {
	names := make([]string, len(r.header.Tensors))
	for i, t := range r.header.Tensors {
		names[i] = t.Name
	}
	return names
}

// ReadTensor reads one tensor by name.
func (r *Reader) ReadTensor(name string) (*tensor.RawTensor, error) {
	if r.closed {
		return nil, fmt.Errorf("reader is closed")
	}

	for _, meta := range r.header.Tensors {
		if meta.Name != name {
			continue
		}
		return r.readTensor(meta)
	}
	return nil, fmt.Errorf("%w: %q", ErrTensorNotFound, name)
}

// ReadStateDict reads all tensors into a state dictionary.
func (r *Reader) ReadStateDict() (map[string]*tensor.RawTensor, error) {
	if r.closed {
		return nil, fmt.Errorf("reader is closed")
	}

	stateDict := make(map[string]*tensor.RawTensor, len(r.header.Tensors))
	for _, meta := range r.header.Tensors {
		raw, err := r.readTensor(meta)
		if err != nil {
			return nil, err
		}
		stateDict[meta.Name] = raw
	}
	return stateDict, nil
}

func (r *Reader) readTensor(meta TensorMeta) (*tensor.RawTensor, error) {
	dt, ok := stringToDtype(meta.DType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDType, meta.DType)
	}

	raw, err := tensor.NewRaw(tensor.Shape(meta.Shape), dt)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate tensor %s: %w", meta.Name, err)
	}

	if _, err := r.file.ReadAt(raw.Data(), r.dataOffset+meta.Offset); err != nil {
		return nil, fmt.Errorf("failed to read tensor %s: %w", meta.Name, err)
	}
	return raw, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.file.Close()
}

// Load reads an artifact's header and full state dictionary in one
// call.
func Load(path string) (Header, map[string]*tensor.RawTensor, error) {
	r, err := NewReader(path)
	if err != nil {
		return Header{}, nil, err
	}
	defer r.Close()

	stateDict, err := r.ReadStateDict()
	if err != nil {
		return Header{}, nil, err
	}
	return r.Header(), stateDict, nil
}
