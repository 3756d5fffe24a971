package mnist

import (
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"
)

// IDX magic numbers for the two MNIST file kinds.
const (
	imageMagic = 2051
	labelMagic = 2049
)

// ReadIDXImages reads an MNIST image file in IDX format.
//
// IDX file format for images:
//
//	magic number: 0x00000803 (2051)
//	number of images: 4 bytes
//	number of rows: 4 bytes (28)
//	number of cols: 4 bytes (28)
//	pixel data: unsigned bytes (0-255)
//
// Files ending in .gz are transparently decompressed.
func ReadIDXImages(filename string) ([][]byte, error) {
	r, closeFn, err := openIDX(filename)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	return DecodeIDXImages(r)
}

// DecodeIDXImages reads IDX image data from an already-open stream.
func DecodeIDXImages(r io.Reader) ([][]byte, error) {
	var magic uint32
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return nil, fmt.Errorf("failed to read magic: %w", err)
	}
	if magic != imageMagic {
		return nil, fmt.Errorf("invalid magic number: got %d, want %d", magic, imageMagic)
	}

	var numImages, numRows, numCols uint32
	if err := binary.Read(r, binary.BigEndian, &numImages); err != nil {
		return nil, fmt.Errorf("failed to read image count: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &numRows); err != nil {
		return nil, fmt.Errorf("failed to read row count: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &numCols); err != nil {
		return nil, fmt.Errorf("failed to read column count: %w", err)
	}

	imageSize := int(numRows * numCols)
	images := make([][]byte, numImages)

	for i := range images {
		images[i] = make([]byte, imageSize)
		if _, err := io.ReadFull(r, images[i]); err != nil {
			return nil, fmt.Errorf("failed to read image %d: %w", i, err)
		}
	}

	return images, nil
}

// ReadIDXLabels reads an MNIST label file in IDX format.
//
// IDX file format for labels:
//
//	magic number: 0x00000801 (2049)
//	number of labels: 4 bytes
//	label data: unsigned bytes (0-9)
//
// Files ending in .gz are transparently decompressed.
func ReadIDXLabels(filename string) ([]byte, error) {
	r, closeFn, err := openIDX(filename)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	return DecodeIDXLabels(r)
}

// DecodeIDXLabels reads IDX label data from an already-open stream.
func DecodeIDXLabels(r io.Reader) ([]byte, error) {
	var magic uint32
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return nil, fmt.Errorf("failed to read magic: %w", err)
	}
	if magic != labelMagic {
		return nil, fmt.Errorf("invalid magic number: got %d, want %d", magic, labelMagic)
	}

	var numLabels uint32
	if err := binary.Read(r, binary.BigEndian, &numLabels); err != nil {
		return nil, fmt.Errorf("failed to read label count: %w", err)
	}

	labels := make([]byte, numLabels)
	if _, err := io.ReadFull(r, labels); err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}

	return labels, nil
}

// openIDX opens an IDX file, wrapping it in a gzip reader when the
// filename carries a .gz suffix.
func openIDX(filename string) (io.Reader, func(), error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, nil, err
	}

	if !strings.HasSuffix(filename, ".gz") {
		return file, func() { file.Close() }, nil
	}

	gz, err := gzip.NewReader(file)
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("failed to open gzip stream: %w", err)
	}

	return gz, func() {
		gz.Close()
		file.Close()
	}, nil
}
