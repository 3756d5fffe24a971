package mnist_test

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ericwkw/mnist-trainer/internal/backend/cpu"
	"github.com/ericwkw/mnist-trainer/internal/mnist"
	"github.com/ericwkw/mnist-trainer/internal/tensor"
)

// encodeIDXImages builds an IDX image stream for tests.
func encodeIDXImages(t *testing.T, magic uint32, images [][]byte, rows, cols int) []byte {
	t.Helper()

	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, magic)
	binary.Write(&buf, binary.BigEndian, uint32(len(images)))
	binary.Write(&buf, binary.BigEndian, uint32(rows))
	binary.Write(&buf, binary.BigEndian, uint32(cols))
	for _, img := range images {
		buf.Write(img)
	}
	return buf.Bytes()
}

func encodeIDXLabels(t *testing.T, magic uint32, labels []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, magic)
	binary.Write(&buf, binary.BigEndian, uint32(len(labels)))
	buf.Write(labels)
	return buf.Bytes()
}

func TestDecodeIDXImages(t *testing.T) {
	images := [][]byte{
		{0, 128, 255, 64},
		{1, 2, 3, 4},
	}
	data := encodeIDXImages(t, 2051, images, 2, 2)

	got, err := mnist.DecodeIDXImages(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("DecodeIDXImages: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d images, want 2", len(got))
	}
	if !bytes.Equal(got[0], images[0]) || !bytes.Equal(got[1], images[1]) {
		t.Errorf("decoded images differ: got %v, want %v", got, images)
	}
}

func TestDecodeIDXImagesBadMagic(t *testing.T) {
	data := encodeIDXImages(t, 2049, [][]byte{{1}}, 1, 1)

	_, err := mnist.DecodeIDXImages(bytes.NewReader(data))
	if err == nil {
		t.Fatal("expected error for wrong magic number")
	}
	if !strings.Contains(err.Error(), "invalid magic number") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDecodeIDXImagesTruncated(t *testing.T) {
	data := encodeIDXImages(t, 2051, [][]byte{{1, 2, 3, 4}}, 2, 2)

	_, err := mnist.DecodeIDXImages(bytes.NewReader(data[:len(data)-2]))
	if err == nil {
		t.Fatal("expected error for truncated stream")
	}
}

func TestDecodeIDXLabels(t *testing.T) {
	data := encodeIDXLabels(t, 2049, []byte{5, 0, 4, 1})

	got, err := mnist.DecodeIDXLabels(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("DecodeIDXLabels: %v", err)
	}
	if !bytes.Equal(got, []byte{5, 0, 4, 1}) {
		t.Errorf("got %v, want [5 0 4 1]", got)
	}
}

func TestDecodeIDXLabelsBadMagic(t *testing.T) {
	data := encodeIDXLabels(t, 2051, []byte{5})

	if _, err := mnist.DecodeIDXLabels(bytes.NewReader(data)); err == nil {
		t.Fatal("expected error for wrong magic number")
	}
}

func TestReadIDXImagesGzip(t *testing.T) {
	images := [][]byte{{10, 20, 30, 40}}
	data := encodeIDXImages(t, 2051, images, 2, 2)

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	gz.Write(data)
	gz.Close()

	path := filepath.Join(t.TempDir(), "images-idx3-ubyte.gz")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := mnist.ReadIDXImages(path)
	if err != nil {
		t.Fatalf("ReadIDXImages: %v", err)
	}
	if len(got) != 1 || !bytes.Equal(got[0], images[0]) {
		t.Errorf("got %v, want %v", got, images)
	}
}

// writeDataset writes a tiny IDX train split into dir.
func writeDataset(t *testing.T, dir string, numSamples int) {
	t.Helper()

	images := make([][]byte, numSamples)
	labels := make([]byte, numSamples)
	for i := range images {
		images[i] = make([]byte, mnist.ImageSize)
		images[i][0] = byte(255)
		labels[i] = byte(i % 10)
	}

	imgPath := filepath.Join(dir, "train-images-idx3-ubyte")
	lblPath := filepath.Join(dir, "train-labels-idx1-ubyte")
	if err := os.WriteFile(imgPath, encodeIDXImages(t, 2051, images, 28, 28), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(lblPath, encodeIDXLabels(t, 2049, labels), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir, 12)

	ds, err := mnist.Load(dir, true, 0)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ds.NumSamples() != 12 {
		t.Fatalf("got %d samples, want 12", ds.NumSamples())
	}
	if ds.Images[0][0] != 1.0 {
		t.Errorf("pixel 255 should normalize to 1.0, got %v", ds.Images[0][0])
	}
	if ds.Images[0][1] != 0.0 {
		t.Errorf("pixel 0 should normalize to 0.0, got %v", ds.Images[0][1])
	}
	if ds.Labels[3] != 3 {
		t.Errorf("got label %d, want 3", ds.Labels[3])
	}
}

func TestLoadMaxSamples(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir, 12)

	ds, err := mnist.Load(dir, true, 5)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ds.NumSamples() != 5 {
		t.Errorf("got %d samples, want 5", ds.NumSamples())
	}
}

func TestLoadMissingFiles(t *testing.T) {
	if _, err := mnist.Load(t.TempDir(), true, 0); err == nil {
		t.Fatal("expected error for missing files")
	}
}

func TestSplit(t *testing.T) {
	ds := mnist.Synthetic(100, nil)
	train, val := ds.Split(0.2)

	if train.NumSamples() != 80 {
		t.Errorf("train: got %d samples, want 80", train.NumSamples())
	}
	if val.NumSamples() != 20 {
		t.Errorf("validation: got %d samples, want 20", val.NumSamples())
	}
}

func TestShuffleDeterministic(t *testing.T) {
	a := mnist.Synthetic(50, nil)
	b := mnist.Synthetic(50, nil)

	a.Shuffle(rand.New(rand.NewSource(7)))
	b.Shuffle(rand.New(rand.NewSource(7)))

	for i := range a.Labels {
		if a.Labels[i] != b.Labels[i] {
			t.Fatalf("same seed produced different orders at %d: %d vs %d", i, a.Labels[i], b.Labels[i])
		}
	}
}

func TestShuffleKeepsPairs(t *testing.T) {
	ds := mnist.Synthetic(30, nil)

	// Tag each image so the label can be recovered after shuffling.
	for i := range ds.Images {
		ds.Images[i][0] = float32(ds.Labels[i])
	}

	ds.Shuffle(rand.New(rand.NewSource(1)))

	for i := range ds.Images {
		if int32(ds.Images[i][0]) != ds.Labels[i] {
			t.Fatalf("image/label pairing broken at %d", i)
		}
	}
}

func TestBatches(t *testing.T) {
	backend := cpu.New()
	ds := mnist.Synthetic(10, nil)

	batches, err := mnist.Batches(ds, 4, backend)
	if err != nil {
		t.Fatalf("Batches: %v", err)
	}
	if len(batches) != 3 {
		t.Fatalf("got %d batches, want 3", len(batches))
	}

	wantShape := tensor.Shape{4, 1, 28, 28}
	if !batches[0].Images.Shape().Equal(wantShape) {
		t.Errorf("batch images shape: got %v, want %v", batches[0].Images.Shape(), wantShape)
	}
	if !batches[0].Labels.Shape().Equal(tensor.Shape{4}) {
		t.Errorf("batch labels shape: got %v, want [4]", batches[0].Labels.Shape())
	}
	if batches[2].Size != 2 {
		t.Errorf("last batch size: got %d, want 2", batches[2].Size)
	}

	// Order is preserved when the caller does not shuffle.
	labels := batches[0].Labels.Raw().AsInt32()
	for i, want := range []int32{0, 1, 2, 3} {
		if labels[i] != want {
			t.Errorf("label %d: got %d, want %d", i, labels[i], want)
		}
	}
}

func TestBatchesInvalidSize(t *testing.T) {
	backend := cpu.New()
	ds := mnist.Synthetic(10, nil)

	if _, err := mnist.Batches(ds, 0, backend); err == nil {
		t.Fatal("expected error for batch size 0")
	}
}

func TestSynthetic(t *testing.T) {
	ds := mnist.Synthetic(20, rand.New(rand.NewSource(3)))

	if ds.NumSamples() != 20 {
		t.Fatalf("got %d samples, want 20", ds.NumSamples())
	}
	for i, lbl := range ds.Labels {
		if lbl != int32(i%10) {
			t.Errorf("label %d: got %d, want %d", i, lbl, i%10)
		}
		if len(ds.Images[i]) != mnist.ImageSize {
			t.Errorf("image %d has %d pixels", i, len(ds.Images[i]))
		}
	}
}
