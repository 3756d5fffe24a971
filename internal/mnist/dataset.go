package mnist

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/ericwkw/mnist-trainer/internal/tensor"
)

// Image dimensions of the MNIST dataset.
const (
	ImageRows   = 28
	ImageCols   = 28
	ImageSize   = ImageRows * ImageCols
	NumClasses  = 10
	trainImages = "train-images-idx3-ubyte"
	trainLabels = "train-labels-idx1-ubyte"
	testImages  = "t10k-images-idx3-ubyte"
	testLabels  = "t10k-labels-idx1-ubyte"
)

// Dataset holds MNIST images and labels.
//
// Images are stored flat as [num_samples][784]float32 with pixel values
// normalized to the [0, 1] range. Labels are digit classes 0-9.
type Dataset struct {
	Images [][]float32
	Labels []int32
}

// Load loads the MNIST train or test split from dataDir.
//
// Expected files in dataDir (optionally gzip-compressed with a .gz suffix):
//   - train-images-idx3-ubyte, train-labels-idx1-ubyte
//   - t10k-images-idx3-ubyte, t10k-labels-idx1-ubyte
//
// maxSamples limits the number of loaded samples (0 = load all).
func Load(dataDir string, train bool, maxSamples int) (*Dataset, error) {
	var imageFile, labelFile string
	if train {
		imageFile = resolveFile(dataDir, trainImages)
		labelFile = resolveFile(dataDir, trainLabels)
	} else {
		imageFile = resolveFile(dataDir, testImages)
		labelFile = resolveFile(dataDir, testLabels)
	}

	imagesRaw, err := ReadIDXImages(imageFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load images: %w", err)
	}

	labelsRaw, err := ReadIDXLabels(labelFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load labels: %w", err)
	}

	if len(imagesRaw) != len(labelsRaw) {
		return nil, fmt.Errorf("image count (%d) != label count (%d)", len(imagesRaw), len(labelsRaw))
	}

	numSamples := len(imagesRaw)
	if maxSamples > 0 && numSamples > maxSamples {
		numSamples = maxSamples
	}

	images := make([][]float32, numSamples)
	labels := make([]int32, numSamples)

	for i := 0; i < numSamples; i++ {
		if len(imagesRaw[i]) != ImageSize {
			return nil, fmt.Errorf("image %d has %d pixels, want %d", i, len(imagesRaw[i]), ImageSize)
		}
		images[i] = make([]float32, ImageSize)
		for j := 0; j < ImageSize; j++ {
			images[i][j] = float32(imagesRaw[i][j]) / 255.0
		}
		labels[i] = int32(labelsRaw[i])
	}

	return &Dataset{Images: images, Labels: labels}, nil
}

// resolveFile prefers the uncompressed file and falls back to the .gz
// variant the downloader writes.
func resolveFile(dataDir, name string) string {
	plain := filepath.Join(dataDir, name)
	if _, err := os.Stat(plain); err == nil {
		return plain
	}
	return plain + ".gz"
}

// NumSamples returns the total number of samples in the dataset.
func (d *Dataset) NumSamples() int {
	return len(d.Images)
}

// Split splits the dataset into train and validation sets.
//
// validationRatio is the fraction of samples held out for validation,
// taken from the end of the dataset.
func (d *Dataset) Split(validationRatio float32) (*Dataset, *Dataset) {
	numSamples := d.NumSamples()
	splitIdx := int(float32(numSamples) * (1.0 - validationRatio))

	return &Dataset{
			Images: d.Images[:splitIdx],
			Labels: d.Labels[:splitIdx],
		}, &Dataset{
			Images: d.Images[splitIdx:],
			Labels: d.Labels[splitIdx:],
		}
}

// Shuffle permutes the dataset in place using the given source of
// randomness. Passing a seeded rand.Rand makes epochs reproducible.
func (d *Dataset) Shuffle(rng *rand.Rand) {
	rng.Shuffle(d.NumSamples(), func(i, j int) {
		d.Images[i], d.Images[j] = d.Images[j], d.Images[i]
		d.Labels[i], d.Labels[j] = d.Labels[j], d.Labels[i]
	})
}

// Batch represents a mini-batch for training or evaluation.
//
// Images carries shape [batch, 1, 28, 28] so convolutional models can
// consume it directly; dense models flatten it themselves.
type Batch[B tensor.Backend] struct {
	Images *tensor.Tensor[float32, B]
	Labels *tensor.Tensor[int32, B]
	Size   int
}

// Batches splits the dataset into mini-batches on the given backend.
//
// The last batch may be smaller when the sample count does not divide
// evenly. Shuffling is the caller's job (see Shuffle); batching itself
// preserves order.
func Batches[B tensor.Backend](d *Dataset, batchSize int, backend B) ([]*Batch[B], error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	numSamples := d.NumSamples()
	if numSamples != len(d.Labels) {
		return nil, fmt.Errorf("images and labels length mismatch: %d != %d", numSamples, len(d.Labels))
	}

	numBatches := (numSamples + batchSize - 1) / batchSize
	batches := make([]*Batch[B], 0, numBatches)

	for start := 0; start < numSamples; start += batchSize {
		end := start + batchSize
		if end > numSamples {
			end = numSamples
		}
		size := end - start

		imagesRaw, err := tensor.NewRaw(tensor.Shape{size, 1, ImageRows, ImageCols}, tensor.Float32)
		if err != nil {
			return nil, fmt.Errorf("failed to create images tensor: %w", err)
		}
		labelsRaw, err := tensor.NewRaw(tensor.Shape{size}, tensor.Int32)
		if err != nil {
			return nil, fmt.Errorf("failed to create labels tensor: %w", err)
		}

		imagesData := imagesRaw.AsFloat32()
		labelsData := labelsRaw.AsInt32()
		for i := start; i < end; i++ {
			copy(imagesData[(i-start)*ImageSize:(i-start+1)*ImageSize], d.Images[i])
			labelsData[i-start] = d.Labels[i]
		}

		batches = append(batches, &Batch[B]{
			Images: tensor.New[float32, B](imagesRaw, backend),
			Labels: tensor.New[int32, B](labelsRaw, backend),
			Size:   size,
		})
	}

	return batches, nil
}

// Synthetic creates a small synthetic dataset for tests and offline
// smoke runs.
//
// Each class gets numSamples/10 samples with a bright horizontal band
// whose position encodes the digit. The patterns are linearly separable
// but are not real MNIST data.
func Synthetic(numSamples int, rng *rand.Rand) *Dataset {
	images := make([][]float32, numSamples)
	labels := make([]int32, numSamples)

	for i := 0; i < numSamples; i++ {
		label := int32(i % NumClasses)
		images[i] = make([]float32, ImageSize)
		labels[i] = label

		startRow := int(label) * 2
		for row := startRow; row < startRow+8 && row < ImageRows; row++ {
			for col := 5; col < 23; col++ {
				v := float32(0.8)
				if rng != nil {
					v += rng.Float32()*0.2 - 0.1
				}
				images[i][row*ImageCols+col] = v
			}
		}
	}

	return &Dataset{Images: images, Labels: labels}
}
