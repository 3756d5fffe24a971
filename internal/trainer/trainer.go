// Package trainer runs the training and evaluation loops and writes
// model artifacts into the job directory.
package trainer

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ericwkw/mnist-trainer/internal/autodiff"
	"github.com/ericwkw/mnist-trainer/internal/mnist"
	"github.com/ericwkw/mnist-trainer/internal/model"
	"github.com/ericwkw/mnist-trainer/internal/nn"
	"github.com/ericwkw/mnist-trainer/internal/optim"
	"github.com/ericwkw/mnist-trainer/internal/serialization"
	"github.com/ericwkw/mnist-trainer/internal/tensor"
)

// Optimizer names accepted in Config.
const (
	OptimizerSGD  = "sgd"
	OptimizerAdam = "adam"
)

// Config holds the training hyperparameters.
type Config struct {
	ModelType     string
	Epochs        int
	StepsPerEpoch int // 0 = one full pass over the training data
	BatchSize     int
	LearningRate  float32
	Optimizer     string
	JobDir        string
	Seed          int64
}

// applyDefaults fills zero-valued fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Epochs == 0 {
		c.Epochs = 10
	}
	if c.BatchSize == 0 {
		c.BatchSize = 100
	}
	if c.LearningRate == 0 {
		c.LearningRate = 0.001
	}
	if c.Optimizer == "" {
		c.Optimizer = OptimizerAdam
	}
	if c.Seed == 0 {
		c.Seed = 1
	}
}

// Trainer wires a model, an optimizer, and the loss over an
// autodiff-decorated backend.
type Trainer[B tensor.Backend] struct {
	backend   *autodiff.Backend[B]
	model     *nn.Sequential[*autodiff.Backend[B]]
	optimizer optim.Optimizer[*autodiff.Backend[B]]
	loss      *nn.CrossEntropyLoss[*autodiff.Backend[B]]
	cfg       Config
	log       *logrus.Logger
	rng       *rand.Rand
	step      int64
}

// New builds a trainer for cfg.ModelType on top of inner.
func New[B tensor.Backend](inner B, cfg Config, log *logrus.Logger) (*Trainer[B], error) {
	cfg.applyDefaults()
	if log == nil {
		log = logrus.StandardLogger()
	}

	backend := autodiff.New(inner)
	rng := rand.New(rand.NewSource(cfg.Seed))

	m, err := model.Build(cfg.ModelType, rng, backend)
	if err != nil {
		return nil, err
	}

	var optimizer optim.Optimizer[*autodiff.Backend[B]]
	switch cfg.Optimizer {
	case OptimizerSGD:
		optimizer = optim.NewSGD(m.Parameters(), optim.SGDConfig{LR: cfg.LearningRate})
	case OptimizerAdam:
		optimizer = optim.NewAdam(m.Parameters(), optim.AdamConfig{LR: cfg.LearningRate})
	default:
		return nil, fmt.Errorf("unknown optimizer %q, valid: %s, %s", cfg.Optimizer, OptimizerSGD, OptimizerAdam)
	}

	return &Trainer[B]{
		backend:   backend,
		model:     m,
		optimizer: optimizer,
		loss:      nn.NewCrossEntropyLoss(backend),
		cfg:       cfg,
		log:       log,
		rng:       rng,
	}, nil
}

// Model returns the underlying model.
func (t *Trainer[B]) Model() *nn.Sequential[*autodiff.Backend[B]] {
	return t.model
}

// Fit trains the model on train, validating on val after every epoch.
//
// When steps per epoch exceeds the number of batches, the loop cycles
// back through the data, reshuffling at each wrap. Checkpoints and the
// final artifact land in the job dir when one is configured.
func (t *Trainer[B]) Fit(ctx context.Context, train, val *mnist.Dataset) (*History, error) {
	if train.NumSamples() == 0 {
		return nil, fmt.Errorf("training dataset is empty")
	}
	if t.cfg.JobDir != "" {
		if err := os.MkdirAll(filepath.Join(t.cfg.JobDir, "checkpoints"), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create job dir: %w", err)
		}
	}

	history := &History{
		ModelType: t.cfg.ModelType,
		Optimizer: t.cfg.Optimizer,
		StartedAt: time.Now().UTC(),
	}

	t.log.WithFields(logrus.Fields{
		"model_type": t.cfg.ModelType,
		"epochs":     t.cfg.Epochs,
		"batch_size": t.cfg.BatchSize,
		"optimizer":  t.cfg.Optimizer,
		"lr":         t.cfg.LearningRate,
		"samples":    train.NumSamples(),
	}).Info("starting training")

	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		start := time.Now()

		trainLoss, trainAcc, steps, err := t.trainEpoch(ctx, train)
		if err != nil {
			return history, err
		}

		valLoss, valAcc := float32(0), float32(0)
		if val != nil && val.NumSamples() > 0 {
			valLoss, valAcc, err = t.Evaluate(ctx, val)
			if err != nil {
				return history, err
			}
		}

		stats := EpochStats{
			Epoch:         epoch,
			Steps:         steps,
			TrainLoss:     trainLoss,
			TrainAccuracy: trainAcc,
			ValLoss:       valLoss,
			ValAccuracy:   valAcc,
			Duration:      time.Since(start),
		}
		history.Epochs = append(history.Epochs, stats)

		t.log.WithFields(logrus.Fields{
			"epoch":      epoch,
			"steps":      steps,
			"train_loss": trainLoss,
			"train_acc":  trainAcc,
			"val_loss":   valLoss,
			"val_acc":    valAcc,
			"duration":   stats.Duration.Round(time.Millisecond).String(),
		}).Info("epoch complete")

		if t.cfg.JobDir != "" {
			path := filepath.Join(t.cfg.JobDir, "checkpoints", fmt.Sprintf("epoch-%03d.mnt", epoch))
			if err := t.saveCheckpoint(path, stats); err != nil {
				return history, fmt.Errorf("failed to save checkpoint: %w", err)
			}
		}
	}

	history.FinishedAt = time.Now().UTC()

	if t.cfg.JobDir != "" {
		if err := t.Export(filepath.Join(t.cfg.JobDir, "model.mnt")); err != nil {
			return history, err
		}
		if err := history.Save(filepath.Join(t.cfg.JobDir, "history.json")); err != nil {
			return history, err
		}
	}

	return history, nil
}

// trainEpoch runs one epoch of gradient steps over a fresh shuffle of
// the training data.
func (t *Trainer[B]) trainEpoch(ctx context.Context, train *mnist.Dataset) (avgLoss, accuracy float32, steps int, err error) {
	t.model.SetTraining(true)
	defer t.model.SetTraining(false)

	train.Shuffle(t.rng)
	batches, err := mnist.Batches(train, t.cfg.BatchSize, t.backend)
	if err != nil {
		return 0, 0, 0, err
	}

	target := t.cfg.StepsPerEpoch
	if target <= 0 {
		target = len(batches)
	}

	var totalLoss float32
	var correct, seen int

	idx := 0
	for step := 0; step < target; step++ {
		if err := ctx.Err(); err != nil {
			return 0, 0, step, err
		}

		// Cycle back through the data when steps per epoch
		// exceeds the batch count.
		if idx == len(batches) {
			train.Shuffle(t.rng)
			if batches, err = mnist.Batches(train, t.cfg.BatchSize, t.backend); err != nil {
				return 0, 0, step, err
			}
			idx = 0
		}
		batch := batches[idx]
		idx++

		loss, batchCorrect := t.trainStep(batch)
		totalLoss += loss
		correct += batchCorrect
		seen += batch.Size
		t.step++
	}

	return totalLoss / float32(target), float32(correct) / float32(seen), target, nil
}

// trainStep runs forward, backward, and one optimizer update for a
// single batch.
func (t *Trainer[B]) trainStep(batch *mnist.Batch[*autodiff.Backend[B]]) (loss float32, correct int) {
	tape := t.backend.Tape()
	tape.StartRecording()
	defer func() {
		tape.StopRecording()
		tape.Clear()
	}()

	logits := t.model.Forward(batch.Images)
	lossTensor := t.loss.Forward(logits, batch.Labels)
	loss = lossTensor.Raw().AsFloat32()[0]

	grads := tape.Backward(onesLike(lossTensor.Raw()), t.backend)
	t.optimizer.Step(grads)

	correct = countCorrect(logits.Raw(), batch.Labels.Raw())
	return loss, correct
}

// Evaluate computes loss and accuracy over a dataset without touching
// the tape or the weights.
func (t *Trainer[B]) Evaluate(ctx context.Context, ds *mnist.Dataset) (loss, accuracy float32, err error) {
	t.model.SetTraining(false)

	batches, err := mnist.Batches(ds, t.cfg.BatchSize, t.backend)
	if err != nil {
		return 0, 0, err
	}

	var totalLoss float32
	var correct, seen int
	for _, batch := range batches {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}

		logits := t.model.Forward(batch.Images)
		lossTensor := t.loss.Forward(logits, batch.Labels)
		totalLoss += lossTensor.Raw().AsFloat32()[0] * float32(batch.Size)
		correct += countCorrect(logits.Raw(), batch.Labels.Raw())
		seen += batch.Size
	}

	return totalLoss / float32(seen), float32(correct) / float32(seen), nil
}

// Export writes the trained weights to path.
func (t *Trainer[B]) Export(path string) error {
	header := serialization.Header{
		ModelType: t.cfg.ModelType,
		Metadata: map[string]string{
			"optimizer": t.cfg.Optimizer,
		},
	}
	if err := serialization.Save(path, model.StateDict(t.model), header); err != nil {
		return fmt.Errorf("failed to export model: %w", err)
	}
	t.log.WithField("path", path).Info("model exported")
	return nil
}

func (t *Trainer[B]) saveCheckpoint(path string, stats EpochStats) error {
	header := serialization.Header{
		ModelType: t.cfg.ModelType,
		CheckpointMeta: &serialization.CheckpointMeta{
			Epoch:         stats.Epoch,
			Step:          t.step,
			TrainLoss:     float64(stats.TrainLoss),
			ValLoss:       float64(stats.ValLoss),
			ValAccuracy:   float64(stats.ValAccuracy),
			OptimizerType: t.cfg.Optimizer,
			LearningRate:  float64(t.cfg.LearningRate),
			StepsPerEpoch: t.cfg.StepsPerEpoch,
			BatchSize:     t.cfg.BatchSize,
		},
	}
	return serialization.Save(path, model.StateDict(t.model), header)
}

// onesLike builds a gradient seed tensor matching raw's shape.
func onesLike(raw *tensor.RawTensor) *tensor.RawTensor {
	seed, err := tensor.NewRaw(raw.Shape(), raw.DType())
	if err != nil {
		panic(err)
	}
	data := seed.AsFloat32()
	for i := range data {
		data[i] = 1
	}
	return seed
}

// countCorrect counts rows whose argmax matches the target label.
func countCorrect(logits, targets *tensor.RawTensor) int {
	shape := logits.Shape()
	batch, classes := shape[0], shape[1]
	data := logits.AsFloat32()
	labels := targets.AsInt32()

	correct := 0
	for b := 0; b < batch; b++ {
		row := data[b*classes : (b+1)*classes]
		best := 0
		for i := 1; i < classes; i++ {
			if row[i] > row[best] {
				best = i
			}
		}
		if int32(best) == labels[b] {
			correct++
		}
	}
	return correct
}
