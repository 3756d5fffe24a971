package trainer_test

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/ericwkw/mnist-trainer/internal/backend/cpu"
	"github.com/ericwkw/mnist-trainer/internal/mnist"
	"github.com/ericwkw/mnist-trainer/internal/model"
	"github.com/ericwkw/mnist-trainer/internal/nn"
	"github.com/ericwkw/mnist-trainer/internal/serialization"
	"github.com/ericwkw/mnist-trainer/internal/tensor"
	"github.com/ericwkw/mnist-trainer/internal/trainer"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestNewUnknownModelType(t *testing.T) {
	_, err := trainer.New(cpu.New(), trainer.Config{ModelType: "vgg"}, quietLogger())
	if err == nil {
		t.Fatal("expected error for unknown model type")
	}
}

func TestNewUnknownOptimizer(t *testing.T) {
	cfg := trainer.Config{ModelType: model.TypeLinear, Optimizer: "rmsprop"}
	_, err := trainer.New(cpu.New(), cfg, quietLogger())
	if err == nil {
		t.Fatal("expected error for unknown optimizer")
	}
}

func TestFitLearnsSyntheticData(t *testing.T) {
	ds := mnist.Synthetic(60, nil)
	train, val := ds.Split(0.2)

	jobDir := t.TempDir()
	cfg := trainer.Config{
		ModelType:    model.TypeLinear,
		Epochs:       5,
		BatchSize:    12,
		LearningRate: 0.01,
		JobDir:       jobDir,
		Seed:         42,
	}

	tr, err := trainer.New(cpu.New(), cfg, quietLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	history, err := tr.Fit(context.Background(), train, val)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}

	if len(history.Epochs) != 5 {
		t.Fatalf("got %d epoch records, want 5", len(history.Epochs))
	}
	first := history.Epochs[0]
	last := history.Epochs[len(history.Epochs)-1]
	if last.TrainLoss >= first.TrainLoss {
		t.Errorf("loss did not decrease: first %v, last %v", first.TrainLoss, last.TrainLoss)
	}

	// Job dir artifacts.
	if _, err := os.Stat(filepath.Join(jobDir, "model.mnt")); err != nil {
		t.Errorf("final model artifact missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(jobDir, "history.json")); err != nil {
		t.Errorf("history.json missing: %v", err)
	}
	for epoch := 1; epoch <= 5; epoch++ {
		path := filepath.Join(jobDir, "checkpoints", fmt.Sprintf("epoch-%03d.mnt", epoch))
		if _, err := os.Stat(path); err != nil {
			t.Errorf("checkpoint for epoch %d missing: %v", epoch, err)
		}
	}
}

func TestFitAllModelTypes(t *testing.T) {
	for _, modelType := range model.Types() {
		t.Run(modelType, func(t *testing.T) {
			ds := mnist.Synthetic(8, nil)

			cfg := trainer.Config{
				ModelType:    modelType,
				Epochs:       2,
				BatchSize:    4,
				LearningRate: 0.005,
				Seed:         7,
			}
			tr, err := trainer.New(cpu.New(), cfg, quietLogger())
			if err != nil {
				t.Fatalf("New: %v", err)
			}

			history, err := tr.Fit(context.Background(), ds, nil)
			if err != nil {
				t.Fatalf("Fit: %v", err)
			}
			if len(history.Epochs) != 2 {
				t.Fatalf("got %d epoch records, want 2", len(history.Epochs))
			}
			for _, e := range history.Epochs {
				if math.IsNaN(float64(e.TrainLoss)) || math.IsInf(float64(e.TrainLoss), 0) {
					t.Errorf("epoch %d loss not finite: %v", e.Epoch, e.TrainLoss)
				}
			}
		})
	}
}

func TestStepsPerEpochCycles(t *testing.T) {
	ds := mnist.Synthetic(20, nil)

	cfg := trainer.Config{
		ModelType:     model.TypeLinear,
		Epochs:        1,
		StepsPerEpoch: 7, // 20 samples / 10 per batch = 2 batches, so the loop must wrap
		BatchSize:     10,
		Seed:          1,
	}

	tr, err := trainer.New(cpu.New(), cfg, quietLogger())
	if err != nil {
		t.Fatal(err)
	}

	history, err := tr.Fit(context.Background(), ds, nil)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if got := history.Epochs[0].Steps; got != 7 {
		t.Errorf("got %d steps, want 7", got)
	}
}

func TestFitCancellation(t *testing.T) {
	ds := mnist.Synthetic(40, nil)

	cfg := trainer.Config{
		ModelType: model.TypeLinear,
		Epochs:    100,
		BatchSize: 10,
		Seed:      1,
	}
	tr, err := trainer.New(cpu.New(), cfg, quietLogger())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := tr.Fit(ctx, ds, nil); err != context.Canceled {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestFitEmptyDataset(t *testing.T) {
	tr, err := trainer.New(cpu.New(), trainer.Config{ModelType: model.TypeLinear}, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Fit(context.Background(), &mnist.Dataset{}, nil); err == nil {
		t.Fatal("expected error for empty dataset")
	}
}

func TestExportLoadRoundtrip(t *testing.T) {
	ds := mnist.Synthetic(30, nil)

	cfg := trainer.Config{
		ModelType:    model.TypeDNN,
		Epochs:       1,
		BatchSize:    10,
		LearningRate: 0.01,
		Seed:         3,
	}
	tr, err := trainer.New(cpu.New(), cfg, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Fit(context.Background(), ds, nil); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "model.mnt")
	if err := tr.Export(path); err != nil {
		t.Fatalf("Export: %v", err)
	}

	header, stateDict, err := serialization.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if header.ModelType != model.TypeDNN {
		t.Errorf("model type: got %q, want dnn", header.ModelType)
	}

	// A fresh model accepts the saved weights and reproduces the
	// trained model's accuracy.
	backend := cpu.New()
	fresh, err := model.Build(model.TypeDNN, rand.New(rand.NewSource(99)), backend)
	if err != nil {
		t.Fatal(err)
	}
	if err := model.LoadStateDict(fresh, stateDict); err != nil {
		t.Fatalf("LoadStateDict: %v", err)
	}

	_, wantAcc, err := tr.Evaluate(context.Background(), ds)
	if err != nil {
		t.Fatal(err)
	}

	batches, err := mnist.Batches(ds, 10, backend)
	if err != nil {
		t.Fatal(err)
	}
	var weightedAcc float32
	var seen int
	for _, batch := range batches {
		logits := fresh.Forward(batch.Images)
		if !logits.Shape().Equal(tensor.Shape{batch.Size, 10}) {
			t.Fatalf("unexpected logits shape %v", logits.Shape())
		}
		weightedAcc += nn.Accuracy(logits, batch.Labels) * float32(batch.Size)
		seen += batch.Size
	}
	gotAcc := weightedAcc / float32(seen)
	if math.Abs(float64(gotAcc-wantAcc)) > 1e-4 {
		t.Errorf("reloaded model accuracy %v, trained model accuracy %v", gotAcc, wantAcc)
	}
}

func TestLoadStateDictWrongModel(t *testing.T) {
	backend := cpu.New()

	dnn, err := model.Build(model.TypeDNN, rand.New(rand.NewSource(1)), backend)
	if err != nil {
		t.Fatal(err)
	}
	linear, err := model.Build(model.TypeLinear, rand.New(rand.NewSource(1)), backend)
	if err != nil {
		t.Fatal(err)
	}

	if err := model.LoadStateDict(linear, model.StateDict(dnn)); err == nil {
		t.Fatal("expected error loading dnn weights into linear model")
	}
}

func TestHistorySaveLoad(t *testing.T) {
	h := &trainer.History{
		ModelType: "cnn",
		Optimizer: "adam",
		Epochs: []trainer.EpochStats{
			{Epoch: 1, Steps: 100, TrainLoss: 0.5, ValAccuracy: 0.9},
		},
	}

	path := filepath.Join(t.TempDir(), "history.json")
	if err := h.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := trainer.LoadHistory(path)
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if got.ModelType != "cnn" || len(got.Epochs) != 1 || got.Epochs[0].Steps != 100 {
		t.Errorf("history mangled: %+v", got)
	}
}
