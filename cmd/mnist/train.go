package main

import (
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ericwkw/mnist-trainer/internal/backend/cpu"
	"github.com/ericwkw/mnist-trainer/internal/mnist"
	"github.com/ericwkw/mnist-trainer/internal/model"
	"github.com/ericwkw/mnist-trainer/internal/trainer"
)

var (
	modelType       string
	epochs          int
	stepsPerEpoch   int
	jobDir          string
	batchSize       int
	learningRate    float32
	optimizerName   string
	dataDir         string
	download        bool
	seed            int64
	validationSplit float32
	maxSamples      int
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train an MNIST classifier",
	RunE:  runTrain,
}

// normalizeFlagName lets every train flag be spelled with either
// underscores or dashes, since the historical surface mixes both
// (--model_type but --job-dir).
func normalizeFlagName(fs *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "-", "_"))
}

func init() {
	f := trainCmd.Flags()
	f.SetNormalizeFunc(normalizeFlagName)
	f.StringVar(&modelType, "model_type", model.TypeLinear, "model architecture (linear|dnn|dnn_dropout|cnn)")
	f.IntVar(&epochs, "epochs", 10, "number of training epochs")
	f.IntVar(&stepsPerEpoch, "steps_per_epoch", 0, "gradient steps per epoch (0 = one pass over the data)")
	f.StringVar(&jobDir, "job-dir", "", "directory for checkpoints, the final model, and history.json")
	f.IntVar(&batchSize, "batch_size", 100, "mini-batch size")
	f.Float32Var(&learningRate, "lr", 0.001, "learning rate")
	f.StringVar(&optimizerName, "optimizer", trainer.OptimizerAdam, "optimizer (adam|sgd)")
	f.StringVar(&dataDir, "data_dir", "data", "directory holding the MNIST IDX files")
	f.BoolVar(&download, "download", false, "download the MNIST files into data_dir first")
	f.Int64Var(&seed, "seed", 1, "random seed for weights and shuffling")
	f.Float32Var(&validationSplit, "validation_split", 0.1, "fraction of training data held out for validation")
	f.IntVar(&maxSamples, "max_samples", 0, "limit on loaded training samples (0 = all)")

	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if download {
		if err := mnist.Download(ctx, dataDir, "", log.StandardLogger()); err != nil {
			return err
		}
	}

	data, err := mnist.Load(dataDir, true, maxSamples)
	if err != nil {
		return err
	}
	trainData, valData := data.Split(validationSplit)

	tr, err := trainer.New(cpu.New(), trainer.Config{
		ModelType:     modelType,
		Epochs:        epochs,
		StepsPerEpoch: stepsPerEpoch,
		BatchSize:     batchSize,
		LearningRate:  learningRate,
		Optimizer:     optimizerName,
		JobDir:        jobDir,
		Seed:          seed,
	}, log.StandardLogger())
	if err != nil {
		return err
	}

	history, err := tr.Fit(ctx, trainData, valData)
	if err != nil {
		return err
	}

	if len(history.Epochs) > 0 {
		last := history.Epochs[len(history.Epochs)-1]
		log.WithFields(log.Fields{
			"val_loss": last.ValLoss,
			"val_acc":  last.ValAccuracy,
		}).Info("training finished")
	}
	return nil
}
