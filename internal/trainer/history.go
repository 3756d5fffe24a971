package trainer

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// EpochStats records the metrics of one training epoch.
type EpochStats struct {
	Epoch         int           `json:"epoch"`
	Steps         int           `json:"steps"`
	TrainLoss     float32       `json:"train_loss"`
	TrainAccuracy float32       `json:"train_accuracy"`
	ValLoss       float32       `json:"val_loss"`
	ValAccuracy   float32       `json:"val_accuracy"`
	Duration      time.Duration `json:"duration_ns"`
}

// History is the training record written to the job dir as
// history.json.
type History struct {
	ModelType  string       `json:"model_type"`
	Optimizer  string       `json:"optimizer"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Epochs     []EpochStats `json:"epochs"`
}

// Save writes the history as indented JSON.
func (h *History) Save(path string) error {
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	return nil
}

// LoadHistory reads a history.json written by Save.
func LoadHistory(path string) (*History, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	var h History
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("failed to parse history: %w", err)
	}
	return &h, nil
}
