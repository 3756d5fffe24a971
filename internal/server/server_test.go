package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericwkw/mnist-trainer/internal/backend/cpu"
	"github.com/ericwkw/mnist-trainer/internal/mnist"
	"github.com/ericwkw/mnist-trainer/internal/model"
	"github.com/ericwkw/mnist-trainer/internal/server"
	"github.com/ericwkw/mnist-trainer/internal/trainer"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// trainArtifact trains a small linear model on synthetic data and
// returns the exported artifact path.
func trainArtifact(t *testing.T) string {
	t.Helper()

	ds := mnist.Synthetic(40, nil)
	cfg := trainer.Config{
		ModelType:    model.TypeLinear,
		Epochs:       3,
		BatchSize:    10,
		LearningRate: 0.01,
		Seed:         5,
	}
	tr, err := trainer.New(cpu.New(), cfg, quietLogger())
	require.NoError(t, err)

	_, err = tr.Fit(context.Background(), ds, nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "model.mnt")
	require.NoError(t, tr.Export(path))
	return path
}

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	predictor, err := server.NewPredictor(trainArtifact(t))
	require.NoError(t, err)

	r := gin.New()
	r.Use(server.RequestID())
	server.NewHandler(predictor, quietLogger()).RegisterRoutes(r)
	return r
}

func TestHealthz(t *testing.T) {
	r := setupRouter(t)

	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestMetadata(t *testing.T) {
	r := setupRouter(t)

	req, _ := http.NewRequest(http.MethodGet, "/v1/models/mnist", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var meta server.ModelMetadata
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &meta))
	assert.Equal(t, "mnist", meta.Name)
	assert.Equal(t, model.TypeLinear, meta.ModelType)
	assert.Equal(t, 784*10+10, meta.ParamCount)
	assert.NotEmpty(t, meta.Artifact)
}

func TestMetadataUnknownModel(t *testing.T) {
	r := setupRouter(t)

	req, _ := http.NewRequest(http.MethodGet, "/v1/models/resnet", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPredict(t *testing.T) {
	r := setupRouter(t)

	ds := mnist.Synthetic(2, nil)
	body, err := json.Marshal(server.PredictRequest{Instances: ds.Images})
	require.NoError(t, err)

	req, _ := http.NewRequest(http.MethodPost, "/v1/models/mnist:predict", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp server.PredictResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Predictions, 2)

	for _, p := range resp.Predictions {
		assert.GreaterOrEqual(t, p.Classes, 0)
		assert.Less(t, p.Classes, 10)
		require.Len(t, p.Probabilities, 10)

		var sum float32
		for _, prob := range p.Probabilities {
			assert.GreaterOrEqual(t, prob, float32(0))
			sum += prob
		}
		assert.InDelta(t, 1.0, sum, 1e-4)
	}
}

func TestPredictBadBody(t *testing.T) {
	r := setupRouter(t)

	req, _ := http.NewRequest(http.MethodPost, "/v1/models/mnist:predict", bytes.NewBufferString("not json"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPredictWrongInstanceSize(t *testing.T) {
	r := setupRouter(t)

	body, _ := json.Marshal(server.PredictRequest{Instances: [][]float32{{1, 2, 3}}})
	req, _ := http.NewRequest(http.MethodPost, "/v1/models/mnist:predict", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "784")
}

func TestPredictUnknownVerb(t *testing.T) {
	r := setupRouter(t)

	body, _ := json.Marshal(server.PredictRequest{Instances: mnist.Synthetic(1, nil).Images})
	req, _ := http.NewRequest(http.MethodPost, "/v1/models/mnist:explain", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRequestIDAssigned(t *testing.T) {
	r := setupRouter(t)

	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRequestIDEchoed(t *testing.T) {
	r := setupRouter(t)

	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "my-id")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "my-id", w.Header().Get("X-Request-ID"))
}

func TestNewPredictorMissingArtifact(t *testing.T) {
	_, err := server.NewPredictor(filepath.Join(t.TempDir(), "nope.mnt"))
	assert.Error(t, err)
}
