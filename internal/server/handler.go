package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const modelName = "mnist"

// PredictRequest is the prediction API request body.
type PredictRequest struct {
	Instances [][]float32 `json:"instances" binding:"required"`
}

// PredictResponse is the prediction API response body.
type PredictResponse struct {
	Predictions []Prediction `json:"predictions"`
}

// ModelMetadata describes the served model.
type ModelMetadata struct {
	Name       string `json:"name"`
	ModelType  string `json:"model_type"`
	ParamCount int    `json:"param_count"`
	Artifact   string `json:"artifact"`
}

// Handler serves the prediction API.
type Handler struct {
	predictor *Predictor
	log       *logrus.Logger
}

// NewHandler wires the predictor into HTTP handlers.
func NewHandler(predictor *Predictor, log *logrus.Logger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{predictor: predictor, log: log}
}

// RegisterRoutes mounts the API on the router.
//
// The predict verb follows the hosted prediction API convention of a
// colon suffix on the model resource, so the route captures the whole
// "name:verb" segment and splits it here.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", h.health)

	v1 := r.Group("/v1")
	v1.GET("/models/:name", h.metadata)
	v1.POST("/models/:name", h.predict)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) metadata(c *gin.Context) {
	if c.Param("name") != modelName {
		c.JSON(http.StatusNotFound, gin.H{"error": "model not found"})
		return
	}

	c.JSON(http.StatusOK, ModelMetadata{
		Name:       modelName,
		ModelType:  h.predictor.ModelType(),
		ParamCount: h.predictor.ParamCount(),
		Artifact:   h.predictor.Path(),
	})
}

func (h *Handler) predict(c *gin.Context) {
	name, verb, ok := strings.Cut(c.Param("name"), ":")
	if !ok || name != modelName || verb != "predict" {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown model or verb"})
		return
	}

	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	predictions, err := h.predictor.Predict(req.Instances)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, PredictResponse{Predictions: predictions})
}
