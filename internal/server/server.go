// Package server exposes a trained model behind a REST prediction API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ericwkw/mnist-trainer/internal/config"
)

// Server is the HTTP prediction service.
type Server struct {
	srv *http.Server
	log *logrus.Logger
}

// New builds the router and predictor from cfg.
func New(cfg *config.Config, log *logrus.Logger) (*Server, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	predictor, err := NewPredictor(cfg.Model.Path)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"model_type": predictor.ModelType(),
		"params":     predictor.ParamCount(),
		"artifact":   predictor.Path(),
	}).Info("model loaded")

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(RequestID(), Logging(log), gin.Recovery())
	NewHandler(predictor, log).RegisterRoutes(router)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	return &Server{
		srv: &http.Server{Addr: addr, Handler: router},
		log: log,
	}, nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("starting server on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced shutdown: %w", err)
	}
	s.log.Info("server stopped")
	return nil
}
