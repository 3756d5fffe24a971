package main

import (
	"fmt"
	"net"
	"os/signal"
	"strconv"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ericwkw/mnist-trainer/internal/config"
	"github.com/ericwkw/mnist-trainer/internal/server"
)

var (
	serveAddr      string
	serveModelPath string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a trained model behind the prediction API",
	Long: `Serve loads a model artifact and exposes it over HTTP:

  POST /v1/models/mnist:predict
  GET  /v1/models/mnist
  GET  /healthz

Flags override the SERVER_HOST, SERVER_PORT, and MODEL_PATH
environment variables.`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveAddr, "addr", "", "listen address as host:port (default from SERVER_HOST/SERVER_PORT)")
	f.StringVar(&serveModelPath, "model", "", "model artifact path (default from MODEL_PATH)")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		host, portStr, err := net.SplitHostPort(serveAddr)
		if err != nil {
			return fmt.Errorf("invalid --addr %q: %w", serveAddr, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid --addr port %q: %w", portStr, err)
		}
		cfg.Server.Host = host
		cfg.Server.Port = port
	}
	if serveModelPath != "" {
		cfg.Model.Path = serveModelPath
	}

	srv, err := server.New(cfg, log.StandardLogger())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx)
}
