// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/evidence-engine/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the answer pipeline over HTTP",
	Long: `Serve exposes the pipeline as a JSON API:

  POST /v1/answer   {"question": "..."}  answer with verified citations
  POST /v1/analyze  {"question": "..."}  query analysis and routing
  GET  /healthz                          liveness
  GET  /metrics                          Prometheus metrics

The server shuts down gracefully on SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default from config, :8080)")
	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := requireGenerator(appConfig); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, appConfig, true)
	if err != nil {
		return err
	}
	defer a.Close()

	return server.New(a.pipeline, a.gatherer, appConfig.Server).Run(ctx)
}
