package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xiaojiou176/quotio-sub003/internal/config"
	"github.com/xiaojiou176/quotio-sub003/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose the review queue over a local HTTP API",
	Long: `Serve the review queue over HTTP.

Endpoints:
  GET    /healthz
  GET    /jobs?workspace=DIR          job history, newest first
  GET    /jobs/{id}?workspace=DIR     one job
  POST   /jobs                        start a job (JSON body: review config)
  GET    /runs/{id}/events            progress of a job started by this server
  DELETE /runs/{id}                   cancel a running job

The listener binds to 127.0.0.1 by default. Stopping the server cancels
jobs it started.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config: 127.0.0.1:8765)")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig(&config.Config{Server: config.ServerConfig{Addr: serveAddr}})
	if err != nil {
		return err
	}
	queue, err := newQueue(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("quotio serving on http://%s (cli: %s)\n", cfg.Server.Addr, queue.Options().CLICommand)
	return server.New(queue, verboseLogf).ListenAndServe(ctx, cfg.Server.Addr)
}
