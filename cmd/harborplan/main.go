package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"harborplan/internal/api"
	"harborplan/internal/buildinfo"
	"harborplan/internal/config"
	"harborplan/internal/logging"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "harborplan",
	Short:         "Harbor berth placement engine",
	Long:          "harborplan places boats into harbor slots with a family of heuristic strategies, scores every result and ranks them.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and webhook worker",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), buildinfo.String())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger = logging.Setup(cfg.Environment)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	logger.Info().Str("version", buildinfo.Version).Str("store", string(cfg.DBBackend)).Msg("harborplan starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := api.NewServer(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}
	httpServer := srv.HTTPServer()

	workerCtx, cancelWorker := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		srv.NewWebhookWorker().Run(workerCtx)
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-errCh:
		logger.Error().Err(err).Msg("http server error")
	}

	logger.Info().Msg("shutting down gracefully...")
	timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := httpServer.Shutdown(timeoutCtx); serr != nil {
		logger.Error().Err(serr).Msg("graceful shutdown failed")
	}
	cancelWorker()
	<-workerDone
	if cerr := srv.Close(); cerr != nil {
		logger.Error().Err(cerr).Msg("shutdown cleanup failed")
	}
	logger.Info().Msg("harborplan stopped")
	return err
}
