package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mbourse/masi-api/internal/job"
	"github.com/mbourse/masi-api/internal/refresh"
	"github.com/mbourse/masi-api/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the job workers and the snapshot scheduler",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	// Root context: cancelled on SIGINT/SIGTERM so in-flight requests and
	// scraper workers stop promptly during graceful shutdown.
	rootCtx, rootCancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer rootCancel()

	a, err := newApp(rootCtx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	// Worker pool: picks up pending jobs in the background
	pool := job.NewWorkerPool(a.jobRepo, a.refresh, cfg.Workers)
	a.refresh.SetNotify(pool.Notify)
	poolDone := make(chan struct{})
	go func() {
		pool.Run(rootCtx)
		close(poolDone)
	}()

	// Re-queue jobs interrupted by the previous shutdown.
	if err := a.jobs.RecoverStaleJobs(rootCtx); err != nil {
		log.Error().Err(err).Msg("failed to recover stale jobs")
	}
	pool.Notify()

	schedDone := make(chan struct{})
	go func() {
		refresh.NewScheduler(a.refresh, cfg.Refresh.IntervalDuration()).Run(rootCtx)
		close(schedDone)
	}()

	srv := server.New(rootCtx, cfg.Port, server.Services{
		Market:  a.market,
		Refresh: a.refresh,
		Jobs:    a.jobs,
	}, cfg.CORSOrigins)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	log.Info().Str("port", cfg.Port).Str("db", cfg.DBPath).Msg("server started")

	var serveErr error
	select {
	case <-rootCtx.Done():
	case serveErr = <-errCh:
		rootCancel()
	}

	// Wait for the workers and scheduler before shutting down HTTP.
	<-poolDone
	<-schedDone

	// Then drain connections with a deadline.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	log.Info().Msg("server stopped")
	return serveErr
}
