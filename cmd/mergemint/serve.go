package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cobra"

	httphandler "github.com/ericfisherdev/mergemint/internal/adapter/driving/http"
	"github.com/ericfisherdev/mergemint/internal/application"
	"github.com/ericfisherdev/mergemint/internal/config"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the ingest loop and the optional drain timer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			slog.Info("config loaded",
				"listen_addr", cfg.ListenAddr,
				"db_path", cfg.DBPath,
				"site_url", cfg.SiteURL,
				"dispatch_timeout", cfg.DispatchTimeout,
				"backlog_page_size", cfg.BacklogPageSize,
				"backlog_window", cfg.BacklogWindow,
				"drain_schedule", cfg.DrainSchedule,
			)
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	a, err := newApp(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	if cfg.CronSecret == "" {
		slog.Warn("MERGEMINT_CRON_SECRET not set, trigger and evaluation endpoints are open")
	}

	var wg sync.WaitGroup

	deps := httphandler.Deps{
		PRStore:         a.prStore,
		RepoStore:       a.repoStore,
		EvaluationStore: a.evaluationStore,
		AttemptStore:    a.attemptStore,
		Drainer:         a.drain,
		Backlog:         a.drain,
		Evaluator:       a.evaluation,
		Metrics:         a.metrics.Handler(),
		CronSecret:      cfg.CronSecret,
	}

	if a.github != nil {
		ingestSvc := application.NewIngestService(
			a.github, a.prStore, a.repoStore, a.metrics, cfg.IngestInterval, slog.Default(),
		)
		deps.Refresher = ingestSvc
		wg.Add(1)
		go func() {
			defer wg.Done()
			ingestSvc.Start(ctx)
		}()
	}

	var scheduler *application.DrainScheduler
	if cfg.DrainSchedule != "" {
		scheduler, err = application.NewDrainScheduler(
			a.drain, cfg.DrainSchedule,
			application.DrainOptions{PostComment: cfg.DrainPostComment},
			slog.Default(),
		)
		if err != nil {
			return err
		}
		scheduler.Start(ctx)
	}

	handler := httphandler.NewServeMux(httphandler.NewHandler(deps, slog.Default()), slog.Default())

	// WriteTimeout must outlast one dispatch so a timed-out drain can still
	// write its 504.
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.DispatchTimeout + cfg.FetchTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	slog.Info("mergemint started",
		"listen_addr", cfg.ListenAddr,
		"ingest", a.github != nil,
		"drain_timer", scheduler != nil,
	)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
		slog.Error("http server error", "error", runErr)
	}
	slog.Info("shutting down")
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.DispatchTimeout+5*time.Second)
	defer cancelShutdown()

	if scheduler != nil {
		scheduler.Stop(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}
	wg.Wait()

	slog.Info("shutdown complete")
	return runErr
}
