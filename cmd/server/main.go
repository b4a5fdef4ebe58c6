package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/accioltd/mdchunk/internal/api"
	"github.com/accioltd/mdchunk/internal/config"
	"github.com/accioltd/mdchunk/internal/enrich"
	"github.com/accioltd/mdchunk/internal/pathstore"
	"github.com/accioltd/mdchunk/internal/pipeline"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateServer(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize clients.
	stats := enrich.NewStats(time.Hour)
	svc, err := enrich.New(cfg.EnrichOptions(), stats)
	if err != nil {
		log.Error("create enrichment service", "error", err)
		os.Exit(1)
	}

	var ps *pathstore.Client
	if cfg.PathstoreURL != "" {
		ps = pathstore.NewClient(cfg.PathstoreURL, cfg.PathstoreAPIKey)
	}

	// Initialize pipeline.
	orch, err := pipeline.NewOrchestrator(cfg, svc, ps, log)
	if err != nil {
		log.Error("create pipeline", "error", err)
		os.Exit(1)
	}
	// Workers are ended by orch.Stop after the HTTP server has drained.
	orch.Start(context.Background())

	// Initialize HTTP server.
	srv := api.NewServer(orch, stats, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("starting mdchunk server",
		"port", cfg.Port,
		"backend", cfg.EnrichBackend,
		"workers", cfg.WorkerCount,
		"enrich_concurrency", cfg.EnrichConcurrency,
		"pathstore", cfg.PathstoreURL != "",
	)

	teardown := []func(){orch.Stop, svc.Close}
	if ps != nil {
		teardown = append(teardown, ps.Close)
	}
	if err := serve(ctx, httpServer, log, teardown...); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

// serve runs srv until ctx is done or it fails, then shuts it down and runs
// teardown in order. It returns only after teardown has finished.
func serve(ctx context.Context, srv *http.Server, log *slog.Logger, teardown ...func()) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	var serveErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	case <-ctx.Done():
		log.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown", "error", err)
		}
	}

	for _, f := range teardown {
		f()
	}
	log.Info("shutdown complete")
	return serveErr
}
