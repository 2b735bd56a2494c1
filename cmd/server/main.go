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

	"github.com/joho/godotenv"
	"github.com/leca/cover-proxy/internal/cache"
	"github.com/leca/cover-proxy/internal/config"
	"github.com/leca/cover-proxy/internal/fetch"
	"github.com/leca/cover-proxy/internal/router"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	store, err := cache.Open(cfg.CacheBackend, cfg.CachePath)
	if err != nil {
		slog.Error("failed to open cache", "backend", cfg.CacheBackend, "path", cfg.CachePath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	limiter := fetch.NewHostLimiter(cfg.UpstreamRPS, max(1, int(cfg.UpstreamRPS)))
	upstream := fetch.New(cfg.UserAgent, cfg.MaxImageSize, limiter)

	srv := router.New(store, upstream, cfg, logger)

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", cfg.ListenAddr, "cache", cfg.CacheBackend)
		errc <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			slog.Error("graceful shutdown failed", "error", err)
		}
	}
}
