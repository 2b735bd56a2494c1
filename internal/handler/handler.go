package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/leca/cover-proxy/internal/api"
	"github.com/leca/cover-proxy/internal/cache"
	"github.com/leca/cover-proxy/internal/config"
	"github.com/leca/cover-proxy/internal/fetch"
	"github.com/leca/cover-proxy/internal/guard"
	"github.com/leca/cover-proxy/internal/metrics"
)

// Upstream is the subset of fetch.Fetcher the handlers use.
type Upstream interface {
	Open(ctx context.Context, u *url.URL, opts fetch.Options) (*fetch.Response, error)
	Get(ctx context.Context, u *url.URL, opts fetch.Options) ([]byte, error)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	Cache    cache.Store
	Upstream Upstream
	Allow    *guard.Allowlist
	Referer  guard.RefererPolicy
	Config   *config.Config
	Logger   *slog.Logger
}

// New wires a Handler from cfg.
func New(store cache.Store, upstream Upstream, cfg *config.Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Cache:    store,
		Upstream: upstream,
		Allow:    guard.NewAllowlist(cfg.ProxyHosts),
		Referer:  guard.RefererPolicy{Referer: cfg.MediaReferer, Domains: cfg.MediaDomains},
		Config:   cfg,
		Logger:   logger,
	}
}

// fail converts err into a JSON error response.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := api.Status(err)
	args := []any{"path", r.URL.Path, "status", status, "error", err}
	var se *fetch.StatusError
	if errors.As(err, &se) {
		args = append(args, "upstream_status", se.Status)
	}
	if status >= http.StatusInternalServerError {
		h.Logger.Warn("request failed", args...)
	} else {
		h.Logger.Debug("request rejected", args...)
	}
	api.WriteError(w, err)
}

// store writes an entry and discards any failure: the caller already has
// the bytes it needs to answer the request.
func (h *Handler) store(ctx context.Context, key cache.Key, data []byte) {
	if err := h.Cache.Put(context.WithoutCancel(ctx), key, data); err != nil {
		metrics.RecordCacheWriteFailure(key.Namespace)
		h.Logger.Warn("cache write failed", "key", key.String(), "error", err)
	}
}

// lookup returns cached bytes for key, treating store errors as misses.
func (h *Handler) lookup(ctx context.Context, key cache.Key) ([]byte, bool) {
	data, err := h.Cache.Get(ctx, key)
	switch {
	case err == nil:
		metrics.RecordCacheLookup(key.Namespace, "hit")
		return data, true
	case errors.Is(err, cache.ErrMiss):
		metrics.RecordCacheLookup(key.Namespace, "miss")
	default:
		metrics.RecordCacheLookup(key.Namespace, "error")
		h.Logger.Warn("cache read failed", "key", key.String(), "error", err)
	}
	return nil, false
}
