package handler

import (
	"errors"
	"net/http"

	"github.com/leca/cover-proxy/internal/api"
	"github.com/leca/cover-proxy/internal/fetch"
	"github.com/leca/cover-proxy/internal/guard"
	"github.com/leca/cover-proxy/internal/relay"
)

// Proxy handles GET /proxy -- streams an allowlisted upstream resource,
// forwarding the client's Range header for media seeking. Redirects are
// followed only while they stay on allowlisted hosts.
func (h *Handler) Proxy(w http.ResponseWriter, r *http.Request) {
	u, err := guard.ParseTarget(r.URL.Query().Get("url"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Allow.Check(u); err != nil {
		h.fail(w, r, err)
		return
	}

	resp, err := h.Upstream.Open(r.Context(), u, fetch.Options{
		Referer: h.Referer.RefererFor(u),
		Range:   r.Header.Get("Range"),
		Timeout: h.Config.ProxyTimeout,
		// Every redirect hop must stay on the allowlist too.
		CheckRedirect: h.Allow.Check,
	})
	if err != nil {
		if errors.Is(err, api.ErrTimeout) {
			api.GatewayTimeout(w, "upstream timeout")
			return
		}
		h.fail(w, r, err)
		return
	}

	res, err := relay.Run(r.Context(), w, resp, relay.Options{
		IdleTimeout: h.Config.RelayIdleTimeout,
		Logger:      h.Logger,
	})
	if err == nil {
		return
	}

	h.Logger.Warn("relay aborted",
		"session", res.ID,
		"state", res.State.String(),
		"bytes", res.Bytes,
		"host", u.Hostname(),
		"error", err,
	)
	switch {
	case errors.Is(err, relay.ErrClientGone):
		// Nobody is listening any more.
	case res.Committed:
		// Status is already on the wire; abort so the client sees a
		// failed transfer rather than a short successful one.
		panic(http.ErrAbortHandler)
	case errors.Is(err, relay.ErrIdleTimeout):
		api.GatewayTimeout(w, "upstream idle timeout")
	default:
		api.WriteError(w, err)
	}
}
