package handler

import (
	"net/http"

	"github.com/leca/cover-proxy/internal/api"
	"github.com/leca/cover-proxy/internal/fetch"
	"github.com/leca/cover-proxy/internal/guard"
	"github.com/leca/cover-proxy/internal/imageproc"
)

// Color handles GET /color -- the average opaque color and original size
// of an image. Results are not cached server side.
func (h *Handler) Color(w http.ResponseWriter, r *http.Request) {
	u, err := guard.ParseTarget(r.URL.Query().Get("url"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	src, err := h.Upstream.Get(r.Context(), u, fetch.Options{
		Referer: h.Referer.RefererFor(u),
		Timeout: h.Config.ColorTimeout,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	sample, err := imageproc.SampleColor(src, h.Config.MaxImagePixels)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", splitCacheControl)
	api.WriteJSON(w, http.StatusOK, sample)
}
