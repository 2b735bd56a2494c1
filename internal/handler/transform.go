package handler

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/leca/cover-proxy/internal/cache"
	"github.com/leca/cover-proxy/internal/fetch"
	"github.com/leca/cover-proxy/internal/imageproc"
	"github.com/leca/cover-proxy/internal/model"
)

const (
	// splitCacheControl is also used by /color.
	splitCacheControl = "public, max-age=86400, s-maxage=86400, stale-while-revalidate=604800"
	thumbCacheControl = "public, max-age=86400, stale-while-revalidate=604800"
)

// serveTransform answers from the cache when possible, otherwise downloads
// the source, transforms it, stores the result and returns it.
func (h *Handler) serveTransform(w http.ResponseWriter, r *http.Request, u *url.URL, spec model.TransformSpec, cacheControl string) {
	ctx := r.Context()
	key := cache.NewKey(spec)
	ct := spec.Codec.ContentType()

	if data, ok := h.lookup(ctx, key); ok {
		h.writeImage(w, r, data, ct, cacheControl, "HIT", nil)
		return
	}

	src, err := h.Upstream.Get(ctx, u, fetch.Options{
		Referer: h.Referer.RefererFor(u),
		Timeout: h.Config.TransformTimeout,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := imageproc.Transform(src, spec, h.Config.MaxImagePixels)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.store(ctx, key, res.Data)

	extra := map[string]string{
		"X-Source-Width":  strconv.Itoa(res.Source.Width),
		"X-Source-Height": strconv.Itoa(res.Source.Height),
	}
	h.writeImage(w, r, res.Data, res.ContentType, cacheControl, "MISS", extra)
}

func (h *Handler) writeImage(w http.ResponseWriter, r *http.Request, data []byte, contentType, cacheControl, cacheStatus string, extra map[string]string) {
	hdr := w.Header()
	hdr.Set("Content-Type", contentType)
	hdr.Set("Content-Length", strconv.Itoa(len(data)))
	hdr.Set("Cache-Control", cacheControl)
	hdr.Set("X-Cache", cacheStatus)
	for k, v := range extra {
		hdr.Set(k, v)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.Logger.Warn("failed to write image response", "path", r.URL.Path, "bytes", len(data), "error", err)
	}
}
