package handler

import (
	"net/http"

	"github.com/leca/cover-proxy/internal/api"
	"github.com/leca/cover-proxy/internal/guard"
	"github.com/leca/cover-proxy/internal/imageproc"
	"github.com/leca/cover-proxy/internal/model"
)

// Split handles GET /split -- the front or back panel of a cover image.
func (h *Handler) Split(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	u, err := guard.ParseTarget(q.Get("url"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var op model.Op
	switch q.Get("side") {
	case "", "front":
		op = model.OpSplitFront
	case "back":
		op = model.OpSplitBack
	default:
		h.fail(w, r, api.Invalid("invalid side"))
		return
	}

	spec := model.TransformSpec{
		Source: u.String(),
		Op:     op,
		Spine:  imageproc.ClampSpine(q.Get("spine")),
		Codec:  imageproc.ParseCodec(q.Get("format")),
	}
	h.serveTransform(w, r, u, spec, splitCacheControl)
}
