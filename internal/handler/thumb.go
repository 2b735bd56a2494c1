package handler

import (
	"net/http"

	"github.com/leca/cover-proxy/internal/guard"
	"github.com/leca/cover-proxy/internal/imageproc"
	"github.com/leca/cover-proxy/internal/model"
)

// Thumb handles GET /thumb -- a square thumbnail of at most s×s pixels.
func (h *Handler) Thumb(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	u, err := guard.ParseTarget(q.Get("url"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	spec := model.TransformSpec{
		Source: u.String(),
		Op:     model.OpThumbnail,
		Size:   imageproc.ClampSize(q.Get("s")),
		Codec:  imageproc.ParseCodec(q.Get("format")),
	}
	h.serveTransform(w, r, u, spec, thumbCacheControl)
}
