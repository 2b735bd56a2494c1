package api

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// RecoverJSON turns handler panics into a 500 JSON envelope instead of a
// dropped connection. http.ErrAbortHandler is re-panicked so net/http can
// abort the response as intended.
func RecoverJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rvr := recover()
			if rvr == nil {
				return
			}
			if rvr == http.ErrAbortHandler {
				panic(rvr)
			}
			slog.Error("panic in handler",
				"panic", rvr,
				"method", r.Method,
				"path", r.URL.Path,
				"stack", string(debug.Stack()),
			)
			InternalError(w)
		}()
		next.ServeHTTP(w, r)
	})
}
