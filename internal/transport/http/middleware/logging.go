package httpmw

import (
	"log/slog"
	"net/http"
	"time"

	middlewareChi "github.com/go-chi/chi/v5/middleware"
)

const HeaderRequestID = "X-Request-ID"

// Logging echoes the request id and logs method, path, status, size and
// duration of every request. Bodies are not logged: whiteboard snapshots and
// uploads are large.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := middlewareChi.GetReqID(r.Context())
		if reqID != "" {
			w.Header().Set(HeaderRequestID, reqID)
		}
		ww := middlewareChi.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			// hijacked (websocket) or nothing written
			status = http.StatusOK
		}
		slog.Info("http request",
			"req_id", reqID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		)
	})
}
