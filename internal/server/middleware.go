package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"impractical.co/docshell"
	"impractical.co/docshell/internal/logging"
)

// statusRecorder wraps http.ResponseWriter to capture the HTTP status code.
// Not safe for concurrent use; it belongs to a single request.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// getStatus returns the recorded status, defaulting to 200 if nothing was
// written.
func (r *statusRecorder) getStatus() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

// logRequests logs every request once it's served, and gives the request
// context a logger tagged with the request's ID, for docshell.Render to log
// through.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqLog := log.With().
			Str("request_id", uuid.NewString()).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()

		ctx := reqLog.WithContext(r.Context())
		ctx = docshell.LoggingContext(ctx, logging.Slog(reqLog))

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r.WithContext(ctx))

		status := rec.getStatus()
		ev := reqLog.Debug()
		if status >= http.StatusInternalServerError {
			ev = reqLog.Warn()
		}
		ev.Int("status", status).
			Int("bytes", rec.bytes).
			Dur("took", time.Since(start)).
			Msg("served request")
	})
}
