package server

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/robolabs/robotutor/internal/logging"
)

// statusRecorder wraps [http.ResponseWriter] so the middleware can report
// the status code a handler wrote.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// requestLogger tags every inbound request with a random request_id, puts a
// child [*slog.Logger] carrying it into the request context, and on
// completion logs the outcome and records per-handler Prometheus counters
// and latency observations.
func requestLogger(base *slog.Logger, m *serverMetrics, handlerName string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := base.With(
			slog.String("request_id", newRequestID()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
		r = r.WithContext(logging.WithLogger(r.Context(), log))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		m.httpRequestsTotal.WithLabelValues(r.Method, handlerName, strconv.Itoa(rec.status)).Inc()
		m.httpDurationSeconds.WithLabelValues(r.Method, handlerName).Observe(elapsed.Seconds())

		log.Info("request",
			slog.Int("status", rec.status),
			slog.Duration("duration", elapsed),
		)
	})
}

// newRequestID returns 8 random bytes hex-encoded. A failed read from the
// system randomness source yields an all-zero ID rather than an error.
func newRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "0000000000000000"
	}
	return hex.EncodeToString(b)
}
