// Package httpapi provides the HTTP surface of the timer server: health,
// progress, the server-sent progress stream, and the mounted RPC handlers.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/meditimer/internal/app/display"
	"github.com/osa030/meditimer/internal/app/notification"
	"github.com/osa030/meditimer/internal/app/progress"
)

// Source is the session surface read by the HTTP handlers.
type Source interface {
	Snapshot() progress.Snapshot
	Watch(stream notification.Stream) (func(), error)
	Done() <-chan struct{}
}

// Mount is a handler served under a path prefix.
type Mount struct {
	Prefix  string
	Handler http.Handler
}

// NewRouter creates the HTTP router.
func NewRouter(src Source, refresh time.Duration, mounts ...Mount) http.Handler {
	if refresh <= 0 {
		refresh = display.DefaultRefresh
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", health)
	r.Get("/progress", getProgress(src))
	r.Get("/progress/stream", StreamProgress(src, refresh))

	for _, m := range mounts {
		r.Handle(m.Prefix+"*", m.Handler)
	}
	return r
}

func health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func getProgress(src Source) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, src.Snapshot(), http.StatusOK)
	}
}

// requestLogger logs each request at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			zlog.Debug().Msgf("http request: method=%s path=%s status=%d bytes=%d duration=%v request_id=%s",
				r.Method, r.URL.Path, ww.Status(), ww.BytesWritten(), time.Since(start), middleware.GetReqID(r.Context()))
		}()
		next.ServeHTTP(ww, r)
	})
}

func respondJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Debug().Err(err).Msg("failed to write response")
	}
}

func respondError(w http.ResponseWriter, msg string, status int) {
	respondJSON(w, map[string]string{"error": msg}, status)
}
