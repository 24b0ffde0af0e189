package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes returns the HTTP handler with all application routes.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// The upgrade needs the raw ResponseWriter, so /ws skips access logging.
	r.Get("/ws", s.handleWebSocket)

	r.Group(func(r chi.Router) {
		r.Use(s.accessLog)

		r.Get("/", s.handleHealth)
		r.Get("/test", s.handleTestPage)
		r.Get("/users", s.handleUsers)
		if s.metrics != nil {
			r.Method(http.MethodGet, "/metrics", s.metrics)
		}
	})

	return r
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}
