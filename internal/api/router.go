package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"ms-gigs/internal/logger"
)

// requestLogger records every request through the API log helper.
func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			log.LogAPI(r.Method, r.URL.Path, status, time.Since(start))
		})
	}
}

// NewRouter mounts the gig API. Reads are public; mutations sit behind authn.
// An empty origins list disables CORS handling.
func NewRouter(h *Handler, authn func(http.Handler) http.Handler, origins []string, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if h.Logger == nil {
		h.Logger = log
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))
	if len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
			ExposedHeaders:   []string{"X-Request-Id"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/health", Health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/gigs/{gigId}/lineup", h.GetLineup)
		r.Get("/reports/{report}", h.GetReport)

		r.Group(func(r chi.Router) {
			if authn != nil {
				r.Use(authn)
			}
			r.Post("/gigs", h.ProvisionGig)
			r.Post("/gigs/{gigId}/bookings", h.BookTicket)
			r.Post("/gigs/{gigId}/cancellations", h.CancelAct)
			r.Post("/passes/verify", h.VerifyPass)
		})
	})

	return r
}
