// Package router assembles the HTTP surface of the calendar API.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/abdi2332/calender-app/internal/appointments"
	"github.com/abdi2332/calender-app/internal/call"
	httpmiddleware "github.com/abdi2332/calender-app/internal/http/middleware"
	"github.com/abdi2332/calender-app/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger              *logging.Logger
	AppointmentsHandler *appointments.Handler
	CallHandler         *call.Handler
	MetricsHandler      http.Handler
	CORSAllowedOrigins  []string
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", healthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// The call routes hang off /appointments/{id}, so the appointment
	// subtree is assembled here rather than mounted wholesale.
	if cfg.AppointmentsHandler != nil {
		appts := cfg.AppointmentsHandler
		r.Route("/appointments", func(ar chi.Router) {
			ar.Get("/", appts.List)
			ar.Post("/", appts.Create)
			ar.Get("/changes", appts.Changes)
			ar.Route("/{id}", func(one chi.Router) {
				one.Get("/", appts.Get)
				one.Patch("/", appts.Update)
				one.Delete("/", appts.Delete)
				if cfg.CallHandler != nil {
					one.Post("/call", cfg.CallHandler.Start)
					one.Get("/transcripts", cfg.CallHandler.Transcripts)
				}
			})
		})
	}

	if cfg.CallHandler != nil {
		r.Mount("/calls", cfg.CallHandler.Routes())
	}

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
