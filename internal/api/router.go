package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupRouter creates the chi router with all routes.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	if s.config.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(Metrics)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	if s.config.MetricsEnabled {
		r.Handle(s.config.MetricsPath, promhttp.Handler())
	}

	r.Route("/fms", func(r chi.Router) {
		r.With(
			SourceAllowList(s.config.AllowedSourceIPs, s.logger),
			VerifySignature(s.config.SigningSecret, s.config.SignatureHeader, s.config.RequireSignature, s.config.MaxBodyBytes, s.logger),
		).Post("/alerts", s.handleAlert)

		r.Route("/test", func(r chi.Router) {
			r.Use(AdminToken(s.config.AdminToken))
			r.Get("/templates", s.listTemplates)
			r.Post("/{alertType}", s.testAlert)
		})
	})

	return r
}
