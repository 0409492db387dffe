// Package api exposes the FMS webhook, health probes and diagnostic endpoints.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"fms-alerts/internal/common/config"
	"fms-alerts/internal/common/logger"
	"fms-alerts/internal/notification/template"
	"fms-alerts/internal/pipeline"
)

// Pipeline is the ingestion surface the handlers call into.
type Pipeline interface {
	Ingest(ctx context.Context, payload map[string]interface{}, raw []byte) (*pipeline.Result, error)
	Diagnose(ctx context.Context, req pipeline.DiagnosticRequest) (*pipeline.DiagnosticResult, error)
	Templates() []template.Resolution
	EnglishTemplates() []template.Resolution
}

// Checker is a readiness dependency.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckFunc adapts a ping function to a Checker.
type CheckFunc struct {
	Label string
	Fn    func(ctx context.Context) error
}

func (c CheckFunc) Name() string { return c.Label }
func (c CheckFunc) Check(ctx context.Context) error { return c.Fn(ctx) }

// Config holds the HTTP surface settings.
type Config struct {
	Addr             string
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	AdminToken       string
	SigningSecret    string
	SignatureHeader  string
	RequireSignature bool
	AllowedSourceIPs []string
	TrustProxy       bool
	MaxBodyBytes     int64
	MetricsEnabled   bool
	MetricsPath      string
}

// FromConfig maps the application config onto the API config.
func FromConfig(cfg *config.Config) Config {
	return Config{
		Addr:             cfg.HTTP.Addr,
		ReadTimeout:      config.GetDuration(cfg.HTTP.ReadTimeout),
		WriteTimeout:     config.GetDuration(cfg.HTTP.WriteTimeout),
		AdminToken:       cfg.HTTP.AdminToken,
		SigningSecret:    cfg.Webhook.SigningSecret,
		SignatureHeader:  cfg.Webhook.SignatureHeader,
		RequireSignature: cfg.Webhook.RequireSignature,
		AllowedSourceIPs: cfg.Webhook.AllowedSourceIPs,
		TrustProxy:       cfg.Webhook.TrustProxy,
		MaxBodyBytes:     cfg.Webhook.MaxBodyBytes,
		MetricsEnabled:   cfg.Metrics.Enabled,
		MetricsPath:      cfg.Metrics.Path,
	}
}

// Server is the HTTP front of the alert service.
type Server struct {
	config   Config
	pipeline Pipeline
	checkers []Checker
	logger   logger.Logger
	handler  http.Handler
}

func NewServer(cfg Config, p Pipeline, checkers []Checker, log logger.Logger) *Server {
	if cfg.SignatureHeader == "" {
		cfg.SignatureHeader = DefaultSignatureHeader
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	s := &Server{
		config:   cfg,
		pipeline: p,
		checkers: checkers,
		logger:   log.WithFields(map[string]interface{}{"component": "api"}),
	}
	s.handler = s.setupRouter()
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.handler,
		ReadTimeout:       s.config.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", map[string]interface{}{"addr": s.config.Addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.logger.Info("http server shutting down", nil)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
