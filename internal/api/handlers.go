package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	apperrors "fms-alerts/internal/common/errors"
	"fms-alerts/internal/common/validation"
	"fms-alerts/internal/pipeline"
)

type queuedResponse struct {
	Queued  bool  `json:"queued"`
	AlertID int64 `json:"alert_id"`
}

// handleAlert is the FMS webhook.
func (s *Server) handleAlert(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		Error(w, http.StatusBadRequest, "unreadable body")
		return
	}

	payload, err := decodeObject(raw)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if res := validation.WebhookSchema.Validate(payload); !res.Valid {
		s.logger.Warn("webhook payload failed schema validation", map[string]interface{}{
			"requestId": middleware.GetReqID(r.Context()),
			"errors":    res.GetErrorMessages(),
		})
		JSON(w, http.StatusUnprocessableEntity, ErrorBody{Error: "invalid payload", Details: res.GetErrorMessages()})
		return
	}

	result, err := s.pipeline.Ingest(r.Context(), payload, raw)
	if err != nil {
		s.logger.Warn("webhook rejected", errorFields(r, err))
		WriteError(w, err)
		return
	}

	switch result.Outcome {
	case pipeline.OutcomeDuplicate:
		OK(w, map[string]bool{"duplicate": true})
	case pipeline.OutcomeSkipped:
		OK(w, map[string]bool{"skipped": true})
	default:
		Accepted(w, queuedResponse{Queued: true, AlertID: result.AlertID})
	}
}

// decodeObject decodes a JSON object keeping numbers as json.Number so large
// identifiers survive unchanged.
func decodeObject(raw []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload map[string]interface{}
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, errors.New("payload is not an object")
	}
	return payload, nil
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	OK(w, map[string]bool{"ok": true})
}

// readyz pings every dependency.
func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	ok := true
	checks := make(map[string]string, len(s.checkers))
	for _, c := range s.checkers {
		if err := c.Check(ctx); err != nil {
			ok = false
			checks[c.Name()] = err.Error()
			continue
		}
		checks[c.Name()] = "ok"
	}

	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	JSON(w, status, map[string]interface{}{"ok": ok, "checks": checks})
}

type templatesResponse struct {
	Message   string      `json:"message"`
	Templates interface{} `json:"templates"`
	All       interface{} `json:"all"`
	Usage     string      `json:"usage"`
}

func (s *Server) listTemplates(w http.ResponseWriter, r *http.Request) {
	OK(w, templatesResponse{
		Message:   "Available English WhatsApp alert templates for testing",
		Templates: s.pipeline.EnglishTemplates(),
		All:       s.pipeline.Templates(),
		Usage:     "POST to /fms/test/{alertType} with {\"phone\": \"...\", \"vehicle_id\": \"...\", \"direct\": false}",
	})
}

type testAlertRequest struct {
	Phone     string `json:"phone"`
	VehicleID string `json:"vehicle_id"`
	Direct    bool   `json:"direct"`
}

// testAlert creates a sample alert and queues or sends it.
func (s *Server) testAlert(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	if err != nil {
		Error(w, http.StatusBadRequest, "unreadable body")
		return
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = []byte("{}")
	}

	doc, err := decodeObject(raw)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if res := validation.DiagnosticSchema.Validate(doc); !res.Valid {
		JSON(w, http.StatusUnprocessableEntity, ErrorBody{Error: "invalid payload", Details: res.GetErrorMessages()})
		return
	}

	var req testAlertRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	result, err := s.pipeline.Diagnose(r.Context(), pipeline.DiagnosticRequest{
		AlertType: chi.URLParam(r, "alertType"),
		Phone:     req.Phone,
		VehicleID: req.VehicleID,
		Direct:    req.Direct,
	})
	if err != nil {
		if result != nil && apperrors.HasCode(err, apperrors.ErrCodeQueueFailed) {
			s.logger.Error("diagnostic alert stored but not queued", map[string]interface{}{
				"messageId": result.MessageID,
				"error":     err,
			})
		}
		WriteError(w, err)
		return
	}

	if req.Direct {
		OK(w, result)
		return
	}
	Accepted(w, result)
}
