// internal/pipeline/service.go
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "fms-alerts/internal/common/errors"
	"fms-alerts/internal/common/logger"
	"fms-alerts/internal/common/metrics"
	"fms-alerts/internal/models"
	"fms-alerts/internal/notification/placeholder"
	"fms-alerts/internal/notification/template"
	"fms-alerts/internal/queue"
	"fms-alerts/internal/store"
	sendwhatsappalert "fms-alerts/internal/workers/delivery/send-whatsapp-alert"
)

var ErrMissingPhone = errors.New("missing phone")

// Outcomes of Ingest.
const (
	OutcomeQueued    = "queued"
	OutcomeDuplicate = "duplicate"
	OutcomeSkipped   = "skipped"
)

// AlertStore is the idempotency gate.
type AlertStore interface {
	CreateAlertWithMessage(ctx context.Context, alert *models.Alert, msg *models.Message) (*store.CreateResult, error)
	CreateDiagnosticAlert(ctx context.Context, alert *models.Alert, msg *models.Message) (*store.CreateResult, error)
}

type Scheduler interface {
	Enqueue(ctx context.Context, task queue.Task) error
}

// Sender performs a synchronous delivery attempt.
type Sender interface {
	Execute(ctx context.Context, msg *models.Message, alertType string) (*sendwhatsappalert.Output, error)
}

type Config struct {
	PlainTextFallback bool
	SpeedLimit        int
}

type Service struct {
	config    Config
	resolver  *template.Resolver
	store     AlertStore
	scheduler Scheduler
	sender    Sender
	logger    logger.Logger
	now       func() time.Time
}

func NewService(cfg Config, resolver *template.Resolver, st AlertStore, scheduler Scheduler, sender Sender, log logger.Logger) *Service {
	if cfg.SpeedLimit <= 0 {
		cfg.SpeedLimit = placeholder.DefaultSpeedLimit
	}
	return &Service{
		config:    cfg,
		resolver:  resolver,
		store:     st,
		scheduler: scheduler,
		sender:    sender,
		logger:    log.WithFields(map[string]interface{}{"component": "pipeline"}),
		now:       time.Now,
	}
}

// Result is the outcome of one webhook.
type Result struct {
	Outcome      string `json:"outcome"`
	AlertID      int64  `json:"alertId,omitempty"`
	MessageID    int64  `json:"messageId,omitempty"`
	TemplateCode string `json:"templateCode,omitempty"`
	Language     string `json:"language,omitempty"`
	Enqueued     bool   `json:"enqueued"`
}

// Ingest runs a decoded webhook through the gate, resolver and builder and
// schedules delivery. Duplicate and skipped alerts are results, not errors.
func (s *Service) Ingest(ctx context.Context, payload map[string]interface{}, raw []byte) (*Result, error) {
	fields := placeholder.ExtractAt(payload, s.now())
	log := s.logger.WithFields(map[string]interface{}{
		"vehicleId": fields.VehicleID,
		"alertType": fields.AlertType,
	})

	msg, ok := s.prepareMessage(fields, s.config.PlainTextFallback)
	if !ok {
		log.Warn("no template mapped for alert type", map[string]interface{}{
			"normalizedType": template.Normalize(fields.AlertType),
		})
		metrics.AlertsIngested.WithLabelValues(metrics.OutcomeSkipped).Inc()
		return &Result{Outcome: OutcomeSkipped}, nil
	}

	if fields.Phone == "" {
		log.Error("missing phone in payload", nil)
		metrics.AlertsIngested.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, apperrors.NewMissingPhoneError(ErrMissingPhone)
	}

	if len(raw) == 0 {
		var err error
		if raw, err = json.Marshal(payload); err != nil {
			return nil, apperrors.NewInvalidPayloadError(err.Error())
		}
	}

	alert := newAlert(fields, raw)
	alert.IdempotencyKey = store.IdempotencyKey(fields.VehicleID, fields.AlertType, fields.OccurredAt)

	created, err := s.store.CreateAlertWithMessage(ctx, alert, msg)
	if err != nil {
		log.Error("database operation failed", map[string]interface{}{
			"error":    err,
			"template": msg.TemplateCode,
		})
		metrics.AlertsIngested.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, apperrors.NewStorageFailedError("create alert", err)
	}
	if !created.Created {
		log.Info("duplicate alert ignored", map[string]interface{}{"alertId": created.AlertID})
		metrics.AlertsIngested.WithLabelValues(metrics.OutcomeDuplicate).Inc()
		return &Result{Outcome: OutcomeDuplicate, AlertID: created.AlertID}, nil
	}

	result := &Result{
		Outcome:      OutcomeQueued,
		AlertID:      created.AlertID,
		MessageID:    created.MessageID,
		TemplateCode: msg.TemplateCode,
		Language:     msg.Language,
	}

	task := queue.Task{MessageID: created.MessageID, AlertType: fields.AlertType}
	if err := s.scheduler.Enqueue(ctx, task); err != nil {
		// Committed; the sweep enqueues pending messages past their grace period.
		log.Error("failed to enqueue delivery", map[string]interface{}{
			"messageId": created.MessageID,
			"error":     err,
		})
	} else {
		result.Enqueued = true
	}

	log.Info("alert queued", map[string]interface{}{
		"alertId":   created.AlertID,
		"messageId": created.MessageID,
		"template":  msg.TemplateCode,
		"language":  msg.Language,
		"phone":     fields.Phone,
	})
	metrics.AlertsIngested.WithLabelValues(metrics.OutcomeQueued).Inc()
	return result, nil
}

// prepareMessage resolves the template and builds a pending message. ok is
// false when the alert type is unmapped and fallback is off.
func (s *Service) prepareMessage(fields placeholder.Fields, fallback bool) (*models.Message, bool) {
	msg := &models.Message{
		ToPhoneNumber: fields.Phone,
		Status:        models.StatusPending,
	}

	if res, ok := s.resolver.Resolve(fields.AlertType); ok {
		msg.TemplateCode = res.TemplateCode
		msg.Language = res.Language
		msg.Placeholders = placeholder.Build(fields)
		return msg, true
	}
	if !fallback {
		return nil, false
	}

	msg.TemplateCode = models.PlainTextTemplate
	msg.Language = s.resolver.DefaultLanguage()
	msg.Placeholders = []string{}
	msg.Text = placeholder.RenderText(fields, s.config.SpeedLimit)
	return msg, true
}

func newAlert(fields placeholder.Fields, raw []byte) *models.Alert {
	alert := &models.Alert{
		VehicleID: fields.VehicleID,
		AlertType: fields.AlertType,
		Payload:   json.RawMessage(raw),
	}
	if fields.EventID != "" {
		alert.EventID = &fields.EventID
	}
	if fields.CustomerID != "" {
		alert.CustomerID = &fields.CustomerID
	}
	if t, ok := placeholder.ParseTime(fields.OccurredAt); ok {
		t = t.Truncate(time.Second)
		alert.OccurredAt = &t
	}
	return alert
}

// DiagnosticRequest is a manual test send.
type DiagnosticRequest struct {
	AlertType string `json:"alertType"`
	Phone     string `json:"phone"`
	VehicleID string `json:"vehicleId"`
	Direct    bool   `json:"direct"`
}

// DiagnosticResult reports what was built and, for direct sends, what the provider said.
type DiagnosticResult struct {
	AlertID      int64                     `json:"alertId"`
	MessageID    int64                     `json:"messageId"`
	TemplateCode string                    `json:"templateCode"`
	Language     string                    `json:"language"`
	PlainText    bool                      `json:"plainText"`
	Placeholders []string                  `json:"placeholders,omitempty"`
	Text         string                    `json:"text,omitempty"`
	Direct       bool                      `json:"direct"`
	Delivery     *sendwhatsappalert.Output `json:"delivery,omitempty"`
}

// DefaultDiagnosticVehicle is used when a diagnostic request names no vehicle.
const DefaultDiagnosticVehicle = "TEST-CMD"

// Preview resolves and builds the message for a sample alert without storing it.
func (s *Service) Preview(req DiagnosticRequest) (*models.Message, placeholder.Fields) {
	msg, fields, _ := s.sample(req)
	return msg, fields
}

func (s *Service) sample(req DiagnosticRequest) (*models.Message, placeholder.Fields, map[string]interface{}) {
	if req.VehicleID == "" {
		req.VehicleID = DefaultDiagnosticVehicle
	}
	now := s.now()
	payload := placeholder.Sample(req.AlertType, req.VehicleID, req.Phone, now)
	fields := placeholder.ExtractAt(payload, now)
	msg, _ := s.prepareMessage(fields, true)
	return msg, fields, payload
}

// Diagnose stores a sample alert under a random key and either sends it now
// through the delivery worker or queues it like a webhook alert. Unmapped
// alert types always use the plain-text fallback.
func (s *Service) Diagnose(ctx context.Context, req DiagnosticRequest) (*DiagnosticResult, error) {
	if req.Phone == "" {
		return nil, apperrors.NewMissingPhoneError(ErrMissingPhone)
	}
	if req.AlertType == "" {
		return nil, apperrors.NewValidationError("alert type is required")
	}

	msg, fields, raw := s.sample(req)
	payload, err := json.Marshal(raw)
	if err != nil {
		return nil, apperrors.NewInvalidPayloadError(err.Error())
	}

	alert := newAlert(fields, payload)
	eventID := "TEST-" + uuid.NewString()
	alert.EventID = &eventID

	created, err := s.store.CreateDiagnosticAlert(ctx, alert, msg)
	if err != nil {
		return nil, apperrors.NewStorageFailedError("create diagnostic alert", err)
	}

	result := &DiagnosticResult{
		AlertID:      created.AlertID,
		MessageID:    created.MessageID,
		TemplateCode: msg.TemplateCode,
		Language:     msg.Language,
		PlainText:    msg.IsPlainText(),
		Placeholders: msg.Placeholders,
		Text:         msg.Text,
		Direct:       req.Direct,
	}

	log := s.logger.WithFields(map[string]interface{}{
		"alertId":   created.AlertID,
		"messageId": created.MessageID,
		"alertType": req.AlertType,
		"template":  msg.TemplateCode,
		"direct":    req.Direct,
	})

	if req.Direct {
		out, err := s.sender.Execute(ctx, msg, req.AlertType)
		if err != nil {
			return result, err
		}
		result.Delivery = out
		log.Info("diagnostic alert sent directly", map[string]interface{}{"status": out.Status})
		return result, nil
	}

	if err := s.scheduler.Enqueue(ctx, queue.Task{MessageID: created.MessageID, AlertType: req.AlertType}); err != nil {
		return result, apperrors.NewQueueFailedError(fmt.Errorf("enqueue message %d: %w", created.MessageID, err))
	}
	log.Info("diagnostic alert queued", nil)
	return result, nil
}

// Templates lists the configured alert-type mappings.
func (s *Service) Templates() []template.Resolution {
	return s.resolver.Templates()
}

// EnglishTemplates lists mappings whose templates are in English.
func (s *Service) EnglishTemplates() []template.Resolution {
	return s.resolver.EnglishTemplates()
}
