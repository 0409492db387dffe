// internal/workers/delivery/send-whatsapp-alert/handler.go
package sendwhatsappalert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	apperrors "fms-alerts/internal/common/errors"
	"fms-alerts/internal/common/infobip"
	"fms-alerts/internal/common/logger"
	"fms-alerts/internal/common/metrics"
	"fms-alerts/internal/common/observability"
	"fms-alerts/internal/models"
	"fms-alerts/internal/queue"
	"fms-alerts/internal/store"
)

const (
	TaskType = "send-whatsapp-alert"
)

// MessageStore is the slice of the store the worker needs.
type MessageStore interface {
	GetMessage(ctx context.Context, id int64) (*models.Message, error)
	SaveMessage(ctx context.Context, msg *models.Message) error
	ListMessagesByStatus(ctx context.Context, status models.MessageStatus, olderThan time.Time, maxAttempts, limit int) ([]*models.Message, error)
}

// Provider sends WhatsApp messages.
type Provider interface {
	SendTemplate(ctx context.Context, to, templateCode string, placeholders []string, language string) (*infobip.Result, error)
	SendText(ctx context.Context, to, text string) (*infobip.Result, error)
}

// Scheduler puts tasks back on the delivery queue.
type Scheduler interface {
	Enqueue(ctx context.Context, task queue.Task) error
	EnqueueAfter(ctx context.Context, task queue.Task, delay time.Duration) error
	InFlight(ctx context.Context, messageID int64) (bool, error)
}

type Handler struct {
	config    *Config
	store     MessageStore
	provider  Provider
	scheduler Scheduler
	obs       *observability.Observability
	logger    logger.Logger
	now       func() time.Time
}

func NewHandler(config *Config, st MessageStore, provider Provider, scheduler Scheduler, obs *observability.Observability, log logger.Logger) *Handler {
	if obs == nil {
		obs = observability.NewNoop()
	}
	return &Handler{
		config:    config,
		store:     st,
		provider:  provider,
		scheduler: scheduler,
		obs:       obs,
		logger:    log.WithFields(map[string]interface{}{"taskType": TaskType}),
		now:       time.Now,
	}
}

// Handle processes one queued task. It returns an error only when the message
// could not be loaded or its state could not be persisted.
func (h *Handler) Handle(ctx context.Context, task queue.Task) error {
	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	msg, err := h.store.GetMessage(ctx, task.MessageID)
	if errors.Is(err, store.ErrNotFound) {
		h.logger.Warn("message not found, dropping task", map[string]interface{}{
			"messageId": task.MessageID,
			"alertType": task.AlertType,
		})
		return nil
	}
	if err != nil {
		return apperrors.NewStorageFailedError("get message", err)
	}

	if msg.Status == models.StatusSent {
		h.logger.Info("message already sent, skipping", map[string]interface{}{
			"messageId": msg.ID,
			"attempts":  msg.Attempts,
		})
		return nil
	}
	if msg.Attempts >= h.config.MaxAttempts {
		h.logger.Warn("message has no attempts left, skipping", map[string]interface{}{
			"messageId": msg.ID,
			"attempts":  msg.Attempts,
		})
		return nil
	}

	alertType := task.AlertType
	if alertType == "" {
		alertType = msg.AlertType
	}

	output, err := h.attempt(ctx, msg, alertType)
	if err != nil {
		return err
	}

	if output.Retry {
		if err := h.scheduler.EnqueueAfter(ctx, task, h.config.Backoff); err != nil {
			// The sweep picks up failed messages with attempts left.
			h.logger.Error("failed to requeue message", map[string]interface{}{
				"messageId": msg.ID,
				"error":     err,
			})
			return nil
		}
		output.Requeued = true
	}
	return nil
}

// Execute makes one synchronous attempt without requeueing. Used by the
// diagnostic send path.
func (h *Handler) Execute(ctx context.Context, msg *models.Message, alertType string) (*Output, error) {
	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()
	return h.attempt(ctx, msg, alertType)
}

func (h *Handler) attempt(ctx context.Context, msg *models.Message, alertType string) (*Output, error) {
	kind := msg.Kind()
	ctx, span := h.obs.StartSpan(ctx, "whatsapp.deliver",
		attribute.Int64("message.id", msg.ID),
		attribute.String("message.kind", kind),
		attribute.String("alert.type", alertType),
	)
	defer span.End()

	log := h.logger.WithFields(map[string]interface{}{
		"messageId": msg.ID,
		"alertId":   msg.AlertID,
		"template":  msg.TemplateCode,
		"phone":     msg.ToPhoneNumber,
		"alertType": alertType,
		"language":  msg.Language,
		"traceId":   observability.TraceID(ctx),
	})
	log.Info("processing whatsapp alert", map[string]interface{}{"attempt": msg.Attempts + 1})

	start := h.now()
	var (
		res     *infobip.Result
		sendErr error
	)
	if msg.IsPlainText() {
		res, sendErr = h.provider.SendText(ctx, msg.ToPhoneNumber, msg.Text)
	} else {
		res, sendErr = h.provider.SendTemplate(ctx, msg.ToPhoneNumber, msg.TemplateCode, msg.Placeholders, msg.Language)
	}

	msg.Attempts++
	output := &Output{MessageID: msg.ID, Kind: kind}
	if res != nil {
		output.StatusCode = res.StatusCode
	}

	switch {
	case errors.Is(sendErr, infobip.ErrValidation):
		// Rejected before any network call; a configuration fault, not an outage.
		output.Error = apperrors.NewValidationError(sendErr.Error())
		msg.MarkFailed(sendErr.Error())
	case sendErr != nil:
		output.Error = apperrors.NewProviderUnreachableError(sendErr)
		msg.MarkFailed(sendErr.Error())
	case res.Successful() && res.ProviderMessageID != "":
		msg.MarkSent(res.ProviderMessageID)
		output.ProviderMessageID = res.ProviderMessageID
	case res.Successful():
		output.Error = apperrors.NewProviderRejectedError(res.StatusCode, res.Body)
		msg.MarkFailed(fmt.Sprintf("no message id in %d response: %s", res.StatusCode, res.Body))
	default:
		output.Error = apperrors.NewProviderRejectedError(res.StatusCode, res.Body)
		msg.MarkFailed(failureBody(res))
	}

	output.Status = msg.Status
	output.Attempts = msg.Attempts
	output.Retry = msg.Status == models.StatusFailed && msg.Attempts < h.config.MaxAttempts

	outcome := metrics.OutcomeSent
	switch {
	case output.Retry:
		outcome = metrics.OutcomeRetry
	case output.Terminal():
		outcome = metrics.OutcomeExhausted
	}
	metrics.DeliveryAttempts.WithLabelValues(kind, outcome).Inc()
	h.obs.RecordJobProcessed(ctx, kind, outcome)
	h.obs.RecordJobDuration(ctx, h.now().Sub(start), kind, outcome)

	fields := map[string]interface{}{
		"attempt":    msg.Attempts,
		"outcome":    outcome,
		"statusCode": output.StatusCode,
	}
	if output.Error == nil {
		fields["providerMessageId"] = output.ProviderMessageID
		log.Info("whatsapp alert sent", fields)
	} else {
		span.SetStatus(codes.Error, string(output.Error.Code))
		fields["errorCode"] = output.Error.Code
		fields["lastError"] = *msg.LastError
		if output.Terminal() {
			log.Error("whatsapp alert failed permanently", fields)
		} else {
			log.Warn("whatsapp alert failed, will retry", fields)
		}
	}

	// The attempt is persisted whatever its outcome.
	if err := h.store.SaveMessage(context.WithoutCancel(ctx), msg); err != nil {
		log.Error("failed to persist delivery attempt", map[string]interface{}{"error": err})
		return output, apperrors.NewStorageFailedError("save message", err)
	}
	return output, nil
}

func failureBody(res *infobip.Result) string {
	if res.Body != "" {
		return res.Body
	}
	return fmt.Sprintf("HTTP %d", res.StatusCode)
}

// Sweep re-enqueues pending messages whose task was lost and failed messages
// that still have attempts left. Tasks already waiting keep their schedule and
// messages leased by a worker are left alone.
func (h *Handler) Sweep(ctx context.Context) (int, error) {
	cutoff := h.now().Add(-h.config.PendingGrace)
	requeued := 0

	for _, status := range []models.MessageStatus{models.StatusPending, models.StatusFailed} {
		msgs, err := h.store.ListMessagesByStatus(ctx, status, cutoff, h.config.MaxAttempts, h.config.SweepBatch)
		if err != nil {
			return requeued, apperrors.NewStorageFailedError("list messages", err)
		}
		for _, msg := range msgs {
			busy, err := h.scheduler.InFlight(ctx, msg.ID)
			if err != nil {
				return requeued, apperrors.NewQueueFailedError(err)
			}
			if busy {
				continue
			}
			if err := h.scheduler.Enqueue(ctx, queue.Task{MessageID: msg.ID, AlertType: msg.AlertType}); err != nil {
				return requeued, apperrors.NewQueueFailedError(err)
			}
			requeued++
		}
	}

	if requeued > 0 {
		h.logger.Info("sweep requeued messages", map[string]interface{}{"count": requeued})
	}
	return requeued, nil
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (h *Handler) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := h.Sweep(ctx); err != nil && ctx.Err() == nil {
				h.logger.Error("sweep failed", map[string]interface{}{"error": err})
			}
		}
	}
}
