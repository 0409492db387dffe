// internal/workers/delivery/send-whatsapp-alert/models.go
package sendwhatsappalert

import (
	apperrors "fms-alerts/internal/common/errors"
	"fms-alerts/internal/models"
)

// Output describes one delivery attempt.
type Output struct {
	MessageID         int64                    `json:"messageId"`
	Kind              string                   `json:"kind"` // "template" or "text"
	Status            models.MessageStatus     `json:"status"`
	Attempts          int                      `json:"attempts"`
	StatusCode        int                      `json:"statusCode,omitempty"`
	ProviderMessageID string                   `json:"providerMessageId,omitempty"`
	Retry             bool                     `json:"retry"`    // another attempt is allowed
	Requeued          bool                     `json:"requeued"` // and was scheduled
	Error             *apperrors.StandardError `json:"error,omitempty"`
}

// Terminal reports a failed message with no attempts left.
func (o *Output) Terminal() bool {
	return o.Status == models.StatusFailed && !o.Retry
}

