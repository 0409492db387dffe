// internal/models/message.go
package models

import "time"

// PlainTextTemplate is the template code stored on messages that are delivered
// as free text because the alert type has no template mapping.
const PlainTextTemplate = "plain_text_fallback"

type MessageStatus string

const (
	StatusPending MessageStatus = "pending"
	StatusSent    MessageStatus = "sent"
	StatusFailed  MessageStatus = "failed"

	// Reserved for provider delivery callbacks.
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// Message is one outbound WhatsApp notification lineage for an Alert.
// Only the delivery worker mutates it after creation.
type Message struct {
	ID                int64         `json:"id"`
	AlertID           int64         `json:"alertId"`
	AlertType         string        `json:"alertType,omitempty"` // read from the owning alert
	ToPhoneNumber     string        `json:"toPhoneNumber"`
	TemplateCode      string        `json:"templateCode"`
	Language          string        `json:"language"`
	Status            MessageStatus `json:"status"`
	ProviderMessageID *string       `json:"providerMessageId,omitempty"`
	Attempts          int           `json:"attempts"`
	LastError         *string       `json:"lastError,omitempty"`
	Placeholders      []string      `json:"placeholders"`
	Text              string        `json:"text,omitempty"`
	CreatedAt         time.Time     `json:"createdAt"`
	UpdatedAt         time.Time     `json:"updatedAt"`
}

// IsPlainText reports whether the message is sent through the free-text endpoint.
func (m *Message) IsPlainText() bool {
	return m.TemplateCode == PlainTextTemplate
}

// Kind returns "text" or "template", used as a log and metric label.
func (m *Message) Kind() string {
	if m.IsPlainText() {
		return "text"
	}
	return "template"
}

// MarkSent records a successful provider call.
func (m *Message) MarkSent(providerMessageID string) {
	m.Status = StatusSent
	m.ProviderMessageID = &providerMessageID
	m.LastError = nil
}

// MarkFailed records a rejected or failed provider call.
func (m *Message) MarkFailed(reason string) {
	m.Status = StatusFailed
	m.LastError = &reason
}
