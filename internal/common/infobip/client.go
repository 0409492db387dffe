// internal/common/infobip/client.go
package infobip

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"fms-alerts/internal/common/config"
	commonhttp "fms-alerts/internal/common/http"
	"fms-alerts/internal/common/metrics"
)

const (
	templatePath = "/whatsapp/1/message/template"
	textPath     = "/whatsapp/1/message/text"

	KindTemplate = "template"
	KindText     = "text"

	maxBodyBytes = 1 << 20
)

var (
	// ErrValidation is returned before any network call when a required field is empty.
	ErrValidation = errors.New("infobip: invalid request")
	// ErrTransport wraps network-level failures: timeouts, DNS, refused connections.
	ErrTransport = errors.New("infobip: transport failure")
)

// Doer is satisfied by *http.Client and the shared common/http client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Config struct {
	BaseURL         string
	APIKey          string
	Sender          string
	DefaultLanguage string
	ConnectTimeout  time.Duration
	Timeout         time.Duration
}

// FromConfig maps the application config onto the client config.
func FromConfig(cfg config.InfobipConfig, defaultLanguage string) Config {
	return Config{
		BaseURL:         cfg.BaseURL,
		APIKey:          cfg.APIKey,
		Sender:          cfg.Sender,
		DefaultLanguage: defaultLanguage,
		ConnectTimeout:  config.GetDuration(cfg.ConnectTimeout),
		Timeout:         config.GetDuration(cfg.Timeout),
	}
}

// Result is the provider's answer. A non-2xx status is a Result, not an error.
type Result struct {
	StatusCode        int    `json:"statusCode"`
	Body              string `json:"body"`
	ProviderMessageID string `json:"providerMessageId,omitempty"`
}

// Successful reports a 2xx status.
func (r *Result) Successful() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Client sends WhatsApp messages through the Infobip HTTP API.
type Client struct {
	config Config
	http   Doer
}

// New builds a client. A nil doer gets a client with the configured timeouts.
func New(cfg Config, doer Doer) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "ar"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 200 * time.Millisecond
	}
	if doer == nil {
		doer = commonhttp.NewClientWithConnectTimeout(cfg.Timeout, cfg.ConnectTimeout)
	}
	return &Client{config: cfg, http: doer}
}

type templateRequest struct {
	From      string          `json:"from"`
	To        string          `json:"to"`
	MessageID string          `json:"messageId"`
	Content   templateContent `json:"content"`
}

type templateContent struct {
	TemplateName string       `json:"templateName"`
	TemplateData templateData `json:"templateData"`
	Language     string       `json:"language"`
}

type templateData struct {
	Body templateBody `json:"body"`
}

type templateBody struct {
	Placeholders []string `json:"placeholders"`
}

type textRequest struct {
	From      string      `json:"from"`
	To        string      `json:"to"`
	MessageID string      `json:"messageId"`
	Content   textContent `json:"content"`
}

type textContent struct {
	Text string `json:"text"`
}

// SendTemplate posts a pre-approved template with ordered placeholders.
// An empty language falls back to the configured default.
func (c *Client) SendTemplate(ctx context.Context, to, templateCode string, placeholders []string, language string) (*Result, error) {
	if err := c.validate(to); err != nil {
		return nil, err
	}
	if templateCode == "" {
		return nil, fmt.Errorf("%w: template code is empty", ErrValidation)
	}
	if language == "" {
		language = c.config.DefaultLanguage
	}
	if placeholders == nil {
		placeholders = []string{}
	}

	body := templateRequest{
		From:      c.config.Sender,
		To:        to,
		MessageID: newMessageID(),
		Content: templateContent{
			TemplateName: templateCode,
			TemplateData: templateData{Body: templateBody{Placeholders: placeholders}},
			Language:     language,
		},
	}

	res, err := c.post(ctx, KindTemplate, templatePath, body)
	if err != nil {
		return nil, err
	}
	if res.Successful() {
		res.ProviderMessageID = parseTemplateMessageID(res.Body)
	}
	return res, nil
}

// SendText posts a free-text message.
func (c *Client) SendText(ctx context.Context, to, text string) (*Result, error) {
	if err := c.validate(to); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is empty", ErrValidation)
	}

	body := textRequest{
		From:      c.config.Sender,
		To:        to,
		MessageID: newMessageID(),
		Content:   textContent{Text: text},
	}

	res, err := c.post(ctx, KindText, textPath, body)
	if err != nil {
		return nil, err
	}
	if res.Successful() {
		res.ProviderMessageID = parseTextMessageID(res.Body)
	}
	return res, nil
}

func (c *Client) validate(to string) error {
	if c.config.Sender == "" {
		return fmt.Errorf("%w: sender is not configured", ErrValidation)
	}
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("%w: recipient is empty", ErrValidation)
	}
	return nil
}

func (c *Client) post(ctx context.Context, kind, path string, payload interface{}) (*Result, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", kind, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", kind, err)
	}
	req.Header.Set("Authorization", "App "+c.config.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.ProviderRequestDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}

	return &Result{StatusCode: resp.StatusCode, Body: string(raw)}, nil
}

func newMessageID() string {
	return "msg_" + uuid.NewString()
}

// Template sends echo {"messages":[{"messageId":...}]}.
func parseTemplateMessageID(body string) string {
	var parsed struct {
		Messages []struct {
			MessageID string `json:"messageId"`
		} `json:"messages"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err != nil || len(parsed.Messages) == 0 {
		return ""
	}
	return parsed.Messages[0].MessageID
}

// Text sends echo {"messageId":...} at the top level.
func parseTextMessageID(body string) string {
	var parsed struct {
		MessageID string `json:"messageId"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return ""
	}
	return parsed.MessageID
}
