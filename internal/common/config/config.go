// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Database DatabaseConfig `mapstructure:"database"`
	Infobip  InfobipConfig  `mapstructure:"infobip"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Delivery DeliveryConfig `mapstructure:"delivery"`
	Alerts   AlertsConfig   `mapstructure:"alerts"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`

	Observability ObservabilityConfig `mapstructure:"observability"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type HTTPConfig struct {
	Addr         string `mapstructure:"addr"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // milliseconds
	WriteTimeout int    `mapstructure:"write_timeout"` // milliseconds
	AdminToken   string `mapstructure:"admin_token"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
	AutoMigrate    bool   `mapstructure:"auto_migrate"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// InfobipConfig holds the WhatsApp provider credentials and timeouts.
type InfobipConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	Sender         string `mapstructure:"sender"`
	ConnectTimeout int    `mapstructure:"connect_timeout"` // milliseconds
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
}

// WebhookConfig controls inbound webhook authentication.
type WebhookConfig struct {
	SigningSecret    string   `mapstructure:"signing_secret"`
	SignatureHeader  string   `mapstructure:"signature_header"`
	RequireSignature bool     `mapstructure:"require_signature"`
	AllowedSourceIPs []string `mapstructure:"allowed_source_ips"`
	TrustProxy       bool     `mapstructure:"trust_proxy"` // take the client IP from X-Forwarded-For / X-Real-IP
	MaxBodyBytes     int64    `mapstructure:"max_body_bytes"`
}

// DeliveryConfig controls the asynchronous delivery worker pool.
type DeliveryConfig struct {
	Workers       int    `mapstructure:"workers"`
	MaxAttempts   int    `mapstructure:"max_attempts"`
	Backoff       int    `mapstructure:"backoff"`        // milliseconds
	PollInterval  int    `mapstructure:"poll_interval"`  // milliseconds
	SweepInterval int    `mapstructure:"sweep_interval"` // milliseconds
	PendingGrace  int    `mapstructure:"pending_grace"`  // milliseconds
	Lease         int    `mapstructure:"lease"`          // milliseconds a claimed message stays leased
	QueueKey      string `mapstructure:"queue_key"`
}

// AlertsConfig maps FMS alert types to WhatsApp templates.
// Templates is a list rather than a map because viper lowercases map keys and
// legacy alert types ("Overspeed", "Geofence Out") must match exactly.
type AlertsConfig struct {
	DefaultLanguage   string          `mapstructure:"default_language"`
	EnglishSuffix     string          `mapstructure:"english_suffix"`
	PlainTextFallback bool            `mapstructure:"plain_text_fallback"`
	SpeedLimit        int             `mapstructure:"speed_limit"`
	Templates         []TemplateEntry `mapstructure:"templates"`
}

// TemplateEntry is one alert-type mapping.
type TemplateEntry struct {
	AlertType string `mapstructure:"alert_type"`
	Template  string `mapstructure:"template"`
	Priority  string `mapstructure:"priority"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// ObservabilityConfig controls trace export.
type ObservabilityConfig struct {
	TracingEndpoint  string  `mapstructure:"tracing_endpoint"` // Jaeger collector URL; empty disables export
	TraceSampleRatio float64 `mapstructure:"trace_sample_ratio"`
}

// DefaultTemplates mirrors the legacy FMS mapping and is used when the config
// file does not define alerts.templates.
func DefaultTemplates() []TemplateEntry {
	return []TemplateEntry{
		{AlertType: "Overspeed", Template: "overspeed_alert_ar", Priority: "high"},
		{AlertType: "Geofence Out", Template: "geofence_exit_ar", Priority: "high"},
		{AlertType: "SOS", Template: "sos_alert_ar", Priority: "crit"},
		{AlertType: "Fuel (Fill/Theft)", Template: "fuel_alert_ar", Priority: "normal"},
		{AlertType: "Ignition ON/OFF", Template: "ignition_alert_ar", Priority: "normal"},
	}
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
