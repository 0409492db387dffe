// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml, then configs/config.<APP_ENVIRONMENT>.yaml,
// then environment overrides.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // optional

	return finalize(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finalize(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Booleans cannot be defaulted after unmarshal, an absent key and false look the same.
	v.SetDefault("alerts.plain_text_fallback", true)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("database.postgres.auto_migrate", true)
	return v
}

func finalize(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			// Unset variables expand to the empty string.
			if expanded := os.ExpandEnv(strVal); expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig fills values the deployment traditionally passes as bare env vars.
func overrideEmptyConfig(cfg *Config) {
	setIfEmpty(&cfg.Infobip.APIKey, "INFOBIP_API_KEY")
	setIfEmpty(&cfg.Infobip.BaseURL, "INFOBIP_BASE_URL")
	setIfEmpty(&cfg.Infobip.Sender, "WABA_SENDER")
	setIfEmpty(&cfg.Webhook.SigningSecret, "WEBHOOK_SIGNING_SECRET")
	setIfEmpty(&cfg.Alerts.DefaultLanguage, "DEFAULT_LANGUAGE")
	setIfEmpty(&cfg.Database.Postgres.User, "DB_USER")
	setIfEmpty(&cfg.Database.Postgres.Password, "DB_PASSWORD")
	setIfEmpty(&cfg.HTTP.AdminToken, "ADMIN_TOKEN")
	setIfEmpty(&cfg.Observability.TracingEndpoint, "OTEL_EXPORTER_JAEGER_ENDPOINT")

	if len(cfg.Webhook.AllowedSourceIPs) == 0 {
		if val := os.Getenv("ALLOWED_SOURCE_IPS"); val != "" {
			cfg.Webhook.AllowedSourceIPs = splitList(val)
		}
	}

	cfg.Infobip.BaseURL = strings.TrimRight(cfg.Infobip.BaseURL, "/")
}

func setIfEmpty(dst *string, envKey string) {
	if *dst != "" {
		return
	}
	if val := os.Getenv(envKey); val != "" {
		*dst = val
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "fms-alerts"
	}

	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 10000
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 10000
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	// Infobip: sub-second connect, single-digit-second total.
	if cfg.Infobip.ConnectTimeout == 0 {
		cfg.Infobip.ConnectTimeout = 200
	}
	if cfg.Infobip.Timeout == 0 {
		cfg.Infobip.Timeout = 2000
	}

	if cfg.Webhook.SignatureHeader == "" {
		cfg.Webhook.SignatureHeader = "X-Tawasul-Signature"
	}
	if cfg.Webhook.MaxBodyBytes == 0 {
		cfg.Webhook.MaxBodyBytes = 1 << 20
	}

	if cfg.Delivery.Workers == 0 {
		cfg.Delivery.Workers = 4
	}
	if cfg.Delivery.MaxAttempts == 0 {
		cfg.Delivery.MaxAttempts = 3
	}
	if cfg.Delivery.Backoff == 0 {
		cfg.Delivery.Backoff = 3000
	}
	if cfg.Delivery.PollInterval == 0 {
		cfg.Delivery.PollInterval = 250
	}
	if cfg.Delivery.SweepInterval == 0 {
		cfg.Delivery.SweepInterval = 60000
	}
	if cfg.Delivery.PendingGrace == 0 {
		cfg.Delivery.PendingGrace = 120000
	}
	if cfg.Delivery.Lease == 0 {
		cfg.Delivery.Lease = 60000
	}
	if cfg.Delivery.QueueKey == "" {
		cfg.Delivery.QueueKey = "whatsapp:tasks"
	}

	if cfg.Alerts.DefaultLanguage == "" {
		cfg.Alerts.DefaultLanguage = os.Getenv("DEFAULT_LANGUAGE")
	}
	if cfg.Alerts.DefaultLanguage == "" {
		cfg.Alerts.DefaultLanguage = "ar"
	}
	if cfg.Alerts.EnglishSuffix == "" {
		cfg.Alerts.EnglishSuffix = "_en"
	}
	if cfg.Alerts.SpeedLimit == 0 {
		cfg.Alerts.SpeedLimit = 100
	}
	if len(cfg.Alerts.Templates) == 0 {
		cfg.Alerts.Templates = DefaultTemplates()
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.Logging.MaxSize == 0 {
		cfg.Logging.MaxSize = 100
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = 3
	}
	if cfg.Logging.MaxAge == 0 {
		cfg.Logging.MaxAge = 7
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}

	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}

	if cfg.Infobip.BaseURL == "" {
		return fmt.Errorf("infobip.base_url is required")
	}

	if cfg.Delivery.MaxAttempts < 1 {
		return fmt.Errorf("delivery.max_attempts must be at least 1")
	}

	seen := make(map[string]struct{}, len(cfg.Alerts.Templates))
	for i, entry := range cfg.Alerts.Templates {
		if entry.AlertType == "" || entry.Template == "" {
			return fmt.Errorf("alerts.templates[%d]: alert_type and template are required", i)
		}
		if _, dup := seen[entry.AlertType]; dup {
			return fmt.Errorf("alerts.templates: duplicate alert_type %q", entry.AlertType)
		}
		seen[entry.AlertType] = struct{}{}
	}

	return nil
}
