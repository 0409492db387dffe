// internal/workers/delivery/send-whatsapp-alert/config.go
package sendwhatsappalert

import (
	"time"

	"fms-alerts/internal/common/config"
)

type Config struct {
	MaxAttempts  int
	Backoff      time.Duration
	Timeout      time.Duration
	PendingGrace time.Duration
	Lease        time.Duration
	SweepBatch   int
}

func LoadConfig(cfg config.DeliveryConfig) *Config {
	c := &Config{
		MaxAttempts:  cfg.MaxAttempts,
		Backoff:      config.GetDuration(cfg.Backoff),
		Timeout:      10 * time.Second,
		PendingGrace: config.GetDuration(cfg.PendingGrace),
		Lease:        config.GetDuration(cfg.Lease),
		SweepBatch:   100,
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = 3 * time.Second
	}
	if c.PendingGrace <= 0 {
		c.PendingGrace = 2 * time.Minute
	}
	// The lease must outlive one attempt.
	if c.Lease < 2*c.Timeout {
		c.Lease = 2 * c.Timeout
	}
	return c
}
