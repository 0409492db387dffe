// internal/models/alert.go
package models

import (
	"encoding/json"
	"time"
)

// Alert is one deduplicated FMS telemetry event. It is written once and never mutated.
type Alert struct {
	ID             int64           `json:"id"`
	IdempotencyKey string          `json:"idempotencyKey"`
	EventID        *string         `json:"eventId,omitempty"`
	VehicleID      string          `json:"vehicleId"`
	CustomerID     *string         `json:"customerId,omitempty"`
	AlertType      string          `json:"alertType"` // raw, as received
	OccurredAt     *time.Time      `json:"occurredAt,omitempty"`
	Payload        json.RawMessage `json:"payload"`
	CreatedAt      time.Time       `json:"createdAt"`
}
