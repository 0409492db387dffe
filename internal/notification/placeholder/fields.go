// internal/notification/placeholder/fields.go
package placeholder

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Fields are the alert attributes the notifier cares about, extracted from a
// loosely structured webhook payload. Missing values are empty strings.
type Fields struct {
	AlertType  string `json:"alertType"`
	Message    string `json:"message"`
	VehicleID  string `json:"vehicleId"`
	CustomerID string `json:"customerId"`
	OccurredAt string `json:"occurredAt"`
	Phone      string `json:"phone"`
	EventID    string `json:"eventId"`
	Speed      string `json:"speed"`
	Address    string `json:"address"`
	Latitude   string `json:"latitude"`
	Longitude  string `json:"longitude"`
}

const (
	UnknownAlertType = "Unknown"
	UnknownVehicle   = "NA"
)

// Source paths in precedence order. Dotted paths walk nested objects.
var (
	alertTypePaths  = []string{"alert_type", "type", "alertType"}
	messagePaths    = []string{"message", "description"}
	vehiclePaths    = []string{"vehicle_id", "vehicleId", "body.vehicle.id"}
	customerPaths   = []string{"customer_id", "customerId", "body.customer.id"}
	occurredAtPaths = []string{"occurred_at", "occurredAt", "timestamp"}
	phonePaths      = []string{"phone_number", "body.user.phone_number", "phone", "body.customer.phone", "user.phone_number"}
	eventIDPaths    = []string{"event_id", "eventId"}
)

// Extract pulls Fields out of a decoded webhook payload.
func Extract(payload map[string]interface{}) Fields {
	return ExtractAt(payload, time.Now())
}

// ExtractAt is Extract with an explicit clock for the occurred-at default.
func ExtractAt(payload map[string]interface{}, now time.Time) Fields {
	f := Fields{
		AlertType:  first(payload, alertTypePaths),
		Message:    first(payload, messagePaths),
		VehicleID:  first(payload, vehiclePaths),
		CustomerID: first(payload, customerPaths),
		OccurredAt: first(payload, occurredAtPaths),
		Phone:      first(payload, phonePaths),
		EventID:    first(payload, eventIDPaths),
		Speed:      Lookup(payload, "speed"),
		Address:    Lookup(payload, "address"),
		Latitude:   Lookup(payload, "location.lat"),
		Longitude:  Lookup(payload, "location.lng"),
	}

	if f.AlertType == "" {
		f.AlertType = UnknownAlertType
	}
	if f.VehicleID == "" {
		f.VehicleID = UnknownVehicle
	}
	if f.OccurredAt == "" {
		f.OccurredAt = now.UTC().Format(time.RFC3339)
	}
	return f
}

func first(payload map[string]interface{}, paths []string) string {
	for _, p := range paths {
		if v := Lookup(payload, p); v != "" {
			return v
		}
	}
	return ""
}

// Lookup resolves a dotted path against nested maps and returns the scalar at
// the end of it as a string. Objects, arrays and nulls yield "".
func Lookup(payload map[string]interface{}, path string) string {
	var cur interface{} = payload
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return ""
		}
		if cur, ok = m[key]; !ok {
			return ""
		}
	}
	return stringify(cur)
}

func stringify(v interface{}) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	}
	return ""
}
