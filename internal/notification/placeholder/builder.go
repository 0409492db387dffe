// internal/notification/placeholder/builder.go
package placeholder

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Count is the fixed length of the template placeholder list.
const Count = 8

const (
	DefaultSpeedLimit = 100
	UnknownTime       = "Unknown time"
)

// Build returns the template placeholders in provider order: vehicle id, alert
// type, message, occurred-at, latitude, longitude, speed, address.
func Build(f Fields) []string {
	return []string{
		f.VehicleID,
		f.AlertType,
		f.Message,
		f.OccurredAt,
		f.Latitude,
		f.Longitude,
		f.Speed,
		f.Address,
	}
}

// RenderText builds the free-text body used when an alert type has no template.
func RenderText(f Fields, speedLimit int) string {
	if speedLimit <= 0 {
		speedLimit = DefaultSpeedLimit
	}

	var b strings.Builder
	b.WriteString("Vehicle ")
	b.WriteString(f.VehicleID)
	b.WriteString(" triggered ")
	b.WriteString(f.AlertType)
	b.WriteString(" at ")
	b.WriteString(FormatTime(f.OccurredAt))

	if IsNumeric(f.Speed) && strings.Contains(strings.ToLower(f.AlertType), "speed") {
		b.WriteString(", speed ")
		b.WriteString(strings.TrimSpace(f.Speed))
		b.WriteString("km/h (limit ")
		b.WriteString(strconv.Itoa(speedLimit))
		b.WriteString(")")
	}

	if f.Address != "" {
		b.WriteString(" at ")
		b.WriteString(f.Address)
	}

	b.WriteString(".")
	return b.String()
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// ParseTime accepts the ISO-like timestamp shapes FMS senders emit.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatTime renders occurred-at as "3:04 PM" in its own offset.
func FormatTime(s string) string {
	t, ok := ParseTime(s)
	if !ok {
		return UnknownTime
	}
	return t.Format("3:04 PM")
}

// IsNumeric reports whether s is a finite decimal number.
func IsNumeric(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return false
	}
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
