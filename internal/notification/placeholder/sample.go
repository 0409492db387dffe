// internal/notification/placeholder/sample.go
package placeholder

import (
	"fmt"
	"time"

	"fms-alerts/internal/notification/template"
)

// Sample builds a realistic webhook payload for diagnostic sends.
func Sample(alertType, vehicleID, phone string, now time.Time) map[string]interface{} {
	payload := map[string]interface{}{
		"alert_type":   alertType,
		"vehicle_id":   vehicleID,
		"phone_number": phone,
		"occurred_at":  now.UTC().Format(time.RFC3339),
		"customer_id":  "TEST-CUSTOMER",
	}

	switch template.Normalize(alertType) {
	case "overspeed":
		payload["message"] = "Vehicle exceeded speed limit during test"
		payload["speed"] = "125"
		payload["address"] = "King Fahd Road, Riyadh (Test Location)"
		payload["location"] = map[string]interface{}{"lat": "24.7136", "lng": "46.6753"}
	case "ignition_on":
		payload["message"] = "Vehicle ignition turned on during test"
		payload["address"] = "Olaya Street, Riyadh (Test Location)"
		payload["location"] = map[string]interface{}{"lat": "24.6877", "lng": "46.7219"}
	case "ignition_off":
		payload["message"] = "Vehicle ignition turned off during test"
		payload["address"] = "Prince Mohammed Bin Abdulaziz Road, Riyadh (Test Location)"
		payload["location"] = map[string]interface{}{"lat": "24.7744", "lng": "46.7383"}
	default:
		payload["message"] = fmt.Sprintf("Test alert for %s", alertType)
		payload["address"] = "Test Location, Riyadh"
		payload["location"] = map[string]interface{}{"lat": "24.7136", "lng": "46.6753"}
	}
	return payload
}
