package validation

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) map[string]interface{} {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var out map[string]interface{}
	require.NoError(t, dec.Decode(&out))
	return out
}

func TestWebhookSchema_Valid(t *testing.T) {
	tests := []string{
		`{}`,
		`{"alert_type":"Overspeed","vehicle_id":"V1","phone_number":"966500000000","speed":"120"}`,
		`{"type":"SOS","vehicleId":1234,"phone":966500000000,"location":{"lat":24.7,"lng":"46.6"}}`,
		`{"body":{"vehicle":{"id":"V"},"user":{"phone_number":"+966"}},"timestamp":1735689600}`,
		`{"alertType":"x","message":null,"location":null,"extra":{"anything":true}}`,
		`{"alert_type":null,"type":"Overspeed","vehicle_id":"V1","phone_number":"966500000000"}`,
		`{"alert_type":"SOS","occurred_at":null,"occurredAt":"2025-01-01T10:00:00Z"}`,
		`{"alert_type":"SOS","vehicle_id":null,"vehicleId":"V9","phone_number":null,"phone":"966500000000"}`,
		`{"type":null,"alertType":"SOS","occurredAt":null,"timestamp":null,"body":null,"user":null}`,
	}
	for _, raw := range tests {
		res := WebhookSchema.Validate(decode(t, raw))
		assert.True(t, res.Valid, "%s: %v", raw, res.GetErrorMessages())
	}
}

func TestWebhookSchema_Invalid(t *testing.T) {
	res := WebhookSchema.Validate(decode(t, `{"alert_type":42,"location":{"lat":true}}`))
	require.False(t, res.Valid)
	fields := make([]string, 0, len(res.Errors))
	for _, e := range res.Errors {
		fields = append(fields, e.Field)
	}
	assert.Contains(t, fields, "alert_type")
	assert.Contains(t, fields, "location.lat")
	assert.NotEmpty(t, res.GetErrorMessages())
}

func TestDiagnosticSchema(t *testing.T) {
	assert.True(t, DiagnosticSchema.Validate(decode(t, `{"phone":"966500000000","direct":true}`)).Valid)
	assert.False(t, DiagnosticSchema.Validate(decode(t, `{"vehicle_id":"V"}`)).Valid)
	assert.False(t, DiagnosticSchema.Validate(decode(t, `{"phone":"","direct":"yes"}`)).Valid)
}

func TestNewSchema_Invalid(t *testing.T) {
	_, err := NewSchema(`{"type": 12}`)
	assert.Error(t, err)
}
