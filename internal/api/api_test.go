package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "fms-alerts/internal/common/errors"
	"fms-alerts/internal/common/logger"
	"fms-alerts/internal/notification/template"
	"fms-alerts/internal/pipeline"
)

// ==========================
// Test doubles
// ==========================

type fakePipeline struct {
	result    *pipeline.Result
	err       error
	payload   map[string]interface{}
	raw       []byte
	diagReq   pipeline.DiagnosticRequest
	diagRes   *pipeline.DiagnosticResult
	diagErr   error
	templates []template.Resolution
}

func (f *fakePipeline) Ingest(_ context.Context, payload map[string]interface{}, raw []byte) (*pipeline.Result, error) {
	f.payload = payload
	f.raw = raw
	if f.err != nil {
		return nil, f.err
	}
	if f.result == nil {
		return &pipeline.Result{Outcome: pipeline.OutcomeQueued, AlertID: 7, MessageID: 9, Enqueued: true}, nil
	}
	return f.result, nil
}

func (f *fakePipeline) Diagnose(_ context.Context, req pipeline.DiagnosticRequest) (*pipeline.DiagnosticResult, error) {
	f.diagReq = req
	if f.diagErr != nil {
		return f.diagRes, f.diagErr
	}
	if f.diagRes != nil {
		return f.diagRes, nil
	}
	return &pipeline.DiagnosticResult{AlertID: 1, MessageID: 2, TemplateCode: "overspeed_alert_en", Language: "en", Direct: req.Direct}, nil
}

func (f *fakePipeline) Templates() []template.Resolution { return f.templates }

func (f *fakePipeline) EnglishTemplates() []template.Resolution {
	var out []template.Resolution
	for _, t := range f.templates {
		if t.Language == template.LanguageEnglish {
			out = append(out, t)
		}
	}
	return out
}

func newTestServer(t *testing.T, cfg Config, p Pipeline, checkers ...Checker) http.Handler {
	t.Helper()
	return NewServer(cfg, p, checkers, logger.NewTestLogger(t)).Handler()
}

func do(h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

const webhookBody = `{"alert_type":"Overspeed","vehicle_id":"V1","phone_number":"966500000000","speed":120}`

// ==========================
// Webhook
// ==========================

func TestHandleAlert_Queued(t *testing.T) {
	p := &fakePipeline{}
	h := newTestServer(t, Config{}, p)

	rec := do(h, http.MethodPost, "/fms/alerts", webhookBody, nil)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"queued":true,"alert_id":7}`, rec.Body.String())
	assert.Equal(t, webhookBody, string(p.raw))
	assert.Equal(t, json.Number("120"), p.payload["speed"])
}

func TestHandleAlert_Outcomes(t *testing.T) {
	tests := []struct {
		name     string
		pipeline *fakePipeline
		wantCode int
		wantBody string
	}{
		{
			name:     "duplicate",
			pipeline: &fakePipeline{result: &pipeline.Result{Outcome: pipeline.OutcomeDuplicate, AlertID: 7}},
			wantCode: http.StatusOK,
			wantBody: `{"duplicate":true}`,
		},
		{
			name:     "skipped",
			pipeline: &fakePipeline{result: &pipeline.Result{Outcome: pipeline.OutcomeSkipped}},
			wantCode: http.StatusOK,
			wantBody: `{"skipped":true}`,
		},
		{
			name:     "missing phone",
			pipeline: &fakePipeline{err: apperrors.NewMissingPhoneError(pipeline.ErrMissingPhone)},
			wantCode: http.StatusUnprocessableEntity,
			wantBody: `{"error":"missing phone"}`,
		},
		{
			name:     "storage failure",
			pipeline: &fakePipeline{err: apperrors.NewStorageFailedError("create alert", errors.New("connection refused"))},
			wantCode: http.StatusInternalServerError,
			wantBody: `{"error":"Database operation failed","message":"Unable to process webhook due to database error"}`,
		},
		{
			name:     "unexpected error",
			pipeline: &fakePipeline{err: errors.New("boom")},
			wantCode: http.StatusInternalServerError,
			wantBody: `{"error":"internal error"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, Config{}, tt.pipeline)
			rec := do(h, http.MethodPost, "/fms/alerts", webhookBody, nil)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestHandleAlert_InvalidJSON(t *testing.T) {
	p := &fakePipeline{}
	h := newTestServer(t, Config{}, p)

	for _, body := range []string{`{"alert_type":`, `null`, `[1,2]`} {
		rec := do(h, http.MethodPost, "/fms/alerts", body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "invalid json", decodeBody(t, rec)["error"])
	}
	assert.Nil(t, p.payload)
}

func TestHandleAlert_SchemaViolation(t *testing.T) {
	p := &fakePipeline{}
	h := newTestServer(t, Config{}, p)

	rec := do(h, http.MethodPost, "/fms/alerts", `{"alert_type":"SOS","location":"riyadh"}`, nil)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "invalid payload", body["error"])
	assert.NotEmpty(t, body["details"])
	assert.Nil(t, p.payload)
}

func TestHandleAlert_NullFieldsFallThrough(t *testing.T) {
	p := &fakePipeline{}
	h := newTestServer(t, Config{}, p)

	body := `{"alert_type":null,"type":"Overspeed","vehicle_id":null,"vehicleId":"V1",
		"phone_number":null,"phone":"966500000000","occurred_at":null,"timestamp":"2025-01-01 10:00:00"}`
	rec := do(h, http.MethodPost, "/fms/alerts", body, nil)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.NotNil(t, p.payload)
	assert.Equal(t, "Overspeed", p.payload["type"])
}

func TestErrorFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/fms/alerts", nil)

	fields := errorFields(req, apperrors.NewSourceForbiddenError("203.0.113.9"))
	assert.Equal(t, apperrors.ErrCodeSourceForbidden, fields["errorCode"])
	assert.Equal(t, "security", fields["errorCategory"])
	assert.Equal(t, "sourceIp: 203.0.113.9", fields["details"])

	fields = errorFields(req, errors.New("boom"))
	assert.Equal(t, apperrors.ErrCodeInternal, fields["errorCode"])
	assert.Equal(t, "internal", fields["errorCategory"])
}

func TestHandleAlert_TooLarge(t *testing.T) {
	h := newTestServer(t, Config{MaxBodyBytes: 16}, &fakePipeline{})
	rec := do(h, http.MethodPost, "/fms/alerts", webhookBody, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

// ==========================
// Source allow-list and signature
// ==========================

func TestSourceAllowList(t *testing.T) {
	// httptest requests come from 192.0.2.1.
	denied := newTestServer(t, Config{AllowedSourceIPs: []string{"10.0.0.1"}}, &fakePipeline{})
	rec := do(denied, http.MethodPost, "/fms/alerts", webhookBody, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"forbidden"}`, rec.Body.String())

	allowed := newTestServer(t, Config{AllowedSourceIPs: []string{"10.0.0.1", "192.0.2.1"}}, &fakePipeline{})
	rec = do(allowed, http.MethodPost, "/fms/alerts", webhookBody, nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestSourceAllowList_TrustProxy(t *testing.T) {
	h := newTestServer(t, Config{AllowedSourceIPs: []string{"10.0.0.1"}, TrustProxy: true}, &fakePipeline{})
	rec := do(h, http.MethodPost, "/fms/alerts", webhookBody, map[string]string{"X-Real-IP": "10.0.0.1"})
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestVerifySignature(t *testing.T) {
	const secret = "s3cret"
	valid := Sign(secret, []byte(webhookBody))

	tests := []struct {
		name     string
		required bool
		header   string
		wantCode int
	}{
		{name: "valid", header: valid, wantCode: http.StatusAccepted},
		{name: "tampered", header: Sign(secret, []byte(`{}`)), wantCode: http.StatusUnauthorized},
		{name: "wrong prefix", header: strings.TrimPrefix(valid, "sha256="), wantCode: http.StatusUnauthorized},
		{name: "absent and optional", wantCode: http.StatusAccepted},
		{name: "absent and required", required: true, wantCode: http.StatusUnauthorized},
		{name: "valid and required", required: true, header: valid, wantCode: http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePipeline{}
			h := newTestServer(t, Config{SigningSecret: secret, RequireSignature: tt.required}, p)

			headers := map[string]string{}
			if tt.header != "" {
				headers[DefaultSignatureHeader] = tt.header
			}
			rec := do(h, http.MethodPost, "/fms/alerts", webhookBody, headers)

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode == http.StatusUnauthorized {
				assert.JSONEq(t, `{"error":"bad signature"}`, rec.Body.String())
				assert.Nil(t, p.raw)
			} else {
				assert.Equal(t, webhookBody, string(p.raw))
			}
		})
	}
}

func TestSign_KnownVector(t *testing.T) {
	got := Sign("key", []byte("The quick brown fox jumps over the lazy dog"))
	assert.Equal(t, "sha256=f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8", got)
	assert.True(t, ValidSignature("key", []byte("The quick brown fox jumps over the lazy dog"), got))
}

// ==========================
// Health
// ==========================

func TestHealthz(t *testing.T) {
	h := newTestServer(t, Config{}, &fakePipeline{})
	rec := do(h, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}

func TestReadyz(t *testing.T) {
	healthy := CheckFunc{Label: "postgres", Fn: func(context.Context) error { return nil }}
	broken := CheckFunc{Label: "redis", Fn: func(context.Context) error { return errors.New("dial tcp: refused") }}

	rec := do(newTestServer(t, Config{}, &fakePipeline{}, healthy), http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"checks":{"postgres":"ok"}}`, rec.Body.String())

	rec = do(newTestServer(t, Config{}, &fakePipeline{}, healthy, broken), http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"ok":false,"checks":{"postgres":"ok","redis":"dial tcp: refused"}}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t, Config{MetricsEnabled: true}, &fakePipeline{})
	do(h, http.MethodGet, "/healthz", "", nil)

	rec := do(h, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fms_http_requests_total")

	disabled := newTestServer(t, Config{}, &fakePipeline{})
	assert.Equal(t, http.StatusNotFound, do(disabled, http.MethodGet, "/metrics", "", nil).Code)
}

// ==========================
// Diagnostics
// ==========================

func TestListTemplates(t *testing.T) {
	p := &fakePipeline{templates: []template.Resolution{
		{AlertType: "Overspeed", TemplateCode: "overspeed_alert_ar", Language: "ar"},
		{AlertType: "overspeed", TemplateCode: "overspeed_alert_en", Language: "en"},
	}}
	h := newTestServer(t, Config{}, p)

	rec := do(h, http.MethodGet, "/fms/test/templates", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Len(t, body["templates"], 1)
	assert.Len(t, body["all"], 2)
}

func TestTestAlert(t *testing.T) {
	p := &fakePipeline{}
	h := newTestServer(t, Config{}, p)

	rec := do(h, http.MethodPost, "/fms/test/overspeed", `{"phone":"966500000000","vehicle_id":"V7"}`, nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, pipeline.DiagnosticRequest{AlertType: "overspeed", Phone: "966500000000", VehicleID: "V7"}, p.diagReq)

	rec = do(h, http.MethodPost, "/fms/test/ignition_on", `{"phone":"966500000000","direct":true}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, p.diagReq.Direct)
	assert.Equal(t, "overspeed_alert_en", decodeBody(t, rec)["templateCode"])
}

func TestTestAlert_Validation(t *testing.T) {
	h := newTestServer(t, Config{}, &fakePipeline{})

	rec := do(h, http.MethodPost, "/fms/test/overspeed", "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(h, http.MethodPost, "/fms/test/overspeed", `{"phone":"966500000000","direct":"yes"}`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestTestAlert_QueueFailure(t *testing.T) {
	p := &fakePipeline{
		diagRes: &pipeline.DiagnosticResult{AlertID: 1, MessageID: 2},
		diagErr: apperrors.NewQueueFailedError(errors.New("redis down")),
	}
	h := newTestServer(t, Config{}, p)

	rec := do(h, http.MethodPost, "/fms/test/overspeed", `{"phone":"966500000000"}`, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Task queue operation failed", decodeBody(t, rec)["error"])
}

func TestAdminToken(t *testing.T) {
	h := newTestServer(t, Config{AdminToken: "letmein"}, &fakePipeline{})

	rec := do(h, http.MethodGet, "/fms/test/templates", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(h, http.MethodGet, "/fms/test/templates", "", map[string]string{AdminTokenHeader: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())

	rec = do(h, http.MethodGet, "/fms/test/templates", "", map[string]string{AdminTokenHeader: "letmein"})
	assert.Equal(t, http.StatusOK, rec.Code)

	// The webhook itself is not behind the admin token.
	rec = do(h, http.MethodPost, "/fms/alerts", webhookBody, nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}
