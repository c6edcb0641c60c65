package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/dativo-io/piiredact/internal/audit"
	"github.com/dativo-io/piiredact/internal/engine"
)

const testSigningKey = "test-signing-key-1234567890123456"

func newTestServer(t *testing.T, opts ...Option) (http.Handler, *engine.Engine) {
	t.Helper()
	eng, err := engine.New(nil)
	require.NoError(t, err)
	return NewServer(eng, opts...).Routes(), eng
}

func withStore(t *testing.T, eng *engine.Engine) Option {
	t.Helper()
	store, err := audit.NewStore(filepath.Join(t.TempDir(), "reports.db"), testSigningKey)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return WithReportStore(store, audit.NewRotator(store, eng, "serve", "test"))
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&out), rec.Body.String())
	}
	return rec, out
}

func TestHealthEndpoint(t *testing.T) {
	h, _ := newTestServer(t, WithVersion("1.2.3"), WithAPIKeys([]string{"secret"}))

	rec, out := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, "1.2.3", out["version"])

	rec, out = do(t, h, http.MethodGet, "/v1/health?detail=true", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	comp, _ := out["components"].(map[string]interface{})
	require.NotNil(t, comp)
	assert.Equal(t, "disabled", comp["report_store"])
}

func TestAuthMiddleware(t *testing.T) {
	h, _ := newTestServer(t, WithAPIKeys([]string{"secret-key"}))

	rec, out := do(t, h, http.MethodGet, "/v1/sectors", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", out["error"])

	rec, _ = do(t, h, http.MethodGet, "/v1/sectors", "", APIKeyHeader, "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/v1/sectors", "", APIKeyHeader, "secret-key")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/v1/sectors", "", "Authorization", "Bearer secret-key")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSectorsEndpoint(t *testing.T) {
	h, _ := newTestServer(t)
	rec, out := do(t, h, http.MethodGet, "/v1/sectors", "")
	require.Equal(t, http.StatusOK, rec.Code)

	sectors := out["sectors"].([]interface{})
	require.Len(t, sectors, 4)
	clinic := sectors[0].(map[string]interface{})
	assert.Equal(t, "clinic", clinic["id"])
	assert.Equal(t, true, clinic["strict"])
	assert.Contains(t, clinic["categories"], "medical_record")
	assert.Equal(t, false, out["scan_all_categories"])
}

func TestDetectEndpoint_NeverReturnsFragments(t *testing.T) {
	h, _ := newTestServer(t)
	rec, out := do(t, h, http.MethodPost, "/v1/detect", `{"text": "SSN 123-45-6789 and SSN 987-65-4321"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, float64(2), out["count"])
	assert.Equal(t, "general", out["sector"])
	assert.NotContains(t, rec.Body.String(), "123-45-6789")
	assert.NotContains(t, rec.Body.String(), "987-65-4321")

	first := out["detections"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "ssn", first["category"])
	assert.Equal(t, float64(4), first["start"])
	assert.Equal(t, float64(15), first["end"])
	assert.Len(t, first["hash"], 16)
}

func TestRedactEndpoint_Text(t *testing.T) {
	h, eng := newTestServer(t)
	rec, out := do(t, h, http.MethodPost, "/v1/redact", `{"text": "Contact me at a@b.com", "sector": "msp"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "Contact me at ████████@██████.███", out["redacted"])
	assert.Equal(t, "msp", out["sector"])
	stats := out["statistics"].(map[string]interface{})
	assert.Equal(t, float64(1), stats["total_redactions"])
	assert.Equal(t, float64(1), stats["by_sensitivity"].(map[string]interface{})["L2"])

	assert.Equal(t, 1, eng.AuditLog().Len())
}

func TestRedactEndpoint_Data(t *testing.T) {
	h, _ := newTestServer(t)
	rec, out := do(t, h, http.MethodPost, "/v1/redact", `{"data": {"a": "email: a@b.com", "b": [1, "ssn 123-45-6789"]}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, map[string]interface{}{
		"a": "email: ████████@██████.███",
		"b": []interface{}{float64(1), "ssn ███-██-████"},
	}, out["redacted"])
}

func TestRedactEndpoint_BadRequests(t *testing.T) {
	h, _ := newTestServer(t, WithMaxBodyBytes(32))

	rec, out := do(t, h, http.MethodPost, "/v1/redact", `{"text": `)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", out["error"])

	rec, out = do(t, h, http.MethodPost, "/v1/redact", `{"text": "`+strings.Repeat("x", 64)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "payload_too_large", out["error"])
}

func TestReportAndRotate(t *testing.T) {
	eng, err := engine.New(nil)
	require.NoError(t, err)
	h := NewServer(eng, withStore(t, eng)).Routes()

	do(t, h, http.MethodPost, "/v1/redact", `{"text": "SSN 123-45-6789"}`)

	rec, out := do(t, h, http.MethodGet, "/v1/report", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), out["units_processed"])
	assert.Equal(t, float64(1), out["audit_log_entries"])
	recs := out["recommendations"].([]interface{})
	assert.Equal(t, audit.RecommendL1, recs[0])

	rec, out = do(t, h, http.MethodPost, "/v1/report/rotate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["rotated"])
	id := out["report_id"].(string)
	assert.Equal(t, 0, eng.AuditLog().Len(), "rotation drains the log")

	rec, out = do(t, h, http.MethodPost, "/v1/report/rotate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, out["rotated"])

	rec, out = do(t, h, http.MethodGet, "/v1/reports", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, out["reports"], 1)

	rec, out = do(t, h, http.MethodGet, "/v1/reports/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, out["id"])

	rec, out = do(t, h, http.MethodGet, "/v1/reports/"+id+"/verify", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["valid"])

	rec, _ = do(t, h, http.MethodGet, "/v1/reports/rpt_missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReportEndpoints_WithoutStore(t *testing.T) {
	h, _ := newTestServer(t)
	rec, _ := do(t, h, http.MethodPost, "/v1/report/rotate", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	rec, _ = do(t, h, http.MethodGet, "/v1/reports", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRateLimit(t *testing.T) {
	h, _ := newTestServer(t, WithRateLimiter(NewRateLimiter(0.001, 2)))

	for i := 0; i < 2; i++ {
		rec, _ := do(t, h, http.MethodGet, "/v1/sectors", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	rec, out := do(t, h, http.MethodGet, "/v1/sectors", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limit_exceeded", out["error"])
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestRateLimiter_PerCaller(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "callers have independent buckets")
}

func TestRateLimiter_EvictsIdleCallers(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(0.001, 1)
	rl.now = func() time.Time { return clock }

	for _, ip := range []string{"ip:10.0.0.1", "ip:10.0.0.2", "ip:10.0.0.3"} {
		assert.True(t, rl.Allow(ip))
	}
	assert.Equal(t, 3, rl.Len())

	clock = clock.Add(DefaultLimiterIdle + time.Second)
	assert.True(t, rl.Allow("ip:10.0.0.4"))
	assert.Equal(t, 1, rl.Len(), "idle buckets are swept")
	assert.True(t, rl.Allow("ip:10.0.0.1"), "an evicted caller starts with a fresh bucket")
}

func TestRateLimiter_CapsTrackedCallers(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(0.001, 1)
	rl.now = func() time.Time { return clock }
	rl.maxCallers = 3

	for i := 0; i < 10; i++ {
		clock = clock.Add(time.Millisecond)
		rl.Allow(fmt.Sprintf("ip:192.0.2.%d", i))
		assert.LessOrEqual(t, rl.Len(), 3)
	}

	clock = clock.Add(time.Millisecond)
	assert.False(t, rl.Allow("ip:192.0.2.9"), "the most recent caller keeps its bucket")
}

func TestCORSPreflight(t *testing.T) {
	h, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/v1/redact", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRedactEndpoint_LogCarriesTraceFields(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf).Level(zerolog.DebugLevel)
	t.Cleanup(func() { log.Logger = prev })

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x0f, 0x0e, 0x0d, 0x02},
		SpanID:     trace.SpanID{0x03, 0x04},
		TraceFlags: trace.FlagsSampled,
	})
	h, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/redact", strings.NewReader(`{"text": "a@b.com"}`))
	req = req.WithContext(trace.ContextWithSpanContext(req.Context(), sc))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var found bool
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var ev map[string]interface{}
		if json.Unmarshal([]byte(line), &ev) != nil || ev["message"] != "api_redaction_completed" {
			continue
		}
		found = true
		assert.Equal(t, sc.TraceID().String(), ev["trace_id"])
	}
	assert.True(t, found, "api_redaction_completed was logged")
}
