package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	app "github.com/R3E-Network/factory_os/internal/app"
	"github.com/R3E-Network/factory_os/internal/app/auth"
	"github.com/R3E-Network/factory_os/internal/app/domain/device"
	"github.com/R3E-Network/factory_os/internal/app/services/genai"
	"github.com/R3E-Network/factory_os/internal/app/storage/memory"
	"github.com/R3E-Network/factory_os/internal/config"
	"github.com/R3E-Network/factory_os/internal/logging"
)

type fixture struct {
	app     *app.Application
	handler http.Handler
}

func newFixture(t *testing.T, mutate func(*config.Config), opts ...app.Option) fixture {
	t.Helper()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "none.env"))
	require.NoError(t, err)
	cfg.OpenAI.APIKey = ""
	cfg.Cache.RedisURL = ""
	cfg.Auth.JWTSecret = ""
	cfg.Auth.AdminPasswordHash = ""
	cfg.Auth.Required = false
	if mutate != nil {
		mutate(cfg)
	}

	store := memory.New()
	_, err = store.SaveDevice(context.Background(), device.Device{ID: 1, Name: "CNC-001", Status: "running", FactoryID: "TW_01"})
	require.NoError(t, err)

	opts = append([]app.Option{app.WithDeviceStore(store)}, opts...)
	application, err := app.New(context.Background(), cfg, logging.Discard(), opts...)
	require.NoError(t, err)

	handler, err := NewHandler(application)
	require.NoError(t, err)

	require.NoError(t, application.Start(context.Background()))
	t.Cleanup(func() { _ = application.Stop(context.Background()) })

	return fixture{app: application, handler: handler}
}

func (f fixture) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestAdminCanAccessDeviceMetadata(t *testing.T) {
	f := newFixture(t, nil)

	login := f.do(t, http.MethodPost, "/api/v1/login", map[string]string{"username": "admin", "password": "123"}, nil)
	require.Equal(t, http.StatusOK, login.Code, login.Body.String())
	token := gjson.GetBytes(login.Body.Bytes(), "access_token").String()
	assert.Equal(t, auth.MockToken, token)
	assert.Equal(t, "bearer", gjson.GetBytes(login.Body.Bytes(), "token_type").String())

	res := f.do(t, http.MethodGet, "/api/v1/devices/1", nil, bearer(token))
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "CNC-001", gjson.GetBytes(res.Body.Bytes(), "name").String())
	assert.Equal(t, "v1.2.3", gjson.GetBytes(res.Body.Bytes(), "metadata.firmware").String())
}

func TestLoginRejectsUnknownUser(t *testing.T) {
	f := newFixture(t, nil)

	res := f.do(t, http.MethodPost, "/api/v1/login", map[string]string{"username": "guest", "password": "123"},
		map[string]string{"X-Request-ID": "req-login"})
	require.Equal(t, http.StatusUnauthorized, res.Code)
	body := res.Body.Bytes()
	assert.Equal(t, "INVALID_CREDENTIALS", gjson.GetBytes(body, "error_code").String())
	assert.Equal(t, "Invalid credentials", gjson.GetBytes(body, "message").String())
	assert.Equal(t, "req-login", gjson.GetBytes(body, "trace_id").String())
}

func TestLoginValidation(t *testing.T) {
	f := newFixture(t, nil)

	res := f.do(t, http.MethodPost, "/api/v1/login", map[string]string{"username": "admin"}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, res.Code)
	assert.Equal(t, "required", gjson.GetBytes(res.Body.Bytes(), "details.password").String())

	res = f.do(t, http.MethodPost, "/api/v1/login", "{not json", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, res.Code)
}

func TestLoginAcceptsEmptyPasswordAndExtraFields(t *testing.T) {
	f := newFixture(t, nil)

	res := f.do(t, http.MethodPost, "/api/v1/login", map[string]string{"username": "admin", "password": ""}, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.Equal(t, auth.MockToken, gjson.GetBytes(res.Body.Bytes(), "access_token").String())

	res = f.do(t, http.MethodPost, "/api/v1/login",
		map[string]string{"username": "admin", "password": "x", "grant_type": "password"}, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.Equal(t, auth.MockToken, gjson.GetBytes(res.Body.Bytes(), "access_token").String())
}

func TestLoginEmptyPasswordFailsWithHash(t *testing.T) {
	hash, err := auth.HashPassword("s3cret")
	require.NoError(t, err)
	f := newFixture(t, func(cfg *config.Config) { cfg.Auth.AdminPasswordHash = hash })

	res := f.do(t, http.MethodPost, "/api/v1/login", map[string]string{"username": "admin", "password": ""}, nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestDeviceErrors(t *testing.T) {
	f := newFixture(t, nil)

	res := f.do(t, http.MethodGet, "/api/v1/devices/999", nil, nil)
	require.Equal(t, http.StatusNotFound, res.Code)
	assert.Equal(t, "Device not found", gjson.GetBytes(res.Body.Bytes(), "message").String())
	assert.NotEmpty(t, gjson.GetBytes(res.Body.Bytes(), "trace_id").String())

	res = f.do(t, http.MethodGet, "/api/v1/devices/abc", nil, nil)
	require.Equal(t, http.StatusUnprocessableEntity, res.Code)
	assert.Equal(t, "VALIDATION_ERROR", gjson.GetBytes(res.Body.Bytes(), "error_code").String())
}

func TestAuthRequiredProtectsDevices(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Auth.Required = true
		cfg.Auth.JWTSecret = "test-secret"
	})

	res := f.do(t, http.MethodGet, "/api/v1/devices/1", nil, nil)
	require.Equal(t, http.StatusUnauthorized, res.Code)

	res = f.do(t, http.MethodGet, "/api/v1/devices/1", nil, bearer(auth.MockToken))
	require.Equal(t, http.StatusUnauthorized, res.Code)

	login := f.do(t, http.MethodPost, "/api/v1/login", map[string]string{"username": "admin", "password": "x"}, nil)
	require.Equal(t, http.StatusOK, login.Code)
	token := gjson.GetBytes(login.Body.Bytes(), "access_token").String()
	assert.Positive(t, gjson.GetBytes(login.Body.Bytes(), "expires_in").Int())

	res = f.do(t, http.MethodGet, "/api/v1/devices/1", nil, bearer(token))
	assert.Equal(t, http.StatusOK, res.Code)

	// Login and health stay public.
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health", nil, nil).Code)
}

func TestSaveDeviceWithExplicitIDStatus(t *testing.T) {
	f := newFixture(t, nil)

	body := map[string]any{"id": 42, "name": "Lathe-42", "factory_id": "TW_01"}
	res := f.do(t, http.MethodPost, "/api/v1/devices", body, nil)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	assert.Equal(t, int64(42), gjson.GetBytes(res.Body.Bytes(), "id").Int())

	body["status"] = "idle"
	res = f.do(t, http.MethodPost, "/api/v1/devices", body, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.Equal(t, "idle", gjson.GetBytes(res.Body.Bytes(), "status").String())
}

func TestDevicesCreateUpdateAndList(t *testing.T) {
	f := newFixture(t, nil)

	res := f.do(t, http.MethodPost, "/api/v1/devices", map[string]any{"name": "Press-07", "factory_id": "TW_02"}, nil)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	assert.Equal(t, int64(2), gjson.GetBytes(res.Body.Bytes(), "id").Int())
	assert.Equal(t, "offline", gjson.GetBytes(res.Body.Bytes(), "status").String())

	res = f.do(t, http.MethodPost, "/api/v1/devices", map[string]any{"id": 2, "name": "Press-07", "factory_id": "TW_02", "status": "running"}, nil)
	require.Equal(t, http.StatusOK, res.Code)

	res = f.do(t, http.MethodGet, "/api/v1/devices?status=running", nil, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, int64(2), gjson.GetBytes(res.Body.Bytes(), "count").Int())
	assert.Equal(t, "Press-07", gjson.GetBytes(res.Body.Bytes(), "devices.1.name").String())

	res = f.do(t, http.MethodGet, "/api/v1/devices?factory_id=TW_01", nil, nil)
	assert.Equal(t, int64(1), gjson.GetBytes(res.Body.Bytes(), "count").Int())

	res = f.do(t, http.MethodPost, "/api/v1/devices", map[string]any{"name": "x"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, res.Code)

	res = f.do(t, http.MethodPost, "/api/v1/devices", `{"name": "x", "colour": "red"}`, nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = f.do(t, http.MethodGet, "/api/v1/devices?status=melting", nil, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, res.Code)
}

func TestAskAIEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	res := f.do(t, http.MethodPost, "/api/v1/ai/ask?prompt=Hello", nil, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, genai.MockResponse, gjson.GetBytes(res.Body.Bytes(), "factory_response").String())
	assert.Equal(t, "Hello", gjson.GetBytes(res.Body.Bytes(), "input_received").String())

	res = f.do(t, http.MethodPost, "/api/v1/ai/ask", nil, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, res.Code)
}

func TestAskAIRateLimited(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.RateLimit.AIRequestsPerSecond = 1
		cfg.RateLimit.AIBurst = 2
	})

	var codes []int
	for i := 0; i < 3; i++ {
		codes = append(codes, f.do(t, http.MethodPost, "/api/v1/ai/ask?prompt=hi", nil, nil).Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)
}

type countingAI struct {
	tokens int64
}

func (c *countingAI) Ask(_ context.Context, prompt, _ string) string {
	c.tokens += int64(len(prompt))
	return strings.ToUpper(prompt)
}
func (c *countingAI) TokenUsage() int64 { return c.tokens }
func (c *countingAI) Provider() string  { return "counting" }

func TestAIUsage(t *testing.T) {
	ai := &countingAI{}
	f := newFixture(t, nil, app.WithGenAI(ai))

	res := f.do(t, http.MethodPost, "/api/v1/ai/ask?prompt=spindle", nil, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "SPINDLE", gjson.GetBytes(res.Body.Bytes(), "factory_response").String())

	res = f.do(t, http.MethodGet, "/api/v1/ai/usage", nil, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "counting", gjson.GetBytes(res.Body.Bytes(), "provider").String())
	assert.Equal(t, int64(7), gjson.GetBytes(res.Body.Bytes(), "total_tokens").Int())
}

func TestAIWebsocket(t *testing.T) {
	f := newFixture(t, nil)
	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ai/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	require.NoError(t, conn.WriteJSON(map[string]string{"prompt": "status of line 3"}))
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, genai.MockResponse, gjson.GetBytes(msg, "factory_response").String())
	assert.Equal(t, "status of line 3", gjson.GetBytes(msg, "input_received").String())

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.NotEmpty(t, gjson.GetBytes(msg, "error").String())

	require.NoError(t, conn.WriteJSON(map[string]string{"prompt": " "}))
	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "prompt is required", gjson.GetBytes(msg, "error").String())
}

func TestAIWebsocketRejectsForeignOrigin(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Server.CORSAllowedOrigins = "http://console.factory.test"
	})
	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ai/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"http://evil.test"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHealthIndexAndReady(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) { cfg.FactoryLocation = "TW_01" })

	res := f.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "healthy", gjson.GetBytes(res.Body.Bytes(), "status").String())
	assert.Equal(t, "TW_01", gjson.GetBytes(res.Body.Bytes(), "location").String())
	assert.Len(t, res.Header().Get("X-Request-ID"), 36)

	res = f.do(t, http.MethodGet, "/", nil, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, res.Body.String(), "Factory OS API")
	assert.Contains(t, res.Body.String(), "TW_01")

	res = f.do(t, http.MethodGet, "/ready", nil, nil)
	assert.Equal(t, http.StatusOK, res.Code)
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	f := newFixture(t, nil)

	res := f.do(t, http.MethodGet, "/nope", nil, nil)
	require.Equal(t, http.StatusNotFound, res.Code)
	assert.Equal(t, "NOT_FOUND", gjson.GetBytes(res.Body.Bytes(), "error_code").String())

	res = f.do(t, http.MethodDelete, "/api/v1/login", nil, nil)
	require.Equal(t, http.StatusMethodNotAllowed, res.Code)
	assert.Equal(t, "METHOD_NOT_ALLOWED", gjson.GetBytes(res.Body.Bytes(), "error_code").String())
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, nil)
	res := f.do(t, http.MethodOptions, "/api/v1/devices/1", nil, map[string]string{
		"Origin":                        "http://console.test",
		"Access-Control-Request-Method": "GET",
	})
	assert.Equal(t, http.StatusNoContent, res.Code)
	assert.Equal(t, "http://console.test", res.Header().Get("Access-Control-Allow-Origin"))
}

func TestSystemInfo(t *testing.T) {
	f := newFixture(t, nil)
	res := f.do(t, http.MethodGet, "/api/v1/system/info", nil, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.True(t, strings.HasPrefix(gjson.GetBytes(res.Body.Bytes(), "go_version").String(), "go"))
	assert.Equal(t, app.ServiceName, gjson.GetBytes(res.Body.Bytes(), "service").String())
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	f.do(t, http.MethodGet, "/api/v1/devices/1", nil, nil)

	res := f.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `factory_os_http_requests_total{method="GET",path="/api/v1/devices/{device_id}",status="200"} 1`)
}

func TestAuditTrail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	f := newFixture(t, func(cfg *config.Config) { cfg.AuditLogPath = path })

	f.do(t, http.MethodPost, "/api/v1/login", map[string]string{"username": "admin", "password": "1"}, nil)
	f.do(t, http.MethodPost, "/api/v1/login", map[string]string{"username": "mallory", "password": "1"}, nil)
	f.do(t, http.MethodPost, "/api/v1/devices", map[string]any{"name": "Robot-1", "factory_id": "TW_01"}, nil)

	res := f.do(t, http.MethodGet, "/api/v1/audit?limit=2", nil, nil)
	require.Equal(t, http.StatusOK, res.Code)
	entries := gjson.GetBytes(res.Body.Bytes(), "entries").Array()
	require.Len(t, entries, 2)
	assert.Equal(t, "login_failed", entries[0].Get("action").String())
	assert.Equal(t, "device_saved", entries[1].Get("action").String())

	assert.Equal(t, http.StatusUnprocessableEntity, f.do(t, http.MethodGet, "/api/v1/audit?limit=x", nil, nil).Code)

	require.NoError(t, f.app.Stop(context.Background()))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(raw), "\n"))
}
