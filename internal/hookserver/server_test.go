package hookserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oson-apps/notify-engine/internal/carrier"
	"github.com/oson-apps/notify-engine/internal/challenge"
	"github.com/oson-apps/notify-engine/internal/gateway"
	"github.com/oson-apps/notify-engine/internal/model"
	"github.com/oson-apps/notify-engine/pkg/logger"
)

type okSender struct{}

func (okSender) Send(context.Context, string, gateway.Message) gateway.Outcome {
	return gateway.Outcome{Success: true, Channel: model.ChannelSMS, Provider: "stub", Attempts: 1, Timestamp: time.Now()}
}

func (okSender) Provider() string { return "stub" }
func (okSender) Channel() string  { return model.ChannelSMS }

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	log := logger.NewLogger(&logger.Config{
		Level:      logger.InfoLevel,
		TimeFormat: time.RFC3339,
		Output:     io.Discard,
	})

	route := challenge.NewSMSRoute(carrier.NewRouter("998"), okSender{}, okSender{}, log)
	templates := challenge.NewTemplateCache(nil, false, 0, log)
	handler := challenge.NewHandler(route, templates, nil, log, nil)
	return NewServer(handler).Router(false)
}

func TestHookEndpointDefine(t *testing.T) {
	router := testRouter(t)

	body, _ := json.Marshal(map[string]interface{}{
		"triggerSource": "DefineAuthChallenge_Authentication",
		"request":       map[string]interface{}{"userAttributes": map[string]string{}},
	})
	req := httptest.NewRequest(http.MethodPost, "/hooks/auth", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var evt model.HookEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &evt))
	assert.Equal(t, model.ChallengeName, evt.Response.ChallengeName)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestHookEndpointRejectsMalformedEvent(t *testing.T) {
	router := testRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/hooks/auth", bytes.NewReader([]byte(`{"request": {}}`)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	router := testRouter(t)

	for _, path := range []string{"/health/live", "/health/ready"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestRequestIDPropagated(t *testing.T) {
	router := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	assert.Equal(t, "fixed-id", rec.Header().Get("X-Request-ID"))
}
