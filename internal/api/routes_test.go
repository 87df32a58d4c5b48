package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/wicaksana/gema/adapters"
	"github.com/wicaksana/gema/internal/auth"
	"github.com/wicaksana/gema/internal/observability"
	"github.com/wicaksana/gema/internal/websocket"
)

func newTestServer() (*Server, *echo.Echo) {
	devices := adapters.NewMemoryDeviceRepository()
	devices.Seed("GEMA001", "secret123", "doll-v1")

	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	logger := zap.NewNop()
	hub := websocket.NewHub(metrics, logger)
	authenticator := auth.NewAuthenticator("test-secret")

	s := NewServer(hub, devices, authenticator, websocket.Deps{}, "/gema", logger)
	e := echo.New()
	s.Register(e)
	return s, e
}

func TestDeviceAuthIssuesToken(t *testing.T) {
	_, e := newTestServer()

	body := `{"serial_number":"GEMA001","secret_key":"secret123"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/device/auth", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"token"`) {
		t.Errorf("body = %s, want a token", rec.Body.String())
	}
}

func TestDeviceAuthRejectsBadCredentials(t *testing.T) {
	_, e := newTestServer()

	body := `{"serial_number":"GEMA001","secret_key":"wrong"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/device/auth", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestPushSpeakWithoutSessionIs404(t *testing.T) {
	_, e := newTestServer()

	body := `{"message":"hello"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/devices/dev1/speak", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestWebSocketRequiresToken(t *testing.T) {
	_, e := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/gema", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestListDevicesEmpty(t *testing.T) {
	_, e := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"devices"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}
