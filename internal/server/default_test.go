package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/pkg/application"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/pkg/configuration"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/pkg/httpapi"
)

func testConfig() *configuration.Configuration {
	return &configuration.Configuration{
		RequestIDHeader: "X-Request-ID",
		RealIPHeader:    "X-Real-IP",
		Prometheus:      configuration.PrometheusOptions{Enabled: true, Path: "/debug/prometheus"},
		RateLimit:       configuration.RateLimitOptions{Enabled: true, GlobalRPS: 2, Storage: "memory"},
		CORS:            configuration.CORSOptions{AllowedOrigins: []string{"http://localhost:3000"}},
	}
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	app := application.New(&application.ApplicationOptions{Logger: logger})
	srv, err := Default(&DefaultOptions{Logger: logger, Configuration: testConfig(), Application: app})
	require.NoError(t, err)
	return srv.Router()
}

func TestDefaultNotFoundEnvelope(t *testing.T) {
	h := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/nowhere", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "req-1", rec.Header().Get("X-Request-Id"))
	var env httpapi.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, "NOT_FOUND", env.Code)
	require.Equal(t, "/api/nowhere", env.Meta["path"])
	require.Equal(t, "req-1", env.Meta["request_id"])
}

func TestDefaultRegistersMetricsAndRateLimit(t *testing.T) {
	h := newTestServer(t)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/prometheus", nil))
		codes = append(codes, rec.Code)
	}
	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestDefaultAnswersCORSPreflight(t *testing.T) {
	h := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/debug/prometheus", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://elsewhere.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
