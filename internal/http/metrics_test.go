package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/medrag/internal/telemetry"
)

func TestHTTPMetrics_MetricsMiddleware(t *testing.T) {
	tel := telemetry.NewTestTelemetry()
	m := NewHTTPMetrics(tel.Meter(httpInstrumentationName), nil)

	e := echo.New()
	e.Use(m.MetricsMiddleware())
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.POST("/api/v1/clinical/ask", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"answer": "ok"})
	})

	for _, r := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/health", nil),
		httptest.NewRequest(http.MethodGet, "/health", nil),
		httptest.NewRequest(http.MethodPost, "/api/v1/clinical/ask", nil),
	} {
		e.ServeHTTP(httptest.NewRecorder(), r)
	}

	rm, err := tel.Collect(context.Background())
	require.NoError(t, err)

	requests, ok := telemetry.FindMetric(rm, "medrag.http.requests_total")
	require.True(t, ok)
	assert.Equal(t, int64(3), telemetry.SumInt64(requests))
	assert.True(t, telemetry.HasAttribute(requests, "endpoint", "/api/v1/clinical/ask"))

	_, ok = telemetry.FindMetric(rm, "medrag.http.request_duration_seconds")
	assert.True(t, ok)
	_, ok = telemetry.FindMetric(rm, "medrag.http.response_size_bytes")
	assert.True(t, ok)
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "/"},
		{"/health", "/health"},
		{"/api/v1/clinical/ask", "/api/v1/clinical/ask"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, normalizePath(tt.input))
	}
}
