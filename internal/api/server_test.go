package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s := NewServer(nil, zerolog.Nop())
	s.RegisterRoutes()
	return s
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t)

	resp, err := s.GetApp().Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])

	resp, err = s.GetApp().Test(httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestServer_Readiness(t *testing.T) {
	s := newTestServer(t)
	s.AddReadinessCheck("catalog", func(ctx context.Context) error { return nil })

	resp, err := s.GetApp().Test(httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderXRequestID))

	s.AddReadinessCheck("database", func(ctx context.Context) error { return errors.New("closed") })

	resp, err = s.GetApp().Test(httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "not_ready", body.Status)
	assert.Equal(t, "ok", body.Checks["catalog"])
	assert.Equal(t, "closed", body.Checks["database"])
}

func TestServer_Metrics(t *testing.T) {
	s := newTestServer(t)

	// one request so the HTTP counters are non-zero
	_, err := s.GetApp().Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)

	resp, err := s.GetApp().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "# TYPE welllog_http_requests_total counter")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept", "application/json")
	resp, err = s.GetApp().Test(req)
	require.NoError(t, err)

	var snapshot map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snapshot))
	assert.Greater(t, snapshot["welllog_http_requests_total"].(float64), float64(0))
}

func TestServer_Logs(t *testing.T) {
	s := newTestServer(t)

	resp, err := s.GetApp().Test(httptest.NewRequest(http.MethodGet, "/api/v1/logs?limit=5&level=error", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Limit       int    `json:"limit"`
		LevelFilter string `json:"level_filter"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 5, body.Limit)
	assert.Equal(t, "error", body.LevelFilter)
}

func TestServer_RecoversPanics(t *testing.T) {
	s := newTestServer(t)
	s.GetApp().Get("/boom", func(c *fiber.Ctx) error {
		panic("boom")
	})

	resp, err := s.GetApp().Test(httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body["error"], "boom")

	resp, err = s.GetApp().Test(httptest.NewRequest(http.MethodGet, "/no-such-route", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestDecompress(t *testing.T) {
	plain := []byte("~Version\nVERS. 2.0 :\n")

	out, err := decompress(plain, 1024)
	require.NoError(t, err)
	assert.Equal(t, plain, out)

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	compressed := enc.EncodeAll(plain, nil)
	require.NoError(t, enc.Close())
	assert.Equal(t, "zstd", compression(compressed))

	out, err = decompress(compressed, 1024)
	require.NoError(t, err)
	assert.Equal(t, plain, out)

	_, err = decompress(compressed, 4)
	assert.ErrorIs(t, err, errTooLarge)

	_, err = decompress([]byte{0x1f, 0x8b, 0x00}, 1024)
	assert.Error(t, err)
}

func TestHasAllowedExtension(t *testing.T) {
	allowed := []string{".las"}
	assert.True(t, hasAllowedExtension("well.las", allowed))
	assert.True(t, hasAllowedExtension("WELL.LAS", allowed))
	assert.True(t, hasAllowedExtension("well.las.gz", allowed))
	assert.True(t, hasAllowedExtension("well.LAS.zst", allowed))
	assert.False(t, hasAllowedExtension("well.txt", allowed))
	assert.False(t, hasAllowedExtension("well.gz", allowed))
	assert.Equal(t, "well.las", stripCompressionSuffix("well.las.GZ"))
}
