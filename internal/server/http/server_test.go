package http

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/auctioneer/internal/config"
)

func TestNewEcho_Health(t *testing.T) {
	e := NewEcho(config.Config{}, nil, zap.NewNop())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestNewEcho_UnknownRouteUsesEnvelope(t *testing.T) {
	e := NewEcho(config.Config{}, nil, zap.NewNop())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"route_not_found"`)
	assert.Contains(t, rec.Body.String(), `"success":false`)
}

func TestNewEcho_ServesStoredMedia(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lamp.png"), []byte("png-bytes"), 0o644))

	e := NewEcho(config.Config{Media: config.Media{
		Driver:  "disk",
		Dir:     dir,
		BaseURL: "http://localhost:8080/media/",
	}}, nil, zap.NewNop())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/media/lamp.png", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "png-bytes", rec.Body.String())
}

func TestMediaPrefix(t *testing.T) {
	assert.Equal(t, "/media", mediaPrefix(config.Media{Driver: "disk", Dir: "d", BaseURL: "http://h/media"}))
	assert.Equal(t, "", mediaPrefix(config.Media{Driver: "noop", Dir: "d", BaseURL: "http://h/media"}))
	assert.Equal(t, "", mediaPrefix(config.Media{Driver: "disk", Dir: "d", BaseURL: "https://cdn.example"}))
}
