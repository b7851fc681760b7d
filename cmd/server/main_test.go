package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwi.com/video-qa/internal/config"
)

func TestBuildServer_DefaultRegisterer(t *testing.T) {
	for _, key := range []string{"CONFIG_FILE", "REDIS_ADDR", "KAFKA_BROKERS", "OPENAI_API_KEY"} {
		t.Setenv(key, "")
	}
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("VECTOR_BACKEND", "memory")
	t.Setenv("KAFKA_ENABLED", "false")
	t.Setenv("DATABASE_URL", filepath.Join(t.TempDir(), "server.db"))

	cfg, err := config.Load()
	require.NoError(t, err)

	var srv *server
	require.NotPanics(t, func() {
		srv, err = buildServer(context.Background(), cfg, prometheus.DefaultRegisterer)
	})
	require.NoError(t, err)
	defer srv.Close()
	require.NotNil(t, srv.indexing)

	rec := httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "video_qa_summary_fast_path_total")
}
