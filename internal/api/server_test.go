package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chainintel/tagcrawler/internal/checkpoint"
	"github.com/chainintel/tagcrawler/internal/crawl"
)

func newTestServer(t *testing.T) (*Server, *checkpoint.Checkpoint) {
	t.Helper()
	cp, err := checkpoint.Load(filepath.Join(t.TempDir(), "progress.json"))
	require.NoError(t, err)
	return NewServer(cp, &crawl.Progress{}, zap.NewNop()), cp
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok\n", rec.Body.String())
}

func TestProgressEndpoint(t *testing.T) {
	t.Parallel()

	srv, cp := newTestServer(t)
	require.NoError(t, cp.MarkComplete("exchange"))
	require.NoError(t, cp.MarkComplete("defi"))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/progress", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp struct {
		Counters      crawl.Snapshot `json:"counters"`
		CompletedTags []string       `json:"completed_tags"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, []string{"defi", "exchange"}, resp.CompletedTags)
	require.Equal(t, int64(0), resp.Counters.PagesFetched)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestUnknownRouteIs404(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
