package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/dispatcher"
	"github.com/JakeFAU/sitecrawler/internal/metrics"
)

type fakeStatus struct {
	snap dispatcher.Snapshot
}

func (f fakeStatus) Snapshot() dispatcher.Snapshot { return f.snap }

type panickingStatus struct{}

func (panickingStatus) Snapshot() dispatcher.Snapshot { panic("boom") }

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	NewServer(nil, zap.NewNop()).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_ReadyzWithoutCoordinator(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	NewServer(nil, nil).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_CrawlStatus(t *testing.T) {
	t.Parallel()

	status := fakeStatus{snap: dispatcher.Snapshot{
		State:       dispatcher.StateRunning,
		CrawlID:     "crawl-1",
		Seed:        "http://example.com/",
		Admitted:    4,
		PagesSaved:  2,
		PagesFailed: 1,
		Queued:      1,
		Outstanding: 1,
	}}
	srv := NewServer(status, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/v1/crawl/status", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))

	var got dispatcher.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, status.snap, got)
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	metrics.Init()
	metrics.ObservePage("saved")

	rec := httptest.NewRecorder()
	NewServer(nil, zap.NewNop()).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "crawler_pages_total"))
}

func TestServer_RecoversFromPanic(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	NewServer(panickingStatus{}, zap.NewNop()).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/crawl/status", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_UnknownRoute(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	NewServer(nil, zap.NewNop()).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
