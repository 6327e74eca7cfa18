package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestInitIdempotent(t *testing.T) {
	Init()
	Init()
	require.NotNil(t, crawlerPagesTotal)
	require.NotNil(t, crawlerActiveWorkers)
}

func TestObservePage(t *testing.T) {
	Init()
	before := testutil.ToFloat64(crawlerPagesTotal.WithLabelValues("metrics_test"))
	ObservePage("metrics_test")
	ObservePage("metrics_test")
	require.InDelta(t, before+2, testutil.ToFloat64(crawlerPagesTotal.WithLabelValues("metrics_test")), 0.001)
}

func TestObserveFetch(t *testing.T) {
	Init()
	before := testutil.ToFloat64(crawlerBytesTotal)
	ObserveFetch(20*time.Millisecond, 128)
	ObserveFetch(20*time.Millisecond, 0)
	require.InDelta(t, before+128, testutil.ToFloat64(crawlerBytesTotal), 0.001)
}

func TestObserveLinkAndCrawl(t *testing.T) {
	Init()
	linkBefore := testutil.ToFloat64(crawlerLinksTotal.WithLabelValues(LinkOutOfScope))
	crawlBefore := testutil.ToFloat64(crawlerCrawlsTotal.WithLabelValues("metrics_test"))
	ObserveLink(LinkOutOfScope)
	ObserveCrawl("metrics_test")
	require.InDelta(t, linkBefore+1, testutil.ToFloat64(crawlerLinksTotal.WithLabelValues(LinkOutOfScope)), 0.001)
	require.InDelta(t, crawlBefore+1, testutil.ToFloat64(crawlerCrawlsTotal.WithLabelValues("metrics_test")), 0.001)
}

func TestSetFrontierDepth(t *testing.T) {
	SetFrontierDepth(7)
	require.InDelta(t, 7, testutil.ToFloat64(crawlerFrontierDepth), 0.001)
	SetFrontierDepth(0)
	require.InDelta(t, 0, testutil.ToFloat64(crawlerFrontierDepth), 0.001)
}

func TestMiddleware(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/ok", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/teapot", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	teapotBefore := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "418"))

	for _, path := range []string{"/ok", "/teapot"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.InDelta(t, teapotBefore+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "418")), 0.001)
	require.GreaterOrEqual(t, testutil.CollectAndCount(httpRequestDurationSeconds), 2)
}
