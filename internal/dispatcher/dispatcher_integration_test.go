package dispatcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/sitecrawler/internal/fetcher/colly"
	"github.com/JakeFAU/sitecrawler/internal/id/uuid"
	"github.com/JakeFAU/sitecrawler/internal/links"
	"github.com/JakeFAU/sitecrawler/internal/storage/local"
)

func TestCrawl_EndToEndOverHTTP(t *testing.T) {
	t.Parallel()

	pages := map[string]string{
		"/":           `<a href="/about">About</a> <a href="docs/">Docs</a> <a href="https://example.invalid/">Away</a>`,
		"/about":      `<a href="/">Home</a> <a href="/missing">Broken</a>`,
		"/docs/":      `<a href="intro?b=2&a=1">Intro</a> <a href="../about#team">Team</a>`,
		"/docs/intro": `<p>leaf</p>`,
	}
	var (
		mu   sync.Mutex
		hits = map[string]int{}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits[r.URL.RequestURI()]++
		mu.Unlock()
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<html><body>%s</body></html>", body)
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	persister, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)

	d := New(
		Config{MaxThreads: 3, MaxPages: 10, PopTimeout: 50 * time.Millisecond},
		collyfetcher.New(collyfetcher.Config{Timeout: 2 * time.Second}),
		persister,
		links.New(),
		nil,
		uuid.New(),
		zap.NewNop(),
	)

	stats, err := d.Crawl(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, 4, stats.PagesSaved)
	require.Equal(t, 1, stats.PagesFailed)
	require.Equal(t, 5, stats.Admitted)
	require.NotEmpty(t, stats.CrawlID)

	mu.Lock()
	for uri, n := range hits {
		require.Equal(t, 1, n, "%s requested %d times", uri, n)
	}
	require.Equal(t, 1, hits["/docs/intro?a=1&b=2"])
	mu.Unlock()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	saved, err := os.ReadFile(persister.Path(crawler.NormalizedURL(srv.URL + "/about")))
	require.NoError(t, err)
	require.Equal(t, "<html><body>"+pages["/about"]+"</body></html>", string(saved))
}

func TestCrawl_RedirectsStayInOriginAndFetchOnce(t *testing.T) {
	t.Parallel()

	var foreignHits sync.Map
	foreign := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		foreignHits.Store(r.URL.Path, true)
		_, _ = w.Write([]byte("OTHER ORIGIN CONTENT"))
	}))
	t.Cleanup(foreign.Close)

	var (
		mu   sync.Mutex
		hits = map[string]int{}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits[r.URL.Path]++
		mu.Unlock()
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, `<a href="/about">About</a> <a href="/moved">Moved</a> <a href="/away">Away</a> <a href="/old">Old</a>`)
		case "/about":
			fmt.Fprint(w, `<p>about</p>`)
		case "/moved":
			http.Redirect(w, r, "/about", http.StatusMovedPermanently)
		case "/away":
			http.Redirect(w, r, foreign.URL+"/landing", http.StatusFound)
		case "/old":
			http.Redirect(w, r, "/fresh", http.StatusFound)
		case "/fresh":
			fmt.Fprint(w, `<a href="/fresh">Self</a>`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	persister, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	origin := crawler.OriginPolicy{ComparePort: true}

	d := New(
		Config{MaxThreads: 3, MaxPages: 10, PopTimeout: 50 * time.Millisecond, ComparePort: true},
		collyfetcher.New(collyfetcher.Config{Timeout: 2 * time.Second, Origin: origin}),
		persister,
		links.New(),
		nil,
		nil,
		zap.NewNop(),
	)

	stats, err := d.Crawl(context.Background(), srv.URL)
	require.NoError(t, err)
	// "/moved" lands on "/about", which is crawled on its own; "/away" leaves the origin.
	require.Equal(t, 3, stats.PagesSaved)
	require.Equal(t, 2, stats.PagesFailed)
	require.Equal(t, 5, stats.Admitted)

	mu.Lock()
	for path, n := range hits {
		require.Equal(t, 1, n, "%s requested %d times", path, n)
	}
	mu.Unlock()
	_, contacted := foreignHits.Load("/landing")
	require.False(t, contacted, "a redirect must not leave the origin")

	saved, err := os.ReadFile(persister.Path(crawler.NormalizedURL(srv.URL + "/old")))
	require.NoError(t, err)
	require.Equal(t, `<a href="/fresh">Self</a>`, string(saved))
	_, err = os.Stat(persister.Path(crawler.NormalizedURL(srv.URL + "/fresh")))
	require.True(t, os.IsNotExist(err), "a redirect target is saved under the admitted URL only")
}
