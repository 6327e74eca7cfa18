// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

var (
	errUnexpectedStatus = errors.New("unexpected status")
	errBodyTooLarge     = errors.New("response body exceeds limit")
)

const (
	defaultTimeout      = 5 * time.Second
	defaultMaxBodyBytes = 10 << 20
	maxRedirects        = 10
	// declaredContentType carries the server's Content-Type past colly.
	declaredContentType = "X-Sitecrawler-Declared-Content-Type"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// MaxBodyBytes caps a response body. Larger bodies fail the fetch instead
	// of being cut short.
	MaxBodyBytes int
	// Origin decides which redirect targets may be followed.
	Origin crawler.OriginPolicy
}

// Fetcher implements crawler.Fetcher using the Colly collector.
type Fetcher struct {
	baseCollector *colly.Collector
	origin        crawler.OriginPolicy
}

// New builds a Fetcher. The collector never consults robots.txt and never
// deduplicates on its own; admission is decided before a URL reaches Fetch.
func New(cfg Config) *Fetcher {
	return newWithTransport(cfg, newHTTPTransport())
}

func newWithTransport(cfg Config, base http.RoundTripper) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true
	c.DetectCharset = false
	// Status codes are judged in OnResponse so every 2xx counts as success.
	c.ParseHTTPErrorResponse = true
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	// colly truncates at MaxBodySize without reporting it; the transport
	// enforces the limit instead.
	c.MaxBodySize = 0
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	c.WithTransport(&verbatimTransport{base: base, maxBodyBytes: int64(maxBody)})

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c.SetRequestTimeout(timeout)

	f := &Fetcher{baseCollector: c, origin: cfg.Origin}
	// Clones share the base collector's HTTP client, so this covers every fetch.
	c.SetRedirectHandler(f.checkRedirect)
	return f
}

// checkRedirect follows a hop only when it stays within the origin of the
// first request and passes the RedirectCheck carried by the request context.
func (f *Fetcher) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("%w: stopped after %d redirects", crawler.ErrRedirectRefused, len(via))
	}
	from, err := crawler.Normalize("", via[0].URL.String())
	if err != nil {
		return fmt.Errorf("%w: %w", crawler.ErrRedirectRefused, err)
	}
	to, err := crawler.Normalize("", req.URL.String())
	if err != nil {
		return fmt.Errorf("%w: %w", crawler.ErrRedirectRefused, err)
	}
	if !f.origin.SameOrigin(from, to) {
		return fmt.Errorf("%w: %s is outside the origin of %s", crawler.ErrRedirectRefused, to, from)
	}
	if check := crawler.RedirectCheckFrom(req.Context()); check != nil {
		return check(to)
	}
	return nil
}

// Fetch performs a single GET. Any transport failure or non-success status is
// returned as a *crawler.TransportError and no body is surfaced.
func (f *Fetcher) Fetch(ctx context.Context, u crawler.NormalizedURL) (crawler.FetchResponse, error) {
	var (
		result   crawler.FetchResponse
		status   int
		fetchErr error
	)
	start := time.Now()
	collector := f.baseCollector.Clone()
	collector.Context = ctx

	collector.OnResponse(func(r *colly.Response) {
		if r.StatusCode < http.StatusOK || r.StatusCode >= http.StatusMultipleChoices {
			status = r.StatusCode
			fetchErr = fmt.Errorf("%w: %d %s", errUnexpectedStatus, r.StatusCode, http.StatusText(r.StatusCode))
			return
		}
		headers := http.Header{}
		if r.Headers != nil {
			headers = r.Headers.Clone()
		}
		if declared := headers.Get(declaredContentType); declared != "" {
			headers.Set("Content-Type", declared)
			headers.Del(declaredContentType)
		}
		result = crawler.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    headers,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		fetchErr = err
		if r != nil {
			status = r.StatusCode
		}
	})

	if err := runCollector(ctx, collector, u.String(), &fetchErr); err != nil {
		te := &crawler.TransportError{URL: u.String(), Err: err}
		// On cancellation the visit may still be running and writing status.
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			te.StatusCode = status
		}
		return crawler.FetchResponse{}, te
	}
	return result, nil
}

func runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return err
		}
		if *fetchErr != nil {
			return *fetchErr
		}
		return nil
	}
}

// verbatimTransport strips parameters from Content-Type before colly sees the
// response so colly does not transcode the body. The declared header value is
// stashed and restored in OnResponse. Bodies over maxBodyBytes fail with
// errBodyTooLarge; zero means no limit.
type verbatimTransport struct {
	base         http.RoundTripper
	maxBodyBytes int64
}

func (t *verbatimTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		mediaType, _, parseErr := mime.ParseMediaType(ct)
		if parseErr != nil {
			mediaType = "application/octet-stream"
		}
		resp.Header.Set(declaredContentType, ct)
		resp.Header.Set("Content-Type", mediaType)
	}
	if t.maxBodyBytes > 0 {
		if resp.ContentLength > t.maxBodyBytes {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("%w: %d > %d bytes", errBodyTooLarge, resp.ContentLength, t.maxBodyBytes)
		}
		resp.Body = &limitedBody{ReadCloser: resp.Body, limit: t.maxBodyBytes}
	}
	return resp, nil
}

// limitedBody fails the read that takes the body past limit, so an oversized
// body is reported rather than cut short.
type limitedBody struct {
	io.ReadCloser
	limit int64
	read  int64
}

func (b *limitedBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	b.read += int64(n)
	if b.read > b.limit {
		return 0, fmt.Errorf("%w: more than %d bytes", errBodyTooLarge, b.limit)
	}
	return n, err
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
	}
}

var _ crawler.Fetcher = (*Fetcher)(nil)
