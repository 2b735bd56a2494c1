// Package fetch performs outbound GET requests against upstream media hosts.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leca/cover-proxy/internal/api"
	"github.com/leca/cover-proxy/internal/metrics"
)

// snippetLimit bounds the upstream body kept for diagnostics on non-2xx.
const snippetLimit = 200

// maxRedirects matches the net/http default.
const maxRedirects = 10

// Options are per-request knobs for an upstream fetch.
type Options struct {
	Referer string
	Range   string
	// Timeout bounds the wait for response headers in Open and the whole
	// download in Get. Zero disables it.
	Timeout time.Duration
	// CheckRedirect, when set, is called with the target of every redirect
	// hop before it is followed. A non-nil error stops the fetch and is
	// returned from Open or Get.
	CheckRedirect func(*url.URL) error
}

// Response is an open upstream response. Closing Body releases the
// connection and cancels the underlying request.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	Status  int
	Snippet string
}

func (e *StatusError) Error() string {
	if e.Snippet == "" {
		return fmt.Sprintf("upstream returned %d", e.Status)
	}
	return fmt.Sprintf("upstream returned %d: %s", e.Status, e.Snippet)
}

func (e *StatusError) Unwrap() error { return api.ErrUpstreamUnavailable }

// Fetcher issues upstream requests with a fixed User-Agent.
type Fetcher struct {
	Client    *http.Client
	UserAgent string
	// MaxBytes caps bodies read by Get. Zero means no cap.
	MaxBytes int64
	Limiter  *HostLimiter
}

// New returns a Fetcher with its own transport.
func New(userAgent string, maxBytes int64, limiter *HostLimiter) *Fetcher {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 16
	transport.IdleConnTimeout = 90 * time.Second
	transport.ResponseHeaderTimeout = 30 * time.Second
	return &Fetcher{
		Client:    &http.Client{Transport: transport},
		UserAgent: userAgent,
		MaxBytes:  maxBytes,
		Limiter:   limiter,
	}
}

// Open starts a GET for u and returns as soon as response headers arrive.
// Non-2xx responses are drained into a StatusError and closed.
func (f *Fetcher) Open(ctx context.Context, u *url.URL, opts Options) (*Response, error) {
	if err := f.Limiter.Wait(ctx, u.Host); err != nil {
		return nil, fmt.Errorf("rate limit %s: %w: %w", u.Host, api.ErrUpstreamUnavailable, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	var timedOut atomic.Bool
	var timer *time.Timer
	if opts.Timeout > 0 {
		timer = time.AfterFunc(opts.Timeout, func() {
			timedOut.Store(true)
			cancel()
		})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.UserAgent)
	req.Header.Set("Accept", "image/avif,image/webp,image/*,video/*,*/*;q=0.8")
	if opts.Referer != "" {
		req.Header.Set("Referer", opts.Referer)
	}
	if opts.Range != "" {
		req.Header.Set("Range", opts.Range)
	}

	start := time.Now()
	resp, err := f.client(opts).Do(req)
	if timer != nil {
		timer.Stop()
	}
	elapsed := time.Since(start).Seconds()
	if err != nil {
		cancel()
		if errors.Is(err, api.ErrForbidden) {
			metrics.RecordUpstream("forbidden", elapsed)
			return nil, fmt.Errorf("fetch %s: %w", u.Host, err)
		}
		if timedOut.Load() || isTimeout(err) {
			metrics.RecordUpstream("timeout", elapsed)
			return nil, fmt.Errorf("fetch %s: %w", u.Host, api.ErrTimeout)
		}
		metrics.RecordUpstream("error", elapsed)
		return nil, fmt.Errorf("fetch %s: %w: %w", u.Host, api.ErrUpstreamUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RecordUpstream("status", elapsed)
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, snippetLimit))
		resp.Body.Close()
		cancel()
		return nil, &StatusError{Status: resp.StatusCode, Snippet: strings.TrimSpace(string(snippet))}
	}

	metrics.RecordUpstream("ok", elapsed)
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       &cancelBody{ReadCloser: resp.Body, cancel: cancel},
	}, nil
}

// client returns f.Client, or a copy of it that vets each redirect hop
// with opts.CheckRedirect.
func (f *Fetcher) client(opts Options) *http.Client {
	if opts.CheckRedirect == nil {
		return f.Client
	}
	c := *f.Client
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return opts.CheckRedirect(req.URL)
	}
	return &c
}

// Get downloads the whole body of u. opts.Timeout bounds the entire
// download, not just the headers.
func (f *Fetcher) Get(ctx context.Context, u *url.URL, opts Options) ([]byte, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	opts.Timeout = 0

	resp, err := f.Open(ctx, u, opts)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, api.ErrTimeout) {
			return nil, fmt.Errorf("fetch %s: %w", u.Host, api.ErrTimeout)
		}
		return nil, err
	}
	defer resp.Body.Close()

	var body io.Reader = resp.Body
	if f.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, f.MaxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("read %s: %w", u.Host, api.ErrTimeout)
		}
		return nil, fmt.Errorf("read %s: %w: %w", u.Host, api.ErrUpstreamUnavailable, err)
	}
	if f.MaxBytes > 0 && int64(len(data)) > f.MaxBytes {
		return nil, fmt.Errorf("upstream body exceeds %d bytes: %w", f.MaxBytes, api.ErrUpstreamUnavailable)
	}
	return data, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// cancelBody cancels the request context once the body is closed.
type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
	once   sync.Once
	err    error
}

func (b *cancelBody) Close() error {
	b.once.Do(func() {
		b.err = b.ReadCloser.Close()
		b.cancel()
	})
	return b.err
}
