package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leca/cover-proxy/internal/api"
	"github.com/leca/cover-proxy/internal/cache"
	"github.com/leca/cover-proxy/internal/config"
	"github.com/leca/cover-proxy/internal/fetch"
	"github.com/stretchr/testify/require"
)

// videoPayload is served by the fake upstream at /video.
var videoPayload = func() []byte {
	b := make([]byte, 1000)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}()

// upstream is a fake CDN with a few fixed resources.
type upstream struct {
	*httptest.Server
	hits     atomic.Int64
	referer  atomic.Value
	released chan struct{}
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{released: make(chan struct{}, 4)}

	cover := makePNG(t, 200, 100, func(x, _ int) color.Color {
		if x < 100 {
			return color.NRGBA{R: 255, A: 255}
		}
		return color.NRGBA{B: 255, A: 255}
	})
	tall := makePNG(t, 100, 200, func(_, y int) color.Color {
		if y < 100 {
			return color.NRGBA{G: 255, A: 255}
		}
		return color.NRGBA{R: 255, G: 255, A: 255}
	})
	solid := makePNG(t, 40, 20, func(_, _ int) color.Color {
		return color.NRGBA{R: 10, G: 20, B: 30, A: 255}
	})

	mux := http.NewServeMux()
	serveBytes := func(data []byte, contentType string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", contentType)
			_, _ = w.Write(data)
		}
	}
	mux.HandleFunc("/cover.png", serveBytes(cover, "image/png"))
	mux.HandleFunc("/tall.png", serveBytes(tall, "image/png"))
	mux.HandleFunc("/solid.png", serveBytes(solid, "image/png"))
	mux.HandleFunc("/text", serveBytes([]byte("hello"), "text/plain"))
	mux.HandleFunc("/video", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("X-Upstream-Secret", "leak")
		w.Header().Set("Set-Cookie", "session=leak")
		http.ServeContent(w, r, "video.mp4", time.Time{}, bytes.NewReader(videoPayload))
	})
	mux.HandleFunc("/hop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/video", http.StatusFound)
	})
	mux.HandleFunc("/stall", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
		u.released <- struct{}{}
	})
	mux.HandleFunc("/partial", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(videoPayload[:100])
		w.(http.Flusher).Flush()
		<-r.Context().Done()
		u.released <- struct{}{}
	})

	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.hits.Add(1)
		u.referer.Store(r.Header.Get("Referer"))
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(u.Close)
	return u
}

func (u *upstream) url(path string) string {
	return u.URL + path
}

func (u *upstream) lastReferer() string {
	v, _ := u.referer.Load().(string)
	return v
}

func makePNG(t *testing.T, w, h int, fill func(x, y int) color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, fill(x, y))
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testConfig() *config.Config {
	return &config.Config{
		UserAgent:        "cover-proxy-test",
		MediaReferer:     "https://www.dmm.co.jp/",
		ProxyHosts:       []string{"127.0.0.1"},
		MediaDomains:     []string{"dmm.co.jp", "dmm.com"},
		MaxImageSize:     8 << 20,
		ProxyTimeout:     2 * time.Second,
		RelayIdleTimeout: 2 * time.Second,
		TransformTimeout: 2 * time.Second,
		ColorTimeout:     2 * time.Second,
	}
}

// testServer mounts the handlers the way the router does, minus CORS and
// request logging.
func testServer(t *testing.T, store cache.Store, cfg *config.Config) *httptest.Server {
	t.Helper()
	if store == nil {
		store = cache.NewMemory()
	}
	h := New(store, fetch.New(cfg.UserAgent, cfg.MaxImageSize, nil), cfg, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /proxy", h.Proxy)
	mux.HandleFunc("GET /split", h.Split)
	mux.HandleFunc("GET /thumb", h.Thumb)
	mux.HandleFunc("GET /color", h.Color)

	ts := httptest.NewServer(api.RecoverJSON(mux))
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, ts *httptest.Server, path string, params url.Values) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path + "?" + params.Encode())
	require.NoError(t, err)
	return resp
}

func readBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return data
}

// decodeError reads a JSON error envelope and returns its first message.
func decodeError(t *testing.T, resp *http.Response) string {
	t.Helper()
	var env api.Response
	require.NoError(t, json.Unmarshal(readBody(t, resp), &env))
	require.False(t, env.Success)
	require.NotEmpty(t, env.Errors)
	return env.Errors[0].Message
}

func decodeImage(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, _, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

// failingStore misses on every read and rejects every write.
type failingStore struct {
	puts atomic.Int64
}

func (s *failingStore) Get(context.Context, cache.Key) ([]byte, error) {
	return nil, cache.ErrMiss
}

func (s *failingStore) Put(context.Context, cache.Key, []byte) error {
	s.puts.Add(1)
	return errors.New("disk full")
}

func (s *failingStore) Close() error { return nil }
