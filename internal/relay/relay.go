// Package relay copies an upstream response body to an HTTP client chunk by
// chunk, aborting when upstream goes idle or the client goes away.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/leca/cover-proxy/internal/api"
	"github.com/leca/cover-proxy/internal/fetch"
	"github.com/leca/cover-proxy/internal/metrics"
)

const (
	DefaultIdleTimeout = 15 * time.Second
	DefaultChunkSize   = 32 << 10
	DefaultBuffer      = 4

	// CacheControl is sent on every relayed response.
	CacheControl = "public, max-age=3600"
)

// PassHeaders are the only upstream headers forwarded to the client.
var PassHeaders = []string{
	"Content-Length",
	"Content-Range",
	"Accept-Ranges",
	"ETag",
	"Last-Modified",
}

var (
	// ErrIdleTimeout means upstream sent nothing for the idle window.
	ErrIdleTimeout = fmt.Errorf("upstream idle: %w", api.ErrTimeout)
	// ErrClientGone means the client disconnected or a write to it failed.
	ErrClientGone = errors.New("client went away")
)

// State is the position of a session in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateReading
	StateDone
	StateTimedOut
	StateClientCanceled
	StateUpstreamError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReading:
		return "reading"
	case StateDone:
		return "done"
	case StateTimedOut:
		return "timed_out"
	case StateClientCanceled:
		return "client_canceled"
	case StateUpstreamError:
		return "upstream_error"
	default:
		return "unknown"
	}
}

// Aborted reports whether s is a terminal failure state.
func (s State) Aborted() bool {
	return s == StateTimedOut || s == StateClientCanceled || s == StateUpstreamError
}

type Options struct {
	IdleTimeout time.Duration
	ChunkSize   int
	// Buffer is the number of chunks read ahead of the client.
	Buffer int
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = DefaultIdleTimeout
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Buffer <= 0 {
		o.Buffer = DefaultBuffer
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Result summarises a finished session.
type Result struct {
	ID    string
	State State
	Bytes int64
	// Committed is true once status and headers were sent to the client.
	// After that an error can only be signalled by aborting the connection.
	Committed bool
}

// Session is the state of one relayed stream.
type Session struct {
	ID    string
	state State
	body  io.ReadCloser
	stop  chan struct{}
	once  sync.Once
}

func newSession(body io.ReadCloser) *Session {
	return &Session{
		ID:    uuid.NewString(),
		state: StateIdle,
		body:  body,
		stop:  make(chan struct{}),
	}
}

// close releases the upstream connection and stops the producer. Safe to
// call any number of times.
func (s *Session) close() {
	s.once.Do(func() {
		close(s.stop)
		s.body.Close()
	})
}

// produce reads upstream chunks into out until EOF, error or stop. The read
// error (nil on EOF) is sent on errc before out is closed.
func (s *Session) produce(out chan<- []byte, errc chan<- error, chunkSize int) {
	defer close(out)
	for {
		buf := make([]byte, chunkSize)
		n, err := s.body.Read(buf)
		if n > 0 {
			select {
			case out <- buf[:n]:
			case <-s.stop:
				errc <- nil
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = nil
			}
			errc <- err
			return
		}
	}
}

// Run streams resp to w. Response headers are written when the first chunk
// arrives, so a session that times out before any data can still be answered
// with a proper error status by the caller.
func Run(ctx context.Context, w http.ResponseWriter, resp *fetch.Response, opts Options) (res Result, err error) {
	opts = opts.withDefaults()
	s := newSession(resp.Body)
	defer s.close()

	res.ID = s.ID
	defer func() {
		res.State = s.state
		metrics.RecordRelay(s.state.String(), res.Bytes)
		opts.Logger.Debug("relay session finished",
			"session", s.ID,
			"state", s.state.String(),
			"bytes", res.Bytes,
		)
	}()

	chunks := make(chan []byte, opts.Buffer)
	errc := make(chan error, 1)
	go s.produce(chunks, errc, opts.ChunkSize)

	rc := http.NewResponseController(w)
	timer := time.NewTimer(opts.IdleTimeout)
	defer timer.Stop()

	s.state = StateReading
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				if err := <-errc; err != nil {
					s.state = StateUpstreamError
					return res, fmt.Errorf("reading upstream: %w: %w", api.ErrUpstreamUnavailable, err)
				}
				if !res.Committed {
					writeHeaders(w, resp)
					res.Committed = true
				}
				s.state = StateDone
				return res, nil
			}

			if !res.Committed {
				writeHeaders(w, resp)
				res.Committed = true
			}
			n, err := w.Write(chunk)
			res.Bytes += int64(n)
			if err != nil {
				s.state = StateClientCanceled
				return res, fmt.Errorf("%w: %w", ErrClientGone, err)
			}
			if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
				s.state = StateClientCanceled
				return res, fmt.Errorf("%w: %w", ErrClientGone, err)
			}
			timer.Reset(opts.IdleTimeout)

		case <-timer.C:
			s.state = StateTimedOut
			return res, ErrIdleTimeout

		case <-ctx.Done():
			s.state = StateClientCanceled
			return res, fmt.Errorf("%w: %w", ErrClientGone, ctx.Err())
		}
	}
}

func writeHeaders(w http.ResponseWriter, resp *fetch.Response) {
	h := w.Header()
	for _, name := range PassHeaders {
		if v := resp.Header.Get(name); v != "" {
			h.Set(name, v)
		}
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)
	h.Set("Cache-Control", CacheControl)
	h.Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(resp.StatusCode)
}
