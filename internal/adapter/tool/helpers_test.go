package tool

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"hedgefund/internal/infra/config"
)

// nopLogger returns a logger that discards output.
func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeBrapi is an httptest server that counts requests and records the last one.
type fakeBrapi struct {
	srv      *httptest.Server
	requests atomic.Int32
	lastReq  atomic.Pointer[http.Request]
}

func newFakeBrapi(t *testing.T, handler http.HandlerFunc) *fakeBrapi {
	t.Helper()
	f := &fakeBrapi{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		f.lastReq.Store(r.Clone(r.Context()))
		handler(w, r)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeBrapi) count() int { return int(f.requests.Load()) }

func (f *fakeBrapi) last() *http.Request { return f.lastReq.Load() }

// client returns a BrapiClient without rate limiting or circuit breaking.
func (f *fakeBrapi) client() *BrapiClient {
	return NewBrapiClient(config.BrapiConfig{
		BaseURL: f.srv.URL,
		Token:   "test-token",
		Timeout: 2 * time.Second,
	}, nil, nopLogger())
}

func jsonHandler(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}
