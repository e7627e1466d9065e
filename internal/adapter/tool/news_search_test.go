package tool

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hedgefund/internal/domain"
	"hedgefund/internal/infra/config"
)

func newTavily(t *testing.T, handler http.HandlerFunc) (*TavilyBackend, *atomic.Int32) {
	t.Helper()
	calls := &atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	b := NewTavilyBackend(config.NewsConfig{
		BaseURL: srv.URL,
		APIKey:  "tvly-test",
		Timeout: 2 * time.Second,
	}, nopLogger())
	return b, calls
}

func TestTavilyBackend_Search(t *testing.T) {
	var (
		mu      sync.Mutex
		gotBody map[string]any
		gotAuth string
	)
	b, calls := newTavily(t, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotAuth = r.Header.Get("Authorization")
		_ = json.Unmarshal(data, &gotBody)
		mu.Unlock()
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		_, _ = io.WriteString(w, `{"results":[
			{"title":"Petrobras anuncia dividendos","url":"https://example.com/a","content":"...","published_date":"2025-03-10"},
			{"title":"Vale","url":"https://example.com/b","content":"..."},
			{"title":"Extra","url":"https://example.com/c","content":"..."}
		]}`)
	})

	results, err := b.Search(context.Background(), "Petrobras dividendos", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Petrobras anuncia dividendos", results[0].Title)
	assert.Equal(t, "2025-03-10", results[0].Published)
	assert.Equal(t, int32(1), calls.Load())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "Bearer tvly-test", gotAuth)
	assert.Equal(t, "news", gotBody["topic"])
	assert.Equal(t, float64(2), gotBody["max_results"])
}

func TestTavilyBackend_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   domain.ToolErrorKind
	}{
		{"unauthorized", http.StatusUnauthorized, `{"detail":"invalid key"}`, domain.ToolErrNetwork},
		{"rate limited", http.StatusTooManyRequests, `{}`, domain.ToolErrRateLimit},
		{"server error", http.StatusInternalServerError, `{}`, domain.ToolErrNetwork},
		{"missing results", http.StatusOK, `{"answer":"x"}`, domain.ToolErrMalformed},
		{"not json", http.StatusOK, `nope`, domain.ToolErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newTavily(t, jsonHandler(tt.status, tt.body))
			_, err := b.Search(context.Background(), "q", 5)
			require.Error(t, err)
			assert.Equal(t, tt.want, classifyToolError(err))
		})
	}
}

type fakeBackend struct {
	calls   int
	lastN   int
	results []SearchResult
	err     error
}

func (f *fakeBackend) Name() string { return "fake" }
func (f *fakeBackend) Search(_ context.Context, _ string, count int) ([]SearchResult, error) {
	f.calls++
	f.lastN = count
	return f.results, f.err
}

func TestNewsSearchTool_Execute(t *testing.T) {
	backend := &fakeBackend{results: []SearchResult{
		{Title: "Itaú lucra mais", URL: "https://example.com/itau", Content: "Resultado trimestral", Published: "2025-02-05"},
	}}
	tl := registered(t, NewNewsSearchTool(backend, 5, nopLogger()))

	res, err := tl.Execute(context.Background(), json.RawMessage(`{"query":"Itaú resultado"}`))
	require.NoError(t, err)
	require.False(t, res.IsError, res.Content)
	assert.Contains(t, res.Content, "Itaú lucra mais")
	assert.Contains(t, res.Content, "Published: 2025-02-05")
	assert.Equal(t, 1, backend.calls)
	assert.Equal(t, 5, backend.lastN)

	// No caching: a repeated query reaches the backend again.
	_, err = tl.Execute(context.Background(), json.RawMessage(`{"query":"Itaú resultado","max_results":3}`))
	require.NoError(t, err)
	assert.Equal(t, 2, backend.calls)
	assert.Equal(t, 3, backend.lastN)
}

func TestNewsSearchTool_NoResults(t *testing.T) {
	tl := registered(t, NewNewsSearchTool(&fakeBackend{}, 0, nopLogger()))
	res, err := tl.Execute(context.Background(), json.RawMessage(`{"query":"nothing"}`))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, res.Content, "No news found")
}

func TestNewsSearchTool_InvalidArguments(t *testing.T) {
	backend := &fakeBackend{}
	tl := registered(t, NewNewsSearchTool(backend, 5, nopLogger()))

	for _, raw := range []string{`{}`, `{"query":""}`, `{"query":"   "}`, `{"query":"x","max_results":50}`} {
		res, err := tl.Execute(context.Background(), json.RawMessage(raw))
		require.NoError(t, err)
		assert.Equal(t, domain.ToolErrInvalidArguments, res.ErrorKind, raw)
	}
	assert.Equal(t, 0, backend.calls)
}

func TestNewsSearchTool_BackendFailure(t *testing.T) {
	backend := &fakeBackend{err: domain.NewSubSystemError("tavily", "Search", domain.ErrRateLimit, "HTTP 429")}
	tl := registered(t, NewNewsSearchTool(backend, 5, nopLogger()))

	res, err := tl.Execute(context.Background(), json.RawMessage(`{"query":"Selic"}`))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, domain.ToolErrRateLimit, res.ErrorKind)
}
