package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"hedgefund/internal/domain"
	"hedgefund/internal/infra/config"
	"hedgefund/internal/infra/tracer"
)

const (
	maxProviderBodySize = 4 * 1024 * 1024 // 4MB; statement histories can be large
	defaultBrapiTimeout = 15 * time.Second
)

// BrapiClient performs single GET requests against the brapi market data API.
// It never retries: a failure is categorized and handed back to the caller.
type BrapiClient struct {
	baseURL string
	token   string
	timeout time.Duration
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  *slog.Logger
}

// NewBrapiClient creates a client from cfg. A nil httpClient uses a client
// whose timeout matches cfg.Timeout.
func NewBrapiClient(cfg config.BrapiConfig, httpClient *http.Client, logger *slog.Logger) *BrapiClient {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultBrapiTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	c := &BrapiClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		timeout: timeout,
		client:  httpClient,
		logger:  logger,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	if cfg.CircuitBreaker.Enabled {
		c.breaker = newProviderBreaker("brapi", cfg.CircuitBreaker, logger)
	}
	return c
}

// newProviderBreaker trips on transient failures only. Not-found, malformed
// and rejected-argument answers prove the provider is up.
func newProviderBreaker(name string, cfg config.CircuitBreakerConfig, logger *slog.Logger) *gobreaker.CircuitBreaker[[]byte] {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !IsTransient(classifyToolError(err))
		},
	})
}

// Get issues GET {baseURL}{path}?{params}&token=... and returns the raw body.
// Errors wrap one of domain.ErrNotFound, ErrRateLimit, ErrNetwork,
// ErrMalformedResponse, ErrInvalidInput or ErrAuthInvalid.
func (c *BrapiClient) Get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	ctx, span := tracer.StartSpan(ctx, "brapi.request")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("brapi.path", path))

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			tracer.RecordError(span, err)
			return nil, domain.NewSubSystemError("brapi", "Get", domain.ErrNetwork, "rate limiter: "+err.Error())
		}
	}

	call := func() ([]byte, error) { return c.do(ctx, path, params) }
	var (
		body []byte
		err  error
	)
	if c.breaker != nil {
		body, err = c.breaker.Execute(call)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = domain.NewSubSystemError("brapi", "Get", domain.ErrNetwork, "circuit open: "+err.Error())
		}
	} else {
		body, err = call()
	}
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	tracer.SetOK(span)
	return body, nil
}

func (c *BrapiClient) do(ctx context.Context, path string, params url.Values) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	if c.token != "" {
		q.Set("token", c.token)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, domain.NewSubSystemError("brapi", "Get", domain.ErrInvalidInput, err.Error())
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, transportError("brapi", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderBodySize))
	if err != nil {
		return nil, transportError("brapi", err)
	}
	c.logger.Debug("brapi request", "path", path, "status", resp.StatusCode,
		"bytes", len(body), "duration", time.Since(start))

	if err := statusError("brapi", resp.StatusCode, body); err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, domain.NewSubSystemError("brapi", "Get", domain.ErrMalformedResponse, "response is not JSON")
	}
	if msg, failed := providerErrorMessage(body); failed {
		if looksNotFound(msg) {
			return nil, domain.NewSubSystemError("brapi", "Get", domain.ErrNotFound, msg)
		}
		return nil, domain.NewSubSystemError("brapi", "Get", domain.ErrMalformedResponse, msg)
	}
	return body, nil
}

// transportError wraps a failed round trip as a network failure. The request
// URL is dropped from the message since it carries the token.
func transportError(subsystem string, err error) error {
	detail := err.Error()
	var uerr *url.Error
	if errors.As(err, &uerr) {
		detail = uerr.Op + ": " + uerr.Err.Error()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewSubSystemError(subsystem, "Get", domain.ErrTimeout, detail)
	}
	return domain.NewSubSystemError(subsystem, "Get", domain.ErrNetwork, detail)
}

// statusError maps a non-2xx status to a categorized error.
func statusError(subsystem string, status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	msg, _ := providerErrorMessage(body)
	if msg == "" {
		msg = truncate(strings.TrimSpace(string(body)), 200)
	}
	detail := fmt.Sprintf("HTTP %d: %s", status, msg)

	var sentinel error
	switch {
	case status == http.StatusNotFound:
		sentinel = domain.ErrNotFound
	case status == http.StatusTooManyRequests:
		sentinel = domain.ErrRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		sentinel = domain.ErrAuthInvalid
	case status >= 500:
		sentinel = domain.ErrNetwork
	case looksNotFound(msg):
		sentinel = domain.ErrNotFound
	default:
		sentinel = domain.ErrInvalidInput
	}
	return domain.NewSubSystemError(subsystem, "Get", sentinel, detail)
}

// providerErrorMessage extracts {"error": true, "message": "..."} bodies.
func providerErrorMessage(body []byte) (string, bool) {
	var e struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err != nil {
		return "", false
	}
	switch strings.TrimSpace(string(e.Error)) {
	case "", "false", "null":
		return e.Message, false
	case "true":
		return e.Message, true
	default:
		// Some endpoints put the message in "error" itself.
		var s string
		if json.Unmarshal(e.Error, &s) == nil && s != "" {
			return s, true
		}
		return e.Message, e.Message != ""
	}
}

var notFoundMarkers = []string{"not found", "não encontr", "nao encontr", "no results"}

func looksNotFound(msg string) bool {
	lower := strings.ToLower(msg)
	for _, m := range notFoundMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
