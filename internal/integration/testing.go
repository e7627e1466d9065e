package integration

import (
	"context"
	"os"
	"testing"
	"time"
)

// Config holds live test credentials from the environment.
type Config struct {
	OpenAIKey    string
	OpenAIModel  string
	BrapiToken   string
	TavilyAPIKey string
	TestTimeout  time.Duration
	SkipSlow     bool
}

// LoadConfig loads live test configuration from the environment.
func LoadConfig() *Config {
	model := os.Getenv("HEDGEFUND_TEST_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Config{
		OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:  model,
		BrapiToken:   os.Getenv("BRAPI_TOKEN"),
		TavilyAPIKey: os.Getenv("TAVILY_API_KEY"),
		TestTimeout:  2 * time.Minute,
		SkipSlow:     os.Getenv("SKIP_SLOW_TESTS") == "1",
	}
}

// SkipIfMissing skips the test when a required credential is not set.
func SkipIfMissing(t *testing.T, value, envVar string) {
	t.Helper()
	if value == "" {
		t.Skipf("skipping live test: %s not set", envVar)
	}
}

// SkipIfShort skips live tests in short mode.
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping live test in short mode")
	}
}

// NewTestContext creates a context with timeout for live tests.
func NewTestContext(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}
