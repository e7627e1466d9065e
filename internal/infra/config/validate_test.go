package config

import (
	"errors"
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := Defaults()
	cfg.Brapi.Token = "token"
	cfg.LLM.Providers[0].APIKey = "sk-test"
	return cfg
}

func validationErrors(t *testing.T, cfg *Config) []string {
	t.Helper()
	err := Validate(cfg)
	if err == nil {
		return nil
	}
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Validate returned %T, want *ValidationError", err)
	}
	return ve.Errors
}

func containsError(errs []string, substr string) bool {
	for _, e := range errs {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}

func TestValidateDefaultsWithCredentials(t *testing.T) {
	if errs := validationErrors(t, validConfig()); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
}

func TestValidateCases(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown specialist", func(c *Config) { c.Workflow.Specialists = []string{"macro_analyst"} }, `unknown specialist "macro_analyst"`},
		{"duplicate specialist", func(c *Config) { c.Workflow.Specialists = []string{"price_analyst", "price_analyst"} }, "listed twice"},
		{"no specialists", func(c *Config) { c.Workflow.Specialists = nil }, "at least one specialist"},
		{"zero cycles", func(c *Config) { c.Workflow.MaxCycles = 0 }, "max_cycles"},
		{"zero steps", func(c *Config) { c.Workflow.MaxTotalSteps = 0 }, "max_total_steps"},
		{"specialist without tools", func(c *Config) {
			c.Specialists["price_analyst"] = SpecialistConfig{MaxSteps: 5}
		}, "specialists.price_analyst.tools"},
		{"specialist without steps", func(c *Config) {
			c.Specialists["price_analyst"] = SpecialistConfig{Tools: []string{"get_quote"}}
		}, "specialists.price_analyst.max_steps"},
		{"unknown tool", func(c *Config) {
			c.Specialists["price_analyst"] = SpecialistConfig{MaxSteps: 5, Tools: []string{"get_quote", "get_magic"}}
		}, `unknown tool "get_magic"`},
		{"placeholder token", func(c *Config) { c.Brapi.Token = PlaceholderBrapiToken }, "placeholder"},
		{"bad base url", func(c *Config) { c.Brapi.BaseURL = "not a url" }, "brapi.base_url"},
		{"burst missing", func(c *Config) { c.Brapi.Burst = 0 }, "brapi.burst"},
		{"provider type", func(c *Config) { c.LLM.Providers[0].Type = "anthropic" }, "type \"anthropic\" is invalid"},
		{"provider key", func(c *Config) { c.LLM.Providers[0].APIKey = "" }, "OPENAI_API_KEY"},
		{"default provider", func(c *Config) { c.LLM.DefaultProvider = "groq" }, `"groq" does not match`},
		{"failover fallback", func(c *Config) {
			c.LLM.Failover = FailoverConfig{Enabled: true, Fallbacks: []string{"ghost"}}
		}, `unknown provider "ghost"`},
		{"log level", func(c *Config) { c.Logger.Level = "loud" }, "logger.level"},
		{"output format", func(c *Config) { c.Output.Format = "yaml" }, "output.format"},
		{"news results", func(c *Config) { c.News.APIKey = "tv"; c.News.MaxResults = 0 }, "news.max_results"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			errs := validationErrors(t, cfg)
			if !containsError(errs, tt.want) {
				t.Errorf("errors %v do not mention %q", errs, tt.want)
			}
		})
	}
}

func TestValidateBedrockNeedsNoKey(t *testing.T) {
	cfg := validConfig()
	cfg.LLM.Providers = append(cfg.LLM.Providers, ProviderConfig{
		Name: "aws", Type: "bedrock", Model: "anthropic.claude-3-haiku", Region: "us-east-1",
	})
	if errs := validationErrors(t, cfg); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
}

func TestValidationErrorAccumulates(t *testing.T) {
	cfg := validConfig()
	cfg.Workflow.MaxCycles = 0
	cfg.Brapi.Token = ""
	errs := validationErrors(t, cfg)
	if len(errs) < 2 {
		t.Fatalf("got %d errors, want at least 2: %v", len(errs), errs)
	}
}
