package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateWorkflow(cfg, ve)
	validateSpecialists(cfg, ve)
	validateBrapi(cfg, ve)
	validateNews(cfg, ve)
	validateLLM(cfg, ve)
	validateLogger(cfg, ve)
	validateOutput(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

// knownSpecialists are the specialists the router can dispatch to.
var knownSpecialists = map[string]bool{
	"fundamental_analyst": true,
	"valuation_analyst":   true,
	"price_analyst":       true,
}

// knownTools are the tool names a specialist may bind.
var knownTools = map[string]bool{
	"get_income_statements":                  true,
	"get_income_statement_history_quarterly": true,
	"get_balance_sheet_history":              true,
	"get_balance_sheet_history_quarterly":    true,
	"get_financial_data":                     true,
	"get_default_key_statistics":             true,
	"get_quote":                              true,
	"get_quote_list":                         true,
	"get_price_statistics":                   true,
	"get_inflation":                          true,
	"get_prime_rate":                         true,
	"search_news":                            true,
}

func validateWorkflow(cfg *Config, ve *ValidationError) {
	w := cfg.Workflow
	if len(w.Specialists) == 0 {
		ve.Add("workflow.specialists must name at least one specialist")
	}
	seen := make(map[string]bool)
	for _, name := range w.Specialists {
		if !knownSpecialists[name] {
			ve.Add("workflow.specialists: unknown specialist %q", name)
		}
		if seen[name] {
			ve.Add("workflow.specialists: %q listed twice", name)
		}
		seen[name] = true
	}
	if w.MaxCycles <= 0 {
		ve.Add("workflow.max_cycles must be > 0")
	}
	if w.MaxTotalSteps <= 0 {
		ve.Add("workflow.max_total_steps must be > 0")
	}
	if w.Timeout < 0 {
		ve.Add("workflow.timeout must be >= 0")
	}
}

func validateSpecialists(cfg *Config, ve *ValidationError) {
	for name, sc := range cfg.Specialists {
		if !knownSpecialists[name] {
			ve.Add("specialists.%s: unknown specialist", name)
			continue
		}
		if sc.MaxSteps <= 0 {
			ve.Add("specialists.%s.max_steps must be > 0", name)
		}
		if len(sc.Tools) == 0 {
			ve.Add("specialists.%s.tools must not be empty", name)
		}
		for _, tool := range sc.Tools {
			if !knownTools[tool] {
				ve.Add("specialists.%s.tools: unknown tool %q", name, tool)
			}
		}
	}
}

func validateBrapi(cfg *Config, ve *ValidationError) {
	b := cfg.Brapi
	switch {
	case b.Token == "":
		ve.Add("brapi.token is empty (set BRAPI_TOKEN)")
	case b.Token == PlaceholderBrapiToken:
		ve.Add("brapi.token is still the placeholder %s (set BRAPI_TOKEN)", PlaceholderBrapiToken)
	}
	if _, err := url.ParseRequestURI(b.BaseURL); err != nil {
		ve.Add("brapi.base_url %q is not a valid URL", b.BaseURL)
	}
	if b.Timeout <= 0 {
		ve.Add("brapi.timeout must be > 0")
	}
	if b.RateLimit < 0 {
		ve.Add("brapi.rate_limit must be >= 0")
	}
	if b.RateLimit > 0 && b.Burst <= 0 {
		ve.Add("brapi.burst must be > 0 when rate_limit is set")
	}
}

func validateNews(cfg *Config, ve *ValidationError) {
	if !cfg.News.Enabled() {
		return
	}
	if cfg.News.MaxResults <= 0 {
		ve.Add("news.max_results must be > 0")
	}
	if cfg.News.Timeout <= 0 {
		ve.Add("news.timeout must be > 0")
	}
}

var validProviderTypes = map[string]bool{
	"openai":  true,
	"bedrock": true,
}

func validateLLM(cfg *Config, ve *ValidationError) {
	if cfg.LLM.DefaultProvider == "" {
		ve.Add("llm.default_provider must not be empty")
	}
	if len(cfg.LLM.Providers) == 0 {
		ve.Add("llm.providers must configure at least one provider")
		return
	}

	seen := make(map[string]bool)
	foundDefault := false
	for i, p := range cfg.LLM.Providers {
		if p.Name == "" {
			ve.Add("llm.providers[%d].name must not be empty", i)
			continue
		}
		if seen[p.Name] {
			ve.Add("llm.providers[%d]: duplicate provider name %q", i, p.Name)
		}
		seen[p.Name] = true

		if p.Type != "" && !validProviderTypes[p.Type] {
			ve.Add("llm.providers[%d].type %q is invalid (want: openai, bedrock)", i, p.Type)
		}
		if p.APIKey == "" && p.Type != "bedrock" {
			ve.Add("llm.providers[%d] (%s): api_key is empty (set OPENAI_API_KEY or HEDGEFUND_LLM_PROVIDER_%s_API_KEY)",
				i, p.Name, strings.ToUpper(p.Name))
		}
		if p.Model == "" {
			ve.Add("llm.providers[%d] (%s): model must not be empty", i, p.Name)
		}
		if p.Name == cfg.LLM.DefaultProvider {
			foundDefault = true
		}
	}
	if !foundDefault && cfg.LLM.DefaultProvider != "" {
		ve.Add("llm.default_provider %q does not match any configured provider", cfg.LLM.DefaultProvider)
	}

	if cfg.LLM.Failover.Enabled {
		for _, fb := range cfg.LLM.Failover.Fallbacks {
			if !seen[fb] {
				ve.Add("llm.failover.fallbacks: unknown provider %q", fb)
			}
		}
	}
	if cfg.LLM.ToolResultTokens < 0 {
		ve.Add("llm.tool_result_tokens must be >= 0")
	}
	if cfg.LLM.MaxRetries < 0 {
		ve.Add("llm.max_retries must be >= 0")
	}
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	if f := cfg.Logger.Format; f != "text" && f != "json" {
		ve.Add("logger.format %q is invalid (want: text, json)", f)
	}
}

func validateOutput(cfg *Config, ve *ValidationError) {
	if f := cfg.Output.Format; f != "text" && f != "json" {
		ve.Add("output.format %q is invalid (want: text, json)", f)
	}
}
