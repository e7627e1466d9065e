package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"hedgefund/internal/adapter/tool"
	"hedgefund/internal/infra/config"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

// doctorTimeout bounds each network check.
const doctorTimeout = 10 * time.Second

// runDoctor executes all health checks and reports results.
func runDoctor(cfgPath string, w io.Writer) error {
	// Some checks work without a valid config.
	cfg, cfgErr := config.Load(cfgPath)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "Brapi token", Fn: checkBrapiToken},
		{Name: "Brapi connectivity", Fn: checkBrapiConnectivity},
		{Name: "LLM API key", Fn: checkLLMAPIKey},
		{Name: "LLM connectivity", Fn: checkLLMConnectivity},
		{Name: "News search", Fn: checkNewsSearch},
	}

	results := runChecks(cfg, checks)
	return printReport(w, results)
}

func runChecks(cfg *config.Config, checks []Check) []CheckResult {
	results := make([]CheckResult, 0, len(checks))
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name
		results = append(results, result)
	}
	return results
}

func printReport(w io.Writer, results []CheckResult) error {
	fmt.Fprintln(w, "hedgefund doctor")
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintln(w)

	var pass, warn, fail int
	for _, result := range results {
		fmt.Fprintf(w, "  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Fprintf(w, "      Fix: %s\n", result.Fix)
		}
		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("-", 50))
	fmt.Fprintf(w, "Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		fmt.Fprintln(w, "\nFix the FAIL issues above before asking questions.")
		return fmt.Errorf("%d check(s) failed", fail)
	}
	if warn > 0 {
		fmt.Fprintln(w, "\nhedgefund should work, but consider addressing the warnings.")
	} else {
		fmt.Fprintln(w, "\nAll checks passed! hedgefund is ready to run.")
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

// checkConfigFile reports whether the config file exists and loads cleanly.
// A missing file is only a warning since defaults and env vars suffice.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config did not load: %v", cfgErr),
				Fix:     "Fix the listed fields in " + cfgPath + " or the matching environment variables",
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s, using defaults and environment", cfgPath),
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

// checkBrapiToken verifies the market data token is set and not the placeholder.
// Without a loaded config it falls back to the environment.
func checkBrapiToken(cfg *config.Config) CheckResult {
	token := ""
	if cfg != nil {
		token = cfg.Brapi.Token
	} else if creds, err := config.LoadCredentials(); err == nil {
		token = creds.BrapiToken
	}

	switch token {
	case "":
		return CheckResult{
			Status:  StatusFail,
			Message: "BRAPI_TOKEN is not set",
			Fix:     "Get a token at https://brapi.dev and export BRAPI_TOKEN (or add it to .env)",
		}
	case config.PlaceholderBrapiToken:
		return CheckResult{
			Status:  StatusFail,
			Message: "BRAPI_TOKEN is still the example placeholder",
			Fix:     "Replace " + config.PlaceholderBrapiToken + " with your real token",
		}
	}
	return CheckResult{Status: StatusPass, Message: "token configured"}
}

// checkBrapiConnectivity issues one quote request through the real client.
func checkBrapiConnectivity(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusWarn, Message: "skipped: config not loaded"}
	}

	ctx, cancel := context.WithTimeout(context.Background(), doctorTimeout)
	defer cancel()

	client := tool.NewBrapiClient(cfg.Brapi, nil, nil)
	start := time.Now()
	if _, err := client.Get(ctx, "/quote/PETR4", nil); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("quote request failed: %v", err),
			Fix:     "Check BRAPI_TOKEN, brapi.base_url and your network connection",
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s reachable (latency: %dms)", cfg.Brapi.BaseURL, time.Since(start).Milliseconds()),
	}
}

// checkLLMAPIKey verifies every provider that needs an API key has one.
func checkLLMAPIKey(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check: config not loaded"}
	}
	if len(cfg.LLM.Providers) == 0 {
		return CheckResult{
			Status:  StatusFail,
			Message: "no LLM providers configured",
			Fix:     "Add at least one provider under llm.providers",
		}
	}

	var withKey, withoutKey []string
	for _, p := range cfg.LLM.Providers {
		switch {
		case p.Type == "bedrock":
			withKey = append(withKey, p.Name+" (aws credentials)")
		case p.APIKey != "":
			withKey = append(withKey, p.Name)
		default:
			withoutKey = append(withoutKey, p.Name)
		}
	}

	if len(withKey) == 0 {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("no API keys found for providers: %s", strings.Join(withoutKey, ", ")),
			Fix:     "Set OPENAI_API_KEY or HEDGEFUND_LLM_PROVIDER_<NAME>_API_KEY",
		}
	}
	if len(withoutKey) > 0 {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("keys configured for [%s]; missing for [%s]", strings.Join(withKey, ", "), strings.Join(withoutKey, ", ")),
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("credentials configured for: %s", strings.Join(withKey, ", ")),
	}
}

// checkLLMConnectivity tests if the default LLM provider is reachable.
func checkLLMConnectivity(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check: config not loaded"}
	}

	var provider *config.ProviderConfig
	for i := range cfg.LLM.Providers {
		if cfg.LLM.Providers[i].Name == cfg.LLM.DefaultProvider {
			provider = &cfg.LLM.Providers[i]
			break
		}
	}
	if provider == nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("default provider %q not found in config", cfg.LLM.DefaultProvider),
		}
	}

	endpoint := providerEndpoint(provider)
	if endpoint == "" {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("no known endpoint for provider type %q, skipping connectivity test", provider.Type),
		}
	}
	if provider.APIKey == "" {
		return CheckResult{Status: StatusWarn, Message: "skipped: no API key for default provider"}
	}

	ctx, cancel := context.WithTimeout(context.Background(), doctorTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: fmt.Sprintf("failed to create request: %v", err)}
	}
	req.Header.Set("Authorization", "Bearer "+provider.APIKey)

	start := time.Now()
	resp, err := http.DefaultClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot reach %s: %v", endpoint, err),
			Fix:     "Check your internet connection and firewall settings",
		}
	}
	resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("%s rejected the API key (status %d)", provider.Name, resp.StatusCode),
			Fix:     "Check the API key for " + provider.Name,
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s reachable (latency: %dms)", provider.Name, latency.Milliseconds()),
	}
}

// providerEndpoint returns a cheap authenticated URL for the given provider.
func providerEndpoint(p *config.ProviderConfig) string {
	switch p.Type {
	case "openai", "":
		base := "https://api.openai.com/v1"
		if p.BaseURL != "" {
			base = strings.TrimRight(p.BaseURL, "/")
		}
		return base + "/models"
	default:
		return ""
	}
}

// checkNewsSearch reports whether the optional news tool is available.
func checkNewsSearch(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusWarn, Message: "cannot check: config not loaded"}
	}
	if !cfg.News.Enabled() {
		return CheckResult{
			Status:  StatusWarn,
			Message: "news search disabled",
			Fix:     "Set TAVILY_API_KEY to enable the search_news tool",
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("news search enabled via %s", cfg.News.BaseURL),
	}
}
