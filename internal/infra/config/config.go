package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for a config file when --config is not given.
const DefaultPath = "hedgefund.yaml"

// PlaceholderBrapiToken is the token value shipped in example env files.
const PlaceholderBrapiToken = "<your_actual_brapi_token>"

// Config is the top-level application configuration.
type Config struct {
	Workflow    WorkflowConfig              `yaml:"workflow"`
	Specialists map[string]SpecialistConfig `yaml:"specialists"`
	Brapi       BrapiConfig                 `yaml:"brapi"`
	News        NewsConfig                  `yaml:"news"`
	LLM         LLMConfig                   `yaml:"llm"`
	Logger      LoggerConfig                `yaml:"logger"`
	Tracer      TracerConfig                `yaml:"tracer"`
	Output      OutputConfig                `yaml:"output"`
}

// WorkflowConfig bounds a single query run.
type WorkflowConfig struct {
	Specialists   []string      `yaml:"specialists"` // enabled specialists, in priority order
	MaxCycles     int           `yaml:"max_cycles"`
	MaxTotalSteps int           `yaml:"max_total_steps"`
	Summary       bool          `yaml:"summary"`
	Planner       bool          `yaml:"planner"`
	Timeout       time.Duration `yaml:"timeout"`
}

// SpecialistConfig overrides one specialist's defaults.
type SpecialistConfig struct {
	MaxSteps     int      `yaml:"max_steps"`
	Tools        []string `yaml:"tools"`
	SystemPrompt string   `yaml:"system_prompt,omitempty"`
}

// BrapiConfig holds market data provider settings.
type BrapiConfig struct {
	BaseURL        string               `yaml:"base_url"`
	Token          string               `yaml:"token"`
	Timeout        time.Duration        `yaml:"timeout"`
	RateLimit      float64              `yaml:"rate_limit"` // requests per second, 0 = unlimited
	Burst          int                  `yaml:"burst"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// NewsConfig holds the news search backend settings.
type NewsConfig struct {
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	MaxResults int           `yaml:"max_results"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Enabled reports whether the news tool can be registered.
func (n NewsConfig) Enabled() bool { return n.APIKey != "" }

// FailoverConfig holds model failover settings.
type FailoverConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Fallbacks []string `yaml:"fallbacks"`
}

// LLMConfig holds LLM provider settings.
type LLMConfig struct {
	DefaultProvider  string               `yaml:"default_provider"`
	Providers        []ProviderConfig     `yaml:"providers"`
	Failover         FailoverConfig       `yaml:"failover"`
	CircuitBreaker   CircuitBreakerConfig `yaml:"circuit_breaker"`
	Temperature      float64              `yaml:"temperature"`
	MaxRetries       int                  `yaml:"max_retries"`
	ToolResultTokens int                  `yaml:"tool_result_tokens"` // per tool payload sent back to the model
	Encoding         string               `yaml:"encoding"`           // tiktoken encoding name, or "approx"
}

// CircuitBreakerConfig holds circuit breaker settings.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// PoolConfig holds HTTP connection pool settings.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// ProviderConfig holds settings for a single LLM provider.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Region      string        `yaml:"region,omitempty"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
	Pool        PoolConfig    `yaml:"pool"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
}

// OutputConfig controls how answers are presented.
type OutputConfig struct {
	Format   string `yaml:"format"` // "text" or "json"
	Trace    bool   `yaml:"trace"`
	Progress bool   `yaml:"progress"`
	Width    int    `yaml:"width"`
}

// Credentials are read from the process environment (and .env) rather than YAML.
type Credentials struct {
	BrapiToken   string `envconfig:"BRAPI_TOKEN"`
	TavilyAPIKey string `envconfig:"TAVILY_API_KEY"`
	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY"`
	ConfigKey    string `envconfig:"HEDGEFUND_CONFIG_KEY"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Workflow: WorkflowConfig{
			Specialists:   []string{"fundamental_analyst", "valuation_analyst", "price_analyst"},
			MaxCycles:     10,
			MaxTotalSteps: 20,
			Summary:       true,
			Timeout:       5 * time.Minute,
		},
		Specialists: map[string]SpecialistConfig{
			"fundamental_analyst": {
				MaxSteps: 5,
				Tools: []string{
					"get_income_statements",
					"get_income_statement_history_quarterly",
					"get_balance_sheet_history",
					"get_balance_sheet_history_quarterly",
				},
			},
			"valuation_analyst": {
				MaxSteps: 5,
				Tools:    []string{"get_default_key_statistics", "get_financial_data"},
			},
			"price_analyst": {
				MaxSteps: 5,
				Tools:    []string{"get_quote", "get_price_statistics"},
			},
		},
		Brapi: BrapiConfig{
			BaseURL:   "https://brapi.dev/api",
			Timeout:   15 * time.Second,
			RateLimit: 5,
			Burst:     2,
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		News: NewsConfig{
			BaseURL:    "https://api.tavily.com",
			MaxResults: 5,
			Timeout:    15 * time.Second,
		},
		LLM: LLMConfig{
			DefaultProvider: "openai",
			Providers: []ProviderConfig{{
				Name:    "openai",
				Type:    "openai",
				BaseURL: "https://api.openai.com/v1",
				Model:   "gpt-4o-mini",
			}},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
			MaxRetries:       3,
			ToolResultTokens: 3000,
			Encoding:         "cl100k_base",
		},
		Logger: LoggerConfig{
			Level:  "warn",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Exporter: "noop",
		},
		Output: OutputConfig{
			Format:   "text",
			Progress: true,
			Width:    100,
		},
	}
}

// LoadCredentials loads .env files (missing files are ignored) and reads
// credentials from the environment. Variables already set win over .env.
func LoadCredentials(envFiles ...string) (Credentials, error) {
	_ = godotenv.Load(envFiles...)

	var c Credentials
	if err := envconfig.Process("", &c); err != nil {
		return Credentials{}, fmt.Errorf("read credentials: %w", err)
	}
	return c, nil
}

// Load reads a YAML config file, merges environment credentials, applies env
// var overrides, decrypts secrets, and validates. A missing file is not an
// error: defaults plus the environment are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		if err := validatePermissions(absPath); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		fillSpecialistDefaults(cfg)
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	creds, err := LoadCredentials()
	if err != nil {
		return nil, err
	}
	ApplyCredentials(cfg, creds)
	ApplyEnvOverrides(cfg)

	if creds.ConfigKey != "" {
		if err := decryptSecrets(cfg, creds.ConfigKey); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyCredentials fills secrets that the YAML file left empty.
func ApplyCredentials(cfg *Config, c Credentials) {
	if cfg.Brapi.Token == "" {
		cfg.Brapi.Token = c.BrapiToken
	}
	if cfg.News.APIKey == "" {
		cfg.News.APIKey = c.TavilyAPIKey
	}
	for i := range cfg.LLM.Providers {
		p := &cfg.LLM.Providers[i]
		if p.APIKey == "" && p.Type == "openai" {
			p.APIKey = c.OpenAIAPIKey
		}
	}
}

// ApplyEnvOverrides maps HEDGEFUND_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HEDGEFUND_SPECIALISTS"); v != "" {
		cfg.Workflow.Specialists = splitAndTrim(v, ",")
	}
	if v := os.Getenv("HEDGEFUND_MAX_CYCLES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workflow.MaxCycles = n
		}
	}
	if v := os.Getenv("HEDGEFUND_MAX_TOTAL_STEPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workflow.MaxTotalSteps = n
		}
	}
	if v := os.Getenv("HEDGEFUND_SUMMARY"); v != "" {
		cfg.Workflow.Summary = v == "true"
	}
	if v := os.Getenv("HEDGEFUND_PLANNER"); v != "" {
		cfg.Workflow.Planner = v == "true"
	}
	if v := os.Getenv("HEDGEFUND_BRAPI_BASE_URL"); v != "" {
		cfg.Brapi.BaseURL = v
	}
	if v := os.Getenv("HEDGEFUND_BRAPI_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Brapi.Timeout = d
		}
	}
	if v := os.Getenv("HEDGEFUND_LLM_DEFAULT_PROVIDER"); v != "" {
		cfg.LLM.DefaultProvider = v
	}
	if v := os.Getenv("HEDGEFUND_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("HEDGEFUND_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("HEDGEFUND_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("HEDGEFUND_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("HEDGEFUND_OUTPUT_FORMAT"); v != "" {
		cfg.Output.Format = v
	}

	// Per-provider API keys: HEDGEFUND_LLM_PROVIDER_<NAME>_API_KEY.
	for i := range cfg.LLM.Providers {
		name := strings.ToUpper(cfg.LLM.Providers[i].Name)
		if v := os.Getenv("HEDGEFUND_LLM_PROVIDER_" + name + "_API_KEY"); v != "" {
			cfg.LLM.Providers[i].APIKey = v
		}
	}
}

// fillSpecialistDefaults restores default tools and step limits for
// specialists that the file only partially overrides.
func fillSpecialistDefaults(cfg *Config) {
	if cfg.Specialists == nil {
		cfg.Specialists = make(map[string]SpecialistConfig)
	}
	for name, def := range Defaults().Specialists {
		sc, ok := cfg.Specialists[name]
		if !ok {
			cfg.Specialists[name] = def
			continue
		}
		if len(sc.Tools) == 0 {
			sc.Tools = def.Tools
		}
		if sc.MaxSteps == 0 {
			sc.MaxSteps = def.MaxSteps
		}
		cfg.Specialists[name] = sc
	}
}

// Specialist returns the effective settings for name, falling back to defaults.
func (c *Config) Specialist(name string) (SpecialistConfig, bool) {
	sc, ok := c.Specialists[name]
	return sc, ok
}

// splitAndTrim splits s by sep and trims whitespace from each element.
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// decryptSecrets replaces "enc:..." values with their plaintext.
func decryptSecrets(cfg *Config, passphrase string) error {
	fields := []struct {
		name string
		ptr  *string
	}{
		{"brapi.token", &cfg.Brapi.Token},
		{"news.api_key", &cfg.News.APIKey},
	}
	for i := range cfg.LLM.Providers {
		fields = append(fields, struct {
			name string
			ptr  *string
		}{"provider " + cfg.LLM.Providers[i].Name + " api_key", &cfg.LLM.Providers[i].APIKey})
	}

	for _, f := range fields {
		if !strings.HasPrefix(*f.ptr, "enc:") {
			continue
		}
		decrypted, err := DecryptValue(strings.TrimPrefix(*f.ptr, "enc:"), passphrase)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.ptr = decrypted
	}
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts an AES-256-GCM encrypted value.
func DecryptValue(encrypted, passphrase string) (string, error) {
	parts := strings.SplitN(encrypted, ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid encrypted format")
	}

	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	data, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
