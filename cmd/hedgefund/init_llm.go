package main

import (
	"fmt"
	"log/slog"

	"hedgefund/internal/adapter/llm"
	"hedgefund/internal/domain"
	"hedgefund/internal/infra/config"
)

// LLMComponents holds all LLM-related components
type LLMComponents struct {
	Registry   *llm.Registry
	DefaultLLM domain.LLMProvider
	Model      string // model of the default provider
}

// initLLM initializes LLM providers, registry, and failover
func initLLM(cfg *config.Config, log *slog.Logger) (*LLMComponents, error) {
	registry := llm.NewRegistry()

	cbCfg := cfg.LLM.CircuitBreaker
	var model string
	for _, pc := range cfg.LLM.Providers {
		provider, err := createLLMProvider(pc, log)
		if err != nil {
			return nil, fmt.Errorf("llm provider %s: %w", pc.Name, err)
		}

		// Circuit breaker is per provider so failover skips a dead one quickly.
		if cbCfg.Enabled {
			provider = llm.NewCircuitBreakerProvider(provider, cbCfg, log)
		}

		if err := registry.Register(provider); err != nil {
			return nil, fmt.Errorf("llm provider %s: %w", pc.Name, err)
		}
		if pc.Name == cfg.LLM.DefaultProvider {
			model = pc.Model
		}
	}

	if cbCfg.Enabled {
		log.Debug("llm circuit breaker enabled",
			"max_failures", cbCfg.MaxFailures,
			"timeout", cbCfg.Timeout,
			"interval", cbCfg.Interval,
		)
	}

	var fallbacks []string
	if cfg.LLM.Failover.Enabled {
		fallbacks = cfg.LLM.Failover.Fallbacks
	}
	defaultLLM, err := registry.Resolve(cfg.LLM.DefaultProvider, fallbacks, log)
	if err != nil {
		return nil, err
	}
	if len(fallbacks) > 0 {
		log.Debug("model failover enabled", "fallbacks", fallbacks)
	}

	return &LLMComponents{
		Registry:   registry,
		DefaultLLM: defaultLLM,
		Model:      model,
	}, nil
}

func createLLMProvider(pc config.ProviderConfig, log *slog.Logger) (domain.LLMProvider, error) {
	switch pc.Type {
	case "openai", "":
		return llm.NewOpenAIProvider(pc, log), nil
	case "bedrock":
		return createBedrockProvider(pc, log)
	default:
		return nil, domain.NewConfigurationError("createLLMProvider",
			fmt.Sprintf("unknown provider type %q", pc.Type))
	}
}
