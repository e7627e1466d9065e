//go:build !bedrock

package main

import (
	"log/slog"

	"hedgefund/internal/domain"
	"hedgefund/internal/infra/config"
)

func createBedrockProvider(_ config.ProviderConfig, _ *slog.Logger) (domain.LLMProvider, error) {
	return nil, domain.NewConfigurationError("createBedrockProvider", "bedrock provider requires build with -tags bedrock")
}
