//go:build bedrock

package main

import (
	"log/slog"

	"hedgefund/internal/adapter/llm"
	"hedgefund/internal/domain"
	"hedgefund/internal/infra/config"
)

func createBedrockProvider(pc config.ProviderConfig, log *slog.Logger) (domain.LLMProvider, error) {
	return llm.NewBedrockProvider(pc, log)
}
