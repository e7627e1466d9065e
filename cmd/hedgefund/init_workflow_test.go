package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hedgefund/internal/adapter/tool"
	"hedgefund/internal/domain"
	"hedgefund/internal/infra/config"
)

type stubLLM struct{}

func (stubLLM) Chat(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
	return &domain.ChatResponse{Message: domain.ChatMessage{Role: domain.ChatRoleAssistant, Content: "done"}}, nil
}

func (stubLLM) Name() string { return "stub" }

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestInitWorkflow(t *testing.T) {
	cfg := validConfig()
	cfg.LLM.Encoding = "approx"
	tools, err := initTools(cfg, quietLogger())
	require.NoError(t, err)

	orch, err := initWorkflow(cfg, &LLMComponents{DefaultLLM: stubLLM{}, Model: "m"}, tools, nil, quietLogger())
	require.NoError(t, err)
	require.NotNil(t, orch)
}

func TestInitWorkflow_UnregisteredToolIsConfigError(t *testing.T) {
	cfg := validConfig()
	cfg.LLM.Encoding = "approx"
	client := tool.NewBrapiClient(cfg.Brapi, nil, quietLogger())
	tools := tool.NewRegistry(quietLogger())
	require.NoError(t, tools.RegisterAll(tool.NewModuleTools(client, quietLogger())...))

	_, err := initWorkflow(cfg, &LLMComponents{DefaultLLM: stubLLM{}}, tools, nil, quietLogger())
	require.Error(t, err)
	assert.True(t, domain.IsConfigurationError(err), "got %v", err)
	assert.Contains(t, err.Error(), "price_analyst")
	assert.Contains(t, err.Error(), `"get_quote"`)
	assert.Equal(t, exitConfig, exitCode(err))
}

func TestBoundToolsDropsUnconfiguredNews(t *testing.T) {
	tools := tool.NewRegistry(quietLogger())
	got := boundTools("fundamental_analyst", []string{"get_financial_data", "search_news"}, tools, quietLogger())
	assert.Equal(t, []string{"get_financial_data"}, got)
}

func TestInitLLM_FailoverChain(t *testing.T) {
	cfg := validConfig()
	cfg.LLM.Providers = append(cfg.LLM.Providers, config.ProviderConfig{
		Name: "backup", Type: "openai", APIKey: "sk-backup", Model: "gpt-4o-mini",
	})
	cfg.LLM.Failover = config.FailoverConfig{Enabled: true, Fallbacks: []string{"backup"}}

	llmc, err := initLLM(cfg, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, cfg.LLM.DefaultProvider+"+failover", llmc.DefaultLLM.Name())
	assert.Equal(t, []string{cfg.LLM.DefaultProvider, "backup"}, llmc.Registry.Names())
}

func TestInitLLM_UnknownFallback(t *testing.T) {
	cfg := validConfig()
	cfg.LLM.Failover = config.FailoverConfig{Enabled: true, Fallbacks: []string{"ghost"}}

	_, err := initLLM(cfg, quietLogger())
	assert.Equal(t, exitConfig, exitCode(err))
}
