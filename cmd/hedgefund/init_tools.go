package main

import (
	"fmt"
	"log/slog"
	"time"

	"hedgefund/internal/adapter/tool"
	"hedgefund/internal/domain"
	"hedgefund/internal/infra/config"
)

// initTools builds the market data client and registers every tool.
// Each tool validates its arguments against its own schema.
func initTools(cfg *config.Config, log *slog.Logger) (*tool.Registry, error) {
	client := tool.NewBrapiClient(cfg.Brapi, nil, log)

	tools := tool.NewModuleTools(client, log)
	tools = append(tools,
		tool.NewQuoteTool(client, log),
		tool.NewQuoteListTool(client, log),
		tool.NewPriceStatsTool(client, log),
		tool.NewInflationTool(client, time.Now, log),
		tool.NewPrimeRateTool(client, time.Now, log),
	)
	if cfg.News.Enabled() {
		backend := tool.NewTavilyBackend(cfg.News, log)
		tools = append(tools, tool.NewNewsSearchTool(backend, cfg.News.MaxResults, log))
	} else {
		log.Debug("news search disabled, no api key")
	}

	registry := tool.NewRegistry(log)
	for _, t := range tools {
		validated, err := tool.WithSchemaValidation(t)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", t.Name(), err)
		}
		if err := registry.Register(validated); err != nil {
			return nil, err
		}
	}
	log.Debug("tools registered", "count", len(registry.Names()))
	return registry, nil
}

var _ domain.ToolExecutor = (*tool.Registry)(nil)
