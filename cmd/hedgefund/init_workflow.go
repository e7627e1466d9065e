package main

import (
	"fmt"
	"log/slog"

	"hedgefund/internal/adapter/tool"
	"hedgefund/internal/domain"
	"hedgefund/internal/infra/config"
	"hedgefund/internal/usecase"
	"hedgefund/internal/usecase/multiagent"
)

// optionalTools may be listed by a specialist but are only registered when
// their backend is configured.
var optionalTools = map[string]bool{"search_news": true}

var specialistFacets = []domain.Facet{domain.FacetFundamental, domain.FacetValuation, domain.FacetPrice}

// initWorkflow builds the specialists and the orchestrator that routes
// between them.
func initWorkflow(
	cfg *config.Config,
	llmc *LLMComponents,
	tools *tool.Registry,
	bus domain.EventBus,
	log *slog.Logger,
) (*multiagent.Orchestrator, error) {
	decider, err := usecase.NewLLMDecider(usecase.LLMDeciderDeps{
		LLM:         llmc.DefaultLLM,
		Classifier:  usecase.NewErrorClassifier(),
		Trimmer:     usecase.NewTokenTrimmer(cfg.LLM.Encoding, cfg.LLM.ToolResultTokens, log),
		Logger:      log,
		Bus:         bus,
		Model:       llmc.Model,
		Temperature: cfg.LLM.Temperature,
		MaxAttempts: cfg.LLM.MaxRetries + 1,
	})
	if err != nil {
		return nil, err
	}

	specialists := multiagent.NewRegistry(log)
	for _, name := range cfg.Workflow.Specialists {
		sc, _ := cfg.Specialist(name)
		names := boundTools(name, sc.Tools, tools, log)
		bound, err := tools.Subset(names...)
		if err != nil {
			return nil, fmt.Errorf("specialist %s: %w", name, err)
		}
		s, err := usecase.NewSpecialist(usecase.SpecialistDeps{
			Identity: domain.SpecialistIdentity{
				Name:         name,
				Facet:        facetOf(name),
				SystemPrompt: sc.SystemPrompt,
				Tools:        names,
				MaxSteps:     sc.MaxSteps,
			},
			Tools:   bound,
			Decider: decider,
			Logger:  log,
			Bus:     bus,
		})
		if err != nil {
			return nil, err
		}
		if err := specialists.Register(s); err != nil {
			return nil, err
		}
	}

	deps := multiagent.OrchestratorDeps{
		Specialists:   specialists,
		Enabled:       cfg.Workflow.Specialists,
		MaxCycles:     cfg.Workflow.MaxCycles,
		MaxTotalSteps: cfg.Workflow.MaxTotalSteps,
		Bus:           bus,
		Logger:        log,
	}
	if cfg.Workflow.Planner {
		planner, err := multiagent.NewLLMPlanner(llmc.DefaultLLM, llmc.Model, log)
		if err != nil {
			return nil, err
		}
		deps.Planner = planner
	}
	if cfg.Workflow.Summary {
		deps.Summarizer = usecase.NewLLMSummarizer(llmc.DefaultLLM, llmc.Model, cfg.LLM.Temperature, log)
	}
	return multiagent.NewOrchestrator(deps)
}

func facetOf(name string) domain.Facet {
	for _, f := range specialistFacets {
		if s, ok := multiagent.SpecialistForFacet(f); ok && s == name {
			return f
		}
	}
	return ""
}

// boundTools drops optional tools whose backend is not configured.
func boundTools(specialist string, names []string, tools *tool.Registry, log *slog.Logger) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if optionalTools[n] {
			if _, err := tools.Get(n); err != nil {
				log.Warn("optional tool unavailable", "specialist", specialist, "tool", n)
				continue
			}
		}
		out = append(out, n)
	}
	return out
}
