package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"hedgefund/internal/domain"
	"hedgefund/internal/infra/tracer"
)

const (
	defaultNewsCount = 5
	maxNewsCount     = 10
)

// NewsSearchTool searches recent news about a company or the market through
// a SearchBackend. Every invocation performs exactly one backend request.
type NewsSearchTool struct {
	backend      SearchBackend
	defaultCount int
	logger       *slog.Logger
}

// NewNewsSearchTool creates the search_news tool.
func NewNewsSearchTool(backend SearchBackend, defaultCount int, logger *slog.Logger) *NewsSearchTool {
	if defaultCount <= 0 || defaultCount > maxNewsCount {
		defaultCount = defaultNewsCount
	}
	return &NewsSearchTool{backend: backend, defaultCount: defaultCount, logger: logger}
}

func (t *NewsSearchTool) Name() string { return "search_news" }
func (t *NewsSearchTool) Description() string {
	return "Search recent news about a Brazilian company, ticker or market theme."
}

func (t *NewsSearchTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "minLength": 1, "maxLength": 256, "description": "The news search query"},
				"max_results": {"type": "integer", "minimum": 1, "maximum": 10, "description": "Number of results (default: 5)"}
			},
			"required": ["query"],
			"additionalProperties": false
		}`),
	}
}

type newsSearchParams struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
}

func (t *NewsSearchTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, t.Name(), t.logger, params,
		func(ctx context.Context, span trace.Span, p newsSearchParams) (any, error) {
			if strings.TrimSpace(p.Query) == "" {
				return InvalidArgs(t.Name(), "query must not be empty"), nil
			}
			span.SetAttributes(tracer.StringAttr("tool.query", p.Query))

			if p.MaxResults <= 0 {
				p.MaxResults = t.defaultCount
			}
			if p.MaxResults > maxNewsCount {
				p.MaxResults = maxNewsCount
			}

			results, err := t.backend.Search(ctx, p.Query, p.MaxResults)
			if err != nil {
				return nil, err
			}
			if len(results) > p.MaxResults {
				results = results[:p.MaxResults]
			}
			return formatSearchResults(p.Query, results), nil
		},
	)
}

// formatSearchResults converts search results to a compact text format for LLM consumption.
func formatSearchResults(query string, results []SearchResult) string {
	if len(results) == 0 {
		return fmt.Sprintf("No news found for %q.", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "News results for %q:\n\n", query)
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. %s\n   URL: %s\n", i+1, r.Title, r.URL)
		if r.Published != "" {
			fmt.Fprintf(&sb, "   Published: %s\n", r.Published)
		}
		fmt.Fprintf(&sb, "   %s\n\n", r.Content)
	}
	return sb.String()
}
