package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"

	"go.opentelemetry.io/otel/trace"

	"hedgefund/internal/domain"
	"hedgefund/internal/infra/tracer"
)

// moduleSpec describes one fundamental-data tool backed by a brapi quote module.
type moduleSpec struct {
	name         string
	module       string
	description  string
	defaultRange string // empty: the tool takes no range
}

var moduleSpecs = []moduleSpec{
	{
		name:         "get_income_statements",
		module:       "incomeStatementHistory",
		description:  "Annual income statements (revenue, costs, net income) for Brazilian stocks listed on B3.",
		defaultRange: "5y",
	},
	{
		name:         "get_income_statement_history_quarterly",
		module:       "incomeStatementHistoryQuarterly",
		description:  "Quarterly income statements for Brazilian stocks listed on B3.",
		defaultRange: "5y",
	},
	{
		name:         "get_balance_sheet_history",
		module:       "balanceSheetHistory",
		description:  "Annual balance sheets (assets, liabilities, equity) for Brazilian stocks listed on B3.",
		defaultRange: "5y",
	},
	{
		name:         "get_balance_sheet_history_quarterly",
		module:       "balanceSheetHistoryQuarterly",
		description:  "Quarterly balance sheets for Brazilian stocks listed on B3.",
		defaultRange: "5y",
	},
	{
		name:        "get_financial_data",
		module:      "financialData",
		description: "Current financial data (margins, cash, debt, growth, analyst targets) for Brazilian stocks listed on B3.",
	},
	{
		name:        "get_default_key_statistics",
		module:      "defaultKeyStatistics",
		description: "Key valuation statistics (P/E, P/B, EV/EBITDA, dividend yield, shares) for Brazilian stocks listed on B3.",
	},
}

// ModuleTool fetches one brapi fundamental module for a set of tickers and
// returns only that module per symbol.
type ModuleTool struct {
	spec   moduleSpec
	client *BrapiClient
	logger *slog.Logger
}

// NewModuleTools creates every fundamental module tool.
func NewModuleTools(client *BrapiClient, logger *slog.Logger) []domain.Tool {
	tools := make([]domain.Tool, 0, len(moduleSpecs))
	for _, spec := range moduleSpecs {
		tools = append(tools, &ModuleTool{spec: spec, client: client, logger: logger})
	}
	return tools
}

func (t *ModuleTool) Name() string        { return t.spec.name }
func (t *ModuleTool) Description() string { return t.spec.description }

func (t *ModuleTool) Schema() domain.ToolSchema {
	props := `"tickers": ` + tickersSchema
	if t.spec.defaultRange != "" {
		props += `, "range": ` + rangeSchema
	}
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {` + props + `},
			"required": ["tickers"],
			"additionalProperties": false
		}`),
	}
}

type moduleParams struct {
	Tickers Tickers `json:"tickers"`
	Range   string  `json:"range,omitempty"`
}

func (t *ModuleTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, t.Name(), t.logger, params,
		func(ctx context.Context, span trace.Span, p moduleParams) (any, error) {
			span.SetAttributes(tracer.StringAttr("tool.tickers", p.Tickers.Path()))

			q := url.Values{}
			q.Set("fundamental", "true")
			q.Set("modules", t.spec.module)
			if t.spec.defaultRange != "" {
				r := p.Range
				if r == "" {
					r = t.spec.defaultRange
				}
				q.Set("range", r)
			}

			body, err := t.client.Get(ctx, "/quote/"+p.Tickers.Path(), q)
			if err != nil {
				return nil, err
			}
			results, err := decodeQuoteResults(body)
			if err != nil {
				return nil, err
			}

			out := make(map[string]map[string]json.RawMessage, len(results))
			for _, r := range results {
				symbol := resultSymbol(r)
				data, ok := r[t.spec.module]
				if !ok || len(data) == 0 {
					data = json.RawMessage(`{}`)
				}
				out[symbol] = map[string]json.RawMessage{t.spec.module: data}
			}
			return out, nil
		},
	)
}

// decodeQuoteResults reads the "results" array of a /quote response. A body
// without the array is malformed; an empty array means nothing was found.
func decodeQuoteResults(body []byte) ([]map[string]json.RawMessage, error) {
	var resp struct {
		Results *[]map[string]json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.NewSubSystemError("brapi", "decode", domain.ErrMalformedResponse, err.Error())
	}
	if resp.Results == nil {
		return nil, domain.NewSubSystemError("brapi", "decode", domain.ErrMalformedResponse, `missing "results"`)
	}
	if len(*resp.Results) == 0 {
		return nil, domain.NewSubSystemError("brapi", "decode", domain.ErrNotFound, "no results for the requested tickers")
	}
	return *resp.Results, nil
}

// resultSymbol falls back to "unknown" when the symbol is missing or not a string.
func resultSymbol(r map[string]json.RawMessage) string {
	s, err := stringField(r, "symbol")
	if err != nil || s == "" {
		return "unknown"
	}
	return s
}

// stringField decodes r[key] as a string.
func stringField(r map[string]json.RawMessage, key string) (string, error) {
	raw, ok := r[key]
	if !ok {
		return "", fmt.Errorf("%s missing", key)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%s: %w", key, err)
	}
	return s, nil
}
