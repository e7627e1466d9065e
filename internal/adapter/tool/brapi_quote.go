package tool

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strconv"

	"go.opentelemetry.io/otel/trace"

	"hedgefund/internal/domain"
	"hedgefund/internal/infra/tracer"
)

// QuoteTool returns current quotes and optional price history.
type QuoteTool struct {
	client *BrapiClient
	logger *slog.Logger
}

// NewQuoteTool creates the get_quote tool.
func NewQuoteTool(client *BrapiClient, logger *slog.Logger) *QuoteTool {
	return &QuoteTool{client: client, logger: logger}
}

func (t *QuoteTool) Name() string { return "get_quote" }
func (t *QuoteTool) Description() string {
	return "Current quote and price history (OHLCV) for Brazilian stocks listed on B3."
}

func (t *QuoteTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"tickers": ` + tickersSchema + `,
				"range": ` + rangeSchema + `,
				"interval": {"type": "string", "enum": ["1m","2m","5m","15m","30m","60m","90m","1h","1d","5d","1wk","1mo","3mo"]},
				"fundamental": {"type": "boolean", "description": "Include fundamental ratios (default false)"}
			},
			"required": ["tickers"],
			"additionalProperties": false
		}`),
	}
}

type quoteParams struct {
	Tickers     Tickers `json:"tickers"`
	Range       string  `json:"range,omitempty"`
	Interval    string  `json:"interval,omitempty"`
	Fundamental bool    `json:"fundamental,omitempty"`
}

func (t *QuoteTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, t.Name(), t.logger, params,
		func(ctx context.Context, span trace.Span, p quoteParams) (any, error) {
			span.SetAttributes(tracer.StringAttr("tool.tickers", p.Tickers.Path()))
			if p.Range == "" {
				p.Range = "1d"
			}
			if p.Interval == "" {
				p.Interval = "1d"
			}

			q := url.Values{}
			q.Set("range", p.Range)
			q.Set("interval", p.Interval)
			q.Set("fundamental", strconv.FormatBool(p.Fundamental))

			body, err := t.client.Get(ctx, "/quote/"+p.Tickers.Path(), q)
			if err != nil {
				return nil, err
			}
			results, err := decodeQuoteResults(body)
			if err != nil {
				return nil, err
			}
			return map[string]any{"results": results}, nil
		},
	)
}

// QuoteListTool searches and ranks listed assets.
type QuoteListTool struct {
	client *BrapiClient
	logger *slog.Logger
}

// NewQuoteListTool creates the get_quote_list tool.
func NewQuoteListTool(client *BrapiClient, logger *slog.Logger) *QuoteListTool {
	return &QuoteListTool{client: client, logger: logger}
}

func (t *QuoteListTool) Name() string { return "get_quote_list" }
func (t *QuoteListTool) Description() string {
	return "Search and rank B3 listed assets by name, sector, volume, market cap or daily change."
}

func (t *QuoteListTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"search": {"type": "string", "maxLength": 64, "description": "Ticker or company name fragment"},
				"sort_by": {"type": "string", "enum": ["name","close","change","change_abs","volume","market_cap_basic","sector"]},
				"sort_order": {"type": "string", "enum": ["asc","desc"]},
				"limit": {"type": "integer", "minimum": 1, "maximum": 100},
				"sector": {"type": "string", "maxLength": 64}
			},
			"additionalProperties": false
		}`),
	}
}

type quoteListParams struct {
	Search    string `json:"search,omitempty"`
	SortBy    string `json:"sort_by,omitempty"`
	SortOrder string `json:"sort_order,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Sector    string `json:"sector,omitempty"`
}

func (t *QuoteListTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, t.Name(), t.logger, params,
		func(ctx context.Context, _ trace.Span, p quoteListParams) (any, error) {
			q := url.Values{}
			if p.Search != "" {
				q.Set("search", p.Search)
			}
			if p.SortBy != "" {
				q.Set("sortBy", p.SortBy)
			}
			if p.SortOrder == "" {
				p.SortOrder = "desc"
			}
			q.Set("sortOrder", p.SortOrder)
			if p.Limit > 0 {
				q.Set("limit", strconv.Itoa(p.Limit))
			}
			if p.Sector != "" {
				q.Set("sector", p.Sector)
			}

			body, err := t.client.Get(ctx, "/quote/list", q)
			if err != nil {
				return nil, err
			}
			var resp struct {
				Stocks *[]json.RawMessage `json:"stocks"`
			}
			if err := json.Unmarshal(body, &resp); err != nil {
				return nil, domain.NewSubSystemError("brapi", "decode", domain.ErrMalformedResponse, err.Error())
			}
			if resp.Stocks == nil {
				return nil, domain.NewSubSystemError("brapi", "decode", domain.ErrMalformedResponse, `missing "stocks"`)
			}
			return map[string]any{"stocks": *resp.Stocks, "count": len(*resp.Stocks)}, nil
		},
	)
}
