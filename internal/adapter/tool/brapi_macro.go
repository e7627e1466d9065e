package tool

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/trace"

	"hedgefund/internal/domain"
	"hedgefund/internal/infra/tracer"
)

// defaultMacroWindow is how far back macro series start when no start date is given.
const defaultMacroWindow = 2 * 365 * 24 * time.Hour

// MacroTool fetches a Brazilian macroeconomic series (inflation or the SELIC
// prime rate). Default dates depend on the injected clock.
type MacroTool struct {
	name        string
	description string
	path        string
	resultKey   string
	client      *BrapiClient
	now         func() time.Time
	logger      *slog.Logger
}

// NewInflationTool creates get_inflation.
func NewInflationTool(client *BrapiClient, now func() time.Time, logger *slog.Logger) *MacroTool {
	return newMacroTool("get_inflation",
		"Brazilian inflation (IPCA) series between two dates.",
		"/v2/inflation", "inflation", client, now, logger)
}

// NewPrimeRateTool creates get_prime_rate.
func NewPrimeRateTool(client *BrapiClient, now func() time.Time, logger *slog.Logger) *MacroTool {
	return newMacroTool("get_prime_rate",
		"Brazilian prime rate (SELIC) series between two dates.",
		"/v2/prime-rate", "prime-rate", client, now, logger)
}

func newMacroTool(name, desc, path, key string, client *BrapiClient, now func() time.Time, logger *slog.Logger) *MacroTool {
	if now == nil {
		now = time.Now
	}
	return &MacroTool{
		name:        name,
		description: desc,
		path:        path,
		resultKey:   key,
		client:      client,
		now:         now,
		logger:      logger,
	}
}

func (t *MacroTool) Name() string        { return t.name }
func (t *MacroTool) Description() string { return t.description }

func (t *MacroTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"historical": {"type": "boolean", "description": "Return the full series instead of the latest value (default false)"},
				"start": {"type": "string", "pattern": "^[0-9]{2}/[0-9]{2}/[0-9]{4}$", "description": "Start date DD/MM/YYYY (default: two years ago)"},
				"end": {"type": "string", "pattern": "^[0-9]{2}/[0-9]{2}/[0-9]{4}$", "description": "End date DD/MM/YYYY (default: today)"}
			},
			"additionalProperties": false
		}`),
	}
}

type macroParams struct {
	Historical bool   `json:"historical,omitempty"`
	Start      string `json:"start,omitempty"`
	End        string `json:"end,omitempty"`
}

func (t *MacroTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	p, bad := ParseParams[macroParams](t.name, params)
	if bad != nil {
		return bad, nil
	}

	// Dates are checked before any request so bad input costs no network call.
	now := t.now()
	if p.Start == "" {
		p.Start = FormatBRDate(now.Add(-defaultMacroWindow))
	}
	if p.End == "" {
		p.End = FormatBRDate(now)
	}
	start, err := ParseBRDate("start", p.Start)
	if err != nil {
		return InvalidArgs(t.name, "%v", err), nil
	}
	end, err := ParseBRDate("end", p.End)
	if err != nil {
		return InvalidArgs(t.name, "%v", err), nil
	}
	if start.After(end) {
		return InvalidArgs(t.name, "start %s is after end %s", p.Start, p.End), nil
	}

	resolved, _ := json.Marshal(p)
	return Execute(ctx, t.name, t.logger, resolved,
		func(ctx context.Context, span trace.Span, p macroParams) (any, error) {
			span.SetAttributes(tracer.StringAttr("tool.start", p.Start), tracer.StringAttr("tool.end", p.End))

			q := url.Values{}
			q.Set("country", "brazil")
			q.Set("historical", strconv.FormatBool(p.Historical))
			q.Set("start", p.Start)
			q.Set("end", p.End)
			q.Set("sortBy", "date")
			q.Set("sortOrder", "desc")

			body, err := t.client.Get(ctx, t.path, q)
			if err != nil {
				return nil, err
			}

			var resp map[string]json.RawMessage
			if err := json.Unmarshal(body, &resp); err != nil {
				return nil, domain.NewSubSystemError("brapi", "decode", domain.ErrMalformedResponse, err.Error())
			}
			series, ok := resp[t.resultKey]
			if !ok {
				return nil, domain.NewSubSystemError("brapi", "decode", domain.ErrMalformedResponse, "missing \""+t.resultKey+"\"")
			}
			return map[string]any{
				"country":   "brazil",
				"start":     p.Start,
				"end":       p.End,
				t.resultKey: series,
			}, nil
		},
	)
}
