package multiagent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonschema"

	"hedgefund/internal/domain"
)

// Planner proposes the facets a query needs before routing starts.
type Planner interface {
	Plan(ctx context.Context, query string) (domain.RoutingDecision, error)
}

const planSchema = `{
	"type": "object",
	"properties": {
		"facets": {
			"type": "array",
			"items": {"type": "string", "enum": ["fundamental", "valuation", "price"]},
			"minItems": 1,
			"uniqueItems": true
		},
		"rationale": {"type": "string"}
	},
	"required": ["facets"]
}`

const plannerPrompt = `You are the supervisor of a hedge fund analyst team covering Brazilian stocks listed on B3.
Decide which kinds of analysis the user's question needs:
- "fundamental": financial statements, profitability, debt, liquidity, company health;
- "valuation": valuation ratios, key statistics, fair value, dividends;
- "price": price action, trends, momentum, support and resistance.
Choose only what the question asks for. Questions about overall investment merit may need all three.
Reply with JSON only: {"facets": [...], "rationale": "<one sentence>"}`

// LLMPlanner asks a chat model for the facet plan and validates the reply
// against a JSON Schema.
type LLMPlanner struct {
	llm    domain.LLMProvider
	model  string
	schema *jsonschema.Schema
	logger *slog.Logger
}

// NewLLMPlanner creates a planner backed by llm.
func NewLLMPlanner(llm domain.LLMProvider, model string, logger *slog.Logger) (*LLMPlanner, error) {
	if llm == nil {
		return nil, domain.NewConfigurationError("NewLLMPlanner", "llm provider is required")
	}
	if logger == nil {
		logger = discardLogger()
	}
	schema, err := jsonschema.NewCompiler().Compile([]byte(planSchema))
	if err != nil {
		return nil, fmt.Errorf("compile plan schema: %w", err)
	}
	return &LLMPlanner{llm: llm, model: model, schema: schema, logger: logger}, nil
}

// Plan returns a RoutingDecision carrying Facets and no actor.
func (p *LLMPlanner) Plan(ctx context.Context, query string) (domain.RoutingDecision, error) {
	resp, err := p.llm.Chat(ctx, domain.ChatRequest{
		Model: p.model,
		Messages: []domain.ChatMessage{
			{Role: domain.ChatRoleSystem, Content: plannerPrompt},
			{Role: domain.ChatRoleUser, Content: query},
		},
		JSONMode: true,
	})
	if err != nil {
		return domain.RoutingDecision{}, domain.WrapOp("LLMPlanner.Plan", err)
	}

	raw := stripCodeFences(resp.Message.Content)
	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return domain.RoutingDecision{}, domain.NewDomainError("LLMPlanner.Plan", domain.ErrMalformedResponse, err.Error())
	}
	if result := p.schema.Validate(parsed); !result.IsValid() {
		return domain.RoutingDecision{}, domain.NewDomainError("LLMPlanner.Plan", domain.ErrMalformedResponse,
			fmt.Sprintf("plan does not match schema: %s", result.Error()))
	}

	var plan struct {
		Facets    []domain.Facet `json:"facets"`
		Rationale string         `json:"rationale"`
	}
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return domain.RoutingDecision{}, domain.NewDomainError("LLMPlanner.Plan", domain.ErrMalformedResponse, err.Error())
	}

	rationale := strings.TrimSpace(plan.Rationale)
	if rationale == "" {
		rationale = "planned by supervisor"
	}
	p.logger.Debug("facet plan", "facets", plan.Facets)
	return domain.RoutingDecision{Rationale: rationale, Facets: plan.Facets}, nil
}

// codeFenceRe matches markdown code fences wrapping JSON.
var codeFenceRe = regexp.MustCompile(`(?si)^` + "```" + `(?:json)?\s*(.*?)\s*` + "```" + `$`)

// stripCodeFences removes markdown code fences if the model wrapped its output.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if m := codeFenceRe.FindStringSubmatch(s); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return s
}

var _ Planner = (*LLMPlanner)(nil)
