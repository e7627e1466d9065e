package multiagent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hedgefund/internal/domain"
)

type replyLLM struct {
	reply string
	err   error
	req   domain.ChatRequest
}

func (r *replyLLM) Chat(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	r.req = req
	if r.err != nil {
		return nil, r.err
	}
	return &domain.ChatResponse{Message: domain.ChatMessage{Role: domain.ChatRoleAssistant, Content: r.reply}}, nil
}

func (r *replyLLM) Name() string { return "reply" }

func TestLLMPlanner_Plan(t *testing.T) {
	llm := &replyLLM{reply: "```json\n{\"facets\":[\"price\",\"valuation\"],\"rationale\":\"asks about trend and multiples\"}\n```"}
	p, err := NewLLMPlanner(llm, "gpt-4o-mini", testLogger())
	require.NoError(t, err)

	d, err := p.Plan(context.Background(), "Is VALE3 expensive after the rally?")
	require.NoError(t, err)
	assert.Equal(t, []domain.Facet{domain.FacetPrice, domain.FacetValuation}, d.Facets)
	assert.Empty(t, d.NextActor)
	assert.Equal(t, "asks about trend and multiples", d.Rationale)

	assert.True(t, llm.req.JSONMode)
	assert.Equal(t, "gpt-4o-mini", llm.req.Model)
	require.Len(t, llm.req.Messages, 2)
	assert.Equal(t, "Is VALE3 expensive after the rally?", llm.req.Messages[1].Content)
}

func TestLLMPlanner_DefaultRationale(t *testing.T) {
	p, err := NewLLMPlanner(&replyLLM{reply: `{"facets":["fundamental"]}`}, "", nil)
	require.NoError(t, err)

	d, err := p.Plan(context.Background(), "ITUB4 debt")
	require.NoError(t, err)
	assert.Equal(t, "planned by supervisor", d.Rationale)
}

func TestLLMPlanner_RejectsBadReplies(t *testing.T) {
	replies := map[string]string{
		"not json":      "fundamental and price",
		"unknown facet": `{"facets":["macro"]}`,
		"empty facets":  `{"facets":[]}`,
		"missing":       `{"rationale":"nothing"}`,
		"duplicates":    `{"facets":["price","price"]}`,
	}
	for name, reply := range replies {
		t.Run(name, func(t *testing.T) {
			p, err := NewLLMPlanner(&replyLLM{reply: reply}, "", testLogger())
			require.NoError(t, err)

			_, err = p.Plan(context.Background(), "PETR4")
			assert.ErrorIs(t, err, domain.ErrMalformedResponse)
		})
	}
}

func TestLLMPlanner_ProviderError(t *testing.T) {
	p, err := NewLLMPlanner(&replyLLM{err: domain.ErrRateLimit}, "", testLogger())
	require.NoError(t, err)

	_, err = p.Plan(context.Background(), "PETR4")
	assert.ErrorIs(t, err, domain.ErrRateLimit)
}

func TestNewLLMPlanner_RequiresProvider(t *testing.T) {
	_, err := NewLLMPlanner(nil, "", nil)
	assert.True(t, domain.IsConfigurationError(err))
}
