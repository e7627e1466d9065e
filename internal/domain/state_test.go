package domain

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() func() time.Time {
	t0 := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	n := 0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		n++
		return t0.Add(time.Duration(n) * time.Millisecond)
	}
}

func TestNewConversationStateSeedsUserMessage(t *testing.T) {
	s := NewConversationState("  PETR4 current financial health ", fixedClock())

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, "PETR4 current financial health", msgs[0].Content)
	assert.Equal(t, "PETR4 current financial health", s.Query())
	assert.NotEmpty(t, s.ID())
	assert.NotEmpty(t, msgs[0].ID)
}

func TestAppendAssignsIDsAndTimestamps(t *testing.T) {
	s := NewConversationState("q", fixedClock())

	m1, err := s.Append(Message{Role: RoleRouter, Decision: &RoutingDecision{NextActor: PriceAnalyst}})
	require.NoError(t, err)
	m2, err := s.Append(Message{Role: RoleSpecialist, Name: PriceAnalyst, Content: "flat"})
	require.NoError(t, err)

	assert.NotEqual(t, m1.ID, m2.ID)
	assert.True(t, m2.Timestamp.After(m1.Timestamp))
	assert.Equal(t, 3, s.Len())
}

func TestToolCallMustBePaired(t *testing.T) {
	s := NewConversationState("q", fixedClock())
	call := &ToolCall{ID: "call_1", Name: "get_quote", Arguments: json.RawMessage(`{"tickers":"PETR4"}`)}

	_, err := s.Append(Message{Role: RoleToolCall, ToolCall: call})
	require.NoError(t, err)

	pending, ok := s.PendingToolCall()
	require.True(t, ok)
	assert.Equal(t, "call_1", pending.ID)

	// A routing decision cannot be appended while the call is open.
	_, err = s.Append(Message{Role: RoleRouter, Decision: &RoutingDecision{NextActor: Done}})
	assert.True(t, errors.Is(err, ErrUnpairedToolCall))

	// Neither can a second call.
	_, err = s.Append(Message{Role: RoleToolCall, ToolCall: &ToolCall{ID: "call_2", Name: "get_quote"}})
	assert.True(t, errors.Is(err, ErrUnpairedToolCall))

	// A result for a different call is rejected.
	_, err = s.Append(Message{Role: RoleToolResult, Name: "get_quote", ToolResult: &ToolResult{ToolCallID: "call_9"}})
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = s.Append(Message{Role: RoleToolError, Name: "get_quote", ToolResult: &ToolResult{ToolCallID: "call_1", IsError: true}})
	require.NoError(t, err)

	_, ok = s.PendingToolCall()
	assert.False(t, ok)
	_, err = s.Append(Message{Role: RoleRouter, Decision: &RoutingDecision{NextActor: Done}})
	assert.NoError(t, err)
}

func TestResultWithoutCallRejected(t *testing.T) {
	s := NewConversationState("q", fixedClock())
	_, err := s.Append(Message{Role: RoleToolResult, Name: "x", ToolResult: &ToolResult{ToolCallID: "c"}})
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestUnknownRoleRejected(t *testing.T) {
	s := NewConversationState("q", fixedClock())
	_, err := s.Append(Message{Role: "assistant"})
	assert.Error(t, err)
}

func TestMessagesAreCopies(t *testing.T) {
	s := NewConversationState("q", fixedClock())
	_, err := s.Append(Message{Role: RoleRouter, Decision: &RoutingDecision{
		NextActor: FundamentalAnalyst,
		Facets:    []Facet{FacetFundamental},
	}})
	require.NoError(t, err)

	msgs := s.Messages()
	msgs[1].Decision.NextActor = "tampered"
	msgs[1].Decision.Facets[0] = FacetPrice
	msgs[0].Content = "tampered"

	again := s.Messages()
	assert.Equal(t, FundamentalAnalyst, again[1].Decision.NextActor)
	assert.Equal(t, FacetFundamental, again[1].Decision.Facets[0])
	assert.Equal(t, "q", again[0].Content)
}

func TestConcludedAndActiveDecision(t *testing.T) {
	s := NewConversationState("q", fixedClock())
	_, ok := s.ActiveDecision()
	assert.False(t, ok)

	_, _ = s.Append(Message{Role: RoleRouter, Decision: &RoutingDecision{NextActor: FundamentalAnalyst}})
	_, _ = s.Append(Message{Role: RoleSpecialist, Name: FundamentalAnalyst, Content: "solid", Partial: true})
	_, _ = s.Append(Message{Role: RoleRouter, Decision: &RoutingDecision{NextActor: Done}})

	d, ok := s.ActiveDecision()
	require.True(t, ok)
	assert.True(t, d.IsDone())

	m, ok := s.Concluded(FundamentalAnalyst)
	require.True(t, ok)
	assert.True(t, m.Partial)
	assert.Equal(t, "specialist:fundamental_analyst", m.Attribution())

	_, ok = s.Concluded(PriceAnalyst)
	assert.False(t, ok)
}

func TestNewCallIDUnique(t *testing.T) {
	s := NewConversationState("q", nil)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := s.NewCallID()
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestFacetValid(t *testing.T) {
	assert.True(t, FacetPrice.Valid())
	assert.False(t, Facet("macro").Valid())
}
