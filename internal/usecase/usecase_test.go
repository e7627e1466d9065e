package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"hedgefund/internal/domain"
)

// --- Mocks ---

type mockLLM struct {
	mu        sync.Mutex
	responses []domain.ChatResponse
	errs      []error
	requests  []domain.ChatRequest
	callIdx   int
}

func (m *mockLLM) Chat(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	idx := m.callIdx
	m.callIdx++
	if idx < len(m.errs) && m.errs[idx] != nil {
		return nil, m.errs[idx]
	}
	if idx >= len(m.responses) {
		return &domain.ChatResponse{
			Message: domain.ChatMessage{Role: domain.ChatRoleAssistant, Content: "fallback"},
		}, nil
	}
	resp := m.responses[idx]
	return &resp, nil
}

func (m *mockLLM) Name() string { return "mock" }

func (m *mockLLM) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callIdx
}

func (m *mockLLM) request(i int) domain.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[i]
}

func textResponse(text string) domain.ChatResponse {
	return domain.ChatResponse{Message: domain.ChatMessage{Role: domain.ChatRoleAssistant, Content: text}}
}

func toolResponse(calls ...domain.ToolCall) domain.ChatResponse {
	return domain.ChatResponse{Message: domain.ChatMessage{Role: domain.ChatRoleAssistant, ToolCalls: calls}}
}

type mockToolExecutor struct {
	tools map[string]domain.Tool
	order []string
}

func newToolExecutor(tools ...domain.Tool) *mockToolExecutor {
	m := &mockToolExecutor{tools: make(map[string]domain.Tool)}
	for _, t := range tools {
		m.tools[t.Name()] = t
		m.order = append(m.order, t.Name())
	}
	return m
}

func (m *mockToolExecutor) Get(name string) (domain.Tool, error) {
	t, ok := m.tools[name]
	if !ok {
		return nil, domain.ErrToolNotFound
	}
	return t, nil
}

func (m *mockToolExecutor) Schemas() []domain.ToolSchema {
	out := make([]domain.ToolSchema, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.tools[name].Schema())
	}
	return out
}

type staticTool struct {
	name   string
	result string
	calls  atomic.Int32
}

func (t *staticTool) Name() string        { return t.name }
func (t *staticTool) Description() string { return "static test tool" }
func (t *staticTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{Name: t.name, Description: t.Description(), Parameters: json.RawMessage(`{"type":"object"}`)}
}
func (t *staticTool) Execute(_ context.Context, _ json.RawMessage) (*domain.ToolResult, error) {
	t.calls.Add(1)
	return &domain.ToolResult{Content: t.result}, nil
}

// kindTool fails with a categorized tool error result.
type kindTool struct {
	name string
	kind domain.ToolErrorKind
}

func (t *kindTool) Name() string        { return t.name }
func (t *kindTool) Description() string { return "failing test tool" }
func (t *kindTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{Name: t.name}
}
func (t *kindTool) Execute(_ context.Context, _ json.RawMessage) (*domain.ToolResult, error) {
	return (&domain.ToolError{Tool: t.name, Kind: t.kind, Err: fmt.Errorf("ticker ZZZZ3 %s", t.kind)}).AsResult(), nil
}

type errorTool struct {
	name string
}

func (t *errorTool) Name() string        { return t.name }
func (t *errorTool) Description() string { return "error test tool" }
func (t *errorTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{Name: t.name}
}
func (t *errorTool) Execute(_ context.Context, _ json.RawMessage) (*domain.ToolResult, error) {
	return nil, fmt.Errorf("tool execution failed")
}

// cancelTool cancels the run's context while it executes.
type cancelTool struct {
	name   string
	cancel context.CancelFunc
}

func (t *cancelTool) Name() string        { return t.name }
func (t *cancelTool) Description() string { return "cancelling test tool" }
func (t *cancelTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{Name: t.name}
}
func (t *cancelTool) Execute(ctx context.Context, _ json.RawMessage) (*domain.ToolResult, error) {
	t.cancel()
	return nil, ctx.Err()
}
