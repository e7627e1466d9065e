package llm

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"hedgefund/internal/domain"
)

type mockProvider struct {
	name     string
	chatFunc func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error)
}

func (m *mockProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	return m.chatFunc(ctx, req)
}
func (m *mockProvider) Name() string { return m.name }

func failing(name string, err error) *mockProvider {
	return &mockProvider{
		name: name,
		chatFunc: func(_ context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
			return nil, err
		},
	}
}

func TestFailoverPrimarySuccess(t *testing.T) {
	primary := &mockProvider{
		name: "primary",
		chatFunc: func(_ context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
			return &domain.ChatResponse{Message: domain.ChatMessage{Content: "primary response"}}, nil
		},
	}
	fallback := &mockProvider{
		name: "fallback",
		chatFunc: func(_ context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
			t.Fatal("fallback should not be called")
			return nil, nil
		},
	}

	fp := NewFailoverProvider(primary, []domain.LLMProvider{fallback}, slog.Default())
	resp, err := fp.Chat(context.Background(), domain.ChatRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Message.Content != "primary response" {
		t.Errorf("content = %q, want %q", resp.Message.Content, "primary response")
	}
}

func TestFailoverPrimaryFailFallbackSuccess(t *testing.T) {
	var gotModel string
	fallback := &mockProvider{
		name: "fallback",
		chatFunc: func(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
			gotModel = req.Model
			return &domain.ChatResponse{Message: domain.ChatMessage{Content: "fallback response"}}, nil
		},
	}

	fp := NewFailoverProvider(failing("primary", errors.New("primary down")), []domain.LLMProvider{fallback}, slog.Default())
	resp, err := fp.Chat(context.Background(), domain.ChatRequest{Model: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Message.Content != "fallback response" {
		t.Errorf("content = %q, want %q", resp.Message.Content, "fallback response")
	}
	if gotModel != "" {
		t.Errorf("fallback received primary model %q", gotModel)
	}
}

func TestFailoverAggregatesAllErrors(t *testing.T) {
	fp := NewFailoverProvider(
		failing("primary", errors.New("connection timeout")),
		[]domain.LLMProvider{
			failing("bedrock", errors.New("throttled")),
			failing("local", domain.ErrRateLimit),
		},
		slog.Default(),
	)

	_, err := fp.Chat(context.Background(), domain.ChatRequest{})
	if err == nil {
		t.Fatal("expected error when all providers fail")
	}
	for _, name := range []string{"primary", "bedrock", "local"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error should mention provider %q, got: %v", name, err)
		}
	}
	if !errors.Is(err, domain.ErrRateLimit) {
		t.Errorf("expected last error to be wrapped, got %v", err)
	}
}

func TestFailoverStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	primary := &mockProvider{
		name: "primary",
		chatFunc: func(_ context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
			cancel()
			return nil, errors.New("aborted")
		},
	}
	fallback := &mockProvider{
		name: "fallback",
		chatFunc: func(_ context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
			t.Fatal("fallback should not be called after cancellation")
			return nil, nil
		},
	}

	fp := NewFailoverProvider(primary, []domain.LLMProvider{fallback}, slog.Default())
	if _, err := fp.Chat(ctx, domain.ChatRequest{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFailoverName(t *testing.T) {
	fp := NewFailoverProvider(&mockProvider{name: "openai"}, nil, slog.Default())
	if fp.Name() != "openai+failover" {
		t.Errorf("Name = %q, want %q", fp.Name(), "openai+failover")
	}
}
