package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"hedgefund/internal/domain"
)

var _ domain.LLMProvider = (*FailoverProvider)(nil)

// FailoverProvider wraps a primary LLM provider with fallback providers.
// If the primary fails, it tries each fallback in order.
type FailoverProvider struct {
	primary   domain.LLMProvider
	fallbacks []domain.LLMProvider
	logger    *slog.Logger
}

// NewFailoverProvider creates a failover-capable provider.
func NewFailoverProvider(primary domain.LLMProvider, fallbacks []domain.LLMProvider, logger *slog.Logger) *FailoverProvider {
	return &FailoverProvider{
		primary:   primary,
		fallbacks: fallbacks,
		logger:    logger,
	}
}

// Chat tries the primary provider first, then each fallback on failure.
// Cancellation stops the chain. When every provider fails, the returned
// error mentions all of them and wraps the last one, so the decider can
// still classify it.
func (f *FailoverProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	resp, err := f.primary.Chat(ctx, req)
	if err == nil {
		return resp, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	f.logger.Warn("primary LLM failed, trying fallbacks",
		"primary", f.primary.Name(), "error", err)

	failures := []string{fmt.Sprintf("%s: %v", f.primary.Name(), err)}
	for _, fb := range f.fallbacks {
		// Fallbacks run their own model; the primary's model name means nothing to them.
		fbReq := req
		fbReq.Model = ""

		resp, err = fb.Chat(ctx, fbReq)
		if err == nil {
			f.logger.Info("failover succeeded", "provider", fb.Name())
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		f.logger.Warn("fallback LLM failed", "provider", fb.Name(), "error", err)
		failures = append(failures, fmt.Sprintf("%s: %v", fb.Name(), err))
	}

	return nil, fmt.Errorf("all providers failed: [%s]: %w", strings.Join(failures, "; "), err)
}

// Name returns a composite name.
func (f *FailoverProvider) Name() string {
	return f.primary.Name() + "+failover"
}
