package usecase

import (
	"context"
	"log/slog"
	"strings"

	"hedgefund/internal/domain"
)

// Summarizer synthesizes specialist sections into one recommendation.
type Summarizer interface {
	Summarize(ctx context.Context, query string, sections []domain.Section) (string, error)
}

// LLMSummarizer is the portfolio manager role.
type LLMSummarizer struct {
	llm         domain.LLMProvider
	model       string
	temperature float64
	logger      *slog.Logger
}

// NewLLMSummarizer creates a summarizer backed by llm.
func NewLLMSummarizer(llm domain.LLMProvider, model string, temperature float64, logger *slog.Logger) *LLMSummarizer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &LLMSummarizer{llm: llm, model: model, temperature: temperature, logger: logger}
}

// Summarize sends every section in one request without tools.
func (s *LLMSummarizer) Summarize(ctx context.Context, query string, sections []domain.Section) (string, error) {
	if len(sections) == 0 {
		return "", domain.NewDomainError("LLMSummarizer.Summarize", domain.ErrInvalidInput, "no reports to summarize")
	}

	req := domain.ChatRequest{
		Model: s.model,
		Messages: []domain.ChatMessage{
			{Role: domain.ChatRoleSystem, Content: SummaryPrompt},
			{Role: domain.ChatRoleUser, Content: "Question: " + query + "\n\n" + formatReports(sections)},
		},
		Temperature: s.temperature,
	}

	resp, err := s.llm.Chat(ctx, req)
	if err != nil {
		return "", domain.WrapOp("LLMSummarizer.Summarize", err)
	}
	text := strings.TrimSpace(resp.Message.Content)
	if text == "" {
		return "", domain.NewDomainError("LLMSummarizer.Summarize", domain.ErrMalformedResponse, "empty summary")
	}
	s.logger.Debug("summary produced", "sections", len(sections), "tokens", resp.Usage.TotalTokens)
	return text, nil
}

var _ Summarizer = (*LLMSummarizer)(nil)
