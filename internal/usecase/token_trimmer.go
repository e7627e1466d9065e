package usecase

import (
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the tiktoken encoding used by the OpenAI chat models.
const DefaultEncoding = "cl100k_base"

// ApproxEncoding selects the byte estimate without loading a tokenizer.
const ApproxEncoding = "approx"

// bytesPerToken is the estimate used when no tokenizer is available.
const bytesPerToken = 4

// tokenCodec counts and cuts text in model tokens.
type tokenCodec interface {
	Count(text string) int
	Truncate(text string, maxTokens int) string
}

// TokenTrimmer caps tool payloads at a token budget before they are sent
// back to the model.
type TokenTrimmer struct {
	codec  tokenCodec
	budget int
}

// NewTokenTrimmer loads the named tiktoken encoding. Loading can need the
// network on first use; when it fails the trimmer falls back to a byte
// estimate and logs a warning.
func NewTokenTrimmer(encoding string, budget int, logger *slog.Logger) *TokenTrimmer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if encoding == "" {
		encoding = DefaultEncoding
	}
	if encoding == ApproxEncoding {
		return newApproxTrimmer(budget)
	}
	var codec tokenCodec
	tke, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		logger.Warn("tiktoken encoding unavailable, estimating tokens", "encoding", encoding, "error", err)
		codec = approxCodec{}
	} else {
		codec = &tiktokenCodec{tke: tke}
	}
	return &TokenTrimmer{codec: codec, budget: budget}
}

// newApproxTrimmer returns a trimmer that never touches the tokenizer.
func newApproxTrimmer(budget int) *TokenTrimmer {
	return &TokenTrimmer{codec: approxCodec{}, budget: budget}
}

// Budget returns the per-payload token cap. Zero or less disables trimming.
func (t *TokenTrimmer) Budget() int { return t.budget }

// WithBudget returns a copy sharing the codec.
func (t *TokenTrimmer) WithBudget(budget int) *TokenTrimmer {
	return &TokenTrimmer{codec: t.codec, budget: budget}
}

// Count returns the number of tokens in text.
func (t *TokenTrimmer) Count(text string) int {
	return t.codec.Count(text)
}

// Trim returns text unchanged when it fits the budget; otherwise the head of
// text followed by a marker naming how many tokens were dropped.
func (t *TokenTrimmer) Trim(text string) string {
	if t == nil || t.budget <= 0 {
		return text
	}
	n := t.codec.Count(text)
	if n <= t.budget {
		return text
	}
	return t.codec.Truncate(text, t.budget) +
		fmt.Sprintf("\n[truncated: %d of %d tokens omitted]", n-t.budget, n)
}

type tiktokenCodec struct {
	tke *tiktoken.Tiktoken
}

func (c *tiktokenCodec) Count(text string) int {
	return len(c.tke.Encode(text, nil, nil))
}

func (c *tiktokenCodec) Truncate(text string, maxTokens int) string {
	tokens := c.tke.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return c.tke.Decode(tokens[:maxTokens])
}

type approxCodec struct{}

func (approxCodec) Count(text string) int {
	return (len(text) + bytesPerToken - 1) / bytesPerToken
}

func (approxCodec) Truncate(text string, maxTokens int) string {
	limit := maxTokens * bytesPerToken
	if len(text) <= limit {
		return text
	}
	// Back off to a rune boundary.
	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	return text[:limit]
}
