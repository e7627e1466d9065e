package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"hedgefund/internal/domain"
	"hedgefund/internal/infra/config"
)

const maxSearchBodySize = 512 * 1024 // 512KB

// tavilyResponse models the relevant portion of the Tavily search response.
type tavilyResponse struct {
	Results *[]struct {
		Title         string  `json:"title"`
		URL           string  `json:"url"`
		Content       string  `json:"content"`
		Score         float64 `json:"score"`
		PublishedDate string  `json:"published_date"`
	} `json:"results"`
}

// TavilyBackend searches recent news via the Tavily API.
type TavilyBackend struct {
	client  *http.Client
	baseURL string
	apiKey  string
	logger  *slog.Logger
}

// NewTavilyBackend creates a news search backend backed by Tavily.
func NewTavilyBackend(cfg config.NewsConfig, logger *slog.Logger) *TavilyBackend {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &TavilyBackend{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		logger:  logger,
	}
}

func (b *TavilyBackend) Name() string { return "tavily" }

func (b *TavilyBackend) Search(ctx context.Context, query string, count int) ([]SearchResult, error) {
	payload, err := json.Marshal(map[string]any{
		"query":       query,
		"topic":       "news",
		"max_results": count,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, domain.NewSubSystemError("tavily", "Search", domain.ErrInvalidInput, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, transportError("tavily", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSearchBodySize))
	if err != nil {
		return nil, transportError("tavily", err)
	}
	if err := statusError("tavily", resp.StatusCode, body); err != nil {
		return nil, err
	}

	var tr tavilyResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, domain.NewSubSystemError("tavily", "decode", domain.ErrMalformedResponse, err.Error())
	}
	if tr.Results == nil {
		return nil, domain.NewSubSystemError("tavily", "decode", domain.ErrMalformedResponse, `missing "results"`)
	}

	results := make([]SearchResult, 0, len(*tr.Results))
	for _, r := range *tr.Results {
		if len(results) >= count {
			break
		}
		results = append(results, SearchResult{
			Title:     r.Title,
			URL:       r.URL,
			Content:   r.Content,
			Published: r.PublishedDate,
			Score:     r.Score,
		})
	}

	b.logger.Debug("tavily search completed", "query", query, "results", len(results))
	return results, nil
}
