package tool

import "context"

// SearchBackend abstracts a news search engine.
type SearchBackend interface {
	// Search performs one search request and returns at most count results.
	Search(ctx context.Context, query string, count int) ([]SearchResult, error)
	// Name returns the backend identifier (e.g. "tavily").
	Name() string
}

// SearchResult represents a single search result.
type SearchResult struct {
	Title     string  `json:"title"`
	URL       string  `json:"url"`
	Content   string  `json:"content"`
	Published string  `json:"published,omitempty"`
	Score     float64 `json:"score,omitempty"`
}
