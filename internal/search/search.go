// Package search wraps the Brave Search API behind a uniform result shape.
package search

import "context"

// Result is one search hit in the pipeline's uniform shape.
type Result struct {
	URL            string            `json:"url"`
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	Rank           int               `json:"rank"`
	RelevanceScore float64           `json:"relevance_score"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Engine executes a web search for a query.
type Engine interface {
	Search(ctx context.Context, query string) ([]Result, error)
}
