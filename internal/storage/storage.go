// Package storage persists queries, search results, and website analyses.
package storage

import (
	"context"
	"time"

	"github.com/ReeceHarding/new-scraper-sub001/internal/search"
)

// QueryRecord is the persisted form of one generated query.
type QueryRecord struct {
	ID              string
	Goal            string
	QueryText       string
	TargetIndustry  string
	ServiceOffering string
	Location        string
	CreatedAt       time.Time
}

// AnalysisRecord is the persisted outcome of analyzing one website.
type AnalysisRecord struct {
	QueryID       string
	URL           string
	BusinessName  string
	Industry      string
	Services      []string
	Emails        []string
	Summary       string
	OutreachDraft string
	CreatedAt     time.Time
}

// Analytics is a per-query rollup derived from stored rows.
type Analytics struct {
	ResultCount   int
	AnalyzedCount int
	EmailCount    int
	TopIndustry   string
}

// QueryStorage is the persistence collaborator boundary. Failures on the
// critical path (query, results) propagate; the pipeline logs and swallows
// analytics-path failures.
type QueryStorage interface {
	SaveQuery(ctx context.Context, record QueryRecord) error
	SaveResults(ctx context.Context, queryID string, results []search.Result) error
	SaveAnalysis(ctx context.Context, record AnalysisRecord) error
	ResultsForQuery(ctx context.Context, queryID string) ([]search.Result, error)
	QueryAnalytics(ctx context.Context, queryID string) (Analytics, error)
	Close()
}
