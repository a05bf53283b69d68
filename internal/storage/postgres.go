package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ReeceHarding/new-scraper-sub001/internal/search"
)

// PostgresConfig controls the Postgres connection pool.
type PostgresConfig struct {
	DSN      string
	MaxConns int32
}

// dbConn is the subset of pgxpool.Pool the store uses; pgxmock satisfies it
// in tests.
type dbConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements QueryStorage on Postgres.
//
// Expected schema:
//
//	CREATE TABLE queries (
//		id UUID PRIMARY KEY,
//		goal TEXT NOT NULL,
//		query_text TEXT NOT NULL,
//		target_industry TEXT NOT NULL,
//		service_offering TEXT NOT NULL,
//		location TEXT,
//		created_at TIMESTAMPTZ NOT NULL
//	);
//	CREATE TABLE search_results (
//		query_id UUID REFERENCES queries(id),
//		url TEXT NOT NULL,
//		title TEXT,
//		description TEXT,
//		rank INT NOT NULL,
//		relevance_score DOUBLE PRECISION NOT NULL,
//		PRIMARY KEY (query_id, url)
//	);
//	CREATE TABLE website_analyses (
//		query_id UUID REFERENCES queries(id),
//		url TEXT NOT NULL,
//		business_name TEXT,
//		industry TEXT,
//		services TEXT[],
//		emails TEXT[],
//		summary TEXT,
//		outreach_draft TEXT,
//		created_at TIMESTAMPTZ NOT NULL,
//		PRIMARY KEY (query_id, url)
//	);
type PostgresStore struct {
	pool   dbConn
	logger *zap.Logger
}

// NewPostgresStore connects a pool and pings it to fail fast on bad config.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig, logger *zap.Logger) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// NewPostgresStoreWithPool constructs a store from an existing pool,
// primarily for testing.
func NewPostgresStoreWithPool(pool dbConn, logger *zap.Logger) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// SaveQuery inserts one query row.
func (s *PostgresStore) SaveQuery(ctx context.Context, record QueryRecord) error {
	if record.ID == "" {
		return fmt.Errorf("query id is required")
	}
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO queries (id, goal, query_text, target_industry, service_offering, location, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		record.ID,
		record.Goal,
		record.QueryText,
		record.TargetIndustry,
		record.ServiceOffering,
		record.Location,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert query: %w", err)
	}
	return nil
}

// SaveResults upserts the search results for a query.
func (s *PostgresStore) SaveResults(ctx context.Context, queryID string, results []search.Result) error {
	if queryID == "" {
		return fmt.Errorf("query id is required")
	}
	for _, r := range results {
		_, err := s.pool.Exec(ctx, `
INSERT INTO search_results (query_id, url, title, description, rank, relevance_score)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (query_id, url) DO UPDATE
SET title = EXCLUDED.title, description = EXCLUDED.description,
    rank = EXCLUDED.rank, relevance_score = EXCLUDED.relevance_score`,
			queryID, r.URL, r.Title, r.Description, r.Rank, r.RelevanceScore,
		)
		if err != nil {
			return fmt.Errorf("insert search result %s: %w", r.URL, err)
		}
	}
	return nil
}

// SaveAnalysis upserts one website analysis row.
func (s *PostgresStore) SaveAnalysis(ctx context.Context, record AnalysisRecord) error {
	if record.QueryID == "" || record.URL == "" {
		return fmt.Errorf("query id and url are required")
	}
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO website_analyses (query_id, url, business_name, industry, services, emails, summary, outreach_draft, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (query_id, url) DO UPDATE
SET business_name = EXCLUDED.business_name, industry = EXCLUDED.industry,
    services = EXCLUDED.services, emails = EXCLUDED.emails,
    summary = EXCLUDED.summary, outreach_draft = EXCLUDED.outreach_draft`,
		record.QueryID,
		record.URL,
		record.BusinessName,
		record.Industry,
		record.Services,
		record.Emails,
		record.Summary,
		record.OutreachDraft,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert analysis %s: %w", record.URL, err)
	}
	return nil
}

// ResultsForQuery fetches stored results ordered by rank.
func (s *PostgresStore) ResultsForQuery(ctx context.Context, queryID string) ([]search.Result, error) {
	rows, err := s.pool.Query(ctx, `
SELECT url, title, description, rank, relevance_score
FROM search_results
WHERE query_id = $1
ORDER BY rank`,
		queryID,
	)
	if err != nil {
		return nil, fmt.Errorf("query search results: %w", err)
	}
	defer rows.Close()

	var results []search.Result
	for rows.Next() {
		var r search.Result
		if err := rows.Scan(&r.URL, &r.Title, &r.Description, &r.Rank, &r.RelevanceScore); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search results: %w", err)
	}
	return results, nil
}

// QueryAnalytics derives the per-query rollup.
func (s *PostgresStore) QueryAnalytics(ctx context.Context, queryID string) (Analytics, error) {
	var a Analytics
	err := s.pool.QueryRow(ctx, `
SELECT
	(SELECT COUNT(*) FROM search_results WHERE query_id = $1),
	(SELECT COUNT(*) FROM website_analyses WHERE query_id = $1),
	(SELECT COALESCE(SUM(cardinality(emails)), 0) FROM website_analyses WHERE query_id = $1),
	(SELECT COALESCE(
		(SELECT industry FROM website_analyses
		 WHERE query_id = $1 AND industry <> ''
		 GROUP BY industry ORDER BY COUNT(*) DESC LIMIT 1), ''))`,
		queryID,
	).Scan(&a.ResultCount, &a.AnalyzedCount, &a.EmailCount, &a.TopIndustry)
	if err != nil {
		return Analytics{}, fmt.Errorf("query analytics: %w", err)
	}
	return a, nil
}
