// Package pipeline orchestrates the full lead-discovery flow: query
// generation, cached search, crawling, website analysis, persistence, and
// event publication.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ReeceHarding/new-scraper-sub001/internal/analyzer"
	"github.com/ReeceHarding/new-scraper-sub001/internal/cache"
	"github.com/ReeceHarding/new-scraper-sub001/internal/crawler"
	"github.com/ReeceHarding/new-scraper-sub001/internal/events"
	"github.com/ReeceHarding/new-scraper-sub001/internal/querygen"
	"github.com/ReeceHarding/new-scraper-sub001/internal/search"
	"github.com/ReeceHarding/new-scraper-sub001/internal/storage"
)

// QueryGenerator produces search queries from a business goal.
type QueryGenerator interface {
	Generate(ctx context.Context, goal string, opts querygen.Options) (querygen.Result, error)
}

// PageCrawler fetches a set of seed URLs and returns per-page outcomes.
type PageCrawler interface {
	Crawl(ctx context.Context, seeds []string) ([]crawler.PageResult, error)
}

// SiteAnalyzer builds a lead profile for one website.
type SiteAnalyzer interface {
	Analyze(ctx context.Context, url string) (*analyzer.Analysis, error)
}

// Options tunes one discovery run.
type Options struct {
	MaxQueries     int
	ExpandQueries  bool
	ScoreThreshold float64
}

// Report is the aggregate outcome of one discovery run.
type Report struct {
	Goal      string                       `json:"goal"`
	QueryIDs  []string                     `json:"query_ids"`
	Queries   []string                     `json:"queries"`
	Pages     []crawler.PageResult         `json:"pages"`
	Leads     []analyzer.Analysis          `json:"leads"`
	Analytics map[string]storage.Analytics `json:"analytics,omitempty"`
	StartedAt time.Time                    `json:"started_at"`
	Duration  time.Duration                `json:"duration_ms"`
}

// Pipeline wires the discovery stages together. Persistence failures on the
// query and result path abort the run; analysis-side persistence, analytics,
// and event publication degrade to log lines.
type Pipeline struct {
	generator QueryGenerator
	engine    search.Engine
	cache     *cache.QueryCache
	crawler   PageCrawler
	analyzer  SiteAnalyzer
	store     storage.QueryStorage
	publisher events.Publisher
	logger    *zap.Logger
	opts      Options
}

// New assembles a Pipeline. The cache and publisher may be nil to disable
// those stages.
func New(generator QueryGenerator, engine search.Engine, queryCache *cache.QueryCache, pageCrawler PageCrawler, siteAnalyzer SiteAnalyzer, store storage.QueryStorage, publisher events.Publisher, opts Options, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		generator: generator,
		engine:    engine,
		cache:     queryCache,
		crawler:   pageCrawler,
		analyzer:  siteAnalyzer,
		store:     store,
		publisher: publisher,
		logger:    logger,
		opts:      opts,
	}
}

// Run executes the full discovery flow for one business goal.
func (p *Pipeline) Run(ctx context.Context, goal string) (*Report, error) {
	started := time.Now().UTC()

	generated, err := p.generator.Generate(ctx, goal, querygen.Options{
		MaxQueries:     p.opts.MaxQueries,
		ExpandQueries:  p.opts.ExpandQueries,
		ScoreThreshold: p.opts.ScoreThreshold,
	})
	if err != nil {
		return nil, err
	}
	p.logger.Info("queries generated",
		zap.String("goal", goal),
		zap.Int("count", len(generated.Queries)),
		zap.String("industry", generated.TargetIndustry))

	report := &Report{
		Goal:      goal,
		Queries:   generated.Queries,
		StartedAt: started,
	}

	// urlToQuery remembers which query first surfaced each URL so analyses
	// and events can be attributed.
	urlToQuery := make(map[string]string)
	var seeds []string

	for _, query := range generated.Queries {
		queryID := uuid.NewString()
		record := storage.QueryRecord{
			ID:              queryID,
			Goal:            goal,
			QueryText:       query,
			TargetIndustry:  generated.TargetIndustry,
			ServiceOffering: generated.ServiceOffering,
			Location:        generated.Location,
			CreatedAt:       time.Now().UTC(),
		}
		if err := p.store.SaveQuery(ctx, record); err != nil {
			return nil, fmt.Errorf("save query %q: %w", query, err)
		}
		report.QueryIDs = append(report.QueryIDs, queryID)

		results, err := p.searchWithCache(ctx, query)
		if err != nil {
			p.logger.Warn("search failed; skipping query",
				zap.String("query", query), zap.Error(err))
			continue
		}
		if err := p.store.SaveResults(ctx, queryID, results); err != nil {
			return nil, fmt.Errorf("save results for query %q: %w", query, err)
		}

		for _, result := range results {
			normalized, err := crawler.NormalizeURL(result.URL)
			if err != nil {
				continue
			}
			if _, seen := urlToQuery[normalized]; seen {
				continue
			}
			urlToQuery[normalized] = queryID
			seeds = append(seeds, result.URL)
		}
	}

	if len(seeds) == 0 {
		p.logger.Warn("no crawlable results for goal", zap.String("goal", goal))
		report.Duration = time.Since(started)
		return report, nil
	}

	pages, err := p.crawler.Crawl(ctx, seeds)
	if err != nil && len(pages) == 0 {
		return nil, fmt.Errorf("crawl: %w", err)
	}
	report.Pages = pages

	for _, page := range pages {
		if !page.Succeeded() {
			continue
		}
		queryID := p.queryFor(urlToQuery, page.URL)
		analysis, err := p.analyzer.Analyze(ctx, page.URL)
		if err != nil {
			p.logger.Warn("analysis failed",
				zap.String("url", page.URL), zap.Error(err))
			continue
		}
		report.Leads = append(report.Leads, *analysis)

		if err := p.store.SaveAnalysis(ctx, storage.AnalysisRecord{
			QueryID:       queryID,
			URL:           analysis.URL,
			BusinessName:  analysis.BusinessName,
			Industry:      analysis.Industry,
			Services:      analysis.Services,
			Emails:        analysis.Emails,
			Summary:       analysis.Summary,
			OutreachDraft: analysis.OutreachDraft,
			CreatedAt:     analysis.AnalyzedAt,
		}); err != nil {
			p.logger.Error("save analysis failed",
				zap.String("url", page.URL), zap.Error(err))
		}

		p.publish(ctx, queryID, analysis)
	}

	report.Analytics = p.collectAnalytics(ctx, report.QueryIDs)
	report.Duration = time.Since(started)
	p.logger.Info("discovery run complete",
		zap.String("goal", goal),
		zap.Int("queries", len(report.Queries)),
		zap.Int("pages", len(report.Pages)),
		zap.Int("leads", len(report.Leads)),
		zap.Duration("duration", report.Duration))
	return report, nil
}

// searchWithCache consults the TTL cache before hitting the search engine.
func (p *Pipeline) searchWithCache(ctx context.Context, query string) ([]search.Result, error) {
	opts := cache.Options{"max_queries": p.opts.MaxQueries}
	if p.cache != nil {
		if results, ok := p.cache.Get(query, opts); ok {
			p.logger.Debug("search cache hit", zap.String("query", query))
			return results, nil
		}
	}
	results, err := p.engine.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	if p.cache != nil {
		p.cache.Set(query, opts, results)
	}
	return results, nil
}

func (p *Pipeline) queryFor(urlToQuery map[string]string, rawURL string) string {
	normalized, err := crawler.NormalizeURL(rawURL)
	if err != nil {
		return ""
	}
	return urlToQuery[normalized]
}

func (p *Pipeline) publish(ctx context.Context, queryID string, analysis *analyzer.Analysis) {
	if p.publisher == nil {
		return
	}
	event := events.LeadDiscovered{
		QueryID:      queryID,
		URL:          analysis.URL,
		BusinessName: analysis.BusinessName,
		Industry:     analysis.Industry,
		EmailCount:   len(analysis.Emails),
		DiscoveredAt: analysis.AnalyzedAt,
	}
	if err := p.publisher.Publish(ctx, event); err != nil {
		p.logger.Warn("publish lead event failed",
			zap.String("url", analysis.URL), zap.Error(err))
	}
}

func (p *Pipeline) collectAnalytics(ctx context.Context, queryIDs []string) map[string]storage.Analytics {
	if len(queryIDs) == 0 {
		return nil
	}
	analytics := make(map[string]storage.Analytics, len(queryIDs))
	for _, id := range queryIDs {
		rollup, err := p.store.QueryAnalytics(ctx, id)
		if err != nil {
			p.logger.Warn("query analytics failed",
				zap.String("query_id", id), zap.Error(err))
			continue
		}
		analytics[id] = rollup
	}
	return analytics
}
