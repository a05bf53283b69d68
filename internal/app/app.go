// Package app wires configuration into the concrete service graph. It is the
// single composition root shared by the CLI and the HTTP server.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ReeceHarding/new-scraper-sub001/internal/analyzer"
	"github.com/ReeceHarding/new-scraper-sub001/internal/blob"
	"github.com/ReeceHarding/new-scraper-sub001/internal/browser"
	"github.com/ReeceHarding/new-scraper-sub001/internal/cache"
	"github.com/ReeceHarding/new-scraper-sub001/internal/config"
	"github.com/ReeceHarding/new-scraper-sub001/internal/content"
	"github.com/ReeceHarding/new-scraper-sub001/internal/crawler"
	"github.com/ReeceHarding/new-scraper-sub001/internal/events"
	"github.com/ReeceHarding/new-scraper-sub001/internal/llm"
	"github.com/ReeceHarding/new-scraper-sub001/internal/logging"
	"github.com/ReeceHarding/new-scraper-sub001/internal/pipeline"
	"github.com/ReeceHarding/new-scraper-sub001/internal/policy/ratelimit"
	"github.com/ReeceHarding/new-scraper-sub001/internal/querygen"
	"github.com/ReeceHarding/new-scraper-sub001/internal/search"
	"github.com/ReeceHarding/new-scraper-sub001/internal/storage"
)

// App holds every long-lived service dependency. Close tears them down in
// reverse construction order.
type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Store    storage.QueryStorage
	Pipeline *pipeline.Pipeline

	pool        *browser.Pool
	allocCancel context.CancelFunc
	closers     []func()
}

// New builds the full service graph from the config file at cfgPath (empty
// means defaults plus environment).
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &App{Config: cfg, Logger: logger}

	completer, err := llm.NewGeminiClient(ctx, llm.GeminiConfig{
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout(),
	}, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init llm client: %w", err)
	}

	engine, err := search.NewBraveClient(search.BraveConfig{
		Endpoint:   cfg.Search.Endpoint,
		APIKey:     cfg.Search.APIKey,
		Timeout:    cfg.Search.Timeout(),
		MaxResults: cfg.Search.MaxResults,
	}, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init search client: %w", err)
	}

	store, err := storage.NewPostgresStore(ctx, storage.PostgresConfig{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
	}, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	a.Store = store
	a.closers = append(a.closers, store.Close)

	snapshots, err := a.buildBlobStore(ctx, cfg.Blob, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	publisher, err := a.buildPublisher(ctx, cfg.PubSub, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	factory, allocCancel := browser.NewChromeFactory(cfg.Crawler.UserAgent, cfg.Crawler.NavTimeout())
	a.allocCancel = allocCancel
	pool, err := browser.NewPool(cfg.Browser.PoolSize, factory, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init browser pool: %w", err)
	}
	a.pool = pool

	processor := content.NewProcessor(logger)
	robots := crawler.NewRobotsEnforcer(cfg.Crawler.RespectRobots, cfg.Crawler.UserAgent, logger)
	limiter := ratelimit.New(cfg.Crawler.HostDelay(), logger)

	pageCrawler := crawler.New(pool, processor, robots, limiter, snapshots, crawler.Options{
		MaxDepth:       cfg.Crawler.MaxDepth,
		MaxConcurrency: cfg.Crawler.MaxConcurrency,
		MaxRetries:     cfg.Crawler.MaxRetries,
		RetryDelay:     cfg.Crawler.RetryDelay(),
		FollowLinks:    cfg.Crawler.MaxDepth > 0,
	}, logger)

	siteAnalyzer := analyzer.NewWebsiteAnalyzer(pool, processor, completer, logger)
	generator := querygen.New(completer, logger)
	queryCache := cache.New(cfg.Cache.TTL(), logger)

	a.Pipeline = pipeline.New(generator, engine, queryCache, pageCrawler, siteAnalyzer, store, publisher, pipeline.Options{
		MaxQueries:     cfg.Queries.MaxQueries,
		ExpandQueries:  cfg.Queries.ExpandQueries,
		ScoreThreshold: cfg.Queries.ScoreThreshold,
	}, logger)

	return a, nil
}

func (a *App) buildBlobStore(ctx context.Context, cfg config.BlobConfig, logger *zap.Logger) (blob.Store, error) {
	switch cfg.Backend {
	case "gcs":
		store, err := blob.NewGCSStore(ctx, cfg.GCSBucket, logger)
		if err != nil {
			return nil, fmt.Errorf("init gcs blob store: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := store.Close(); err != nil {
				logger.Warn("close gcs blob store", zap.Error(err))
			}
		})
		return store, nil
	case "local":
		store, err := blob.NewLocalStore(cfg.LocalDir)
		if err != nil {
			return nil, fmt.Errorf("init local blob store: %w", err)
		}
		return store, nil
	default:
		return blob.NewMemoryStore(), nil
	}
}

func (a *App) buildPublisher(ctx context.Context, cfg config.PubSubConfig, logger *zap.Logger) (events.Publisher, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	publisher, err := events.NewPubSubPublisher(ctx, cfg.ProjectID, cfg.TopicName, logger)
	if err != nil {
		return nil, fmt.Errorf("init pubsub publisher: %w", err)
	}
	a.closers = append(a.closers, func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("close pubsub publisher", zap.Error(err))
		}
	})
	return publisher, nil
}

// Close releases every owned resource. Safe on a partially built App.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.allocCancel != nil {
		a.allocCancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
}
