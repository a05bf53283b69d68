package crawler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ReeceHarding/new-scraper-sub001/internal/blob"
	"github.com/ReeceHarding/new-scraper-sub001/internal/browser"
	"github.com/ReeceHarding/new-scraper-sub001/internal/content"
	"github.com/ReeceHarding/new-scraper-sub001/internal/policy/ratelimit"
	"github.com/ReeceHarding/new-scraper-sub001/internal/telemetry"
)

// Options tunes one crawl session.
type Options struct {
	MaxDepth       int
	MaxConcurrency int
	MaxRetries     int
	RetryDelay     time.Duration
	FollowLinks    bool
}

// Crawler walks a set of seed URLs breadth-first through the browser pool,
// honoring robots.txt and per-host rate limits, and emits one PageResult per
// terminal fetch attempt.
type Crawler struct {
	pool      *browser.Pool
	processor *content.Processor
	robots    RobotsPolicy
	limiter   *ratelimit.Limiter
	snapshots blob.Store
	logger    *zap.Logger
	opts      Options

	// sleep is swapped out in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Crawler. The snapshot store may be nil to disable raw HTML
// archiving.
func New(pool *browser.Pool, processor *content.Processor, robots RobotsPolicy, limiter *ratelimit.Limiter, snapshots blob.Store, opts Options, logger *zap.Logger) *Crawler {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 1
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Crawler{
		pool:      pool,
		processor: processor,
		robots:    robots,
		limiter:   limiter,
		snapshots: snapshots,
		logger:    logger,
		opts:      opts,
		sleep:     sleepCtx,
	}
}

// Crawl processes all seeds plus any discovered links within the depth cap and
// returns results ordered by URL. Cancellation via ctx stops dispatch; tasks
// already in flight finish and are included in the results.
func (c *Crawler) Crawl(ctx context.Context, seeds []string) ([]PageResult, error) {
	if len(seeds) == 0 {
		return nil, fmt.Errorf("no seed urls")
	}

	frontier := NewFrontier(c.opts.MaxDepth)
	accepted := 0
	for _, seed := range seeds {
		if frontier.Add(seed, 0, "") {
			accepted++
		} else {
			c.logger.Warn("seed url rejected", zap.String("url", seed))
		}
	}
	if accepted == 0 {
		return nil, fmt.Errorf("no crawlable seed urls")
	}

	// Cancellation closes the frontier so blocked workers wake and exit.
	stop := context.AfterFunc(ctx, frontier.Close)
	defer stop()

	var (
		mu      sync.Mutex
		results []PageResult
		wg      sync.WaitGroup
	)
	for i := 0; i < c.opts.MaxConcurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				task, ok := frontier.Next()
				if !ok {
					return
				}
				if result, ok := c.crawlOne(ctx, frontier, task); ok {
					mu.Lock()
					results = append(results, result)
					mu.Unlock()
				}
				frontier.Done()
			}
		}()
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].URL < results[j].URL })
	return results, ctx.Err()
}

// crawlOne runs the full per-URL pipeline: robots gate, rate limit, fetch with
// retries, content extraction, snapshot, and link expansion. A robots-denied
// URL is a policy skip, not a failure: it is dropped with no result.
func (c *Crawler) crawlOne(ctx context.Context, frontier *Frontier, task CrawlTask) (PageResult, bool) {
	host := hostOf(task.URL)

	if !c.robots.Allowed(ctx, task.URL) {
		c.logger.Debug("url disallowed by robots; skipping", zap.String("url", task.URL))
		telemetry.RecordPage(host, "robots_denied")
		return PageResult{}, false
	}
	if delay := c.robots.CrawlDelay(ctx, task.URL); delay > 0 {
		c.limiter.SetHostDelay(host, delay)
	}

	page, retries, fetchErr := c.fetchWithRetries(ctx, host, task)
	if fetchErr != nil {
		code := ClassifyNavigationError(fetchErr.Error())
		telemetry.RecordPage(host, "error")
		c.logger.Error("fetch failed",
			zap.String("url", task.URL),
			zap.String("code", string(code)),
			zap.Int("retries", retries),
			zap.Error(fetchErr))
		return PageResult{
			URL:    task.URL,
			Depth:  task.Depth,
			Origin: task.Origin,
			Error:  &PageError{Message: fetchErr.Error(), Code: code, Retries: retries},
		}, true
	}

	// Links stays non-nil so a linkless page serializes as an empty list.
	result := PageResult{
		URL:    task.URL,
		Depth:  task.Depth,
		Origin: task.Origin,
		Links:  []PageLink{},
		Metrics: &PageMetrics{
			LoadTime:      page.LoadTime,
			Size:          page.Size,
			ResourceCount: page.ResourceCount,
		},
	}

	processed, err := c.processor.Process(page.HTML, page.FinalURL)
	if err != nil {
		// Extraction failures degrade the result; the fetch itself succeeded.
		c.logger.Warn("content extraction failed",
			zap.String("url", task.URL), zap.Error(err))
	} else {
		result.Content = processed.Text
		result.Title = processed.Metadata.Title
		for _, link := range processed.Links {
			result.Links = append(result.Links, PageLink{URL: link.URL, Text: link.Text})
		}
	}

	if c.snapshots != nil {
		if uri, err := c.snapshot(ctx, page.HTML); err != nil {
			c.logger.Warn("snapshot failed", zap.String("url", task.URL), zap.Error(err))
		} else {
			result.BlobURI = uri
		}
	}

	if c.opts.FollowLinks {
		for _, link := range result.Links {
			frontier.Add(link.URL, task.Depth+1, task.URL)
		}
	}

	telemetry.RecordPage(host, "success")
	c.logger.Info("page crawled",
		zap.String("url", task.URL),
		zap.Int("depth", task.Depth),
		zap.Int("links", len(result.Links)),
		zap.Duration("load_time", page.LoadTime))
	return result, true
}

// fetchWithRetries navigates with linear backoff between attempts. It returns
// the page, the retry count consumed, and the final error (nil on success).
func (c *Crawler) fetchWithRetries(ctx context.Context, host string, task CrawlTask) (browser.Page, int, error) {
	var lastErr error
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			telemetry.RecordRetry(string(ClassifyNavigationError(lastErr.Error())))
			if err := c.sleep(ctx, c.opts.RetryDelay*time.Duration(attempt)); err != nil {
				return browser.Page{}, attempt - 1, lastErr
			}
		}
		if err := c.limiter.Wait(ctx, host); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			return browser.Page{}, attempt, lastErr
		}
		page, err := c.fetchOnce(ctx, task.URL)
		if err == nil {
			return page, attempt, nil
		}
		lastErr = err
		c.logger.Debug("fetch attempt failed",
			zap.String("url", task.URL),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
	return browser.Page{}, c.opts.MaxRetries, lastErr
}

func (c *Crawler) fetchOnce(ctx context.Context, url string) (browser.Page, error) {
	lease, err := c.pool.Acquire(ctx)
	if err != nil {
		return browser.Page{}, err
	}
	defer lease.Release()
	return lease.Navigate(ctx, url)
}

// snapshot archives raw HTML under a content-addressed, date-bucketed name.
func (c *Crawler) snapshot(ctx context.Context, rawHTML string) (string, error) {
	sum := sha256.Sum256([]byte(rawHTML))
	name := fmt.Sprintf("pages/%s/%s.html",
		time.Now().UTC().Format("2006-01-02"), hex.EncodeToString(sum[:]))
	return c.snapshots.Save(ctx, name, []byte(rawHTML))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
