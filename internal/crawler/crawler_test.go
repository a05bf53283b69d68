package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ReeceHarding/new-scraper-sub001/internal/blob"
	"github.com/ReeceHarding/new-scraper-sub001/internal/browser"
	"github.com/ReeceHarding/new-scraper-sub001/internal/content"
	"github.com/ReeceHarding/new-scraper-sub001/internal/policy/ratelimit"
)

// fakeSession serves canned pages per URL, failing a configurable number of
// times first.
type fakeSession struct {
	id    string
	pages map[string]string
	fails map[string]*atomic.Int64
	errs  map[string]string

	mu     sync.Mutex
	visits []string
}

func (s *fakeSession) ID() string { return s.id }

func (s *fakeSession) Navigate(_ context.Context, url string) (browser.Page, error) {
	s.mu.Lock()
	s.visits = append(s.visits, url)
	s.mu.Unlock()

	if counter, ok := s.fails[url]; ok && counter.Add(-1) >= 0 {
		msg := s.errs[url]
		if msg == "" {
			msg = "net::ERR_CONNECTION_REFUSED"
		}
		return browser.Page{}, fmt.Errorf("navigate %s: %s", url, msg)
	}
	html, ok := s.pages[url]
	if !ok {
		return browser.Page{}, fmt.Errorf("navigate %s: net::ERR_NAME_NOT_RESOLVED", url)
	}
	return browser.Page{
		HTML:          html,
		FinalURL:      url,
		LoadTime:      5 * time.Millisecond,
		Size:          len(html),
		ResourceCount: 1,
	}, nil
}

func (s *fakeSession) Close() error { return nil }

func newTestCrawler(t *testing.T, session *fakeSession, snapshots blob.Store, opts Options) *Crawler {
	t.Helper()
	logger := zap.NewNop()
	pool, err := browser.NewPool(2, func() (browser.Session, error) {
		return session, nil
	}, logger)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	c := New(pool, content.NewProcessor(logger),
		NewRobotsEnforcer(false, "test-agent", logger),
		ratelimit.New(0, logger), snapshots, opts, logger)
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func TestCrawlSinglePage(t *testing.T) {
	session := &fakeSession{
		id: "s1",
		pages: map[string]string{
			"https://site.test": `<html><head><title>Acme Dental</title></head>` +
				`<body><p>Family dentistry in Austin.</p></body></html>`,
		},
	}
	snapshots := blob.NewMemoryStore()
	c := newTestCrawler(t, session, snapshots, Options{MaxDepth: 0, MaxConcurrency: 2})

	results, err := c.Crawl(context.Background(), []string{"https://site.test/"})
	require.NoError(t, err)
	require.Len(t, results, 1)

	page := results[0]
	require.True(t, page.Succeeded())
	require.Equal(t, "https://site.test", page.URL)
	require.Equal(t, "Acme Dental", page.Title)
	require.Contains(t, page.Content, "Family dentistry")
	require.NotNil(t, page.Metrics)
	require.Positive(t, page.Metrics.Size)
	require.True(t, strings.HasPrefix(page.BlobURI, "memory://pages/"))
	require.Equal(t, 1, snapshots.Len())

	// A linkless page keeps an empty slice so it serializes as [] not null.
	require.NotNil(t, page.Links)
	require.Empty(t, page.Links)
	encoded, err := json.Marshal(page)
	require.NoError(t, err)
	require.Contains(t, string(encoded), `"links":[]`)
}

func TestCrawlFollowsLinksWithinDepth(t *testing.T) {
	session := &fakeSession{
		id: "s1",
		pages: map[string]string{
			"https://site.test": `<html><body>` +
				`<a href="/about">About</a>` +
				`<a href="/about">About again</a>` +
				`<a href="https://site.test/contact/">Contact</a>` +
				`</body></html>`,
			"https://site.test/about":   `<html><body><a href="/deep">Deep</a></body></html>`,
			"https://site.test/contact": `<html><body>contact us</body></html>`,
		},
	}
	c := newTestCrawler(t, session, nil, Options{
		MaxDepth:       1,
		MaxConcurrency: 2,
		FollowLinks:    true,
	})

	results, err := c.Crawl(context.Background(), []string{"https://site.test"})
	require.NoError(t, err)
	require.Len(t, results, 3)

	byURL := make(map[string]PageResult, len(results))
	for _, r := range results {
		byURL[r.URL] = r
	}
	require.Contains(t, byURL, "https://site.test")
	require.Contains(t, byURL, "https://site.test/about")
	require.Contains(t, byURL, "https://site.test/contact")
	// The /deep link sits beyond the depth cap.
	require.NotContains(t, byURL, "https://site.test/deep")

	require.Equal(t, 1, byURL["https://site.test/about"].Depth)
	require.Equal(t, "https://site.test", byURL["https://site.test/about"].Origin)
}

func TestCrawlRetriesThenSucceeds(t *testing.T) {
	var failures atomic.Int64
	failures.Store(2)
	session := &fakeSession{
		id:    "s1",
		pages: map[string]string{"https://flaky.test": `<html><body>recovered</body></html>`},
		fails: map[string]*atomic.Int64{"https://flaky.test": &failures},
	}
	c := newTestCrawler(t, session, nil, Options{
		MaxDepth:       0,
		MaxConcurrency: 1,
		MaxRetries:     3,
		RetryDelay:     time.Millisecond,
	})

	results, err := c.Crawl(context.Background(), []string{"https://flaky.test"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.True(t, results[0].Succeeded())
	require.Contains(t, results[0].Content, "recovered")
	require.Len(t, session.visits, 3)
}

func TestCrawlExhaustsRetries(t *testing.T) {
	var failures atomic.Int64
	failures.Store(100)
	session := &fakeSession{
		id:    "s1",
		pages: map[string]string{},
		fails: map[string]*atomic.Int64{"https://down.test": &failures},
		errs:  map[string]string{"https://down.test": "net::ERR_CONNECTION_REFUSED"},
	}
	c := newTestCrawler(t, session, nil, Options{
		MaxDepth:       0,
		MaxConcurrency: 1,
		MaxRetries:     2,
		RetryDelay:     time.Millisecond,
	})

	results, err := c.Crawl(context.Background(), []string{"https://down.test"})
	require.NoError(t, err)
	require.Len(t, results, 1)

	page := results[0]
	require.False(t, page.Succeeded())
	require.Equal(t, CodeConnectionRefused, page.Error.Code)
	require.Equal(t, 2, page.Error.Retries)
	require.Len(t, session.visits, 3)
}

type denyPolicy struct {
	denied string
}

func (d denyPolicy) Allowed(_ context.Context, rawURL string) bool {
	return !strings.Contains(rawURL, d.denied)
}

func (denyPolicy) CrawlDelay(context.Context, string) time.Duration { return 0 }

func TestCrawlSkipsRobotsDeniedURLs(t *testing.T) {
	session := &fakeSession{
		id: "s1",
		pages: map[string]string{
			"https://site.test/open": `<html><body>open</body></html>`,
		},
	}
	logger := zap.NewNop()
	pool, err := browser.NewPool(1, func() (browser.Session, error) { return session, nil }, logger)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	c := New(pool, content.NewProcessor(logger), denyPolicy{denied: "blocked"},
		ratelimit.New(0, logger), nil, Options{MaxDepth: 0, MaxConcurrency: 1}, logger)
	c.sleep = func(context.Context, time.Duration) error { return nil }

	results, err := c.Crawl(context.Background(), []string{
		"https://site.test/open",
		"https://site.test/blocked",
	})
	require.NoError(t, err)

	// The denied URL is a policy skip: no result, not a failed page.
	require.Len(t, results, 1)
	require.Equal(t, "https://site.test/open", results[0].URL)
	require.True(t, results[0].Succeeded())
	// It never reached the browser either.
	require.Equal(t, []string{"https://site.test/open"}, session.visits)
}

func TestCrawlRejectsEmptySeeds(t *testing.T) {
	session := &fakeSession{id: "s1", pages: map[string]string{}}
	c := newTestCrawler(t, session, nil, Options{MaxConcurrency: 1})

	_, err := c.Crawl(context.Background(), nil)
	require.Error(t, err)

	_, err = c.Crawl(context.Background(), []string{"not-a-url"})
	require.Error(t, err)
}
