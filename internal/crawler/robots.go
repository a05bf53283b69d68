package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

// RobotsPolicy answers allow/deny and crawl-delay questions for a URL.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
	CrawlDelay(ctx context.Context, rawURL string) time.Duration
}

// RobotsEnforcer fetches and caches robots.txt per host for the lifetime of a
// crawl session. A fetch failure is treated as allow-all so an unreachable
// robots.txt never blocks a crawl.
type RobotsEnforcer struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger

	mu    sync.Mutex
	cache map[string]*robotstxt.RobotsData
	locks map[string]*sync.Mutex
}

// NewRobotsEnforcer builds a RobotsPolicy respecting the config toggle.
func NewRobotsEnforcer(respect bool, userAgent string, logger *zap.Logger) RobotsPolicy {
	if !respect {
		return allowAllPolicy{}
	}
	return &RobotsEnforcer{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		userAgent: userAgent,
		logger:    logger,
		cache:     make(map[string]*robotstxt.RobotsData),
		locks:     make(map[string]*sync.Mutex),
	}
}

// Allowed implements RobotsPolicy. Unparseable URLs are denied; robots fetch
// failures are permissive.
func (r *RobotsEnforcer) Allowed(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return false
	}
	data, err := r.load(ctx, parsed)
	if err != nil {
		r.logger.Warn("robots fetch failed; allowing access",
			zap.String("host", parsed.Host), zap.Error(err))
		return true
	}
	group := data.FindGroup(r.userAgent)
	if group == nil {
		return true
	}
	path := parsed.Path
	if path == "" {
		path = "/"
	}
	return group.Test(path)
}

// CrawlDelay returns the crawl-delay directive for the URL's host, or zero
// when robots.txt is absent or silent.
func (r *RobotsEnforcer) CrawlDelay(ctx context.Context, rawURL string) time.Duration {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return 0
	}
	data, err := r.load(ctx, parsed)
	if err != nil {
		return 0
	}
	group := data.FindGroup(r.userAgent)
	if group == nil {
		return 0
	}
	return group.CrawlDelay
}

// load returns the cached robots data for the host, fetching at most once per
// host even under concurrent callers.
func (r *RobotsEnforcer) load(ctx context.Context, parsed *url.URL) (*robotstxt.RobotsData, error) {
	hostKey := strings.ToLower(parsed.Host)

	r.mu.Lock()
	if data, ok := r.cache[hostKey]; ok {
		r.mu.Unlock()
		return data, nil
	}
	hostLock, ok := r.locks[hostKey]
	if !ok {
		hostLock = &sync.Mutex{}
		r.locks[hostKey] = hostLock
	}
	r.mu.Unlock()

	hostLock.Lock()
	defer hostLock.Unlock()

	r.mu.Lock()
	if data, ok := r.cache[hostKey]; ok {
		r.mu.Unlock()
		return data, nil
	}
	r.mu.Unlock()

	data, err := r.fetch(ctx, parsed)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[hostKey] = data
	r.mu.Unlock()
	return data, nil
}

func (r *RobotsEnforcer) fetch(ctx context.Context, parsed *url.URL) (*robotstxt.RobotsData, error) {
	robotsURL := url.URL{
		Scheme: parsed.Scheme,
		Host:   parsed.Host,
		Path:   "/robots.txt",
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("new robots request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			r.logger.Debug("close robots response body", zap.Error(cerr))
		}
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read robots body: %w", err)
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}
	return data, nil
}

type allowAllPolicy struct{}

func (allowAllPolicy) Allowed(context.Context, string) bool             { return true }
func (allowAllPolicy) CrawlDelay(context.Context, string) time.Duration { return 0 }
