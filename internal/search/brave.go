package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// BraveConfig configures the Brave Search API client.
type BraveConfig struct {
	Endpoint   string
	APIKey     string
	Timeout    time.Duration
	MaxResults int
}

// BraveClient implements Engine against the Brave web search REST API.
type BraveClient struct {
	cfg    BraveConfig
	client *http.Client
	logger *zap.Logger
}

// NewBraveClient creates a BraveClient.
func NewBraveClient(cfg BraveConfig, logger *zap.Logger) (*BraveClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("search endpoint is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 20
	}
	return &BraveClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

// braveResponse mirrors the subset of the Brave web search payload the
// pipeline consumes.
type braveResponse struct {
	Web struct {
		Results []struct {
			URL         string `json:"url"`
			Title       string `json:"title"`
			Description string `json:"description"`
			Age         string `json:"age"`
			Language    string `json:"language"`
		} `json:"results"`
	} `json:"web"`
}

// Search executes the query and maps hits into the uniform Result shape.
// Any transport or API failure surfaces as "search failed: <cause>".
func (c *BraveClient) Search(ctx context.Context, query string) ([]Result, error) {
	reqURL, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("search failed: parse endpoint: %w", err)
	}
	q := reqURL.Query()
	q.Set("q", query)
	q.Set("count", strconv.Itoa(c.cfg.MaxResults))
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("search failed: new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("close search response body", zap.Error(cerr))
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("search failed: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search failed: status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var payload braveResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("search failed: decode response: %w", err)
	}

	results := make([]Result, 0, len(payload.Web.Results))
	for i, hit := range payload.Web.Results {
		if hit.URL == "" {
			continue
		}
		rank := i + 1
		meta := map[string]string{}
		if hit.Age != "" {
			meta["age"] = hit.Age
		}
		if hit.Language != "" {
			meta["language"] = hit.Language
		}
		results = append(results, Result{
			URL:            hit.URL,
			Title:          hit.Title,
			Description:    hit.Description,
			Rank:           rank,
			RelevanceScore: 1 / float64(rank),
			Metadata:       meta,
		})
	}

	c.logger.Debug("search completed",
		zap.String("query", query),
		zap.Int("results", len(results)))
	return results, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
