// Package crawler implements the lead-discovery crawl engine: the URL
// frontier, robots.txt enforcement, navigation error classification, and the
// bounded worker pool that drives fetches through the browser pool.
package crawler

import "time"

// CrawlTask is a unit of work owned by the frontier until dispatched.
type CrawlTask struct {
	URL        string
	Depth      int
	Origin     string
	RetryCount int
}

// ErrorCode is the closed taxonomy for navigation failures.
type ErrorCode string

// Navigation failure codes. The mapping from raw error text to these values
// is a stable contract relied on by dashboards and retry policy.
const (
	CodeConnectionRefused ErrorCode = "CONNECTION_REFUSED"
	CodeDNSError          ErrorCode = "DNS_ERROR"
	CodeSSLError          ErrorCode = "SSL_ERROR"
	CodeTooManyRedirects  ErrorCode = "TOO_MANY_REDIRECTS"
	CodeProxyError        ErrorCode = "PROXY_ERROR"
	CodeTimeout           ErrorCode = "TIMEOUT"
	CodeUnknown           ErrorCode = "UNKNOWN"
)

// PageError describes the terminal failure of a fetch attempt.
type PageError struct {
	Message string    `json:"message"`
	Code    ErrorCode `json:"code"`
	Retries int       `json:"retries"`
}

// PageMetrics captures per-fetch load measurements.
type PageMetrics struct {
	LoadTime      time.Duration `json:"load_time_ms"`
	Size          int           `json:"size"`
	ResourceCount int           `json:"resource_count"`
}

// PageLink is an outgoing link with its anchor text.
type PageLink struct {
	URL  string `json:"url"`
	Text string `json:"text,omitempty"`
}

// PageResult is the immutable outcome of one terminal fetch attempt.
type PageResult struct {
	URL     string       `json:"url"`
	Depth   int          `json:"depth"`
	Origin  string       `json:"origin"`
	Content string       `json:"content"`
	Title   string       `json:"title,omitempty"`
	Links   []PageLink   `json:"links"`
	BlobURI string       `json:"blob_uri,omitempty"`
	Error   *PageError   `json:"error,omitempty"`
	Metrics *PageMetrics `json:"metrics,omitempty"`
}

// Succeeded reports whether the fetch produced usable content.
func (r PageResult) Succeeded() bool {
	return r.Error == nil
}
