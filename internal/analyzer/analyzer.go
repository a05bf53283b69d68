// Package analyzer turns a crawled website into a structured lead profile:
// contact emails scraped from the page plus an LLM-written summary and
// outreach draft.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ReeceHarding/new-scraper-sub001/internal/browser"
	"github.com/ReeceHarding/new-scraper-sub001/internal/content"
	"github.com/ReeceHarding/new-scraper-sub001/internal/llm"
	"github.com/ReeceHarding/new-scraper-sub001/internal/telemetry"
)

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// Analysis is the structured profile produced for one website.
type Analysis struct {
	URL           string
	BusinessName  string
	Industry      string
	Services      []string
	Emails        []string
	Summary       string
	OutreachDraft string
	AnalyzedAt    time.Time
}

// WebsiteAnalyzer renders a site through the browser pool, extracts contact
// details, and asks the LLM for a business profile and outreach draft.
type WebsiteAnalyzer struct {
	pool      *browser.Pool
	processor *content.Processor
	completer llm.ChatCompleter
	logger    *zap.Logger
}

// NewWebsiteAnalyzer wires an analyzer over an existing browser pool.
func NewWebsiteAnalyzer(pool *browser.Pool, processor *content.Processor, completer llm.ChatCompleter, logger *zap.Logger) *WebsiteAnalyzer {
	return &WebsiteAnalyzer{
		pool:      pool,
		processor: processor,
		completer: completer,
		logger:    logger,
	}
}

// Analyze loads url in a pooled browser session and builds its lead profile.
// The session is always released, including on error paths.
func (a *WebsiteAnalyzer) Analyze(ctx context.Context, url string) (*Analysis, error) {
	lease, err := a.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire browser session: %w", err)
	}
	defer lease.Release()

	page, err := lease.Navigate(ctx, url)
	if err != nil {
		telemetry.RecordAnalysis("navigation_error")
		a.logger.Error("analysis navigation failed", zap.String("url", url), zap.Error(err))
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}

	result, err := a.processor.Process(page.HTML, page.FinalURL)
	if err != nil {
		telemetry.RecordAnalysis("processing_error")
		a.logger.Error("analysis content processing failed", zap.String("url", url), zap.Error(err))
		return nil, fmt.Errorf("process content for %s: %w", url, err)
	}

	analysis := &Analysis{
		URL:        url,
		Emails:     extractEmails(page.HTML),
		AnalyzedAt: time.Now().UTC(),
	}

	profile, err := a.profileBusiness(ctx, url, result.Text)
	if err != nil {
		telemetry.RecordAnalysis("llm_error")
		a.logger.Error("business profiling failed", zap.String("url", url), zap.Error(err))
		return nil, fmt.Errorf("profile business at %s: %w", url, err)
	}
	analysis.BusinessName = profile.BusinessName
	analysis.Industry = profile.Industry
	analysis.Services = profile.Services
	analysis.Summary = profile.Summary

	draft, err := a.draftOutreach(ctx, profile, analysis.Emails)
	if err != nil {
		telemetry.RecordAnalysis("llm_error")
		a.logger.Error("outreach drafting failed", zap.String("url", url), zap.Error(err))
		return nil, fmt.Errorf("draft outreach for %s: %w", url, err)
	}
	analysis.OutreachDraft = draft

	telemetry.RecordAnalysis("success")
	a.logger.Info("website analyzed",
		zap.String("url", url),
		zap.String("business", analysis.BusinessName),
		zap.Int("emails", len(analysis.Emails)),
	)
	return analysis, nil
}

type businessProfile struct {
	BusinessName string   `json:"businessName"`
	Industry     string   `json:"industry"`
	Services     []string `json:"services"`
	Summary      string   `json:"summary"`
}

const profilePrompt = `You are a B2B lead researcher. Given the text content of a company
website, extract a concise business profile.

Respond with ONLY a JSON object using exactly these keys:
{
  "businessName": "the company name",
  "industry": "the company's primary industry",
  "services": ["list", "of", "offered", "services"],
  "summary": "2-3 sentence summary of what the business does and who it serves"
}

Website text:
%s`

func (a *WebsiteAnalyzer) profileBusiness(ctx context.Context, url, text string) (*businessProfile, error) {
	const maxPromptChars = 12000
	if len(text) > maxPromptChars {
		text = text[:maxPromptChars]
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("page at %s has no extractable text", url)
	}

	reply, err := a.completer.CreateChatCompletion(ctx, fmt.Sprintf(profilePrompt, text))
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	var profile businessProfile
	if err := json.Unmarshal([]byte(extractJSONObject(reply)), &profile); err != nil {
		return nil, fmt.Errorf("decode profile reply: %w", err)
	}
	if strings.TrimSpace(profile.Summary) == "" {
		return nil, fmt.Errorf("profile reply has no summary")
	}
	return &profile, nil
}

const outreachPrompt = `Write a short, personalized cold outreach email (under 150 words)
to the business described below. Reference what they do specifically. Be warm
and direct, no fluff, no subject line. Output plain text only.

Business: %s
Industry: %s
Services: %s
Summary: %s
Known contact emails: %s`

func (a *WebsiteAnalyzer) draftOutreach(ctx context.Context, profile *businessProfile, emails []string) (string, error) {
	prompt := fmt.Sprintf(outreachPrompt,
		profile.BusinessName,
		profile.Industry,
		strings.Join(profile.Services, ", "),
		profile.Summary,
		strings.Join(emails, ", "),
	)
	reply, err := a.completer.CreateChatCompletion(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	return strings.TrimSpace(reply), nil
}

// extractEmails scans raw HTML for email addresses, deduplicated
// case-insensitively with first-seen casing preserved.
func extractEmails(rawHTML string) []string {
	matches := emailPattern.FindAllString(rawHTML, -1)
	seen := make(map[string]struct{}, len(matches))
	var emails []string
	for _, m := range matches {
		key := strings.ToLower(m)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		emails = append(emails, m)
	}
	return emails
}

// extractJSONObject returns the first balanced JSON object in s, tolerating
// markdown fences and surrounding prose.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return s
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return s[start:]
}
