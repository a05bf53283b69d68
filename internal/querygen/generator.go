// Package querygen turns a free-text business goal into scored, deduplicated
// search queries plus an industry/service classification.
package querygen

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ReeceHarding/new-scraper-sub001/internal/llm"
	"github.com/ReeceHarding/new-scraper-sub001/internal/telemetry"
)

// ErrNoValidQueries is returned when the cleaned query set is empty; the
// pipeline cannot proceed with zero queries.
var ErrNoValidQueries = fmt.Errorf("no valid queries generated")

const defaultMaxQueries = 5

// Options tunes query generation.
type Options struct {
	// MaxQueries caps the cleaned query set; zero means the default of 5.
	MaxQueries int
	// ExpandQueries enables the broaden-then-score refinement rounds.
	ExpandQueries bool
	// ScoreThreshold drops expanded queries scored at or below it.
	ScoreThreshold float64
}

// Metadata carries generation confidence and keyword suggestions.
type Metadata struct {
	Confidence        float64  `json:"confidence"`
	SuggestedKeywords []string `json:"suggested_keywords,omitempty"`
}

// Result is the validated outcome of query generation.
type Result struct {
	Queries         []string `json:"queries"`
	TargetIndustry  string   `json:"target_industry"`
	ServiceOffering string   `json:"service_offering"`
	Location        string   `json:"location,omitempty"`
	Metadata        Metadata `json:"metadata"`
}

// Generator produces search queries via the text-generation collaborator.
type Generator struct {
	completer llm.ChatCompleter
	logger    *zap.Logger
}

// New creates a Generator.
func New(completer llm.ChatCompleter, logger *zap.Logger) *Generator {
	return &Generator{completer: completer, logger: logger}
}

const generatePrompt = `You are a lead-generation strategist. Given a business goal, produce web search queries that find potential customer websites.

Business goal: %q

Respond with a single JSON object, no prose, in exactly this shape:
{
  "queries": ["..."],
  "targetIndustry": "...",
  "serviceOffering": "...",
  "location": "...",
  "metadata": {"confidence": 0.0, "suggestedKeywords": ["..."]}
}
"location" may be an empty string when the goal names no geography.`

const expandPrompt = `Broaden this set of lead-generation search queries with additional phrasings, synonyms, and adjacent niches. Keep the originals.

Queries: %s

Respond with a single JSON object, no prose: {"queries": ["..."]}`

const scorePrompt = `Score each search query for how likely it is to surface websites of potential customers, from 0.0 (useless) to 1.0 (excellent).

Queries: %s

Respond with a single JSON object, no prose: {"scores": [{"query": "...", "score": 0.0}]}`

// rawResult is the untrusted wire shape from the collaborator.
type rawResult struct {
	Queries         []string `json:"queries"`
	TargetIndustry  string   `json:"targetIndustry"`
	ServiceOffering string   `json:"serviceOffering"`
	Location        string   `json:"location"`
	Metadata        struct {
		Confidence        float64  `json:"confidence"`
		SuggestedKeywords []string `json:"suggestedKeywords"`
	} `json:"metadata"`
}

// Generate produces the cleaned query set for a goal. Collaborator failures
// wrap as "failed to generate search queries"; an empty cleaned set is a
// hard failure because a pipeline with zero queries cannot proceed.
func (g *Generator) Generate(ctx context.Context, goal string, opts Options) (Result, error) {
	if strings.TrimSpace(goal) == "" {
		return Result{}, fmt.Errorf("failed to generate search queries: goal is empty")
	}
	maxQueries := opts.MaxQueries
	if maxQueries <= 0 {
		maxQueries = defaultMaxQueries
	}

	reply, err := g.completer.CreateChatCompletion(ctx, fmt.Sprintf(generatePrompt, goal))
	if err != nil {
		return Result{}, fmt.Errorf("failed to generate search queries: %w", err)
	}

	var raw rawResult
	if err := decodeJSONReply(reply, &raw); err != nil {
		return Result{}, fmt.Errorf("failed to generate search queries: %w", err)
	}
	if raw.TargetIndustry == "" || raw.ServiceOffering == "" {
		return Result{}, fmt.Errorf("failed to generate search queries: response missing industry or service classification")
	}

	queries := cleanQueries(raw.Queries)

	// Refinement calls are part of the generation contract: their failures
	// propagate the same way the first call's do.
	if opts.ExpandQueries && len(queries) > 0 {
		expanded, err := g.expand(ctx, queries)
		if err != nil {
			return Result{}, fmt.Errorf("failed to generate search queries: %w", err)
		}
		queries = cleanQueries(expanded)
		scored, err := g.score(ctx, queries, opts.ScoreThreshold)
		if err != nil {
			return Result{}, fmt.Errorf("failed to generate search queries: %w", err)
		}
		queries = scored
	}

	if len(queries) > maxQueries {
		queries = queries[:maxQueries]
	}
	if len(queries) == 0 {
		return Result{}, ErrNoValidQueries
	}

	telemetry.RecordQueriesGenerated(len(queries))
	g.logger.Info("generated search queries",
		zap.Int("count", len(queries)),
		zap.String("industry", raw.TargetIndustry))

	return Result{
		Queries:         queries,
		TargetIndustry:  raw.TargetIndustry,
		ServiceOffering: raw.ServiceOffering,
		Location:        raw.Location,
		Metadata: Metadata{
			Confidence:        raw.Metadata.Confidence,
			SuggestedKeywords: raw.Metadata.SuggestedKeywords,
		},
	}, nil
}

// expand asks the collaborator to broaden the query set.
func (g *Generator) expand(ctx context.Context, queries []string) ([]string, error) {
	encoded, err := json.Marshal(queries)
	if err != nil {
		return nil, fmt.Errorf("marshal queries: %w", err)
	}
	reply, err := g.completer.CreateChatCompletion(ctx, fmt.Sprintf(expandPrompt, encoded))
	if err != nil {
		return nil, fmt.Errorf("expand queries: %w", err)
	}
	var out struct {
		Queries []string `json:"queries"`
	}
	if err := decodeJSONReply(reply, &out); err != nil {
		return nil, fmt.Errorf("expand queries: %w", err)
	}
	if len(out.Queries) == 0 {
		return nil, fmt.Errorf("expand queries: empty result")
	}
	return out.Queries, nil
}

// score keeps only queries scored above the threshold, sorted descending.
// Candidates the collaborator did not score are dropped.
func (g *Generator) score(ctx context.Context, queries []string, threshold float64) ([]string, error) {
	encoded, err := json.Marshal(queries)
	if err != nil {
		return nil, fmt.Errorf("marshal queries: %w", err)
	}
	reply, err := g.completer.CreateChatCompletion(ctx, fmt.Sprintf(scorePrompt, encoded))
	if err != nil {
		return nil, fmt.Errorf("score queries: %w", err)
	}
	var out struct {
		Scores []struct {
			Query string  `json:"query"`
			Score float64 `json:"score"`
		} `json:"scores"`
	}
	if err := decodeJSONReply(reply, &out); err != nil {
		return nil, fmt.Errorf("score queries: %w", err)
	}

	known := make(map[string]struct{}, len(queries))
	for _, q := range queries {
		known[q] = struct{}{}
	}

	type scored struct {
		query string
		score float64
	}
	var kept []scored
	for _, s := range out.Scores {
		q := strings.TrimSpace(s.Query)
		if _, ok := known[q]; !ok {
			continue
		}
		if s.Score > threshold {
			kept = append(kept, scored{query: q, score: s.Score})
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].score > kept[j].score })

	result := make([]string, 0, len(kept))
	for _, s := range kept {
		result = append(result, s.query)
	}
	return result, nil
}

// cleanQueries trims, drops blanks, and deduplicates while preserving order.
func cleanQueries(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, q := range in {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		key := strings.ToLower(q)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, q)
	}
	return out
}

// decodeJSONReply parses a collaborator reply that should be a single JSON
// object, tolerating surrounding prose or markdown fences but rejecting any
// payload that does not match the expected schema.
func decodeJSONReply(reply string, target any) error {
	payload := extractJSONObject(reply)
	if payload == "" {
		return fmt.Errorf("response contains no JSON object")
	}
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		// Retry tolerating extra fields: collaborators add keys over time
		// and additive changes must not break parsing.
		if err2 := json.Unmarshal([]byte(payload), target); err2 != nil {
			return fmt.Errorf("decode response JSON: %w", err2)
		}
	}
	return nil
}

// extractJSONObject returns the first balanced top-level JSON object in s.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
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
	return ""
}
