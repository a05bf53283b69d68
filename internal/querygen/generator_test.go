package querygen

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// scriptedCompleter returns canned replies in order, recording prompts.
type scriptedCompleter struct {
	replies []string
	errs    []error
	prompts []string
	calls   int
}

func (c *scriptedCompleter) CreateChatCompletion(_ context.Context, prompt string) (string, error) {
	c.prompts = append(c.prompts, prompt)
	i := c.calls
	c.calls++
	if i < len(c.errs) && c.errs[i] != nil {
		return "", c.errs[i]
	}
	if i < len(c.replies) {
		return c.replies[i], nil
	}
	return "", fmt.Errorf("unexpected call %d", i)
}

const dentalReply = `{
  "queries": [
    "dental practices austin texas",
    "family dentist clinic website austin",
    "Dental Practices Austin Texas",
    "  ",
    "cosmetic dentistry offices texas"
  ],
  "targetIndustry": "dental",
  "serviceOffering": "website design",
  "location": "Austin, TX",
  "metadata": {"confidence": 0.9, "suggestedKeywords": ["dentist", "dental clinic"]}
}`

func TestGenerateCleansAndClassifies(t *testing.T) {
	completer := &scriptedCompleter{replies: []string{dentalReply}}
	g := New(completer, zap.NewNop())

	result, err := g.Generate(context.Background(), "I make websites for dentists", Options{})
	require.NoError(t, err)

	// Blank dropped, case-insensitive duplicate dropped, order preserved.
	require.Equal(t, []string{
		"dental practices austin texas",
		"family dentist clinic website austin",
		"cosmetic dentistry offices texas",
	}, result.Queries)
	require.Equal(t, "dental", result.TargetIndustry)
	require.Equal(t, "website design", result.ServiceOffering)
	require.Equal(t, "Austin, TX", result.Location)
	require.Equal(t, 0.9, result.Metadata.Confidence)
	require.Equal(t, []string{"dentist", "dental clinic"}, result.Metadata.SuggestedKeywords)

	require.Len(t, completer.prompts, 1)
	require.Contains(t, completer.prompts[0], "I make websites for dentists")
}

func TestGenerateTruncatesToMaxQueries(t *testing.T) {
	reply := `{
  "queries": ["q1", "q2", "q3", "q4"],
  "targetIndustry": "retail",
  "serviceOffering": "marketing",
  "location": "",
  "metadata": {"confidence": 0.5}
}`
	g := New(&scriptedCompleter{replies: []string{reply}}, zap.NewNop())

	result, err := g.Generate(context.Background(), "sell marketing to shops", Options{MaxQueries: 2})
	require.NoError(t, err)
	require.Equal(t, []string{"q1", "q2"}, result.Queries)
}

func TestGenerateEmptyGoal(t *testing.T) {
	g := New(&scriptedCompleter{}, zap.NewNop())
	_, err := g.Generate(context.Background(), "   ", Options{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to generate search queries")
}

func TestGenerateWrapsCompleterError(t *testing.T) {
	g := New(&scriptedCompleter{errs: []error{fmt.Errorf("model unavailable")}}, zap.NewNop())
	_, err := g.Generate(context.Background(), "some goal", Options{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to generate search queries")
	require.Contains(t, err.Error(), "model unavailable")
}

func TestGenerateRejectsMissingClassification(t *testing.T) {
	reply := `{"queries": ["q1"], "targetIndustry": "", "serviceOffering": "x", "location": "", "metadata": {"confidence": 0.5}}`
	g := New(&scriptedCompleter{replies: []string{reply}}, zap.NewNop())
	_, err := g.Generate(context.Background(), "goal", Options{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "classification")
}

func TestGenerateNoValidQueries(t *testing.T) {
	reply := `{"queries": ["", "   "], "targetIndustry": "retail", "serviceOffering": "x", "location": "", "metadata": {"confidence": 0.5}}`
	g := New(&scriptedCompleter{replies: []string{reply}}, zap.NewNop())
	_, err := g.Generate(context.Background(), "goal", Options{})
	require.ErrorIs(t, err, ErrNoValidQueries)
}

func TestGenerateToleratesFencedJSON(t *testing.T) {
	reply := "Here you go:\n```json\n" + dentalReply + "\n```\nLet me know if you need more."
	g := New(&scriptedCompleter{replies: []string{reply}}, zap.NewNop())

	result, err := g.Generate(context.Background(), "I make websites for dentists", Options{})
	require.NoError(t, err)
	require.Len(t, result.Queries, 3)
}

func TestGenerateRejectsNonJSONReply(t *testing.T) {
	g := New(&scriptedCompleter{replies: []string{"sorry, I cannot help with that"}}, zap.NewNop())
	_, err := g.Generate(context.Background(), "goal", Options{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to generate search queries")
}

func TestGenerateExpandAndScore(t *testing.T) {
	expandReply := `{"queries": ["q1", "q2", "q3"]}`
	scoreReply := `{"scores": [
  {"query": "q1", "score": 0.4},
  {"query": "q2", "score": 0.9},
  {"query": "q3", "score": 0.7},
  {"query": "never-seen", "score": 1.0}
]}`
	base := `{"queries": ["q1"], "targetIndustry": "retail", "serviceOffering": "x", "location": "", "metadata": {"confidence": 0.5}}`
	completer := &scriptedCompleter{replies: []string{base, expandReply, scoreReply}}
	g := New(completer, zap.NewNop())

	result, err := g.Generate(context.Background(), "goal", Options{
		ExpandQueries:  true,
		ScoreThreshold: 0.5,
	})
	require.NoError(t, err)
	// Kept queries sorted by descending score; q1 below threshold and the
	// unknown candidate are dropped.
	require.Equal(t, []string{"q2", "q3"}, result.Queries)
	require.Equal(t, 3, completer.calls)
}

func TestGenerateExpandFailurePropagates(t *testing.T) {
	base := `{"queries": ["q1"], "targetIndustry": "retail", "serviceOffering": "x", "location": "", "metadata": {"confidence": 0.5}}`
	completer := &scriptedCompleter{
		replies: []string{base, ""},
		errs:    []error{nil, fmt.Errorf("expansion unavailable")},
	}
	g := New(completer, zap.NewNop())

	_, err := g.Generate(context.Background(), "goal", Options{ExpandQueries: true, ScoreThreshold: 0.5})
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to generate search queries")
	require.Contains(t, err.Error(), "expansion unavailable")
	// The scoring call never happens after a failed expansion.
	require.Equal(t, 2, completer.calls)
}

func TestGenerateScoreFailurePropagates(t *testing.T) {
	base := `{"queries": ["q1", "q2"], "targetIndustry": "retail", "serviceOffering": "x", "location": "", "metadata": {"confidence": 0.5}}`
	expandReply := `{"queries": ["q1", "q2", "q3"]}`
	completer := &scriptedCompleter{
		replies: []string{base, expandReply, ""},
		errs:    []error{nil, nil, fmt.Errorf("scoring unavailable")},
	}
	g := New(completer, zap.NewNop())

	_, err := g.Generate(context.Background(), "goal", Options{ExpandQueries: true})
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to generate search queries")
	require.Contains(t, err.Error(), "scoring unavailable")
}

func TestExtractJSONObjectHandlesNestedBraces(t *testing.T) {
	s := `prefix {"a": {"b": "with } brace in string"}, "c": 1} suffix`
	got := extractJSONObject(s)
	require.True(t, strings.HasPrefix(got, `{"a"`))
	require.True(t, strings.HasSuffix(got, `1}`))
}
