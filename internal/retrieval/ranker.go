// Package retrieval turns vector search hits into prompt-ready code context.
// Dense similarity is combined with a lexical boost so that questions naming
// concrete classes, methods or paths surface the chunks that contain them.
package retrieval

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"codeqa/internal/domain"
)

// NoResults is returned when the vector search produced no candidates.
const NoResults = "No relevant code found."

const placeholder = "—"

var (
	identifierRe = regexp.MustCompile(`[A-Z][a-zA-Z0-9_]+|[a-z]+[A-Z][a-zA-Z0-9_]*`)
	longWordRe   = regexp.MustCompile(`\b\w{4,}\b`)
)

// RankerConfig holds the boost constants. Zero values are used as given;
// start from DefaultRankerConfig to keep the tuned ones.
type RankerConfig struct {
	KeywordBoost      float64
	BoostWeight       float64
	AnnotateThreshold float64
}

// DefaultRankerConfig returns the empirically tuned constants.
func DefaultRankerConfig() RankerConfig {
	return RankerConfig{KeywordBoost: 0.15, BoostWeight: 0.3, AnnotateThreshold: 0.01}
}

// Ranker re-ranks candidates with keyword boosts and renders them.
type Ranker struct {
	cfg RankerConfig
}

func NewRanker(cfg RankerConfig) *Ranker {
	return &Ranker{cfg: cfg}
}

// ExtractKeywords returns identifier-like tokens of the query (capitalized or
// camelCase) plus every word of four or more characters, lower-cased.
func ExtractKeywords(query string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range identifierRe.FindAllString(query, -1) {
		set[tok] = struct{}{}
	}
	for _, w := range longWordRe.FindAllString(strings.ToLower(query), -1) {
		set[w] = struct{}{}
	}
	return set
}

// Ranked is a candidate with its boosted score. Boosted is false when the
// query produced no keywords and candidates were ordered by raw score.
type Ranked struct {
	domain.Candidate
	BoostedScore float64
	Boosted      bool
}

// Rank orders candidates by boosted score, or by raw score when the query
// yields no keywords. Ties keep their input order.
func (r *Ranker) Rank(query string, candidates []domain.Candidate) []Ranked {
	keywords := ExtractKeywords(query)
	out := make([]Ranked, len(candidates))
	for i, c := range candidates {
		out[i] = Ranked{Candidate: c, BoostedScore: c.Score}
	}
	if len(keywords) == 0 {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
		return out
	}
	for i := range out {
		haystack := strings.ToLower(strings.Join([]string{
			out[i].Path,
			strings.Join(out[i].ClassNames, " "),
			strings.Join(out[i].MethodNames, " "),
			out[i].Content,
		}, " "))
		boost := 0.0
		for kw := range keywords {
			if strings.Contains(haystack, strings.ToLower(kw)) {
				boost += r.cfg.KeywordBoost
			}
		}
		out[i].BoostedScore = out[i].Score + boost*r.cfg.BoostWeight
		out[i].Boosted = true
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].BoostedScore > out[j].BoostedScore })
	return out
}

// RankAndFormat ranks candidates and renders the first topK as context blocks.
func (r *Ranker) RankAndFormat(query string, candidates []domain.Candidate, topK int) string {
	if len(candidates) == 0 {
		return NoResults
	}
	ranked := r.Rank(query, candidates)
	if topK < len(ranked) {
		ranked = ranked[:topK]
	}
	blocks := make([]string, 0, len(ranked))
	for _, c := range ranked {
		blocks = append(blocks, r.formatBlock(c))
	}
	return strings.Join(blocks, "\n\n")
}

func (r *Ranker) formatBlock(c Ranked) string {
	lines := c.Lines
	if lines == "" {
		lines = "full file"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "File: %s (lines %s)\n", c.Path, lines)
	fmt.Fprintf(&b, "Relevance: %.3f", c.Score)
	if c.Boosted && math.Abs(c.BoostedScore-c.Score) > r.cfg.AnnotateThreshold {
		fmt.Fprintf(&b, "  (boosted: %.3f)", c.BoostedScore)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Classes: %s\n", joinOrPlaceholder(c.ClassNames))
	fmt.Fprintf(&b, "Methods: %s\n", joinOrPlaceholder(c.MethodNames))
	fmt.Fprintf(&b, "```\n%s\n```", c.Content)
	return b.String()
}

func joinOrPlaceholder(names []string) string {
	if len(names) == 0 {
		return placeholder
	}
	return strings.Join(names, ", ")
}
