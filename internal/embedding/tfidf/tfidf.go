package tfidf

import (
	"context"
	"errors"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Embedder is an offline TF-IDF vectorizer tuned for source code:
// identifiers are indexed whole and split at camelCase and snake_case
// boundaries, and Java keywords are ignored.
type Embedder struct {
	mu         sync.RWMutex
	vocabulary map[string]int
	idf        []float64
	prepared   bool
	stopwords  map[string]struct{}
}

var (
	identRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)
	humpRe  = regexp.MustCompile(`[A-Z]+[a-z0-9]*|[a-z0-9]+`)
)

// NewEmbedder creates an unprepared TF-IDF embedder.
func NewEmbedder() *Embedder {
	return &Embedder{
		vocabulary: make(map[string]int),
		stopwords:  defaultStopwords(),
	}
}

func (e *Embedder) Name() string { return "tfidf" }

// Prepare builds the vocabulary and IDF values from the provided corpus.
func (e *Embedder) Prepare(ctx context.Context, corpus []string) error {
	if len(corpus) == 0 {
		return errors.New("empty corpus for TF-IDF prepare")
	}
	df := make(map[string]int)
	for i, text := range corpus {
		if i%256 == 0 && ctx.Err() != nil {
			return ctx.Err()
		}
		seen := make(map[string]struct{})
		for _, tok := range e.tokenize(text) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}
	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	if len(terms) == 0 {
		return errors.New("no tokens found in corpus")
	}
	sort.Strings(terms)

	vocab := make(map[string]int, len(terms))
	idf := make([]float64, len(terms))
	n := float64(len(corpus))
	for i, term := range terms {
		vocab[term] = i
		// smoothed IDF
		idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1.0
	}

	e.mu.Lock()
	e.vocabulary, e.idf, e.prepared = vocab, idf, true
	e.mu.Unlock()
	return nil
}

func (e *Embedder) Dimension() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.idf)
}

// Embed computes the L2-normalized TF-IDF vector of text. Text with no
// known terms yields the zero vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.prepared {
		return nil, errors.New("tfidf embedder not prepared")
	}
	vec := make([]float64, len(e.idf))
	tf := make(map[int]int)
	total := 0
	for _, tok := range e.tokenize(text) {
		if idx, ok := e.vocabulary[tok]; ok {
			tf[idx]++
			total++
		}
	}
	if total == 0 {
		return vec, nil
	}
	norm := 0.0
	for idx, count := range tf {
		v := float64(count) / float64(total) * e.idf[idx]
		vec[idx] = v
		norm += v * v
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec, nil
}

// tokenize emits each lower-cased identifier followed by its parts.
func (e *Embedder) tokenize(text string) []string {
	var out []string
	for _, ident := range identRe.FindAllString(text, -1) {
		whole := strings.ToLower(ident)
		if _, stop := e.stopwords[whole]; stop || len(whole) < 2 {
			continue
		}
		out = append(out, whole)
		parts := humpRe.FindAllString(ident, -1)
		if len(parts) < 2 {
			continue
		}
		for _, p := range parts {
			p = strings.ToLower(p)
			if _, stop := e.stopwords[p]; stop || len(p) < 2 {
				continue
			}
			out = append(out, p)
		}
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "it", "this", "that", "these", "those", "from", "so", "into", "about", "can", "will", "just", "should", "now", "how", "what", "does", "do",
		// java
		"public", "private", "protected", "static", "final", "void", "return", "new", "class", "interface", "extends", "implements", "import", "package", "null", "true", "false", "int", "long", "boolean", "double", "float", "byte", "char", "short", "string", "override", "throws", "throw", "try", "catch", "finally", "while", "switch", "case", "break", "continue", "default", "var", "super", "instanceof", "abstract", "synchronized", "volatile", "transient", "enum", "record",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
