package retrieval

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"codeqa/internal/domain"
	"codeqa/internal/embedding"
	"codeqa/internal/vectorstore"
)

// DefaultCandidateMultiplier is how many raw hits are fetched per returned
// block, leaving the re-ranker room to promote lexical matches.
const DefaultCandidateMultiplier = 3

// VectorRetriever embeds the question, searches the vector store and
// re-ranks the hits.
type VectorRetriever struct {
	embedder   embedding.Embedder
	store      vectorstore.Storage
	ranker     *Ranker
	multiplier int
	log        *zap.Logger
}

func NewVectorRetriever(embedder embedding.Embedder, store vectorstore.Storage, ranker *Ranker, multiplier int, log *zap.Logger) *VectorRetriever {
	if multiplier <= 0 {
		multiplier = DefaultCandidateMultiplier
	}
	if ranker == nil {
		ranker = NewRanker(DefaultRankerConfig())
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &VectorRetriever{embedder: embedder, store: store, ranker: ranker, multiplier: multiplier, log: log}
}

// Retrieve implements domain.CodeRetriever.
func (r *VectorRetriever) Retrieve(ctx context.Context, query string, topK int) (string, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return "", fmt.Errorf("embed query: %w", err)
	}
	hits, err := r.store.Search(ctx, vec, r.multiplier*topK)
	if err != nil {
		return "", fmt.Errorf("vector search: %w", err)
	}
	candidates := make([]domain.Candidate, len(hits))
	for i, h := range hits {
		candidates[i] = domain.CandidateFromResult(h)
	}
	r.log.Debug("retrieved candidates",
		zap.Int("top_k", topK),
		zap.Int("candidates", len(candidates)),
		zap.String("embedder", r.embedder.Name()))
	return r.ranker.RankAndFormat(query, candidates, topK), nil
}

// CapturingRetriever records the last context it returned.
type CapturingRetriever struct {
	inner domain.CodeRetriever

	mu   sync.Mutex
	last string
}

func NewCapturingRetriever(inner domain.CodeRetriever) *CapturingRetriever {
	return &CapturingRetriever{inner: inner}
}

func (c *CapturingRetriever) Retrieve(ctx context.Context, query string, topK int) (string, error) {
	text, err := c.inner.Retrieve(ctx, query, topK)
	c.mu.Lock()
	c.last = text
	c.mu.Unlock()
	return text, err
}

// Captured returns the context produced by the most recent Retrieve call.
func (c *CapturingRetriever) Captured() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}
