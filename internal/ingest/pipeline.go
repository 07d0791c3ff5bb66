package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"codeqa/internal/domain"
	"codeqa/internal/embedding"
	"codeqa/internal/vectorstore"
)

// Options tune the pipeline. Zero values take the defaults.
type Options struct {
	BatchSize int
	Workers   int
}

// Stats summarizes one ingestion run.
type Stats struct {
	Files     int
	Chunks    int
	Fragments int
	Dimension int
	Elapsed   time.Duration
}

// Pipeline chunks documents, tags chunks with their symbols, embeds them
// and rebuilds the vector store.
type Pipeline struct {
	chunker   domain.Chunker
	symbols   SymbolExtractor
	embedder  embedding.Embedder
	store     vectorstore.Storage
	batchSize int
	workers   int
	log       *zap.Logger
}

func NewPipeline(chunker domain.Chunker, symbols SymbolExtractor, embedder embedding.Embedder, store vectorstore.Storage, opts Options, log *zap.Logger) *Pipeline {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if symbols == nil {
		symbols = RegexExtractor{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		chunker:   chunker,
		symbols:   symbols,
		embedder:  embedder,
		store:     store,
		batchSize: opts.BatchSize,
		workers:   opts.Workers,
		log:       log,
	}
}

// Run indexes docs. The store is cleared and re-initialized only after every
// chunk has been embedded, so a failed run leaves the previous index intact.
func (p *Pipeline) Run(ctx context.Context, docs []domain.Document) (Stats, error) {
	start := time.Now()
	stats := Stats{Files: len(docs)}
	if len(docs) == 0 {
		return stats, errors.New("no documents to ingest")
	}

	var chunks []domain.CodeChunk
	for _, d := range docs {
		cs, err := p.chunker.Chunk(d)
		if err != nil {
			return stats, fmt.Errorf("chunk %s: %w", d.Path, err)
		}
		if len(cs) > 1 {
			p.log.Debug("split large file", zap.String("path", d.Path), zap.Int("fragments", len(cs)))
		}
		for _, c := range cs {
			if c.Kind == domain.KindFileFragment {
				stats.Fragments++
			}
		}
		chunks = append(chunks, cs...)
	}
	stats.Chunks = len(chunks)
	if len(chunks) == 0 {
		return stats, errors.New("documents produced no chunks")
	}

	if err := p.tagSymbols(ctx, chunks); err != nil {
		return stats, err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = EmbeddingText(c)
	}
	if err := p.embedder.Prepare(ctx, texts); err != nil {
		return stats, fmt.Errorf("prepare embedder: %w", err)
	}
	vectors, err := p.embedAll(ctx, texts)
	if err != nil {
		return stats, err
	}
	stats.Dimension = len(vectors[0])

	if err := p.store.Clear(ctx); err != nil {
		return stats, fmt.Errorf("clear vector store: %w", err)
	}
	if err := p.store.Init(ctx, stats.Dimension); err != nil {
		return stats, fmt.Errorf("init vector store: %w", err)
	}
	for lo := 0; lo < len(chunks); lo += p.batchSize {
		hi := min(lo+p.batchSize, len(chunks))
		if err := p.store.Upsert(ctx, chunks[lo:hi], vectors[lo:hi]); err != nil {
			return stats, fmt.Errorf("upsert chunks %d-%d: %w", lo, hi, err)
		}
		p.log.Debug("upserted batch", zap.Int("from", lo), zap.Int("to", hi))
	}

	stats.Elapsed = time.Since(start)
	p.log.Info("ingestion complete",
		zap.Int("files", stats.Files),
		zap.Int("chunks", stats.Chunks),
		zap.Int("fragments", stats.Fragments),
		zap.Int("dimension", stats.Dimension),
		zap.Duration("elapsed", stats.Elapsed))
	return stats, nil
}

func (p *Pipeline) tagSymbols(ctx context.Context, chunks []domain.CodeChunk) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i := range chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s := p.symbols.Extract(gctx, chunks[i].Path, chunks[i].Content)
			chunks[i].ClassNames, chunks[i].MethodNames = s.ClassNames, s.MethodNames
			return nil
		})
	}
	return g.Wait()
}

func (p *Pipeline) embedAll(ctx context.Context, texts []string) ([][]float64, error) {
	vectors := make([][]float64, len(texts))
	if be, ok := p.embedder.(embedding.BatchEmbedder); ok {
		for lo := 0; lo < len(texts); lo += p.batchSize {
			hi := min(lo+p.batchSize, len(texts))
			out, err := be.EmbedBatch(ctx, texts[lo:hi])
			if err != nil {
				return nil, fmt.Errorf("embed batch %d-%d: %w", lo, hi, err)
			}
			copy(vectors[lo:hi], out)
		}
		return vectors, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i := range texts {
		g.Go(func() error {
			v, err := p.embedder.Embed(gctx, texts[i])
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", i, err)
			}
			vectors[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}
