package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"codeqa/internal/chunker"
	"codeqa/internal/config"
	"codeqa/internal/conversation"
	"codeqa/internal/domain"
	"codeqa/internal/embedding"
	"codeqa/internal/embedding/gemini"
	"codeqa/internal/embedding/openai"
	"codeqa/internal/embedding/tfidf"
	"codeqa/internal/ingest"
	"codeqa/internal/llm"
	"codeqa/internal/retrieval"
	"codeqa/internal/service"
	"codeqa/internal/session"
	"codeqa/internal/vectorstore"
	"codeqa/internal/vectorstore/memory"
	"codeqa/internal/vectorstore/qdrant"
)

// app holds the assembled components shared by the answering commands.
type app struct {
	machine   *conversation.Machine
	retriever domain.CodeRetriever
	completer domain.Completer
	sessions  domain.SessionStore
}

func (a *app) Close() error {
	if a.sessions == nil {
		return nil
	}
	return a.sessions.Close()
}

func (a *app) assistant() *service.Assistant {
	return service.NewAssistant(a.machine, a.retriever, a.completer, a.sessions, service.Options{
		MaxConcurrentTurns: cfg.Service.MaxConcurrentTurns,
		TurnTimeout:        cfg.TurnTimeout(),
		MessageLimit:       cfg.Delivery.MessageLimit,
	}, logger)
}

func buildApp(ctx context.Context) (*app, error) {
	emb, err := newEmbedder(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store, err := newStore(cfg)
	if err != nil {
		return nil, err
	}
	if err := prepareIndex(ctx, emb, store); err != nil {
		return nil, err
	}
	completer, err := llm.NewFromConfig(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, err
	}
	machine, err := newMachine(cfg)
	if err != nil {
		return nil, err
	}
	sessions, err := newSessions(ctx, cfg)
	if err != nil {
		return nil, err
	}
	ranker := retrieval.NewRanker(rankerConfig(cfg.Ranker))
	return &app{
		machine:   machine,
		retriever: retrieval.NewVectorRetriever(emb, store, ranker, cfg.Ranker.CandidateMultiplier, logger),
		completer: completer,
		sessions:  sessions,
	}, nil
}

// prepareIndex indexes --repomix in-process when given. Without it the
// configured store must already hold an index, built by an embedder that
// keeps no corpus state.
func prepareIndex(ctx context.Context, emb embedding.Embedder, store vectorstore.Storage) error {
	if repomix == "" {
		if _, ok := store.(*memory.Storage); ok {
			return errors.New("the memory vector store starts empty; pass --repomix or configure qdrant")
		}
		if _, ok := emb.(*tfidf.Embedder); ok {
			return errors.New("the tfidf embedder needs its corpus in-process; pass --repomix")
		}
		return nil
	}
	_, err := runIngest(ctx, repomix, emb, store)
	return err
}

func runIngest(ctx context.Context, path string, emb embedding.Embedder, store vectorstore.Storage) (ingest.Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return ingest.Stats{}, fmt.Errorf("open repomix dump: %w", err)
	}
	defer f.Close()
	docs, err := ingest.ParseRepomix(f)
	if err != nil {
		return ingest.Stats{}, err
	}
	logger.Info("parsed repomix dump", zap.String("path", path), zap.Int("files", len(docs)))

	in := cfg.Ingest
	var symbols ingest.SymbolExtractor
	switch in.Symbols {
	case "treesitter", "":
		symbols = ingest.NewTreeSitterExtractor(logger)
	case "regex":
		symbols = ingest.RegexExtractor{}
	default:
		return ingest.Stats{}, fmt.Errorf("unknown symbol extractor: %s", in.Symbols)
	}
	p := ingest.NewPipeline(
		chunker.NewWindowChunker(in.MaxChunkChars, in.WindowLines, in.GrowLines, in.OverlapLines),
		symbols, emb, store,
		ingest.Options{BatchSize: in.BatchSize, Workers: in.Workers},
		logger)
	return p.Run(ctx, docs)
}

func newEmbedder(ctx context.Context, cfg *config.AppConfig) (embedding.Embedder, error) {
	switch cfg.Embedder.Type {
	case "tfidf", "":
		return tfidf.NewEmbedder(), nil
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			return nil, errors.New("openai embedder config missing")
		}
		return openai.NewClient(openai.Config{
			BaseURL:   cfg.Embedder.OpenAI.BaseURL,
			APIKeyEnv: cfg.Embedder.OpenAI.APIKeyEnv,
			Model:     cfg.Embedder.OpenAI.Model,
			Timeout:   time.Duration(cfg.Embedder.OpenAI.TimeoutSecs) * time.Second,
		}, logger)
	case "genai":
		if cfg.Embedder.GenAI == nil {
			return nil, errors.New("genai embedder config missing")
		}
		return gemini.NewEmbedder(ctx, gemini.Config{
			APIKeyEnv: cfg.Embedder.GenAI.APIKeyEnv,
			Model:     cfg.Embedder.GenAI.Model,
		})
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
}

func newStore(cfg *config.AppConfig) (vectorstore.Storage, error) {
	switch cfg.VectorStore.Type {
	case "memory", "":
		return memory.NewStorage(), nil
	case "qdrant":
		return newQdrant(cfg)
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
	}
}

func newQdrant(cfg *config.AppConfig) (*qdrant.Storage, error) {
	q := cfg.VectorStore.Qdrant
	if q == nil {
		return nil, errors.New("qdrant config missing")
	}
	apiKey := ""
	if q.APIKeyEnv != "" {
		apiKey = os.Getenv(q.APIKeyEnv)
	}
	return qdrant.NewStorage(qdrant.Config{
		URL:        q.URL,
		APIKey:     apiKey,
		Collection: q.Collection,
		Distance:   q.Distance,
		Timeout:    time.Duration(q.TimeoutSecs) * time.Second,
	}, logger), nil
}

func newSessions(ctx context.Context, cfg *config.AppConfig) (domain.SessionStore, error) {
	switch cfg.Sessions.Type {
	case "memory", "":
		return session.NewMemoryStore(), nil
	case "redis":
		r := cfg.Sessions.Redis
		if r == nil {
			return nil, errors.New("redis sessions config missing")
		}
		password := ""
		if r.PasswordEnv != "" {
			password = os.Getenv(r.PasswordEnv)
		}
		return session.NewRedisStore(ctx, session.RedisOptions{
			Addr:      r.Addr,
			Password:  password,
			DB:        r.DB,
			KeyPrefix: r.KeyPrefix,
			TTL:       time.Duration(r.TTLSecs) * time.Second,
		})
	case "sqlite":
		if cfg.Sessions.SQLite == nil {
			return nil, errors.New("sqlite sessions config missing")
		}
		return session.OpenSQLite(cfg.Sessions.SQLite.Path)
	default:
		return nil, fmt.Errorf("unknown session store: %s", cfg.Sessions.Type)
	}
}

func newMachine(cfg *config.AppConfig) (*conversation.Machine, error) {
	c := cfg.Conversation
	prompt := ""
	if c.SystemPromptFile != "" {
		data, err := os.ReadFile(c.SystemPromptFile)
		if err != nil {
			return nil, fmt.Errorf("read system prompt: %w", err)
		}
		prompt = string(data)
	}
	return conversation.New(conversation.Config{
		SystemPrompt: prompt,
		MaxHistory:   c.MaxHistory,
		KeepLast:     c.KeepLast,
		InitialTopK:  c.InitialTopK,
		FollowUpTopK: c.FollowUpTopK,
	}), nil
}

func rankerConfig(c config.RankerConfig) retrieval.RankerConfig {
	rc := retrieval.DefaultRankerConfig()
	if c.KeywordBoost != nil {
		rc.KeywordBoost = *c.KeywordBoost
	}
	if c.BoostWeight != nil {
		rc.BoostWeight = *c.BoostWeight
	}
	if c.AnnotateThreshold != nil {
		rc.AnnotateThreshold = *c.AnnotateThreshold
	}
	return rc
}
