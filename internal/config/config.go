package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ProviderConfig configures one completion provider.
type ProviderConfig struct {
	// Provider is one of openai, claude, gemini.
	Provider    string   `yaml:"provider"`
	BaseURL     string   `yaml:"base_url,omitempty"`
	APIKeyEnv   string   `yaml:"api_key_env"`
	Model       string   `yaml:"model"`
	Temperature *float32 `yaml:"temperature,omitempty"`
	MaxTokens   int      `yaml:"max_tokens,omitempty"`
	TimeoutSecs int      `yaml:"timeout_secs"`
}

// LLMConfig holds the primary provider and an optional fallback.
type LLMConfig struct {
	Primary   ProviderConfig  `yaml:"primary"`
	Secondary *ProviderConfig `yaml:"secondary,omitempty"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// GenAIEmbedderConfig configures Gemini embeddings.
type GenAIEmbedderConfig struct {
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string                `yaml:"type"`
	OpenAI *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
	GenAI  *GenAIEmbedderConfig  `yaml:"genai,omitempty"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKeyEnv   string `yaml:"api_key_env,omitempty"`
	Collection  string `yaml:"collection"`
	Distance    string `yaml:"distance"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// ConversationConfig bounds history and retrieval depth.
type ConversationConfig struct {
	SystemPromptFile string `yaml:"system_prompt_file,omitempty"`
	MaxHistory       int    `yaml:"max_history"`
	KeepLast         int    `yaml:"keep_last"`
	InitialTopK      int    `yaml:"initial_top_k"`
	FollowUpTopK     int    `yaml:"follow_up_top_k"`
}

// RankerConfig holds the boost constants. Unset constants take their defaults;
// an explicit 0 is kept.
type RankerConfig struct {
	KeywordBoost        *float64 `yaml:"keyword_boost,omitempty"`
	BoostWeight         *float64 `yaml:"boost_weight,omitempty"`
	AnnotateThreshold   *float64 `yaml:"annotate_threshold,omitempty"`
	CandidateMultiplier int      `yaml:"candidate_multiplier"`
}

type DeliveryConfig struct {
	MessageLimit int `yaml:"message_limit"`
}

// ServiceConfig caps concurrent turns and bounds each one.
type ServiceConfig struct {
	MaxConcurrentTurns int `yaml:"max_concurrent_turns"`
	TurnTimeoutSecs    int `yaml:"turn_timeout_secs"`
}

type RedisConfig struct {
	Addr        string `yaml:"addr"`
	PasswordEnv string `yaml:"password_env,omitempty"`
	DB          int    `yaml:"db"`
	KeyPrefix   string `yaml:"key_prefix"`
	TTLSecs     int    `yaml:"ttl_secs"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// SessionsConfig selects where conversation histories live.
type SessionsConfig struct {
	Type   string        `yaml:"type"`
	Redis  *RedisConfig  `yaml:"redis,omitempty"`
	SQLite *SQLiteConfig `yaml:"sqlite,omitempty"`
}

// IngestConfig controls how source files become chunks.
type IngestConfig struct {
	MaxChunkChars int `yaml:"max_chunk_chars"`
	WindowLines   int `yaml:"window_lines"`
	GrowLines     int `yaml:"grow_lines"`
	OverlapLines  int `yaml:"overlap_lines"`
	BatchSize     int `yaml:"batch_size"`
	Workers       int `yaml:"workers"`
	// Symbols is treesitter or regex.
	Symbols string `yaml:"symbols"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	File    string `yaml:"file"`
	SaltEnv string `yaml:"salt_env"`
}

type DiscordConfig struct {
	TokenEnv string `yaml:"token_env"`
	Prefix   string `yaml:"prefix"`
}

type HTTPConfig struct {
	Addr          string  `yaml:"addr"`
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
	// File receives logs instead of stderr; the TUI always logs to a file.
	File string `yaml:"file,omitempty"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	LLM          LLMConfig          `yaml:"llm"`
	Embedder     EmbedderConfig     `yaml:"embedder"`
	VectorStore  VectorStoreConfig  `yaml:"vector_store"`
	Conversation ConversationConfig `yaml:"conversation"`
	Ranker       RankerConfig       `yaml:"ranker"`
	Delivery     DeliveryConfig     `yaml:"delivery"`
	Service      ServiceConfig      `yaml:"service"`
	Sessions     SessionsConfig     `yaml:"sessions"`
	Ingest       IngestConfig       `yaml:"ingest"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Discord      DiscordConfig      `yaml:"discord"`
	HTTP         HTTPConfig         `yaml:"http"`
	Log          LogConfig          `yaml:"log"`
}

// TurnTimeout returns the per-turn deadline.
func (c *AppConfig) TurnTimeout() time.Duration {
	return time.Duration(c.Service.TurnTimeoutSecs) * time.Second
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/codeqa/config.yaml.
// If neither exists, it writes defaults to ~/.config/codeqa/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "codeqa", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		LLM: LLMConfig{Primary: ProviderConfig{
			Provider:  "openai",
			BaseURL:   "https://api.x.ai/v1",
			APIKeyEnv: "XAI_API_KEY",
			Model:     "grok-4-1-fast-reasoning",
		}},
		Embedder:    EmbedderConfig{Type: "tfidf"},
		VectorStore: VectorStoreConfig{Type: "memory"},
		Sessions:    SessionsConfig{Type: "memory"},
		Ingest:      IngestConfig{Symbols: "treesitter"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	applyProviderDefaults(&cfg.LLM.Primary)
	if cfg.LLM.Secondary != nil {
		applyProviderDefaults(cfg.LLM.Secondary)
	}

	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "tfidf"
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
	}
	if cfg.Embedder.Type == "genai" {
		if cfg.Embedder.GenAI == nil {
			cfg.Embedder.GenAI = &GenAIEmbedderConfig{}
		}
		if cfg.Embedder.GenAI.APIKeyEnv == "" {
			cfg.Embedder.GenAI.APIKeyEnv = "GEMINI_API_KEY"
		}
		if cfg.Embedder.GenAI.Model == "" {
			cfg.Embedder.GenAI.Model = "gemini-embedding-001"
		}
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	if cfg.VectorStore.Type == "qdrant" {
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		q := cfg.VectorStore.Qdrant
		if q.URL == "" {
			q.URL = "http://localhost:6333"
		}
		if q.Collection == "" {
			q.Collection = "hytale_codebase"
		}
		if q.Distance == "" {
			q.Distance = "Cosine"
		}
		if q.TimeoutSecs == 0 {
			q.TimeoutSecs = 30
		}
	}

	c := &cfg.Conversation
	if c.MaxHistory == 0 {
		c.MaxHistory = 12
	}
	if c.KeepLast == 0 {
		c.KeepLast = 8
	}
	if c.InitialTopK == 0 {
		c.InitialTopK = 50
	}
	if c.FollowUpTopK == 0 {
		c.FollowUpTopK = 10
	}

	r := &cfg.Ranker
	if r.KeywordBoost == nil {
		r.KeywordBoost = ptr(0.15)
	}
	if r.BoostWeight == nil {
		r.BoostWeight = ptr(0.3)
	}
	if r.AnnotateThreshold == nil {
		r.AnnotateThreshold = ptr(0.01)
	}
	if r.CandidateMultiplier == 0 {
		r.CandidateMultiplier = 3
	}

	if cfg.Delivery.MessageLimit == 0 {
		cfg.Delivery.MessageLimit = 1800
	}
	if cfg.Service.MaxConcurrentTurns == 0 {
		cfg.Service.MaxConcurrentTurns = 4
	}
	if cfg.Service.TurnTimeoutSecs == 0 {
		cfg.Service.TurnTimeoutSecs = 120
	}

	if cfg.Sessions.Type == "" {
		cfg.Sessions.Type = "memory"
	}
	if cfg.Sessions.Type == "redis" {
		if cfg.Sessions.Redis == nil {
			cfg.Sessions.Redis = &RedisConfig{}
		}
		if cfg.Sessions.Redis.Addr == "" {
			cfg.Sessions.Redis.Addr = "localhost:6379"
		}
		if cfg.Sessions.Redis.KeyPrefix == "" {
			cfg.Sessions.Redis.KeyPrefix = "codeqa:session:"
		}
	}
	if cfg.Sessions.Type == "sqlite" {
		if cfg.Sessions.SQLite == nil {
			cfg.Sessions.SQLite = &SQLiteConfig{}
		}
		if cfg.Sessions.SQLite.Path == "" {
			cfg.Sessions.SQLite.Path = "codeqa-sessions.db"
		}
	}

	in := &cfg.Ingest
	if in.MaxChunkChars == 0 {
		in.MaxChunkChars = 12000
	}
	if in.WindowLines == 0 {
		in.WindowLines = 800
	}
	if in.GrowLines == 0 {
		in.GrowLines = 50
	}
	if in.OverlapLines == 0 {
		in.OverlapLines = 400
	}
	if in.BatchSize == 0 {
		in.BatchSize = 100
	}
	if in.Workers == 0 {
		in.Workers = 4
	}
	if in.Symbols == "" {
		in.Symbols = "treesitter"
	}

	if cfg.Metrics.File == "" {
		cfg.Metrics.File = "logs/usage_metrics.jsonl"
	}
	if cfg.Metrics.SaltEnv == "" {
		cfg.Metrics.SaltEnv = "METRICS_SALT"
	}
	if cfg.Discord.TokenEnv == "" {
		cfg.Discord.TokenEnv = "DISCORD_TOKEN"
	}
	if cfg.Discord.Prefix == "" {
		cfg.Discord.Prefix = "!"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.RatePerSecond == 0 {
		cfg.HTTP.RatePerSecond = 1
	}
	if cfg.HTTP.Burst == 0 {
		cfg.HTTP.Burst = 5
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func applyProviderDefaults(p *ProviderConfig) {
	if p.Provider == "" {
		p.Provider = "openai"
	}
	if p.APIKeyEnv == "" {
		switch p.Provider {
		case "openai":
			p.APIKeyEnv = "XAI_API_KEY"
		case "claude":
			p.APIKeyEnv = "ANTHROPIC_API_KEY"
		case "gemini":
			p.APIKeyEnv = "GEMINI_API_KEY"
		}
	}
	if p.Temperature == nil {
		p.Temperature = ptr[float32](0.2)
	}
	if p.TimeoutSecs == 0 {
		p.TimeoutSecs = 90
	}
}

func ptr[T any](v T) *T { return &v }
