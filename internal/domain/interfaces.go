package domain

import "context"

// Role tags who authored a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single role-tagged entry of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// History is the ordered memory of one conversation. Element 0 is always the
// system message.
type History []Message

// Clone returns a copy that does not share the backing array with h.
func (h History) Clone() History {
	out := make(History, len(h))
	copy(out, h)
	return out
}

// Document is a single source file loaded into the ingestion pipeline.
type Document struct {
	ID      string
	Path    string
	Content string
}

// Chunk kinds stored in the vector index payload.
const (
	KindFullFile     = "full_file"
	KindFileFragment = "file_fragment"
)

// CodeChunk is a fragment of a source file used for indexing.
type CodeChunk struct {
	ID          string
	Path        string
	Content     string
	Kind        string
	StartLine   int
	EndLine     int
	Lines       string
	ClassNames  []string
	MethodNames []string
}

// SearchResult represents a matching chunk with a similarity score.
type SearchResult struct {
	Chunk CodeChunk
	Score float64
}

// Candidate is one retrieved code fragment considered by the ranker.
type Candidate struct {
	Score       float64
	Path        string
	Lines       string
	Content     string
	ClassNames  []string
	MethodNames []string
}

// CandidateFromResult converts a vector search hit into a ranking candidate.
func CandidateFromResult(r SearchResult) Candidate {
	lines := r.Chunk.Lines
	if lines == "" {
		lines = "full file"
	}
	return Candidate{
		Score:       r.Score,
		Path:        r.Chunk.Path,
		Lines:       lines,
		Content:     r.Chunk.Content,
		ClassNames:  r.Chunk.ClassNames,
		MethodNames: r.Chunk.MethodNames,
	}
}

// CodeRetriever returns pre-formatted code context for a question.
type CodeRetriever interface {
	Retrieve(ctx context.Context, query string, topK int) (string, error)
}

// Completer is a stateless single-shot chat completion.
type Completer interface {
	Complete(ctx context.Context, messages History) (string, error)
}

// Chunker splits source documents into chunks suitable for indexing.
type Chunker interface {
	Chunk(document Document) ([]CodeChunk, error)
}

// SessionStore keeps one History per conversation key.
type SessionStore interface {
	Load(ctx context.Context, key string) (History, bool, error)
	Save(ctx context.Context, key string, history History) error
	Delete(ctx context.Context, key string) (bool, error)
	Close() error
}
