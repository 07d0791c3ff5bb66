package ingest

import (
	"context"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
	"go.uber.org/zap"
)

// Symbols are the type and method names declared in a chunk of code.
type Symbols struct {
	ClassNames  []string
	MethodNames []string
}

// SymbolExtractor finds declared symbols in source text.
type SymbolExtractor interface {
	Extract(ctx context.Context, path, content string) Symbols
}

var (
	classRe = regexp.MustCompile(`(?:public|private|protected|abstract|final)?\s*(?:class|interface|enum|record)\s+([A-Za-z0-9_]+)`)
	// return type is optional so constructors match too
	methodRe = regexp.MustCompile(`(?:public|private|protected|static|final|synchronized)?\s*(?:[\w<>\[\]]+\s+)?([a-zA-Z_][a-zA-Z0-9_]*)\s*\([^)]*\)\s*(?:throws\s+[\w, ]+)?\s*\{`)

	controlWords = map[string]struct{}{
		"if": {}, "for": {}, "while": {}, "switch": {}, "catch": {}, "synchronized": {}, "try": {}, "return": {}, "new": {}, "else": {},
	}
)

// RegexExtractor matches declarations with regular expressions. It works on
// any text, including fragments cut mid-declaration.
type RegexExtractor struct{}

func (RegexExtractor) Extract(_ context.Context, _ string, content string) Symbols {
	var classes, methods nameSet
	for _, m := range classRe.FindAllStringSubmatch(content, -1) {
		classes.add(m[1])
	}
	for _, m := range methodRe.FindAllStringSubmatch(content, -1) {
		if _, ok := controlWords[m[1]]; ok {
			continue
		}
		methods.add(m[1])
	}
	return Symbols{ClassNames: classes.names, MethodNames: methods.names}
}

// TreeSitterExtractor parses Java with tree-sitter and falls back to the
// regex extractor for other files or when parsing fails.
type TreeSitterExtractor struct {
	fallback RegexExtractor
	log      *zap.Logger
}

func NewTreeSitterExtractor(log *zap.Logger) *TreeSitterExtractor {
	if log == nil {
		log = zap.NewNop()
	}
	return &TreeSitterExtractor{log: log}
}

func (e *TreeSitterExtractor) Extract(ctx context.Context, path, content string) Symbols {
	if !strings.HasSuffix(strings.ToLower(path), ".java") {
		return e.fallback.Extract(ctx, path, content)
	}
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(java.GetLanguage())

	src := []byte(content)
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		e.log.Debug("tree-sitter parse failed, using regex", zap.String("path", path), zap.Error(err))
		return e.fallback.Extract(ctx, path, content)
	}
	defer tree.Close()

	var classes, methods nameSet
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "class_declaration", "interface_declaration", "enum_declaration", "record_declaration", "annotation_type_declaration":
			if name := n.ChildByFieldName("name"); name != nil {
				classes.add(name.Content(src))
			}
		case "method_declaration", "constructor_declaration":
			if name := n.ChildByFieldName("name"); name != nil {
				methods.add(name.Content(src))
			}
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(tree.RootNode())

	// window fragments often start inside a class body, which tree-sitter
	// cannot always recover; the regex still finds those declarations
	if len(classes.names) == 0 && len(methods.names) == 0 {
		return e.fallback.Extract(ctx, path, content)
	}
	return Symbols{ClassNames: classes.names, MethodNames: methods.names}
}

// nameSet keeps first-seen order.
type nameSet struct {
	seen  map[string]struct{}
	names []string
}

func (s *nameSet) add(name string) {
	if name == "" {
		return
	}
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	if _, ok := s.seen[name]; ok {
		return
	}
	s.seen[name] = struct{}{}
	s.names = append(s.names, name)
}
