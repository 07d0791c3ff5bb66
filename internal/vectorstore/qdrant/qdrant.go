// Package qdrant is a REST client for a Qdrant collection of code chunks.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"codeqa/internal/domain"
)

// pointNamespace seeds deterministic point IDs; Qdrant only accepts UUIDs
// or unsigned integers.
var pointNamespace = uuid.MustParse("7d3c4c8e-5f0a-4e8a-9a57-2f1d2c6b9e11")

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Distance   string
	Timeout    time.Duration
}

type Storage struct {
	url        string
	apiKey     string
	collection string
	distance   string
	client     *http.Client
	log        *zap.Logger
}

func NewStorage(cfg Config, log *zap.Logger) *Storage {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Distance == "" {
		cfg.Distance = "Cosine"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Storage{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		distance:   cfg.Distance,
		client:     &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}
}

// payload mirrors the layout written by the original Python ingestion, so
// collections restored from its snapshots stay searchable.
type payload struct {
	ChunkID     string   `json:"chunk_id,omitempty"`
	Path        string   `json:"path"`
	Content     string   `json:"content"`
	Metadata    metadata `json:"metadata"`
	ClassNames  []string `json:"class_names"`
	MethodNames []string `json:"method_names"`
}

type metadata struct {
	Path      string `json:"path,omitempty"`
	Type      string `json:"type,omitempty"`
	Lines     string `json:"lines,omitempty"`
	StartLine int    `json:"start_line,omitempty"`
	EndLine   int    `json:"end_line,omitempty"`
}

type point struct {
	ID      string    `json:"id"`
	Vector  []float64 `json:"vector"`
	Payload payload   `json:"payload"`
}

// PointID maps a chunk ID to its stable Qdrant point ID.
func PointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

// Init creates the collection unless it already exists.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	status, err := s.do(ctx, http.MethodGet, s.collectionURL(""), nil, nil)
	if err == nil {
		return nil
	}
	if status != http.StatusNotFound {
		return err
	}
	body := map[string]any{
		"vectors": map[string]any{"size": dimension, "distance": s.distance},
	}
	if _, err := s.do(ctx, http.MethodPut, s.collectionURL(""), body, nil); err != nil {
		return fmt.Errorf("create collection %s: %w", s.collection, err)
	}
	s.log.Info("created qdrant collection", zap.String("collection", s.collection), zap.Int("dimension", dimension))
	return nil
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.CodeChunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	points := make([]point, len(chunks))
	for i, ch := range chunks {
		points[i] = point{
			ID:     PointID(ch.ID),
			Vector: vectors[i],
			Payload: payload{
				ChunkID: ch.ID,
				Path:    ch.Path,
				Content: ch.Content,
				Metadata: metadata{
					Path:      ch.Path,
					Type:      ch.Kind,
					Lines:     ch.Lines,
					StartLine: ch.StartLine,
					EndLine:   ch.EndLine,
				},
				ClassNames:  nonNil(ch.ClassNames),
				MethodNames: nonNil(ch.MethodNames),
			},
		}
	}
	_, err := s.do(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), map[string]any{"points": points}, nil)
	return err
}

func (s *Storage) Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload payload `json:"payload"`
		} `json:"result"`
	}
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/search"), req, &resp); err != nil {
		return nil, err
	}
	results := make([]domain.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		p := r.Payload
		results = append(results, domain.SearchResult{
			Score: r.Score,
			Chunk: domain.CodeChunk{
				ID:          p.ChunkID,
				Path:        p.Path,
				Content:     p.Content,
				Kind:        p.Metadata.Type,
				Lines:       p.Metadata.Lines,
				StartLine:   p.Metadata.StartLine,
				EndLine:     p.Metadata.EndLine,
				ClassNames:  p.ClassNames,
				MethodNames: p.MethodNames,
			},
		})
	}
	return results, nil
}

// Clear drops the collection. A missing collection is not an error.
func (s *Storage) Clear(ctx context.Context) error {
	status, err := s.do(ctx, http.MethodDelete, s.collectionURL(""), nil, nil)
	if err != nil && status != http.StatusNotFound {
		return err
	}
	return nil
}

// CreateSnapshot snapshots the collection and downloads it into dir,
// returning the local file path.
func (s *Storage) CreateSnapshot(ctx context.Context, dir string) (string, error) {
	var resp struct {
		Result struct {
			Name string `json:"name"`
		} `json:"result"`
	}
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL("/snapshots?wait=true"), nil, &resp); err != nil {
		return "", fmt.Errorf("create snapshot: %w", err)
	}
	name := resp.Result.Name
	if name == "" {
		return "", errors.New("create snapshot: empty snapshot name")
	}

	req, err := s.newRequest(ctx, http.MethodGet, s.collectionURL("/snapshots/"+url.PathEscape(name)), nil, "")
	if err != nil {
		return "", err
	}
	res, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return "", fmt.Errorf("download snapshot %s: %s", name, res.Status)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, res.Body); err != nil {
		_ = f.Close()
		return "", err
	}
	return path, f.Close()
}

// RecoverSnapshot restores the collection from a location the Qdrant
// server can reach (file:// or http(s):// URL).
func (s *Storage) RecoverSnapshot(ctx context.Context, location string) error {
	_, err := s.do(ctx, http.MethodPut, s.collectionURL("/snapshots/recover?wait=true"), map[string]any{"location": location}, nil)
	return err
}

// UploadSnapshot restores the collection from a snapshot file on this machine.
func (s *Storage) UploadSnapshot(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("snapshot", filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := s.newRequest(ctx, http.MethodPost, s.collectionURL("/snapshots/upload?wait=true&priority=snapshot"), &buf, mw.FormDataContentType())
	if err != nil {
		return err
	}
	res, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return fmt.Errorf("qdrant snapshot upload failed: %s", res.Status)
	}
	return nil
}

func (s *Storage) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, url.PathEscape(s.collection), suffix)
}

func (s *Storage) newRequest(ctx context.Context, method, u string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	return req, nil
}

// do sends an optional JSON body and decodes an optional JSON response. The
// status code is returned alongside errors so callers can tolerate 404s.
func (s *Storage) do(ctx context.Context, method, u string, in, out any) (int, error) {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	req, err := s.newRequest(ctx, method, u, body, contentType)
	if err != nil {
		return 0, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("qdrant %s %s failed: %s: %s", method, u, resp.Status, bytes.TrimSpace(msg))
	}
	if out != nil {
		return resp.StatusCode, json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
