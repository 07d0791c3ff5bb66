// Package metrics records usage events as JSON lines.
package metrics

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Invocation describes one handled command.
type Invocation struct {
	Command         string
	UserID          string
	Success         bool
	Duration        time.Duration
	QueryChars      int
	NewConversation bool
	ResponseChunks  int
	HistoryTrimmed  bool
	HistoryExisted  bool
	// Reason is set on failures, e.g. empty_query or the error kind.
	Reason string
}

// Recorder is where transports report usage.
type Recorder interface {
	Startup(botUser string)
	NewConversation(userID string)
	CommandInvocation(inv Invocation)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Startup(string)               {}
func (Nop) NewConversation(string)       {}
func (Nop) CommandInvocation(Invocation) {}

// FileRecorder appends one JSON object per event. User IDs are replaced by
// a salted hash before they are written.
type FileRecorder struct {
	log  *zap.Logger
	salt string
	file *os.File
}

// NewFileRecorder opens path for appending.
func NewFileRecorder(path, salt string) (*FileRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create metrics dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open metrics file: %w", err)
	}
	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		TimeKey:    "timestamp",
		MessageKey: "event",
		EncodeTime: zapcore.ISO8601TimeEncoder,
		LineEnding: zapcore.DefaultLineEnding,
	})
	core := zapcore.NewCore(enc, zapcore.AddSync(f), zapcore.InfoLevel)
	return &FileRecorder{log: zap.New(core), salt: salt, file: f}, nil
}

func newRecorder(log *zap.Logger, salt string) *FileRecorder {
	return &FileRecorder{log: log, salt: salt}
}

// Anonymize returns a stable pseudonym for userID.
func Anonymize(salt, userID string) string {
	sum := sha256.Sum256([]byte(salt + userID))
	return hex.EncodeToString(sum[:])[:16]
}

func (r *FileRecorder) Startup(botUser string) {
	r.log.Info("bot_startup", zap.String("bot_user", botUser))
}

func (r *FileRecorder) NewConversation(userID string) {
	r.log.Info("new_conversation", zap.String("user_id", Anonymize(r.salt, userID)))
}

func (r *FileRecorder) CommandInvocation(inv Invocation) {
	fields := []zap.Field{
		zap.String("command", inv.Command),
		zap.String("user_id", Anonymize(r.salt, inv.UserID)),
		zap.Bool("success", inv.Success),
		zap.Float64("duration_seconds", roundMillis(inv.Duration)),
	}
	switch inv.Command {
	case "clear":
		fields = append(fields, zap.Bool("history_existed_before_clear", inv.HistoryExisted))
	default:
		if inv.QueryChars > 0 {
			fields = append(fields, zap.Int("query_char_count", inv.QueryChars), zap.Bool("new_conversation", inv.NewConversation))
		}
		if inv.Success {
			fields = append(fields, zap.Int("response_chunks", inv.ResponseChunks), zap.Bool("history_trimmed", inv.HistoryTrimmed))
		}
	}
	if !inv.Success && inv.Reason != "" {
		fields = append(fields, zap.String("error_reason", inv.Reason))
	}
	r.log.Info("command_invocation", fields...)
}

// Close flushes buffered events and closes the file.
func (r *FileRecorder) Close() error {
	if err := r.log.Sync(); err != nil {
		return err
	}
	if r.file == nil {
		return nil
	}
	return r.file.Close()
}

func roundMillis(d time.Duration) float64 {
	return float64(d.Milliseconds()) / 1000
}
