// Package httpapi exposes the assistant as a small JSON chat API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"codeqa/internal/service"
)

const maxBodyBytes = 64 << 10

// AssistantPort is the subset of service.Assistant the API needs.
type AssistantPort interface {
	Ask(ctx context.Context, key, query string) (service.Reply, error)
	Clear(ctx context.Context, key string) (bool, error)
}

type askRequest struct {
	Message string `json:"message"`
}

type askResponse struct {
	Reply           string   `json:"reply"`
	Chunks          []string `json:"chunks"`
	Trimmed         bool     `json:"trimmed"`
	NewConversation bool     `json:"new_conversation"`
}

type clearResponse struct {
	Cleared bool `json:"cleared"`
}

type Handler struct {
	assistant AssistantPort
	log       *zap.Logger
}

// NewRouter wires middleware and routes.
func NewRouter(assistant AssistantPort, limiter *RateLimiter, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handler{assistant: assistant, log: log}

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(RequestID)
	r.Use(AccessLog(log))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1/sessions/{sessionID}", func(r chi.Router) {
		if limiter != nil {
			r.Use(limiter.Middleware)
		}
		r.Post("/messages", h.Ask)
		r.Delete("/", h.Clear)
	})
	return r
}

func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "sessionID")
	var req askRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Request body must be JSON with a message field.", r)
		return
	}

	reply, err := h.assistant.Ask(r.Context(), key, req.Message)
	switch {
	case errors.Is(err, service.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, "EMPTY_MESSAGE", "Please ask a question about the codebase.", r)
		return
	case err != nil:
		h.log.Error("turn failed", zap.String("session", key), zap.Error(err))
		writeError(w, http.StatusBadGateway, "TURN_FAILED", "Sorry, something went wrong. Please wait and try again.", r)
		return
	}
	writeJSON(w, http.StatusOK, askResponse{
		Reply:           reply.Text,
		Chunks:          reply.Chunks,
		Trimmed:         reply.Trimmed,
		NewConversation: reply.NewConversation,
	})
}

func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "sessionID")
	existed, err := h.assistant.Clear(r.Context(), key)
	if err != nil {
		h.log.Error("clear failed", zap.String("session", key), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "CLEAR_FAILED", "Could not clear the conversation.", r)
		return
	}
	writeJSON(w, http.StatusOK, clearResponse{Cleared: existed})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string, r *http.Request) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":       code,
			"message":    message,
			"request_id": r.Header.Get(requestIDHeader),
		},
	})
}
