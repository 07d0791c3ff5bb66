package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"typed", &ProviderError{Kind: KindRateLimit}, KindRateLimit},
		{"wrapped typed", fmt.Errorf("turn: %w", &ProviderError{Kind: KindAuth}), KindAuth},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), KindTimeout},
		{"net timeout", timeoutErr{}, KindTimeout},
		{"refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, KindConnection},
		{"dns", &net.DNSError{Err: "no such host", Name: "api.x.ai"}, KindConnection},
		{"openai style 401", errors.New("error, status code: 401, message: Incorrect API key provided"), KindAuth},
		{"openai style 429", errors.New("error, status code: 429, message: Rate limit reached"), KindRateLimit},
		{"gemini style 503", errors.New("Error 503, Message: The model is overloaded., Status: UNAVAILABLE"), KindServer},
		{"status 408", errors.New("status code: 408"), KindTimeout},
		{"status 400", errors.New("status code: 400, message: bad request"), KindClient},
		{"4xx capacity", errors.New("status code: 400, message: capacity exceeded"), KindServer},
		{"overloaded wording", errors.New("overloaded_error: Overloaded"), KindServer},
		{"auth wording", errors.New("invalid api key"), KindAuth},
		{"plain", errors.New("something odd"), KindUnknown},
		{"nil", nil, KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestKindForStatus(t *testing.T) {
	assert.Equal(t, KindAuth, KindForStatus(403, ""))
	assert.Equal(t, KindServer, KindForStatus(500, ""))
	assert.Equal(t, KindServer, KindForStatus(529, ""))
	assert.Equal(t, KindClient, KindForStatus(404, "not found"))
	assert.Equal(t, KindUnknown, KindForStatus(200, ""))
}

func TestWrapProviderError(t *testing.T) {
	err := wrapProviderError("openai:grok", errors.New("status code: 502"))

	var pe *ProviderError
	assert.ErrorAs(t, err, &pe)
	assert.Equal(t, KindServer, pe.Kind)
	assert.Equal(t, 502, pe.StatusCode)
	assert.Equal(t, "openai:grok", pe.Provider)
	assert.Contains(t, err.Error(), "server error (status 502)")
	assert.Nil(t, wrapProviderError("x", nil))
}
