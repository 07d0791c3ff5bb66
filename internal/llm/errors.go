package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"syscall"
)

// ErrConfig marks configuration errors raised while building completers.
var ErrConfig = errors.New("llm configuration error")

// ErrorKind classifies a provider failure.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindAuth
	KindRateLimit
	KindTimeout
	KindConnection
	KindServer
	KindClient
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindRateLimit:
		return "rate_limit"
	case KindTimeout:
		return "timeout"
	case KindConnection:
		return "connection"
	case KindServer:
		return "server"
	case KindClient:
		return "client"
	default:
		return "unknown"
	}
}

// ProviderError is a failure reported by a completion provider.
type ProviderError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s error (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// wrapProviderError tags err with its provider and classification.
func wrapProviderError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Provider: provider, Kind: Classify(err), StatusCode: statusFromMessage(err.Error()), Err: err}
}

var (
	// SDKs embed the HTTP status in their messages in a handful of shapes:
	// "status code: 429", "Error 503, Message: ...", "401 Unauthorized".
	statusPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)status(?:\s*code)?[:=\s]+(\d{3})\b`),
		regexp.MustCompile(`\bError (\d{3}),`),
		regexp.MustCompile(`^(\d{3}) [A-Z][a-zA-Z ]+`),
	}
	capacityWords = []string{"capacity", "overloaded", "resource exhausted", "resource_exhausted", "server is busy"}
	authWords     = []string{"invalid api key", "incorrect api key", "unauthorized", "authentication"}
)

// Classify maps err onto an ErrorKind. It never inspects provider SDK types
// directly so that every adapter shares one policy.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return KindConnection
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindConnection
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindConnection
	}

	msg := err.Error()
	if code := statusFromMessage(msg); code != 0 {
		return KindForStatus(code, msg)
	}
	lower := strings.ToLower(msg)
	for _, w := range capacityWords {
		if strings.Contains(lower, w) {
			return KindServer
		}
	}
	for _, w := range authWords {
		if strings.Contains(lower, w) {
			return KindAuth
		}
	}
	if strings.Contains(lower, "timeout") || strings.Contains(lower, "timed out") {
		return KindTimeout
	}
	if strings.Contains(lower, "connection refused") || strings.Contains(lower, "connection reset") || strings.Contains(lower, "no such host") {
		return KindConnection
	}
	return KindUnknown
}

// KindForStatus classifies an HTTP status code. msg is consulted for
// capacity wording that some providers return with a 4xx status.
func KindForStatus(code int, msg string) ErrorKind {
	switch {
	case code == 401 || code == 403:
		return KindAuth
	case code == 429:
		return KindRateLimit
	case code == 408:
		return KindTimeout
	case code >= 500:
		return KindServer
	case code >= 400:
		lower := strings.ToLower(msg)
		for _, w := range capacityWords {
			if strings.Contains(lower, w) {
				return KindServer
			}
		}
		return KindClient
	default:
		return KindUnknown
	}
}

func statusFromMessage(msg string) int {
	for _, re := range statusPatterns {
		m := re.FindStringSubmatch(msg)
		if len(m) < 2 {
			continue
		}
		code, err := strconv.Atoi(m[1])
		if err == nil && code >= 100 && code <= 599 {
			return code
		}
	}
	return 0
}
