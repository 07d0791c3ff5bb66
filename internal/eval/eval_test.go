package eval

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeqa/internal/conversation"
	"codeqa/internal/domain"
)

type echoRetriever struct{ topKs []int }

func (e *echoRetriever) Retrieve(_ context.Context, query string, topK int) (string, error) {
	e.topKs = append(e.topKs, topK)
	return "ctx for " + query, nil
}

type fakeCompleter struct {
	CompleteFunc func(ctx context.Context, h domain.History) (string, error)
}

func (f *fakeCompleter) Complete(ctx context.Context, h domain.History) (string, error) {
	return f.CompleteFunc(ctx, h)
}

func TestLoadQueries(t *testing.T) {
	qs, err := LoadQueries(strings.NewReader("  first  \n\n\nsecond\n   \n"))

	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, qs)
}

func TestRun_FreshHistoryPerQuery(t *testing.T) {
	r := &echoRetriever{}
	var historyLens []int
	c := &fakeCompleter{CompleteFunc: func(_ context.Context, h domain.History) (string, error) {
		historyLens = append(historyLens, len(h))
		if strings.Contains(h[len(h)-1].Content, "broken") {
			return "", errors.New("provider down")
		}
		return "answer", nil
	}}
	var progress bytes.Buffer

	results, sum, err := NewRunner(conversation.New(conversation.Config{}), r, c, nil).
		Run(context.Background(), []string{"one", "broken", "two"}, &progress)

	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 2}, historyLens)
	assert.Equal(t, []int{50, 50, 50}, r.topKs)
	require.Len(t, results, 3)
	assert.Equal(t, "ctx for one", results[0].Context)
	assert.Equal(t, "answer", results[0].Answer)
	assert.Error(t, results[1].Err)
	assert.Equal(t, 2, sum.Answered)
	assert.Equal(t, 1, sum.Failed)
	assert.Contains(t, progress.String(), "Processing query 3/3")
	assert.Contains(t, progress.String(), "Average response time")
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, _, err := NewRunner(conversation.New(conversation.Config{}), &echoRetriever{}, &fakeCompleter{}, nil).
		Run(ctx, []string{"a"}, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSV(&buf, []Result{{Query: "q, with comma", Context: "c\nmultiline", Answer: "a"}})
	require.NoError(t, err)

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"query", "context", "answer", "response_time_seconds"},
		{"q, with comma", "c\nmultiline", "a", "0.00"},
	}, rows)
}
