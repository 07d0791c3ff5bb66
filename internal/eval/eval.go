// Package eval answers a fixed list of questions, each in a fresh
// conversation, and records answers with their timings.
package eval

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"codeqa/internal/conversation"
	"codeqa/internal/domain"
	"codeqa/internal/retrieval"
)

// Result is one answered question.
type Result struct {
	Query    string
	Context  string
	Answer   string
	Duration time.Duration
	Err      error
}

// Summary aggregates the successful results of a run.
type Summary struct {
	Answered int
	Failed   int
	Total    time.Duration
	Average  time.Duration
}

type Runner struct {
	machine   *conversation.Machine
	retriever *retrieval.CapturingRetriever
	completer domain.Completer
	log       *zap.Logger
}

func NewRunner(machine *conversation.Machine, retriever domain.CodeRetriever, completer domain.Completer, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		machine:   machine,
		retriever: retrieval.NewCapturingRetriever(retriever),
		completer: completer,
		log:       log,
	}
}

// LoadQueries reads one question per line, skipping blank lines.
func LoadQueries(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if q := strings.TrimSpace(sc.Text()); q != "" {
			out = append(out, q)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read queries: %w", err)
	}
	return out, nil
}

// Run answers every query. A failed query is recorded and the run goes on;
// only a cancelled ctx stops it early.
func (r *Runner) Run(ctx context.Context, queries []string, progress io.Writer) ([]Result, Summary, error) {
	if progress == nil {
		progress = io.Discard
	}
	fmt.Fprintf(progress, "Loaded %d queries. Starting generation...\n\n", len(queries))

	var results []Result
	var sum Summary
	for i, q := range queries {
		if err := ctx.Err(); err != nil {
			return results, sum, err
		}
		fmt.Fprintf(progress, "Processing query %d/%d\nQuery: %s\n\n", i+1, len(queries), q)

		start := time.Now()
		turn, err := r.machine.ProcessTurn(ctx, r.machine.InitialHistory(), q, r.retriever, r.completer)
		res := Result{Query: q, Context: r.retriever.Captured(), Duration: time.Since(start), Err: err}
		if err != nil {
			sum.Failed++
			r.log.Warn("eval query failed", zap.Int("index", i), zap.Error(err))
			fmt.Fprintf(progress, "Failed: %v\n", err)
		} else {
			res.Answer = turn.Response
			sum.Answered++
			sum.Total += res.Duration
			fmt.Fprintf(progress, "Answer:\n%s\n\nResponse time: %.2f seconds\n", res.Answer, res.Duration.Seconds())
		}
		fmt.Fprintln(progress, strings.Repeat("-", 80))
		results = append(results, res)
	}

	if sum.Answered > 0 {
		sum.Average = sum.Total / time.Duration(sum.Answered)
		fmt.Fprintf(progress, "Average response time: %.2f seconds (n=%d)\nTotal processing time: %.2f seconds\n",
			sum.Average.Seconds(), sum.Answered, sum.Total.Seconds())
	}
	return results, sum, nil
}

// WriteCSV writes query,context,answer,response_time_seconds rows. Failed
// queries keep an empty answer.
func WriteCSV(w io.Writer, results []Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"query", "context", "answer", "response_time_seconds"}); err != nil {
		return err
	}
	for _, r := range results {
		if err := cw.Write([]string{r.Query, r.Context, r.Answer, fmt.Sprintf("%.2f", r.Duration.Seconds())}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
