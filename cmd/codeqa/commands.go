package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"codeqa/internal/discord"
	"codeqa/internal/eval"
	"codeqa/internal/httpapi"
	"codeqa/internal/metrics"
	"codeqa/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive terminal chat",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		m := tui.New(cmd.Context(), a.assistant(), "local")
		_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer one question and exit",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		reply, err := a.assistant().Ask(cmd.Context(), "cli", strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), reply.Text)
		return nil
	},
}

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the Discord bot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		token := os.Getenv(cfg.Discord.TokenEnv)
		if token == "" {
			return fmt.Errorf("missing Discord token in env %s", cfg.Discord.TokenEnv)
		}
		a, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		var rec metrics.Recorder = metrics.Nop{}
		if cfg.Metrics.Enabled {
			fr, err := metrics.NewFileRecorder(cfg.Metrics.File, os.Getenv(cfg.Metrics.SaltEnv))
			if err != nil {
				return err
			}
			defer fr.Close()
			rec = fr
		}
		return discord.NewBot(a.assistant(), rec, cfg.Discord.Prefix, logger).Run(cmd.Context(), token)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP chat API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		limiter := httpapi.NewRateLimiter(cfg.HTTP.RatePerSecond, cfg.HTTP.Burst)
		srv := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           httpapi.NewRouter(a.assistant(), limiter, logger),
			ReadHeaderTimeout: 10 * time.Second,
		}
		errCh := make(chan error, 1)
		go func() {
			logger.Info("http api listening", zap.String("addr", srv.Addr))
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			return err
		case <-cmd.Context().Done():
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <repomix.xml>",
	Short: "Index a repomix dump into the configured vector store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		emb, err := newEmbedder(ctx, cfg)
		if err != nil {
			return err
		}
		if emb.Name() == "tfidf" {
			logger.Warn("tfidf vectors are only meaningful within this process; use an API embedder for a persistent index")
		}
		store, err := newStore(cfg)
		if err != nil {
			return err
		}
		stats, err := runIngest(ctx, args[0], emb, store)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d files into %d chunks (%d fragments, dim %d) in %s\n",
			stats.Files, stats.Chunks, stats.Fragments, stats.Dimension, stats.Elapsed.Round(time.Millisecond))
		return nil
	},
}

var (
	evalInput  string
	evalOutput string
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Answer a file of questions and write a CSV report",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(evalInput)
		if err != nil {
			return fmt.Errorf("open queries: %w", err)
		}
		queries, err := eval.LoadQueries(f)
		f.Close()
		if err != nil {
			return err
		}

		a, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		results, sum, err := eval.NewRunner(a.machine, a.retriever, a.completer, logger).Run(cmd.Context(), queries, cmd.OutOrStdout())
		if err != nil {
			return err
		}

		out := evalOutput
		if out == "" {
			out = filepath.Join(filepath.Dir(evalInput), "generated_answers_"+time.Now().Format("20060102_150405")+".csv")
		}
		w, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create report: %w", err)
		}
		defer w.Close()
		if err := eval.WriteCSV(w, results); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Generation complete: %d answered, %d failed.\nResults saved to: %s\n", sum.Answered, sum.Failed, out)
		return nil
	},
}

func init() {
	evalCmd.Flags().StringVar(&evalInput, "input", "data/eval_dataset/questions.txt", "File with one question per line")
	evalCmd.Flags().StringVar(&evalOutput, "output", "", "CSV report path (default next to the input, timestamped)")
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Export or import the Qdrant collection",
}

var snapshotDir string

var snapshotCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a collection snapshot and download it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := newQdrant(cfg)
		if err != nil {
			return err
		}
		path, err := q.CreateSnapshot(cmd.Context(), snapshotDir)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Snapshot saved to %s\n", path)
		return nil
	},
}

var snapshotRecoverCmd = &cobra.Command{
	Use:   "recover <file-or-url>",
	Short: "Restore the collection from a local snapshot file or a URL Qdrant can reach",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := newQdrant(cfg)
		if err != nil {
			return err
		}
		src := args[0]
		if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") || strings.HasPrefix(src, "file://") {
			err = q.RecoverSnapshot(cmd.Context(), src)
		} else {
			err = q.UploadSnapshot(cmd.Context(), src)
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Snapshot restored.")
		return nil
	},
}

func init() {
	snapshotCreateCmd.Flags().StringVar(&snapshotDir, "dir", "snapshots", "Directory to download the snapshot into")
}
