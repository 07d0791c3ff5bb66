package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"codeqa/internal/config"
	"codeqa/internal/logging"
)

var (
	cfgPath string
	verbose bool
	repomix string

	cfg    *config.AppConfig
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "codeqa",
	Short: "Conversational Q&A over an indexed codebase",
	Long: `codeqa answers questions about a source tree. Code is indexed from a
repomix dump into a vector store; each question retrieves the most relevant
fragments and sends them with the conversation to a chat model.

Run "codeqa ingest dump.xml" once, then "codeqa chat", "codeqa bot" or
"codeqa serve".`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		var err error
		if cfgPath == "" {
			cfg, _, err = config.LoadDefault()
		} else {
			cfg, err = config.Load(cfgPath)
		}
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		// the TUI owns the terminal
		logFile := ""
		if cmd.Name() == "chat" && cfg.Log.File == "" {
			logFile = "logs/codeqa.log"
		}
		logger, err = logging.New(cfg.Log, verbose, logFile)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to YAML config (default ./config.yaml or ~/.config/codeqa/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	for _, c := range []*cobra.Command{chatCmd, askCmd, botCmd, serveCmd, evalCmd} {
		c.Flags().StringVar(&repomix, "repomix", "", "Index this repomix dump in-process before answering")
	}

	snapshotCmd.AddCommand(snapshotCreateCmd, snapshotRecoverCmd)
	rootCmd.AddCommand(chatCmd, askCmd, botCmd, serveCmd, ingestCmd, evalCmd, snapshotCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
