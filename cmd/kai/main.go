// Package main implements the kai CLI.
//
// This file is the entry point and command registration hub; each
// subcommand lives in its own cmd_*.go file.
//
// # File Index
//
//   - main.go               - entry point, rootCmd, global flags, init()
//   - cmd_chat.go            - chatCmd: append a message, call the model, append the reply
//   - cmd_consolidate.go     - consolidateCmd: run a full consolidation pass
//   - cmd_analyze.go         - analyzeCmd: rebuild the analysis cache
//   - cmd_context_mode.go    - contextModeCmd: get/set the persisted context mode
//   - cmd_list.go            - listCmd: list conversation logs
//   - cmd_delete.go          - deleteCmd: remove conversation logs after confirmation
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"kai/internal/config"
	"kai/internal/logging"
	"kai/internal/model"
	"kai/internal/projectfs"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	verbose   bool
	workspace string
	timeout   time.Duration

	console *zap.Logger
	cfg     *config.Config
	fsRoot  string
)

var rootCmd = &cobra.Command{
	Use:   "kai",
	Short: "Kai - a local conversation-driven coding assistant",
	Long: `Kai turns a conversation into file operations: plan, generate, apply,
then verify with feedback loops, all against a project's own files.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ws := workspace
		if ws == "" {
			var err error
			ws, err = os.Getwd()
			if err != nil {
				return err
			}
		} else if abs, err := filepath.Abs(ws); err == nil {
			ws = abs
		}
		fsRoot = ws

		var err error
		console, err = logging.NewConsole(verbose)
		if err != nil {
			return fmt.Errorf("initialize console logger: %w", err)
		}

		loaded, err := config.Load(filepath.Join(ws, ".kai", "config.yaml"))
		if err != nil {
			return err
		}
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded

		return logging.Initialize(ws, cfg.Logging.DebugMode, cfg.Logging.Categories, cfg.Logging.JSONFormat)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if console != nil {
			_ = console.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose console logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "project root (default: current directory)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "operation timeout")

	rootCmd.AddCommand(chatCmd, consolidateCmd, analyzeCmd, contextModeCmd, listCmd, deleteCmd)
}

// newFS returns a ProjectFS rooted at the resolved workspace.
func newFS() *projectfs.FS {
	return projectfs.New(fsRoot)
}

// newModelClient builds Kai's primary ModelClient from cfg, which already
// carries the required API key from PRIMARY_MODEL_API_KEY.
func newModelClient(ctx context.Context) (model.Client, error) {
	policy := model.RetryPolicy{
		MaxRetries:  cfg.Model.GenerationMaxRetries,
		BaseDelayMs: cfg.Model.GenerationRetryBaseDelay,
	}
	return model.NewGenAIClient(ctx, cfg.APIKey, cfg.Model.PrimaryName, cfg.Model.SecondaryName, cfg.Model.MaxOutputTokens, policy)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "kai: %v\n", err)
		os.Exit(1)
	}
}
