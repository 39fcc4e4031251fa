package main

import (
	"context"
	"fmt"

	"kai/internal/consolidation"
	"kai/internal/contextbuilder"
	"kai/internal/convlog"

	"github.com/spf13/cobra"
)

var consolidateCmd = &cobra.Command{
	Use:   "consolidate <name>",
	Short: "Run a full consolidation pass for a conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runConsolidate,
}

func runConsolidate(cmd *cobra.Command, args []string) error {
	name := args[0]

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	fs := newFS()
	client, err := newModelClient(ctx)
	if err != nil {
		return err
	}

	log, err := convlog.Open(fs, cfg.Project.ChatsDir, name)
	if err != nil {
		return err
	}

	builder := contextbuilder.New(fs, client)
	contextResult, err := buildChatContext(ctx, fs, builder, client)
	if err != nil {
		return err
	}

	engine := consolidation.NewEngine(fs, client, cfg)
	result := engine.RunPass(ctx, log, contextResult.Text)

	if result.Apply != nil {
		for _, outcome := range result.Apply.PerFile {
			fmt.Printf("%-8s %s\n", outcome.Outcome, outcome.Path)
		}
	}
	fmt.Printf("consolidation pass: %s (retries used: %d)\n", result.State, result.RetriesUsed)

	if result.State == consolidation.StateFailed {
		return result.Err
	}
	if result.State == consolidation.StateExhausted {
		return fmt.Errorf("consolidation pass exhausted autofix_iterations without success")
	}
	return nil
}
