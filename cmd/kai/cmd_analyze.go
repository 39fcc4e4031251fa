package main

import (
	"context"
	"fmt"

	"kai/internal/analyzer"

	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Rebuild the project analysis cache",
	Args:  cobra.NoArgs,
	RunE:  runAnalyze,
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	fs := newFS()
	client, err := newModelClient(ctx)
	if err != nil {
		return err
	}

	a := analyzer.New(fs, client, cfg.Analysis.CacheFilePath)
	cache, err := a.Analyze(ctx, nil)
	if err != nil {
		return err
	}

	fmt.Printf("analyzed %d files\n", len(cache.Entries))
	return nil
}
