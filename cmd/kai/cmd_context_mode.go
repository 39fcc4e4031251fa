package main

import (
	"fmt"
	"os"
	"path/filepath"

	"kai/internal/config"

	"github.com/spf13/cobra"
)

var contextModeCmd = &cobra.Command{
	Use:   "context-mode [full|analysis_cache|dynamic]",
	Short: "Get or set and persist the context construction mode",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runContextMode,
}

func runContextMode(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		mode := cfg.Context.Mode
		if mode == "" {
			mode = "auto"
		}
		fmt.Println(mode)
		return nil
	}

	cfg.Context.Mode = args[0]
	if err := cfg.Validate(); err != nil {
		return err
	}

	configPath := filepath.Join(fsRoot, ".kai", "config.yaml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}
	if err := config.Save(configPath, cfg); err != nil {
		return err
	}
	fmt.Printf("context mode set to %s\n", args[0])
	return nil
}
