package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var deleteForce bool

var deleteCmd = &cobra.Command{
	Use:   "delete <name...>",
	Short: "Remove conversation logs after confirmation",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDelete,
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "skip confirmation prompt")
}

func runDelete(cmd *cobra.Command, args []string) error {
	if !deleteForce {
		fmt.Printf("Delete %d conversation(s): %s? [y/N] ", len(args), strings.Join(args, ", "))
		reader := bufio.NewReader(os.Stdin)
		response, _ := reader.ReadString('\n')
		response = strings.ToLower(strings.TrimSpace(response))
		if response != "y" && response != "yes" {
			fmt.Println("aborted")
			return nil
		}
	}

	for _, name := range args {
		path := filepath.Join(fsRoot, cfg.Project.ChatsDir, name+".jsonl")
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		fmt.Printf("deleted %s\n", name)
	}
	return nil
}
