package main

import (
	"context"
	"fmt"
	"strings"

	"kai/internal/analyzer"
	"kai/internal/contextbuilder"
	"kai/internal/convlog"
	"kai/internal/model"
	"kai/internal/projectfs"

	"github.com/spf13/cobra"
)

// hiddenChatSystemInstruction is the fixed string prepended to every chat
// prompt, part of Kai's external contract per spec.md §6.
const hiddenChatSystemInstruction = `You are Kai, a local coding assistant grounded in the project's own ` +
	`files. Answer using the provided context; when context is insufficient, say so rather than guessing.`

var chatCmd = &cobra.Command{
	Use:   "chat <name> [message...]",
	Short: "Append a message to a conversation and get the model's reply",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	name := args[0]
	message := strings.Join(args[1:], " ")
	if message == "" {
		return fmt.Errorf("chat: no message provided")
	}

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
	if err := log.AppendUser(message); err != nil {
		return err
	}

	builder := contextbuilder.New(fs, client)
	contextResult, err := buildChatContext(ctx, fs, builder, client)
	if err != nil {
		return err
	}

	messages := []model.Message{{Role: model.RoleSystem, Content: hiddenChatSystemInstruction}}
	for _, m := range log.Messages() {
		messages = append(messages, model.Message{Role: model.Role(m.Role), Content: m.Content})
	}
	messages = append(messages, model.Message{Role: model.RoleUser, Content: contextResult.Text})

	reply, err := client.Chat(ctx, messages, false)
	if err != nil {
		_ = log.AppendError(err.Error())
		return err
	}

	if err := log.AppendAssistant(reply); err != nil {
		return err
	}

	fmt.Println(reply)
	return nil
}

// buildChatContext selects a context mode per cfg.Context.Mode, falling
// back to auto-selection when unset.
func buildChatContext(ctx context.Context, fs *projectfs.FS, builder *contextbuilder.Builder, client model.Client) (*contextbuilder.Result, error) {
	mode := contextbuilder.Mode(cfg.Context.Mode)
	if mode == "" {
		selected, err := builder.SelectModeAuto(nil, nil, cfg.Model.MaxPromptTokens)
		if err != nil {
			return nil, err
		}
		mode = selected
	}

	switch mode {
	case contextbuilder.ModeFull:
		return builder.BuildFull(nil)
	case contextbuilder.ModeAnalysisCache, contextbuilder.ModeDynamic:
		cache, found, err := analyzer.Load(fs, cfg.Analysis.CacheFilePath)
		if err != nil {
			return nil, err
		}
		if !found {
			a := analyzer.New(fs, client, cfg.Analysis.CacheFilePath)
			cache, err = a.Analyze(ctx, nil)
			if err != nil {
				return nil, err
			}
		}
		if mode == contextbuilder.ModeDynamic {
			return builder.BuildDynamic(ctx, cache, "", "", cfg.Model.MaxPromptTokens)
		}
		return builder.BuildAnalysisCache(cache)
	default:
		return builder.BuildFull(nil)
	}
}
