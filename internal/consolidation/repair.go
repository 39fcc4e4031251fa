package consolidation

import (
	"context"
	"fmt"

	"kai/internal/model"
	"kai/internal/projectfs"
)

// defaultMaxRepairAttempts matches spec.md §4.11's default of 10.
const defaultMaxRepairAttempts = 10

const repairSystemInstruction = `You are Kai's diff repair assistant. A unified diff failed to apply to ` +
	`a file. Given the target path, its current content, the broken diff, and the error from the parser ` +
	`or patch engine, respond with a corrected unified diff only.`

// RepairLoop asks the model for a corrected diff whenever
// ProjectFS.ApplyDiff fails, retrying up to MaxAttempts times.
type RepairLoop struct {
	FS          *projectfs.FS
	Model       model.Client
	MaxAttempts int
}

// NewRepairLoop returns a RepairLoop with the default attempt cap.
func NewRepairLoop(fs *projectfs.FS, client model.Client) *RepairLoop {
	return &RepairLoop{FS: fs, Model: client, MaxAttempts: defaultMaxRepairAttempts}
}

// Repair retries applying diffText to relPath, asking the model for a
// corrected diff after each failure. It exits immediately (returning
// false) on an empty diff response, and returns true as soon as a diff
// applies cleanly.
func (r *RepairLoop) Repair(ctx context.Context, relPath, diffText, applyErr string) (bool, error) {
	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	currentDiff := diffText
	lastErr := applyErr

	for attempt := 1; attempt <= attempts; attempt++ {
		content, exists, err := r.FS.Read(relPath)
		if err != nil {
			return false, err
		}
		if !exists {
			content = ""
		}

		prompt := fmt.Sprintf(
			"Target file: %s\nCurrent content:\n%s\n\nBroken diff:\n%s\n\nError:\n%s",
			relPath, content, currentDiff, lastErr,
		)

		response, err := r.Model.Chat(ctx, []model.Message{
			{Role: model.RoleSystem, Content: repairSystemInstruction},
			{Role: model.RoleUser, Content: prompt},
		}, false)
		if err != nil {
			return false, err
		}
		if response == "" {
			return false, nil
		}

		applied, err := r.FS.ApplyDiff(relPath, response)
		if err != nil {
			return false, err
		}
		if applied {
			return true, nil
		}

		currentDiff = response
		lastErr = "diff still failed to apply"
	}

	return false, nil
}
