package consolidation

import (
	"context"
	"fmt"
	"time"

	"kai/internal/kerrors"
	"kai/internal/model"
	"kai/internal/projectfs"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// DeleteSentinel is the FileContentMap value standing in for a DELETE
// operation's "content" — ConsolidationApplier interprets it specially.
const DeleteSentinel = "DELETE_FILE"

const generationSystemInstruction = `You are Kai's consolidation generator. Produce the complete, final ` +
	`contents of the requested file given the conversation, project context, target path, its current ` +
	`content (if any), and the rationale for the change. Respond with raw file contents only: no markdown ` +
	`fences, no prose, no explanation.`

// defaultConcurrency bounds simultaneous generation calls, per spec.md
// §5's "bounded degree of parallelism (default 4)".
const defaultConcurrency = 4

// Generator produces file content for each Operation in a plan.
type Generator struct {
	FS          *projectfs.FS
	Model       model.Client
	Policy      model.RetryPolicy
	Concurrency int64
}

// NewGenerator returns a Generator with the default bounded concurrency.
func NewGenerator(fs *projectfs.FS, client model.Client, policy model.RetryPolicy) *Generator {
	return &Generator{FS: fs, Model: client, Policy: policy, Concurrency: defaultConcurrency}
}

// Generate produces content for every operation in plan, running distinct
// files' generation calls concurrently up to g.Concurrency. The returned
// map is keyed by FilePath; a single file's failure aborts the whole
// batch with a GenerationError, since ConsolidationApplier must never see
// a partial FileContentMap.
func (g *Generator) Generate(ctx context.Context, plan *OperationPlan, history, contextText string) (map[string]string, error) {
	limit := g.Concurrency
	if limit < 1 {
		limit = 1
	}
	sem := semaphore.NewWeighted(limit)

	results := make([]string, len(plan.Operations))
	group, gctx := errgroup.WithContext(ctx)

	for i, op := range plan.Operations {
		i, op := i, op
		if op.Action == ActionDelete {
			results[i] = DeleteSentinel
			continue
		}
		group.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			content, err := g.generateOne(gctx, op, history, contextText)
			if err != nil {
				return err
			}
			results[i] = content
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	contentMap := make(map[string]string, len(plan.Operations))
	for i, op := range plan.Operations {
		contentMap[op.FilePath] = results[i]
	}
	return contentMap, nil
}

func (g *Generator) generateOne(ctx context.Context, op Operation, history, contextText string) (string, error) {
	currentContent, _, _ := g.FS.Read(op.FilePath)

	prompt := fmt.Sprintf(
		"Conversation history:\n%s\n\nProject context:\n%s\n\nTarget file: %s\nCurrent content:\n%s\n\nRationale: %s",
		history, contextText, op.FilePath, currentContent, op.Rationale,
	)

	attempts := g.Policy.Attempts()
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		text, err := g.Model.Chat(ctx, []model.Message{
			{Role: model.RoleSystem, Content: generationSystemInstruction},
			{Role: model.RoleUser, Content: prompt},
		}, false)
		if err != nil {
			lastErr = err
		} else if text == "" {
			lastErr = fmt.Errorf("empty generation response")
		} else {
			return text, nil
		}

		if attempt == attempts {
			break
		}
		delay := g.Policy.Backoff(attempt)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}

	msg := "no content generated"
	if lastErr != nil {
		msg = lastErr.Error()
	}
	return "", &kerrors.GenerationError{FilePath: op.FilePath, Msg: msg}
}
