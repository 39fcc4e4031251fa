// Package model implements Kai's ModelClient: a uniform chat / raw-text /
// structured-generation interface over the model backend, with a
// retry/backoff state machine and error-kind taxonomy per spec.md §4.3.
//
// The retry-loop shape (issued -> retryable error -> backoff -> retry,
// capped attempts, exponential backoff) is adapted from the corpus's HTTP
// client retry-on-429 loop; the response/error taxonomy (candidates,
// finishReason, safety ratings) is modeled on google.golang.org/genai's
// GenerateContent response shape, which the corpus uses only for
// embeddings — this package extends that SDK's usage to chat and
// structured generation, Kai's primary model-access path.
package model

import (
	"context"
	"time"

	"kai/internal/kerrors"
	"kai/internal/logging"
)

// Role mirrors convlog.Role without importing it, keeping model free of a
// dependency on the conversation package.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one exchange turn passed to Chat.
type Message struct {
	Role    Role
	Content string
}

// StructuredRequest asks the model to produce JSON conforming to Schema.
type StructuredRequest struct {
	Prompt       string
	SystemPrompt string
	Schema       map[string]interface{}
	UseSecondary bool
}

// StructuredResponse is the raw JSON text returned for a StructuredRequest;
// callers unmarshal it against their own Go type.
type StructuredResponse struct {
	JSON string
}

// Client is Kai's uniform model-access interface. All operations may
// suspend awaiting network I/O and honor ctx cancellation at retry
// boundaries.
type Client interface {
	Chat(ctx context.Context, messages []Message, useSecondary bool) (string, error)
	RawText(ctx context.Context, prompt string, useSecondary bool) (string, error)
	GenerateStructured(ctx context.Context, req StructuredRequest) (*StructuredResponse, error)
}

// RetryPolicy configures the backoff state machine shared by every Client
// implementation's call sites.
type RetryPolicy struct {
	MaxRetries    int
	BaseDelayMs   int
}

// Attempts returns the total number of attempts a policy allows, per
// spec.md §4.3 ("attempts capped by generation_max_retries + 1").
func (p RetryPolicy) Attempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// Backoff returns the delay before the given 1-indexed attempt, following
// base * 2^(attempt-1).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	base := time.Duration(p.BaseDelayMs) * time.Millisecond
	if attempt <= 1 {
		return base
	}
	return base << uint(attempt-1)
}

// callFunc performs one underlying attempt, returning a typed error whose
// Kind determines retry behavior.
type callFunc func(ctx context.Context) (string, error)

// withRetry drives the issued -> retryable-error -> backoff -> retry state
// machine described in spec.md §4.3, sleeping between attempts and
// returning a ModelError on exhaustion.
func withRetry(ctx context.Context, modelName string, policy RetryPolicy, call callFunc) (string, error) {
	logger := logging.Get(logging.CategoryModel)
	var lastErr *kerrors.ModelError

	for attempt := 1; attempt <= policy.Attempts(); attempt++ {
		text, err := call(ctx)
		if err == nil {
			return text, nil
		}

		merr, ok := err.(*kerrors.ModelError)
		if !ok {
			merr = &kerrors.ModelError{Kind: kerrors.KindNetworkError, Message: err.Error(), Model: modelName}
		}
		lastErr = merr

		if !merr.Kind.Retryable() {
			logger.Warn("model call to %s failed terminally: %s", modelName, merr.Kind)
			return "", merr
		}

		if attempt == policy.Attempts() {
			break
		}

		delay := policy.Backoff(attempt)
		logger.Debug("model call to %s retrying after %s (attempt %d/%d, kind=%s)",
			modelName, delay, attempt, policy.Attempts(), merr.Kind)

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
	return "", lastErr
}
