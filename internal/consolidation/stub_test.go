package consolidation

import (
	"context"
	"sync/atomic"

	"kai/internal/model"
)

// stubClient is a scriptable model.Client for consolidation tests: each
// method returns a queued response, falling back to a default when the
// queue is exhausted, and records the number of Chat calls.
type stubClient struct {
	structuredResponses []string
	structuredIdx       int32

	chatResponses []string
	chatIdx       int32

	rawText string
	err     error

	chatCalls int32
}

func (s *stubClient) Chat(ctx context.Context, messages []model.Message, useSecondary bool) (string, error) {
	atomic.AddInt32(&s.chatCalls, 1)
	if s.err != nil {
		return "", s.err
	}
	idx := int(atomic.AddInt32(&s.chatIdx, 1)) - 1
	if idx < len(s.chatResponses) {
		return s.chatResponses[idx], nil
	}
	if len(s.chatResponses) > 0 {
		return s.chatResponses[len(s.chatResponses)-1], nil
	}
	return "generated content\n", nil
}

func (s *stubClient) RawText(ctx context.Context, prompt string, useSecondary bool) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.rawText, nil
}

func (s *stubClient) GenerateStructured(ctx context.Context, req model.StructuredRequest) (*model.StructuredResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	idx := int(atomic.AddInt32(&s.structuredIdx, 1)) - 1
	if idx < len(s.structuredResponses) {
		return &model.StructuredResponse{JSON: s.structuredResponses[idx]}, nil
	}
	return &model.StructuredResponse{JSON: s.structuredResponses[len(s.structuredResponses)-1]}, nil
}
