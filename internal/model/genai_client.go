package model

import (
	"context"
	"encoding/json"
	"errors"

	"kai/internal/kerrors"

	"google.golang.org/genai"
)

// GenAIClient is the primary Client implementation, calling the Gemini API
// via google.golang.org/genai for chat, raw-text, and structured
// generation.
type GenAIClient struct {
	client        *genai.Client
	primaryModel  string
	secondaryModel string
	maxOutput     int32
	policy        RetryPolicy
}

// NewGenAIClient constructs a GenAIClient authenticated with apiKey.
func NewGenAIClient(ctx context.Context, apiKey, primaryModel, secondaryModel string, maxOutputTokens int, policy RetryPolicy) (*GenAIClient, error) {
	c, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, &kerrors.ModelError{Kind: kerrors.KindInvalidAPIKey, Message: err.Error(), Model: primaryModel}
	}
	return &GenAIClient{
		client:         c,
		primaryModel:   primaryModel,
		secondaryModel: secondaryModel,
		maxOutput:      int32(maxOutputTokens),
		policy:         policy,
	}, nil
}

func (g *GenAIClient) modelFor(useSecondary bool) string {
	if useSecondary {
		return g.secondaryModel
	}
	return g.primaryModel
}

// Chat sends messages as alternating user/model turns and returns the
// final response text.
func (g *GenAIClient) Chat(ctx context.Context, messages []Message, useSecondary bool) (string, error) {
	modelName := g.modelFor(useSecondary)
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}

	return withRetry(ctx, modelName, g.policy, func(ctx context.Context) (string, error) {
		resp, err := g.client.Models.GenerateContent(ctx, modelName, contents, &genai.GenerateContentConfig{
			MaxOutputTokens: g.maxOutput,
		})
		if err != nil {
			return "", classifyTransportError(err, modelName)
		}
		return extractText(resp, modelName)
	})
}

// RawText sends a single-turn prompt and returns the response text.
func (g *GenAIClient) RawText(ctx context.Context, prompt string, useSecondary bool) (string, error) {
	return g.Chat(ctx, []Message{{Role: RoleUser, Content: prompt}}, useSecondary)
}

// GenerateStructured asks the model to return JSON conforming to
// req.Schema, using the secondary model when requested.
func (g *GenAIClient) GenerateStructured(ctx context.Context, req StructuredRequest) (*StructuredResponse, error) {
	modelName := g.modelFor(req.UseSecondary)
	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: req.Prompt}},
	}}

	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens:  g.maxOutput,
		ResponseMIMEType: "application/json",
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}}
	}
	if req.Schema != nil {
		schemaBytes, err := json.Marshal(req.Schema)
		if err == nil {
			var schema genai.Schema
			if json.Unmarshal(schemaBytes, &schema) == nil {
				cfg.ResponseSchema = &schema
			}
		}
	}

	text, err := withRetry(ctx, modelName, g.policy, func(ctx context.Context) (string, error) {
		resp, err := g.client.Models.GenerateContent(ctx, modelName, contents, cfg)
		if err != nil {
			return "", classifyTransportError(err, modelName)
		}
		return extractText(resp, modelName)
	})
	if err != nil {
		return nil, err
	}
	return &StructuredResponse{JSON: text}, nil
}

// extractText validates a GenerateContent response: a nil response
// classifies as NO_RESPONSE (retryable); empty candidates, a
// candidate with no content parts (a model can stop with FinishReasonStop
// and nothing to say), or empty text all classify as EMPTY_RESPONSE
// (retryable); safety/recitation finish reasons classify as terminal
// *_BLOCK kinds.
func extractText(resp *genai.GenerateContentResponse, modelName string) (string, error) {
	if resp == nil {
		return "", &kerrors.ModelError{Kind: kerrors.KindNoResponse, Message: "no response returned", Model: modelName}
	}
	if len(resp.Candidates) == 0 {
		return "", &kerrors.ModelError{Kind: kerrors.KindEmptyResponse, Message: "no candidates returned", Model: modelName}
	}

	cand := resp.Candidates[0]
	switch cand.FinishReason {
	case genai.FinishReasonSafety:
		return "", &kerrors.ModelError{Kind: kerrors.KindSafetyBlock, Message: "blocked by safety filter", Model: modelName}
	case genai.FinishReasonRecitation:
		return "", &kerrors.ModelError{Kind: kerrors.KindRecitationBlock, Message: "blocked for recitation", Model: modelName}
	}

	if cand.Content == nil || len(cand.Content.Parts) == 0 {
		return "", &kerrors.ModelError{Kind: kerrors.KindEmptyResponse, Message: string(cand.FinishReason), Model: modelName}
	}

	var text string
	for _, part := range cand.Content.Parts {
		text += part.Text
	}
	if text == "" {
		return "", &kerrors.ModelError{Kind: kerrors.KindEmptyResponse, Message: "empty text in response", Model: modelName}
	}
	return text, nil
}

// classifyTransportError maps a transport-level genai error to a
// ModelError kind. genai surfaces HTTP-status-carrying errors for rate
// limiting and auth failures; anything unrecognized is treated as a
// retryable network error.
func classifyTransportError(err error, modelName string) *kerrors.ModelError {
	var apiErr genai.APIError
	if ok := asAPIError(err, &apiErr); ok {
		switch apiErr.Code {
		case 429:
			return &kerrors.ModelError{Kind: kerrors.KindRateLimit, Message: apiErr.Message, Model: modelName}
		case 401, 403:
			return &kerrors.ModelError{Kind: kerrors.KindInvalidAPIKey, Message: apiErr.Message, Model: modelName}
		case 404:
			return &kerrors.ModelError{Kind: kerrors.KindInvalidModel, Message: apiErr.Message, Model: modelName}
		case 500, 502, 503, 504:
			return &kerrors.ModelError{Kind: kerrors.KindServerOverload, Message: apiErr.Message, Model: modelName}
		}
	}
	return &kerrors.ModelError{Kind: kerrors.KindNetworkError, Message: err.Error(), Model: modelName}
}

func asAPIError(err error, target *genai.APIError) bool {
	return errors.As(err, target)
}

var _ Client = (*GenAIClient)(nil)
