package consolidation

import (
	"context"
	"encoding/json"
	"fmt"

	"kai/internal/kerrors"
	"kai/internal/model"
)

// rawOperation is the on-wire shape of one element of the structured
// generation response's operations array, before path/action validation.
type rawOperation struct {
	Action    string `json:"action"`
	FilePath  string `json:"filePath"`
	Rationale string `json:"rationale,omitempty"`
}

type rawPlanResponse struct {
	Operations []rawOperation `json:"operations"`
}

// planSchema is the structured-generation schema from spec.md §4.8.
var planSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"operations": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"action":    map[string]interface{}{"type": "string", "enum": []string{"CREATE", "MODIFY", "DELETE"}},
					"filePath":  map[string]interface{}{"type": "string"},
					"rationale": map[string]interface{}{"type": "string"},
				},
				"required": []string{"action", "filePath"},
			},
		},
	},
	"required": []string{"operations"},
}

const planningSystemInstruction = `You are Kai's consolidation planner. Given the conversation so far and ` +
	`the current project context, decide which files must be created, modified, or deleted to satisfy the ` +
	`user's latest request. Respond only with the requested JSON structure.`

// Analyzer turns a conversation plus context into an OperationPlan via a
// structured-generation call, retrying invalid responses up to
// model.RetryPolicy's attempt budget before failing with PlanningError.
type Analyzer struct {
	Model       model.Client
	MaxAttempts int
}

// NewAnalyzer returns an Analyzer that retries up to maxRetries times
// beyond the first attempt, matching generation_max_retries semantics.
func NewAnalyzer(client model.Client, maxRetries int) *Analyzer {
	attempts := maxRetries + 1
	if attempts < 1 {
		attempts = 1
	}
	return &Analyzer{Model: client, MaxAttempts: attempts}
}

// Plan calls the primary model for a structured OperationPlan, validating
// and repairing (by retry) until a usable plan is produced or attempts
// are exhausted.
func (a *Analyzer) Plan(ctx context.Context, history string, contextText string) (*OperationPlan, error) {
	prompt := fmt.Sprintf("Conversation history:\n%s\n\nProject context:\n%s", history, contextText)

	var lastErr error
	for attempt := 1; attempt <= a.MaxAttempts; attempt++ {
		resp, err := a.Model.GenerateStructured(ctx, model.StructuredRequest{
			Prompt:       prompt,
			SystemPrompt: planningSystemInstruction,
			Schema:       planSchema,
			UseSecondary: false,
		})
		if err != nil {
			lastErr = err
			continue
		}

		var raw rawPlanResponse
		if err := json.Unmarshal([]byte(resp.JSON), &raw); err != nil {
			lastErr = &kerrors.ParseError{Source: "consolidation plan response", Err: err}
			continue
		}

		plan, err := buildPlan(raw.Operations)
		if err != nil {
			lastErr = err
			continue
		}
		return plan, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no attempts made")
	}
	return nil, &kerrors.PlanningError{Msg: lastErr.Error()}
}
