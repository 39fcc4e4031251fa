// Package consolidation implements Kai's consolidation pass: the
// PLAN -> GENERATE -> APPLY -> LOOP(0..n) -> SUCCESS|EXHAUSTED state
// machine described in spec.md §4.8-§4.12, adapted from the corpus's
// OODA-loop shard pipeline (plan/act/observe phases threaded through an
// engine value rather than a shared-state processor).
package consolidation

import (
	"path"
	"strings"

	"github.com/google/uuid"

	"kai/internal/kerrors"
)

// Action is the kind of filesystem operation a plan entry describes.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionModify Action = "MODIFY"
	ActionDelete Action = "DELETE"
)

// Operation is one file-level step derived from a conversation. ID
// correlates an operation across regeneration and repair attempts within
// a pass; it is assigned once by buildPlan and never supplied by the
// model.
type Operation struct {
	ID        string `json:"id"`
	Action    Action `json:"action"`
	FilePath  string `json:"filePath"`
	Rationale string `json:"rationale,omitempty"`
}

// OperationPlan is the ordered output of ConsolidationAnalyzer. Write
// ordering during APPLY follows this slice's order regardless of
// generation completion order.
type OperationPlan struct {
	Operations []Operation
}

// validatePath normalizes a candidate file path and rejects it per
// spec.md §4.8: empty, absolute, or `..`-escaping paths are invalid.
func validatePath(p string) (string, error) {
	trimmed := strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	if trimmed == "" {
		return "", &kerrors.PathEscapeError{Path: p}
	}
	if path.IsAbs(trimmed) {
		return "", &kerrors.PathEscapeError{Path: p}
	}
	cleaned := path.Clean(trimmed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", &kerrors.PathEscapeError{Path: p}
	}
	return cleaned, nil
}

// validateAction rejects any action outside the known three.
func validateAction(a string) (Action, bool) {
	switch Action(a) {
	case ActionCreate, ActionModify, ActionDelete:
		return Action(a), true
	default:
		return "", false
	}
}

// buildPlan validates raw operations and merges duplicate paths, the
// last action for a given path winning, preserving first-seen order.
func buildPlan(raw []rawOperation) (*OperationPlan, error) {
	order := make([]string, 0, len(raw))
	byPath := make(map[string]Operation, len(raw))

	for _, r := range raw {
		action, ok := validateAction(r.Action)
		if !ok {
			return nil, &kerrors.PlanningError{Msg: "unknown action " + r.Action}
		}
		cleanPath, err := validatePath(r.FilePath)
		if err != nil {
			return nil, &kerrors.PlanningError{Msg: err.Error()}
		}
		id := uuid.New().String()
		if existing, exists := byPath[cleanPath]; exists {
			id = existing.ID
		} else {
			order = append(order, cleanPath)
		}
		byPath[cleanPath] = Operation{ID: id, Action: action, FilePath: cleanPath, Rationale: r.Rationale}
	}

	ops := make([]Operation, 0, len(order))
	for _, p := range order {
		ops = append(ops, byPath[p])
	}
	return &OperationPlan{Operations: ops}, nil
}
