package consolidation

import (
	"context"
	"fmt"
	"strings"

	"kai/internal/config"
	"kai/internal/convlog"
	"kai/internal/model"
	"kai/internal/projectfs"
)

// State names a point in the consolidation pass state machine:
// PLAN -> GENERATE -> APPLY -> LOOP(0..n) -> (SUCCESS | EXHAUSTED), with
// FAILED reached when PLAN or GENERATE fails. A file that fails to write
// during APPLY is counted in ApplyResult.Failed and does not by itself end
// the pass in FAILED.
type State string

const (
	StateSuccess   State = "SUCCESS"
	StateExhausted State = "EXHAUSTED"
	StateFailed    State = "FAILED"
)

// PassResult is the terminal outcome of one RunPass call.
type PassResult struct {
	State       State
	Plan        *OperationPlan
	Apply       *ApplyResult
	RetriesUsed int
	Err         error
}

// Engine owns the shared collaborators for a project's consolidation
// passes: Config, ProjectFS, and ModelClient, per spec.md §3's ownership
// note that these three are shared by reference with every component.
type Engine struct {
	FS     *projectfs.FS
	Model  model.Client
	Config *config.Config
	Loops  []FeedbackLoop
}

// NewEngine wires an Engine's collaborators and builds its feedback-loop
// chain from cfg, in declaration order (TypeScriptLoop then CoverageLoop).
func NewEngine(fs *projectfs.FS, client model.Client, cfg *config.Config) *Engine {
	var loops []FeedbackLoop
	if cfg.Project.TypeScriptAutofix {
		loops = append(loops, NewTypeScriptLoop(false))
	}
	loops = append(loops, NewCoverageLoop(fs, client, cfg.Project.CoverageIterations))

	return &Engine{FS: fs, Model: client, Config: cfg, Loops: loops}
}

func (e *Engine) retryPolicy() model.RetryPolicy {
	return model.RetryPolicy{
		MaxRetries:  e.Config.Model.GenerationMaxRetries,
		BaseDelayMs: e.Config.Model.GenerationRetryBaseDelay,
	}
}

// renderHistory flattens a conversation's messages into a plain-text
// transcript suitable for prompt interpolation.
func renderHistory(messages []convlog.Message) string {
	var sb strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Content)
	}
	return sb.String()
}

// RunPass executes one full consolidation pass for convLog against
// contextText: PLAN, GENERATE, APPLY, then feedback LOOPs, re-entering
// GENERATE/APPLY up to Config.Project.AutofixIterations times on loop
// failure.
func (e *Engine) RunPass(ctx context.Context, convLog *convlog.Log, contextText string) *PassResult {
	history := renderHistory(convLog.Messages())

	analyzer := NewAnalyzer(e.Model, e.Config.Model.GenerationMaxRetries)
	plan, err := analyzer.Plan(ctx, history, contextText)
	if err != nil {
		convLog.AppendSystem("consolidation planning failed: " + err.Error())
		return &PassResult{State: StateFailed, Err: err}
	}

	generator := NewGenerator(e.FS, e.Model, e.retryPolicy())
	content, err := generator.Generate(ctx, plan, history, contextText)
	if err != nil {
		convLog.AppendSystem("consolidation generation failed: " + err.Error())
		return &PassResult{State: StateFailed, Plan: plan, Err: err}
	}

	applier := NewApplier(e.FS)
	applyResult := applier.Apply(ctx, plan, content)

	retries := 0
	maxRetries := e.Config.Project.AutofixIterations

	for {
		failed := false
		for _, loop := range e.Loops {
			res := loop.Run(ctx, e.FS.ProjectRoot)
			if !res.Success {
				failed = true
				convLog.AppendSystem(fmt.Sprintf("feedback loop %s failed:\n%s", loop.Name(), res.Log))
				break
			}
		}
		if !failed {
			return &PassResult{State: StateSuccess, Plan: plan, Apply: applyResult, RetriesUsed: retries}
		}

		if retries >= maxRetries {
			return &PassResult{State: StateExhausted, Plan: plan, Apply: applyResult, RetriesUsed: retries}
		}
		retries++

		content, err = generator.Generate(ctx, plan, history, contextText)
		if err != nil {
			convLog.AppendSystem("consolidation regeneration failed: " + err.Error())
			return &PassResult{State: StateFailed, Plan: plan, Apply: applyResult, Err: err, RetriesUsed: retries}
		}
		applyResult = applier.Apply(ctx, plan, content)
	}
}
