package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"github.com/devlikebear/maestro/internal/observability"
	"github.com/devlikebear/maestro/pkg/plan"
	"github.com/devlikebear/maestro/pkg/reason"
)

// Replan actions.
const (
	ReplanContinue = "continue"
	ReplanRevise   = "revise"
	ReplanFinish   = "finish"
)

// ReplanDecision is the structured verdict of a mid-run plan checkpoint.
type ReplanDecision struct {
	Action       string   `json:"action"`
	Response     string   `json:"response,omitempty"`
	RevisedSteps []string `json:"revised_steps,omitempty"`
	Reason       string   `json:"reason,omitempty"`
}

// maxReplanResultLen bounds each past-step result rendered into the
// checkpoint prompt. Step results are recorded at up to 1000 chars; the
// checkpoint only needs enough to judge failure, not the full output.
const maxReplanResultLen = 200

const replanSchema = `{
  "type": "object",
  "properties": {
    "action": {"type": "string", "enum": ["continue", "revise", "finish"]},
    "response": {"type": "string"},
    "revised_steps": {"type": "array", "items": {"type": "string"}},
    "reason": {"type": "string"}
  },
  "required": ["action"]
}`

// stepOutcome is the bounded record of one executed step, fed to the
// replanner checkpoint.
type stepOutcome struct {
	Title  string
	Result string
	Failed bool
}

// Replanner runs the between-steps checkpoint. It is deliberately
// conservative: the checkpoint fires only when the just-finished step
// failed with meaningful work remaining, and any failure in the decision
// path degrades silently to continuing the plan as written.
type Replanner struct {
	engine  reason.Engine
	enabled bool
	logger  zerolog.Logger
}

// NewReplanner creates a replanner; disabled replanners never consult the
// decision engine.
func NewReplanner(engine reason.Engine, enabled bool, logger zerolog.Logger) *Replanner {
	return &Replanner{
		engine:  engine,
		enabled: enabled,
		logger:  logger.With().Str("component", "replanner").Logger(),
	}
}

// Evaluate decides whether the plan should change after the step at
// stepIndex finished. A nil decision means continue unchanged. The
// heuristic gate avoids a decision call entirely when the plan is nearly
// done or the last step succeeded.
func (r *Replanner) Evaluate(ctx context.Context, p *plan.Plan, past []stepOutcome, stepIndex int) *ReplanDecision {
	if !r.enabled || r.engine == nil || p == nil || len(past) == 0 {
		return nil
	}

	remaining := len(p.Steps) - stepIndex
	if remaining <= 1 {
		return nil
	}
	if !past[len(past)-1].Failed {
		return nil
	}

	raw, err := r.engine.Decide(ctx, r.buildPrompt(p, past, stepIndex), replanSchema)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Replan decision call failed; continuing plan as written")
		return nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(replanSchema),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil || !result.Valid() {
		r.logger.Warn().Msg("Replan decision failed schema validation; continuing plan as written")
		return nil
	}

	var decision ReplanDecision
	if err := json.Unmarshal(raw, &decision); err != nil {
		r.logger.Warn().Err(err).Msg("Replan decision unmarshal failed; continuing plan as written")
		return nil
	}

	switch decision.Action {
	case ReplanContinue:
		return nil
	case ReplanRevise:
		if len(decision.RevisedSteps) == 0 {
			r.logger.Warn().Msg("Replan revise with no steps; continuing plan as written")
			return nil
		}
	case ReplanFinish:
	default:
		return nil
	}

	observability.RecordReplanDecision(decision.Action)
	r.logger.Info().Str("action", decision.Action).Str("reason", decision.Reason).Msg("Replan checkpoint decided")
	return &decision
}

func (r *Replanner) buildPrompt(p *plan.Plan, past []stepOutcome, stepIndex int) string {
	var b strings.Builder
	b.WriteString("You are supervising a multi-step plan. Review progress and decide whether to continue, revise the remaining steps, or finish early.\n\n")
	fmt.Fprintf(&b, "Goal: %s\n\nSteps:\n", p.Title)
	for _, step := range p.Steps {
		fmt.Fprintf(&b, "%d. [%s] %s\n", step.ID, step.Status, step.Title)
	}

	b.WriteString("\nExecuted so far:\n")
	for _, outcome := range past {
		marker := ""
		if outcome.Failed {
			marker = "[ERROR] "
		}
		fmt.Fprintf(&b, "- %s: %s%s\n", outcome.Title, marker, truncate(outcome.Result, maxReplanResultLen))
	}

	fmt.Fprintf(&b, "\nThe next step would be step %d of %d.\n", stepIndex+1, len(p.Steps))
	b.WriteString("Choose \"continue\" to proceed, \"revise\" to replace the remaining steps (provide revised_steps), or \"finish\" to stop now (provide a final response).")
	return b.String()
}
