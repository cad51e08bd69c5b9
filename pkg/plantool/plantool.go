// Package plantool provides the plan-declaration and plan-status tools the
// reasoning engine invokes to capture and advance plans. Both reach the
// active run through the context; they are the only tools that mutate run
// state.
package plantool

import (
	"context"
	"fmt"

	"github.com/devlikebear/maestro/pkg/engine"
	"github.com/devlikebear/maestro/pkg/event"
	"github.com/devlikebear/maestro/pkg/plan"
	"github.com/devlikebear/maestro/pkg/tool"
)

// CreateDefinition returns the plan-declaration tool. Invoking it captures
// a plan on the active run and publishes plan_created on the side channel;
// the run then hands over to stepwise execution.
func CreateDefinition() tool.Definition {
	return tool.Definition{
		Name:        engine.PlanCreateToolName,
		Description: "Declare a step-by-step plan for a complex task. Use this before starting work that needs multiple distinct steps. Each step should be a concrete, self-contained unit of work.",
		Parameters: []tool.Parameter{
			{Name: "title", Type: "string", Description: "Short title describing the overall goal", Required: true},
			{Name: "steps", Type: "array", Description: "Ordered list of step descriptions", Required: true},
		},
		Handler: createHandler,
	}
}

func createHandler(ctx context.Context, args map[string]interface{}) (string, error) {
	rc := engine.RunContextFrom(ctx)
	if rc == nil {
		return "Error: no active run", nil
	}
	if rc.Plan() != nil {
		return "Error: a plan is already active for this run", nil
	}

	title, _ := args["title"].(string)
	rawSteps, _ := args["steps"].([]interface{})
	if len(rawSteps) == 0 {
		return "Error: steps must be a non-empty list", nil
	}

	p, err := plan.New(title, plan.NormalizeStepTitles(rawSteps))
	if err != nil {
		return fmt.Sprintf("Error: %v", err), nil
	}

	rc.SetPlan(p)
	rc.EmitPlanEvent(event.PlanCreated(p))
	rc.Logger().Info().Str("plan_id", p.ID).Int("steps", len(p.Steps)).Msg("Plan declared")

	return fmt.Sprintf("Plan created: plan_id=%s with %d steps. Execution will now proceed step by step.", p.ID, len(p.Steps)), nil
}

// UpdateDefinition returns the plan-status tool executors use to report
// progress on individual steps mid-session.
func UpdateDefinition() tool.Definition {
	return tool.Definition{
		Name:        engine.PlanUpdateToolName,
		Description: "Update the status of a plan step. Mark a step running when you start it and completed or failed when it finishes.",
		Parameters: []tool.Parameter{
			{Name: "plan_id", Type: "string", Description: "ID of the active plan"},
			{Name: "step_id", Type: "integer", Description: "ID of the step to update", Required: true},
			{Name: "status", Type: "string", Description: "New status: pending, running, completed, or failed", Required: true},
		},
		Handler: updateHandler,
	}
}

func updateHandler(ctx context.Context, args map[string]interface{}) (string, error) {
	rc := engine.RunContextFrom(ctx)
	if rc == nil {
		return "Error: no active run", nil
	}
	p := rc.Plan()
	if p == nil {
		return "Error: no active plan for this run", nil
	}
	if planID, _ := args["plan_id"].(string); planID != "" && planID != p.ID {
		return fmt.Sprintf("Error: unknown plan_id %q", planID), nil
	}

	status, _ := args["status"].(string)
	if !plan.ValidStatus(status) {
		return fmt.Sprintf("Error: invalid status %q", status), nil
	}

	stepID, ok := intArg(args["step_id"])
	if !ok {
		return "Error: step_id must be an integer", nil
	}

	engine.PublishPlanStatus(rc, stepID, plan.StepStatus(status))
	return fmt.Sprintf("Step %d -> %s", stepID, status), nil
}

// intArg accepts the numeric shapes JSON decoding produces for integers.
func intArg(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
